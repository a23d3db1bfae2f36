// Copyright © 2023-2026 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package index implements the on-disk optimized k-mer database: the
// SNP table, the sorted k-mer index, the L-mer range index and the
// M-mer bloom filter, together with the builder that derives all four
// from a canonical database and the loader that mmaps or preloads them.
package index

import (
	"fmt"

	"github.com/shenwei356/gtdb/codec"
)

// SnpId is a 27-bit identifier into the SNP table.
type SnpId = uint32

// MaxSnpId is the largest representable SnpId (2^27 - 1).
const MaxSnpId = 1<<27 - 1

// OffsetBits is the width of the k-mer-relative offset field.
const OffsetBits = 5

// SnpRecord is the SNP-centered, 61-base bit-packed sequence for one
// SNP, stored as two 64-bit halves plus the SNP's opaque 56-bit
// coordinate. See snprecord.go for the overlay bit layout.
type SnpRecord struct {
	Low   uint64
	High  uint64
	Coord uint64
}

// KmerIndexEntry packs (snp_id:27, offset:5) into a uint32, exactly the
// on-disk representation of the sorted k-mer index.
type KmerIndexEntry uint32

// NewKmerIndexEntry builds an entry from a SnpId and an offset in
// [0, codec.K).
func NewKmerIndexEntry(snpID SnpId, offset uint8) KmerIndexEntry {
	return KmerIndexEntry(snpID<<OffsetBits | uint32(offset))
}

// SnpId returns the SNP id encoded in the entry.
func (e KmerIndexEntry) SnpId() SnpId { return uint32(e) >> OffsetBits }

// Offset returns the k-mer-relative SNP offset encoded in the entry.
func (e KmerIndexEntry) Offset() uint8 { return uint8(e) & (1<<OffsetBits - 1) }

// LmerRange packs (start:48, len:16) into a uint64.
type LmerRange uint64

// MaxStart and MaxLen bound the two LmerRange fields; a canonical
// database whose optimized index would overflow either is rejected.
const (
	StartBits = 48
	LenBits   = 16
	MaxStart  = 1<<StartBits - 1
	MaxLen    = 1<<LenBits - 1
)

// NewLmerRange packs a start/len pair, per §4.4: (start<<16)|len.
func NewLmerRange(start uint64, length uint32) (LmerRange, error) {
	if start > MaxStart {
		return 0, fmt.Errorf("index: l-mer range start %d overflows %d bits", start, StartBits)
	}
	if length > MaxLen {
		return 0, fmt.Errorf("index: l-mer range length %d overflows %d bits", length, LenBits)
	}
	return LmerRange(start<<LenBits | uint64(length)), nil
}

// Start returns the start offset into the sorted k-mer index.
func (r LmerRange) Start() uint64 { return uint64(r) >> LenBits }

// Len returns the number of entries in the range.
func (r LmerRange) Len() uint32 { return uint32(uint64(r) & MaxLen) }

// Params holds the run-time-fixed layout parameters of an optimized
// database. K and K2 are compile-time constants of package codec; L,
// M2 and M are chosen per run (§3) and must stay fixed for its
// duration, per Design Notes 9.
type Params struct {
	L  uint8 // bits of L-mer prefix
	M2 uint8 // bits of the k-mer suffix, codec.K2 - L
	M  uint8 // bloom address width
}

// Validate checks the constraints of §3: L∈[1,32], M2∈(0,64), M∈(0,64),
// and L2>=K2-M (the original's static_assert(L2 >= K2 - M3), carried
// forward here as an explicit runtime usage error per SPEC_FULL §
// SUPPLEMENTED FEATURES item 4, rather than a silent debug assertion).
func (p Params) Validate() error {
	if p.L < 1 || p.L > 32 {
		return fmt.Errorf("index: L (%d) must be in [1, 32]", p.L)
	}
	if p.M2 != codec.K2-p.L {
		return fmt.Errorf("index: M2 (%d) must equal K2-L (%d)", p.M2, codec.K2-p.L)
	}
	if p.M2 == 0 || p.M2 >= 64 {
		return fmt.Errorf("index: M2 (%d) must be in (0, 64)", p.M2)
	}
	if p.M == 0 || p.M >= 64 {
		return fmt.Errorf("index: M (%d) must be in (0, 64)", p.M)
	}
	if p.L < codec.K2-p.M {
		return fmt.Errorf("index: L (%d) must be >= K2-M (%d)", p.L, codec.K2-p.M)
	}
	return nil
}

// NewParams builds and validates a Params from L and M.
func NewParams(l, m uint8) (Params, error) {
	p := Params{L: l, M2: codec.K2 - l, M: m}
	return p, p.Validate()
}

// DefaultParams is the reference configuration named in §3: L=30,
// M2=32, M=36.
var DefaultParams = Params{L: 30, M2: 32, M: 36}
