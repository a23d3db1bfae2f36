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

package codec

// K is the number of bases per k-mer.
const K = 31

// BitsPerBase is the width of one nucleotide code.
const BitsPerBase = 2

// K2 is the number of bits needed to hold a full k-mer.
const K2 = BitsPerBase * K

// EncodeKmer packs buf[0:K] into a K2-bit integer using the positional
// convention that base i occupies bits 2i and 2i+1, i.e. the first base
// of buf ends up in the low-order bits and the last base ends up
// abutting the top of the 62-bit value. This is the convention that
// the SNP-record overlay math in package index relies on.
//
// The caller must ensure buf has at least K bytes of valid ACGT/acgt
// bases; behavior on other bytes is only defined via the Sentinel path
// used by the scanner's token splitter, never by this function itself.
func EncodeKmer(buf []byte) uint64 {
	var kmer uint64
	for i := 0; i < K; i++ {
		kmer |= uint64(encodeTable[buf[i]]) << uint(i*BitsPerBase)
	}
	return kmer
}

// EncodePrefix packs buf[0:n] using the same positional convention as
// EncodeKmer, for n < K. It is used by the scanner to test a k-mer's
// bloom address without paying for a full K-base encode, since the
// low bits of a k-mer depend only on its leading bases.
func EncodePrefix(buf []byte, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(encodeTable[buf[i]]) << uint(i*BitsPerBase)
	}
	return v
}

// DecodeKmer renders a K2-bit-packed k-mer back into an upper-case ACGT
// string of length K. It is used by tests and by diagnostics, never by
// the hot scanning loop.
func DecodeKmer(kmer uint64) []byte {
	s := make([]byte, K)
	for i := 0; i < K; i++ {
		s[i] = decodeTable[(kmer>>uint(i*BitsPerBase))&3]
	}
	return s
}
