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

package index

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/shenwei356/gtdb/codec"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// BuildOptions controls index construction. Progress is a *mpb.Progress
// to attach build bars to; a nil Progress disables bars, which tests
// rely on.
type BuildOptions struct {
	Params  Params
	Verbose bool
	Progress *mpb.Progress
}

// snpAccumulator tracks the known-bits masks of one in-progress
// SnpRecord so that conflicting contributions can be detected, per
// §4.3 ("enforced via per-record known-bits masks during build").
type snpAccumulator struct {
	knownLow  uint64
	knownHigh uint64
}

// Build derives the SNP table, sorted k-mer index, L-mer range index
// and M-mer bloom from a canonical database, then validates the result
// per §4.7. The canonical database must already be sorted ascending by
// k-mer (§4.4); Build does not sort it.
func Build(canonicalPath string, opt BuildOptions) (*Database, error) {
	if err := opt.Params.Validate(); err != nil {
		return nil, err
	}

	nRecords, err := CanonicalCount(canonicalPath)
	if err != nil {
		return nil, err
	}

	r, err := OpenCanonical(canonicalPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	db := &Database{
		Params:    opt.Params,
		LmerIndex: make([]LmerRange, 1<<opt.Params.L),
		Bloom:     make([]uint64, (uint64(1)<<opt.Params.M)/64),
	}
	coord2id := make(map[uint64]SnpId, 1<<16)
	accum := make([]snpAccumulator, 0, 1<<16)
	db.KmerIndex = make([]KmerIndexEntry, 0, nRecords)

	var bar *mpb.Bar
	if opt.Progress != nil {
		bar = opt.Progress.AddBar(nRecords,
			mpb.PrependDecorators(decor.Name("building index")),
			mpb.AppendDecorators(decor.Percentage()))
	}

	var lastLmer uint64
	var haveLast bool
	var rangeStart uint64
	var i uint64

	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rec.Offset >= codec.K {
			return nil, fmt.Errorf("index: SNP offset %d out of range [0, %d) at record %d", rec.Offset, codec.K, i)
		}

		id, ok := coord2id[rec.Coord]
		if !ok {
			id = SnpId(len(db.SnpTable))
			if id > MaxSnpId {
				return nil, fmt.Errorf("index: number of distinct SNPs exceeds %d", MaxSnpId+1)
			}
			coord2id[rec.Coord] = id
			db.SnpTable = append(db.SnpTable, SnpRecord{Coord: rec.Coord})
			accum = append(accum, snpAccumulator{})
		}

		if err := mergeContribution(&db.SnpTable[id], &accum[id], rec.Kmer, rec.Offset, rec.Coord); err != nil {
			return nil, err
		}

		db.KmerIndex = append(db.KmerIndex, NewKmerIndexEntry(id, rec.Offset))

		lmer := rec.Kmer >> opt.Params.M2
		if !haveLast {
			haveLast = true
			lastLmer = lmer
			rangeStart = i
		} else if lmer != lastLmer {
			if err := closeLmerRange(db.LmerIndex, lastLmer, rangeStart, i); err != nil {
				return nil, err
			}
			rangeStart = i
			lastLmer = lmer
		}

		mmer := rec.Kmer & (uint64(1)<<opt.Params.M - 1)
		db.Bloom[mmer>>6] |= 1 << (mmer & 63)

		i++
		if bar != nil {
			bar.Increment()
		}
	}

	if haveLast {
		if err := closeLmerRange(db.LmerIndex, lastLmer, rangeStart, i); err != nil {
			return nil, err
		}
	}

	if err := validate(canonicalPath, db, opt.Progress); err != nil {
		return nil, err
	}

	return db, nil
}

func closeLmerRange(lmerIndex []LmerRange, lmer, start, end uint64) error {
	rng, err := NewLmerRange(start, uint32(end-start))
	if err != nil {
		return errors.Wrapf(err, "l-mer %d", lmer)
	}
	lmerIndex[lmer] = rng
	return nil
}

// mergeContribution folds one k-mer's SNP-centered bits into rec,
// rejecting any bit-level disagreement with previously merged k-mers
// covering the same SNP (§4.3, §8 property 2/3).
func mergeContribution(rec *SnpRecord, acc *snpAccumulator, kmer uint64, offset uint8, coord uint64) error {
	low, high := splitKmer(kmer, offset)
	lm, hm := lowMask(offset), highMask(offset)

	if overlap := acc.knownLow & lm; overlap != 0 {
		if rec.Low&overlap != low&overlap {
			return fmt.Errorf("index: conflicting k-mer bits for SNP coord %d (Low overlay)", coord)
		}
	}
	if overlap := acc.knownHigh & hm; overlap != 0 {
		if rec.High&overlap != high&overlap {
			return fmt.Errorf("index: conflicting k-mer bits for SNP coord %d (High overlay)", coord)
		}
	}

	rec.Low |= low
	rec.High |= high
	acc.knownLow |= lm
	acc.knownHigh |= hm

	if !OverlayConsistent(*rec) {
		return fmt.Errorf("index: SNP overlay mismatch for coord %d", coord)
	}
	return nil
}

// validate implements §4.7: a second streaming pass over the canonical
// database that reconstructs each k-mer from its k-mer index entry and
// asserts equality with the canonical value.
func validate(canonicalPath string, db *Database, progress *mpb.Progress) error {
	r, err := OpenCanonical(canonicalPath)
	if err != nil {
		return err
	}
	defer r.Close()

	var bar *mpb.Bar
	if progress != nil {
		bar = progress.AddBar(int64(len(db.KmerIndex)),
			mpb.PrependDecorators(decor.Name("validating index")),
			mpb.AppendDecorators(decor.Percentage()))
	}

	for i := range db.KmerIndex {
		rec, err := r.Next()
		if err != nil {
			return errors.Wrap(err, "index: validation pass ended early")
		}
		entry := db.KmerIndex[i]
		got := ReconstructKmer(db.SnpTable[entry.SnpId()], entry.Offset())
		if got != rec.Kmer {
			return fmt.Errorf("index: validation failed at record %d: reconstructed %d, canonical %d", i, got, rec.Kmer)
		}
		if bar != nil {
			bar.Increment()
		}
	}
	return nil
}
