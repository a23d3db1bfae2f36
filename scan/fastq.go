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

// Package scan implements the streaming FASTQ scanner and the
// round-based dispatcher that runs it across many input files.
package scan

import (
	"io"

	"github.com/pkg/errors"
	"github.com/shenwei356/gtdb/codec"
	"github.com/shenwei356/gtdb/index"
	"github.com/shenwei356/xopen"
)

// chunkSize is the size of the reusable input buffer, matched to the
// ~32MiB chunking of §4.8.
const chunkSize = 32 << 20

// maxTokenLength bounds the sequence run accumulated between two
// non-ACGT bytes (or the start/end of a line) before it is handed to
// the k-mer extractor.
const maxTokenLength = 500

// minTokenLength is K: no k-mer fits in a shorter token.
const minTokenLength = codec.K

// progressInterval is how often ScanFile calls OnProgress, mirroring
// the original engine's periodic progress line every 5M reads.
const progressInterval = 5_000_000

// scanCounters exposes hot-loop event counts for tests (E5's assertion
// that the bloom filter suppresses the range probe) without adding any
// synchronization to the scanning path itself; a Scanner is used by
// exactly one goroutine.
type scanCounters struct {
	bloomTests   int64
	bloomHits    int64
	rangeProbes  int64
	kmersScanned int64
}

// Scanner holds the private, per-worker state of §5: input buffer,
// token buffer, match list and dedup footprint. It is not safe for
// concurrent use; the dispatcher creates one per input file.
type Scanner struct {
	db *index.Database

	halfM int    // ceil(M/2), the number of bases needed to test the bloom filter
	mMask uint64 // (1<<M)-1

	buf      []byte // reusable chunk buffer
	token    []byte // reusable token buffer, capacity maxTokenLength
	matches   []index.SnpId
	footprint *footprint

	counters scanCounters

	// OnProgress, if set, is called every progressInterval reads.
	OnProgress func(reads int64)
}

// NewScanner builds a Scanner bound to db. seed distinguishes the
// per-worker dedup hash so concurrent scanners never share footprint
// state (they never share memory either, but distinct seeds also keep
// footprint tests reproducible independent of goroutine scheduling).
func NewScanner(db *index.Database, seed uint64) *Scanner {
	halfM := (int(db.Params.M) + 1) / 2
	return &Scanner{
		db:        db,
		halfM:     halfM,
		mMask:     uint64(1)<<db.Params.M - 1,
		buf:       make([]byte, chunkSize),
		token:     make([]byte, 0, maxTokenLength),
		matches:   make([]index.SnpId, 0, 1024),
		footprint: newFootprint(seed),
	}
}

// ScanFile streams one FASTQ file and returns the SnpIds of the SNPs
// found in it, one entry per read that contains at least one of the
// SNP's k-mers (§8 property 7), in the read order they were first seen.
// Callers map ids to coordinates and sort before writing (Tabulate,
// §4.8 "Output").
func (s *Scanner) ScanFile(path string) ([]index.SnpId, error) {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening input: %s", path)
	}
	defer fh.Close()

	s.matches = s.matches[:0]
	s.footprint.reset()

	lineCount := 0
	tokLen := 0
	capped := false
	inSeqLine := false

	endToken := func() {
		if tokLen >= minTokenLength {
			s.extractFromToken(s.token[:tokLen])
		}
		tokLen = 0
		capped = false
	}

	for {
		n, readErr := fh.Read(s.buf)
		if n > 0 {
			chunk := s.buf[:n]
			for i := 0; i < len(chunk); i++ {
				c := chunk[i]
				if c == '\n' {
					if inSeqLine {
						endToken()
					}
					lineCount++
					inSeqLine = lineCount%4 == 1
					if inSeqLine {
						s.footprint.reset()
						if s.OnProgress != nil {
							reads := int64(lineCount / 4)
							if reads%progressInterval == 0 {
								s.OnProgress(reads)
							}
						}
					}
					continue
				}
				if !inSeqLine {
					continue
				}
				if !codec.IsBase(c) {
					endToken()
					continue
				}
				if !capped {
					s.token = s.token[:tokLen+1]
					s.token[tokLen] = c
					tokLen++
					if tokLen == maxTokenLength {
						s.extractFromToken(s.token[:tokLen])
						capped = true
					}
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return nil, errors.Wrapf(readErr, "reading input: %s", path)
		}
	}

	// A capped token (tokLen pinned at maxTokenLength once the cap is
	// hit) is still a token in progress until its line's newline is
	// seen; only endToken resets tokLen, so this check must not exempt
	// capped == true.
	if inSeqLine && tokLen > 0 {
		return nil, errors.Errorf("truncated FASTQ record in %s: sequence line has no trailing newline", path)
	}

	out := make([]index.SnpId, len(s.matches))
	copy(out, s.matches)
	return out, nil
}

// extractFromToken runs the sliding-window bloom-then-range probe of
// §4.8 step 4 over one N-free run of bases.
func (s *Scanner) extractFromToken(token []byte) {
	if len(token) < codec.K {
		return
	}
	db := s.db

	for j := 0; j+codec.K <= len(token); j++ {
		window := token[j : j+codec.K]

		// The low M bits of the full k-mer depend only on its first
		// halfM bases, under the "base i occupies bits 2i,2i+1"
		// convention; this lets the bloom test skip the full encode.
		mmer := codec.EncodePrefix(window, s.halfM) & s.mMask
		s.counters.bloomTests++
		if !db.BloomTest(mmer) {
			continue
		}
		s.counters.bloomHits++

		kmer := codec.EncodeKmer(window)
		lmer := kmer >> db.Params.M2
		rng := db.LmerRangeFor(lmer)
		start, length := rng.Start(), rng.Len()

		s.counters.rangeProbes++
		for z := uint64(0); z < uint64(length); z++ {
			entry := db.KmerIndexEntryAt(int(start + z))
			s.counters.kmersScanned++
			dbKmer := index.ReconstructKmer(db.Snp(entry.SnpId()), entry.Offset())
			if kmer == dbKmer {
				if s.footprint.addIfNew(entry.SnpId()) {
					s.matches = append(s.matches, entry.SnpId())
				}
				continue
			}
			if kmer < dbKmer {
				break
			}
		}
	}
}
