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

package scan

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/shenwei356/gtdb/codec"
	"github.com/shenwei356/gtdb/index"
)

// buildOneSnpDB builds a database containing exactly one SNP with a
// single k-mer covering it at the given offset, using L=20 with M=42,
// the smallest bloom width Params.Validate accepts for that L.
func buildOneSnpDB(t *testing.T, coord uint64, offset uint8, seq string) *index.Database {
	t.Helper()
	if len(seq) != codec.K {
		t.Fatalf("test sequence must be %d bases, got %d", codec.K, len(seq))
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "canonical.bin")

	fh, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating canonical file: %v", err)
	}
	kmer := codec.EncodeKmer([]byte(seq))
	snpWithOffset := coord<<8 | uint64(offset)
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], snpWithOffset)
	binary.LittleEndian.PutUint64(buf[8:16], kmer)
	if _, err := fh.Write(buf[:]); err != nil {
		t.Fatalf("writing canonical record: %v", err)
	}
	fh.Close()

	params, err := index.NewParams(20, 42)
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	db, err := index.Build(path, index.BuildOptions{Params: params})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return db
}

func writeFastqRecords(t *testing.T, seqs []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "reads.fastq")
	fh, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fastq file: %v", err)
	}
	defer fh.Close()

	w := bufio.NewWriter(fh)
	for i, seq := range seqs {
		fmt.Fprintf(w, "@read%d\n%s\n+\n%s\n", i, seq, string(make([]byte, len(seq))))
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flushing fastq file: %v", err)
	}
	return path
}

// writeTruncatedFastq writes a single FASTQ record whose sequence line
// is never terminated by a newline, simulating a file cut off mid-write.
func writeTruncatedFastq(t *testing.T, seq string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "reads.fastq")
	fh, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fastq file: %v", err)
	}
	defer fh.Close()

	if _, err := fmt.Fprintf(fh, "@read0\n%s", seq); err != nil {
		t.Fatalf("writing truncated fastq record: %v", err)
	}
	return path
}

func scanAndTabulate(t *testing.T, db *index.Database, path string) []Tally {
	t.Helper()
	scanner := NewScanner(db, 1)
	matches, err := scanner.ScanFile(path)
	if err != nil {
		t.Fatalf("ScanFile: %v", err)
	}
	return Tabulate(db, matches)
}

func TestE1SmallestHit(t *testing.T) {
	seq := "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACG"
	db := buildOneSnpDB(t, 0x1234, 0, seq)
	path := writeFastqRecords(t, []string{seq})

	tallies := scanAndTabulate(t, db, path)
	if len(tallies) != 1 {
		t.Fatalf("got %d tallies, want 1", len(tallies))
	}
	if tallies[0].Coord != 0x1234 || tallies[0].Count != 1 {
		t.Fatalf("got %+v, want {4660 1}", tallies[0])
	}
}

func TestE2NSplitSameRead(t *testing.T) {
	half := "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACG"
	db := buildOneSnpDB(t, 0x1234, 0, half)
	seq := half + "N" + half
	path := writeFastqRecords(t, []string{seq})

	tallies := scanAndTabulate(t, db, path)
	if len(tallies) != 1 {
		t.Fatalf("got %d tallies, want 1", len(tallies))
	}
	if tallies[0].Coord != 0x1234 || tallies[0].Count != 1 {
		t.Fatalf("got %+v, want {4660 1} (dedup across N-split tokens)", tallies[0])
	}
}

func TestE3TwoReads(t *testing.T) {
	seq := "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACG"
	db := buildOneSnpDB(t, 0x1234, 0, seq)
	path := writeFastqRecords(t, []string{seq, seq})

	tallies := scanAndTabulate(t, db, path)
	if len(tallies) != 1 {
		t.Fatalf("got %d tallies, want 1", len(tallies))
	}
	if tallies[0].Coord != 0x1234 || tallies[0].Count != 2 {
		t.Fatalf("got %+v, want {4660 2}", tallies[0])
	}
}

func TestE4NoHit(t *testing.T) {
	seq := "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACG"
	db := buildOneSnpDB(t, 0x1234, 0, seq)
	miss := "TTTT" + "TTTT" + "TTTT" + "TTTT" + "TTTT" + "TTTT" + "TTTT" + "TTT"
	path := writeFastqRecords(t, []string{miss})

	tallies := scanAndTabulate(t, db, path)
	if len(tallies) != 0 {
		t.Fatalf("got %d tallies, want 0 (no hit)", len(tallies))
	}
}

func TestE5BloomMissNeverProbesRange(t *testing.T) {
	seq := "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACG"
	db := buildOneSnpDB(t, 0x1234, 0, seq)

	// A window whose low bits (bloom address, since the encoding places
	// base 0 in the low bits) can never match seq's, since it starts
	// with a run of Gs where seq starts with A.
	miss := "GGGG" + "GGGG" + "GGGG" + "GGGG" + "GGGG" + "GGGG" + "GGGG" + "GGG"
	path := writeFastqRecords(t, []string{miss})

	scanner := NewScanner(db, 1)
	matches, err := scanner.ScanFile(path)
	if err != nil {
		t.Fatalf("ScanFile: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
	if scanner.counters.rangeProbes != 0 {
		t.Fatalf("expected the bloom filter to suppress every range probe, got %d probes", scanner.counters.rangeProbes)
	}
	if scanner.counters.bloomTests == 0 {
		t.Fatalf("expected at least one bloom test to have run")
	}
}

func TestE6SortedTieBreakDoesNotEarlyExit(t *testing.T) {
	// Two SNPs whose k-mers share an L-mer prefix (both offset 0, same
	// database) but differ in their low bits, so one sorts after the
	// other within their shared range.
	dir := t.TempDir()
	path := filepath.Join(dir, "canonical.bin")

	seqLow := "AAAA" + "AAAA" + "AAAA" + "AAAA" + "AAAA" + "AAAA" + "AAAA" + "AAA"
	seqHigh := "CAAA" + "AAAA" + "AAAA" + "AAAA" + "AAAA" + "AAAA" + "AAAA" + "AAA"

	kmerLow := codec.EncodeKmer([]byte(seqLow))
	kmerHigh := codec.EncodeKmer([]byte(seqHigh))
	if kmerLow > kmerHigh {
		kmerLow, kmerHigh = kmerHigh, kmerLow
		seqLow, seqHigh = seqHigh, seqLow
	}

	type rec struct {
		coord uint64
		kmer  uint64
	}
	recs := []rec{
		{coord: 100, kmer: kmerLow},
		{coord: 200, kmer: kmerHigh},
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].kmer < recs[j].kmer })

	fh, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating canonical file: %v", err)
	}
	var buf [16]byte
	for _, r := range recs {
		snpWithOffset := r.coord << 8
		binary.LittleEndian.PutUint64(buf[0:8], snpWithOffset)
		binary.LittleEndian.PutUint64(buf[8:16], r.kmer)
		if _, err := fh.Write(buf[:]); err != nil {
			t.Fatalf("writing canonical record: %v", err)
		}
	}
	fh.Close()

	params, err := index.NewParams(20, 42)
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	db, err := index.Build(path, index.BuildOptions{Params: params})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	readPath := writeFastqRecords(t, []string{seqHigh})
	tallies := scanAndTabulate(t, db, readPath)
	if len(tallies) != 1 {
		t.Fatalf("got %d tallies, want 1 (the higher-sorted k-mer must still be found)", len(tallies))
	}
	if tallies[0].Coord != 200 {
		t.Fatalf("got coord %d, want 200", tallies[0].Coord)
	}
}

func TestE7DuplicateKmerDistinctSnpsBothRecorded(t *testing.T) {
	// Two distinct SNPs whose k-mer index entries reconstruct to the
	// identical 62-bit value within one L-mer range: a read carrying
	// that k-mer must record both, so a match on kmer == dbKmer must
	// not break the range scan before later, equal-valued entries are
	// visited (§4.8 step 4e only authorizes an early exit on kmer <
	// dbKmer).
	dir := t.TempDir()
	path := filepath.Join(dir, "canonical.bin")

	seq := "AAAA" + "AAAA" + "AAAA" + "AAAA" + "AAAA" + "AAAA" + "AAAA" + "AAA"
	kmer := codec.EncodeKmer([]byte(seq))

	fh, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating canonical file: %v", err)
	}
	var buf [16]byte
	for _, coord := range []uint64{100, 200} {
		snpWithOffset := coord << 8
		binary.LittleEndian.PutUint64(buf[0:8], snpWithOffset)
		binary.LittleEndian.PutUint64(buf[8:16], kmer)
		if _, err := fh.Write(buf[:]); err != nil {
			t.Fatalf("writing canonical record: %v", err)
		}
	}
	fh.Close()

	params, err := index.NewParams(20, 42)
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	db, err := index.Build(path, index.BuildOptions{Params: params})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	readPath := writeFastqRecords(t, []string{seq})
	tallies := scanAndTabulate(t, db, readPath)
	if len(tallies) != 2 {
		t.Fatalf("got %d tallies, want 2 (both SNPs sharing the identical k-mer)", len(tallies))
	}
	seen := map[uint64]int{}
	for _, tal := range tallies {
		seen[tal.Coord] = tal.Count
	}
	if seen[100] != 1 || seen[200] != 1 {
		t.Fatalf("got tallies %+v, want coord 100 and 200 each with count 1", tallies)
	}
}

func TestTruncatedSequenceLineAboveTokenCapIsFatal(t *testing.T) {
	seq := "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACGT" + "ACG"
	db := buildOneSnpDB(t, 0x1234, 0, seq)

	// A sequence line long enough to trip the token cap partway through,
	// then cut off before its trailing newline: still a token in
	// progress at EOF and must be fatal, capped or not.
	long := ""
	for len(long) < maxTokenLength+50 {
		long += "ACGT"
	}
	path := writeTruncatedFastq(t, long)

	scanner := NewScanner(db, 1)
	_, err := scanner.ScanFile(path)
	if err == nil {
		t.Fatalf("expected a fatal error for a truncated sequence line above the token cap")
	}
}
