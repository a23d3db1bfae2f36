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
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/shenwei356/gtdb/codec"
)

func truncateFile(path string) error {
	return os.Truncate(path, 1)
}

func buildTestDatabase(t *testing.T, seed int64, nSnps int, params Params) (*Database, string) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))

	var recs []CanonicalRecord
	for s := 0; s < nSnps; s++ {
		coord := uint64(9000 + s)
		window := randomWindow(rng)
		for offset := uint8(0); offset < codec.K; offset++ {
			recs = append(recs, CanonicalRecord{
				Coord:  coord,
				Offset: offset,
				Kmer:   kmerFromWindow(window, offset),
			})
		}
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "canonical.bin")
	writeCanonical(t, path, recs)

	db, err := Build(path, BuildOptions{Params: params})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return db, path
}

func TestPersistAndOpenMmapRoundTrip(t *testing.T) {
	params, err := NewParams(20, 42)
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	db, canonicalPath := buildTestDatabase(t, 101, 5, params)

	base := filepath.Join(t.TempDir(), "gtdb")
	if err := Persist(base, db); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	loaded, err := Open(canonicalPath, base, params, false, BuildOptions{})
	if err != nil {
		t.Fatalf("Open (mmap): %v", err)
	}
	defer loaded.Close()

	if loaded.NumKmers() != db.NumKmers() {
		t.Fatalf("NumKmers mismatch: got %d, want %d", loaded.NumKmers(), db.NumKmers())
	}
	for i := 0; i < db.NumKmers(); i++ {
		if loaded.KmerIndexEntryAt(i) != db.KmerIndexEntryAt(i) {
			t.Fatalf("k-mer index entry %d differs after mmap round trip", i)
		}
	}
	for id := range db.SnpTable {
		if loaded.Snp(SnpId(id)) != db.Snp(SnpId(id)) {
			t.Fatalf("SNP record %d differs after mmap round trip", id)
		}
	}
	for lmer := 0; lmer < len(db.LmerIndex); lmer++ {
		if loaded.LmerRangeFor(uint64(lmer)) != db.LmerRangeFor(uint64(lmer)) {
			t.Fatalf("l-mer range %d differs after mmap round trip", lmer)
		}
	}
	// The bloom address space is 2^M bits, far too large to walk in full;
	// spot-check the words actually touched by Build (derived from every
	// k-mer in the index) plus a handful that must stay unset.
	mMask := uint64(1)<<params.M - 1
	for i := range db.KmerIndex {
		entry := db.KmerIndexEntryAt(i)
		kmer := ReconstructKmer(db.Snp(entry.SnpId()), entry.Offset())
		mmer := kmer & mMask
		if !loaded.BloomTest(mmer) || !db.BloomTest(mmer) {
			t.Fatalf("bloom bit for k-mer index entry %d not set", i)
		}
	}
	for _, mmer := range []uint64{0, mMask, mMask / 2} {
		if loaded.BloomTest(mmer) != db.BloomTest(mmer) {
			t.Fatalf("bloom bit %d differs between mmap and in-memory database", mmer)
		}
	}
}

func TestPersistAndOpenPreloadRoundTrip(t *testing.T) {
	params, err := NewParams(20, 42)
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	db, canonicalPath := buildTestDatabase(t, 202, 5, params)

	base := filepath.Join(t.TempDir(), "gtdb")
	if err := Persist(base, db); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	loaded, err := Open(canonicalPath, base, params, true, BuildOptions{})
	if err != nil {
		t.Fatalf("Open (preload): %v", err)
	}
	defer loaded.Close()

	if loaded.NumKmers() != db.NumKmers() {
		t.Fatalf("NumKmers mismatch: got %d, want %d", loaded.NumKmers(), db.NumKmers())
	}
	for i := 0; i < db.NumKmers(); i++ {
		if loaded.KmerIndexEntryAt(i) != db.KmerIndexEntryAt(i) {
			t.Fatalf("k-mer index entry %d differs after preload round trip", i)
		}
	}
}

func TestOpenRebuildsOnSizeMismatch(t *testing.T) {
	params, err := NewParams(20, 42)
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	db, canonicalPath := buildTestDatabase(t, 303, 3, params)

	base := filepath.Join(t.TempDir(), "gtdb")
	if err := Persist(base, db); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	// Corrupt the k-mer index file's size so the loader must detect the
	// mismatch and rebuild from the canonical database instead.
	_, kmerPath, _, _ := Filenames(base, params)
	if err := truncateFile(kmerPath); err != nil {
		t.Fatalf("truncating k-mer index: %v", err)
	}

	loaded, err := Open(canonicalPath, base, params, false, BuildOptions{})
	if err != nil {
		t.Fatalf("Open after corruption: %v", err)
	}
	defer loaded.Close()

	if loaded.NumKmers() != db.NumKmers() {
		t.Fatalf("rebuilt database has %d k-mers, want %d", loaded.NumKmers(), db.NumKmers())
	}
}
