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
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// fileWriteBufSize matches the scanner's chunk size (§4.8) so that all
// large sequential I/O in the engine shares one tuning constant.
const fileWriteBufSize = 32 << 20

// Filenames returns the four persisted index paths for a base path and
// parameter set, per §4.6.
func Filenames(base string, p Params) (snps, kmerIndex, lmerIndex, bloom string) {
	snps = fmt.Sprintf("%s_optimized_db_snps.bin", base)
	kmerIndex = fmt.Sprintf("%s_optimized_db_kmer_index_%d.bin", base, p.M2)
	lmerIndex = fmt.Sprintf("%s_optimized_db_lmer_index_%d.bin", base, p.L)
	bloom = fmt.Sprintf("%s_optimized_db_mmer_bloom_%d.bin", base, p.M)
	return
}

const (
	snpRecordSize = 24 // 3 uint64 fields
	kmerEntrySize = 4
	lmerRangeSize = 8
	bloomWordSize = 8
)

// persistedSizesOK reports whether the four files exist and have sizes
// consistent with the expected element counts, per the loader policy
// of §4.6. nRecords is the canonical database's record count, which
// determines the expected k-mer index length.
func persistedSizesOK(base string, p Params, nRecords int64) (ok bool) {
	snpsPath, kmerPath, lmerPath, bloomPath := Filenames(base, p)

	kmerSize, ok1 := fileSize(kmerPath)
	snpSize, ok2 := fileSize(snpsPath)
	lmerSize, ok3 := fileSize(lmerPath)
	bloomSize, ok4 := fileSize(bloomPath)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return false
	}

	if kmerSize != nRecords*kmerEntrySize {
		return false
	}
	if snpSize <= 0 || snpSize%snpRecordSize != 0 {
		return false
	}
	if lmerSize != int64(1<<p.L)*lmerRangeSize {
		return false
	}
	if bloomSize != int64(uint64(1)<<p.M/64)*bloomWordSize {
		return false
	}
	return true
}

func fileSize(path string) (int64, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return fi.Size(), true
}

// Persist writes the four components of db to disk under base, in the
// raw little-endian layout of §4.6 (no headers). db must not be
// mmap-backed.
func Persist(base string, db *Database) error {
	if db.store != nil {
		return errors.New("index: Persist requires an in-memory database, not an mmap-backed one")
	}
	snpsPath, kmerPath, lmerPath, bloomPath := Filenames(base, db.Params)

	if err := writeUint64Triples(snpsPath, db.SnpTable); err != nil {
		return errors.Wrap(err, "writing SNP table")
	}
	if err := writeUint32s(kmerPath, db.KmerIndex); err != nil {
		return errors.Wrap(err, "writing k-mer index")
	}
	if err := writeUint64s(lmerPath, asUint64Slice(db.LmerIndex)); err != nil {
		return errors.Wrap(err, "writing l-mer index")
	}
	if err := writeUint64s(bloomPath, db.Bloom); err != nil {
		return errors.Wrap(err, "writing bloom filter")
	}
	return nil
}

func asUint64Slice(r []LmerRange) []uint64 {
	out := make([]uint64, len(r))
	for i, v := range r {
		out[i] = uint64(v)
	}
	return out
}

func writeUint64Triples(path string, recs []SnpRecord) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	w := bufio.NewWriterSize(fh, fileWriteBufSize)
	var buf [24]byte
	for _, r := range recs {
		binary.LittleEndian.PutUint64(buf[0:8], r.Low)
		binary.LittleEndian.PutUint64(buf[8:16], r.High)
		binary.LittleEndian.PutUint64(buf[16:24], r.Coord)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeUint32s(path string, vs []KmerIndexEntry) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	w := bufio.NewWriterSize(fh, fileWriteBufSize)
	var buf [4]byte
	for _, v := range vs {
		binary.LittleEndian.PutUint32(buf[:], uint32(v))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeUint64s(path string, vs []uint64) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	w := bufio.NewWriterSize(fh, fileWriteBufSize)
	var buf [8]byte
	for _, v := range vs {
		binary.LittleEndian.PutUint64(buf[:], v)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return w.Flush()
}

// preloaded holds the four components fully decoded in RAM, as read
// from disk in preload mode.
type preloaded struct {
	snpTable  []SnpRecord
	kmerIndex []KmerIndexEntry
	lmerIndex []LmerRange
	bloom     []uint64
}

// loadPreload reads all four files fully into RAM.
func loadPreload(base string, p Params) (*preloaded, error) {
	snpsPath, kmerPath, lmerPath, bloomPath := Filenames(base, p)

	snpBytes, err := os.ReadFile(snpsPath)
	if err != nil {
		return nil, errors.Wrap(err, "preloading SNP table")
	}
	kmerBytes, err := os.ReadFile(kmerPath)
	if err != nil {
		return nil, errors.Wrap(err, "preloading k-mer index")
	}
	lmerBytes, err := os.ReadFile(lmerPath)
	if err != nil {
		return nil, errors.Wrap(err, "preloading l-mer index")
	}
	bloomBytes, err := os.ReadFile(bloomPath)
	if err != nil {
		return nil, errors.Wrap(err, "preloading bloom filter")
	}

	m := &preloaded{
		snpTable:  make([]SnpRecord, len(snpBytes)/snpRecordSize),
		kmerIndex: make([]KmerIndexEntry, len(kmerBytes)/kmerEntrySize),
		lmerIndex: make([]LmerRange, len(lmerBytes)/lmerRangeSize),
		bloom:     make([]uint64, len(bloomBytes)/bloomWordSize),
	}
	for i := range m.snpTable {
		b := snpBytes[i*snpRecordSize:]
		m.snpTable[i] = SnpRecord{
			Low:   binary.LittleEndian.Uint64(b[0:8]),
			High:  binary.LittleEndian.Uint64(b[8:16]),
			Coord: binary.LittleEndian.Uint64(b[16:24]),
		}
	}
	for i := range m.kmerIndex {
		m.kmerIndex[i] = KmerIndexEntry(binary.LittleEndian.Uint32(kmerBytes[i*kmerEntrySize:]))
	}
	for i := range m.lmerIndex {
		m.lmerIndex[i] = LmerRange(binary.LittleEndian.Uint64(lmerBytes[i*lmerRangeSize:]))
	}
	for i := range m.bloom {
		m.bloom[i] = binary.LittleEndian.Uint64(bloomBytes[i*bloomWordSize:])
	}
	return m, nil
}

// mmapStorage backs the four components with read-only memory maps via
// golang.org/x/exp/mmap, decoding each element on access. This is the
// default persistence mode (no -p flag).
type mmapStorage struct {
	snps  *mmap.ReaderAt
	kmers *mmap.ReaderAt
	lmers *mmap.ReaderAt
	bloom *mmap.ReaderAt
}

func loadMmap(base string, p Params) (*mmapStorage, error) {
	snpsPath, kmerPath, lmerPath, bloomPath := Filenames(base, p)

	snps, err := mmap.Open(snpsPath)
	if err != nil {
		return nil, errors.Wrap(err, "mmapping SNP table")
	}
	kmers, err := mmap.Open(kmerPath)
	if err != nil {
		snps.Close()
		return nil, errors.Wrap(err, "mmapping k-mer index")
	}
	lmers, err := mmap.Open(lmerPath)
	if err != nil {
		snps.Close()
		kmers.Close()
		return nil, errors.Wrap(err, "mmapping l-mer index")
	}
	bloom, err := mmap.Open(bloomPath)
	if err != nil {
		snps.Close()
		kmers.Close()
		lmers.Close()
		return nil, errors.Wrap(err, "mmapping bloom filter")
	}

	return &mmapStorage{snps: snps, kmers: kmers, lmers: lmers, bloom: bloom}, nil
}

func (s *mmapStorage) KmerIndexLen() int { return s.kmers.Len() / kmerEntrySize }

func (s *mmapStorage) KmerIndexAt(i int) KmerIndexEntry {
	var buf [4]byte
	if _, err := s.kmers.ReadAt(buf[:], int64(i)*kmerEntrySize); err != nil {
		panic(err)
	}
	return KmerIndexEntry(binary.LittleEndian.Uint32(buf[:]))
}

func (s *mmapStorage) SnpAt(id SnpId) SnpRecord {
	var buf [24]byte
	if _, err := s.snps.ReadAt(buf[:], int64(id)*snpRecordSize); err != nil {
		panic(err)
	}
	return SnpRecord{
		Low:   binary.LittleEndian.Uint64(buf[0:8]),
		High:  binary.LittleEndian.Uint64(buf[8:16]),
		Coord: binary.LittleEndian.Uint64(buf[16:24]),
	}
}

func (s *mmapStorage) LmerRangeAt(lmer uint64) LmerRange {
	var buf [8]byte
	if _, err := s.lmers.ReadAt(buf[:], int64(lmer)*lmerRangeSize); err != nil {
		panic(err)
	}
	return LmerRange(binary.LittleEndian.Uint64(buf[:]))
}

func (s *mmapStorage) BloomBit(mmer uint64) bool {
	var buf [8]byte
	if _, err := s.bloom.ReadAt(buf[:], int64(mmer>>6)*bloomWordSize); err != nil {
		panic(err)
	}
	word := binary.LittleEndian.Uint64(buf[:])
	return word&(1<<(mmer&63)) != 0
}

func (s *mmapStorage) Close() error {
	var firstErr error
	for _, c := range []*mmap.ReaderAt{s.snps, s.kmers, s.lmers, s.bloom} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
