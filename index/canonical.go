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
	"io"
	"os"

	"github.com/pkg/errors"
)

// CanonicalRecordSize is the size in bytes of one canonical database
// record: (snp_with_offset: u64 LE, kmer: u64 LE), per §6.
const CanonicalRecordSize = 16

// CanonicalRecord is one entry of the externally-produced canonical
// database. Offset is the low 8 bits of the on-disk snp_with_offset
// word; Coord is the high 56 bits, shifted down (i.e. Coord<<8|Offset
// is the raw on-disk value), matching how SnpRecord.Coord stores it (§4.3:
// "shifted right by 8").
type CanonicalRecord struct {
	Coord  uint64
	Offset uint8
	Kmer   uint64
}

// CanonicalReader streams canonical database records in file order,
// which per §6 must already be ascending by Kmer.
type CanonicalReader struct {
	fh *os.File
	r  *bufio.Reader
	buf [CanonicalRecordSize]byte
}

// canonicalReaderBufSize matches the ~32MiB chunking used elsewhere in
// this engine (§4.8) for consistent I/O behavior across components.
const canonicalReaderBufSize = 32 << 20

// OpenCanonical opens a canonical database file for streaming.
func OpenCanonical(path string) (*CanonicalReader, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening canonical database: %s", path)
	}
	return &CanonicalReader{
		fh: fh,
		r:  bufio.NewReaderSize(fh, canonicalReaderBufSize),
	}, nil
}

// Next returns the next record, or io.EOF when the file is exhausted.
// A trailing partial record is a corrupt-database error.
func (c *CanonicalReader) Next() (CanonicalRecord, error) {
	n, err := io.ReadFull(c.r, c.buf[:])
	if err == io.EOF {
		return CanonicalRecord{}, io.EOF
	}
	if err != nil || n != CanonicalRecordSize {
		return CanonicalRecord{}, errors.New("index: canonical database has a truncated trailing record")
	}
	snpWithOffset := binary.LittleEndian.Uint64(c.buf[0:8])
	kmer := binary.LittleEndian.Uint64(c.buf[8:16])
	return CanonicalRecord{
		Coord:  snpWithOffset >> 8,
		Offset: uint8(snpWithOffset),
		Kmer:   kmer,
	}, nil
}

// Close closes the underlying file.
func (c *CanonicalReader) Close() error {
	return c.fh.Close()
}

// CanonicalCount returns the number of records in a canonical database file
// without reading it, using its size.
func CanonicalCount(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, errors.Wrapf(err, "stat canonical database: %s", path)
	}
	if fi.Size()%CanonicalRecordSize != 0 {
		return 0, errors.Errorf("index: canonical database size %d is not a multiple of %d bytes", fi.Size(), CanonicalRecordSize)
	}
	return fi.Size() / CanonicalRecordSize, nil
}
