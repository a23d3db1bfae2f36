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

// Package index builds and serves the four on-disk components of an
// optimized genotyping database: the SNP table, the sorted k-mer index,
// the L-mer range index and the M-mer bloom filter.
package index

import "github.com/pkg/errors"

// Database is the queryable, built form of an optimized genotyping
// database. A freshly Built or preloaded Database holds its four
// components as plain slices; a Database opened over persisted files in
// the default (non-preload) mode instead holds them behind store, a
// read-only memory map. Every query method checks store first so
// callers never need to know which mode backs a given Database.
type Database struct {
	Params Params

	SnpTable  []SnpRecord
	KmerIndex []KmerIndexEntry
	LmerIndex []LmerRange
	Bloom     []uint64

	store *mmapStorage
}

// NumKmers returns the number of entries in the sorted k-mer index,
// i.e. the number of canonical database records the index was built
// from.
func (db *Database) NumKmers() int {
	if db.store != nil {
		return db.store.KmerIndexLen()
	}
	return len(db.KmerIndex)
}

// KmerIndexEntryAt returns the i-th entry of the sorted k-mer index.
func (db *Database) KmerIndexEntryAt(i int) KmerIndexEntry {
	if db.store != nil {
		return db.store.KmerIndexAt(i)
	}
	return db.KmerIndex[i]
}

// Snp returns the SnpRecord for a given SNP identifier.
func (db *Database) Snp(id SnpId) SnpRecord {
	if db.store != nil {
		return db.store.SnpAt(id)
	}
	return db.SnpTable[id]
}

// LmerRangeFor returns the range of KmerIndex covered by a given L-mer.
func (db *Database) LmerRangeFor(lmer uint64) LmerRange {
	if db.store != nil {
		return db.store.LmerRangeAt(lmer)
	}
	return db.LmerIndex[lmer]
}

// BloomTest reports whether an M-mer's bit is set. A false result is
// conclusive proof the M-mer's k-mer is absent from the database; a
// true result requires the L-mer range probe to confirm.
func (db *Database) BloomTest(mmer uint64) bool {
	if db.store != nil {
		return db.store.BloomBit(mmer)
	}
	return db.Bloom[mmer>>6]&(1<<(mmer&63)) != 0
}

// Close releases resources held by a memory-mapped Database. It is a
// no-op for freshly built or preloaded databases.
func (db *Database) Close() error {
	if db.store != nil {
		return db.store.Close()
	}
	return nil
}

// Open loads (or, if necessary, builds and persists) the optimized
// database rooted at base for the canonical database at canonicalPath,
// per the loader policy of §4.6/§9: if either the SNP table or the
// k-mer index is missing or size-mismatched, the whole database is
// rebuilt from canonicalPath and persisted before use; a
// component-by-component patch-up is never attempted. preload selects
// whether the four components are fully read into RAM (true) or served
// through a read-only memory map (false, the default).
func Open(canonicalPath, base string, p Params, preload bool, opt BuildOptions) (*Database, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	nRecords, err := CanonicalCount(canonicalPath)
	if err != nil {
		return nil, err
	}

	if !persistedSizesOK(base, p, nRecords) {
		opt.Params = p
		db, err := Build(canonicalPath, opt)
		if err != nil {
			return nil, errors.Wrap(err, "index: building database")
		}
		if err := Persist(base, db); err != nil {
			return nil, errors.Wrap(err, "index: persisting database")
		}
		return db, nil
	}

	if preload {
		m, err := loadPreload(base, p)
		if err != nil {
			return nil, err
		}
		return &Database{
			Params:    p,
			SnpTable:  m.snpTable,
			KmerIndex: m.kmerIndex,
			LmerIndex: m.lmerIndex,
			Bloom:     m.bloom,
		}, nil
	}

	ms, err := loadMmap(base, p)
	if err != nil {
		return nil, err
	}
	return &Database{Params: p, store: ms}, nil
}
