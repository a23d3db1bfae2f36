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
	"encoding/binary"

	"github.com/shenwei356/gtdb/index"
	"github.com/zeebo/wyhash"
)

// footprint is the per-read deduplication set of §4.8: a SnpId is
// recorded in the match list only the first time it is seen within the
// current read, and the set is reset at every read boundary, never at
// a token boundary. It is a small open-addressed hash set rather than
// a Go map to avoid the map's per-read allocation churn in the hot
// scanning loop.
type footprint struct {
	slots []uint32 // 0 means empty; SnpId is stored +1 to reserve 0
	seed  uint64
	n     int
}

const footprintEmpty = 0

func newFootprint(seed uint64) *footprint {
	return &footprint{
		slots: make([]uint32, 64),
		seed:  seed,
	}
}

// reset clears the set for the next read, reusing the backing array
// whenever it hasn't grown unreasonably large for a single read.
func (f *footprint) reset() {
	if f.n == 0 {
		return
	}
	if len(f.slots) > 4096 {
		f.slots = make([]uint32, 64)
	} else {
		for i := range f.slots {
			f.slots[i] = footprintEmpty
		}
	}
	f.n = 0
}

func (f *footprint) hash(id index.SnpId) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(id))
	return wyhash.Hash(buf[:], f.seed)
}

// addIfNew reports whether id was not already present, inserting it if
// so.
func (f *footprint) addIfNew(id index.SnpId) bool {
	if f.n*2 >= len(f.slots) {
		f.grow()
	}

	mask := uint64(len(f.slots) - 1)
	i := f.hash(id) & mask
	for {
		v := f.slots[i]
		if v == footprintEmpty {
			f.slots[i] = uint32(id) + 1
			f.n++
			return true
		}
		if v-1 == uint32(id) {
			return false
		}
		i = (i + 1) & mask
	}
}

func (f *footprint) grow() {
	old := f.slots
	f.slots = make([]uint32, len(old)*2)
	mask := uint64(len(f.slots) - 1)
	for _, v := range old {
		if v == footprintEmpty {
			continue
		}
		id := v - 1
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], id)
		i := wyhash.Hash(buf[:], f.seed) & mask
		for f.slots[i] != footprintEmpty {
			i = (i + 1) & mask
		}
		f.slots[i] = v
	}
}
