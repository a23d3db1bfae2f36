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
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/shenwei356/gtdb/index"
	"github.com/twotwotwo/sorts/sortutil"
)

// Tally is one line of a scan's output: a SNP coordinate and the
// number of reads it was found in.
type Tally struct {
	Coord uint64
	Count int
}

// Tabulate replaces each match's SnpId with its coordinate, sorts
// ascending, and run-length-encodes into Tally records, per §4.8
// "Output".
func Tabulate(db *index.Database, matches []index.SnpId) []Tally {
	coords := make([]uint64, len(matches))
	for i, id := range matches {
		coords[i] = db.Snp(id).Coord
	}
	sortutil.Uint64s(coords)

	if len(coords) == 0 {
		return nil
	}

	tallies := make([]Tally, 0, len(coords))
	cur := coords[0]
	count := 1
	for _, c := range coords[1:] {
		if c == cur {
			count++
			continue
		}
		tallies = append(tallies, Tally{Coord: cur, Count: count})
		cur = c
		count = 1
	}
	tallies = append(tallies, Tally{Coord: cur, Count: count})
	return tallies
}

// WriteTSV writes tallies to path as "<coord>\t<count>\n" lines,
// ascending by coordinate, per §6. An empty tally list still produces
// an empty file.
func WriteTSV(path string, tallies []Tally) error {
	fh, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating output file: %s", path)
	}
	defer fh.Close()

	w := bufio.NewWriter(fh)
	for _, t := range tallies {
		if _, err := fmt.Fprintf(w, "%d\t%d\n", t.Coord, t.Count); err != nil {
			return errors.Wrapf(err, "writing output file: %s", path)
		}
	}
	return w.Flush()
}

// OutputPath builds the per-input output path of §4.8: "<prefix>.<channel>.tsv".
func OutputPath(prefix string, channel int) string {
	return fmt.Sprintf("%s.%d.tsv", prefix, channel)
}
