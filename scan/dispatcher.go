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
	"sync"

	"github.com/pkg/errors"
	"github.com/shenwei356/gtdb/index"
)

// FileResult is the outcome of scanning one input file.
type FileResult struct {
	Channel int
	Path    string
	Out     string
	Tallies []Tally
	Err     error
}

// ProgressFunc is called periodically during a file's scan, per
// Scanner.OnProgress; nil disables progress reporting.
type ProgressFunc func(path string, reads int64)

// Dispatch runs one Scanner per input file, in rounds of up to
// maxWorkers concurrent files, per §4.9: "spawn workers for the next
// slice of input files, join all before starting the next round". The
// index db is read-only and shared by every worker without
// synchronization. outPrefix names each output "<outPrefix>.<channel>.tsv"
// where channel is the input's 0-based position in files.
func Dispatch(db *index.Database, files []string, outPrefix string, maxWorkers int, onProgress ProgressFunc) []FileResult {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	results := make([]FileResult, len(files))

	for roundStart := 0; roundStart < len(files); roundStart += maxWorkers {
		roundEnd := roundStart + maxWorkers
		if roundEnd > len(files) {
			roundEnd = len(files)
		}

		var wg sync.WaitGroup
		for i := roundStart; i < roundEnd; i++ {
			wg.Add(1)
			go func(channel int) {
				defer wg.Done()
				results[channel] = scanOne(db, files[channel], outPrefix, channel, onProgress)
			}(i)
		}
		wg.Wait()
	}

	return results
}

func scanOne(db *index.Database, path, outPrefix string, channel int, onProgress ProgressFunc) FileResult {
	res := FileResult{Channel: channel, Path: path, Out: OutputPath(outPrefix, channel)}

	scanner := NewScanner(db, uint64(channel)+1)
	if onProgress != nil {
		scanner.OnProgress = func(reads int64) { onProgress(path, reads) }
	}
	matches, err := scanner.ScanFile(path)
	if err != nil {
		res.Err = errors.Wrapf(err, "scanning %s", path)
		return res
	}

	res.Tallies = Tabulate(db, matches)
	if err := WriteTSV(res.Out, res.Tallies); err != nil {
		res.Err = err
	}
	return res
}
