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

// overlayShift returns the shift amount s = K2 - 2*offset used to place
// the low, SNP-proximal bases of a k-mer into the high bits of
// SnpRecord.Low, per §4.3. offset must be in [0, codec.K).
func overlayShift(offset uint8) uint {
	return uint(K2 - 2*uint32(offset))
}

// K2 mirrors codec.K2 without importing codec into every call site of
// this file's arithmetic; kept as a plain constant to match the
// bit-width used throughout §4.3.
const K2 = 62

// lowMask and highMask return the bit ranges of SnpRecord.Low/.High
// that a k-mer at the given offset contributes to (and therefore that
// two k-mers covering the same SNP must agree on wherever they
// overlap).
func lowMask(offset uint8) uint64 {
	return ^uint64(0) << overlayShift(offset)
}

func highMask(offset uint8) uint64 {
	s := overlayShift(offset)
	if s >= 64 {
		return 0
	}
	return uint64(1)<<s - 1
}

// splitKmer computes the (low_bits, high_bits) contribution of a k-mer
// covering a SNP at offset, per §4.3.
func splitKmer(kmer uint64, offset uint8) (low, high uint64) {
	s := overlayShift(offset)
	low = kmer << s
	high = kmer >> (2 * uint(offset))
	return
}

// ReconstructKmer rebuilds the K2-bit k-mer that a SnpRecord and offset
// represent, per §4.3:
//
//	low  = record.low  >> (62 - 2*offset)
//	high = record.high << (2*offset)
//	k    = (high | low) & ((1<<62) - 1)
func ReconstructKmer(rec SnpRecord, offset uint8) uint64 {
	s := overlayShift(offset)
	low := rec.Low >> s
	high := rec.High << (2 * uint(offset))
	return (high | low) & (1<<K2 - 1)
}

// OverlayConsistent checks the redundant-overlap invariant of §4.3:
// the SNP's 2 bits appear identically as the top 2 bits of Low and the
// bottom 2 bits of High.
func OverlayConsistent(rec SnpRecord) bool {
	return rec.Low>>62 == rec.High&0x3
}
