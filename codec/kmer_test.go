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

package codec

import (
	"bytes"
	"math/rand"
	"testing"
)

// TestKmerRoundTrip is testable property 1 from the specification:
// for every 31-base string over {A,C,G,T}, decoding EncodeKmer(s)
// reproduces s.
func TestKmerRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	bases := []byte("ACGT")
	for trial := 0; trial < 200; trial++ {
		s := make([]byte, K)
		for i := range s {
			s[i] = bases[rng.Intn(4)]
		}
		kmer := EncodeKmer(s)
		if kmer>>K2 != 0 {
			t.Fatalf("EncodeKmer(%s) = %d, exceeds 2^%d", s, kmer, K2)
		}
		got := DecodeKmer(kmer)
		if !bytes.Equal(got, s) {
			t.Fatalf("round trip mismatch: %s -> %d -> %s", s, kmer, got)
		}
	}
}

func TestEncodeKmerBitLayout(t *testing.T) {
	// base 0 (first) occupies bits 0,1 (low order); base K-1 (last)
	// occupies bits 2(K-1),2(K-1)+1 (high order).
	s := make([]byte, K)
	for i := range s {
		s[i] = 'A'
	}
	s[0] = 'C'      // first base -> low bits
	s[K-1] = 'G' // last base -> high bits

	kmer := EncodeKmer(s)
	if kmer&3 != 1 {
		t.Errorf("first base should occupy the low 2 bits, got %d", kmer&3)
	}
	if (kmer>>uint((K-1)*BitsPerBase))&3 != 2 {
		t.Errorf("last base should occupy the top 2 bits, got %d", (kmer>>uint((K-1)*BitsPerBase))&3)
	}
}
