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

// Package codec implements the nucleotide-to-2-bit alphabet and the
// bit-packed k-mer encoding shared by the index builder and the
// streaming scanner.
package codec

// Sentinel is returned by Encode for any byte outside {A,C,G,T,a,c,g,t}.
const Sentinel = 0xFF

// encodeTable maps every possible byte value to its 2-bit code, or to
// Sentinel for non-ACGT bytes. Built once at package init and never
// mutated afterwards, so it is safe to share across goroutines.
var encodeTable [256]byte

// decodeTable maps a 2-bit code back to its upper-case base letter.
var decodeTable = [4]byte{'A', 'C', 'G', 'T'}

func init() {
	for i := range encodeTable {
		encodeTable[i] = Sentinel
	}
	encodeTable['A'], encodeTable['a'] = 0, 0
	encodeTable['C'], encodeTable['c'] = 1, 1
	encodeTable['G'], encodeTable['g'] = 2, 2
	encodeTable['T'], encodeTable['t'] = 3, 3
}

// Encode returns the 2-bit code of c (0,1,2,3 for A,C,G,T, case
// insensitive) or Sentinel if c is not a nucleotide letter.
func Encode(c byte) byte {
	return encodeTable[c]
}

// Decode returns the upper-case base letter for a 2-bit code in [0,3].
func Decode(code byte) byte {
	return decodeTable[code&3]
}

// IsBase reports whether c is one of A,C,G,T,a,c,g,t.
func IsBase(c byte) bool {
	return encodeTable[c] != Sentinel
}
