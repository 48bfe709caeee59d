// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bitset implements a large, resizable flag vector backed by
// 64-bit words. It is used by package buddy for the per-size free-flags
// mask and is otherwise a general-purpose building block.
package bitset

import "github.com/cznic/mathutil"

const wordBits = 64

// A Set is a growable vector of bits, word backed for cache density. The
// zero value is an empty set ready for use.
type Set struct {
	words []uint64
	n     int // number of addressable bits
}

// New returns a Set with n bits, all clear.
func New(n int) *Set {
	s := &Set{}
	s.Grow(n)
	return s
}

// Len returns the number of addressable bits.
func (s *Set) Len() int { return s.n }

// Grow extends the set so that bits [0, n) are addressable, leaving any new
// bits clear. Shrinking is not supported; n <= s.Len() is a no-op.
func (s *Set) Grow(n int) {
	if n <= s.n {
		return
	}
	need := (n + wordBits - 1) / wordBits
	if need > len(s.words) {
		grown := make([]uint64, need)
		copy(grown, s.words)
		s.words = grown
	}
	s.n = n
}

func (s *Set) checkBit(i int) {
	if i < 0 || i >= s.n {
		panic("bitset: index out of range")
	}
}

// Set sets bit i.
func (s *Set) Set(i int) {
	s.checkBit(i)
	s.words[i/wordBits] |= 1 << uint(i%wordBits)
}

// Clear resets bit i.
func (s *Set) Clear(i int) {
	s.checkBit(i)
	s.words[i/wordBits] &^= 1 << uint(i%wordBits)
}

// Test reports whether bit i is set.
func (s *Set) Test(i int) bool {
	s.checkBit(i)
	return s.words[i/wordBits]&(1<<uint(i%wordBits)) != 0
}

// SetRange sets run bits starting at bit, mirroring uBits.uOn.
func (s *Set) SetRange(bit, run int) {
	s.rangeOp(bit, run, func(w *uint64, mask uint64) { *w |= mask })
}

// ClearRange resets run bits starting at bit, mirroring uBits.uOff.
func (s *Set) ClearRange(bit, run int) {
	s.rangeOp(bit, run, func(w *uint64, mask uint64) { *w &^= mask })
}

func (s *Set) rangeOp(bit, run int, apply func(w *uint64, mask uint64)) {
	if run == 0 {
		return
	}
	s.checkBit(bit)
	s.checkBit(bit + run - 1)
	for rem, pos := run, bit; rem > 0; {
		word := pos / wordBits
		off := pos % wordBits
		n := mathutil.Min(wordBits-off, rem)
		mask := uint64(0)
		if n == wordBits {
			mask = ^uint64(0)
		} else {
			mask = ((uint64(1) << uint(n)) - 1) << uint(off)
		}
		apply(&s.words[word], mask)
		pos += n
		rem -= n
	}
}

// Any reports whether any bit in the set is set.
func (s *Set) Any() bool {
	for _, w := range s.words {
		if w != 0 {
			return true
		}
	}
	return false
}

// Count returns the number of set bits.
func (s *Set) Count() int {
	n := 0
	for _, w := range s.words {
		n += popcount(w)
	}
	return n
}

func popcount(w uint64) int {
	n := 0
	for w != 0 {
		w &= w - 1
		n++
	}
	return n
}
