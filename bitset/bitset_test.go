// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetClearTest(t *testing.T) {
	s := New(130) // spans three words
	for _, i := range []int{0, 63, 64, 129} {
		require.False(t, s.Test(i))
		s.Set(i)
		require.True(t, s.Test(i))
	}
	require.Equal(t, 4, s.Count())
	require.True(t, s.Any())

	s.Clear(64)
	require.False(t, s.Test(64))
	require.Equal(t, 3, s.Count())
}

func TestGrowPreservesBitsAndZeroFillsNewOnes(t *testing.T) {
	s := New(10)
	s.Set(9)
	s.Grow(200)
	require.Equal(t, 200, s.Len())
	require.True(t, s.Test(9))
	for i := 10; i < 200; i++ {
		require.False(t, s.Test(i), "bit %d", i)
	}

	// Shrinking is a no-op.
	s.Grow(5)
	require.Equal(t, 200, s.Len())
}

func TestRangeOpsCrossWordBoundaries(t *testing.T) {
	s := New(256)
	s.SetRange(60, 70) // covers the 64-bit boundary and a full interior word
	for i := 0; i < 256; i++ {
		require.Equal(t, i >= 60 && i < 130, s.Test(i), "bit %d", i)
	}
	require.Equal(t, 70, s.Count())

	s.ClearRange(62, 4)
	for i := 62; i < 66; i++ {
		require.False(t, s.Test(i))
	}
	require.Equal(t, 66, s.Count())

	// An empty run touches nothing.
	s.SetRange(0, 0)
	require.False(t, s.Test(0))
}

func TestOutOfRangePanics(t *testing.T) {
	s := New(8)
	require.Panics(t, func() { s.Set(8) })
	require.Panics(t, func() { s.Test(-1) })
	require.Panics(t, func() { s.SetRange(4, 8) })
}

func TestZeroValueIsEmpty(t *testing.T) {
	var s Set
	require.Equal(t, 0, s.Len())
	require.False(t, s.Any())
	require.Equal(t, 0, s.Count())
}
