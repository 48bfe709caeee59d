// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package updatewindow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cznic/suballoc/segment"
)

func seg(base uintptr, length int64) segment.Segment[struct{}] {
	return segment.New[struct{}](0, base, length, 1, struct{}{})
}

// TestCombineAtHighFill: two events separated by a gap combine into one
// window when the resulting fill ratio clears minFillPct, and stay
// separate when it does not.
func TestCombineAtHighFill(t *testing.T) {
	var tr Tracker[struct{}]
	tr.TrackRental(seg(0, 100))
	tr.TrackRental(seg(150, 50))

	res := tr.BuildWindows(0.6)
	require.Len(t, res.Windows, 1)
	require.Equal(t, Window{StartByte: 0, EndByte: 200, BytesFilled: 150}, res.Windows[0])
}

func TestSeparateAtLowFill(t *testing.T) {
	var tr Tracker[struct{}]
	tr.TrackRental(seg(0, 100))
	tr.TrackRental(seg(150, 50))

	res := tr.BuildWindows(0.8)
	require.Len(t, res.Windows, 2)
	require.Equal(t, Window{StartByte: 0, EndByte: 100, BytesFilled: 100}, res.Windows[0])
	require.Equal(t, Window{StartByte: 150, EndByte: 200, BytesFilled: 50}, res.Windows[1])
}

func TestReturnCancelsJustAddedRental(t *testing.T) {
	var tr Tracker[struct{}]
	s := seg(1000, 64)
	tr.TrackRental(s)
	tr.TrackReturn(s)

	res := tr.BuildWindows(0.5)
	require.Empty(t, res.Windows)
}

// TestReturnCancelsOnlyAnExactTopMatch confirms the cancellation rule is
// keyed to the top window's exact base and span: a return of the second
// rental, whose base lies inside the (already extended) top window, does not
// pop it.
func TestReturnCancelsOnlyAnExactTopMatch(t *testing.T) {
	var tr Tracker[struct{}]
	second := seg(100, 20)
	tr.TrackRental(seg(0, 100))
	tr.TrackRental(second) // extends the window, fill 1.0, always combines
	tr.TrackReturn(second) // base 100 != top's base 0, so no cancellation

	res := tr.BuildWindows(0.9)
	require.Len(t, res.Windows, 1)
	require.Equal(t, int64(0), res.Windows[0].StartByte)
	require.Equal(t, int64(120), res.Windows[0].EndByte)
}

// TestInteriorUpdateDoesNotShrinkWindow covers an update event wholly inside
// the top window: the window's end must stay put.
func TestInteriorUpdateDoesNotShrinkWindow(t *testing.T) {
	var tr Tracker[struct{}]
	tr.TrackRental(seg(0, 100))
	tr.TrackUpdate(seg(10, 20))

	res := tr.BuildWindows(0.5)
	require.Len(t, res.Windows, 1)
	require.Equal(t, int64(0), res.Windows[0].StartByte)
	require.Equal(t, int64(100), res.Windows[0].EndByte)
	require.Equal(t, int64(100), res.Windows[0].BytesFilled) // clamped to the span
}

func TestEventsAreOrderedByBaseRegardlessOfInsertionOrder(t *testing.T) {
	var tr Tracker[struct{}]
	tr.TrackRental(seg(500, 10))
	tr.TrackRental(seg(0, 10))
	tr.TrackRental(seg(250, 10))

	res := tr.BuildWindows(1.1) // impossible fill ratio, nothing combines
	require.Len(t, res.Windows, 3)
	require.Equal(t, int64(0), res.Windows[0].StartByte)
	require.Equal(t, int64(250), res.Windows[1].StartByte)
	require.Equal(t, int64(500), res.Windows[2].StartByte)
}

func TestClearEmptiesEventLog(t *testing.T) {
	var tr Tracker[struct{}]
	tr.TrackRental(seg(0, 10))
	tr.Clear()

	res := tr.BuildWindows(0)
	require.Empty(t, res.Windows)
}

func TestSpreadAndTotal(t *testing.T) {
	var tr Tracker[struct{}]
	tr.TrackRental(seg(0, 10))
	tr.TrackRental(seg(1000, 10))

	res := tr.BuildWindows(1.1)
	require.Len(t, res.Windows, 2)
	require.Equal(t, int64(1010), res.Spread)
	require.Equal(t, int64(20), res.Total)
}
