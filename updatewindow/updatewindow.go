// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package updatewindow implements an update-window tracker: it records
// rented/returned/updated segments and, on demand, compresses that event
// log into a minimal set of disjoint, optionally-coalesced byte windows
// summarizing the buffer mutations since the last flush — suitable for a
// downstream copy-out of only the bytes that actually changed.
package updatewindow

import (
	"sort"

	"github.com/cznic/suballoc/segment"
)

type record struct {
	added  bool
	base   int64 // absolute byte address
	length int64 // bytes
}

// Tracker buffers rent/update/return events until BuildWindows compresses
// them. The zero value is an empty tracker ready for use.
type Tracker[T any] struct {
	events []record
}

// TrackRental appends a rent event for seg.
func (t *Tracker[T]) TrackRental(seg segment.Segment[T]) {
	t.append(true, seg)
}

// TrackUpdate appends an in-place-mutation event for seg (content changed,
// ownership unchanged).
func (t *Tracker[T]) TrackUpdate(seg segment.Segment[T]) {
	t.append(true, seg)
}

// TrackReturn appends a return event for seg.
func (t *Tracker[T]) TrackReturn(seg segment.Segment[T]) {
	t.append(false, seg)
}

func (t *Tracker[T]) append(added bool, seg segment.Segment[T]) {
	t.events = append(t.events, record{added: added, base: int64(seg.Base()), length: seg.ByteLen()})
}

// Clear empties the event buffer.
func (t *Tracker[T]) Clear() { t.events = t.events[:0] }

// Window is a contiguous byte range summarizing one or more coalesced
// mutation events.
type Window struct {
	StartByte   int64
	EndByte     int64 // exclusive
	BytesFilled int64 // bytes actually reported as mutated within the window
}

// LengthBytes returns the window's span, EndByte - StartByte.
func (w Window) LengthBytes() int64 { return w.EndByte - w.StartByte }

// Result is the outcome of BuildWindows.
type Result struct {
	Windows []Window
	Spread  int64 // last window's EndByte - first window's StartByte
	Total   int64 // sum of window spans
}

// BuildWindows stable-sorts the recorded events by base and walks them in
// order, extending the growing top window when doing so would keep its
// fill ratio at or above minFillPct, cancelling a just-added rental that is
// immediately and wholly returned, and otherwise starting a new window.
// minFillPct must be in [0, 1].
func (t *Tracker[T]) BuildWindows(minFillPct float64) Result {
	events := make([]record, len(t.events))
	copy(events, t.events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].base < events[j].base })

	var windows []Window
	for _, e := range events {
		endByte := e.base + e.length
		if n := len(windows); n > 0 {
			top := &windows[n-1]
			if !e.added && e.base == top.StartByte && e.length == top.LengthBytes() {
				windows = windows[:n-1]
				continue
			}

			span := endByte - top.StartByte
			if span > 0 && float64(top.LengthBytes()+e.length)/float64(span) >= minFillPct {
				// An event lying wholly inside the top window (an update
				// of a sub-range) must not shrink it.
				if endByte > top.EndByte {
					top.EndByte = endByte
				}
				filled := top.BytesFilled + e.length
				if max := top.LengthBytes(); filled > max {
					filled = max
				}
				top.BytesFilled = filled
				continue
			}
		}
		windows = append(windows, Window{StartByte: e.base, EndByte: endByte, BytesFilled: e.length})
	}

	res := Result{Windows: windows}
	if n := len(windows); n > 0 {
		res.Spread = windows[n-1].EndByte - windows[0].StartByte
		for _, w := range windows {
			res.Total += w.LengthBytes()
		}
	}
	return res
}
