// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package suballoc's own test file exercises the components together the
// way a caller actually would: rent from one of the three allocators,
// resolve a segment back to its allocator through the shared registry,
// and feed the same rent/return traffic to both trackers at once.
package suballoc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cznic/suballoc/buddy"
	"github.com/cznic/suballoc/directional"
	"github.com/cznic/suballoc/fragtrack"
	"github.com/cznic/suballoc/segment"
	"github.com/cznic/suballoc/seqfit"
	"github.com/cznic/suballoc/updatewindow"
)

// TestSegmentResolvesThroughGlobalRegistry confirms a Segment handed out by
// a buddy allocator can find its way back to the exact allocator
// instance that rented it via segment.Global, without the Segment itself
// storing a pointer to it, and that a disposed allocator is reported as
// "not found" rather than resolved to a dangling handle.
func TestSegmentResolvesThroughGlobalRegistry(t *testing.T) {
	a, err := buddy.New[string](buddy.Config{Length: 256, MinBlockLength: 1})
	require.NoError(t, err)

	seg, err := a.Rent(16, "widget")
	require.NoError(t, err)

	owner, ok := segment.ResolveFor[string, *buddy.Allocator[string]](segment.Global, seg)
	require.True(t, ok)
	require.Same(t, a, owner)

	require.NoError(t, a.Dispose())
	_, ok = segment.ResolveFor[string, *buddy.Allocator[string]](segment.Global, seg)
	require.False(t, ok, "a disposed allocator must not resolve to a dangling handle")
}

// TestFragTrackAndUpdateWindowObserveSameTraffic drives a seqfit allocator
// through a rent/return workload and feeds every event to both a
// fragmentation tracker (keyed by segment offset) and an update-window
// tracker (keyed by absolute byte address) at once, the way a cache or
// ring-buffer layer built on top of a suballocator would use them together:
// the update-window tracker answers "what bytes must I flush", while the
// fragmentation tracker answers "which of my live entries now sit in a
// sparsely packed neighborhood and are worth relocating on the next
// compaction pass that owns them" (this module never relocates segments
// itself; that is left to the caller).
func TestFragTrackAndUpdateWindowObserveSameTraffic(t *testing.T) {
	const length = 1024
	a, err := seqfit.New[string](seqfit.Config{Length: length, BlockLength: 1})
	require.NoError(t, err)
	defer a.Dispose()

	frag := fragtrack.New[string](length)
	var uw updatewindow.Tracker[string]

	var live []segment.Segment[string]
	for i := 0; i < 40; i++ {
		seg, err := a.Rent(8, "entry")
		require.NoError(t, err)
		require.NoError(t, frag.TrackAdd(seg, "entry"))
		uw.TrackRental(seg)
		live = append(live, seg)
	}

	// Return every other segment, leaving sparsely filled neighborhoods
	// behind for the fragmentation tracker to notice.
	var kept []segment.Segment[string]
	for i, seg := range live {
		if i%2 == 0 {
			require.NoError(t, a.Return(seg))
			_, err := frag.TrackRemove(seg)
			require.NoError(t, err)
			uw.TrackReturn(seg)
			continue
		}
		kept = append(kept, seg)
	}

	res := uw.BuildWindows(0.5)
	require.NotEmpty(t, res.Windows)
	require.LessOrEqual(t, res.Total, int64(length))

	for _, seg := range kept {
		tag, ok := frag.TryGetTag(seg)
		require.True(t, ok)
		require.Equal(t, "entry", tag)
	}

	// Every still-outstanding segment must still resolve through the
	// registry, and Used() must match what actually remains rented.
	require.Equal(t, int64(len(kept)*8), a.Used())
	for _, seg := range kept {
		owner, ok := segment.ResolveFor[string, *seqfit.Allocator[string]](segment.Global, seg)
		require.True(t, ok)
		require.Same(t, a, owner)
	}
}

// TestReleaseReturnsThroughRegistry exercises the cleanup-path convenience:
// a Segment is handed back to whichever allocator the registry resolves,
// without the caller naming the concrete allocator type, and the panic form
// treats a second release of the same segment as the logic bug it is.
func TestReleaseReturnsThroughRegistry(t *testing.T) {
	a, err := directional.New[string](directional.Config{Length: 128, BlockLength: 1})
	require.NoError(t, err)
	defer a.Dispose()

	seg, err := a.Rent(32, "payload")
	require.NoError(t, err)
	require.Equal(t, int64(32), a.Used())

	require.NoError(t, segment.Release(segment.Global, seg))
	require.Equal(t, int64(0), a.Used())

	require.Panics(t, func() { segment.MustRelease(segment.Global, seg) })
}

// TestDistinctAllocatorsCoexistInRegistry exercises the registry's "many
// distinct allocators, never ambiguous" requirement across two different
// suballocator algorithms at once.
func TestDistinctAllocatorsCoexistInRegistry(t *testing.T) {
	bud, err := buddy.New[int](buddy.Config{Length: 64, MinBlockLength: 1})
	require.NoError(t, err)
	defer bud.Dispose()

	dir, err := directional.New[int](directional.Config{Length: 64, BlockLength: 1})
	require.NoError(t, err)
	defer dir.Dispose()

	bSeg, err := bud.Rent(8, 1)
	require.NoError(t, err)
	dSeg, err := dir.Rent(8, 2)
	require.NoError(t, err)

	bOwner, ok := segment.ResolveFor[int, *buddy.Allocator[int]](segment.Global, bSeg)
	require.True(t, ok)
	require.Same(t, bud, bOwner)

	dOwner, ok := segment.ResolveFor[int, *directional.Allocator[int]](segment.Global, dSeg)
	require.True(t, ok)
	require.Same(t, dir, dOwner)

	// A buddy segment must not resolve as a directional allocator, even
	// though both are registered right now.
	_, ok = segment.ResolveFor[int, *directional.Allocator[int]](segment.Global, bSeg)
	require.False(t, ok)
}
