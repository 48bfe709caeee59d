// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fragtrack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cznic/suballoc/segment"
)

func seg(bufBase, segBase uintptr, length int64) segment.Segment[string] {
	return segment.New[string](bufBase, segBase, length, 1, "")
}

func TestTrackAddTryGetRemove(t *testing.T) {
	tr := New[string](1024)
	s := seg(0x1000, 0x1000+40, 8)
	require.NoError(t, tr.TrackAdd(s, "tag-a"))

	got, ok := tr.TryGetTag(s)
	require.True(t, ok)
	require.Equal(t, "tag-a", got)

	removed, err := tr.TrackRemove(s)
	require.NoError(t, err)
	require.Equal(t, "tag-a", removed)

	_, ok = tr.TryGetTag(s)
	require.False(t, ok)
}

func TestFragmentedSegmentsNoDuplicatesAcrossPairs(t *testing.T) {
	tr := New[string](1024) // bucket length 256: buckets [0,256) [256,512) [512,768) [768,1024)
	base := uintptr(0x8000)

	// Sparsely fill buckets 0, 1, 2 with small segments near bucket starts.
	require.NoError(t, tr.TrackAdd(seg(base, base, 8), "b0"))
	require.NoError(t, tr.TrackAdd(seg(base, base+256, 8), "b1"))
	require.NoError(t, tr.TrackAdd(seg(base, base+512, 8), "b2"))

	tags := tr.FragmentedSegments(0.9)

	seen := map[string]int{}
	for _, tag := range tags {
		seen[tag]++
	}
	for tag, n := range seen {
		require.Equal(t, 1, n, "tag %s must not be duplicated across pairs", tag)
	}
	require.Contains(t, tags, "b0")
	require.Contains(t, tags, "b1")
}
