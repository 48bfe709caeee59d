// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fragtrack implements a fragmentation tracker: a thin wrapper over
// an ordered range bucket dictionary (package rangedict) keyed by segment
// offset, which can report which live segments sit in sparsely filled
// neighborhoods of the buffer.
package fragtrack

import (
	"github.com/cznic/suballoc/errs"
	"github.com/cznic/suballoc/rangedict"
	"github.com/cznic/suballoc/segment"
)

// Tracker observes a suballocator's rent/update/return events and reports
// fragmented neighborhoods on demand. Tag is the segment tag type and must
// match the suballocator being observed.
type Tracker[Tag any] struct {
	d *rangedict.Dict[Tag]
}

// New returns a Tracker covering unit offsets [0, length).
func New[Tag any](length int64) *Tracker[Tag] {
	return &Tracker[Tag]{d: rangedict.New[Tag](0, length-1, bucketLength(length))}
}

// bucketLength picks a bucket width large enough to keep the bucket count
// small and small enough to keep fill ratios meaningful. 256 units is a
// reasonable default for typical block/min-block sizes.
func bucketLength(length int64) int64 {
	const want = 256
	if length <= want {
		return length
	}
	return want
}

// TrackAdd records seg (just rented) under tag, failing with DuplicateKey
// if its offset is already tracked.
func (t *Tracker[Tag]) TrackAdd(seg segment.Segment[Tag], tag Tag) error {
	return t.d.Add(seg.Offset(), seg.Len(), tag)
}

// TrackAddOrUpdate records seg under tag, replacing any existing entry at
// the same offset (e.g. after a resize that kept the same base).
func (t *Tracker[Tag]) TrackAddOrUpdate(seg segment.Segment[Tag], tag Tag) error {
	return t.d.Set(seg.Offset(), seg.Len(), tag)
}

// TrackRemove stops tracking seg (just returned) and reports its tag.
func (t *Tracker[Tag]) TrackRemove(seg segment.Segment[Tag]) (Tag, error) {
	entry, err := t.d.Remove(seg.Offset())
	if err != nil {
		var zero Tag
		return zero, &errs.NotFound{Op: "Tracker.TrackRemove", Offset: seg.Offset()}
	}
	return entry.Value, nil
}

// TryGetTag returns the tag tracked for seg, if any.
func (t *Tracker[Tag]) TryGetTag(seg segment.Segment[Tag]) (Tag, bool) {
	return t.d.TryGet(seg.Offset())
}

// FragmentedSegments walks buckets pairwise; whenever two neighboring
// buckets both have fill > 0 and (1 - fillPct) >= minFragPct, it reports
// the tags of every entry homed in either bucket of the pair, then
// advances past the second bucket of the pair so it is never reused as the
// first bucket of a later pair.
func (t *Tracker[Tag]) FragmentedSegments(minFragPct float64) []Tag {
	buckets := t.d.Buckets()
	var tags []Tag
	for i := 0; i+1 < len(buckets); {
		prev, cur := buckets[i], buckets[i+1]
		if prev.FillPct > 0 && cur.FillPct > 0 &&
			(1-prev.FillPct) >= minFragPct && (1-cur.FillPct) >= minFragPct {
			tags = append(tags, t.tagsHomedIn(prev)...)
			tags = append(tags, t.tagsHomedIn(cur)...)
			i += 2
			continue
		}
		i++
	}
	return tags
}

func (t *Tracker[Tag]) tagsHomedIn(b rangedict.BucketInfo) []Tag {
	entries := t.d.Range(b.MinOffset, b.MinOffset+b.Length-1)
	tags := make([]Tag, 0, len(entries))
	for _, e := range entries {
		if e.Offset >= b.MinOffset && e.Offset < b.MinOffset+b.Length {
			tags = append(tags, e.Value)
		}
	}
	return tags
}
