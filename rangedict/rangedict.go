// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rangedict implements an ordered range bucket dictionary: a map
// from offset to a range entry, divided into fixed-width buckets that
// expose fill ratios and support ordered traversal by distance from a
// pivot. It is used both directly (as a coalesce-friendly structure) and
// by package fragtrack (as a fragmentation tracker keyed by segment
// offset).
//
// Per-bucket ordering is delegated to github.com/tidwall/btree's generic
// Map, rather than a hand-rolled sorted slice, so Range/Nearest/Buckets are
// true O(log n) per bucket instead of an implicit O(n) re-sort on every
// mutation.
package rangedict

import (
	"github.com/tidwall/btree"

	"github.com/cznic/suballoc/errs"
)

const btreeDegree = 32

// Entry is a single (offset, length, value) triple stored in the
// dictionary.
type Entry[V any] struct {
	Offset int64
	Length int64
	Value  V
}

type bucket[V any] struct {
	tree  *btree.Map[int64, Entry[V]]
	start int64 // inclusive
	end   int64 // exclusive
	fill  int64 // sum of entry lengths intersected with [start, end)
	count int   // number of entries whose own Offset is homed here
}

func (b *bucket[V]) fillPct() float64 {
	if b.end <= b.start {
		return 0
	}
	return float64(b.fill) / float64(b.end-b.start)
}

func overlap(entryOff, entryLen, bStart, bEnd int64) int64 {
	lo := entryOff
	if bStart > lo {
		lo = bStart
	}
	hi := entryOff + entryLen
	if bEnd < hi {
		hi = bEnd
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// Dict is an ordered range bucket dictionary over [offsetMin, offsetMax].
type Dict[V any] struct {
	offsetMin, offsetMax int64
	bucketLength         int64
	buckets              []*bucket[V]
	count                int
}

// New returns an empty Dict covering [offsetMin, offsetMax] (inclusive),
// divided into buckets of bucketLength offsets each (the last bucket may be
// shorter).
func New[V any](offsetMin, offsetMax, bucketLength int64) *Dict[V] {
	if bucketLength <= 0 || offsetMax < offsetMin {
		panic("rangedict: invalid range or bucket length")
	}
	span := offsetMax - offsetMin + 1
	n := (span + bucketLength - 1) / bucketLength
	d := &Dict[V]{offsetMin: offsetMin, offsetMax: offsetMax, bucketLength: bucketLength}
	d.buckets = make([]*bucket[V], n)
	for i := range d.buckets {
		start := offsetMin + int64(i)*bucketLength
		end := start + bucketLength
		if end > offsetMax+1 {
			end = offsetMax + 1
		}
		d.buckets[i] = &bucket[V]{tree: btree.NewMap[int64, Entry[V]](btreeDegree), start: start, end: end}
	}
	return d
}

// Count returns the number of distinct entries in the dictionary.
func (d *Dict[V]) Count() int { return d.count }

func (d *Dict[V]) bucketIndex(offset int64) int {
	return int((offset - d.offsetMin) / d.bucketLength)
}

func (d *Dict[V]) coveringRange(offset, length int64) (first, last int) {
	first = d.bucketIndex(offset)
	endOffset := offset + length - 1
	if endOffset > d.offsetMax {
		endOffset = d.offsetMax
	}
	last = d.bucketIndex(endOffset)
	return
}

// Add inserts an entry covering [offset, offset+length). It fails with
// InvalidArgument if offset falls outside [offsetMin, offsetMax] and with
// DuplicateKey if an entry with this offset already exists.
func (d *Dict[V]) Add(offset, length int64, value V) error {
	if offset < d.offsetMin || offset > d.offsetMax {
		return &errs.InvalidArgument{Op: "Dict.Add", Msg: "offset out of range"}
	}
	home := d.bucketIndex(offset)
	if _, ok := d.buckets[home].tree.Get(offset); ok {
		return &errs.DuplicateKey{Op: "Dict.Add", Offset: offset}
	}

	entry := Entry[V]{Offset: offset, Length: length, Value: value}
	first, last := d.coveringRange(offset, length)
	for i := first; i <= last; i++ {
		b := d.buckets[i]
		b.tree.Set(offset, entry)
		b.fill += overlap(offset, length, b.start, b.end)
	}
	d.buckets[home].count++
	d.count++
	return nil
}

// Remove deletes the entry at offset, returning it. It fails with NotFound
// if no entry exists there.
func (d *Dict[V]) Remove(offset int64) (Entry[V], error) {
	var zero Entry[V]
	if offset < d.offsetMin || offset > d.offsetMax {
		return zero, &errs.NotFound{Op: "Dict.Remove", Offset: offset}
	}
	home := d.bucketIndex(offset)
	entry, ok := d.buckets[home].tree.Get(offset)
	if !ok {
		return zero, &errs.NotFound{Op: "Dict.Remove", Offset: offset}
	}

	first, last := d.coveringRange(entry.Offset, entry.Length)
	for i := first; i <= last; i++ {
		b := d.buckets[i]
		b.tree.Delete(offset)
		b.fill -= overlap(entry.Offset, entry.Length, b.start, b.end)
	}
	d.buckets[home].count--
	d.count--
	return entry, nil
}

// Get returns the value stored at offset, or a NotFound error.
func (d *Dict[V]) Get(offset int64) (V, error) {
	v, ok := d.TryGet(offset)
	if !ok {
		var zero V
		return zero, &errs.NotFound{Op: "Dict.Get", Offset: offset}
	}
	return v, nil
}

// TryGet returns the value stored at offset and whether it was present.
func (d *Dict[V]) TryGet(offset int64) (V, bool) {
	var zero V
	if offset < d.offsetMin || offset > d.offsetMax {
		return zero, false
	}
	entry, ok := d.buckets[d.bucketIndex(offset)].tree.Get(offset)
	if !ok {
		return zero, false
	}
	return entry.Value, true
}

// Set replaces the entry at offset with a new one covering
// [offset, offset+length), equivalent to Remove followed by Add.
func (d *Dict[V]) Set(offset, length int64, value V) error {
	if _, err := d.Remove(offset); err != nil {
		if _, ok := err.(*errs.NotFound); !ok {
			return err
		}
	}
	return d.Add(offset, length, value)
}

// Range yields entries with Offset in [low, high], ascending.
func (d *Dict[V]) Range(low, high int64) []Entry[V] {
	if low < d.offsetMin {
		low = d.offsetMin
	}
	if high > d.offsetMax {
		high = d.offsetMax
	}
	if low > high {
		return nil
	}
	first, last := d.bucketIndex(low), d.bucketIndex(high)
	var out []Entry[V]
	for i := first; i <= last; i++ {
		b := d.buckets[i]
		pivot := low
		if b.start > pivot {
			pivot = b.start
		}
		b.tree.Ascend(pivot, func(k int64, v Entry[V]) bool {
			if k > high {
				return false
			}
			out = append(out, v)
			return true
		})
	}
	return out
}

// NearestGE yields entries with Offset >= pivot, ascending offset.
func (d *Dict[V]) NearestGE(pivot int64) []Entry[V] {
	return d.Range(pivot, d.offsetMax)
}

// NearestLE yields entries with Offset <= pivot, descending offset.
func (d *Dict[V]) NearestLE(pivot int64) []Entry[V] {
	low, high := d.offsetMin, pivot
	if high > d.offsetMax {
		high = d.offsetMax
	}
	if low > high {
		return nil
	}
	first, last := d.bucketIndex(low), d.bucketIndex(high)
	var out []Entry[V]
	for i := last; i >= first; i-- {
		b := d.buckets[i]
		pivotKey := high
		if b.end-1 < pivotKey {
			pivotKey = b.end - 1
		}
		b.tree.Descend(pivotKey, func(k int64, v Entry[V]) bool {
			// A key below the bucket's own start belongs to an entry
			// homed in an earlier bucket that merely spans this one; it
			// is yielded when its home bucket is walked, keeping each
			// entry's single emission in correct descending position.
			if k < b.start || k < low {
				return false
			}
			out = append(out, v)
			return true
		})
	}
	return out
}

// Nearest yields every entry in non-decreasing |Offset - pivot| order; on
// ties, the entry on the forward (Offset >= pivot) side is yielded first.
func (d *Dict[V]) Nearest(pivot int64) []Entry[V] {
	fwd := d.NearestGE(pivot)
	var bwd []Entry[V]
	if pivot > d.offsetMin {
		bwd = d.NearestLE(pivot - 1)
	}

	out := make([]Entry[V], 0, len(fwd)+len(bwd))
	i, j := 0, 0
	for i < len(fwd) && j < len(bwd) {
		df := fwd[i].Offset - pivot
		db := pivot - bwd[j].Offset
		if df <= db {
			out = append(out, fwd[i])
			i++
		} else {
			out = append(out, bwd[j])
			j++
		}
	}
	out = append(out, fwd[i:]...)
	out = append(out, bwd[j:]...)
	return out
}

// BucketInfo describes one bucket's occupancy, as exposed by Buckets.
type BucketInfo struct {
	MinOffset int64
	Length    int64
	Count     int
	Fill      int64
	FillPct   float64
}

// Buckets returns occupancy information for every bucket, in order.
func (d *Dict[V]) Buckets() []BucketInfo {
	out := make([]BucketInfo, len(d.buckets))
	for i, b := range d.buckets {
		out[i] = BucketInfo{
			MinOffset: b.start,
			Length:    b.end - b.start,
			Count:     b.count,
			Fill:      b.fill,
			FillPct:   b.fillPct(),
		}
	}
	return out
}
