// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package segment defines the Segment value type rented out by every
// suballocator in this module, and the process-wide registry a Segment
// uses to resolve its owning allocator without storing a back-reference,
// since segments are value-sized and copied frequently.
package segment

import "github.com/cznic/suballoc/errs"

// A Segment is an immutable descriptor of a rented region: the base of the
// backing buffer it came from, the base of the region itself, its length
// in units, and an optional caller tag. T is the tag type; callers that
// don't need a tag instantiate Segment[struct{}], whose zero value costs
// nothing extra.
type Segment[T any] struct {
	bufferBase  uintptr
	segmentBase uintptr
	length      int64
	elemSize    int
	tag         T
}

// New builds a Segment. Allocator packages are the only intended callers;
// application code receives Segments only from a successful Rent.
func New[T any](bufferBase, segmentBase uintptr, length int64, elemSize int, tag T) Segment[T] {
	return Segment[T]{
		bufferBase:  bufferBase,
		segmentBase: segmentBase,
		length:      length,
		elemSize:    elemSize,
		tag:         tag,
	}
}

// BufferBase returns the address of the first element of the backing
// buffer this segment was rented from.
func (s Segment[T]) BufferBase() uintptr { return s.bufferBase }

// Base returns the address of the first element of the segment itself.
func (s Segment[T]) Base() uintptr { return s.segmentBase }

// Len returns the segment length in units.
func (s Segment[T]) Len() int64 { return s.length }

// ByteLen returns the segment length in bytes.
func (s Segment[T]) ByteLen() int64 { return s.length * int64(s.elemSize) }

// Tag returns the caller-supplied tag this segment was rented with.
func (s Segment[T]) Tag() T { return s.tag }

// Offset returns the segment's base expressed as a unit offset from its
// buffer's base, the key package fragtrack and package rangedict index by.
func (s Segment[T]) Offset() int64 { return int64(s.segmentBase-s.bufferBase) / int64(s.elemSize) }

// ByteOffset returns the segment's base expressed as a byte offset from
// its buffer's base.
func (s Segment[T]) ByteOffset() int64 { return int64(s.segmentBase - s.bufferBase) }

// Bytes returns the segment's byte range as a slice of buf, which must be
// the same backing buffer this segment was rented from (buf[0] must be at
// BufferBase()). Out-of-range segments (a programming error, since a valid
// Segment always lies within its buffer) panic via the slice bounds check.
func (s Segment[T]) Bytes(buf []byte) []byte {
	off := int64(s.segmentBase - s.bufferBase)
	return buf[off : off+s.ByteLen()]
}

// ByteAt returns the i'th byte of the segment's range within buf, which
// must be the same backing buffer this segment was rented from.
func (s Segment[T]) ByteAt(buf []byte, i int64) byte {
	if i < 0 || i >= s.ByteLen() {
		panic("segment: index out of range")
	}
	return buf[int64(s.segmentBase-s.bufferBase)+i]
}

// SetByteAt stores b at the i'th byte of the segment's range within buf.
func (s Segment[T]) SetByteAt(buf []byte, i int64, b byte) {
	if i < 0 || i >= s.ByteLen() {
		panic("segment: index out of range")
	}
	buf[int64(s.segmentBase-s.bufferBase)+i] = b
}

// Allocator is the minimal surface a suballocator must expose so a Segment
// can be returned via a registry lookup instead of a stored back-reference.
// Concrete allocator types (buddy.Allocator[T], seqfit.Allocator[T],
// directional.Allocator[T]) implement it.
type Allocator interface {
	// BufferBase returns the address this allocator is registered under.
	BufferBase() uintptr
}

// ResolveFor looks up the allocator that owns seg's buffer and type-asserts
// it to A, the caller's expected concrete allocator type. It reports false,
// not an error, both when no allocator is registered at that base (already
// disposed) and when one is registered but of a different concrete type
// than A — both are "not found" from the caller's perspective.
func ResolveFor[T any, A Allocator](reg *Registry, seg Segment[T]) (A, bool) {
	var zero A
	owner, ok := reg.Lookup(seg.BufferBase())
	if !ok {
		return zero, false
	}
	a, ok := owner.(A)
	if !ok {
		return zero, false
	}
	return a, true
}

// Returner is the surface Release needs beyond Allocator: any of the
// concrete allocator types in this module satisfies it for its own tag type.
type Returner[T any] interface {
	Allocator
	Return(Segment[T]) error
}

// Release resolves seg's owning allocator through reg and returns the
// segment to it. It reports an UnknownSegment-shaped failure as an error;
// a segment whose allocator was already disposed resolves to nothing and is
// treated the same way, since there is no owner left to return it to.
func Release[T any](reg *Registry, seg Segment[T]) error {
	owner, ok := ResolveFor[T, Returner[T]](reg, seg)
	if !ok {
		return &errs.UnknownSegment{Op: "segment.Release", SegmentBase: seg.Base()}
	}
	return owner.Return(seg)
}

// MustRelease is the cleanup-path form of Release: a failure there is a
// logic bug (double return, forged segment, use after dispose), not a
// recoverable condition, so it panics instead of returning an error.
func MustRelease[T any](reg *Registry, seg Segment[T]) {
	if err := Release(reg, seg); err != nil {
		panic(err)
	}
}
