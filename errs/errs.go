// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errs collects the error kinds shared by every suballocator and
// support container in this module.
//
// Each kind is a concrete struct carrying the operands that produced the
// failure rather than a bare string, so callers that need to branch on the
// failure can inspect fields instead of parsing Error(). Each kind's Is
// method matches any value of the same type, so callers that only care
// about the kind can test errors.Is(err, &NoSpace{}) without a type switch.
package errs

import "fmt"

// InvalidArgument reports a non-positive length, a block length exceeding
// the buffer, a null buffer pointer, or any other construction-time
// argument that can never succeed.
type InvalidArgument struct {
	Op  string
	Msg string
}

func (e *InvalidArgument) Error() string {
	return fmt.Sprintf("suballoc: %s: invalid argument: %s", e.Op, e.Msg)
}

func (e *InvalidArgument) Is(target error) bool {
	_, ok := target.(*InvalidArgument)
	return ok
}

// Disposed reports any call made after the owning allocator was disposed.
type Disposed struct {
	Op string
}

func (e *Disposed) Error() string { return fmt.Sprintf("suballoc: %s: allocator disposed", e.Op) }

func (e *Disposed) Is(target error) bool {
	_, ok := target.(*Disposed)
	return ok
}

// NoSpace reports that a rent request cannot be satisfied by the current
// free space layout.
type NoSpace struct {
	Op              string
	RequestedLength int64
	Free            int64
}

func (e *NoSpace) Error() string {
	return fmt.Sprintf("suballoc: %s: no space for length %d (free %d)", e.Op, e.RequestedLength, e.Free)
}

func (e *NoSpace) Is(target error) bool {
	_, ok := target.(*NoSpace)
	return ok
}

// UnknownSegment reports a return of, or reference to, a segment that is
// not currently rented from the allocator it was presented to.
type UnknownSegment struct {
	Op          string
	SegmentBase uintptr
}

func (e *UnknownSegment) Error() string {
	return fmt.Sprintf("suballoc: %s: unknown segment at %#x", e.Op, e.SegmentBase)
}

func (e *UnknownSegment) Is(target error) bool {
	_, ok := target.(*UnknownSegment)
	return ok
}

// DuplicateKey reports an Add of an offset already present in a range
// dictionary bucket.
type DuplicateKey struct {
	Op     string
	Offset int64
}

func (e *DuplicateKey) Error() string {
	return fmt.Sprintf("suballoc: %s: duplicate key at offset %d", e.Op, e.Offset)
}

func (e *DuplicateKey) Is(target error) bool {
	_, ok := target.(*DuplicateKey)
	return ok
}

// NotFound reports a lookup, Get, or Remove of an offset absent from a
// range dictionary.
type NotFound struct {
	Op     string
	Offset int64
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("suballoc: %s: offset %d not found", e.Op, e.Offset)
}

func (e *NotFound) Is(target error) bool {
	_, ok := target.(*NotFound)
	return ok
}

// EmptyCollection reports a Peek or Pop on an empty heap, queue, or stack.
type EmptyCollection struct {
	Op string
}

func (e *EmptyCollection) Error() string { return fmt.Sprintf("suballoc: %s: collection is empty", e.Op) }

func (e *EmptyCollection) Is(target error) bool {
	_, ok := target.(*EmptyCollection)
	return ok
}
