// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package seqfit implements a sequential-fit block suballocator: a flat
// block index scanned from a rotating cursor, absorbing adjacent free runs
// greedily as it scans (lazy coalescing — no eager merge happens on
// return), a next-fit allocation strategy: each scan starts where the last
// successful rent left the cursor.
package seqfit

import (
	"github.com/cznic/mathutil"

	"github.com/cznic/suballoc/errs"
	"github.com/cznic/suballoc/region"
	"github.com/cznic/suballoc/segment"
)

// maxRunBlocks bounds a single index entry's block_count to what a 31-bit
// field could hold; a plain int64 field preserves the same range with none
// of the bit-packing complexity, since cache density isn't a concern here.
const maxRunBlocks = int64(1<<31) - 1

// Config parameters construct an Allocator.
type Config struct {
	// Length is the buffer length in bytes.
	Length int64
	// BlockLength is the unit of addressing within the block index, in
	// bytes.
	BlockLength int64
}

type entry[Tag any] struct {
	occupied   bool
	blockCount int64
	tag        Tag
}

// Allocator is a sequential-fit block suballocator over a single
// contiguous Region. The zero value is not usable; construct with New or
// NewOverRegion.
type Allocator[Tag any] struct {
	reg         *region.Region
	bufferBase  uintptr
	length      int64
	blockLength int64
	blocks      int64

	entries []entry[Tag]
	cursor  int64

	used        int64
	allocations int64
	disposed    bool
}

// New allocates and owns a fresh buffer per cfg.
func New[Tag any](cfg Config) (*Allocator[Tag], error) {
	if cfg.Length <= 0 {
		return nil, &errs.InvalidArgument{Op: "seqfit.New", Msg: "length must be positive"}
	}
	return build[Tag](region.New(int(cfg.Length)), cfg.BlockLength)
}

// NewOverRegion builds an Allocator over a caller-supplied Region.
func NewOverRegion[Tag any](reg *region.Region, blockLength int64) (*Allocator[Tag], error) {
	if reg == nil || reg.Len() <= 0 {
		return nil, &errs.InvalidArgument{Op: "seqfit.NewOverRegion", Msg: "region must be non-empty"}
	}
	return build[Tag](reg, blockLength)
}

func build[Tag any](reg *region.Region, blockLength int64) (*Allocator[Tag], error) {
	length := int64(reg.Len())
	blockLength = mathutil.MaxInt64(1, blockLength)
	if blockLength > length {
		return nil, &errs.InvalidArgument{Op: "seqfit.New", Msg: "block length exceeds buffer length"}
	}

	blocks := (length + blockLength - 1) / blockLength
	a := &Allocator[Tag]{
		reg:         reg,
		bufferBase:  reg.Base(),
		length:      length,
		blockLength: blockLength,
		blocks:      blocks,
		entries:     make([]entry[Tag], blocks),
	}
	a.seed()

	if err := segment.Global.Register(a.bufferBase, a); err != nil {
		return nil, err
	}
	return a, nil
}

// seed covers [0, blocks) with one or more free entries of at most
// maxRunBlocks blocks each.
func (a *Allocator[Tag]) seed() {
	a.entries = make([]entry[Tag], a.blocks)
	for pos := int64(0); pos < a.blocks; {
		n := mathutil.MinInt64(maxRunBlocks, a.blocks-pos)
		a.entries[pos] = entry[Tag]{blockCount: n}
		pos += n
	}
	a.cursor = 0
}

// BufferBase implements segment.Allocator.
func (a *Allocator[Tag]) BufferBase() uintptr { return a.bufferBase }

// Rent scans forward from the cursor, greedily absorbing adjacent free
// runs into the entry it is examining until that entry is large enough or
// it hits an occupied entry, then skips past entries too small to help. It
// fails with NoSpace once the scan returns to its starting index.
func (a *Allocator[Tag]) Rent(requestedLength int64, tag Tag) (segment.Segment[Tag], error) {
	var zero segment.Segment[Tag]
	if a.disposed {
		return zero, &errs.Disposed{Op: "Allocator.Rent"}
	}
	if requestedLength <= 0 {
		return zero, &errs.InvalidArgument{Op: "Allocator.Rent", Msg: "length must be positive"}
	}

	need := (requestedLength + a.blockLength - 1) / a.blockLength
	if need > a.blocks {
		return zero, &errs.NoSpace{Op: "Allocator.Rent", RequestedLength: requestedLength, Free: a.Free()}
	}

	// The scan terminates either by returning to its starting index or by
	// covering the index twice over. The second bound matters when the
	// entry at start is itself absorbed into an earlier free run after the
	// scan wraps: stepping then never lands on start again, but two full
	// passes are enough for the scan to have seen every run in its fully
	// merged form.
	start := a.cursor
	i := start
	traversed := int64(0)
	for traversed < 2*a.blocks {
		e := &a.entries[i]
		if !e.occupied && e.blockCount < need {
			a.absorbFollowing(i, need)
		}

		if !e.occupied && e.blockCount >= need {
			full := e.blockCount
			if full > need {
				a.entries[i+need] = entry[Tag]{blockCount: full - need}
			}
			e.blockCount = need
			e.occupied = true
			e.tag = tag

			a.cursor = i
			a.used += need
			a.allocations++

			segBase := a.bufferBase + uintptr(i*a.blockLength)
			return segment.New[Tag](a.bufferBase, segBase, need*a.blockLength, 1, tag), nil
		}

		traversed += e.blockCount
		i = (i + e.blockCount) % a.blocks
		if i == start {
			break
		}
	}

	// The failed scan may have absorbed the very run the cursor pointed
	// at, leaving it dangling at a stale entry; i is by construction
	// still a live run start, so park the cursor there.
	a.cursor = i
	return zero, &errs.NoSpace{Op: "Allocator.Rent", RequestedLength: requestedLength, Free: a.Free()}
}

// absorbFollowing merges the free runs immediately following i into i,
// stopping once i's run is big enough, it reaches an occupied entry, or it
// reaches the end of the index (absorption never wraps).
func (a *Allocator[Tag]) absorbFollowing(i, need int64) {
	e := &a.entries[i]
	j := i + e.blockCount
	for e.blockCount < need && j < a.blocks {
		next := &a.entries[j]
		if next.occupied {
			break
		}
		e.blockCount += next.blockCount
		j += next.blockCount
	}
}

// MustRent is Rent for callers that treat a rent failure as fatal; it
// panics instead of returning an error.
func (a *Allocator[Tag]) MustRent(requestedLength int64, tag Tag) segment.Segment[Tag] {
	seg, err := a.Rent(requestedLength, tag)
	if err != nil {
		panic(err)
	}
	return seg
}

// Return releases seg, validating that the block index entry at its
// position is occupied with exactly seg's length before flipping it free,
// rather than trusting the caller's derived index unconditionally and
// risking silent corruption of a neighboring entry's accounting.
func (a *Allocator[Tag]) Return(seg segment.Segment[Tag]) error {
	if a.disposed {
		return &errs.Disposed{Op: "Allocator.Return"}
	}
	if seg.BufferBase() != a.bufferBase {
		return &errs.UnknownSegment{Op: "Allocator.Return", SegmentBase: seg.Base()}
	}

	byteOff := seg.ByteOffset()
	if byteOff < 0 || byteOff%a.blockLength != 0 {
		return &errs.UnknownSegment{Op: "Allocator.Return", SegmentBase: seg.Base()}
	}
	i := byteOff / a.blockLength
	if i < 0 || i >= a.blocks {
		return &errs.UnknownSegment{Op: "Allocator.Return", SegmentBase: seg.Base()}
	}

	e := &a.entries[i]
	if !e.occupied || e.blockCount*a.blockLength != seg.Len() {
		return &errs.UnknownSegment{Op: "Allocator.Return", SegmentBase: seg.Base()}
	}

	e.occupied = false
	var zero Tag
	e.tag = zero
	a.used -= e.blockCount
	a.allocations--
	return nil
}

// TryReturn is Return without the error detail mattering to the caller.
func (a *Allocator[Tag]) TryReturn(seg segment.Segment[Tag]) bool {
	return a.Return(seg) == nil
}

// Clear releases every outstanding segment and reseeds the index.
func (a *Allocator[Tag]) Clear() error {
	if a.disposed {
		return &errs.Disposed{Op: "Allocator.Clear"}
	}
	a.seed()
	a.used = 0
	a.allocations = 0
	return nil
}

// Dispose deregisters the allocator and releases its buffer if owned.
// Idempotent.
func (a *Allocator[Tag]) Dispose() error {
	if a.disposed {
		return nil
	}
	a.disposed = true
	if err := segment.Global.Deregister(a.bufferBase); err != nil {
		return err
	}
	return a.reg.Release()
}

// BufferPtr returns the base address of the backing buffer.
func (a *Allocator[Tag]) BufferPtr() uintptr { return a.bufferBase }

// Buffer returns the backing buffer itself, for reading and writing rented
// segments' contents (see Segment.Bytes).
func (a *Allocator[Tag]) Buffer() []byte { return a.reg.Bytes() }

// Length returns the buffer's configured length in bytes.
func (a *Allocator[Tag]) Length() int64 { return a.length }

// Used returns the number of bytes currently rented out.
func (a *Allocator[Tag]) Used() int64 { return a.used * a.blockLength }

// Free returns the number of bytes currently available to rent.
func (a *Allocator[Tag]) Free() int64 { return (a.blocks - a.used) * a.blockLength }

// Allocations returns the number of currently outstanding segments.
func (a *Allocator[Tag]) Allocations() int64 { return a.allocations }

// Stats is a point-in-time occupancy snapshot.
type Stats struct {
	TotalBlocks int64
	UsedBlocks  int64
	FreeBlocks  int64
	Allocations int64
}

// Stats returns a snapshot of current occupancy, in block-length units.
func (a *Allocator[Tag]) Stats() Stats {
	return Stats{
		TotalBlocks: a.blocks,
		UsedBlocks:  a.used,
		FreeBlocks:  a.blocks - a.used,
		Allocations: a.allocations,
	}
}

// Iter enumerates every currently occupied segment in increasing
// block-index order.
func (a *Allocator[Tag]) Iter() []segment.Segment[Tag] {
	var out []segment.Segment[Tag]
	for i := int64(0); i < a.blocks; {
		e := &a.entries[i]
		if e.occupied {
			segBase := a.bufferBase + uintptr(i*a.blockLength)
			out = append(out, segment.New[Tag](a.bufferBase, segBase, e.blockCount*a.blockLength, 1, e.tag))
		}
		i += e.blockCount
	}
	return out
}

// Verify walks the block index once, confirming every run has a positive
// block count, the runs partition [0, blocks) without gap or overlap, and
// the used/allocations counters agree with what the index actually holds —
// a paranoid self-check a caller can run in tests.
func (a *Allocator[Tag]) Verify() error {
	var used, allocations int64
	for i := int64(0); i < a.blocks; {
		e := &a.entries[i]
		if e.blockCount <= 0 {
			return &errs.InvalidArgument{Op: "Allocator.Verify", Msg: "non-positive block count in index"}
		}
		if i+e.blockCount > a.blocks {
			return &errs.InvalidArgument{Op: "Allocator.Verify", Msg: "run overruns block index"}
		}
		if e.occupied {
			used += e.blockCount
			allocations++
		}
		i += e.blockCount
	}
	if used != a.used || allocations != a.allocations {
		return &errs.InvalidArgument{Op: "Allocator.Verify", Msg: "used/allocations counters disagree with index"}
	}
	return nil
}
