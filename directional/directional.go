// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package directional implements a directional block suballocator: its own
// block index, shaped like package seqfit's, augmented with a
// reverse-traversal block_count_prev field per entry, a bidirectional
// cursor, and a
// free_balance heuristic that biases scanning toward whichever side of the
// cursor currently holds more free space, with a hysteresis term to avoid
// oscillating direction on every call.
package directional

import (
	"github.com/cznic/mathutil"

	"github.com/cznic/suballoc/errs"
	"github.com/cznic/suballoc/region"
	"github.com/cznic/suballoc/segment"
)

// maxRunBlocks bounds a single entry's block_count (see seqfit's identical
// constant and rationale).
const maxRunBlocks = int64(1<<31) - 1

// defaultHysteresis is the bias constant applied to the direction
// selection rule.
const defaultHysteresis = 0.3

// Config parameters construct an Allocator.
type Config struct {
	// Length is the buffer length in bytes.
	Length int64
	// BlockLength is the unit of addressing within the block index, in
	// bytes.
	BlockLength int64
	// Hysteresis is the direction-selection bias constant. Zero selects
	// the default of 0.3.
	Hysteresis float64
}

type entry[Tag any] struct {
	occupied       bool
	blockCount     int64
	blockCountPrev int64 // length of the immediately preceding run, 0 at index 0
	tag            Tag
}

// Allocator is a directional block suballocator over a single contiguous
// Region. The zero value is not usable; construct with New or
// NewOverRegion.
type Allocator[Tag any] struct {
	reg         *region.Region
	bufferBase  uintptr
	length      int64
	blockLength int64
	blocks      int64
	hysteresis  float64

	entries []entry[Tag]
	cursor  int64
	forward bool
	balance int64 // free_balance

	used        int64
	allocations int64
	disposed    bool
}

// New allocates and owns a fresh buffer per cfg.
func New[Tag any](cfg Config) (*Allocator[Tag], error) {
	if cfg.Length <= 0 {
		return nil, &errs.InvalidArgument{Op: "directional.New", Msg: "length must be positive"}
	}
	return build[Tag](region.New(int(cfg.Length)), cfg.BlockLength, cfg.Hysteresis)
}

// NewOverRegion builds an Allocator over a caller-supplied Region.
func NewOverRegion[Tag any](reg *region.Region, blockLength int64, hysteresis float64) (*Allocator[Tag], error) {
	if reg == nil || reg.Len() <= 0 {
		return nil, &errs.InvalidArgument{Op: "directional.NewOverRegion", Msg: "region must be non-empty"}
	}
	return build[Tag](reg, blockLength, hysteresis)
}

func build[Tag any](reg *region.Region, blockLength int64, hysteresis float64) (*Allocator[Tag], error) {
	length := int64(reg.Len())
	blockLength = mathutil.MaxInt64(1, blockLength)
	if blockLength > length {
		return nil, &errs.InvalidArgument{Op: "directional.New", Msg: "block length exceeds buffer length"}
	}
	if hysteresis == 0 {
		hysteresis = defaultHysteresis
	}

	blocks := (length + blockLength - 1) / blockLength
	a := &Allocator[Tag]{
		reg:         reg,
		bufferBase:  reg.Base(),
		length:      length,
		blockLength: blockLength,
		blocks:      blocks,
		hysteresis:  hysteresis,
		entries:     make([]entry[Tag], blocks),
		forward:     true,
	}
	a.seed()

	if err := segment.Global.Register(a.bufferBase, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Allocator[Tag]) seed() {
	a.entries = make([]entry[Tag], a.blocks)
	prevLen := int64(0)
	for pos := int64(0); pos < a.blocks; {
		n := mathutil.MinInt64(maxRunBlocks, a.blocks-pos)
		a.entries[pos] = entry[Tag]{blockCount: n, blockCountPrev: prevLen}
		prevLen = n
		pos += n
	}
	a.cursor = 0
	a.forward = true
	a.balance = 0
}

// BufferBase implements segment.Allocator.
func (a *Allocator[Tag]) BufferBase() uintptr { return a.bufferBase }

// updateDirection recomputes the forward flag from the current
// free_balance and prior direction, applying the hysteresis bias so the
// allocator doesn't flip direction on every call when balance hovers near
// zero.
func (a *Allocator[Tag]) updateDirection() {
	b := float64(a.balance) / float64(a.blocks)
	d := -1.0
	if a.forward {
		d = 1.0
	}
	a.forward = (b + a.hysteresis*d) >= 0
}

// Rent scans bidirectionally from the cursor for a free run of at least
// need blocks, choosing and re-choosing direction via the free_balance
// heuristic, and fails with NoSpace only after trying both directions in
// full (two turnarounds).
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

	a.updateDirection()
	initialCursor := a.cursor
	initialBalance := a.balance
	turnarounds := 0
	p := a.cursor

	for {
		e := &a.entries[p]
		if !e.occupied && e.blockCount >= need {
			return a.fulfil(p, need, tag), nil
		}

		if a.forward {
			if !e.occupied {
				a.balance -= 2 * e.blockCount
			}
			next := p + e.blockCount
			if next >= a.blocks {
				p, turnarounds = a.turnaround(initialCursor, initialBalance, turnarounds)
				if turnarounds == 2 {
					return zero, &errs.NoSpace{Op: "Allocator.Rent", RequestedLength: requestedLength, Free: a.Free()}
				}
				continue
			}
			p = next
		} else {
			prevLen := e.blockCountPrev
			if prevLen == 0 {
				p, turnarounds = a.turnaround(initialCursor, initialBalance, turnarounds)
				if turnarounds == 2 {
					return zero, &errs.NoSpace{Op: "Allocator.Rent", RequestedLength: requestedLength, Free: a.Free()}
				}
				continue
			}
			prevPos := p - prevLen
			pe := &a.entries[prevPos]
			if !pe.occupied {
				a.balance += 2 * prevLen
			}
			p = prevPos
		}

		if turnarounds == 2 {
			return zero, &errs.NoSpace{Op: "Allocator.Rent", RequestedLength: requestedLength, Free: a.Free()}
		}
	}
}

func (a *Allocator[Tag]) turnaround(initialCursor, initialBalance int64, turnarounds int) (int64, int) {
	a.balance = initialBalance
	a.forward = !a.forward
	return initialCursor, turnarounds + 1
}

// fulfil carves the needed run out of the free run starting at p (forward
// scan: from its head; backward scan: from its tail) and returns the
// resulting segment. It corrects block_count_prev on the run's true
// successor, including the entry two hops away when a forward split
// inserts a new trailing free entry between the occupied run and the
// entry that used to directly follow the whole free run.
func (a *Allocator[Tag]) fulfil(p, need int64, tag Tag) segment.Segment[Tag] {
	e := &a.entries[p]
	full := e.blockCount
	var occStart int64

	if a.forward {
		occStart = p
		if full > need {
			trailLen := full - need
			afterPos := p + full
			if afterPos < a.blocks {
				a.entries[afterPos].blockCountPrev = trailLen
			}
			a.entries[p+need] = entry[Tag]{blockCount: trailLen, blockCountPrev: need}
		}
		prevLen := e.blockCountPrev
		a.entries[occStart] = entry[Tag]{occupied: true, blockCount: need, blockCountPrev: prevLen, tag: tag}
	} else {
		leadLen := full - need
		occStart = p + leadLen
		afterPos := p + full
		if afterPos < a.blocks {
			a.entries[afterPos].blockCountPrev = need
		}
		if leadLen > 0 {
			e.blockCount = leadLen // leading free entry keeps its original blockCountPrev
			a.entries[occStart] = entry[Tag]{occupied: true, blockCount: need, blockCountPrev: leadLen, tag: tag}
		} else {
			// Exact fit: the whole run is occupied in place, so its
			// block_count_prev still names the true predecessor.
			prevLen := e.blockCountPrev
			a.entries[occStart] = entry[Tag]{occupied: true, blockCount: need, blockCountPrev: prevLen, tag: tag}
		}
	}

	a.balance -= need
	a.cursor = occStart
	a.used += need
	a.allocations++

	segBase := a.bufferBase + uintptr(occStart*a.blockLength)
	return segment.New[Tag](a.bufferBase, segBase, need*a.blockLength, 1, tag)
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

// Return releases seg, eagerly coalescing it with any adjacent free runs
// in both directions and correcting the cursor if it now lies inside the
// merged run.
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

	blocks := e.blockCount
	if i > a.cursor {
		a.balance += blocks
	} else if i < a.cursor {
		a.balance -= blocks
	}

	e.occupied = false
	var zeroTag Tag
	e.tag = zeroTag
	a.used -= blocks
	a.allocations--

	a.coalesceForward(i)
	start := a.coalesceBackward(i)

	merged := a.entries[start].blockCount
	if a.cursor > start && a.cursor < start+merged {
		old := a.cursor
		a.cursor = start
		a.balance += 2 * (old - start)
	}

	if a.used == 0 {
		// Canonical empty state: reset to a known sentinel rather
		// than requiring free_balance to retrace the exact path
		// back to its construction-time value.
		a.cursor = 0
		a.balance = 0
		a.forward = true
	}
	return nil
}

func (a *Allocator[Tag]) coalesceForward(i int64) {
	e := &a.entries[i]
	for {
		nextPos := i + e.blockCount
		if nextPos >= a.blocks {
			return
		}
		next := &a.entries[nextPos]
		if next.occupied || e.blockCount+next.blockCount > maxRunBlocks {
			return
		}
		combined := e.blockCount + next.blockCount
		afterPos := nextPos + next.blockCount
		if afterPos < a.blocks {
			a.entries[afterPos].blockCountPrev = combined
		}
		a.entries[nextPos] = entry[Tag]{}
		e.blockCount = combined
	}
}

func (a *Allocator[Tag]) coalesceBackward(i int64) int64 {
	for {
		e := &a.entries[i]
		prevLen := e.blockCountPrev
		if prevLen == 0 {
			return i
		}
		prevPos := i - prevLen
		prevEntry := &a.entries[prevPos]
		if prevEntry.occupied || prevEntry.blockCount+e.blockCount > maxRunBlocks {
			return i
		}
		combined := prevEntry.blockCount + e.blockCount
		afterPos := i + e.blockCount
		if afterPos < a.blocks {
			a.entries[afterPos].blockCountPrev = combined
		}
		prevEntry.blockCount = combined
		a.entries[i] = entry[Tag]{}
		i = prevPos
	}
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

// FreeBalance exposes the current free_balance heuristic value, primarily
// for tests and diagnostics.
func (a *Allocator[Tag]) FreeBalance() int64 { return a.balance }

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

// Verify walks the block index forward, confirming the runs partition
// [0, blocks) without gap or overlap, that used/allocations agree with the
// index, and that every entry's block_count_prev names its true
// predecessor's length — the invariant the reverse scan in Rent depends on.
func (a *Allocator[Tag]) Verify() error {
	var used, allocations, prevLen int64
	for i := int64(0); i < a.blocks; {
		e := &a.entries[i]
		if e.blockCount <= 0 {
			return &errs.InvalidArgument{Op: "Allocator.Verify", Msg: "non-positive block count in index"}
		}
		if i+e.blockCount > a.blocks {
			return &errs.InvalidArgument{Op: "Allocator.Verify", Msg: "run overruns block index"}
		}
		if e.blockCountPrev != prevLen {
			return &errs.InvalidArgument{Op: "Allocator.Verify", Msg: "block_count_prev does not match preceding run"}
		}
		if e.occupied {
			used += e.blockCount
			allocations++
		}
		prevLen = e.blockCount
		i += e.blockCount
	}
	if used != a.used || allocations != a.allocations {
		return &errs.InvalidArgument{Op: "Allocator.Verify", Msg: "used/allocations counters disagree with index"}
	}
	return nil
}
