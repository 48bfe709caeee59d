// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package buddy implements a buddy suballocator: a power-of-two block
// index addressed as an implicit binary tree, with one doubly linked
// intrusive free list per size class and a free_flags bitmask (package
// bitset) recording which size classes are non-empty.
//
// Rent rounds the request up to a power-of-two count of minimum-size
// blocks, finds the smallest non-empty free list at or above that size via
// free_flags, and splits the block it takes down to the requested size.
// Return walks back up from the freed block's size class, merging with its
// buddy at each level while the buddy is itself free, the classic buddy
// allocation algorithm.
package buddy

import (
	"math/bits"

	"github.com/cznic/mathutil"

	"github.com/cznic/suballoc/bitset"
	"github.com/cznic/suballoc/errs"
	"github.com/cznic/suballoc/region"
	"github.com/cznic/suballoc/segment"
)

// noBlock is the "absent" sentinel for free-list links. Go's signed
// integers give us a real out-of-band value here, unlike the largest-
// representable-index convention an unsigned-only implementation would
// need.
const noBlock int64 = -1

// Config parameters construct an Allocator.
type Config struct {
	// Length is the buffer length in bytes.
	Length int64
	// MinBlockLength is the smallest rentable unit, in bytes. Rounded up
	// to the next power of two.
	MinBlockLength int64
}

type entry[Tag any] struct {
	valid    bool
	occupied bool
	logCount uint8
	prev     int64
	next     int64
	tag      Tag
}

// Allocator is a buddy suballocator over a single contiguous Region. The
// zero value is not usable; construct with New or NewOverRegion.
type Allocator[Tag any] struct {
	reg        *region.Region
	bufferBase uintptr

	length        int64 // N, as configured, bytes
	minBlock      int64 // M, power of two, bytes
	blocks        int64 // B = ceil(length / M)
	maxBlockCount int64 // next_pow2(B)
	maxOrder      int64 // log2(maxBlockCount)

	entries   []entry[Tag]
	freeHeads []int64
	freeFlags *bitset.Set

	usedBlocks  int64
	allocations int64
	disposed    bool
}

// New allocates and owns a fresh buffer per cfg.
func New[Tag any](cfg Config) (*Allocator[Tag], error) {
	if cfg.Length <= 0 {
		return nil, &errs.InvalidArgument{Op: "buddy.New", Msg: "length must be positive"}
	}
	return build[Tag](region.New(int(cfg.Length)), cfg.MinBlockLength)
}

// NewOverRegion builds an Allocator over a caller-supplied Region (e.g. a
// borrowed pointer or a memory-mapped file), whose lifetime the caller
// otherwise controls unless reg itself is owned.
func NewOverRegion[Tag any](reg *region.Region, minBlockLength int64) (*Allocator[Tag], error) {
	if reg == nil || reg.Len() <= 0 {
		return nil, &errs.InvalidArgument{Op: "buddy.NewOverRegion", Msg: "region must be non-empty"}
	}
	return build[Tag](reg, minBlockLength)
}

func build[Tag any](reg *region.Region, minBlockLength int64) (*Allocator[Tag], error) {
	length := int64(reg.Len())
	minBlock := nextPow2(mathutil.MaxInt64(1, minBlockLength))
	if minBlock > length {
		return nil, &errs.InvalidArgument{Op: "buddy.New", Msg: "min block length exceeds buffer length"}
	}

	blocks := (length + minBlock - 1) / minBlock
	maxBlockCount := nextPow2(blocks)
	maxOrder := log2(maxBlockCount)

	a := &Allocator[Tag]{
		reg:           reg,
		bufferBase:    reg.Base(),
		length:        length,
		minBlock:      minBlock,
		blocks:        blocks,
		maxBlockCount: maxBlockCount,
		maxOrder:      maxOrder,
		entries:       make([]entry[Tag], maxBlockCount),
		freeHeads:     make([]int64, maxOrder+1),
		freeFlags:     bitset.New(int(maxOrder + 1)),
	}
	a.seed()

	if err := segment.Global.Register(a.bufferBase, a); err != nil {
		return nil, err
	}
	return a, nil
}

// seed greedily lays the largest power-of-two-aligned free run it can at
// each position, covering [0, blocks) in decreasing run size, the standard
// buddy seeding for a non-power-of-two block count.
func (a *Allocator[Tag]) seed() {
	for i := range a.freeHeads {
		a.freeHeads[i] = noBlock
	}
	for pos := int64(0); pos < a.blocks; {
		k := a.maxRunAt(pos)
		a.entries[pos] = entry[Tag]{valid: true, logCount: uint8(k), prev: noBlock, next: noBlock}
		a.pushFree(pos, k)
		pos += int64(1) << uint(k)
	}
}

// maxRunAt returns the largest order k such that a block of size 2^k
// starting at pos both fits within [pos, blocks) and is aligned to its own
// size (required for it to ever find a buddy).
func (a *Allocator[Tag]) maxRunAt(pos int64) int64 {
	k := a.maxOrder
	if pos != 0 {
		if align := int64(bits.TrailingZeros64(uint64(pos))); align < k {
			k = align
		}
	}
	for k > 0 && (int64(1)<<uint(k)) > a.blocks-pos {
		k--
	}
	return k
}

// BufferBase implements segment.Allocator.
func (a *Allocator[Tag]) BufferBase() uintptr { return a.bufferBase }

// Rent reserves the smallest power-of-two run of min-blocks covering
// requestedLength bytes, splitting a larger free run as needed.
func (a *Allocator[Tag]) Rent(requestedLength int64, tag Tag) (segment.Segment[Tag], error) {
	var zero segment.Segment[Tag]
	if a.disposed {
		return zero, &errs.Disposed{Op: "Allocator.Rent"}
	}
	if requestedLength <= 0 {
		return zero, &errs.InvalidArgument{Op: "Allocator.Rent", Msg: "length must be positive"}
	}

	wantBlocks := nextPow2(mathutil.MaxInt64(1, (requestedLength+a.minBlock-1)/a.minBlock))
	kMin := log2(wantBlocks)
	if kMin > a.maxOrder {
		return zero, &errs.NoSpace{Op: "Allocator.Rent", RequestedLength: requestedLength, Free: a.FreeLength()}
	}

	k := int64(-1)
	for kk := kMin; kk <= a.maxOrder; kk++ {
		if a.freeFlags.Test(int(kk)) {
			k = kk
			break
		}
	}
	if k < 0 {
		return zero, &errs.NoSpace{Op: "Allocator.Rent", RequestedLength: requestedLength, Free: a.FreeLength()}
	}

	i := a.popFree(k)
	for j := k - 1; j >= kMin; j-- {
		buddyIdx := i + (int64(1) << uint(j))
		a.entries[buddyIdx] = entry[Tag]{valid: true, logCount: uint8(j), prev: noBlock, next: noBlock}
		a.pushFree(buddyIdx, j)
	}

	a.entries[i] = entry[Tag]{valid: true, occupied: true, logCount: uint8(kMin), prev: noBlock, next: noBlock, tag: tag}

	a.usedBlocks += int64(1) << uint(kMin)
	a.allocations++

	segBase := a.bufferBase + uintptr(i*a.minBlock)
	return segment.New[Tag](a.bufferBase, segBase, wantBlocks*a.minBlock, 1, tag), nil
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

// Return releases seg, merging it with its buddy at each level while the
// buddy is free. A segment whose entry is not valid and occupied (for
// example one that was already returned) fails with UnknownSegment rather
// than corrupting a free list.
func (a *Allocator[Tag]) Return(seg segment.Segment[Tag]) error {
	if a.disposed {
		return &errs.Disposed{Op: "Allocator.Return"}
	}
	if seg.BufferBase() != a.bufferBase {
		return &errs.UnknownSegment{Op: "Allocator.Return", SegmentBase: seg.Base()}
	}

	byteOff := seg.ByteOffset()
	if byteOff < 0 || byteOff%a.minBlock != 0 {
		return &errs.UnknownSegment{Op: "Allocator.Return", SegmentBase: seg.Base()}
	}
	i := byteOff / a.minBlock
	if i < 0 || i >= a.maxBlockCount {
		return &errs.UnknownSegment{Op: "Allocator.Return", SegmentBase: seg.Base()}
	}

	e := &a.entries[i]
	if !e.valid || !e.occupied {
		return &errs.UnknownSegment{Op: "Allocator.Return", SegmentBase: seg.Base()}
	}

	k := int64(e.logCount)
	blocks := int64(1) << uint(k)
	e.valid = false
	e.occupied = false

	a.usedBlocks -= blocks
	a.allocations--

	for {
		j := i ^ (int64(1) << uint(k))
		if j >= a.blocks {
			break
		}
		be := &a.entries[j]
		if !be.valid || be.occupied || int64(be.logCount) != k {
			break
		}
		a.unlinkFree(j, k)
		be.valid = false
		if j < i {
			i = j
		}
		k++
	}

	a.entries[i] = entry[Tag]{valid: true, logCount: uint8(k), prev: noBlock, next: noBlock}
	a.pushFree(i, k)
	return nil
}

// TryReturn is Return without the Disposed/UnknownSegment distinction
// mattering to the caller: it reports only whether the segment was
// released.
func (a *Allocator[Tag]) TryReturn(seg segment.Segment[Tag]) bool {
	return a.Return(seg) == nil
}

// Clear releases every outstanding segment at once and reseeds the index,
// as if every rent had been returned, without walking the free lists to
// merge them individually.
func (a *Allocator[Tag]) Clear() error {
	if a.disposed {
		return &errs.Disposed{Op: "Allocator.Clear"}
	}
	for i := range a.entries {
		a.entries[i] = entry[Tag]{}
	}
	a.freeFlags = bitset.New(int(a.maxOrder + 1))
	a.usedBlocks = 0
	a.allocations = 0
	a.seed()
	return nil
}

// BufferPtr returns the base address of the backing buffer.
func (a *Allocator[Tag]) BufferPtr() uintptr { return a.bufferBase }

// Buffer returns the backing buffer itself, for reading and writing rented
// segments' contents (see Segment.Bytes).
func (a *Allocator[Tag]) Buffer() []byte { return a.reg.Bytes() }

// Length returns the buffer's configured length in bytes.
func (a *Allocator[Tag]) Length() int64 { return a.length }

// Used returns the number of bytes currently rented out.
func (a *Allocator[Tag]) Used() int64 { return a.usedBlocks * a.minBlock }

// Free returns the number of bytes currently available to rent, equal to
// Length() minus Used() up to whole-min-block rounding.
func (a *Allocator[Tag]) Free() int64 { return a.FreeLength() }

// Allocations returns the number of currently outstanding segments.
func (a *Allocator[Tag]) Allocations() int64 { return a.allocations }

// Iter enumerates every currently occupied segment by walking the block
// index once, in increasing block-index order. Mutating the allocator
// while the result is in use is undefined behavior.
func (a *Allocator[Tag]) Iter() []segment.Segment[Tag] {
	var out []segment.Segment[Tag]
	for i := int64(0); i < a.blocks; {
		e := &a.entries[i]
		count := int64(1) << uint(e.logCount)
		if e.occupied {
			segBase := a.bufferBase + uintptr(i*a.minBlock)
			out = append(out, segment.New[Tag](a.bufferBase, segBase, count*a.minBlock, 1, e.tag))
		}
		i += count
	}
	return out
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

// Stats is a point-in-time snapshot of block occupancy.
type Stats struct {
	TotalBlocks int64
	UsedBlocks  int64
	FreeBlocks  int64
	Allocations int64
}

// Stats returns a snapshot of the allocator's current occupancy, in units
// of min-block-length blocks.
func (a *Allocator[Tag]) Stats() Stats {
	return Stats{
		TotalBlocks: a.blocks,
		UsedBlocks:  a.usedBlocks,
		FreeBlocks:  a.blocks - a.usedBlocks,
		Allocations: a.allocations,
	}
}

// FreeLength returns the total free capacity in bytes.
func (a *Allocator[Tag]) FreeLength() int64 {
	return (a.blocks - a.usedBlocks) * a.minBlock
}

// Verify walks every free list, checking that each member is valid,
// unoccupied, of the list's own size class, and that free_flags agrees
// with list emptiness — a paranoid self-check a caller can run in tests or
// under a race detector.
func (a *Allocator[Tag]) Verify() error {
	for k := int64(0); k <= a.maxOrder; k++ {
		nonEmpty := false
		seen := int64(0)
		maxNodes := a.maxBlockCount
		for i := a.freeHeads[k]; i != noBlock; {
			if seen > maxNodes {
				return &errs.InvalidArgument{Op: "Allocator.Verify", Msg: "free list cycle detected"}
			}
			e := &a.entries[i]
			if !e.valid || e.occupied || int64(e.logCount) != k {
				return &errs.InvalidArgument{Op: "Allocator.Verify", Msg: "free list entry state mismatch"}
			}
			nonEmpty = true
			seen++
			i = e.next
		}
		if nonEmpty != a.freeFlags.Test(int(k)) {
			return &errs.InvalidArgument{Op: "Allocator.Verify", Msg: "free_flags disagrees with free list emptiness"}
		}
	}
	return nil
}

// SafeLengthFor returns Cholleti's bound: an upper bound, in min-block
// units, on the buffer length needed to simultaneously satisfy count
// power-of-two-rounded rents without an avoidable NoSpace failure due to
// external fragmentation.
func SafeLengthFor(count int64) int64 {
	if count <= 0 {
		return 0
	}
	return count * (log2(count) + 1) / 2
}

func (a *Allocator[Tag]) pushFree(i, k int64) {
	head := a.freeHeads[k]
	a.entries[i].prev = noBlock
	a.entries[i].next = head
	if head != noBlock {
		a.entries[head].prev = i
	}
	a.freeHeads[k] = i
	a.freeFlags.Set(int(k))
}

func (a *Allocator[Tag]) popFree(k int64) int64 {
	i := a.freeHeads[k]
	a.unlinkFree(i, k)
	return i
}

func (a *Allocator[Tag]) unlinkFree(i, k int64) {
	e := &a.entries[i]
	prev, next := e.prev, e.next
	if prev != noBlock {
		a.entries[prev].next = next
	} else {
		a.freeHeads[k] = next
	}
	if next != noBlock {
		a.entries[next].prev = prev
	}
	e.prev, e.next = noBlock, noBlock
	if prev == noBlock && next == noBlock {
		a.freeFlags.Clear(int(k))
	}
}

func nextPow2(n int64) int64 {
	if n <= 1 {
		return 1
	}
	if n&(n-1) == 0 {
		return n
	}
	return int64(1) << uint(bits.Len64(uint64(n)))
}

// log2 returns floor(log2(n)) for n > 0.
func log2(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return int64(bits.Len64(uint64(n)) - 1)
}

