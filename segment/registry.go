// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segment

import (
	"sync"

	"github.com/cznic/suballoc/errs"
)

// Registry is the process-wide mapping from a buffer's base address to the
// allocator owning it. It is the only shared mutable state a suballocator
// touches: individual allocator operations are single threaded, but
// construction and disposal of distinct allocators may race, so Registry
// is safe for concurrent use by many goroutines.
type Registry struct {
	m sync.Map // uintptr -> Allocator
}

// Global is the default, process-wide registry every allocator constructor
// registers into unless a package test substitutes a private one.
var Global = &Registry{}

// Register records owner as the allocator for base. It fails with
// DuplicateKey if a live allocator is already registered at base — two
// allocators can never share a buffer base, since that would make Segment
// resolution ambiguous.
func (r *Registry) Register(base uintptr, owner Allocator) error {
	if _, loaded := r.m.LoadOrStore(base, owner); loaded {
		return &errs.DuplicateKey{Op: "Registry.Register", Offset: int64(base)}
	}
	return nil
}

// Deregister removes the allocator registered at base. It fails with
// NotFound if none is registered there.
func (r *Registry) Deregister(base uintptr) error {
	if _, ok := r.m.LoadAndDelete(base); !ok {
		return &errs.NotFound{Op: "Registry.Deregister", Offset: int64(base)}
	}
	return nil
}

// Lookup returns the allocator registered at base, if any. A disposed
// allocator is simply absent — Lookup never returns a dangling handle,
// which is what lets Segment resolve its owner like a weak reference.
func (r *Registry) Lookup(base uintptr) (Allocator, bool) {
	v, ok := r.m.Load(base)
	if !ok {
		return nil, false
	}
	return v.(Allocator), true
}
