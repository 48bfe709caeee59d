// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package container

import (
	"github.com/cznic/suballoc/errs"
	"github.com/cznic/suballoc/parray"
)

// Heap is a binary min-heap of T ordered by less, backed by a paged array.
// The zero value is not usable; construct with NewHeap.
type Heap[T any] struct {
	a    parray.Array[T]
	n    int
	less func(a, b T) bool
}

// NewHeap returns an empty heap ordered by less(a, b) == "a sorts before b".
func NewHeap[T any](less func(a, b T) bool) *Heap[T] {
	return &Heap[T]{less: less}
}

// Len returns the number of elements in the heap.
func (h *Heap[T]) Len() int { return h.n }

// Push inserts v, restoring the heap invariant by sifting up.
func (h *Heap[T]) Push(v T) {
	i := h.n
	h.a.Set(i, v)
	h.n++
	h.siftUp(i)
}

// Pop removes and returns the minimum element, or EmptyCollection if the
// heap is empty.
func (h *Heap[T]) Pop() (T, error) {
	var zero T
	if h.n == 0 {
		return zero, &errs.EmptyCollection{Op: "Heap.Pop"}
	}
	min := h.a.Get(0)
	last := h.n - 1
	h.a.Set(0, h.a.Get(last))
	h.n = last
	if h.n > 0 {
		h.siftDown(0)
	}
	return min, nil
}

// Peek returns the minimum element without removing it, or EmptyCollection
// if the heap is empty.
func (h *Heap[T]) Peek() (T, error) {
	var zero T
	if h.n == 0 {
		return zero, &errs.EmptyCollection{Op: "Heap.Peek"}
	}
	return h.a.Get(0), nil
}

func (h *Heap[T]) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(h.a.Get(i), h.a.Get(parent)) {
			return
		}
		h.swap(i, parent)
		i = parent
	}
}

func (h *Heap[T]) siftDown(i int) {
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < h.n && h.less(h.a.Get(left), h.a.Get(smallest)) {
			smallest = left
		}
		if right < h.n && h.less(h.a.Get(right), h.a.Get(smallest)) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}

func (h *Heap[T]) swap(i, j int) {
	vi, vj := h.a.Get(i), h.a.Get(j)
	h.a.Set(i, vj)
	h.a.Set(j, vi)
}
