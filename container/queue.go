// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package container implements growable containers over unmanaged,
// paged storage: a FIFO queue, a LIFO stack, and a binary min-heap, each
// backed by package parray's page-chunked Array.
package container

import (
	"github.com/cznic/suballoc/errs"
	"github.com/cznic/suballoc/parray"
)

// Queue is a FIFO queue of T backed by a paged array. The zero value is an
// empty, ready to use queue.
type Queue[T any] struct {
	a           parray.Array[T]
	head, count int
}

// Len returns the number of enqueued elements.
func (q *Queue[T]) Len() int { return q.count }

// Push enqueues v at the tail.
func (q *Queue[T]) Push(v T) {
	q.a.Set(q.head+q.count, v)
	q.count++
}

// Pop dequeues and returns the element at the head, or EmptyCollection if
// the queue is empty.
func (q *Queue[T]) Pop() (T, error) {
	var zero T
	if q.count == 0 {
		return zero, &errs.EmptyCollection{Op: "Queue.Pop"}
	}
	v := q.a.Get(q.head)
	q.head++
	q.count--
	return v, nil
}

// Peek returns the element at the head without removing it, or
// EmptyCollection if the queue is empty.
func (q *Queue[T]) Peek() (T, error) {
	var zero T
	if q.count == 0 {
		return zero, &errs.EmptyCollection{Op: "Queue.Peek"}
	}
	return q.a.Get(q.head), nil
}
