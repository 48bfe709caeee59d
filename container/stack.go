// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package container

import (
	"github.com/cznic/suballoc/errs"
	"github.com/cznic/suballoc/parray"
)

// Stack is a LIFO stack of T backed by a paged array. The zero value is an
// empty, ready to use stack.
type Stack[T any] struct {
	a parray.Array[T]
	n int
}

// Len returns the number of pushed elements.
func (s *Stack[T]) Len() int { return s.n }

// Push pushes v onto the top of the stack.
func (s *Stack[T]) Push(v T) {
	s.a.Set(s.n, v)
	s.n++
}

// Pop pops and returns the top element, or EmptyCollection if the stack is
// empty.
func (s *Stack[T]) Pop() (T, error) {
	var zero T
	if s.n == 0 {
		return zero, &errs.EmptyCollection{Op: "Stack.Pop"}
	}
	s.n--
	return s.a.Get(s.n), nil
}

// Peek returns the top element without removing it, or EmptyCollection if
// the stack is empty.
func (s *Stack[T]) Peek() (T, error) {
	var zero T
	if s.n == 0 {
		return zero, &errs.EmptyCollection{Op: "Stack.Peek"}
	}
	return s.a.Get(s.n - 1), nil
}
