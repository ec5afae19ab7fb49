// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vector

import (
	"github.com/matrixorigin/rawvec/pkg/common/moerr"
)

// Take moves the contents of v into a new vector that also takes over v's
// allocator and growth policy. v is left empty with capacity 0 and may be
// reused.
func (v *Vector[T]) Take() *Vector[T] {
	v.init()
	dst := &Vector[T]{
		block:  v.block,
		count:  v.count,
		alloc:  v.alloc,
		growth: v.growth,
	}
	v.block, v.count = nil, 0
	return dst
}

// MoveFrom destroys the contents of v and moves the contents of src into
// it. It never allocates: the block is handed over as is. The allocator
// follows the block when it propagates on move; otherwise v keeps its own
// allocator, which must be able to release src's block, and MoveFrom panics
// with ErrAllocatorMismatch if it cannot. src ends up empty with capacity 0.
func (v *Vector[T]) MoveFrom(src *Vector[T]) {
	if v == src {
		return
	}
	v.init()
	src.init()
	traits := v.alloc.Traits()
	switch {
	case traits.PropagateOnMove:
		v.Free()
		v.alloc = src.alloc
	case v.alloc.Equal(src.alloc):
		v.Free()
	default:
		panic(moerr.NewAllocatorMismatchNoCtx("move between vectors whose allocators neither propagate nor compare equal"))
	}
	v.block, v.count = src.block, src.count
	src.block, src.count = nil, 0
}

// Swap exchanges the contents of v and other. Allocators are exchanged
// along with the blocks when they propagate on swap. Otherwise they stay
// put and must be able to release each other's blocks; Swap panics with
// ErrAllocatorMismatch if they cannot.
func (v *Vector[T]) Swap(other *Vector[T]) {
	if v == other {
		return
	}
	v.init()
	other.init()
	traits := v.alloc.Traits()
	switch {
	case traits.PropagateOnSwap:
		v.alloc, other.alloc = other.alloc, v.alloc
	case v.alloc.Equal(other.alloc):
	default:
		panic(moerr.NewAllocatorMismatchNoCtx("swap between vectors whose allocators neither propagate nor compare equal"))
	}
	v.block, other.block = other.block, v.block
	v.count, other.count = other.count, v.count
}

// Clone returns a new vector holding copies of v's elements in order.
// The clone shares v's allocator when it propagates on copy, otherwise it
// uses a HeapAllocator unless opts select another one. The clone keeps v's
// growth policy unless opts select another one.
func (v *Vector[T]) Clone(opts ...Option[T]) (*Vector[T], error) {
	v.init()
	dst := &Vector[T]{growth: v.growth}
	if v.alloc.Traits().PropagateOnCopy {
		dst.alloc = v.alloc
	}
	for _, opt := range opts {
		opt(dst)
	}
	dst.init()
	if err := dst.assign(v.Slice()); err != nil {
		return nil, err
	}
	return dst, nil
}
