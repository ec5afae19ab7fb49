// Copyright 2021 Matrix Origin
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

// Package testutil builds vectors and allocators for tests and benchmarks.
package testutil

import (
	"math/rand"
	"sync/atomic"

	"golang.org/x/exp/constraints"

	"github.com/matrixorigin/rawvec/pkg/common/malloc"
	"github.com/matrixorigin/rawvec/pkg/common/moerr"
	"github.com/matrixorigin/rawvec/pkg/container/vector"
)

type Number interface {
	constraints.Integer | constraints.Float
}

// NewValues returns 0..n-1, or n random values when random is set.
func NewValues[T Number](n int, random bool) []T {
	vs := make([]T, n)
	for i := range vs {
		v := i
		if random {
			v = rand.Int()
		}
		vs[i] = T(v)
	}
	return vs
}

// NewVector appends NewValues(n, random) one by one into a vector using
// alloc. It returns nil if an append fails.
func NewVector[T Number](n int, alloc vector.Allocator[T], random bool) *vector.Vector[T] {
	vec := vector.New(vector.WithAllocator(alloc))
	for _, v := range NewValues[T](n, random) {
		if err := vec.Append(v); err != nil {
			vec.Free()
			return nil
		}
	}
	return vec
}

// FailingAllocator serves a fixed number of allocations from its upstream
// and fails every later one with ErrOOM.
type FailingAllocator struct {
	upstream  malloc.Allocator
	remaining atomic.Int64
	failed    atomic.Int64
}

var _ malloc.Allocator = new(FailingAllocator)

func NewFailingAllocator(upstream malloc.Allocator, n int) *FailingAllocator {
	f := &FailingAllocator{
		upstream: upstream,
	}
	f.remaining.Store(int64(n))
	return f
}

func (f *FailingAllocator) Allocate(size uint64, hints malloc.Hints) ([]byte, malloc.Deallocator, error) {
	if f.remaining.Add(-1) < 0 {
		f.failed.Add(1)
		return nil, nil, moerr.NewOOMNoCtx()
	}
	return f.upstream.Allocate(size, hints)
}

// Failed returns the number of allocations refused so far.
func (f *FailingAllocator) Failed() int64 {
	return f.failed.Load()
}
