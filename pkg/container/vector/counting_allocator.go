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
	"sync/atomic"
)

// AllocatorStats counts the calls seen by a CountingAllocator.
type AllocatorStats struct {
	Acquired      int64
	AcquireFailed int64
	Released      int64
	Constructed   int64
	Destroyed     int64
}

// Live returns constructed minus destroyed elements.
func (s AllocatorStats) Live() int64 {
	return s.Constructed - s.Destroyed
}

// Outstanding returns acquired minus released blocks.
func (s AllocatorStats) Outstanding() int64 {
	return s.Acquired - s.Released
}

// CountingAllocator forwards to another allocator and counts every call.
// Zero sized acquisitions are not counted.
type CountingAllocator[T any] struct {
	inner Allocator[T]

	acquired      atomic.Int64
	acquireFailed atomic.Int64
	released      atomic.Int64
	constructed   atomic.Int64
	destroyed     atomic.Int64
}

var _ Allocator[int] = (*CountingAllocator[int])(nil)

func NewCountingAllocator[T any](inner Allocator[T]) *CountingAllocator[T] {
	return &CountingAllocator[T]{
		inner: inner,
	}
}

func (c *CountingAllocator[T]) Acquire(n int) ([]T, error) {
	block, err := c.inner.Acquire(n)
	if err != nil {
		c.acquireFailed.Add(1)
		return nil, err
	}
	if n > 0 {
		c.acquired.Add(1)
	}
	return block, nil
}

func (c *CountingAllocator[T]) Release(block []T, n int) {
	if n > 0 {
		c.released.Add(1)
	}
	c.inner.Release(block, n)
}

func (c *CountingAllocator[T]) Construct(slot *T, v T) {
	c.constructed.Add(1)
	c.inner.Construct(slot, v)
}

func (c *CountingAllocator[T]) Destroy(slot *T) {
	c.destroyed.Add(1)
	c.inner.Destroy(slot)
}

func (c *CountingAllocator[T]) Stats() AllocatorStats {
	return AllocatorStats{
		Acquired:      c.acquired.Load(),
		AcquireFailed: c.acquireFailed.Load(),
		Released:      c.released.Load(),
		Constructed:   c.constructed.Load(),
		Destroyed:     c.destroyed.Load(),
	}
}

func (c *CountingAllocator[T]) Traits() Traits {
	return c.inner.Traits()
}

// Equal compares the wrapped allocators, so counting views of one
// allocator are interchangeable.
func (c *CountingAllocator[T]) Equal(other Allocator[T]) bool {
	if o, ok := other.(*CountingAllocator[T]); ok {
		return o == c || c.inner.Equal(o.inner)
	}
	return false
}
