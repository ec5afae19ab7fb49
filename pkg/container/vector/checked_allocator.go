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
	"unsafe"

	"github.com/RoaringBitmap/roaring"

	"github.com/matrixorigin/rawvec/pkg/common/moerr"
)

// CheckedAllocator wraps another allocator and verifies the lifetime
// protocol: every Construct targets an empty slot, every Destroy a live one,
// and every Release returns a known block with no live element left in it.
// Violations panic. It is a debugging aid and not safe for concurrent use.
type CheckedAllocator[T any] struct {
	inner  Allocator[T]
	blocks map[*T]*checkedBlock
}

type checkedBlock struct {
	n    int
	live *roaring.Bitmap
}

var _ Allocator[int] = (*CheckedAllocator[int])(nil)

func NewCheckedAllocator[T any](inner Allocator[T]) *CheckedAllocator[T] {
	return &CheckedAllocator[T]{
		inner:  inner,
		blocks: make(map[*T]*checkedBlock),
	}
}

func (c *CheckedAllocator[T]) Inner() Allocator[T] {
	return c.inner
}

func (c *CheckedAllocator[T]) Acquire(n int) ([]T, error) {
	block, err := c.inner.Acquire(n)
	if err != nil || n == 0 || !tracked[T]() {
		return block, err
	}
	c.blocks[unsafe.SliceData(block)] = &checkedBlock{
		n:    n,
		live: roaring.New(),
	}
	return block, nil
}

func (c *CheckedAllocator[T]) Release(block []T, n int) {
	if n == 0 || !tracked[T]() {
		c.inner.Release(block, n)
		return
	}
	base := unsafe.SliceData(block)
	b, ok := c.blocks[base]
	if !ok || b.n != n {
		panic(moerr.NewReleaseUnknownBlockNoCtx(n))
	}
	if !b.live.IsEmpty() {
		panic(moerr.NewInvalidStateNoCtx("release of a block with %d live elements", b.live.GetCardinality()))
	}
	delete(c.blocks, base)
	c.inner.Release(block, n)
}

func (c *CheckedAllocator[T]) Construct(slot *T, v T) {
	if b, idx, ok := c.locate(slot); ok {
		if !b.live.CheckedAdd(idx) {
			panic(moerr.NewConstructOnLiveNoCtx(int(idx)))
		}
	}
	c.inner.Construct(slot, v)
}

func (c *CheckedAllocator[T]) Destroy(slot *T) {
	if b, idx, ok := c.locate(slot); ok {
		if !b.live.CheckedRemove(idx) {
			panic(moerr.NewDoubleDestroyNoCtx(int(idx)))
		}
	}
	c.inner.Destroy(slot)
}

// Live returns the number of live elements across all outstanding blocks.
func (c *CheckedAllocator[T]) Live() uint64 {
	var n uint64
	for _, b := range c.blocks {
		n += b.live.GetCardinality()
	}
	return n
}

// Outstanding returns the number of blocks acquired and not yet released.
func (c *CheckedAllocator[T]) Outstanding() int {
	return len(c.blocks)
}

// Blocks of zero sized elements all share one address and are not tracked.
func tracked[T any]() bool {
	return unsafe.Sizeof(*new(T)) != 0
}

// locate finds the block containing slot and the slot's index in it.
func (c *CheckedAllocator[T]) locate(slot *T) (*checkedBlock, uint32, bool) {
	if !tracked[T]() {
		return nil, 0, false
	}
	size := unsafe.Sizeof(*slot)
	addr := uintptr(unsafe.Pointer(slot))
	for base, b := range c.blocks {
		start := uintptr(unsafe.Pointer(base))
		if addr >= start && addr < start+uintptr(b.n)*size {
			return b, uint32((addr - start) / size), true
		}
	}
	panic(moerr.NewInvalidStateNoCtx("slot %#x is outside every acquired block", addr))
}

// Traits are the wrapped allocator's, except that block bookkeeping is per
// instance, so instances are never interchangeable.
func (c *CheckedAllocator[T]) Traits() Traits {
	t := c.inner.Traits()
	t.AlwaysEqual = false
	return t
}

func (c *CheckedAllocator[T]) Equal(other Allocator[T]) bool {
	o, ok := other.(*CheckedAllocator[T])
	return ok && o == c
}
