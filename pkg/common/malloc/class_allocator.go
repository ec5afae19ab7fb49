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

package malloc

import (
	"sync/atomic"
)

// ClassAllocator rounds requests up to a size class and keeps freed blocks of
// each class in a bounded channel for reuse. Requests above the largest class
// go straight to the Go heap.
type ClassAllocator struct {
	classSizes []uint64
	pools      []classAllocatorPool
}

type classAllocatorPool struct {
	numAlloc atomic.Int64
	numFree  atomic.Int64
	ch       chan *classAllocatorHandle
}

type classAllocatorHandle struct {
	slice     []byte
	class     int
	allocator *ClassAllocator
}

var dumbHandle = &classAllocatorHandle{
	class: -1,
}

const (
	minClassSize    = 128
	maxClassSize    = 8 * MB
	classSizeFactor = 1.8
)

func NewClassAllocator(
	maxBufferSize uint64,
) *ClassAllocator {

	classSizes := func() (ret []uint64) {
		for size := uint64(minClassSize); size <= maxClassSize; size = uint64(float64(size) * classSizeFactor) {
			ret = append(ret, size)
		}
		return
	}()

	classSumSize := func() (ret uint64) {
		for _, size := range classSizes {
			ret += size
		}
		return
	}()

	bufferedObjectsPerClass := int(maxBufferSize / classSumSize)

	pools := make([]classAllocatorPool, len(classSizes))
	for i := range pools {
		pools[i].ch = make(chan *classAllocatorHandle, bufferedObjectsPerClass)
	}

	return &ClassAllocator{
		classSizes: classSizes,
		pools:      pools,
	}
}

var _ Allocator = new(ClassAllocator)

func (c *ClassAllocator) requestSizeToClass(size uint64) int {
	for class, classSize := range c.classSizes {
		if classSize >= size {
			return class
		}
	}
	return -1
}

func (c *ClassAllocator) classAllocate(class int, hints Hints) *classAllocatorHandle {
	select {
	case handle := <-c.pools[class].ch:
		c.pools[class].numAlloc.Add(1)
		if hints&NoClear == 0 {
			clear(handle.slice)
		}
		return handle
	default:
		return &classAllocatorHandle{
			slice:     make([]byte, c.classSizes[class]),
			class:     class,
			allocator: c,
		}
	}
}

func (c *ClassAllocator) Allocate(size uint64, hints Hints) ([]byte, Deallocator, error) {
	if size == 0 {
		return nil, dumbHandle, nil
	}
	class := c.requestSizeToClass(size)
	if class == -1 {
		return make([]byte, size), dumbHandle, nil
	}
	handle := c.classAllocate(class, hints)
	return handle.slice[:size], handle, nil
}

// Stats returns how many allocations were served from, and how many frees
// were returned to, the class pools.
func (c *ClassAllocator) Stats() (reused, recycled int64) {
	for i := range c.pools {
		reused += c.pools[i].numAlloc.Load()
		recycled += c.pools[i].numFree.Load()
	}
	return
}

func (h *classAllocatorHandle) Deallocate(hints Hints) {
	if h.class < 0 || hints&DoNotReuse > 0 {
		return
	}
	select {
	case h.allocator.pools[h.class].ch <- h:
		h.allocator.pools[h.class].numFree.Add(1)
	default:
	}
}

func (h *classAllocatorHandle) As(Trait) bool {
	return false
}
