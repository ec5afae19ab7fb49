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

// HeapAllocator takes blocks from the Go heap. It is stateless, so any two
// instances are interchangeable.
type HeapAllocator[T any] struct{}

func NewHeapAllocator[T any]() HeapAllocator[T] {
	return HeapAllocator[T]{}
}

var _ Allocator[int] = HeapAllocator[int]{}

func (HeapAllocator[T]) Acquire(n int) ([]T, error) {
	if n == 0 {
		return nil, nil
	}
	if n < 0 || n > maxCapacity[T]() {
		return nil, moerr.NewOOMNoCtx()
	}
	return make([]T, n), nil
}

// Release drops the block; the collector reclaims it. Slots were zeroed by
// Destroy, so nothing stays reachable through the old block.
func (HeapAllocator[T]) Release(block []T, n int) {}

func (HeapAllocator[T]) Construct(slot *T, v T) {
	*slot = v
}

func (HeapAllocator[T]) Destroy(slot *T) {
	DestroyAt(slot)
}

func (HeapAllocator[T]) Traits() Traits {
	return Traits{
		PropagateOnCopy: false,
		PropagateOnMove: true,
		PropagateOnSwap: false,
		AlwaysEqual:     true,
	}
}

func (HeapAllocator[T]) Equal(other Allocator[T]) bool {
	_, ok := other.(HeapAllocator[T])
	return ok
}
