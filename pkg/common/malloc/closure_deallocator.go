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

import "sync"

type ClosureDeallocator[T any, P interface {
	*T
	As(Trait) bool
}] struct {
	argument T
	fn       func(Hints, *T)
	pool     *ClosureDeallocatorPool[T, P]
}

var _ Deallocator = &ClosureDeallocator[dummyDeallocatorArgs, *dummyDeallocatorArgs]{}

func (a *ClosureDeallocator[T, P]) SetArgument(arg T) {
	a.argument = arg
}

func (a *ClosureDeallocator[T, P]) Deallocate(hints Hints) {
	a.fn(hints, &a.argument)
	if a.pool != nil {
		a.pool.put(a)
	}
}

func (a *ClosureDeallocator[T, P]) As(trait Trait) bool {
	return P(&a.argument).As(trait)
}

// ClosureDeallocatorPool recycles ClosureDeallocator objects so that wrapping
// allocators do not allocate a closure per block.
type ClosureDeallocatorPool[T any, P interface {
	*T
	As(Trait) bool
}] struct {
	deallocate func(Hints, *T)
	pool       sync.Pool
}

func NewClosureDeallocatorPool[T any, P interface {
	*T
	As(Trait) bool
}](
	deallocateFunc func(Hints, *T),
) *ClosureDeallocatorPool[T, P] {
	ret := &ClosureDeallocatorPool[T, P]{
		deallocate: deallocateFunc,
	}

	ret.pool.New = func() any {
		return &ClosureDeallocator[T, P]{
			fn:   ret.deallocate,
			pool: ret,
		}
	}

	return ret
}

func (c *ClosureDeallocatorPool[T, P]) Get(args T) Deallocator {
	closure := c.pool.Get().(*ClosureDeallocator[T, P])
	closure.SetArgument(args)
	return closure
}

func (c *ClosureDeallocatorPool[T, P]) put(closure *ClosureDeallocator[T, P]) {
	var zero T
	closure.argument = zero
	c.pool.Put(closure)
}

type dummyDeallocatorArgs struct{}

func (dummyDeallocatorArgs) As(Trait) bool {
	return false
}
