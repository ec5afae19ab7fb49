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

// Traits are the propagation flags of an allocator strategy. They describe
// the allocator type, not an instance: every value of a given allocator type
// reports the same Traits.
type Traits struct {
	// PropagateOnCopy makes a clone share the source's allocator.
	PropagateOnCopy bool
	// PropagateOnMove makes the allocator follow the block on move assignment.
	PropagateOnMove bool
	// PropagateOnSwap makes Swap exchange the allocators with the blocks.
	PropagateOnSwap bool
	// AlwaysEqual means any instance of the same allocator type can release
	// blocks acquired by any other. It says nothing about other types, so
	// ownership transfers still go through Equal.
	AlwaysEqual bool
}

// Allocator separates raw storage from element lifetime.
//
// Acquire returns storage for exactly n elements without starting the
// lifetime of any of them, and Release gives it back. Release must be called
// with a block obtained from Acquire of an equal allocator and the same n,
// and only after every element in it has been destroyed.
//
// Construct begins the lifetime of one element in a slot that holds none,
// Destroy ends the lifetime of the element in slot and leaves the slot
// reserved but empty.
type Allocator[T any] interface {
	Acquire(n int) ([]T, error)
	Release(block []T, n int)
	Construct(slot *T, v T)
	Destroy(slot *T)
	Traits() Traits
	Equal(other Allocator[T]) bool
}

// Destructor is implemented by element types that own resources which must
// be released when the element's lifetime ends. Destruct is also run on
// moved-from elements, which hold the zero value, and must accept it.
type Destructor interface {
	Destruct()
}

// Cloner is implemented by element types whose copies must not share owned
// resources with the original.
type Cloner[T any] interface {
	Clone() T
}

// DestroyAt ends the lifetime of the element in slot: it runs Destruct when
// *T implements Destructor and resets the slot to the zero value so the
// collector does not see stale references.
func DestroyAt[T any](slot *T) {
	if d, ok := any(slot).(Destructor); ok {
		d.Destruct()
	}
	var zero T
	*slot = zero
}

// copyOf returns an independent copy of *v.
func copyOf[T any](v *T) T {
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone()
	}
	return *v
}

// take moves the value out of slot, leaving the zero value behind.
func take[T any](slot *T) T {
	v := *slot
	var zero T
	*slot = zero
	return v
}
