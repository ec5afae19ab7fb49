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

// Package malloc provides byte block allocators. Every allocator returns the
// block together with the Deallocator that gives it back; callers must call
// Deallocate exactly once and must not touch the block afterwards.
package malloc

//go:generate mockgen -destination=mock/mock_allocator.go -package=mock_malloc . Allocator,Deallocator

const (
	B = 1 << (10 * iota)
	KB
	MB
	GB
)

type Allocator interface {
	Allocate(size uint64, hints Hints) ([]byte, Deallocator, error)
}

type Deallocator interface {
	Deallocate(hints Hints)
	As(Trait) bool
}

type Hints uint64

const (
	NoHints Hints = 0
	// NoClear tells the allocator the caller does not need zeroed memory.
	NoClear Hints = 1 << iota
	// DoNotReuse asks the allocator to return the memory to the system
	// instead of keeping it for later allocations.
	DoNotReuse
)

// Trait is queried from a Deallocator with As, e.g. to learn the mapping
// that backs a block.
type Trait interface {
	IsTrait()
}
