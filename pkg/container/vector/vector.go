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

// Package vector implements a growable contiguous container that owns one
// block of storage obtained from a pluggable Allocator. Storage acquisition
// and element lifetime are separate steps: slots [0, Len) hold live
// elements, slots [Len, Cap) are reserved and never read.
//
// A Vector is not safe for concurrent use. Pointers returned by At, Front,
// Back and the iterators are invalidated by any operation that grows,
// shrinks or releases the block.
package vector

import (
	"iter"
	"unsafe"

	"github.com/matrixorigin/rawvec/pkg/common/moerr"
	"github.com/matrixorigin/rawvec/pkg/util/fault"
)

// FaultPointAcquire makes block acquisition fail with ErrOOM while the
// fault point is armed, see pkg/util/fault.
const FaultPointAcquire = "vector.acquire"

type Vector[T any] struct {
	// len(block) is the capacity, nil when the capacity is zero
	block  []T
	count  int
	alloc  Allocator[T]
	growth GrowthPolicy
}

type Option[T any] func(*Vector[T])

func WithAllocator[T any](alloc Allocator[T]) Option[T] {
	return func(v *Vector[T]) {
		v.alloc = alloc
	}
}

func WithGrowthPolicy[T any](growth GrowthPolicy) Option[T] {
	return func(v *Vector[T]) {
		v.growth = growth
	}
}

// New returns an empty vector. Nothing is allocated until the first
// element is added.
func New[T any](opts ...Option[T]) *Vector[T] {
	v := &Vector[T]{}
	for _, opt := range opts {
		opt(v)
	}
	v.init()
	return v
}

// NewWithCapacity returns an empty vector with room for n elements.
func NewWithCapacity[T any](n int, opts ...Option[T]) (*Vector[T], error) {
	v := New(opts...)
	if err := v.Reserve(n); err != nil {
		return nil, err
	}
	return v, nil
}

// NewFromSlice returns a vector holding copies of src in order.
func NewFromSlice[T any](src []T, opts ...Option[T]) (*Vector[T], error) {
	v := New(opts...)
	if err := v.assign(src); err != nil {
		return nil, err
	}
	return v, nil
}

// Of returns a heap allocated vector holding vals.
func Of[T any](vals ...T) (*Vector[T], error) {
	return NewFromSlice(vals)
}

// NewFromSeq returns a vector holding the elements produced by seq, which
// must be finite.
func NewFromSeq[T any](seq iter.Seq[T], opts ...Option[T]) (*Vector[T], error) {
	v := New(opts...)
	for val := range seq {
		if err := v.AppendMove(&val); err != nil {
			v.Free()
			return nil, err
		}
	}
	return v, nil
}

// init makes the zero Vector usable.
func (v *Vector[T]) init() {
	if v.alloc == nil {
		v.alloc = NewHeapAllocator[T]()
	}
	if v.growth == nil {
		v.growth = Doubling{}
	}
}

func (v *Vector[T]) assign(src []T) error {
	if len(src) == 0 {
		return nil
	}
	if err := v.reserveExact(v.growth.Next(0, len(src), maxCapacity[T]())); err != nil {
		return err
	}
	for i := range src {
		v.alloc.Construct(&v.block[i], copyOf(&src[i]))
		v.count++
	}
	return nil
}

func (v *Vector[T]) acquire(n int) ([]T, error) {
	if _, _, ok := fault.TriggerFault(FaultPointAcquire); ok {
		return nil, moerr.NewOOMNoCtx()
	}
	return v.alloc.Acquire(n)
}

// relocate moves the live elements into a fresh block of capacity slots and
// releases the old block. On error the vector is unchanged.
func (v *Vector[T]) relocate(capacity int) error {
	block, err := v.acquire(capacity)
	if err != nil {
		return err
	}
	old := v.block
	for i := 0; i < v.count; i++ {
		v.alloc.Construct(&block[i], take(&old[i]))
		v.alloc.Destroy(&old[i])
	}
	v.block = block
	if old != nil {
		v.alloc.Release(old, len(old))
	}
	return nil
}

func (v *Vector[T]) reserveExact(n int) error {
	v.init()
	if n <= len(v.block) {
		return nil
	}
	if limit := maxCapacity[T](); n > limit {
		panic(moerr.NewCapacityOverflowNoCtx(n, limit))
	}
	return v.relocate(n)
}

// grow makes room for need elements using the growth policy.
func (v *Vector[T]) grow(need int) error {
	v.init()
	if need <= len(v.block) {
		return nil
	}
	return v.relocate(v.growth.Next(v.count, need, maxCapacity[T]()))
}

// slot returns the first free slot, growing the block if it is full.
func (v *Vector[T]) slot() (*T, error) {
	if v.count == len(v.block) {
		if err := v.grow(v.count + 1); err != nil {
			return nil, err
		}
	}
	return &v.block[v.count], nil
}

// Append adds a copy of val at the end. Elements implementing Cloner are
// copied with Clone.
func (v *Vector[T]) Append(val T) error {
	slot, err := v.slot()
	if err != nil {
		return err
	}
	v.alloc.Construct(slot, copyOf(&val))
	v.count++
	return nil
}

// AppendMove moves *src to the end and leaves the zero value in *src. On
// error *src is untouched.
func (v *Vector[T]) AppendMove(src *T) error {
	slot, err := v.slot()
	if err != nil {
		return err
	}
	v.alloc.Construct(slot, take(src))
	v.count++
	return nil
}

// AppendSlice appends copies of vals, growing at most once.
func (v *Vector[T]) AppendSlice(vals ...T) error {
	if len(vals) == 0 {
		return nil
	}
	limit := maxCapacity[T]()
	if len(vals) > limit-v.count {
		panic(moerr.NewCapacityOverflowNoCtx(v.count+len(vals), limit))
	}
	if err := v.grow(v.count + len(vals)); err != nil {
		return err
	}
	for i := range vals {
		v.alloc.Construct(&v.block[v.count], copyOf(&vals[i]))
		v.count++
	}
	return nil
}

// Emplace constructs a new element at the end in place: the slot starts
// with the zero value and is then filled by init. The element is live
// before init runs, so a panicking init leaves it to be destroyed with the
// rest of the vector.
func (v *Vector[T]) Emplace(init func(*T)) error {
	slot, err := v.slot()
	if err != nil {
		return err
	}
	var zero T
	v.alloc.Construct(slot, zero)
	v.count++
	if init != nil {
		init(slot)
	}
	return nil
}

// PopBack destroys the last element. It is a no-op on an empty vector and
// never releases storage.
func (v *Vector[T]) PopBack() {
	if v.count == 0 {
		return
	}
	v.alloc.Destroy(&v.block[v.count-1])
	v.count--
}

func (v *Vector[T]) Front() *T {
	if v.count == 0 {
		panic(moerr.NewEmptyVectorNoCtx())
	}
	return &v.block[0]
}

func (v *Vector[T]) Back() *T {
	if v.count == 0 {
		panic(moerr.NewEmptyVectorNoCtx())
	}
	return &v.block[v.count-1]
}

// At returns the element at i. i must be in [0, Len), anything else panics.
func (v *Vector[T]) At(i int) *T {
	return &v.block[:v.count][i]
}

// Clear destroys every element in index order. The capacity is kept.
func (v *Vector[T]) Clear() {
	for i := 0; i < v.count; i++ {
		v.alloc.Destroy(&v.block[i])
	}
	v.count = 0
}

// Free destroys every element and releases the block. The vector stays
// usable.
func (v *Vector[T]) Free() {
	v.Clear()
	if v.block != nil {
		v.alloc.Release(v.block, len(v.block))
		v.block = nil
	}
}

// Reserve makes the capacity at least n without changing the elements.
func (v *Vector[T]) Reserve(n int) error {
	return v.reserveExact(n)
}

// ShrinkToFit reduces the capacity to Len, releasing the block when the
// vector is empty.
func (v *Vector[T]) ShrinkToFit() error {
	if v.count == len(v.block) {
		return nil
	}
	if v.count == 0 {
		v.Free()
		return nil
	}
	return v.relocate(v.count)
}

// All yields index and element pointer pairs in index order.
func (v *Vector[T]) All() iter.Seq2[int, *T] {
	return func(yield func(int, *T) bool) {
		for i := 0; i < v.count; i++ {
			if !yield(i, &v.block[i]) {
				return
			}
		}
	}
}

// Values yields element pointers in index order.
func (v *Vector[T]) Values() iter.Seq[*T] {
	return func(yield func(*T) bool) {
		for i := 0; i < v.count; i++ {
			if !yield(&v.block[i]) {
				return
			}
		}
	}
}

func (v *Vector[T]) Len() int {
	return v.count
}

func (v *Vector[T]) Cap() int {
	return len(v.block)
}

func (v *Vector[T]) Empty() bool {
	return v.count == 0
}

// Slice returns the live elements. The slice aliases the block.
func (v *Vector[T]) Slice() []T {
	return v.block[:v.count:v.count]
}

// Data returns the base address of the block, nil when the capacity is 0.
func (v *Vector[T]) Data() *T {
	return unsafe.SliceData(v.block)
}

func (v *Vector[T]) Allocator() Allocator[T] {
	v.init()
	return v.alloc
}

func (v *Vector[T]) GrowthPolicy() GrowthPolicy {
	v.init()
	return v.growth
}
