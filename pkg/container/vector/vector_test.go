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
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/rawvec/pkg/common/malloc"
	"github.com/matrixorigin/rawvec/pkg/common/moerr"
	"github.com/matrixorigin/rawvec/pkg/util/fault"
)

// handle is a resource that must have exactly one owner at a time.
type handle struct {
	id       int
	owners   int
	released int
}

type resource struct {
	h *handle
}

func newResource(id int) resource {
	return resource{h: &handle{id: id, owners: 1}}
}

func (r *resource) Destruct() {
	if r.h == nil {
		return
	}
	r.h.owners--
	if r.h.owners == 0 {
		r.h.released++
	}
}

func (r *resource) Clone() resource {
	if r.h == nil {
		return resource{}
	}
	r.h.owners++
	return resource{h: r.h}
}

// tracedAllocator is a heap allocator with configurable traits whose
// instances only compare equal to themselves.
type tracedAllocator[T any] struct {
	HeapAllocator[T]
	traits Traits
}

func (a *tracedAllocator[T]) Traits() Traits {
	return a.traits
}

func (a *tracedAllocator[T]) Equal(other Allocator[T]) bool {
	return other == Allocator[T](a)
}

func requirePanicsWithCode(t *testing.T, code uint16, fn func()) {
	t.Helper()
	defer func() {
		e := recover()
		require.NotNil(t, e)
		err, ok := e.(*moerr.Error)
		require.True(t, ok, "unexpected panic %v", e)
		require.Equal(t, code, err.ErrorCode())
	}()
	fn()
}

func TestAppendReadback(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 17, 1000} {
		v := New[int]()
		for i := 0; i < n; i++ {
			require.NoError(t, v.Append(i*3))
		}
		require.Equal(t, n, v.Len())
		require.GreaterOrEqual(t, v.Cap(), n)
		for i := 0; i < n; i++ {
			require.Equal(t, i*3, *v.At(i))
		}
		v.Free()
	}
}

func TestGrowthPreservesOrder(t *testing.T) {
	grown := New[string]()
	require.Equal(t, 0, grown.Cap())
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, grown.Append(s))
	}

	sized, err := NewWithCapacity[string](3)
	require.NoError(t, err)
	require.Equal(t, 3, sized.Cap())
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, sized.Append(s))
	}
	require.Equal(t, 3, sized.Cap())
	require.Equal(t, sized.Slice(), grown.Slice())
	require.Equal(t, []string{"a", "b", "c"}, grown.Slice())
}

func TestGrowthMovesElements(t *testing.T) {
	alloc := NewCountingAllocator[resource](NewHeapAllocator[resource]())
	v := New(WithAllocator[resource](alloc))

	var handles []*handle
	for i := 0; i < 4; i++ {
		r := newResource(i)
		handles = append(handles, r.h)
		require.NoError(t, v.AppendMove(&r))
		require.Nil(t, r.h)
	}
	require.Equal(t, 4, v.Cap())
	// capacities 1, 2, 4: three blocks, the first two relocated
	require.Equal(t, AllocatorStats{
		Acquired:    3,
		Released:    2,
		Constructed: 4 + 0 + 1 + 2,
		Destroyed:   0 + 1 + 2,
	}, alloc.Stats())

	before := alloc.Stats()
	r := newResource(4)
	handles = append(handles, r.h)
	require.NoError(t, v.AppendMove(&r))
	after := alloc.Stats()
	require.Equal(t, 8, v.Cap())

	// one construct and one destroy per relocated element, plus the new one
	require.Equal(t, int64(4+1), after.Constructed-before.Constructed)
	require.Equal(t, int64(4), after.Destroyed-before.Destroyed)
	require.Equal(t, int64(5), after.Live())
	require.Equal(t, int64(1), after.Outstanding())

	for i, h := range handles {
		require.Same(t, h, v.At(i).h)
		require.Equal(t, 1, h.owners)
		require.Equal(t, 0, h.released)
	}

	v.Free()
	for _, h := range handles {
		require.Equal(t, 0, h.owners)
		require.Equal(t, 1, h.released)
	}
	require.Equal(t, int64(0), alloc.Stats().Live())
	require.Equal(t, int64(0), alloc.Stats().Outstanding())
}

func TestClear(t *testing.T) {
	v := New[resource]()
	var handles []*handle
	for i := 0; i < 5; i++ {
		r := newResource(i)
		handles = append(handles, r.h)
		require.NoError(t, v.AppendMove(&r))
	}
	capacity := v.Cap()
	v.Clear()
	require.Equal(t, 0, v.Len())
	require.True(t, v.Empty())
	require.Equal(t, capacity, v.Cap())
	for _, h := range handles {
		require.Equal(t, 1, h.released)
	}

	// storage is reused
	data := v.Data()
	require.NoError(t, v.Append(newResource(9)))
	require.Same(t, data, v.Data())
	v.Free()
}

func TestPopBack(t *testing.T) {
	alloc := NewCountingAllocator[resource](NewHeapAllocator[resource]())
	v := New(WithAllocator[resource](alloc))
	v.PopBack()
	require.Equal(t, AllocatorStats{}, alloc.Stats())
	require.Equal(t, 0, v.Len())
	require.Equal(t, 0, v.Cap())

	a, b := newResource(1), newResource(2)
	ha, hb := a.h, b.h
	require.NoError(t, v.AppendMove(&a))
	require.NoError(t, v.AppendMove(&b))
	capacity := v.Cap()

	v.PopBack()
	require.Equal(t, 1, v.Len())
	require.Equal(t, capacity, v.Cap())
	require.Equal(t, 1, hb.released)
	require.Equal(t, 0, ha.released)
	require.Same(t, ha, v.Back().h)
}

func TestRoundTrip(t *testing.T) {
	const n = 100
	checked := NewCheckedAllocator[resource](NewHeapAllocator[resource]())
	alloc := NewCountingAllocator[resource](checked)
	v := New(WithAllocator[resource](alloc))

	var handles []*handle
	for i := 0; i < n; i++ {
		r := newResource(i)
		handles = append(handles, r.h)
		require.NoError(t, v.AppendMove(&r))
	}
	for i := 0; i < n; i++ {
		v.PopBack()
	}
	require.Equal(t, 0, v.Len())
	for _, h := range handles {
		require.Equal(t, 1, h.released)
	}
	stats := alloc.Stats()
	require.Equal(t, stats.Constructed, stats.Destroyed)
	require.Equal(t, uint64(0), checked.Live())

	v.Free()
	require.Equal(t, 0, checked.Outstanding())
}

func TestTake(t *testing.T) {
	alloc := NewCountingAllocator[resource](NewHeapAllocator[resource]())
	a := New(WithAllocator[resource](alloc), WithGrowthPolicy[resource](PowerOfTwo{}))
	for i := 0; i < 3; i++ {
		require.NoError(t, a.Append(newResource(i)))
	}
	data := a.Data()

	b := a.Take()
	require.Equal(t, 0, a.Len())
	require.Equal(t, 0, a.Cap())
	require.Nil(t, a.Data())
	require.Equal(t, 3, b.Len())
	require.Same(t, data, b.Data())
	require.Same(t, alloc, b.Allocator())
	require.Equal(t, PowerOfTwo{}, b.GrowthPolicy())

	before := alloc.Stats()
	a.Free()
	require.Equal(t, before, alloc.Stats())

	// the moved-from vector is reusable
	require.NoError(t, a.Append(newResource(7)))
	require.Equal(t, 1, a.Len())
	a.Free()
	b.Free()
}

func TestMoveFrom(t *testing.T) {
	dst := New[resource]()
	old := newResource(0)
	hOld := old.h
	require.NoError(t, dst.AppendMove(&old))

	src := New[resource]()
	for i := 1; i <= 3; i++ {
		require.NoError(t, src.Append(newResource(i)))
	}
	data := src.Data()

	dst.MoveFrom(src)
	require.Equal(t, 1, hOld.released)
	require.Equal(t, 3, dst.Len())
	require.Same(t, data, dst.Data())
	require.Equal(t, 0, src.Len())
	require.Equal(t, 0, src.Cap())
	require.Equal(t, 1, dst.At(0).h.id)

	dst.MoveFrom(dst)
	require.Equal(t, 3, dst.Len())
}

func TestMoveFromAllocators(t *testing.T) {
	t.Run("propagate", func(t *testing.T) {
		traits := Traits{PropagateOnMove: true}
		a1 := &tracedAllocator[int]{traits: traits}
		a2 := &tracedAllocator[int]{traits: traits}
		dst := New(WithAllocator[int](a1))
		src := New(WithAllocator[int](a2))
		require.NoError(t, src.Append(1))
		dst.MoveFrom(src)
		require.Same(t, a2, dst.Allocator())
		require.Equal(t, []int{1}, dst.Slice())
	})

	t.Run("mismatch", func(t *testing.T) {
		a1 := &tracedAllocator[int]{}
		a2 := &tracedAllocator[int]{}
		dst := New(WithAllocator[int](a1))
		src := New(WithAllocator[int](a2))
		require.NoError(t, dst.Append(1))
		require.NoError(t, src.Append(2))
		requirePanicsWithCode(t, moerr.ErrAllocatorMismatch, func() {
			dst.MoveFrom(src)
		})
		require.Equal(t, []int{1}, dst.Slice())
		require.Equal(t, []int{2}, src.Slice())
	})

	t.Run("equal", func(t *testing.T) {
		a := &tracedAllocator[int]{}
		dst := New(WithAllocator[int](a))
		src := New(WithAllocator[int](a))
		require.NoError(t, src.Append(2))
		dst.MoveFrom(src)
		require.Equal(t, []int{2}, dst.Slice())
	})
}

func TestSwap(t *testing.T) {
	a, err := Of(1, 2, 3)
	require.NoError(t, err)
	b, err := Of(4)
	require.NoError(t, err)
	a.Swap(b)
	require.Equal(t, []int{4}, a.Slice())
	require.Equal(t, []int{1, 2, 3}, b.Slice())
	a.Swap(a)
	require.Equal(t, []int{4}, a.Slice())

	t.Run("propagate", func(t *testing.T) {
		traits := Traits{PropagateOnSwap: true}
		a1 := &tracedAllocator[int]{traits: traits}
		a2 := &tracedAllocator[int]{traits: traits}
		x := New(WithAllocator[int](a1))
		y := New(WithAllocator[int](a2))
		require.NoError(t, x.Append(1))
		x.Swap(y)
		require.Same(t, a2, x.Allocator())
		require.Same(t, a1, y.Allocator())
		require.Equal(t, []int{1}, y.Slice())
		require.Equal(t, 0, x.Len())
	})

	t.Run("mismatch", func(t *testing.T) {
		x := New(WithAllocator[int](&tracedAllocator[int]{}))
		y := New(WithAllocator[int](&tracedAllocator[int]{}))
		require.NoError(t, x.Append(1))
		requirePanicsWithCode(t, moerr.ErrAllocatorMismatch, func() {
			x.Swap(y)
		})
		require.Equal(t, []int{1}, x.Slice())
	})
}

func TestSwapAcrossAllocatorTypes(t *testing.T) {
	others := map[string]func() Allocator[int64]{
		"heap": func() Allocator[int64] { return NewHeapAllocator[int64]() },
		"counting": func() Allocator[int64] {
			return NewCountingAllocator[int64](NewHeapAllocator[int64]())
		},
	}
	for name, newOther := range others {
		t.Run(name, func(t *testing.T) {
			pool := NewPoolAllocator[int64]("pool", malloc.NewGoAllocator())
			h := New(WithAllocator[int64](newOther()))
			p := New(WithAllocator[int64](pool))
			require.NoError(t, h.AppendSlice(1, 2, 3))
			require.NoError(t, p.Append(4))
			hAlloc, hCap := h.Allocator(), h.Cap()
			pCap := p.Cap()

			requirePanicsWithCode(t, moerr.ErrAllocatorMismatch, func() {
				h.Swap(p)
			})
			requirePanicsWithCode(t, moerr.ErrAllocatorMismatch, func() {
				p.Swap(h)
			})

			require.Equal(t, []int64{1, 2, 3}, h.Slice())
			require.Equal(t, hCap, h.Cap())
			require.Equal(t, hAlloc, h.Allocator())
			require.Equal(t, []int64{4}, p.Slice())
			require.Equal(t, pCap, p.Cap())
			require.Same(t, pool, p.Allocator())
			require.Equal(t, 1, pool.Outstanding())

			require.NoError(t, p.Append(5))
			h.Free()
			p.Free()
			require.Equal(t, 0, pool.Outstanding())
		})
	}
}

func TestMoveFromAcrossAllocatorTypes(t *testing.T) {
	pool := NewPoolAllocator[int64]("pool", malloc.NewGoAllocator())

	t.Run("mismatch", func(t *testing.T) {
		// interchangeable within its own type only
		a := &tracedAllocator[int64]{traits: Traits{AlwaysEqual: true}}
		dst := New(WithAllocator[int64](a))
		src := New(WithAllocator[int64](pool))
		require.NoError(t, dst.Append(1))
		require.NoError(t, src.AppendSlice(2, 3))
		requirePanicsWithCode(t, moerr.ErrAllocatorMismatch, func() {
			dst.MoveFrom(src)
		})
		require.Equal(t, []int64{1}, dst.Slice())
		require.Equal(t, []int64{2, 3}, src.Slice())
		require.Equal(t, 1, pool.Outstanding())
		src.Free()
		dst.Free()
		require.Equal(t, 0, pool.Outstanding())
	})

	t.Run("propagate", func(t *testing.T) {
		dst := New[int64]()
		src := New(WithAllocator[int64](pool))
		require.NoError(t, src.AppendSlice(2, 3))
		dst.MoveFrom(src)
		require.Same(t, pool, dst.Allocator())
		require.Equal(t, []int64{2, 3}, dst.Slice())
		require.Equal(t, 0, src.Cap())
		dst.Free()
		require.Equal(t, 0, pool.Outstanding())
	})
}

func TestAllocationFailureFault(t *testing.T) {
	v, err := Of("x", "y")
	require.NoError(t, err)
	require.Equal(t, 2, v.Cap())

	fault.Enable()
	defer fault.Disable()
	require.NoError(t, fault.AddFaultPoint(context.Background(), FaultPointAcquire, ":::", "return", 0, ""))

	err = v.Append("z")
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))
	require.Equal(t, 2, v.Len())
	require.Equal(t, 2, v.Cap())
	require.Equal(t, []string{"x", "y"}, v.Slice())

	z := "z"
	require.Error(t, v.AppendMove(&z))
	require.Equal(t, "z", z)
	require.Error(t, v.Emplace(nil))
	require.Error(t, v.Reserve(10))
	require.Equal(t, []string{"x", "y"}, v.Slice())

	require.NoError(t, fault.RemoveFaultPoint(context.Background(), FaultPointAcquire))
	require.NoError(t, v.Append("z"))
	require.Equal(t, []string{"x", "y", "z"}, v.Slice())
}

func TestNewFromSeq(t *testing.T) {
	v, err := NewFromSeq(slices.Values([]int{5, 6, 7}))
	require.NoError(t, err)
	require.Equal(t, []int{5, 6, 7}, v.Slice())

	fault.Enable()
	defer fault.Disable()
	// the second acquisition fails
	require.NoError(t, fault.AddFaultPoint(context.Background(), FaultPointAcquire, "2:2::", "return", 0, ""))
	h := newResource(0).h
	_, err = NewFromSeq[resource](func(yield func(resource) bool) {
		if !yield(resource{h: h}) {
			return
		}
		yield(newResource(1))
	})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))
	require.Equal(t, 1, h.released)
}

func TestLiteral(t *testing.T) {
	v, err := Of(1, 2, 3, 4)
	require.NoError(t, err)
	require.Equal(t, 4, v.Len())
	require.GreaterOrEqual(t, v.Cap(), 4)
	for i := 0; i < 4; i++ {
		require.Equal(t, i+1, *v.At(i))
	}

	empty, err := Of[int]()
	require.NoError(t, err)
	require.Equal(t, 0, empty.Cap())
}

func TestNewFromSliceCopies(t *testing.T) {
	src := []resource{newResource(1), newResource(2)}
	v, err := NewFromSlice(src, WithGrowthPolicy[resource](PowerOfTwo{}))
	require.NoError(t, err)
	require.Equal(t, 2, v.Len())
	for i := range src {
		require.Same(t, src[i].h, v.At(i).h)
		require.Equal(t, 2, src[i].h.owners)
	}
	v.Free()
	for i := range src {
		require.Equal(t, 1, src[i].h.owners)
		require.Equal(t, 0, src[i].h.released)
	}
}

func TestFrontBack(t *testing.T) {
	v := New[int]()
	requirePanicsWithCode(t, moerr.ErrEmptyVector, func() { v.Front() })
	requirePanicsWithCode(t, moerr.ErrEmptyVector, func() { v.Back() })

	require.NoError(t, v.AppendSlice(1, 2, 3))
	require.Equal(t, 1, *v.Front())
	require.Equal(t, 3, *v.Back())
	*v.Front() = 10
	require.Equal(t, 10, *v.At(0))
}

func TestAtOutOfRange(t *testing.T) {
	v := New[int]()
	require.NoError(t, v.Reserve(10))
	require.NoError(t, v.Append(1))
	require.Panics(t, func() { v.At(1) })
	require.Panics(t, func() { v.At(-1) })
}

func TestIteration(t *testing.T) {
	v, err := Of("a", "b", "c")
	require.NoError(t, err)

	for round := 0; round < 2; round++ {
		var idx []int
		var got []string
		for i, s := range v.All() {
			idx = append(idx, i)
			got = append(got, *s)
		}
		require.Equal(t, []int{0, 1, 2}, idx)
		require.Equal(t, []string{"a", "b", "c"}, got)
	}

	var got []string
	for s := range v.Values() {
		got = append(got, *s)
		if len(got) == 2 {
			break
		}
	}
	require.Equal(t, []string{"a", "b"}, got)

	for _, s := range v.All() {
		*s += "!"
	}
	require.Equal(t, []string{"a!", "b!", "c!"}, v.Slice())
}

func TestEmplace(t *testing.T) {
	type point struct {
		x, y int
	}
	v := New[point]()
	require.NoError(t, v.Emplace(func(p *point) {
		p.x, p.y = 1, 2
	}))
	require.NoError(t, v.Emplace(nil))
	require.Equal(t, []point{{1, 2}, {0, 0}}, v.Slice())

	// a panicking init leaves a live element behind
	alloc := NewCheckedAllocator[point](NewHeapAllocator[point]())
	w := New(WithAllocator[point](alloc))
	require.Panics(t, func() {
		_ = w.Emplace(func(p *point) {
			p.x = 1
			panic("init")
		})
	})
	require.Equal(t, 1, w.Len())
	w.Free()
	require.Equal(t, 0, alloc.Outstanding())
}

func TestReserveShrink(t *testing.T) {
	v := New[int]()
	require.NoError(t, v.Reserve(0))
	require.Nil(t, v.Data())

	require.NoError(t, v.Reserve(10))
	require.Equal(t, 10, v.Cap())
	require.NoError(t, v.Reserve(5))
	require.Equal(t, 10, v.Cap())

	require.NoError(t, v.AppendSlice(1, 2, 3))
	require.NoError(t, v.ShrinkToFit())
	require.Equal(t, 3, v.Cap())
	require.Equal(t, []int{1, 2, 3}, v.Slice())

	v.Clear()
	require.NoError(t, v.ShrinkToFit())
	require.Equal(t, 0, v.Cap())
	require.Nil(t, v.Data())

	requirePanicsWithCode(t, moerr.ErrCapacityOverflow, func() {
		_ = v.Reserve(maxCapacity[int]() + 1)
	})
}

func TestClone(t *testing.T) {
	src := New[resource]()
	for i := 0; i < 3; i++ {
		r := newResource(i)
		require.NoError(t, src.AppendMove(&r))
	}
	dst, err := src.Clone()
	require.NoError(t, err)
	require.Equal(t, 3, dst.Len())
	require.NotSame(t, src.Data(), dst.Data())
	for i := 0; i < 3; i++ {
		require.Equal(t, 2, src.At(i).h.owners)
	}
	dst.Free()
	for i := 0; i < 3; i++ {
		require.Equal(t, 1, src.At(i).h.owners)
	}

	t.Run("propagate on copy", func(t *testing.T) {
		a := &tracedAllocator[int]{traits: Traits{PropagateOnCopy: true}}
		v := New(WithAllocator[int](a))
		require.NoError(t, v.Append(1))
		c, err := v.Clone()
		require.NoError(t, err)
		require.Same(t, a, c.Allocator())
	})

	t.Run("no propagation", func(t *testing.T) {
		a := &tracedAllocator[int]{}
		v := New(WithAllocator[int](a))
		require.NoError(t, v.Append(1))
		c, err := v.Clone()
		require.NoError(t, err)
		require.Equal(t, Allocator[int](NewHeapAllocator[int]()), c.Allocator())

		other := &tracedAllocator[int]{}
		c, err = v.Clone(WithAllocator[int](other))
		require.NoError(t, err)
		require.Same(t, other, c.Allocator())
		require.Equal(t, []int{1}, c.Slice())
	})
}

func TestZeroValueVector(t *testing.T) {
	var v Vector[int]
	v.PopBack()
	v.Clear()
	v.Free()
	require.Equal(t, 0, v.Len())
	require.NoError(t, v.Append(1))
	require.Equal(t, []int{1}, v.Slice())
	require.Equal(t, Allocator[int](NewHeapAllocator[int]()), v.Allocator())
	require.Equal(t, Doubling{}, v.GrowthPolicy())
}

func TestZeroSizedElements(t *testing.T) {
	alloc := NewCheckedAllocator[struct{}](NewHeapAllocator[struct{}]())
	v := New(WithAllocator[struct{}](alloc))
	for i := 0; i < 10; i++ {
		require.NoError(t, v.Append(struct{}{}))
	}
	require.Equal(t, 10, v.Len())
	v.Free()
	require.Equal(t, 0, alloc.Outstanding())
}
