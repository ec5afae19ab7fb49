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
	"sync"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/exp/constraints"

	"github.com/matrixorigin/rawvec/pkg/common/malloc"
	"github.com/matrixorigin/rawvec/pkg/common/moerr"
	"github.com/matrixorigin/rawvec/pkg/logutil"
)

// Scalar element types hold no Go pointers, so their blocks may live in
// memory the collector does not scan, like class pools or mmap regions.
type Scalar interface {
	constraints.Integer | constraints.Float
}

// PoolAllocator carves typed blocks out of a byte allocator. It is stateful:
// a block can only be released through the instance that acquired it, so
// two PoolAllocators are equal only when they are the same instance.
type PoolAllocator[T Scalar] struct {
	id       uuid.UUID
	name     string
	upstream malloc.Allocator
	hints    malloc.Hints

	mu     sync.Mutex
	blocks map[*T]malloc.Deallocator
}

var _ Allocator[int64] = (*PoolAllocator[int64])(nil)

func NewPoolAllocator[T Scalar](name string, upstream malloc.Allocator) *PoolAllocator[T] {
	p := &PoolAllocator[T]{
		id:       uuid.New(),
		name:     name,
		upstream: upstream,
		// Construct writes every slot before it is read
		hints:  malloc.NoClear,
		blocks: make(map[*T]malloc.Deallocator),
	}
	logutil.Debug("pool allocator created",
		zap.String("name", name),
		zap.String("id", p.id.String()),
		zap.Uintptr("elem-size", unsafe.Sizeof(*new(T))),
	)
	return p
}

func (p *PoolAllocator[T]) ID() uuid.UUID {
	return p.id
}

func (p *PoolAllocator[T]) Name() string {
	return p.name
}

func (p *PoolAllocator[T]) Acquire(n int) ([]T, error) {
	if n == 0 {
		return nil, nil
	}
	if n < 0 || n > maxCapacity[T]() {
		return nil, moerr.NewOOMNoCtx()
	}
	size := uint64(n) * uint64(unsafe.Sizeof(*new(T)))
	bs, dec, err := p.upstream.Allocate(size, p.hints)
	if err != nil {
		if moerr.IsMoErrCode(err, moerr.ErrOOM) {
			return nil, err
		}
		return nil, moerr.NewOOMNoCtx().WithDetail(err.Error())
	}
	base := (*T)(unsafe.Pointer(unsafe.SliceData(bs)))
	p.mu.Lock()
	p.blocks[base] = dec
	p.mu.Unlock()
	return unsafe.Slice(base, n), nil
}

func (p *PoolAllocator[T]) Release(block []T, n int) {
	if n == 0 {
		return
	}
	base := unsafe.SliceData(block)
	p.mu.Lock()
	dec, ok := p.blocks[base]
	delete(p.blocks, base)
	p.mu.Unlock()
	if !ok {
		panic(moerr.NewReleaseUnknownBlockNoCtx(n))
	}
	dec.Deallocate(malloc.NoHints)
}

func (p *PoolAllocator[T]) Construct(slot *T, v T) {
	*slot = v
}

func (p *PoolAllocator[T]) Destroy(slot *T) {
	DestroyAt(slot)
}

// Outstanding returns the number of blocks acquired and not yet released.
func (p *PoolAllocator[T]) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.blocks)
}

func (p *PoolAllocator[T]) Traits() Traits {
	return Traits{
		PropagateOnCopy: false,
		PropagateOnMove: true,
		PropagateOnSwap: false,
	}
}

func (p *PoolAllocator[T]) Equal(other Allocator[T]) bool {
	o, ok := other.(*PoolAllocator[T])
	return ok && o == p
}
