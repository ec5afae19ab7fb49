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

	"github.com/matrixorigin/rawvec/pkg/common/moerr"
)

// LimitAllocator refuses allocations that would take the bytes in use past
// limit. A refused request returns an ErrOOM error and leaves the counters
// untouched.
type LimitAllocator[U Allocator] struct {
	upstream        U
	limit           uint64
	inuse           atomic.Uint64
	peak            *PeakInuseTracker
	deallocatorPool *ClosureDeallocatorPool[limitDeallocatorArgs, *limitDeallocatorArgs]
}

type limitDeallocatorArgs struct {
	size uint64
}

func (limitDeallocatorArgs) As(Trait) bool {
	return false
}

func NewLimitAllocator[U Allocator](
	upstream U,
	limit uint64,
) *LimitAllocator[U] {
	ret := &LimitAllocator[U]{
		upstream: upstream,
		limit:    limit,
		peak:     NewPeakInuseTracker(),
	}
	ret.deallocatorPool = NewClosureDeallocatorPool(
		func(hints Hints, args *limitDeallocatorArgs) {
			ret.inuse.Add(^(args.size - 1))
		},
	)
	return ret
}

var _ Allocator = new(LimitAllocator[Allocator])

func (l *LimitAllocator[U]) Allocate(size uint64, hints Hints) ([]byte, Deallocator, error) {
	for {
		cur := l.inuse.Load()
		if cur+size > l.limit {
			return nil, nil, moerr.NewOOMNoCtx()
		}
		if l.inuse.CompareAndSwap(cur, cur+size) {
			l.peak.Update(cur + size)
			break
		}
	}

	slice, dec, err := l.upstream.Allocate(size, hints)
	if err != nil {
		l.inuse.Add(^(size - 1))
		return nil, nil, err
	}
	return slice, ChainDeallocator(
		dec,
		l.deallocatorPool.Get(limitDeallocatorArgs{
			size: size,
		}),
	), nil
}

func (l *LimitAllocator[U]) Inuse() uint64 {
	return l.inuse.Load()
}

func (l *LimitAllocator[U]) Peak() *PeakInuseTracker {
	return l.peak
}
