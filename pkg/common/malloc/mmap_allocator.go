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

//go:build unix

package malloc

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/matrixorigin/rawvec/pkg/common/moerr"
)

// MmapAllocator maps a private anonymous region per block and unmaps it on
// Deallocate. The memory is outside the Go heap, so it must only hold values
// without Go pointers.
type MmapAllocator struct {
	pageSize        uint64
	deallocatorPool *ClosureDeallocatorPool[mmapDeallocatorArgs, *mmapDeallocatorArgs]
}

type mmapDeallocatorArgs struct {
	slice []byte
}

func (m mmapDeallocatorArgs) As(trait Trait) bool {
	if info, ok := trait.(*MmapInfo); ok {
		info.Addr = unsafe.Pointer(unsafe.SliceData(m.slice))
		info.Length = uint64(len(m.slice))
		return true
	}
	return false
}

type MmapInfo struct {
	Addr   unsafe.Pointer
	Length uint64
}

func (*MmapInfo) IsTrait() {}

// swapped in tests
var (
	mmap   = unix.Mmap
	munmap = unix.Munmap
)

func NewMmapAllocator() *MmapAllocator {
	return &MmapAllocator{
		pageSize: uint64(os.Getpagesize()),
		deallocatorPool: NewClosureDeallocatorPool(
			func(hints Hints, args *mmapDeallocatorArgs) {
				if err := munmap(args.slice); err != nil {
					panic(err)
				}
			},
		),
	}
}

var _ Allocator = new(MmapAllocator)

func (m *MmapAllocator) Allocate(size uint64, hints Hints) ([]byte, Deallocator, error) {
	if size == 0 {
		return nil, goDeallocator{}, nil
	}
	length := (size + m.pageSize - 1) / m.pageSize * m.pageSize
	slice, err := mmap(
		-1, 0,
		int(length),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
	)
	if err != nil {
		return nil, nil, moerr.NewOOMNoCtx().WithDetail(err.Error())
	}
	// fresh anonymous mappings are zero filled, NoClear has nothing to skip
	return slice[:size], m.deallocatorPool.Get(mmapDeallocatorArgs{
		slice: slice,
	}), nil
}
