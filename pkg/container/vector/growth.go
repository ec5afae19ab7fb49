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
	"math"
	"math/bits"
	"unsafe"

	"github.com/matrixorigin/rawvec/pkg/common/moerr"
)

// upper bound of a single block, the Go runtime refuses larger allocations
const maxAllocBytes = math.MaxInt >> (bits.UintSize / 64 * 16)

func maxCapacity[T any]() int {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return math.MaxInt
	}
	return maxAllocBytes / size
}

// GrowthPolicy decides the capacity of the next block.
//
// Next is called with live elements stored and room for need elements
// required, need > live. The result r satisfies need <= r <= limit. When
// need exceeds limit the request cannot be met and Next panics with
// ErrCapacityOverflow rather than return less than was asked for.
type GrowthPolicy interface {
	Next(live, need, limit int) int
	Name() string
}

const (
	GrowthDoubling   = "doubling"
	GrowthPowerOfTwo = "pow2"
)

// Doubling grows to twice the live count, and to at least one slot.
type Doubling struct{}

func (Doubling) Name() string {
	return GrowthDoubling
}

func (Doubling) Next(live, need, limit int) int {
	checkNeed(need, limit)
	next := 1
	if live > limit/2 {
		next = limit
	} else if live > 0 {
		next = live * 2
	}
	return max(next, need)
}

// PowerOfTwo grows to the smallest power of two that holds need elements and
// is above live, so capacities stay power of two aligned across doublings.
type PowerOfTwo struct{}

func (PowerOfTwo) Name() string {
	return GrowthPowerOfTwo
}

func (PowerOfTwo) Next(live, need, limit int) int {
	checkNeed(need, limit)
	want := max(need, live+1, 1)
	if want > 1<<(bits.UintSize-2) {
		return limit
	}
	next := 1 << bits.Len(uint(want-1))
	return min(next, limit)
}

func checkNeed(need, limit int) {
	if need > limit || need < 0 {
		panic(moerr.NewCapacityOverflowNoCtx(need, limit))
	}
}

// GrowthPolicyByName returns the policy registered under name.
func GrowthPolicyByName(name string) (GrowthPolicy, bool) {
	switch name {
	case GrowthDoubling, "":
		return Doubling{}, true
	case GrowthPowerOfTwo:
		return PowerOfTwo{}, true
	}
	return nil, false
}
