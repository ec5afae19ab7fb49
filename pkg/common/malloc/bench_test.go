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
	"testing"
)

func benchmarkAllocFree(b *testing.B, allocator Allocator) {
	for i := 0; i < b.N; i++ {
		_, dec, err := allocator.Allocate(4096, NoHints)
		if err != nil {
			b.Fatal(err)
		}
		dec.Deallocate(NoHints)
	}
}

func benchmarkParallelAllocFree(b *testing.B, allocator Allocator) {
	b.RunParallel(func(pb *testing.PB) {
		for size := uint64(1); pb.Next(); size++ {
			_, dec, err := allocator.Allocate(size%65536, NoClear)
			if err != nil {
				b.Fatal(err)
			}
			dec.Deallocate(NoHints)
		}
	})
}

func BenchmarkGoAllocFree(b *testing.B) {
	benchmarkAllocFree(b, NewGoAllocator())
}

func BenchmarkClassAllocFree(b *testing.B) {
	benchmarkAllocFree(b, NewClassAllocator(64*MB))
}

func BenchmarkParallelClassAllocFree(b *testing.B) {
	benchmarkParallelAllocFree(b, NewClassAllocator(64*MB))
}

func BenchmarkParallelMetricsAllocFree(b *testing.B) {
	benchmarkParallelAllocFree(b, NewMetricsAllocator(
		NewClassAllocator(64*MB),
		MetricsCollectors{},
		0,
	))
}
