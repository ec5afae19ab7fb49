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

package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/matrixorigin/rawvec/pkg/common/malloc"
	"github.com/matrixorigin/rawvec/pkg/container/vector"
	"github.com/matrixorigin/rawvec/pkg/logutil"
)

// ByteStack is the byte allocator chain behind pool allocators:
// backend, then the optional limit, then the optional metrics wrapper.
type ByteStack struct {
	Allocator malloc.Allocator
	Limit     *malloc.LimitAllocator[malloc.Allocator]
	Metrics   *malloc.MetricsAllocator[malloc.Allocator]
}

// Flush pushes pending metric deltas to the collectors.
func (s *ByteStack) Flush() {
	if s != nil && s.Metrics != nil {
		s.Metrics.Flush()
	}
}

// NewByteStack builds the byte allocators for pool backends. It returns a
// nil stack for the heap backend. Metrics are registered with reg when
// enabled.
func (c *Config) NewByteStack(reg prometheus.Registerer) (*ByteStack, error) {
	if !c.IsPool() {
		return nil, nil
	}

	var backend malloc.Allocator
	switch c.Vector.Allocator {
	case AllocatorPoolGo:
		backend = malloc.NewGoAllocator()
	case AllocatorPoolClass:
		backend = malloc.NewClassAllocator(c.Vector.ClassBufferSize)
	case AllocatorPoolMmap:
		var err error
		if backend, err = newMmapAllocator(); err != nil {
			return nil, err
		}
	}

	stack := &ByteStack{Allocator: backend}
	if c.Vector.MemoryLimit > 0 {
		stack.Limit = malloc.NewLimitAllocator(stack.Allocator, c.Vector.MemoryLimit)
		stack.Allocator = stack.Limit
	}
	if c.Metrics.Enable {
		stack.Metrics = malloc.NewMetricsAllocator(
			stack.Allocator,
			malloc.NewMetricsCollectors(reg, c.Vector.Allocator),
			c.Metrics.FlushInterval.Duration,
		)
		stack.Allocator = stack.Metrics
	}

	logutil.Info("byte allocator ready",
		zap.String("backend", c.Vector.Allocator),
		zap.Uint64("memory-limit", c.Vector.MemoryLimit),
		zap.Bool("metrics", c.Metrics.Enable),
	)
	return stack, nil
}

// NewAllocator returns the element allocator the configuration selects,
// drawing from stack for pool backends.
func NewAllocator[T vector.Scalar](c *Config, stack *ByteStack) vector.Allocator[T] {
	var alloc vector.Allocator[T]
	if stack == nil {
		alloc = vector.NewHeapAllocator[T]()
	} else {
		alloc = vector.NewPoolAllocator[T](c.Vector.Allocator, stack.Allocator)
	}
	if c.Vector.Checked {
		alloc = vector.NewCheckedAllocator(alloc)
	}
	return alloc
}

// NewVector returns an empty vector set up as configured.
func NewVector[T any](c *Config, alloc vector.Allocator[T]) (*vector.Vector[T], error) {
	return vector.NewWithCapacity(
		c.Vector.InitialCapacity,
		vector.WithAllocator(alloc),
		vector.WithGrowthPolicy[T](c.GrowthPolicy()),
	)
}
