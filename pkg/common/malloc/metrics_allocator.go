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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type MetricsAllocator[U Allocator] struct {
	upstream        U
	deallocatorPool *ClosureDeallocatorPool[metricsDeallocatorArgs, *metricsDeallocatorArgs]
	flushInterval   time.Duration

	allocateBytesCounter   prometheus.Counter
	inuseBytesGauge        prometheus.Gauge
	allocateObjectsCounter prometheus.Counter
	inuseObjectsGauge      prometheus.Gauge

	// deltas since the last flush
	allocateBytes   *ShardedCounter[uint64, atomic.Uint64, *atomic.Uint64]
	inuseBytes      *ShardedCounter[int64, atomic.Int64, *atomic.Int64]
	allocateObjects *ShardedCounter[uint64, atomic.Uint64, *atomic.Uint64]
	inuseObjects    *ShardedCounter[int64, atomic.Int64, *atomic.Int64]

	updating atomic.Bool
}

type metricsDeallocatorArgs struct {
	size uint64
}

func (metricsDeallocatorArgs) As(Trait) bool {
	return false
}

// MetricsCollectors is the set of collectors a MetricsAllocator reports to.
// Any of them may be nil.
type MetricsCollectors struct {
	AllocateBytes   prometheus.Counter
	InuseBytes      prometheus.Gauge
	AllocateObjects prometheus.Counter
	InuseObjects    prometheus.Gauge
}

// NewMetricsCollectors builds the collectors under the rawvec_mem namespace
// and registers them with reg when reg is not nil.
func NewMetricsCollectors(reg prometheus.Registerer, label string) MetricsCollectors {
	labels := prometheus.Labels{"type": label}
	ret := MetricsCollectors{
		AllocateBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "rawvec",
			Subsystem:   "mem",
			Name:        "allocate_bytes_total",
			Help:        "Total bytes allocated.",
			ConstLabels: labels,
		}),
		InuseBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "rawvec",
			Subsystem:   "mem",
			Name:        "inuse_bytes",
			Help:        "Bytes allocated and not yet deallocated.",
			ConstLabels: labels,
		}),
		AllocateObjects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "rawvec",
			Subsystem:   "mem",
			Name:        "allocate_objects_total",
			Help:        "Total blocks allocated.",
			ConstLabels: labels,
		}),
		InuseObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "rawvec",
			Subsystem:   "mem",
			Name:        "inuse_objects",
			Help:        "Blocks allocated and not yet deallocated.",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			ret.AllocateBytes,
			ret.InuseBytes,
			ret.AllocateObjects,
			ret.InuseObjects,
		)
	}
	return ret
}

func NewMetricsAllocator[U Allocator](
	upstream U,
	collectors MetricsCollectors,
	flushInterval time.Duration,
) *MetricsAllocator[U] {

	var ret *MetricsAllocator[U]

	ret = &MetricsAllocator[U]{
		upstream:               upstream,
		flushInterval:          flushInterval,
		allocateBytesCounter:   collectors.AllocateBytes,
		inuseBytesGauge:        collectors.InuseBytes,
		allocateObjectsCounter: collectors.AllocateObjects,
		inuseObjectsGauge:      collectors.InuseObjects,

		deallocatorPool: NewClosureDeallocatorPool(
			func(hints Hints, args *metricsDeallocatorArgs) {
				ret.inuseBytes.Add(-int64(args.size))
				ret.inuseObjects.Add(-1)
				ret.triggerUpdate()
			},
		),

		allocateBytes:   NewShardedCounter[uint64, atomic.Uint64](0),
		inuseBytes:      NewShardedCounter[int64, atomic.Int64](0),
		allocateObjects: NewShardedCounter[uint64, atomic.Uint64](0),
		inuseObjects:    NewShardedCounter[int64, atomic.Int64](0),
	}

	return ret
}

var _ Allocator = new(MetricsAllocator[Allocator])

func (m *MetricsAllocator[U]) Allocate(size uint64, hints Hints) ([]byte, Deallocator, error) {
	ptr, dec, err := m.upstream.Allocate(size, hints)
	if err != nil {
		return nil, nil, err
	}
	m.allocateBytes.Add(size)
	m.inuseBytes.Add(int64(size))
	m.allocateObjects.Add(1)
	m.inuseObjects.Add(1)
	m.triggerUpdate()

	return ptr, ChainDeallocator(
		dec,
		m.deallocatorPool.Get(metricsDeallocatorArgs{
			size: size,
		}),
	), nil
}

func (m *MetricsAllocator[U]) triggerUpdate() {
	if m.flushInterval <= 0 {
		// flushed explicitly
		return
	}
	if m.updating.CompareAndSwap(false, true) {
		time.AfterFunc(m.flushInterval, func() {
			m.Flush()
			m.updating.Store(false)
		})
	}
}

// Flush moves the accumulated deltas into the prometheus collectors.
func (m *MetricsAllocator[U]) Flush() {
	if m.allocateBytesCounter != nil {
		var n uint64
		m.allocateBytes.Each(func(v *atomic.Uint64) {
			n += v.Swap(0)
		})
		m.allocateBytesCounter.Add(float64(n))
	}

	if m.inuseBytesGauge != nil {
		var n int64
		m.inuseBytes.Each(func(v *atomic.Int64) {
			n += v.Swap(0)
		})
		m.inuseBytesGauge.Add(float64(n))
	}

	if m.allocateObjectsCounter != nil {
		var n uint64
		m.allocateObjects.Each(func(v *atomic.Uint64) {
			n += v.Swap(0)
		})
		m.allocateObjectsCounter.Add(float64(n))
	}

	if m.inuseObjectsGauge != nil {
		var n int64
		m.inuseObjects.Each(func(v *atomic.Int64) {
			n += v.Swap(0)
		})
		m.inuseObjectsGauge.Add(float64(n))
	}
}
