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
)

// PeakInuseTracker records the highest in-use byte count seen and when it
// was reached.
type PeakInuseTracker struct {
	ptr atomic.Pointer[peakInuseValue]
}

type peakInuseValue struct {
	Value uint64
	Time  time.Time
}

func NewPeakInuseTracker() *PeakInuseTracker {
	ret := new(PeakInuseTracker)
	ret.ptr.Store(&peakInuseValue{})
	return ret
}

func (p *PeakInuseTracker) Update(n uint64) {
	for {
		// read
		ptr := p.ptr.Load()
		if n <= ptr.Value {
			return
		}
		// copy
		newValue := peakInuseValue{
			Value: n,
			Time:  time.Now(),
		}
		// update
		if p.ptr.CompareAndSwap(ptr, &newValue) {
			return
		}
	}
}

func (p *PeakInuseTracker) Load() (uint64, time.Time) {
	v := p.ptr.Load()
	return v.Value, v.Time
}
