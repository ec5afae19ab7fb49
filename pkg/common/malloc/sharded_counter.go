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
	"runtime"
	"sync/atomic"
)

type ShardedCounter[T any, A any, P interface {
	*A
	Add(T) T
	Load() T
}] struct {
	shards []shardedCounterShard[A]
	next   atomic.Uint32
	sum    func(a, b T) T
}

type shardedCounterShard[T any] struct {
	value T
	_     [64]byte // cache line padding
}

func NewShardedCounter[T int64 | uint64, A any, P interface {
	*A
	Add(T) T
	Load() T
}](shards int) *ShardedCounter[T, A, P] {
	if shards <= 0 {
		shards = runtime.GOMAXPROCS(0)
	}
	return &ShardedCounter[T, A, P]{
		shards: make([]shardedCounterShard[A], shards),
		sum: func(a, b T) T {
			return a + b
		},
	}
}

func (s *ShardedCounter[T, A, P]) Add(v T) {
	// spread writers over the shards without pinning to a P
	i := s.next.Add(1) % uint32(len(s.shards))
	P(&s.shards[i].value).Add(v)
}

func (s *ShardedCounter[T, A, P]) Load() (ret T) {
	for i := range s.shards {
		ret = s.sum(ret, P(&s.shards[i].value).Load())
	}
	return ret
}

func (s *ShardedCounter[T, A, P]) Each(fn func(*A)) {
	for i := range s.shards {
		fn(&s.shards[i].value)
	}
}
