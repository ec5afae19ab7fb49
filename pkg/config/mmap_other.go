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

//go:build !unix

package config

import (
	"context"

	"github.com/matrixorigin/rawvec/pkg/common/malloc"
	"github.com/matrixorigin/rawvec/pkg/common/moerr"
)

func newMmapAllocator() (malloc.Allocator, error) {
	return nil, moerr.NewNotSupported(context.Background(), "%s on this platform", AllocatorPoolMmap)
}
