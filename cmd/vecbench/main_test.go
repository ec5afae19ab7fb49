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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lni/goutils/leaktest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/rawvec/pkg/common/moerr"
	"github.com/matrixorigin/rawvec/pkg/config"
	"github.com/matrixorigin/rawvec/pkg/container/vector"
	"github.com/matrixorigin/rawvec/pkg/util/fault"
)

func TestConfigCommand(t *testing.T) {
	defer leaktest.AfterTest(t)()

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"config"})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), `growth = "doubling"`)

	path := filepath.Join(t.TempDir(), "vecbench.toml")
	require.NoError(t, os.WriteFile(path, out.Bytes(), 0o644))
	loaded, err := config.LoadConfigFromFile(path)
	require.NoError(t, err)
	require.Equal(t, config.Default(), loaded)

	root = newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"config", "--config", filepath.Join(t.TempDir(), "missing.toml")})
	require.Error(t, root.Execute())
}

func TestRun(t *testing.T) {
	for _, backend := range []string{config.AllocatorHeap, config.AllocatorPoolGo, config.AllocatorPoolClass} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Vector.Allocator = backend
			cfg.Vector.Checked = true
			cfg.Metrics.Enable = true
			cfg.Metrics.FlushInterval.Duration = 0

			reg := prometheus.NewRegistry()
			r, err := run(context.Background(), cfg, reg, &runOptions{workers: 4, tasks: 8, appends: 1000})
			require.NoError(t, err)
			require.Equal(t, 8, r.tasks)
			require.Equal(t, 0, r.failed)
			require.Equal(t, int64(0), r.stats.Live())
			require.Equal(t, int64(0), r.stats.Outstanding())
			require.Greater(t, r.stats.Constructed, int64(8*1000))

			var out bytes.Buffer
			require.NoError(t, printReport(&out, reg, r))
			require.Contains(t, out.String(), `rawvec_vecbench_allocator_calls_total{op="construct"}`)
			if backend != config.AllocatorHeap {
				require.Contains(t, out.String(), `rawvec_mem_inuse_bytes{type="`+backend+`"} 0`)
			}
		})
	}
}

func TestRunMemoryLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Vector.Allocator = config.AllocatorPoolGo
	cfg.Vector.MemoryLimit = 1024

	r, err := run(context.Background(), cfg, prometheus.NewRegistry(), &runOptions{workers: 2, tasks: 2, appends: 1000})
	require.NoError(t, err)
	require.Equal(t, 2, r.failed)
	require.Equal(t, int64(2), r.stats.AcquireFailed)
	require.Equal(t, int64(0), r.stats.Live())
	require.Equal(t, int64(0), r.stats.Outstanding())
}

func TestRunTaskPanic(t *testing.T) {
	ctx := context.Background()
	fault.Enable()
	defer fault.Disable()
	// the third acquisition panics, after two blocks and three constructs
	require.NoError(t, fault.AddFaultPoint(ctx, vector.FaultPointAcquire, "3:3::", "panic", 0, "acquire panicked"))

	cfg := config.Default()
	cfg.Vector.InitialCapacity = 0
	r, err := run(ctx, cfg, prometheus.NewRegistry(), &runOptions{workers: 1, tasks: 1, appends: 1000})
	require.NoError(t, err)
	require.Equal(t, 1, r.failed)
	require.Equal(t, int64(2), r.stats.Acquired)
	require.Equal(t, int64(3), r.stats.Constructed)
	require.Equal(t, int64(0), r.stats.Live())
	require.Equal(t, int64(0), r.stats.Outstanding())
}

func TestRunBadOptions(t *testing.T) {
	_, err := run(context.Background(), config.Default(), prometheus.NewRegistry(), &runOptions{workers: 0})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidArg))
	_, err = run(context.Background(), config.Default(), prometheus.NewRegistry(), &runOptions{workers: 1, appends: -1})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidArg))
}
