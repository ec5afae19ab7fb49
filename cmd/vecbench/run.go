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
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matrixorigin/rawvec/pkg/common/moerr"
	"github.com/matrixorigin/rawvec/pkg/config"
	"github.com/matrixorigin/rawvec/pkg/container/vector"
	"github.com/matrixorigin/rawvec/pkg/logutil"
)

type runOptions struct {
	configFile string
	workers    int
	tasks      int
	appends    int
}

type report struct {
	runID   uuid.UUID
	tasks   int
	failed  int
	stats   vector.AllocatorStats
	elapsed time.Duration
}

func runCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run append and pop workloads, one vector per task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configFile)
			if err != nil {
				return err
			}
			logutil.SetupLogger(&cfg.Log)

			reg := prometheus.NewRegistry()
			r, err := run(cmd.Context(), cfg, reg, opts)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), reg, r)
		},
	}
	cmd.Flags().StringVar(&opts.configFile, "config", "", "toml or yaml configuration file")
	cmd.Flags().IntVar(&opts.workers, "workers", runtime.GOMAXPROCS(0), "size of the worker pool")
	cmd.Flags().IntVar(&opts.tasks, "tasks", 0, "number of tasks, defaults to the number of workers")
	cmd.Flags().IntVar(&opts.appends, "appends", 10000, "elements appended by each task")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, reg *prometheus.Registry, opts *runOptions) (*report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.workers <= 0 {
		return nil, moerr.NewInvalidArg(ctx, "workers", opts.workers)
	}
	if opts.appends < 0 {
		return nil, moerr.NewInvalidArg(ctx, "appends", opts.appends)
	}
	tasks := opts.tasks
	if tasks <= 0 {
		tasks = opts.workers
	}

	stack, err := cfg.NewByteStack(reg)
	if err != nil {
		return nil, err
	}
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rawvec",
		Subsystem: "vecbench",
		Name:      "allocator_calls_total",
		Help:      "Allocator calls made by vecbench tasks.",
	}, []string{"op"})
	reg.MustRegister(ops)

	r := &report{
		runID: uuid.New(),
		tasks: tasks,
	}
	logger := logutil.Named("vecbench", zap.String("run-id", r.runID.String()))
	logger.Info("run started",
		zap.Int("workers", opts.workers),
		zap.Int("tasks", tasks),
		zap.Int("appends", opts.appends),
		zap.String("allocator", cfg.Vector.Allocator),
		zap.String("growth", cfg.Vector.Growth),
	)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	finish := func(id int, stats vector.AllocatorStats, err error) {
		mu.Lock()
		defer mu.Unlock()
		r.stats.Acquired += stats.Acquired
		r.stats.AcquireFailed += stats.AcquireFailed
		r.stats.Released += stats.Released
		r.stats.Constructed += stats.Constructed
		r.stats.Destroyed += stats.Destroyed
		if err != nil {
			r.failed++
			logger.Warn("task failed", zap.Int("task", id), zap.Error(err))
		}
	}

	pool, err := ants.NewPool(opts.workers, ants.WithPanicHandler(func(v interface{}) {
		logger.Error("task panicked", zap.Error(moerr.ConvertPanicError(ctx, v)))
	}))
	if err != nil {
		return nil, moerr.ConvertGoError(ctx, err)
	}
	defer pool.Release()

	start := time.Now()
	for i := 0; i < tasks; i++ {
		id := i
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			var (
				stats    vector.AllocatorStats
				err      error
				returned bool
			)
			// a panic keeps unwinding into the pool's panic handler
			defer func() {
				if !returned {
					err = moerr.NewInternalErrorNoCtx("task %d panicked", id)
				}
				finish(id, stats, err)
			}()
			err = runTask(cfg, stack, opts.appends, &stats)
			returned = true
		})
		if err != nil {
			wg.Done()
			return nil, moerr.ConvertGoError(ctx, err)
		}
	}
	wg.Wait()
	r.elapsed = time.Since(start)
	stack.Flush()

	ops.WithLabelValues("acquire").Add(float64(r.stats.Acquired))
	ops.WithLabelValues("acquire-failed").Add(float64(r.stats.AcquireFailed))
	ops.WithLabelValues("release").Add(float64(r.stats.Released))
	ops.WithLabelValues("construct").Add(float64(r.stats.Constructed))
	ops.WithLabelValues("destroy").Add(float64(r.stats.Destroyed))

	fields := []zap.Field{
		zap.Duration("elapsed", r.elapsed),
		zap.Int("failed", r.failed),
		zap.Int64("live", r.stats.Live()),
		zap.Int64("outstanding", r.stats.Outstanding()),
	}
	if stack != nil && stack.Limit != nil {
		peak, at := stack.Limit.Peak().Load()
		fields = append(fields, zap.Uint64("peak-inuse", peak), zap.Time("peak-at", at))
	}
	logger.Info("run finished", fields...)
	return r, nil
}

// runTask appends, verifies, pops, moves, clones and frees one vector.
func runTask(cfg *config.Config, stack *config.ByteStack, appends int, stats *vector.AllocatorStats) error {
	alloc := vector.NewCountingAllocator(config.NewAllocator[int64](cfg, stack))
	defer func() {
		*stats = alloc.Stats()
	}()

	v, err := config.NewVector[int64](cfg, alloc)
	if err != nil {
		return err
	}
	defer v.Free()

	for i := 0; i < appends; i++ {
		if err := v.Append(int64(i)); err != nil {
			return err
		}
	}
	for i, x := range v.All() {
		if *x != int64(i) {
			return moerr.NewInternalErrorNoCtx("element %d holds %d", i, *x)
		}
	}
	for v.Len() > appends/2 {
		v.PopBack()
	}

	moved := v.Take()
	defer moved.Free()
	if err := moved.ShrinkToFit(); err != nil {
		return err
	}
	clone, err := moved.Clone()
	if err != nil {
		return err
	}
	clone.Free()
	moved.Clear()
	return nil
}

func printReport(w io.Writer, reg *prometheus.Registry, r *report) error {
	fmt.Fprintf(w, "run %s: %d tasks, %d failed, %s\n", r.runID, r.tasks, r.failed, r.elapsed)
	fmt.Fprintf(w, "live elements %d, outstanding blocks %d\n", r.stats.Live(), r.stats.Outstanding())

	families, err := reg.Gather()
	if err != nil {
		return moerr.ConvertGoError(context.Background(), err)
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})
	for _, f := range families {
		for _, m := range f.GetMetric() {
			fmt.Fprintf(w, "%s%s %v\n", f.GetName(), formatLabels(m.GetLabel()), metricValue(f.GetType(), m))
		}
	}
	return nil
}

func formatLabels(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	s := "{"
	for i, l := range labels {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
	}
	return s + "}"
}

func metricValue(typ dto.MetricType, m *dto.Metric) float64 {
	switch typ {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		return m.GetUntyped().GetValue()
	}
}
