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
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/yaml"

	"github.com/matrixorigin/rawvec/pkg/common/malloc"
	"github.com/matrixorigin/rawvec/pkg/common/moerr"
	"github.com/matrixorigin/rawvec/pkg/container/vector"
	"github.com/matrixorigin/rawvec/pkg/logutil"
)

const (
	AllocatorHeap      = "heap"
	AllocatorPoolGo    = "pool-go"
	AllocatorPoolClass = "pool-class"
	AllocatorPoolMmap  = "pool-mmap"
)

var (
	defaultGrowth               = vector.GrowthDoubling
	defaultAllocator            = AllocatorHeap
	defaultClassBufferSize      = uint64(64 * malloc.MB)
	defaultMetricsFlushInterval = time.Second
	defaultLogLevel             = zapcore.InfoLevel.String()
	defaultLogFormat            = "console"
	defaultLogMaxSize           = 512

	supportedAllocators = map[string]struct{}{
		AllocatorHeap:      {},
		AllocatorPoolGo:    {},
		AllocatorPoolClass: {},
		AllocatorPoolMmap:  {},
	}
)

// Config is the configuration of vecbench.
type Config struct {
	Vector  VectorConfig      `toml:"vector" json:"vector"`
	Metrics MetricsConfig     `toml:"metrics" json:"metrics"`
	Log     logutil.LogConfig `toml:"log" json:"log"`
}

type VectorConfig struct {
	// Growth names the growth policy, doubling or pow2.
	Growth string `toml:"growth" json:"growth"`
	// InitialCapacity is reserved when a vector is created.
	InitialCapacity int `toml:"initial-capacity" json:"initial-capacity"`
	// Allocator is heap, pool-go, pool-class or pool-mmap. Pool allocators
	// only serve scalar element types.
	Allocator string `toml:"allocator" json:"allocator"`
	// MemoryLimit caps the bytes held by a pool allocator, 0 means no limit.
	MemoryLimit uint64 `toml:"memory-limit" json:"memory-limit"`
	// ClassBufferSize is the memory pool-class keeps for reuse.
	ClassBufferSize uint64 `toml:"class-buffer-size" json:"class-buffer-size"`
	// Checked verifies every construct, destroy and release.
	Checked bool `toml:"checked" json:"checked"`
}

type MetricsConfig struct {
	Enable bool `toml:"enable" json:"enable"`
	// FlushInterval batches counter updates, 0 flushes only on demand.
	FlushInterval Duration `toml:"flush-interval" json:"flush-interval"`
}

// Default returns a filled configuration.
func Default() *Config {
	c := &Config{}
	c.Fill()
	return c
}

func (c *Config) Fill() {
	if c.Vector.Growth == "" {
		c.Vector.Growth = defaultGrowth
	}
	if c.Vector.Allocator == "" {
		c.Vector.Allocator = defaultAllocator
	}
	if c.Vector.ClassBufferSize == 0 {
		c.Vector.ClassBufferSize = defaultClassBufferSize
	}
	if c.Metrics.FlushInterval.Duration == 0 {
		c.Metrics.FlushInterval.Duration = defaultMetricsFlushInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = defaultLogMaxSize
	}
}

func (c *Config) Validate() error {
	ctx := context.Background()
	if _, ok := vector.GrowthPolicyByName(c.Vector.Growth); !ok {
		return moerr.NewBadConfig(ctx, "unknown growth policy %q", c.Vector.Growth)
	}
	if _, ok := supportedAllocators[c.Vector.Allocator]; !ok {
		return moerr.NewBadConfig(ctx, "unknown allocator %q", c.Vector.Allocator)
	}
	if c.Vector.InitialCapacity < 0 {
		return moerr.NewBadConfig(ctx, "initial-capacity %d is negative", c.Vector.InitialCapacity)
	}
	if c.Vector.MemoryLimit != 0 && !c.IsPool() {
		return moerr.NewBadConfig(ctx, "memory-limit requires a pool allocator, got %s", c.Vector.Allocator)
	}
	if c.Metrics.FlushInterval.Duration < 0 {
		return moerr.NewBadConfig(ctx, "metrics flush-interval %s is negative", c.Metrics.FlushInterval)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return moerr.NewBadConfig(ctx, "log level %q", c.Log.Level)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return moerr.NewBadConfig(ctx, "log format %q", c.Log.Format)
	}
	return nil
}

// IsPool reports whether vectors draw their blocks from a byte allocator.
func (c *Config) IsPool() bool {
	return strings.HasPrefix(c.Vector.Allocator, "pool-")
}

// GrowthPolicy returns the configured policy. Validate must have passed.
func (c *Config) GrowthPolicy() vector.GrowthPolicy {
	g, _ := vector.GrowthPolicyByName(c.Vector.Growth)
	return g
}

// LoadConfigFromFile reads a TOML or YAML file, chosen by extension, fills
// the defaults and validates the result.
func LoadConfigFromFile(path string) (*Config, error) {
	ctx := context.Background()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, moerr.NewFileNotFound(ctx, path)
		}
		return nil, moerr.ConvertGoError(ctx, err)
	}

	c := &Config{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return nil, moerr.NewBadConfig(ctx, "%s: %v", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, moerr.NewBadConfig(ctx, "%s: unknown key %s", path, undecoded[0])
		}
	case ".yaml", ".yml":
		if err := yaml.UnmarshalStrict(data, c); err != nil {
			return nil, moerr.NewBadConfig(ctx, "%s: %v", path, err)
		}
	default:
		return nil, moerr.NewBadConfig(ctx, "unsupported config file extension %q", ext)
	}

	c.Fill()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Duration is a time.Duration written as a string such as "1s" in both
// TOML and YAML files.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return moerr.NewInvalidArgNoCtx("duration", string(text))
	}
	d.Duration = v
	return nil
}
