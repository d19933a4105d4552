package wasm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Runtime manages the wazero runtime lifecycle.
// One Runtime is shared by the whole application. It validates and caches
// compiled modules, and hands out a fresh sandbox runtime per instantiation so
// that instances never share memory, globals or host modules.
type Runtime struct {
	// wazero runtime used for compilation and module introspection.
	compiler wazero.Runtime

	// Shared by the compiler runtime and every sandbox, so a module compiled
	// once is not recompiled when it is linked into a sandbox.
	cache         wazero.CompilationCache
	runtimeConfig wazero.RuntimeConfig

	// Compiled module cache (key: sha256 of the binary -> value: compiled module)
	modules sync.Map // map[string]*CompiledModule

	// Active outputs (for cleanup on shutdown)
	instances sync.Map // map[string]*InitOutput
	active    atomic.Int64

	config *RuntimeConfig
	logger *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// RuntimeConfig holds runtime configuration.
type RuntimeConfig struct {
	// Memory limit per module (in pages, 64KB each).
	// Default: 256 pages = 16MB max memory per module
	MemoryPages uint32

	// Keep DWARF-derived debug info for guest stack traces.
	DebugEnabled bool

	// Compilation cache directory (for persistent caching)
	// If empty, uses in-memory caching only
	CacheDir string

	// Maximum number of concurrently open instances. Zero means unbounded.
	MaxInstances int
}

// NewRuntime creates and initializes a new wazero runtime.
// This should be called once during application startup.
func NewRuntime(ctx context.Context, logger *zap.Logger, config *RuntimeConfig) (*Runtime, error) {
	if config == nil {
		config = DefaultRuntimeConfig()
	}

	cache, err := newCompilationCache(config.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open compilation cache '%s': %w", config.CacheDir, err)
	}

	rc := wazero.NewRuntimeConfig().
		WithCompilationCache(cache).
		WithDebugInfoEnabled(config.DebugEnabled)
	if config.MemoryPages > 0 {
		rc = rc.WithMemoryLimitPages(config.MemoryPages)
	}

	runtime := &Runtime{
		compiler:      wazero.NewRuntimeWithConfig(ctx, rc),
		cache:         cache,
		runtimeConfig: rc,
		config:        config,
		logger:        logger.With(zap.String("component", "wasm-runtime")),
		closed:        make(chan struct{}),
	}

	logger.Info("Wasm runtime initialized",
		zap.Uint32("memory_pages", config.MemoryPages),
		zap.Bool("debug_enabled", config.DebugEnabled),
		zap.String("cache_dir", config.CacheDir),
		zap.Int("max_instances", config.MaxInstances),
	)

	return runtime, nil
}

func newCompilationCache(dir string) (wazero.CompilationCache, error) {
	if dir == "" {
		return wazero.NewCompilationCache(), nil
	}
	return wazero.NewCompilationCacheWithDir(dir)
}

// DefaultRuntimeConfig returns sensible defaults.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		MemoryPages:  256, // 16MB
		DebugEnabled: false,
		CacheDir:     "",
		MaxInstances: 100,
	}
}

// Close gracefully shuts down the runtime.
// Safe to call multiple times (idempotent).
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		r.logger.Info("Shutting down Wasm runtime")
		close(r.closed)

		// Close all active outputs first
		r.instances.Range(func(key, value any) bool {
			if out, ok := value.(*InitOutput); ok {
				if closeErr := out.Close(ctx); closeErr != nil {
					r.logger.Warn("Failed to close instance",
						zap.String("instance_id", key.(string)),
						zap.Error(closeErr),
					)
				}
			}
			return true
		})

		err = errors.Join(r.compiler.Close(ctx), r.cache.Close(ctx))
		r.logger.Info("Wasm runtime shutdown complete")
	})

	return err
}

// newSandbox creates the isolated runtime that owns a single instance.
func (r *Runtime) newSandbox(ctx context.Context) wazero.Runtime {
	return wazero.NewRuntimeWithConfig(ctx, r.runtimeConfig)
}

// GetCompiledModule retrieves a compiled module from cache by digest.
func (r *Runtime) GetCompiledModule(digest string) (*CompiledModule, bool) {
	if val, ok := r.modules.Load(digest); ok {
		if mod, ok := val.(*CompiledModule); ok {
			return mod, true
		}
	}
	return nil, false
}

// StoreCompiledModule stores a compiled module in cache.
func (r *Runtime) StoreCompiledModule(module *CompiledModule) {
	r.modules.Store(module.Digest, module)
}

// GetInstance retrieves an active output.
func (r *Runtime) GetInstance(instanceID string) (*InitOutput, bool) {
	if val, ok := r.instances.Load(instanceID); ok {
		out, ok := val.(*InitOutput)
		return out, ok
	}
	return nil, false
}

// StoreInstance tracks an active output.
func (r *Runtime) StoreInstance(instanceID string, out *InitOutput) {
	r.instances.Store(instanceID, out)
}

// DeleteInstance removes an output from tracking.
func (r *Runtime) DeleteInstance(instanceID string) {
	r.instances.Delete(instanceID)
}

// ActiveInstances returns the number of reserved instance slots.
func (r *Runtime) ActiveInstances() int {
	return int(r.active.Load())
}

// reserve claims an instance slot, honoring MaxInstances.
func (r *Runtime) reserve() bool {
	limit := int64(r.config.MaxInstances)
	for {
		n := r.active.Load()
		if limit > 0 && n >= limit {
			return false
		}
		if r.active.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (r *Runtime) release() {
	r.active.Add(-1)
}

// IsClosed returns whether the runtime has been closed.
func (r *Runtime) IsClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}
