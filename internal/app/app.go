// Package app wires the loader components together from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-loader/internal/bundle"
	"github.com/woxQAQ/wasm-loader/internal/config"
	"github.com/woxQAQ/wasm-loader/internal/style"
	"github.com/woxQAQ/wasm-loader/internal/wasm"
)

type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	runtime *wasm.Runtime
	fetcher *wasm.Fetcher
	modules *wasm.Loader
	styles  *style.Registry
	bundles *bundle.Manager
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Initialize Wasm runtime.
	wasmConfig := &wasm.RuntimeConfig{
		MemoryPages:  cfg.Wasm.MemoryPages,
		DebugEnabled: cfg.Wasm.Debug,
		CacheDir:     cfg.Wasm.CacheDir,
		MaxInstances: cfg.Wasm.MaxInstances,
	}

	runtime, err := wasm.NewRuntime(ctx, logger, wasmConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	fs := afero.NewOsFs()
	fetcher := wasm.NewFetcher(wasm.FetcherConfig{
		UserAgent: cfg.Fetch.UserAgent,
		Fs:        fs,
	}, logger)

	modules := wasm.NewLoader(runtime, fetcher, &wasm.LoaderConfig{
		StartFunctions: cfg.Wasm.StartFunctions,
		EnableWASI:     cfg.Wasm.EnableWASI,
		HostLogging:    cfg.Wasm.HostLogging,
	}, logger)

	styles := style.NewRegistry(logger)
	bundles := bundle.NewManager(cfg, modules, bundle.NewLoader(modules, fs, logger), styles, logger)

	logger.Info("Loader initialized",
		zap.Uint32("wasm_memory_pages", cfg.Wasm.MemoryPages),
		zap.String("wasm_cache_dir", cfg.Wasm.CacheDir),
		zap.Strings("bundle_paths", cfg.BundlePaths),
	)

	return &App{
		cfg:     cfg,
		logger:  logger,
		runtime: runtime,
		fetcher: fetcher,
		modules: modules,
		styles:  styles,
		bundles: bundles,
	}, nil
}

// Start loads the bundles from the configured paths and registers their styles.
func (a *App) Start(ctx context.Context) error {
	return a.bundles.LoadAll(ctx)
}

// LoadModule instantiates the module at ref, a file path or URL. With async
// set it goes through Loader.Init; otherwise the bytes are fetched first and
// instantiated with Loader.InitSync.
func (a *App) LoadModule(ctx context.Context, ref string, async bool) (*wasm.InitOutput, error) {
	if async {
		return a.modules.Init(ctx, &wasm.FetchModuleSource{Ref: ref}, nil).Await(ctx)
	}

	data, err := a.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	return a.modules.InitSync(ctx, wasm.NewMemorySource(ref, data), nil)
}

// Runtime returns the shared Wasm runtime.
func (a *App) Runtime() *wasm.Runtime {
	return a.runtime
}

// Loader returns the module loader.
func (a *App) Loader() *wasm.Loader {
	return a.modules
}

// Bundles returns the bundle manager.
func (a *App) Bundles() *bundle.Manager {
	return a.bundles
}

// Styles returns the style registry.
func (a *App) Styles() *style.Registry {
	return a.styles
}

// Close gracefully shuts down the loader and every open instance.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("Shutting down loader")

	// Shutdown Wasm runtime.
	if err := a.runtime.Close(ctx); err != nil {
		a.logger.Error("Failed to shutdown Wasm runtime", zap.Error(err))
		return err
	}

	a.logger.Info("Loader shutdown complete")
	return nil
}
