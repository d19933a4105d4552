package bundle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-loader/internal/config"
	"github.com/woxQAQ/wasm-loader/internal/style"
	"github.com/woxQAQ/wasm-loader/internal/wasm"
)

// Manager manages bundle lifecycle.
type Manager struct {
	cfg      *config.Config
	modules  *wasm.Loader
	loader   *Loader
	registry *Registry
	styles   *style.Registry
	logger   *zap.Logger

	mu     sync.RWMutex
	loaded bool
}

// NewManager creates a new bundle manager. Bundles are compiled and
// instantiated through modules; their stylesheets go to styles.
func NewManager(
	cfg *config.Config,
	modules *wasm.Loader,
	loader *Loader,
	styles *style.Registry,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		cfg:      cfg,
		modules:  modules,
		loader:   loader,
		registry: NewRegistry(logger),
		styles:   styles,
		logger:   logger.With(zap.String("component", "bundle-manager")),
	}
}

// LoadAll discovers and loads all bundles from configured paths, registers
// them and registers their stylesheets.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("bundles already loaded")
	}

	m.logger.Info("Loading bundles",
		zap.Strings("paths", m.cfg.BundlePaths),
	)

	// Discover bundles
	bundles, err := m.loader.DiscoverBundles(ctx, m.cfg.BundlePaths)
	if err != nil {
		// No bundles is not fatal; modules can still be loaded directly.
		var none *NoBundlesFoundError
		if errors.As(err, &none) {
			m.logger.Warn("No bundles found in configured paths",
				zap.Strings("paths", m.cfg.BundlePaths),
			)
			m.loaded = true
			return nil
		}
		return err
	}

	// Register all bundles
	for _, bundle := range bundles {
		if err := m.registry.Register(bundle); err != nil {
			m.logger.Error("Failed to register bundle",
				zap.String("name", bundle.Manifest.Name),
				zap.Error(err),
			)
			continue
		}

		for _, sheet := range bundle.Styles {
			if err := m.styles.Register(sheet); err != nil {
				m.logger.Error("Failed to register stylesheet",
					zap.String("bundle", bundle.Manifest.Name),
					zap.String("sheet", sheet.Name),
					zap.Error(err),
				)
			}
		}
	}

	m.loaded = true

	m.logger.Info("Bundles loaded successfully",
		zap.Int("count", m.registry.Count()),
	)

	return nil
}

// GetBundle retrieves a bundle by name.
func (m *Manager) GetBundle(name string) (*Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bundle, ok := m.registry.Get(name)
	if !ok {
		return nil, &BundleNotFoundError{BundleName: name}
	}

	return bundle, nil
}

// FindBundleForExport finds a bundle declaring export.
func (m *Manager) FindBundleForExport(export string) (*Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bundles := m.registry.LookupByExport(export)
	if len(bundles) == 0 {
		return nil, &ExportNotDeclaredError{Export: export}
	}

	// First registered wins.
	return bundles[0], nil
}

// Instantiate creates a new ready instance of a bundle. The instance is
// closed and *MissingExportError returned if it lacks a declared export.
func (m *Manager) Instantiate(ctx context.Context, name string, imports wasm.ImportBindings) (*wasm.InitOutput, error) {
	bundle, err := m.GetBundle(name)
	if err != nil {
		return nil, err
	}

	modules := m.modules
	if bundle.Manifest.WASI {
		modules = modules.WithWASI(true)
	}

	out, err := modules.InitSync(ctx, &wasm.PrecompiledModuleSource{Module: bundle.Compiled}, imports)
	if err != nil {
		return nil, err
	}

	for _, export := range bundle.Manifest.Exports {
		if _, err := out.Export(export); err != nil {
			_ = out.Close(ctx)
			return nil, &MissingExportError{BundleName: name, Export: export}
		}
	}

	m.logger.Debug("Bundle instantiated",
		zap.String("name", name),
		zap.String("instance_id", out.ID),
	)

	return out, nil
}

// Registry returns the bundle registry (for testing/inspection).
func (m *Manager) Registry() *Registry {
	return m.registry
}

// IsLoaded returns whether bundles have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}
