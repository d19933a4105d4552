package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-loader/internal/style"
	"github.com/woxQAQ/wasm-loader/internal/wasm"
)

// Loader handles loading bundles from a filesystem.
type Loader struct {
	modules *wasm.Loader
	fs      afero.Fs
	logger  *zap.Logger
}

// NewLoader creates a new bundle loader. A nil fs means the OS filesystem.
func NewLoader(modules *wasm.Loader, fs afero.Fs, logger *zap.Logger) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{
		modules: modules,
		fs:      fs,
		logger:  logger.With(zap.String("component", "bundle-loader")),
	}
}

// LoadBundle loads a single bundle from a directory: it parses the manifest,
// compiles the module (without instantiating it) and reads the stylesheets.
func (l *Loader) LoadBundle(ctx context.Context, dir string) (*Bundle, error) {
	l.logger.Debug("Loading bundle", zap.String("dir", dir))

	// Parse manifest
	manifest, err := ParseManifestFs(l.fs, dir)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loading bundle",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
	)

	var source wasm.ModuleSource
	if manifest.Wasm.URL != "" {
		source = &wasm.FetchModuleSource{Ref: manifest.Wasm.URL}
	} else {
		data, err := afero.ReadFile(l.fs, manifest.WasmPath())
		if err != nil {
			return nil, &BundleLoadError{BundleName: manifest.Name, Err: err}
		}
		source = wasm.NewMemorySource(manifest.Name, data)
	}

	// Compile Wasm module (uses the runtime's digest cache)
	compiled, err := l.modules.Compile(ctx, source)
	if err != nil {
		return nil, &BundleLoadError{
			BundleName: manifest.Name,
			Err:        err,
		}
	}

	if want := manifest.Wasm.SHA256; want != "" && want != compiled.Digest {
		return nil, &DigestMismatchError{
			BundleName: manifest.Name,
			Expected:   want,
			Actual:     compiled.Digest,
		}
	}

	sheets := make([]style.Sheet, 0, len(manifest.Styles))
	for _, name := range manifest.Styles {
		css, err := afero.ReadFile(l.fs, filepath.Join(manifest.Dir(), name))
		if err != nil {
			return nil, &BundleLoadError{BundleName: manifest.Name, Err: err}
		}
		sheets = append(sheets, style.Sheet{Name: manifest.Name + "/" + name, CSS: string(css)})
	}

	bundle := &Bundle{
		Manifest: manifest,
		Compiled: compiled,
		Styles:   sheets,
		LoadedAt: time.Now(),
	}

	l.logger.Info("Bundle loaded successfully",
		zap.String("name", manifest.Name),
		zap.Int64("size_bytes", compiled.SizeBytes),
		zap.Int("styles", len(sheets)),
	)

	return bundle, nil
}

// DiscoverBundles scans directories for bundles. Subdirectories that fail to
// load are logged and skipped; NoBundlesFoundError is returned if none load.
func (l *Loader) DiscoverBundles(ctx context.Context, paths []string) ([]*Bundle, error) {
	var bundles []*Bundle
	var errs []error

	for _, basePath := range paths {
		l.logger.Debug("Scanning bundle directory", zap.String("path", basePath))

		// Read subdirectories
		entries, err := afero.ReadDir(l.fs, basePath)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Warn("Bundle path does not exist", zap.String("path", basePath))
				continue
			}
			return nil, fmt.Errorf("failed to read directory '%s': %w", basePath, err)
		}

		// Try to load each subdirectory as a bundle
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			bundleDir := filepath.Join(basePath, entry.Name())

			bundle, err := l.LoadBundle(ctx, bundleDir)
			if err != nil {
				l.logger.Error("Failed to load bundle",
					zap.String("dir", bundleDir),
					zap.Error(err),
				)
				errs = append(errs, err)
				continue
			}

			bundles = append(bundles, bundle)
		}
	}

	// If we found some bundles but had errors, log warning but continue
	if len(bundles) > 0 && len(errs) > 0 {
		l.logger.Warn("Some bundles failed to load",
			zap.Int("loaded", len(bundles)),
			zap.Int("failed", len(errs)),
		)
	}

	// If no bundles loaded, return error
	if len(bundles) == 0 {
		return nil, &NoBundlesFoundError{Paths: paths}
	}

	return bundles, nil
}
