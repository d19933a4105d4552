package bundle

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/wasm-loader/internal/style"
	"github.com/woxQAQ/wasm-loader/internal/wasm"
)

type testEnv struct {
	fs      afero.Fs
	runtime *wasm.Runtime
	modules *wasm.Loader
	loader  *Loader
	styles  *style.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := wasm.NewRuntime(ctx, logger, wasm.DefaultRuntimeConfig())
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	t.Cleanup(func() { _ = runtime.Close(ctx) })

	fs := afero.NewMemMapFs()
	modules := wasm.NewLoader(runtime, nil, nil, logger)

	return &testEnv{
		fs:      fs,
		runtime: runtime,
		modules: modules,
		loader:  NewLoader(modules, fs, logger),
		styles:  style.NewRegistry(logger),
	}
}

// writeBundle writes manifest.yaml and files into dir on fs.
func writeBundle(t *testing.T, fs afero.Fs, dir, manifest string, files map[string][]byte) {
	t.Helper()
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if manifest != "" {
		if err := afero.WriteFile(fs, filepath.Join(dir, ManifestFile), []byte(manifest), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for name, data := range files {
		if err := afero.WriteFile(fs, filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}
