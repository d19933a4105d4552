package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/wasm-loader/internal/config"
	"github.com/woxQAQ/wasm-loader/internal/wasmtest"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "bundles", "clock", "manifest.yaml"), []byte(`
name: clock
version: 1.0.0
wasm:
  file: clock.wasm
exports: [add]
styles: [clock.css]
`))
	writeFile(t, filepath.Join(root, "bundles", "clock", "clock.wasm"), wasmtest.AddModule())
	writeFile(t, filepath.Join(root, "bundles", "clock", "clock.css"), []byte(".clock {}"))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.BundlePaths = []string{filepath.Join(root, "bundles")}

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a, root
}

func TestAppStart(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.Start(ctx))
	assert.Equal(t, 1, a.Bundles().Registry().Count())
	assert.Equal(t, 1, a.Styles().Count())

	out, err := a.Bundles().Instantiate(ctx, "clock", nil)
	require.NoError(t, err)

	res, err := out.Call(ctx, "add", api.EncodeI32(1), api.EncodeI32(2))
	require.NoError(t, err)
	assert.Equal(t, int32(3), api.DecodeI32(res[0]))
	assert.Equal(t, 1, a.Runtime().ActiveInstances())
}

func TestAppLoadModule(t *testing.T) {
	a, root := newTestApp(t)
	ctx := context.Background()
	path := filepath.Join(root, "bundles", "clock", "clock.wasm")

	for _, async := range []bool{false, true} {
		out, err := a.LoadModule(ctx, path, async)
		require.NoError(t, err)
		assert.Equal(t, []string{"add"}, out.Exports())
		require.NoError(t, out.Close(ctx))
	}

	_, err := a.LoadModule(ctx, filepath.Join(root, "missing.wasm"), false)
	assert.Error(t, err)
}

func TestAppCloseClosesInstances(t *testing.T) {
	a, root := newTestApp(t)
	ctx := context.Background()

	out, err := a.LoadModule(ctx, filepath.Join(root, "bundles", "clock", "clock.wasm"), false)
	require.NoError(t, err)

	require.NoError(t, a.Close(ctx))
	assert.True(t, out.Module().IsClosed())
	assert.True(t, a.Runtime().IsClosed())
}
