package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/wasm-loader/internal/config"
	"github.com/woxQAQ/wasm-loader/internal/wasm"
	"github.com/woxQAQ/wasm-loader/internal/wasmtest"
)

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	root := t.TempDir()

	bundleDir := filepath.Join(root, "bundles", "adder")
	require.NoError(t, os.MkdirAll(bundleDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, "manifest.yaml"),
		[]byte("name: adder\nversion: 1.0.0\nwasm: {file: add.wasm}\nexports: [add]\nstyles: [adder.css]\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, "add.wasm"), wasmtest.AddModule(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, "adder.css"), []byte(".adder {}"), 0o644))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.BundlePaths = []string{filepath.Join(root, "bundles")}
	return cfg, root
}

func TestRunModuleCall(t *testing.T) {
	cfg, root := testConfig(t)
	module := filepath.Join(root, "bundles", "adder", "add.wasm")

	for _, async := range []bool{false, true} {
		err := run(context.Background(), cfg, zaptest.NewLogger(t), options{
			module: module,
			call:   "add",
			args:   "2,3",
			list:   true,
			async:  async,
		})
		require.NoError(t, err)
	}
}

func TestRunBundleAndStyles(t *testing.T) {
	cfg, root := testConfig(t)
	stylesOut := filepath.Join(root, "styles.css")

	err := run(context.Background(), cfg, zaptest.NewLogger(t), options{
		bundle:    "adder",
		call:      "add",
		args:      "1,1",
		stylesOut: stylesOut,
	})
	require.NoError(t, err)

	css, err := os.ReadFile(stylesOut)
	require.NoError(t, err)
	assert.Contains(t, string(css), ".adder {}")
}

func TestRunErrors(t *testing.T) {
	cfg, root := testConfig(t)
	logger := zaptest.NewLogger(t)
	ctx := context.Background()
	module := filepath.Join(root, "bundles", "adder", "add.wasm")

	err := run(ctx, cfg, logger, options{module: module, bundle: "adder"})
	assert.Error(t, err, "-module and -bundle together")

	err = run(ctx, cfg, logger, options{module: module, call: "missing"})
	var notFound *wasm.FunctionNotFoundError
	assert.ErrorAs(t, err, &notFound)

	err = run(ctx, cfg, logger, options{module: module, call: "add", args: "1"})
	assert.Error(t, err, "wrong arity")

	err = run(ctx, cfg, logger, options{bundle: "nope"})
	assert.Error(t, err)
}

func TestPrinterListExports(t *testing.T) {
	_, root := testConfig(t)
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := wasm.NewRuntime(ctx, logger, nil)
	require.NoError(t, err)
	defer runtime.Close(ctx)

	data, err := os.ReadFile(filepath.Join(root, "bundles", "adder", "add.wasm"))
	require.NoError(t, err)

	out, err := wasm.NewLoader(runtime, nil, nil, logger).InitSync(ctx, wasm.NewMemorySource("adder", data), nil)
	require.NoError(t, err)
	defer out.Close(ctx)

	var buf bytes.Buffer
	printer{w: &buf}.listExports(out)
	assert.Equal(t, "adder\n  add(i32, i32) -> (i32)\n", buf.String())
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := newLogger(level)
		require.NoError(t, err, level)
		assert.NotNil(t, logger)
	}

	_, err := newLogger("loud")
	assert.Error(t, err)
}
