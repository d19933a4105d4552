// Package bundle loads module bundles: directories holding a manifest.yaml,
// a Wasm module (or a URL to one) and optional stylesheets.
package bundle

import (
	"slices"
	"time"

	"github.com/woxQAQ/wasm-loader/internal/style"
	"github.com/woxQAQ/wasm-loader/internal/wasm"
)

// Bundle is a loaded bundle with its manifest and compiled Wasm module.
type Bundle struct {
	// Manifest is the parsed bundle metadata
	Manifest *Manifest

	// Compiled is the compiled Wasm module
	Compiled *wasm.CompiledModule

	// Styles holds the stylesheets listed in the manifest, read at load time.
	Styles []style.Sheet

	// LoadedAt is the timestamp when the bundle was loaded
	LoadedAt time.Time
}

// Name returns the bundle name.
func (b *Bundle) Name() string {
	return b.Manifest.Name
}

// Version returns the bundle version.
func (b *Bundle) Version() string {
	return b.Manifest.Version
}

// Exports returns the exports the manifest declares.
func (b *Bundle) Exports() []string {
	return b.Manifest.Exports
}

// DeclaresExport reports whether the manifest lists name among its exports.
func (b *Bundle) DeclaresExport(name string) bool {
	return slices.Contains(b.Manifest.Exports, name)
}
