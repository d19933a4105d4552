package wasm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// CompiledModule wraps a wazero.CompiledModule with metadata.
// It is the precompiled handle accepted by PrecompiledModuleSource.
type CompiledModule struct {
	// wazero compiled module
	Module wazero.CompiledModule

	// Module metadata
	Name      string
	Source    string // File path, URL or identifier
	Digest    string // hex sha256 of the binary
	SizeBytes int64

	// Compilation timestamp
	CompiledAt int64

	// Binary, kept to link the module into per-instance sandboxes.
	bytes []byte
}

// ImportRef names one import of a compiled module.
type ImportRef struct {
	Module string
	Name   string
	Kind   string // "func" or "memory"
}

// ExportNames returns the sorted names of the exported functions.
func (c *CompiledModule) ExportNames() []string {
	return sortedKeys(c.Module.ExportedFunctions())
}

// Imports lists the module's function and memory imports.
func (c *CompiledModule) Imports() []ImportRef {
	var refs []ImportRef
	for _, def := range c.Module.ImportedFunctions() {
		mod, name, _ := def.Import()
		refs = append(refs, ImportRef{Module: mod, Name: name, Kind: "func"})
	}
	for _, def := range c.Module.ImportedMemories() {
		mod, name, _ := def.Import()
		refs = append(refs, ImportRef{Module: mod, Name: name, Kind: "memory"})
	}
	return refs
}

// Digest returns the hex sha256 of a module binary.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// compile decodes and validates a binary, caching the result by digest.
func (r *Runtime) compile(ctx context.Context, name, source string, data []byte) (*CompiledModule, error) {
	digest := Digest(data)
	if cached, ok := r.GetCompiledModule(digest); ok {
		r.logger.Debug("Module cache hit",
			zap.String("module", name),
			zap.String("digest", digest),
		)
		return cached, nil
	}

	r.logger.Info("Compiling Wasm module",
		zap.String("module", name),
		zap.Int("size_bytes", len(data)),
	)

	startTime := time.Now()

	// CompileModule decodes and validates the binary. This is CPU-intensive
	// but only done once per distinct binary.
	compiled, err := r.compiler.CompileModule(ctx, data)
	if err != nil {
		return nil, &CompilationError{
			ModuleName: name,
			Err:        err,
		}
	}

	module := &CompiledModule{
		Module:     compiled,
		Name:       name,
		Source:     source,
		Digest:     digest,
		SizeBytes:  int64(len(data)),
		CompiledAt: time.Now().Unix(),
		bytes:      data,
	}

	if prev, loaded := r.modules.LoadOrStore(digest, module); loaded {
		// Lost a race with a concurrent compile of the same binary.
		_ = compiled.Close(ctx)
		return prev.(*CompiledModule), nil
	}

	r.logger.Info("Module compiled successfully",
		zap.String("module", name),
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("exports", len(compiled.ExportedFunctions())),
	)

	return module, nil
}

func sortedKeys(defs map[string]api.FunctionDefinition) []string {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
