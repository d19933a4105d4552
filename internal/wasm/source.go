package wasm

import (
	"context"
	"slices"
)

// SourceKind tags the variants of ModuleSource.
type SourceKind int

const (
	SourceBytes SourceKind = iota + 1
	SourceFetch
	SourcePrecompiled
	SourceDeferred
)

func (k SourceKind) String() string {
	switch k {
	case SourceBytes:
		return "bytes"
	case SourceFetch:
		return "fetch"
	case SourcePrecompiled:
		return "precompiled"
	case SourceDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// ModuleSource represents a source for Wasm bytecode.
// The set of implementations is closed; see SourceKind.
type ModuleSource interface {
	// Name returns a name/identifier for this module.
	Name() string

	// Kind reports which variant this source is.
	Kind() SourceKind
}

// SyncModuleSource is a source that is already materialized in memory and can
// be instantiated without suspending: raw bytes or a precompiled module.
type SyncModuleSource interface {
	ModuleSource
	syncSource()
}

// fetchable sources are retrieved by reference before compilation.
type fetchable interface {
	reference() string
}

// MemoryModuleSource holds Wasm bytes in memory. It is immutable: the
// constructor keeps its own copy of the data.
type MemoryModuleSource struct {
	ModuleName string
	data       []byte
}

// NewMemorySource copies data into a new in-memory source.
func NewMemorySource(name string, data []byte) *MemoryModuleSource {
	return &MemoryModuleSource{ModuleName: name, data: slices.Clone(data)}
}

// Bytes returns a copy of the Wasm bytecode.
func (m *MemoryModuleSource) Bytes() []byte {
	return slices.Clone(m.data)
}

// Name returns the module name.
func (m *MemoryModuleSource) Name() string {
	return m.ModuleName
}

// Size returns the data size.
func (m *MemoryModuleSource) Size() int64 {
	return int64(len(m.data))
}

func (m *MemoryModuleSource) Kind() SourceKind { return SourceBytes }
func (m *MemoryModuleSource) syncSource()      {}

// FetchModuleSource references a module by URL (http, https, file) or path.
type FetchModuleSource struct {
	Ref string
}

func (f *FetchModuleSource) Name() string      { return f.Ref }
func (f *FetchModuleSource) Kind() SourceKind  { return SourceFetch }
func (f *FetchModuleSource) reference() string { return f.Ref }

// FileModuleSource loads Wasm from a file.
type FileModuleSource struct {
	Path string
}

// Name returns the file path as the module name.
func (f *FileModuleSource) Name() string      { return f.Path }
func (f *FileModuleSource) Kind() SourceKind  { return SourceFetch }
func (f *FileModuleSource) reference() string { return f.Path }

// PrecompiledModuleSource wraps a module already compiled by the same Runtime.
type PrecompiledModuleSource struct {
	Module *CompiledModule
}

func (p *PrecompiledModuleSource) Name() string {
	if p.Module == nil {
		return ""
	}
	return p.Module.Name
}

func (p *PrecompiledModuleSource) Kind() SourceKind { return SourcePrecompiled }
func (p *PrecompiledModuleSource) syncSource()      {}

// DeferredModuleSource yields its real source only when resolved. It lets
// callers hand Init a source that is itself still being produced.
type DeferredModuleSource struct {
	ModuleName string
	Resolve    func(ctx context.Context) (ModuleSource, error)
}

func (d *DeferredModuleSource) Name() string     { return d.ModuleName }
func (d *DeferredModuleSource) Kind() SourceKind { return SourceDeferred }
