package wasm

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// HostFunc is one host-provided import.
//
// Typed functions set Fn with explicit Params and Results; their signature is
// checked against the module's import table before linking. Reflective
// functions set Func to a Go func and are validated by wazero when linked.
type HostFunc struct {
	Params     []api.ValueType
	Results    []api.ValueType
	Fn         api.GoModuleFunc
	Func       any
	ParamNames []string
}

// NewHostFunc returns a typed host function.
func NewHostFunc(params, results []api.ValueType, fn api.GoModuleFunc) HostFunc {
	return HostFunc{Params: params, Results: results, Fn: fn}
}

// HostFuncOf wraps a Go func such as func(context.Context, uint32) uint32.
func HostFuncOf(fn any) HostFunc {
	return HostFunc{Func: fn}
}

func (h HostFunc) defined() bool {
	return h.Fn != nil || h.Func != nil
}

// ModuleImports maps function names of one import module to host functions.
type ModuleImports map[string]HostFunc

// ImportBindings maps import module names to their functions.
type ImportBindings map[string]ModuleImports

// merge returns a new set with overlay applied per function.
func (b ImportBindings) merge(overlay ImportBindings) ImportBindings {
	out := make(ImportBindings, len(b)+len(overlay))
	for _, src := range []ImportBindings{b, overlay} {
		for mod, funcs := range src {
			dst, ok := out[mod]
			if !ok {
				dst = make(ModuleImports, len(funcs))
				out[mod] = dst
			}
			for name, fn := range funcs {
				dst[name] = fn
			}
		}
	}
	return out
}

// verify checks every import of compiled against the bindings. Modules in
// provided are satisfied elsewhere (e.g. WASI) and skipped.
func (b ImportBindings) verify(compiled wazero.CompiledModule, provided map[string]bool) error {
	for _, def := range compiled.ImportedMemories() {
		mod, name, _ := def.Import()
		if provided[mod] {
			continue
		}
		return fmt.Errorf("%w: memory %s.%s", ErrUnsupportedImport, mod, name)
	}

	for _, def := range compiled.ImportedFunctions() {
		mod, name, _ := def.Import()
		if provided[mod] {
			continue
		}

		hf, ok := b[mod][name]
		if !ok || !hf.defined() {
			return fmt.Errorf("%w: %s.%s", ErrMissingImport, mod, name)
		}
		if hf.Fn == nil {
			continue
		}
		if !slices.Equal(hf.Params, def.ParamTypes()) || !slices.Equal(hf.Results, def.ResultTypes()) {
			return fmt.Errorf("%w: %s.%s: module wants %s, binding has %s",
				ErrImportSignature, mod, name,
				signature(def.ParamTypes(), def.ResultTypes()),
				signature(hf.Params, hf.Results))
		}
	}
	return nil
}

// link instantiates one host module per imported module name into sandbox.
func (b ImportBindings) link(ctx context.Context, sandbox wazero.Runtime, modules []string) error {
	for _, mod := range modules {
		funcs, ok := b[mod]
		if !ok {
			continue
		}

		builder := sandbox.NewHostModuleBuilder(mod)
		for _, name := range sortedFuncNames(funcs) {
			hf := funcs[name]
			fb := builder.NewFunctionBuilder()
			if hf.Fn != nil {
				fb = fb.WithGoModuleFunction(hf.Fn, hf.Params, hf.Results)
			} else {
				fb = fb.WithFunc(hf.Func)
			}
			if len(hf.ParamNames) > 0 {
				fb = fb.WithParameterNames(hf.ParamNames...)
			}
			fb.Export(name)
		}

		if _, err := builder.Instantiate(ctx); err != nil {
			return &HostFunctionError{FunctionName: mod, Err: err}
		}
	}
	return nil
}

// importedModules returns the distinct module names compiled imports from, sorted.
func importedModules(compiled wazero.CompiledModule) []string {
	seen := map[string]bool{}
	for _, def := range compiled.ImportedFunctions() {
		mod, _, _ := def.Import()
		seen[mod] = true
	}
	names := make([]string, 0, len(seen))
	for mod := range seen {
		names = append(names, mod)
	}
	sort.Strings(names)
	return names
}

func sortedFuncNames(funcs ModuleImports) []string {
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func signature(params, results []api.ValueType) string {
	return "(" + typeList(params) + ") -> (" + typeList(results) + ")"
}

func typeList(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, ", ")
}
