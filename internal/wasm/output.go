package wasm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/woxQAQ/wasm-loader/pkg/abi"
)

// InitOutput is a ready module instance: its linear memory, its exported
// functions and the allocator and exception-slot entries used for marshaling.
//
// An InitOutput is only ever handed out after the start routine has run.
type InitOutput struct {
	// Instance metadata.
	ID        string
	Name      string
	CreatedAt int64

	module  api.Module
	sandbox wazero.Runtime
	runtime *Runtime
	memory  *Memory

	// Exported functions (cached for performance).
	exports map[string]api.Function
	roles   map[abi.Role]api.Function

	closeOnce sync.Once
	closeErr  error
}

// Module returns the underlying wazero module.
func (o *InitOutput) Module() api.Module {
	return o.module
}

// Memory returns the module's linear memory, or nil if it has none.
func (o *InitOutput) Memory() *Memory {
	return o.memory
}

// Exports returns the sorted names of every exported function.
func (o *InitOutput) Exports() []string {
	names := make([]string, 0, len(o.exports))
	for name := range o.exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Export returns the exported function name.
func (o *InitOutput) Export(name string) (api.Function, error) {
	fn, ok := o.exports[name]
	if !ok {
		return nil, &FunctionNotFoundError{ModuleName: o.Name, FunctionName: name}
	}
	return fn, nil
}

// Call invokes the exported function name with raw wazero-encoded params.
func (o *InitOutput) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn, err := o.Export(name)
	if err != nil {
		return nil, err
	}
	return fn.Call(ctx, params...)
}

// HasAllocator reports whether the module exports a malloc-equivalent.
func (o *InitOutput) HasAllocator() bool {
	return o.roles[abi.RoleMalloc] != nil
}

// Malloc allocates size bytes in guest memory.
// Accepts malloc(size) and malloc(size, align).
func (o *InitOutput) Malloc(ctx context.Context, size, align uint32) (uint32, error) {
	s, a := api.EncodeU32(size), api.EncodeU32(align)
	res, err := o.callRole(ctx, abi.RoleMalloc, true, map[int][]uint64{
		1: {s},
		2: {s, a},
	})
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res[0]), nil
}

// Realloc resizes a guest allocation, preserving its contents.
// Accepts realloc(ptr, newSize), realloc(ptr, oldSize, newSize) and
// realloc(ptr, oldSize, newSize, align).
func (o *InitOutput) Realloc(ctx context.Context, ptr, oldSize, newSize, align uint32) (uint32, error) {
	p, old, ns, a := api.EncodeU32(ptr), api.EncodeU32(oldSize), api.EncodeU32(newSize), api.EncodeU32(align)
	res, err := o.callRole(ctx, abi.RoleRealloc, true, map[int][]uint64{
		2: {p, ns},
		3: {p, old, ns},
		4: {p, old, ns, a},
	})
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res[0]), nil
}

// Free releases a guest allocation.
// Accepts free(ptr), free(ptr, size) and free(ptr, size, align).
func (o *InitOutput) Free(ctx context.Context, ptr, size, align uint32) error {
	p, s, a := api.EncodeU32(ptr), api.EncodeU32(size), api.EncodeU32(align)
	_, err := o.callRole(ctx, abi.RoleFree, false, map[int][]uint64{
		1: {p},
		2: {p, s},
		3: {p, s, a},
	})
	return err
}

// StoreException hands a host-side exception index to the guest's exception
// slot, so a failing exported call can surface it.
func (o *InitOutput) StoreException(ctx context.Context, idx uint32) error {
	_, err := o.callRole(ctx, abi.RoleExnStore, false, map[int][]uint64{
		1: {api.EncodeU32(idx)},
	})
	return err
}

// callRole calls the export bound to role with the params listed for its arity.
func (o *InitOutput) callRole(ctx context.Context, role abi.Role, wantResult bool, byArity map[int][]uint64) ([]uint64, error) {
	fn := o.roles[role]
	if fn == nil {
		return nil, &AllocatorError{Role: role.String(), Err: ErrNoAllocator}
	}

	n := len(fn.Definition().ParamTypes())
	params, ok := byArity[n]
	if !ok {
		return nil, &AllocatorError{Role: role.String(), Err: fmt.Errorf("%w: %d params", ErrAllocatorArity, n)}
	}

	res, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, &AllocatorError{Role: role.String(), Err: err}
	}
	if wantResult && len(res) == 0 {
		return nil, &AllocatorError{Role: role.String(), Err: fmt.Errorf("export returns no value")}
	}
	return res, nil
}

// Close closes the instance and releases its sandbox.
func (o *InitOutput) Close(ctx context.Context) error {
	o.closeOnce.Do(func() {
		o.closeErr = o.sandbox.Close(ctx)
		if o.runtime != nil {
			o.runtime.DeleteInstance(o.ID)
			o.runtime.release()
		}
	})
	return o.closeErr
}

// newInitOutput caches exports and resolves ABI roles.
func newInitOutput(id, name string, module api.Module, sandbox wazero.Runtime, runtime *Runtime, createdAt int64) *InitOutput {
	out := &InitOutput{
		ID:        id,
		Name:      name,
		CreatedAt: createdAt,
		module:    module,
		sandbox:   sandbox,
		runtime:   runtime,
		exports:   make(map[string]api.Function),
		roles:     make(map[abi.Role]api.Function),
	}

	for export := range module.ExportedFunctionDefinitions() {
		if fn := module.ExportedFunction(export); fn != nil {
			out.exports[export] = fn
		}
	}

	for _, role := range []abi.Role{abi.RoleMalloc, abi.RoleRealloc, abi.RoleFree, abi.RoleExnStore} {
		for _, candidate := range abi.Candidates(role) {
			if fn, ok := out.exports[candidate]; ok {
				out.roles[role] = fn
				break
			}
		}
	}

	if mem := module.Memory(); mem != nil {
		out.memory = newMemory(mem, out)
	}
	return out
}
