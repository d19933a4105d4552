package wasm

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingImport means the module imports something no binding provides.
	ErrMissingImport = errors.New("unresolved import")

	// ErrImportSignature means a binding's declared signature differs from the import.
	ErrImportSignature = errors.New("import signature mismatch")

	// ErrUnsupportedImport means the module imports a non-function the loader cannot provide.
	ErrUnsupportedImport = errors.New("unsupported import kind")

	// ErrStartFailed means a start routine trapped or returned an error.
	ErrStartFailed = errors.New("start routine failed")

	// ErrInstanceLimit means MaxInstances outputs are already open.
	ErrInstanceLimit = errors.New("instance limit reached")

	// ErrRuntimeClosed means the Runtime was closed.
	ErrRuntimeClosed = errors.New("runtime closed")

	// ErrNoAllocator means the module exports no allocator for the requested role.
	ErrNoAllocator = errors.New("module exports no allocator")

	// ErrAllocatorArity means an allocator export takes a parameter count the loader cannot map.
	ErrAllocatorArity = errors.New("unsupported allocator signature")

	// ErrDiscarded is returned by Pending.Await after Discard.
	ErrDiscarded = errors.New("pending initialization discarded")

	errOutOfRange = errors.New("out of range")
)

// FetchError occurs when module bytes cannot be retrieved
type FetchError struct {
	Ref        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err == nil && e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch module '%s': unexpected status %d", e.Ref, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch module '%s': %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// CompilationError occurs when Wasm module compilation fails
type CompilationError struct {
	ModuleName string
	Err        error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile Wasm module '%s': %v", e.ModuleName, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// InstantiationError occurs when module instantiation fails
type InstantiationError struct {
	ModuleName string
	InstanceID string
	Err        error
}

func (e *InstantiationError) Error() string {
	if e.InstanceID == "" {
		return fmt.Sprintf("failed to instantiate module '%s': %v", e.ModuleName, e.Err)
	}
	return fmt.Sprintf("failed to instantiate module '%s' (instance: %s): %v",
		e.ModuleName, e.InstanceID, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// ModuleNotFoundError occurs when a precompiled module is not in this runtime's cache
type ModuleNotFoundError struct {
	ModuleName string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module '%s' not found in cache", e.ModuleName)
}

// FunctionNotFoundError occurs when an exported function is missing
type FunctionNotFoundError struct {
	ModuleName   string
	FunctionName string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function '%s' not found in module '%s'",
		e.FunctionName, e.ModuleName)
}

// MemoryAccessError occurs when memory operations fail
type MemoryAccessError struct {
	Operation string
	Address   uint32
	Length    uint32
	Err       error
}

func (e *MemoryAccessError) Error() string {
	return fmt.Sprintf("memory access failed (op=%s, addr=%d, len=%d): %v",
		e.Operation, e.Address, e.Length, e.Err)
}

func (e *MemoryAccessError) Unwrap() error {
	return e.Err
}

// AllocatorError occurs when a guest allocator or exception-slot call fails
type AllocatorError struct {
	Role string
	Err  error
}

func (e *AllocatorError) Error() string {
	return fmt.Sprintf("allocator '%s' failed: %v", e.Role, e.Err)
}

func (e *AllocatorError) Unwrap() error {
	return e.Err
}

// HostFunctionError occurs when a host import module cannot be built
type HostFunctionError struct {
	FunctionName string
	Err          error
}

func (e *HostFunctionError) Error() string {
	return fmt.Sprintf("host function '%s' failed: %v", e.FunctionName, e.Err)
}

func (e *HostFunctionError) Unwrap() error {
	return e.Err
}
