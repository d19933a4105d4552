package wasm

import (
	"bytes"
	"context"
	"errors"

	"github.com/tetratelabs/wazero/api"
)

// Memory provides bounds-checked access to a module's linear memory.
//
// Reads return views into guest memory; they stay valid until the guest grows
// or rewrites that region. Writes that need fresh space go through the guest
// allocator, so the guest owns the memory and frees it with its own free.
//
// Memory does no locking. Hosts sharing one InitOutput across goroutines
// synchronize access themselves.
type Memory struct {
	mem   api.Memory
	alloc allocator
}

type allocator interface {
	Malloc(ctx context.Context, size, align uint32) (uint32, error)
	Free(ctx context.Context, ptr, size, align uint32) error
}

// NewMemory creates a memory helper without an allocator.
func NewMemory(module api.Module) *Memory {
	return &Memory{mem: module.Memory()}
}

func newMemory(mem api.Memory, alloc allocator) *Memory {
	return &Memory{mem: mem, alloc: alloc}
}

// Size returns the current size in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// Grow adds deltaPages pages and returns the previous page count.
// Memory only grows; it never shrinks.
func (m *Memory) Grow(deltaPages uint32) (uint32, bool) {
	return m.mem.Grow(deltaPages)
}

// ReadString reads a null-terminated string of at most maxLen bytes.
func (m *Memory) ReadString(ptr uint32, maxLen uint32) (string, bool) {
	if size := m.mem.Size(); ptr < size && maxLen > size-ptr {
		maxLen = size - ptr
	}
	buf, ok := m.mem.Read(ptr, maxLen)
	if !ok {
		return "", false
	}
	if end := bytes.IndexByte(buf, 0); end >= 0 {
		buf = buf[:end]
	}
	return string(buf), true
}

// ReadBytes reads raw bytes from Wasm memory.
func (m *Memory) ReadBytes(ptr uint32, length uint32) ([]byte, bool) {
	return m.mem.Read(ptr, length)
}

// WriteAt copies data to ptr.
func (m *Memory) WriteAt(ptr uint32, data []byte) error {
	if !m.mem.Write(ptr, data) {
		return &MemoryAccessError{
			Operation: "write",
			Address:   ptr,
			Length:    uint32(len(data)),
			Err:       errOutOfRange,
		}
	}
	return nil
}

// WriteBytes allocates guest memory and copies data into it.
// Returns pointer and length; the caller frees them through the guest.
// If the copy fails the allocation is freed before returning.
func (m *Memory) WriteBytes(ctx context.Context, data []byte) (uint32, uint32, error) {
	if m.alloc == nil {
		return 0, 0, &AllocatorError{Role: "malloc", Err: ErrNoAllocator}
	}
	length := uint32(len(data))
	ptr, err := m.alloc.Malloc(ctx, length, 1)
	if err != nil {
		return 0, 0, err
	}
	if err := m.WriteAt(ptr, data); err != nil {
		if freeErr := m.alloc.Free(ctx, ptr, length, 1); freeErr != nil && !errors.Is(freeErr, ErrNoAllocator) {
			err = errors.Join(err, freeErr)
		}
		return 0, 0, err
	}
	return ptr, length, nil
}

// WriteString writes s without a terminator, like WriteBytes.
func (m *Memory) WriteString(ctx context.Context, s string) (uint32, uint32, error) {
	return m.WriteBytes(ctx, []byte(s))
}

// WriteCString writes s followed by a NUL byte. The returned length excludes the NUL.
func (m *Memory) WriteCString(ctx context.Context, s string) (uint32, uint32, error) {
	ptr, _, err := m.WriteBytes(ctx, append([]byte(s), 0))
	if err != nil {
		return 0, 0, err
	}
	return ptr, uint32(len(s)), nil
}
