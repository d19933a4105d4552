package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/woxQAQ/wasm-loader/internal/wasmtest"
)

func newABIOutput(t *testing.T) *InitOutput {
	t.Helper()
	_, loader := newTestLoader(t, nil, nil)
	out, err := loader.InitSync(context.Background(), NewMemorySource("abi", wasmtest.ABIModule()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = out.Close(context.Background()) })
	return out
}

func TestOutputExports(t *testing.T) {
	out := newABIOutput(t)

	assert.Equal(t, []string{
		"__wbindgen_exn_store",
		"__wbindgen_free",
		"__wbindgen_malloc",
		"__wbindgen_realloc",
		"__wbindgen_start",
		"last_exception",
		"run",
		"start_count",
	}, out.Exports())

	_, err := out.Call(context.Background(), "missing")
	var notFound *FunctionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.FunctionName)

	res, err := out.Call(context.Background(), "run")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestOutputAllocator(t *testing.T) {
	out := newABIOutput(t)
	ctx := context.Background()

	require.True(t, out.HasAllocator())

	first, err := out.Malloc(ctx, 16, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(wasmtest.HeapBase), first)

	second, err := out.Malloc(ctx, 8, 1)
	require.NoError(t, err)
	assert.Equal(t, first+16, second)

	require.NoError(t, out.Memory().WriteAt(first, []byte("0123456789abcdef")))
	moved, err := out.Realloc(ctx, first, 16, 32, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first, moved)

	got, ok := out.Memory().ReadBytes(moved, 16)
	require.True(t, ok)
	assert.Equal(t, "0123456789abcdef", string(got))

	assert.NoError(t, out.Free(ctx, moved, 32, 1))
}

func TestOutputStoreException(t *testing.T) {
	out := newABIOutput(t)
	ctx := context.Background()

	assert.Equal(t, int32(-1), callI32(t, out, "last_exception"))
	require.NoError(t, out.StoreException(ctx, 7))
	assert.Equal(t, int32(7), callI32(t, out, "last_exception"))
}

func TestOutputWithoutAllocator(t *testing.T) {
	_, loader := newTestLoader(t, nil, nil)
	ctx := context.Background()

	out, err := loader.InitSync(ctx, NewMemorySource("add", wasmtest.AddModule()), nil)
	require.NoError(t, err)
	defer out.Close(ctx)

	assert.False(t, out.HasAllocator())

	_, err = out.Malloc(ctx, 4, 1)
	var allocErr *AllocatorError
	require.ErrorAs(t, err, &allocErr)
	assert.ErrorIs(t, err, ErrNoAllocator)
	assert.Equal(t, "malloc", allocErr.Role)

	assert.ErrorIs(t, out.StoreException(ctx, 1), ErrNoAllocator)
}

func TestOutputCloseIdempotent(t *testing.T) {
	runtime, loader := newTestLoader(t, nil, nil)
	ctx := context.Background()

	out, err := loader.InitSync(ctx, NewMemorySource("add", wasmtest.AddModule()), nil)
	require.NoError(t, err)

	require.NoError(t, out.Close(ctx))
	require.NoError(t, out.Close(ctx))
	assert.Equal(t, 0, runtime.ActiveInstances())

	_, err = out.Call(ctx, "add", api.EncodeI32(1), api.EncodeI32(1))
	assert.Error(t, err, "calls on a closed output fail")
}

func TestMemoryStrings(t *testing.T) {
	out := newABIOutput(t)
	ctx := context.Background()
	mem := out.Memory()
	require.NotNil(t, mem)

	ptr, n, err := mem.WriteString(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, uint32(5), n)
	got, ok := mem.ReadBytes(ptr, n)
	require.True(t, ok)
	assert.Equal(t, "hello", string(got))

	ptr, n, err = mem.WriteCString(ctx, "world")
	require.NoError(t, err)
	assert.Equal(t, uint32(5), n)
	s, ok := mem.ReadString(ptr, 64)
	require.True(t, ok)
	assert.Equal(t, "world", s)

	// maxLen is clamped to the end of memory.
	_, ok = mem.ReadString(mem.Size()-4, 1024)
	assert.True(t, ok)

	_, ok = mem.ReadString(mem.Size()+1, 1)
	assert.False(t, ok)
}

func TestMemoryBounds(t *testing.T) {
	out := newABIOutput(t)
	mem := out.Memory()

	err := mem.WriteAt(mem.Size()-1, []byte{1, 2})
	var accessErr *MemoryAccessError
	require.ErrorAs(t, err, &accessErr)
	assert.Equal(t, "write", accessErr.Operation)

	_, ok := mem.ReadBytes(mem.Size(), 1)
	assert.False(t, ok)
}

func TestMemoryGrow(t *testing.T) {
	out := newABIOutput(t)
	mem := out.Memory()

	assert.Equal(t, uint32(65536), mem.Size())
	prev, ok := mem.Grow(1)
	require.True(t, ok)
	assert.Equal(t, uint32(1), prev)
	assert.Equal(t, uint32(2*65536), mem.Size())
}

func TestNewMemoryHasNoAllocator(t *testing.T) {
	out := newABIOutput(t)
	mem := NewMemory(out.Module())

	_, _, err := mem.WriteBytes(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrNoAllocator)
}

func TestOutputLibcAllocator(t *testing.T) {
	_, loader := newTestLoader(t, nil, nil)
	ctx := context.Background()

	out, err := loader.InitSync(ctx, NewMemorySource("libc", wasmtest.LibcModule()), nil)
	require.NoError(t, err)
	defer out.Close(ctx)

	require.True(t, out.HasAllocator())

	ptr, n, err := out.Memory().WriteString(ctx, "0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, uint32(wasmtest.HeapBase), ptr)

	moved, err := out.Realloc(ctx, ptr, n, 64, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(64), callI32(t, out, "last_realloc_size"), "realloc(ptr, size) gets the new size")
	assert.Equal(t, ptr+n, moved)

	got, ok := out.Memory().ReadBytes(moved, n)
	require.True(t, ok)
	assert.Equal(t, "0123456789abcdef", string(got))

	next, err := out.Malloc(ctx, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, moved+64, next, "the resized block spans the new size")

	cptr, _, err := out.Memory().WriteCString(ctx, "libc")
	require.NoError(t, err)
	s, ok := out.Memory().ReadString(cptr, 16)
	require.True(t, ok)
	assert.Equal(t, "libc", s)

	require.NoError(t, out.Free(ctx, moved, 64, 1))
	assert.Equal(t, int32(moved), callI32(t, out, "last_free"))
}

func TestOutputAllocatorArity(t *testing.T) {
	_, loader := newTestLoader(t, nil, nil)
	ctx := context.Background()

	out, err := loader.InitSync(ctx, NewMemorySource("odd", wasmtest.OddAllocatorModule()), nil)
	require.NoError(t, err)
	defer out.Close(ctx)

	_, err = out.Malloc(ctx, 4, 1)
	var allocErr *AllocatorError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, "malloc", allocErr.Role)
	assert.ErrorIs(t, err, ErrAllocatorArity)
}

type recordingAllocator struct {
	ptr   uint32
	freed []uint32
}

func (a *recordingAllocator) Malloc(context.Context, uint32, uint32) (uint32, error) {
	return a.ptr, nil
}

func (a *recordingAllocator) Free(_ context.Context, ptr, _, _ uint32) error {
	a.freed = append(a.freed, ptr)
	return nil
}

func TestWriteBytesFreesOnFailedCopy(t *testing.T) {
	out := newABIOutput(t)
	raw := out.Module().Memory()

	alloc := &recordingAllocator{ptr: raw.Size() - 2}
	mem := newMemory(raw, alloc)

	_, _, err := mem.WriteBytes(context.Background(), []byte("four"))
	var accessErr *MemoryAccessError
	require.ErrorAs(t, err, &accessErr)
	assert.Equal(t, []uint32{alloc.ptr}, alloc.freed)
}
