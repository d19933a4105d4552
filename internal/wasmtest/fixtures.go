package wasmtest

import "github.com/woxQAQ/wasm-loader/pkg/abi"

// HostLogMessage is the text HostLogModule passes to host.log_message.
const HostLogMessage = "hello from guest"

// HeapBase is where the ABIModule bump allocator starts handing out memory.
const HeapBase = 1024

// Minimal is an empty but valid module.
func Minimal() []byte {
	return New().Bytes()
}

// Malformed returns bytes with a valid header followed by garbage.
func Malformed() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, 0xff, 0x01, 0x02}
}

// AddModule exports add(i32, i32) -> i32.
func AddModule() []byte {
	m := New()
	add := m.Func([]byte{I32, I32}, []byte{I32}, nil,
		OpLocalGet, 0,
		OpLocalGet, 1,
		OpI32Add,
	)
	m.ExportFunc("add", add)
	return m.Bytes()
}

// ImportModule imports env.double(i32) -> i32 and exports quad(i32) -> i32,
// which calls double twice.
func ImportModule() []byte {
	m := New()
	double := m.ImportFunc("env", "double", []byte{I32}, []byte{I32})
	quad := m.Func([]byte{I32}, []byte{I32}, nil,
		OpLocalGet, 0,
		OpCall, byte(double),
		OpCall, byte(double),
	)
	m.ExportFunc("quad", quad)
	return m.Bytes()
}

// ABIModule mirrors the export surface of a bindgen-produced module: memory,
// run, a bump allocator, an exception slot and a start routine.
//
// Extra exports for assertions:
//   - start_count() -> i32: times __wbindgen_start ran
//   - last_exception() -> i32: last index given to __wbindgen_exn_store
func ABIModule() []byte {
	m := New()
	mem := m.Memory(1)
	heap := m.GlobalI32(true, HeapBase)
	started := m.GlobalI32(true, 0)
	exn := m.GlobalI32(true, -1)

	malloc := m.Func([]byte{I32, I32}, []byte{I32}, []byte{I32},
		OpGlobalGet, byte(heap),
		OpLocalSet, 2,
		OpGlobalGet, byte(heap),
		OpLocalGet, 0,
		OpI32Add,
		OpGlobalSet, byte(heap),
		OpLocalGet, 2,
	)

	reallocBody := []byte{
		OpLocalGet, 2,
		OpLocalGet, 3,
		OpCall, byte(malloc),
		OpLocalSet, 4,
		OpLocalGet, 4,
		OpLocalGet, 0,
		OpLocalGet, 1,
	}
	reallocBody = append(reallocBody, MemoryCopy...)
	reallocBody = append(reallocBody, OpLocalGet, 4)
	realloc := m.Func([]byte{I32, I32, I32, I32}, []byte{I32}, []byte{I32}, reallocBody...)

	free := m.Func([]byte{I32, I32, I32}, nil, nil)

	exnStore := m.Func([]byte{I32}, nil, nil,
		OpLocalGet, 0,
		OpGlobalSet, byte(exn),
	)

	start := m.Func(nil, nil, nil,
		OpI32Const, 1,
		OpGlobalGet, byte(started),
		OpI32Add,
		OpGlobalSet, byte(started),
	)

	run := m.Func(nil, nil, nil)

	startCount := m.Func(nil, []byte{I32}, nil, OpGlobalGet, byte(started))
	lastExn := m.Func(nil, []byte{I32}, nil, OpGlobalGet, byte(exn))

	m.ExportMemory(abi.ExportMemory, mem).
		ExportFunc("run", run).
		ExportFunc(abi.ExportMalloc, malloc).
		ExportFunc(abi.ExportRealloc, realloc).
		ExportFunc(abi.ExportFree, free).
		ExportFunc(abi.ExportExnStore, exnStore).
		ExportFunc(abi.StartBindgen, start).
		ExportFunc("start_count", startCount).
		ExportFunc("last_exception", lastExn)
	return m.Bytes()
}

// LibcModule exports plain libc-style allocator entries over one page of
// memory: malloc(size) -> ptr, realloc(ptr, size) -> ptr and free(ptr).
// realloc copies size bytes from ptr into a fresh block.
//
// Extra exports for assertions:
//   - last_realloc_size() -> i32: size argument of the last realloc call
//   - last_free() -> i32: pointer given to the last free call, or -1
func LibcModule() []byte {
	m := New()
	mem := m.Memory(1)
	heap := m.GlobalI32(true, HeapBase)
	reallocSize := m.GlobalI32(true, 0)
	freed := m.GlobalI32(true, -1)

	malloc := m.Func([]byte{I32}, []byte{I32}, []byte{I32},
		OpGlobalGet, byte(heap),
		OpLocalSet, 1,
		OpGlobalGet, byte(heap),
		OpLocalGet, 0,
		OpI32Add,
		OpGlobalSet, byte(heap),
		OpLocalGet, 1,
	)

	reallocBody := []byte{
		OpLocalGet, 1,
		OpGlobalSet, byte(reallocSize),
		OpLocalGet, 1,
		OpCall, byte(malloc),
		OpLocalSet, 2,
		OpLocalGet, 2,
		OpLocalGet, 0,
		OpLocalGet, 1,
	}
	reallocBody = append(reallocBody, MemoryCopy...)
	reallocBody = append(reallocBody, OpLocalGet, 2)
	realloc := m.Func([]byte{I32, I32}, []byte{I32}, []byte{I32}, reallocBody...)

	free := m.Func([]byte{I32}, nil, nil,
		OpLocalGet, 0,
		OpGlobalSet, byte(freed),
	)

	lastRealloc := m.Func(nil, []byte{I32}, nil, OpGlobalGet, byte(reallocSize))
	lastFree := m.Func(nil, []byte{I32}, nil, OpGlobalGet, byte(freed))

	m.ExportMemory(abi.ExportMemory, mem).
		ExportFunc("malloc", malloc).
		ExportFunc("realloc", realloc).
		ExportFunc("free", free).
		ExportFunc("last_realloc_size", lastRealloc).
		ExportFunc("last_free", lastFree)
	return m.Bytes()
}

// OddAllocatorModule exports a malloc taking three params, which no
// allocator convention uses.
func OddAllocatorModule() []byte {
	m := New()
	mem := m.Memory(1)
	malloc := m.Func([]byte{I32, I32, I32}, []byte{I32}, nil, OpLocalGet, 0)
	m.ExportMemory(abi.ExportMemory, mem).ExportFunc("malloc", malloc)
	return m.Bytes()
}

// StartTrapModule exports run and a __wbindgen_start that traps.
func StartTrapModule() []byte {
	m := New()
	start := m.Func(nil, nil, nil, OpUnreachable)
	run := m.Func(nil, nil, nil)
	m.ExportFunc(abi.StartBindgen, start).ExportFunc("run", run)
	return m.Bytes()
}

// StartSectionModule increments a global from its start section and exports
// count() -> i32 to read it.
func StartSectionModule() []byte {
	m := New()
	counter := m.GlobalI32(true, 0)
	init := m.Func(nil, nil, nil,
		OpGlobalGet, byte(counter),
		OpI32Const, 1,
		OpI32Add,
		OpGlobalSet, byte(counter),
	)
	count := m.Func(nil, []byte{I32}, nil, OpGlobalGet, byte(counter))
	m.Start(init)
	m.ExportFunc("count", count)
	return m.Bytes()
}

// HostLogModule imports host.log_message and exports hello(), which logs
// HostLogMessage at info level.
func HostLogModule() []byte {
	m := New()
	logMessage := m.ImportFunc("host", "log_message", []byte{I32, I32, I32}, nil)
	mem := m.Memory(1)
	const offset = 16
	m.Data(offset, []byte(HostLogMessage))

	body := []byte{OpI32Const, 1, OpI32Const}
	body = append(body, sleb(offset)...)
	body = append(body, OpI32Const)
	body = append(body, sleb(int64(len(HostLogMessage)))...)
	body = append(body, OpCall, byte(logMessage))
	hello := m.Func(nil, nil, nil, body...)

	m.ExportMemory(abi.ExportMemory, mem).ExportFunc("hello", hello)
	return m.Bytes()
}

// MemoryImportModule imports env.memory, which bindings cannot satisfy.
func MemoryImportModule() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	// import section: 1 entry, "env" "memory" kind=memory limits{min 1}
	entry := append(encName("env"), encName("memory")...)
	entry = append(entry, kindMemory, 0x00, 0x01)
	payload := vec(1, entry)
	out = append(out, 2)
	out = append(out, uleb(uint64(len(payload)))...)
	return append(out, payload...)
}

// WASIStdoutMessage is what WASIModule writes to stdout.
const WASIStdoutMessage = "hi\n"

// WASIModule imports wasi_snapshot_preview1.fd_write and exports hello(),
// which writes WASIStdoutMessage to fd 1.
func WASIModule() []byte {
	m := New()
	fdWrite := m.ImportFunc("wasi_snapshot_preview1", "fd_write", []byte{I32, I32, I32, I32}, []byte{I32})
	mem := m.Memory(1)
	// iovec{buf: 8, len: 3} at 0, message at 8, nwritten at 20.
	m.Data(0, append([]byte{8, 0, 0, 0, byte(len(WASIStdoutMessage)), 0, 0, 0}, WASIStdoutMessage...))

	hello := m.Func(nil, nil, nil,
		OpI32Const, 1,
		OpI32Const, 0,
		OpI32Const, 1,
		OpI32Const, 20,
		OpCall, byte(fdWrite),
		OpDrop,
	)
	m.ExportMemory(abi.ExportMemory, mem).ExportFunc("hello", hello)
	return m.Bytes()
}
