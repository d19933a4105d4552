// Package wasmtest builds small WebAssembly binaries for tests.
package wasmtest

// Value types.
const (
	I32 byte = 0x7f
	I64 byte = 0x7e
)

// Opcodes used by the fixtures.
const (
	OpUnreachable byte = 0x00
	OpCall        byte = 0x10
	OpDrop        byte = 0x1a
	OpLocalGet    byte = 0x20
	OpLocalSet    byte = 0x21
	OpGlobalGet   byte = 0x23
	OpGlobalSet   byte = 0x24
	OpI32Const    byte = 0x41
	OpI32Add      byte = 0x6a
	OpEnd         byte = 0x0b
)

// MemoryCopy is the bulk-memory memory.copy instruction with both memory indices zero.
var MemoryCopy = []byte{0xfc, 0x0a, 0x00, 0x00}

const (
	kindFunc   byte = 0x00
	kindMemory byte = 0x02
	kindGlobal byte = 0x03
)

// Module accumulates sections and encodes them in binary order.
type Module struct {
	types    [][]byte
	imports  [][]byte
	funcs    []uint32
	codes    [][]byte
	memories [][]byte
	globals  [][]byte
	exports  [][]byte
	data     [][]byte
	start    *uint32

	importedFuncs uint32
}

// New returns an empty module builder.
func New() *Module {
	return &Module{}
}

func (m *Module) typeIndex(params, results []byte) uint32 {
	ft := append([]byte{0x60}, vec(len(params), params)...)
	ft = append(ft, vec(len(results), results)...)
	for i, t := range m.types {
		if string(t) == string(ft) {
			return uint32(i)
		}
	}
	m.types = append(m.types, ft)
	return uint32(len(m.types) - 1)
}

// ImportFunc declares an imported function and returns its function index.
// All imports must be declared before the first Func.
func (m *Module) ImportFunc(module, name string, params, results []byte) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmtest: imports must precede defined functions")
	}
	ti := m.typeIndex(params, results)
	entry := append(encName(module), encName(name)...)
	entry = append(entry, kindFunc)
	entry = append(entry, uleb(uint64(ti))...)
	m.imports = append(m.imports, entry)
	m.importedFuncs++
	return m.importedFuncs - 1
}

// Func defines a function. locals lists one value type per extra local.
// The trailing end opcode is appended automatically.
func (m *Module) Func(params, results, locals []byte, body ...byte) uint32 {
	m.funcs = append(m.funcs, m.typeIndex(params, results))

	var fn []byte
	fn = append(fn, uleb(uint64(len(locals)))...)
	for _, l := range locals {
		fn = append(fn, 0x01, l)
	}
	fn = append(fn, body...)
	fn = append(fn, OpEnd)

	m.codes = append(m.codes, append(uleb(uint64(len(fn))), fn...))
	return m.importedFuncs + uint32(len(m.funcs)-1)
}

// Memory declares a memory with the given minimum page count and returns its index.
func (m *Module) Memory(minPages uint32) uint32 {
	m.memories = append(m.memories, append([]byte{0x00}, uleb(uint64(minPages))...))
	return uint32(len(m.memories) - 1)
}

// GlobalI32 declares an i32 global and returns its index.
func (m *Module) GlobalI32(mutable bool, init int32) uint32 {
	mut := byte(0)
	if mutable {
		mut = 1
	}
	g := []byte{I32, mut, OpI32Const}
	g = append(g, sleb(int64(init))...)
	g = append(g, OpEnd)
	m.globals = append(m.globals, g)
	return uint32(len(m.globals) - 1)
}

// ExportFunc exports a function index under name.
func (m *Module) ExportFunc(name string, idx uint32) *Module {
	return m.export(name, kindFunc, idx)
}

// ExportMemory exports a memory index under name.
func (m *Module) ExportMemory(name string, idx uint32) *Module {
	return m.export(name, kindMemory, idx)
}

// ExportGlobal exports a global index under name.
func (m *Module) ExportGlobal(name string, idx uint32) *Module {
	return m.export(name, kindGlobal, idx)
}

func (m *Module) export(name string, kind byte, idx uint32) *Module {
	e := append(encName(name), kind)
	e = append(e, uleb(uint64(idx))...)
	m.exports = append(m.exports, e)
	return m
}

// Data adds an active data segment for memory 0 at offset.
func (m *Module) Data(offset int32, b []byte) *Module {
	d := []byte{0x00, OpI32Const}
	d = append(d, sleb(int64(offset))...)
	d = append(d, OpEnd)
	d = append(d, uleb(uint64(len(b)))...)
	d = append(d, b...)
	m.data = append(m.data, d)
	return m
}

// Start sets the start section to the given function index.
func (m *Module) Start(idx uint32) *Module {
	m.start = &idx
	return m
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	out = appendSection(out, 1, m.types)
	out = appendSection(out, 2, m.imports)
	if len(m.funcs) > 0 {
		var idx [][]byte
		for _, ti := range m.funcs {
			idx = append(idx, uleb(uint64(ti)))
		}
		out = appendSection(out, 3, idx)
	}
	out = appendSection(out, 5, m.memories)
	out = appendSection(out, 6, m.globals)
	out = appendSection(out, 7, m.exports)
	if m.start != nil {
		payload := uleb(uint64(*m.start))
		out = append(out, 8)
		out = append(out, uleb(uint64(len(payload)))...)
		out = append(out, payload...)
	}
	out = appendSection(out, 10, m.codes)
	out = appendSection(out, 11, m.data)
	return out
}

func appendSection(out []byte, id byte, items [][]byte) []byte {
	if len(items) == 0 {
		return out
	}
	var payload []byte
	for _, it := range items {
		payload = append(payload, it...)
	}
	payload = vec(len(items), payload)
	out = append(out, id)
	out = append(out, uleb(uint64(len(payload)))...)
	return append(out, payload...)
}

func vec(n int, body []byte) []byte {
	return append(uleb(uint64(n)), body...)
}

func encName(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
