//go:build wasm

package guest

import "unsafe"

// This file documents the exports and imports a guest module uses with the
// loader. Guests written in Go implement them with //go:wasmexport and
// //go:wasmimport.
//
// NOTE: uint32 is used for pointers and lengths because WebAssembly uses a 32-bit
// linear memory model. All Wasm memory addresses are represented as 32-bit integers
// (addresses 0 to 4GB).
// See: https://github.com/golang/go/issues/59156

// Optional exports the loader looks for:
//
// //go:wasmexport __wbindgen_start
// func start()
//
// //go:wasmexport __wbindgen_malloc
// func malloc(size, align uint32) uint32
//
// //go:wasmexport __wbindgen_realloc
// func realloc(ptr, oldSize, newSize, align uint32) uint32
//
// //go:wasmexport __wbindgen_free
// func free(ptr, size, align uint32)
//
// //go:wasmexport __wbindgen_exn_store
// func exnStore(idx uint32)
//
// The linear memory is exported as "memory". Start routines run once, in
// the order _initialize, __wbindgen_start, before any other export is called.

// Host import available when host logging is enabled.
// level: 0 = debug, 1 = info, 2 = warn, 3 = error
//
//go:wasmimport host log_message
func logMessage(level, ptr, length uint32)

// Log sends msg to the host logger at level.
func Log(level uint32, msg string) {
	if len(msg) == 0 {
		return
	}
	ptr := unsafe.Pointer(unsafe.StringData(msg))
	logMessage(level, uint32(uintptr(ptr)), uint32(len(msg)))
}
