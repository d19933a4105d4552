package wasm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// HostModuleName is the import module under which built-in host functions are exported.
const HostModuleName = "host"

// HostFunctions implements the built-in host functions for Wasm modules.
type HostFunctions struct {
	logger *zap.Logger
}

// NewHostFunctions creates a new host functions implementation.
func NewHostFunctions(logger *zap.Logger) *HostFunctions {
	return &HostFunctions{
		logger: logger.With(zap.String("component", "wasm-host")),
	}
}

// Bindings returns the built-in functions as import bindings.
func (h *HostFunctions) Bindings() ImportBindings {
	i32 := api.ValueTypeI32
	return ImportBindings{
		HostModuleName: {
			"log_message": HostFunc{
				Params:     []api.ValueType{i32, i32, i32},
				Fn:         h.logMessage,
				ParamNames: []string{"level", "ptr", "length"},
			},
		},
	}
}

// logMessage is called by Wasm modules to log messages.
// Signature: log_message(level, ptr, length)
// level: 0 = debug, 1 = info, 2 = warn, 3 = error
func (h *HostFunctions) logMessage(_ context.Context, mod api.Module, stack []uint64) {
	level := api.DecodeU32(stack[0])
	ptr := api.DecodeU32(stack[1])
	length := api.DecodeU32(stack[2])

	logger := h.logger.With(zap.String("instance_id", mod.Name()))

	mem := mod.Memory()
	if mem == nil {
		logger.Error("log_message called by module without memory")
		return
	}

	msg, ok := mem.Read(ptr, length)
	if !ok {
		logger.Error("Failed to read log message from Wasm memory",
			zap.Uint32("ptr", ptr),
			zap.Uint32("length", length),
		)
		return
	}

	switch level {
	case 0:
		logger.Debug(string(msg))
	case 1:
		logger.Info(string(msg))
	case 2:
		logger.Warn(string(msg))
	case 3:
		logger.Error(string(msg))
	default:
		logger.Info(string(msg))
	}
}
