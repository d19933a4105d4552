package wasm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

var instanceSeq atomic.Uint64

// instantiate links compiled into a fresh sandbox and runs its start routines.
// On any failure the sandbox is closed, so nothing partially initialized escapes.
func (l *Loader) instantiate(ctx context.Context, compiled *CompiledModule, imports ImportBindings) (*InitOutput, error) {
	instanceID := generateInstanceID()
	fail := func(err error) (*InitOutput, error) {
		return nil, &InstantiationError{
			ModuleName: compiled.Name,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	if l.runtime.IsClosed() {
		return fail(ErrRuntimeClosed)
	}

	provided := map[string]bool{}
	if l.config.EnableWASI {
		provided[wasi_snapshot_preview1.ModuleName] = true
	}

	bindings := imports
	if l.config.HostLogging {
		bindings = l.host.Bindings().merge(imports)
	}
	if err := bindings.verify(compiled.Module, provided); err != nil {
		return fail(err)
	}

	if !l.runtime.reserve() {
		return fail(fmt.Errorf("%w (max %d)", ErrInstanceLimit, l.runtime.config.MaxInstances))
	}

	l.logger.Info("Instantiating Wasm module",
		zap.String("module", compiled.Name),
		zap.String("instance_id", instanceID),
	)

	sandbox := l.runtime.newSandbox(ctx)
	abort := func(err error) (*InitOutput, error) {
		_ = sandbox.Close(ctx)
		l.runtime.release()
		return fail(err)
	}

	modules := importedModules(compiled.Module)
	if l.config.EnableWASI && contains(modules, wasi_snapshot_preview1.ModuleName) {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, sandbox); err != nil {
			return abort(&HostFunctionError{FunctionName: wasi_snapshot_preview1.ModuleName, Err: err})
		}
		modules = slices.DeleteFunc(modules, func(mod string) bool {
			return mod == wasi_snapshot_preview1.ModuleName
		})
	}
	if err := bindings.link(ctx, sandbox, modules); err != nil {
		return abort(err)
	}

	// Served from the shared compilation cache.
	guest, err := sandbox.CompileModule(ctx, compiled.bytes)
	if err != nil {
		return abort(&CompilationError{ModuleName: compiled.Name, Err: err})
	}

	// A start section, if any, runs inside InstantiateModule. Exported start
	// routines are run below so their failures are reported distinctly.
	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions()
	if l.config.Stdout != nil {
		moduleConfig = moduleConfig.WithStdout(l.config.Stdout)
	}
	if l.config.Stderr != nil {
		moduleConfig = moduleConfig.WithStderr(l.config.Stderr)
	}

	module, err := sandbox.InstantiateModule(ctx, guest, moduleConfig)
	if err != nil {
		return abort(err)
	}

	if err := l.runStart(ctx, module); err != nil {
		return abort(err)
	}

	out := newInitOutput(instanceID, compiled.Name, module, sandbox, l.runtime, time.Now().Unix())
	l.runtime.StoreInstance(instanceID, out)

	// Runtime.Close may have swept instances while this one was linking.
	if l.runtime.IsClosed() {
		_ = out.Close(ctx)
		return fail(ErrRuntimeClosed)
	}

	l.logger.Info("Module instantiated successfully",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(out.exports)),
	)

	return out, nil
}

// runStart calls each configured start routine the module exports, once, in order.
func (l *Loader) runStart(ctx context.Context, module api.Module) error {
	for _, name := range l.config.StartFunctions {
		fn := module.ExportedFunction(name)
		if fn == nil {
			continue
		}

		l.logger.Debug("Running start routine",
			zap.String("instance_id", module.Name()),
			zap.String("function", name),
		)

		if _, err := fn.Call(ctx); err != nil {
			var exitErr *sys.ExitError
			if errors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
				continue
			}
			return fmt.Errorf("%w: %s: %v", ErrStartFailed, name, err)
		}
	}
	return nil
}

// generateInstanceID generates a unique instance ID.
func generateInstanceID() string {
	return fmt.Sprintf("inst-%d-%d", time.Now().UnixNano(), instanceSeq.Add(1))
}

func contains(names []string, name string) bool {
	i := sort.SearchStrings(names, name)
	return i < len(names) && names[i] == name
}
