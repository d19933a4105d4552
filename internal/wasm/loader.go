package wasm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-loader/pkg/abi"
)

// LoaderConfig holds instantiation options.
type LoaderConfig struct {
	// Exported start routines, run once in order after instantiation.
	// Missing exports are skipped. A module's start section always runs.
	StartFunctions []string

	// Link wasi_snapshot_preview1 for modules that import it.
	EnableWASI bool

	// Provide the built-in "host" import module (log_message).
	HostLogging bool

	// Guest stdout/stderr for WASI modules. Discarded when nil.
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultLoaderConfig returns sensible defaults.
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		StartFunctions: abi.DefaultStartFunctions(),
		EnableWASI:     false,
		HostLogging:    true,
	}
}

// Loader turns module sources into ready InitOutputs.
//
// InitSync blocks; Init returns a Pending. Both compile (or reuse a compiled
// module), link imports in a fresh sandbox and run start routines exactly
// once before returning. The Loader mutates no global state.
type Loader struct {
	runtime *Runtime
	fetcher *Fetcher
	host    *HostFunctions
	config  *LoaderConfig
	logger  *zap.Logger
}

// NewLoader creates a loader. A nil fetcher reads from the OS filesystem and
// the default HTTP client; a nil config uses DefaultLoaderConfig.
func NewLoader(runtime *Runtime, fetcher *Fetcher, config *LoaderConfig, logger *zap.Logger) *Loader {
	if config == nil {
		config = DefaultLoaderConfig()
	}
	if fetcher == nil {
		fetcher = NewFetcher(FetcherConfig{}, logger)
	}
	return &Loader{
		runtime: runtime,
		fetcher: fetcher,
		host:    NewHostFunctions(logger),
		config:  config,
		logger:  logger.With(zap.String("component", "wasm-loader")),
	}
}

// WithWASI returns a loader sharing l's runtime and fetcher with WASI linking
// switched on or off.
func (l *Loader) WithWASI(enabled bool) *Loader {
	if l.config.EnableWASI == enabled {
		return l
	}
	config := *l.config
	config.EnableWASI = enabled
	clone := *l
	clone.config = &config
	return &clone
}

// InitSync instantiates a source that is already in memory. It fails with
// *InstantiationError if the bytes are malformed, an import cannot be
// satisfied or a start routine fails.
func (l *Loader) InitSync(ctx context.Context, source SyncModuleSource, imports ImportBindings) (*InitOutput, error) {
	return l.run(ctx, source, imports, newLifecycle())
}

// Init instantiates source asynchronously. Fetchable sources are retrieved
// first; retrieval failures resolve the Pending with *FetchError and never
// reach instantiation.
//
// Cancelling ctx does not interrupt an in-flight fetch or instantiation;
// callers abandon the result with Pending.Discard.
func (l *Loader) Init(ctx context.Context, source ModuleSource, imports ImportBindings) *Pending {
	p := newPending()
	ctx = context.WithoutCancel(ctx)

	go func() {
		var (
			out *InitOutput
			err error
			pc  panics.Catcher
		)
		pc.Try(func() {
			out, err = l.run(ctx, source, imports, p.lc)
		})
		if r := pc.Recovered(); r != nil {
			p.lc.advance(StateFailed)
			l.logger.Error("Module initialization panicked",
				zap.String("module", source.Name()),
				zap.Any("panic", r.Value),
			)
			out, err = nil, fmt.Errorf("module initialization panicked: %w", r.AsError())
		}
		p.resolve(out, err)
	}()

	return p
}

// Compile resolves source to a precompiled module without instantiating it.
// The result can be instantiated any number of times through
// PrecompiledModuleSource.
func (l *Loader) Compile(ctx context.Context, source ModuleSource) (*CompiledModule, error) {
	return l.resolve(ctx, source, newLifecycle())
}

func (l *Loader) run(ctx context.Context, source ModuleSource, imports ImportBindings, lc *lifecycle) (*InitOutput, error) {
	if source == nil {
		lc.advance(StateFailed)
		return nil, &InstantiationError{Err: errors.New("nil module source")}
	}

	compiled, err := l.resolve(ctx, source, lc)
	if err != nil {
		lc.advance(StateFailed)
		var compileErr *CompilationError
		if errors.As(err, &compileErr) {
			return nil, &InstantiationError{ModuleName: source.Name(), Err: err}
		}
		return nil, err
	}

	lc.advance(StateInstantiating)
	out, err := l.instantiate(ctx, compiled, imports)
	if err != nil {
		lc.advance(StateFailed)
		l.logger.Warn("Module instantiation failed",
			zap.String("module", compiled.Name),
			zap.Error(err),
		)
		return nil, err
	}

	lc.advance(StateReady)
	return out, nil
}

// resolve produces a compiled module, fetching bytes first when needed.
func (l *Loader) resolve(ctx context.Context, source ModuleSource, lc *lifecycle) (*CompiledModule, error) {
	if source == nil {
		return nil, &InstantiationError{Err: errors.New("nil module source")}
	}
	l.logger.Debug("Resolving module source",
		zap.String("name", source.Name()),
		zap.Stringer("kind", source.Kind()),
	)

	switch s := source.(type) {
	case *MemoryModuleSource:
		return l.runtime.compile(ctx, s.Name(), "memory", s.data)

	case *PrecompiledModuleSource:
		if s.Module == nil {
			return nil, &InstantiationError{Err: &ModuleNotFoundError{ModuleName: "<nil>"}}
		}
		// Handles from another Runtime cannot be linked here.
		if cached, ok := l.runtime.GetCompiledModule(s.Module.Digest); !ok || cached != s.Module {
			return nil, &InstantiationError{
				ModuleName: s.Module.Name,
				Err:        &ModuleNotFoundError{ModuleName: s.Module.Name},
			}
		}
		return s.Module, nil

	case *DeferredModuleSource:
		lc.advance(StateLoading)
		if s.Resolve == nil {
			return nil, &FetchError{Ref: s.Name(), Err: errors.New("deferred source has no resolver")}
		}
		inner, err := s.Resolve(ctx)
		if err != nil {
			return nil, &FetchError{Ref: s.Name(), Err: err}
		}
		if inner == nil {
			return nil, &FetchError{Ref: s.Name(), Err: errors.New("deferred source resolved to nil")}
		}
		return l.resolve(ctx, inner, lc)

	case fetchable:
		lc.advance(StateLoading)
		ref := s.reference()
		data, err := l.fetcher.Fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		return l.runtime.compile(ctx, source.Name(), ref, data)

	default:
		return nil, &InstantiationError{
			ModuleName: source.Name(),
			Err:        fmt.Errorf("unsupported module source %T", source),
		}
	}
}
