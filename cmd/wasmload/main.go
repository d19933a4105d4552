package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/woxQAQ/wasm-loader/internal/app"
	"github.com/woxQAQ/wasm-loader/internal/config"
	"github.com/woxQAQ/wasm-loader/internal/wasm"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides config")
	modulePath := flag.String("module", "", "Module file path or URL to instantiate")
	bundleName := flag.String("bundle", "", "Bundle to instantiate")
	call := flag.String("call", "", "Exported function to call after instantiation")
	args := flag.String("args", "", "Comma-separated arguments for -call")
	list := flag.Bool("list", false, "List the instance's exported functions")
	stylesOut := flag.String("styles-out", "", "Write registered bundle styles to this file")
	async := flag.Bool("async", false, "Instantiate -module through the asynchronous path")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	// Initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting wasmload",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, logger, options{
		module:    *modulePath,
		bundle:    *bundleName,
		call:      *call,
		args:      *args,
		list:      *list,
		stylesOut: *stylesOut,
		async:     *async,
	}); err != nil {
		logger.Error("wasmload failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("Shutdown complete")
}

type options struct {
	module    string
	bundle    string
	call      string
	args      string
	list      bool
	stylesOut string
	async     bool
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts options) error {
	if opts.module != "" && opts.bundle != "" {
		return fmt.Errorf("-module and -bundle are mutually exclusive")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("failed to load bundles: %w", err)
	}

	if opts.stylesOut != "" {
		if err := writeStyles(a, opts.stylesOut); err != nil {
			return err
		}
	}

	var out *wasm.InitOutput
	switch {
	case opts.module != "":
		out, err = a.LoadModule(ctx, opts.module, opts.async)
	case opts.bundle != "":
		out, err = a.Bundles().Instantiate(ctx, opts.bundle, nil)
	default:
		for _, b := range a.Bundles().Registry().List() {
			fmt.Printf("%s %s %v\n", b.Name(), b.Version(), b.Exports())
		}
		return nil
	}
	if err != nil {
		return err
	}
	defer out.Close(context.Background())

	p := printer{w: os.Stdout, color: term.IsTerminal(int(os.Stdout.Fd()))}

	if opts.list {
		p.listExports(out)
	}

	if opts.call != "" {
		fn, err := out.Export(opts.call)
		if err != nil {
			return err
		}
		def := fn.Definition()

		params, err := encodeArgs(opts.args, def.ParamTypes())
		if err != nil {
			return fmt.Errorf("invalid -args for %s: %w", opts.call, err)
		}

		results, err := fn.Call(ctx, params...)
		if err != nil {
			return fmt.Errorf("call %s failed: %w", opts.call, err)
		}
		p.printResults(opts.call, formatResults(results, def.ResultTypes()))
	}

	return nil
}

func writeStyles(a *app.App, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create styles file: %w", err)
	}
	defer f.Close()

	if _, err := a.Styles().WriteTo(f); err != nil {
		return fmt.Errorf("failed to write styles: %w", err)
	}
	return f.Close()
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	zc := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc.Level = lvl
	return zc.Build()
}
