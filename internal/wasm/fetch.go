package wasm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// FetcherConfig configures byte retrieval for fetchable sources.
type FetcherConfig struct {
	// Sent as User-Agent on HTTP requests.
	UserAgent string

	// HTTP client. Defaults to a client without a timeout; callers wanting
	// deadlines wrap the context.
	Client *http.Client

	// Filesystem for file references. Defaults to the OS filesystem.
	Fs afero.Fs
}

// Fetcher retrieves module bytes over HTTP or from a filesystem.
type Fetcher struct {
	client    *http.Client
	fs        afero.Fs
	userAgent string
	logger    *zap.Logger
}

// NewFetcher creates a fetcher.
func NewFetcher(config FetcherConfig, logger *zap.Logger) *Fetcher {
	f := &Fetcher{
		client:    config.Client,
		fs:        config.Fs,
		userAgent: config.UserAgent,
		logger:    logger.With(zap.String("component", "wasm-fetcher")),
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.fs == nil {
		f.fs = afero.NewOsFs()
	}
	return f
}

// Fetch returns the bytes behind ref. Any failure is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	startTime := time.Now()

	data, err := f.fetch(ctx, ref)
	if err != nil {
		f.logger.Debug("Fetch failed", zap.String("ref", ref), zap.Error(err))
		return nil, err
	}

	f.logger.Debug("Fetched module",
		zap.String("ref", ref),
		zap.Int("size_bytes", len(data)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return data, nil
}

func (f *Fetcher) fetch(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, &FetchError{Ref: ref, Err: fmt.Errorf("empty reference")}
	}
	if !strings.Contains(ref, "://") {
		return f.readFile(ref, ref)
	}

	u, err := url.Parse(ref)
	if err != nil {
		return nil, &FetchError{Ref: ref, Err: err}
	}

	switch u.Scheme {
	case "http", "https":
		return f.get(ctx, ref)
	case "file":
		return f.readFile(ref, u.Path)
	default:
		return nil, &FetchError{Ref: ref, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
}

func (f *Fetcher) readFile(ref, path string) ([]byte, error) {
	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return nil, &FetchError{Ref: ref, Err: err}
	}
	return data, nil
}

func (f *Fetcher) get(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, &FetchError{Ref: ref, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/wasm")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Ref: ref, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{Ref: ref, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Ref: ref, StatusCode: resp.StatusCode, Err: err}
	}
	return data, nil
}
