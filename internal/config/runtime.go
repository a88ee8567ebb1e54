package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/amireh/karazeh/internal/delta"
	"github.com/amireh/karazeh/internal/downloader"
	"github.com/amireh/karazeh/internal/files"
	"github.com/amireh/karazeh/internal/hasher"
	"github.com/amireh/karazeh/internal/logging"
	"github.com/amireh/karazeh/internal/metrics"
)

// Downloader is what operations and manifests need from the network layer.
type Downloader interface {
	Fetch(ctx context.Context, url string, w io.Writer) error
	FetchFile(ctx context.Context, dl *downloader.Download) error
}

// Config is created once per session and shared read-only by reference.
type Config struct {
	Host      string
	RootPath  string
	CachePath string
	Verbose   bool
	Workers   int

	Hasher     hasher.Hasher
	Files      *files.Manager
	Downloader Downloader
	Encoder    *delta.Encoder
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// RootFile resolves a manifest-relative path against the install root.
func (c *Config) RootFile(rel string) string {
	return filepath.Join(c.RootPath, filepath.FromSlash(rel))
}

// ReleaseCacheDir returns the cache root of a release.
func (c *Config) ReleaseCacheDir(releaseID string) string {
	return filepath.Join(c.CachePath, releaseID)
}

// OperationCacheDir returns the private cache subtree of one operation.
func (c *Config) OperationCacheDir(releaseID string, index int) string {
	return filepath.Join(c.CachePath, releaseID, strconv.Itoa(index))
}

type buildOptions struct {
	logger     *zap.Logger
	metrics    *metrics.Metrics
	httpClient *http.Client
	progress   downloader.ProgressFunc
}

// BuildOption customizes Build.
type BuildOption func(*buildOptions)

// WithLogger uses l instead of a logger derived from Settings.Verbose.
func WithLogger(l *zap.Logger) BuildOption {
	return func(o *buildOptions) { o.logger = l }
}

// WithMetrics records session counters on m.
func WithMetrics(m *metrics.Metrics) BuildOption {
	return func(o *buildOptions) { o.metrics = m }
}

// WithHTTPClient sets the client downloads go through.
func WithHTTPClient(c *http.Client) BuildOption {
	return func(o *buildOptions) { o.httpClient = c }
}

// WithProgress reports download progress to fn.
func WithProgress(fn downloader.ProgressFunc) BuildOption {
	return func(o *buildOptions) { o.progress = fn }
}

// Build wires the runtime handles for s on top of fs. A nil fs means the OS
// filesystem.
func Build(s *Settings, fs afero.Fs, opts ...BuildOption) (*Config, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	logger := o.logger
	if logger == nil {
		l, err := logging.New(logging.LevelFor(s.Verbose))
		if err != nil {
			return nil, fmt.Errorf("building logger: %w", err)
		}
		logger = l
	}

	h, err := hasher.New(s.Hasher, hasher.WithFs(fs))
	if err != nil {
		return nil, err
	}
	fm := files.New(fs, files.WithLogger(logger.Named("files")))

	dlOpts := []downloader.Option{
		downloader.WithRetries(s.Retries),
		downloader.WithRetryInterval(s.RetryInterval),
		downloader.WithLogger(logger.Named("downloader")),
		downloader.WithMetrics(o.metrics),
	}
	if o.httpClient != nil {
		dlOpts = append(dlOpts, downloader.WithHTTPClient(o.httpClient))
	}
	if o.progress != nil {
		dlOpts = append(dlOpts, downloader.WithProgress(o.progress))
	}

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}

	return &Config{
		Host:       s.Host,
		RootPath:   s.RootPath,
		CachePath:  s.CachePath,
		Verbose:    s.Verbose,
		Workers:    workers,
		Hasher:     h,
		Files:      fm,
		Downloader: downloader.New(s.Host, h, fm, dlOpts...),
		Encoder:    delta.NewEncoder(fs, delta.WithBlockSize(s.BlockSize), delta.WithLogger(logger.Named("delta"))),
		Logger:     logger,
		Metrics:    o.metrics,
	}, nil
}
