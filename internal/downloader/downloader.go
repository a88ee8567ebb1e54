package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/amireh/karazeh/internal/files"
	"github.com/amireh/karazeh/internal/hasher"
	"github.com/amireh/karazeh/internal/metrics"
)

const (
	// DefaultRetries is the number of extra attempts FetchFile makes.
	DefaultRetries = 2
	// DefaultRetryInterval is the minimum spacing between attempts.
	DefaultRetryInterval = 500 * time.Millisecond

	userAgent = "karazeh-updater"
	chunkSize = 32 * 1024
)

// ProgressFunc is called while a body streams in. total is -1 when the server
// did not announce a length.
type ProgressFunc func(url string, done, total int64)

// Downloader performs HTTP GETs against the update host.
type Downloader struct {
	host          string
	httpClient    *http.Client
	hasher        hasher.Hasher
	files         *files.Manager
	retries       int
	retryInterval time.Duration
	logger        *zap.Logger
	metrics       *metrics.Metrics
	progress      ProgressFunc
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) {
		d.httpClient = c
	}
}

// WithRetries sets how many times a failed or corrupt file download is
// attempted again.
func WithRetries(n int) Option {
	return func(d *Downloader) {
		if n >= 0 {
			d.retries = n
		}
	}
}

// WithRetryInterval sets the minimum delay between attempts. Zero disables
// pacing.
func WithRetryInterval(interval time.Duration) Option {
	return func(d *Downloader) {
		d.retryInterval = interval
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Downloader) {
		d.logger = l
	}
}

// WithMetrics sets the counters downloads are recorded on.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Downloader) {
		d.metrics = m
	}
}

// WithProgress sets a callback for streaming progress.
func WithProgress(fn ProgressFunc) Option {
	return func(d *Downloader) {
		d.progress = fn
	}
}

// New creates a Downloader resolving relative URLs against host. Downloaded
// files are written through fm and verified with h.
func New(host string, h hasher.Hasher, fm *files.Manager, opts ...Option) *Downloader {
	d := &Downloader{
		host:          host,
		httpClient:    http.DefaultClient,
		hasher:        h,
		files:         fm,
		retries:       DefaultRetries,
		retryInterval: DefaultRetryInterval,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Retries returns the configured retry count.
func (d *Downloader) Retries() int {
	return d.retries
}

// ResolveURL qualifies a relative URL against the host. Absolute URLs are
// returned unchanged.
func (d *Downloader) ResolveURL(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.IsAbs() {
		return raw
	}
	return strings.TrimRight(d.host, "/") + "/" + strings.TrimLeft(raw, "/")
}

// Fetch performs a single GET of rawURL and streams the body into w.
func (d *Downloader) Fetch(ctx context.Context, rawURL string, w io.Writer) error {
	_, err := d.stream(ctx, d.ResolveURL(rawURL), w)
	return err
}

// stream copies the body of a GET into w and returns the byte count. Errors
// returned by w are tagged with a result code so callers can tell a local
// write failure from a transport one.
func (d *Downloader) stream(ctx context.Context, target string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request for %s: %w", target, err)
	}
	req.Header.Set("User-Agent", userAgent)

	d.logger.Info("downloading", zap.String("url", target))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("requesting %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("remote server returned status %d for %s", resp.StatusCode, target)
	}

	total := resp.ContentLength
	var done int64

	buf := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return done, files.Wrap("writing download", writeErr)
			}
			done += int64(n)
			if d.progress != nil {
				d.progress(target, done, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return done, fmt.Errorf("reading %s: %w", target, readErr)
		}
	}

	d.logger.Debug("downloaded",
		zap.String("url", target),
		zap.String("size", units.HumanSize(float64(done))),
	)
	return done, nil
}
