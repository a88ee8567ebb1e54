package downloader

import (
	"context"
	"fmt"
	"os"

	"github.com/docker/go-units"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appErrors "github.com/amireh/karazeh/internal/errors"
	"github.com/amireh/karazeh/internal/metrics"
)

// Download describes a file fetch and records how it went.
type Download struct {
	URL      string
	Path     string
	Checksum string
	// Size is the expected byte count; zero skips the size check.
	Size int64

	// Tally is the index of the last attempt made: 0 when the first attempt
	// succeeded, Retries() when every attempt was used.
	Tally int
	// Bytes is what the last attempt wrote.
	Bytes int64
}

// FetchFile downloads dl.URL into dl.Path until the content matches
// dl.Checksum (and dl.Size when set), making at most Retries()+1 attempts.
// A destination that cannot be opened for writing fails at once.
func (d *Downloader) FetchFile(ctx context.Context, dl *Download) error {
	target := d.ResolveURL(dl.URL)
	// Every(0) is rate.Inf, so a zero interval never waits.
	limiter := rate.NewLimiter(rate.Every(d.retryInterval), 1)

	var lastErr error
	mismatch := false

	for attempt := 0; attempt <= d.retries; attempt++ {
		dl.Tally = attempt
		if err := limiter.Wait(ctx); err != nil {
			return appErrors.New(appErrors.CodeResourceUnavailable, "download of "+target+" interrupted", err)
		}
		if attempt > 0 {
			d.metrics.DownloadRetry()
			d.logger.Info("retrying download", zap.String("url", target), zap.Int("attempt", attempt))
		}

		f, err := d.files.Fs().OpenFile(dl.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			d.metrics.DownloadAttempt(metrics.ResultError, 0)
			return appErrors.New(appErrors.CodeUnauthorized, "download destination "+dl.Path+" is not writable", err)
		}

		n, err := d.stream(ctx, target, f)
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
		dl.Bytes = n

		if err != nil {
			d.metrics.DownloadAttempt(metrics.ResultError, n)
			switch code := appErrors.CodeOf(err); {
			case code == appErrors.CodeUnauthorized || code == appErrors.CodeOutOfSpace:
				return err
			case ctx.Err() != nil:
				return appErrors.New(appErrors.CodeResourceUnavailable, "download of "+target+" interrupted", ctx.Err())
			}
			d.logger.Warn("download failed", zap.String("url", target), zap.Error(err))
			lastErr, mismatch = err, false
			continue
		}

		digest := d.hasher.HexDigestFile(dl.Path)
		if (dl.Size <= 0 || dl.Size == n) && digest.Matches(dl.Checksum) {
			d.metrics.DownloadAttempt(metrics.ResultOK, n)
			return nil
		}

		d.metrics.DownloadAttempt(metrics.ResultMismatch, n)
		d.logger.Warn("downloaded file integrity mismatch",
			zap.String("url", target),
			zap.String("digest", digest.String()),
			zap.String("expected", dl.Checksum),
			zap.String("got", units.HumanSize(float64(n))),
			zap.String("want", units.HumanSize(float64(dl.Size))),
		)
		lastErr = fmt.Errorf("digest %s (%d bytes) does not match %s (%d bytes)", digest, n, dl.Checksum, dl.Size)
		mismatch = true
	}

	if mismatch {
		return appErrors.New(appErrors.CodeFileIntegrityMismatch, "download of "+target+" failed verification", lastErr)
	}
	return appErrors.New(appErrors.CodeResourceUnavailable, "download of "+target+" failed", lastErr)
}
