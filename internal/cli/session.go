package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/docker/go-units"
	"github.com/mattn/go-isatty"

	"github.com/amireh/karazeh/internal/config"
	"github.com/amireh/karazeh/internal/downloader"
	"github.com/amireh/karazeh/internal/metrics"
	"github.com/amireh/karazeh/internal/updater"
)

// session is everything a command needs to work on an install tree.
type session struct {
	settings *config.Settings
	cfg      *config.Config
	metrics  *metrics.Metrics
}

func newSession() (*session, error) {
	s, err := config.Current()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	m := metrics.New()
	opts := []config.BuildOption{config.WithMetrics(m)}
	if !s.Verbose && isTerminal(os.Stderr) {
		opts = append(opts, config.WithProgress(progressPrinter(os.Stderr)))
	}

	cfg, err := config.Build(s, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("building session: %w", err)
	}
	return &session{settings: s, cfg: cfg, metrics: m}, nil
}

// updater returns an Updater reading the manifest named by source, or by the
// configured manifest setting when source is empty.
func (s *session) updater(source string) *updater.Updater {
	if source == "" {
		source = s.settings.Manifest
	}
	return updater.New(s.cfg, manifestOption(source))
}

func (s *session) close() {
	_ = s.cfg.Logger.Sync()
}

// manifestOption treats source as a local file when one exists at that path
// or it carries a file:// scheme. Everything else is fetched from the host.
func manifestOption(source string) updater.Option {
	if path, ok := strings.CutPrefix(source, "file://"); ok {
		return updater.WithManifestFile(path)
	}
	if !strings.Contains(source, "://") {
		if info, err := os.Stat(source); err == nil && !info.IsDir() {
			return updater.WithManifestFile(source)
		}
	}
	return updater.WithManifestURI(source)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// progressPrinter redraws a single status line per download.
func progressPrinter(w io.Writer) downloader.ProgressFunc {
	var mu sync.Mutex
	return func(url string, done, total int64) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "\r\033[K%s", progressLine(url, done, total))
		if total > 0 && done >= total {
			fmt.Fprintln(w)
		}
	}
}

func progressLine(url string, done, total int64) string {
	name := url
	if i := strings.LastIndex(url, "/"); i >= 0 && i < len(url)-1 {
		name = url[i+1:]
	}
	if total <= 0 {
		return fmt.Sprintf("%s  %s", name, units.HumanSize(float64(done)))
	}
	return fmt.Sprintf("%s  %s / %s (%d%%)", name,
		units.HumanSize(float64(done)), units.HumanSize(float64(total)), done*100/total)
}
