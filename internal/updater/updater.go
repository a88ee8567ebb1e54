package updater

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amireh/karazeh/internal/config"
	appErrors "github.com/amireh/karazeh/internal/errors"
	"github.com/amireh/karazeh/internal/manifest"
	"github.com/amireh/karazeh/internal/patcher"
)

// Status is the outcome of a check.
type Status struct {
	// CurrentVersion is the fingerprint of the installation, empty when no
	// release matches it.
	CurrentVersion string    `json:"current_version"`
	CurrentTag     string    `json:"current_tag,omitempty"`
	Pending        []string  `json:"pending"`
	LatestTag      string    `json:"latest_tag,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
}

// Known reports whether the installation matched a release.
func (s *Status) Known() bool {
	return s.CurrentVersion != ""
}

// UpToDate reports whether nothing is pending.
func (s *Status) UpToDate() bool {
	return len(s.Pending) == 0
}

// Updater checks for and applies releases.
type Updater struct {
	cfg          *config.Config
	logger       *zap.Logger
	manifestURI  string
	manifestFile string
	now          func() time.Time
}

// Option configures an Updater.
type Option func(*Updater)

// WithManifestURI loads the version manifest from uri, resolved against the
// configured host when relative.
func WithManifestURI(uri string) Option {
	return func(u *Updater) {
		u.manifestURI = uri
		u.manifestFile = ""
	}
}

// WithManifestFile loads the version manifest from a local file.
func WithManifestFile(path string) Option {
	return func(u *Updater) {
		u.manifestFile = path
		u.manifestURI = ""
	}
}

// WithClock sets the time source (useful for testing).
func WithClock(now func() time.Time) Option {
	return func(u *Updater) {
		u.now = now
	}
}

// New creates an Updater bound to cfg.
func New(cfg *config.Config, opts ...Option) *Updater {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	u := &Updater{
		cfg:    cfg,
		logger: logger.Named("updater"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Source returns where the manifest is read from and whether that is a local
// file.
func (u *Updater) Source() (string, bool) {
	if u.manifestFile != "" {
		return u.manifestFile, true
	}
	return u.manifestURI, false
}

// Load fetches and parses the version manifest.
func (u *Updater) Load(ctx context.Context) (*manifest.Manifest, error) {
	m := manifest.New(u.cfg)
	var err error
	switch {
	case u.manifestFile != "":
		err = m.LoadFromFile(u.manifestFile)
	case u.manifestURI != "":
		err = m.LoadFromURI(ctx, u.manifestURI)
	default:
		return nil, fmt.Errorf("no version manifest configured")
	}
	if err != nil {
		return nil, fmt.Errorf("loading version manifest: %w", err)
	}
	return m, nil
}

// Check loads the manifest and reports what is pending.
func (u *Updater) Check(ctx context.Context) (*Status, error) {
	m, err := u.Load(ctx)
	if err != nil {
		return nil, err
	}
	return u.Status(m)
}

// Status identifies the installation against an already loaded manifest.
func (u *Updater) Status(m *manifest.Manifest) (*Status, error) {
	current, err := m.CurrentVersion()
	if err != nil {
		return nil, fmt.Errorf("identifying installation: %w", err)
	}
	pending, err := m.AvailableUpdates(current)
	if err != nil {
		return nil, fmt.Errorf("resolving updates: %w", err)
	}

	s := &Status{
		CurrentVersion: current,
		Pending:        pending,
		CheckedAt:      u.now(),
	}
	if r, ok := m.Release(current); ok {
		s.CurrentTag = r.Tag
	}
	s.LatestTag = latestTag(m, pending)
	if s.LatestTag == "" {
		s.LatestTag = s.CurrentTag
	}

	u.logger.Debug("checked",
		zap.String("current", current),
		zap.Strings("pending", pending),
		zap.String("latest", s.LatestTag),
	)
	return s, nil
}

// Apply brings the installation up to date, one release at a time. It
// returns the ids of the releases applied. A failing release is rolled back
// and stops the session; releases applied before it stay applied.
func (u *Updater) Apply(ctx context.Context) ([]string, error) {
	m, err := u.Load(ctx)
	if err != nil {
		return nil, err
	}
	return u.ApplyFrom(ctx, m)
}

// ApplyFrom is Apply on a manifest the caller already loaded.
func (u *Updater) ApplyFrom(ctx context.Context, m *manifest.Manifest) ([]string, error) {
	p := patcher.New(u.cfg)
	var applied []string
	for range m.ReleaseCount() {
		s, err := u.Status(m)
		if err != nil {
			return applied, err
		}
		if s.UpToDate() {
			break
		}

		r, _ := m.Release(s.Pending[0])
		if len(r.Operations) == 0 && r.URI != "" {
			if err := m.LoadReleaseFromURI(ctx, r.URI); err != nil {
				return applied, fmt.Errorf("loading release %s: %w", r, err)
			}
		}

		u.logger.Info("applying release", zap.String("release", r.String()), zap.Int("operations", len(r.Operations)))
		if err := p.ApplyUpdate(ctx, r); err != nil {
			return applied, fmt.Errorf("applying release %s: %w", r, err)
		}

		now, err := m.CurrentVersion()
		if err != nil {
			return applied, fmt.Errorf("identifying installation: %w", err)
		}
		if now != r.ID {
			return applied, appErrors.New(appErrors.CodeInvalidState,
				fmt.Sprintf("release %s applied but the installation identifies as %q", r, now), nil)
		}
		applied = append(applied, r.ID)
	}
	return applied, nil
}
