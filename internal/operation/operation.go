// Package operation implements the reversible filesystem mutations a release
// is made of. Each operation moves through
//
//	Unstaged → Staged → Deployed → Committed | RolledBack
//
// Stage checks preconditions and pulls remote resources into a private cache
// directory, Deploy mutates the install tree, Rollback undoes Deploy and Commit
// discards what Rollback would have needed. A nil error means OK; any other
// error carries a result code readable with errors.CodeOf. Calling a phase out
// of order yields INVALID_STATE and touches nothing.
package operation

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/amireh/karazeh/internal/config"
	"github.com/amireh/karazeh/internal/downloader"
	appErrors "github.com/amireh/karazeh/internal/errors"
)

// Operation type names, matching the manifest discriminator.
const (
	TypeCreate = "create"
	TypeUpdate = "update"
	TypeDelete = "delete"
)

// State is the position of an operation in its lifecycle.
type State int

const (
	Unstaged State = iota
	Staged
	Deployed
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Unstaged:
		return "unstaged"
	case Staged:
		return "staged"
	case Deployed:
		return "deployed"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled back"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Operation is one step of a release.
type Operation interface {
	Type() string
	Index() int
	State() State
	Stage(ctx context.Context) error
	Deploy(ctx context.Context) error
	Rollback(ctx context.Context) error
	Commit(ctx context.Context) error
	String() string
}

// Prefetcher is implemented by operations whose remote resource can be
// downloaded ahead of Stage. Prefetch only writes into the operation's cache
// directory; a failed prefetch is retried by Stage.
type Prefetcher interface {
	Prefetch(ctx context.Context) error
}

type base struct {
	cfg       *config.Config
	kind      string
	releaseID string
	index     int
	state     State
	logger    *zap.Logger
}

func newBase(cfg *config.Config, kind, releaseID string, index int) base {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		cfg:       cfg,
		kind:      kind,
		releaseID: releaseID,
		index:     index,
		logger: logger.Named("op_"+kind).With(
			zap.String("release", releaseID),
			zap.Int("index", index),
		),
	}
}

func (b *base) Type() string  { return b.kind }
func (b *base) Index() int    { return b.index }
func (b *base) State() State  { return b.state }
func (b *base) cacheDir() string {
	return b.cfg.OperationCacheDir(b.releaseID, b.index)
}

func (b *base) cachePath(name string) string {
	return filepath.Join(b.cacheDir(), name)
}

// expect fails with INVALID_STATE unless the operation is in one of allowed.
func (b *base) expect(phase string, allowed ...State) error {
	for _, s := range allowed {
		if b.state == s {
			return nil
		}
	}
	return appErrors.New(appErrors.CodeInvalidState,
		fmt.Sprintf("%s %d: cannot %s while %s", b.kind, b.index, phase, b.state), nil)
}

// record counts the phase outcome and passes err through.
func (b *base) record(phase string, err error) error {
	b.cfg.Metrics.OperationPhase(b.kind, phase, string(appErrors.CodeOf(err)))
	if err != nil {
		b.logger.Error(phase+" failed", zap.Error(err))
	}
	return err
}

// fetch downloads url into dst and checks it against checksum and size.
func (b *base) fetch(ctx context.Context, url, dst, checksum string, size int64) error {
	dl := &downloader.Download{URL: url, Path: dst, Checksum: checksum, Size: size}
	if err := b.cfg.Downloader.FetchFile(ctx, dl); err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	b.logger.Debug("fetched", zap.String("url", url), zap.Int("retries", dl.Tally))
	return nil
}

// hasRoomFor reports whether the volume holding dir can take need more bytes.
// Unknown free space counts as room.
func (b *base) hasRoomFor(dir string, need int64) bool {
	if need <= 0 {
		return true
	}
	free, ok := b.cfg.Files.FreeSpace(dir)
	return !ok || uint64(need) <= free
}

func fail(code appErrors.Code, msg string) error {
	return appErrors.New(code, msg, nil)
}
