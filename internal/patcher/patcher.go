// Package patcher applies a release as one unit: every operation is staged,
// then deployed, then committed. The first failure rolls back everything
// touched so far and the release cache is purged either way.
package patcher

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/amireh/karazeh/internal/config"
	"github.com/amireh/karazeh/internal/files"
	"github.com/amireh/karazeh/internal/manifest"
	"github.com/amireh/karazeh/internal/metrics"
	"github.com/amireh/karazeh/internal/operation"
)

// Patcher drives the operations of a release through their lifecycle.
type Patcher struct {
	cfg    *config.Config
	logger *zap.Logger
}

// New creates a Patcher bound to cfg.
func New(cfg *config.Config) *Patcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Patcher{cfg: cfg, logger: logger.Named("patcher")}
}

// ApplyUpdate applies release. On error the install tree is back in the state
// it was before the call and the returned error carries the code of the
// failure that aborted the release.
func (p *Patcher) ApplyUpdate(ctx context.Context, release *manifest.Release) error {
	log := p.logger.With(zap.String("release", release.ID), zap.String("tag", release.Tag))
	ops := release.Operations
	cacheRoot := p.cfg.ReleaseCacheDir(release.ID)

	if err := p.cfg.Files.CreateDirectory(cacheRoot); err != nil {
		return files.Wrap("preparing release cache", err)
	}

	p.prefetch(ctx, log, ops)

	log.Info("staging release", zap.Int("operations", len(ops)))
	for i, op := range ops {
		if err := op.Stage(ctx); err != nil {
			log.Error("stage failed, rolling back", zap.Stringer("operation", op), zap.Error(err))
			// The failing operation is included so it can drop any
			// directories it created before failing.
			p.rollback(ctx, log, ops[:i+1])
			p.purge(log, cacheRoot)
			p.cfg.Metrics.Release(metrics.ReleaseRolledBack)
			return fmt.Errorf("staging %s: %w", op, err)
		}
	}

	log.Info("deploying release")
	for _, op := range ops {
		if err := op.Deploy(ctx); err != nil {
			log.Error("deploy failed, rolling back", zap.Stringer("operation", op), zap.Error(err))
			p.rollback(ctx, log, ops)
			p.purge(log, cacheRoot)
			p.cfg.Metrics.Release(metrics.ReleaseRolledBack)
			return fmt.Errorf("deploying %s: %w", op, err)
		}
	}

	log.Info("committing release")
	var commitErr error
	for _, op := range ops {
		if err := op.Commit(ctx); err != nil {
			// The new content is already in place; a failed commit only
			// leaves cache residue which the purge below removes.
			log.Warn("commit failed", zap.Stringer("operation", op), zap.Error(err))
			commitErr = multierr.Append(commitErr, err)
		}
	}
	p.purge(log, cacheRoot)
	p.cfg.Metrics.Release(metrics.ReleaseApplied)

	if commitErr != nil {
		log.Warn("release applied with commit warnings", zap.Error(commitErr))
	}
	log.Info("release applied")
	return nil
}

// prefetch downloads remote resources ahead of staging on up to Workers
// goroutines. Failures are left for Stage to retry and report.
func (p *Patcher) prefetch(ctx context.Context, log *zap.Logger, ops []operation.Operation) {
	if p.cfg.Workers <= 1 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, op := range ops {
		pf, ok := op.(operation.Prefetcher)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := pf.Prefetch(gctx); err != nil {
				log.Debug("prefetch failed", zap.Stringer("operation", op), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()
}

// rollback reverses ops in reverse order. Every operation is attempted even
// after a failure.
func (p *Patcher) rollback(ctx context.Context, log *zap.Logger, ops []operation.Operation) {
	var errs error
	for i := len(ops) - 1; i >= 0; i-- {
		if err := ops[i].Rollback(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rolling back %s: %w", ops[i], err))
		}
	}
	if errs != nil {
		log.Error("rollback incomplete", zap.Errors("errors", multierr.Errors(errs)))
	}
}

func (p *Patcher) purge(log *zap.Logger, cacheRoot string) {
	if err := p.cfg.Files.RemoveDirectory(cacheRoot); err != nil {
		log.Warn("purging release cache", zap.String("path", cacheRoot), zap.Error(err))
	}
}
