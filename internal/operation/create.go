package operation

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/amireh/karazeh/internal/config"
	appErrors "github.com/amireh/karazeh/internal/errors"
	"github.com/amireh/karazeh/internal/files"
)

// CreateSpec describes a file to download and place in the install tree.
type CreateSpec struct {
	URL      string
	Checksum string
	Size     int64
	// Destination is relative to the install root, slash separated.
	Destination string
	Executable  bool
}

// Create places a new file at a destination that must be free.
type Create struct {
	base
	spec       CreateSpec
	dst        string
	marked     bool
	prefetched bool
	// created holds the destination directories Stage made, deepest first.
	created []string
}

// NewCreate builds the create operation at position index of releaseID.
func NewCreate(cfg *config.Config, releaseID string, index int, spec CreateSpec) *Create {
	return &Create{
		base: newBase(cfg, TypeCreate, releaseID, index),
		spec: spec,
		dst:  cfg.RootFile(spec.Destination),
	}
}

// Spec returns the description the operation was built from.
func (c *Create) Spec() CreateSpec { return c.spec }

// Destination returns the absolute destination path.
func (c *Create) Destination() string { return c.dst }

// MarkForDeletion tells Stage that an earlier delete in the same release
// frees the destination, so an occupied destination is not an error.
func (c *Create) MarkForDeletion() { c.marked = true }

// MarkedForDeletion reports whether MarkForDeletion was applied.
func (c *Create) MarkedForDeletion() bool { return c.marked }

func (c *Create) cacheFile() string { return c.cachePath("file") }

func (c *Create) String() string {
	return fmt.Sprintf("create %s from %s (checksum %s, %d bytes)", c.spec.Destination, c.spec.URL, c.spec.Checksum, c.spec.Size)
}

// Prefetch downloads the file into the cache ahead of Stage.
func (c *Create) Prefetch(ctx context.Context) error {
	if err := c.expect("prefetch", Unstaged); err != nil {
		return err
	}
	if err := c.cfg.Files.CreateDirectory(c.cacheDir()); err != nil {
		return files.Wrap("preparing cache", err)
	}
	if err := c.fetch(ctx, c.spec.URL, c.cacheFile(), c.spec.Checksum, c.spec.Size); err != nil {
		return err
	}
	c.prefetched = true
	return nil
}

func (c *Create) Stage(ctx context.Context) error {
	if err := c.expect("stage", Unstaged); err != nil {
		return err
	}
	return c.record("stage", c.stage(ctx))
}

func (c *Create) stage(ctx context.Context) error {
	fm := c.cfg.Files

	if err := fm.CreateDirectory(c.cacheDir()); err != nil {
		return files.Wrap("preparing cache", err)
	}

	if fm.Exists(c.dst) {
		if !c.marked {
			return fail(appErrors.CodeFileExists, "destination "+c.dst+" is occupied")
		}
		c.logger.Debug("destination occupied but marked for deletion", zap.String("path", c.dst))
	}

	dir := filepath.Dir(c.dst)
	if err := c.createParents(dir); err != nil {
		return err
	}
	if !fm.IsWritable(dir) {
		return fail(appErrors.CodeUnauthorized, "destination directory "+dir+" is not writable")
	}
	if !fm.IsWritable(c.cacheDir()) {
		return fail(appErrors.CodeUnauthorized, "cache directory "+c.cacheDir()+" is not writable")
	}
	if !c.hasRoomFor(dir, c.spec.Size) {
		return fail(appErrors.CodeOutOfSpace, fmt.Sprintf("not enough space in %s for %d bytes", dir, c.spec.Size))
	}

	if c.prefetched && c.cfg.Hasher.HexDigestFile(c.cacheFile()).Matches(c.spec.Checksum) {
		c.logger.Debug("using prefetched file", zap.String("path", c.cacheFile()))
	} else if err := c.fetch(ctx, c.spec.URL, c.cacheFile(), c.spec.Checksum, c.spec.Size); err != nil {
		return err
	}

	c.state = Staged
	return nil
}

// createParents makes dir and any missing ancestors, remembering each one.
func (c *Create) createParents(dir string) error {
	fm := c.cfg.Files
	var missing []string
	for p := dir; !fm.Exists(p); {
		missing = append(missing, p)
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	if len(missing) == 0 {
		return nil
	}
	if err := fm.CreateDirectory(dir); err != nil {
		return files.Wrap("creating destination directory", err)
	}
	c.created = missing
	return nil
}

// removeCreated drops the directories Stage made, deepest first, stopping at
// the first one that is no longer empty.
func (c *Create) removeCreated() error {
	fm := c.cfg.Files
	for _, dir := range c.created {
		if !fm.IsEmptyDirectory(dir) {
			break
		}
		if err := fm.RemoveDirectory(dir); err != nil {
			return files.Wrap("removing created directory", err)
		}
	}
	c.created = nil
	return nil
}

func (c *Create) Deploy(ctx context.Context) error {
	if err := c.expect("deploy", Staged); err != nil {
		return err
	}
	return c.record("deploy", c.deploy())
}

func (c *Create) deploy() error {
	fm := c.cfg.Files
	if fm.Exists(c.dst) {
		return fail(appErrors.CodeFileExists, "destination "+c.dst+" was occupied after staging")
	}
	if err := fm.Move(c.cacheFile(), c.dst); err != nil {
		return files.Wrap("placing file", err)
	}

	if digest := c.cfg.Hasher.HexDigestFile(c.dst); !digest.Matches(c.spec.Checksum) {
		if err := fm.Move(c.dst, c.cacheFile()); err != nil {
			c.logger.Error("restoring mismatching file to cache", zap.Error(err))
		}
		return fail(appErrors.CodeFileIntegrityMismatch,
			fmt.Sprintf("deployed %s has digest %s, expected %s", c.dst, digest, c.spec.Checksum))
	}

	if c.spec.Executable {
		if err := fm.MakeExecutable(c.dst); err != nil {
			c.logger.Warn("could not set executable bit", zap.String("path", c.dst), zap.Error(err))
		}
	}

	c.state = Deployed
	return nil
}

func (c *Create) Rollback(ctx context.Context) error {
	if err := c.expect("rollback", Unstaged, Staged, Deployed, RolledBack); err != nil {
		return err
	}
	if c.state == RolledBack {
		return nil
	}
	return c.record("rollback", c.rollback())
}

func (c *Create) rollback() error {
	if c.state == Deployed {
		fm := c.cfg.Files
		if digest := c.cfg.Hasher.HexDigestFile(c.dst); !digest.Matches(c.spec.Checksum) {
			return fail(appErrors.CodeInvalidState,
				fmt.Sprintf("%s changed after deploy (digest %s)", c.dst, digest))
		}
		if err := fm.Move(c.dst, c.cacheFile()); err != nil {
			return files.Wrap("withdrawing file", err)
		}
	}
	if err := c.removeCreated(); err != nil {
		return err
	}
	c.state = RolledBack
	return nil
}

func (c *Create) Commit(ctx context.Context) error {
	if err := c.expect("commit", Deployed); err != nil {
		return err
	}
	return c.record("commit", c.commit())
}

func (c *Create) commit() error {
	if digest := c.cfg.Hasher.HexDigestFile(c.dst); !digest.Matches(c.spec.Checksum) {
		return fail(appErrors.CodeFileIntegrityMismatch,
			fmt.Sprintf("%s has digest %s at commit, expected %s", c.dst, digest, c.spec.Checksum))
	}
	// The cached copy is normally gone after the move; anything left behind
	// is removed only if it is the file we shipped.
	if c.cfg.Files.Exists(c.cacheFile()) && c.cfg.Hasher.HexDigestFile(c.cacheFile()).Matches(c.spec.Checksum) {
		if err := c.cfg.Files.RemoveFile(c.cacheFile()); err != nil {
			return files.Wrap("removing cached file", err)
		}
	}
	c.state = Committed
	return nil
}
