package operation

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/amireh/karazeh/internal/config"
	appErrors "github.com/amireh/karazeh/internal/errors"
	"github.com/amireh/karazeh/internal/files"
)

// Delete removes a file from the install tree, keeping it in the cache until
// commit.
type Delete struct {
	base
	target string
	rel    string
}

// NewDelete builds the delete operation at position index of releaseID.
// target is relative to the install root.
func NewDelete(cfg *config.Config, releaseID string, index int, target string) *Delete {
	return &Delete{
		base:   newBase(cfg, TypeDelete, releaseID, index),
		target: cfg.RootFile(target),
		rel:    target,
	}
}

// Target returns the absolute path being removed.
func (d *Delete) Target() string { return d.target }

func (d *Delete) slot() string {
	return filepath.Join(d.cacheDir(), "deleted", filepath.FromSlash(d.rel))
}

func (d *Delete) String() string {
	return fmt.Sprintf("delete %s", d.rel)
}

func (d *Delete) Stage(ctx context.Context) error {
	if err := d.expect("stage", Unstaged); err != nil {
		return err
	}
	return d.record("stage", d.stage())
}

func (d *Delete) stage() error {
	fm := d.cfg.Files
	if !fm.Exists(d.target) {
		return fail(appErrors.CodeFileMissing, "target "+d.target+" does not exist")
	}
	if fm.Exists(d.slot()) {
		return fail(appErrors.CodeFileExists, "cache slot "+d.slot()+" is occupied")
	}
	if dir := filepath.Dir(d.target); !fm.IsWritable(dir) {
		return fail(appErrors.CodeUnauthorized, "directory "+dir+" is not writable")
	}
	if err := fm.CreateDirectory(filepath.Dir(d.slot())); err != nil {
		return files.Wrap("preparing cache", err)
	}
	d.state = Staged
	return nil
}

func (d *Delete) Deploy(ctx context.Context) error {
	if err := d.expect("deploy", Staged); err != nil {
		return err
	}
	err := d.cfg.Files.Move(d.target, d.slot())
	if err == nil {
		d.state = Deployed
	}
	return d.record("deploy", files.Wrap("moving target aside", err))
}

func (d *Delete) Rollback(ctx context.Context) error {
	if err := d.expect("rollback", Unstaged, Staged, Deployed, RolledBack); err != nil {
		return err
	}
	if d.state == RolledBack {
		return nil
	}
	return d.record("rollback", d.rollback())
}

func (d *Delete) rollback() error {
	if d.state == Deployed {
		fm := d.cfg.Files
		if !fm.Exists(d.slot()) {
			return fail(appErrors.CodeInvalidState, "cache slot "+d.slot()+" is gone")
		}
		if fm.Exists(d.target) {
			return fail(appErrors.CodeInvalidState, "target "+d.target+" was recreated")
		}
		if err := fm.Move(d.slot(), d.target); err != nil {
			return files.Wrap("restoring target", err)
		}
	}
	d.state = RolledBack
	return nil
}

func (d *Delete) Commit(ctx context.Context) error {
	if err := d.expect("commit", Deployed); err != nil {
		return err
	}
	err := d.cfg.Files.RemoveDirectory(d.slot())
	if err == nil {
		d.state = Committed
	}
	return d.record("commit", files.Wrap("purging deleted file", err))
}
