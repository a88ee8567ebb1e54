package operation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/amireh/karazeh/internal/config"
	appErrors "github.com/amireh/karazeh/internal/errors"
	"github.com/amireh/karazeh/internal/files"
)

// UpdateSpec describes an in-place binary patch of an existing file.
type UpdateSpec struct {
	// Basis is relative to the install root, slash separated.
	Basis         string
	PreChecksum   string
	PostChecksum  string
	DeltaURL      string
	DeltaChecksum string
	DeltaSize     int64
}

// Update patches a file with a downloaded delta and swaps the result in,
// keeping the original until commit.
type Update struct {
	base
	spec       UpdateSpec
	basis      string
	mode       os.FileMode
	prefetched bool
	swap       *swap
}

// NewUpdate builds the update operation at position index of releaseID.
func NewUpdate(cfg *config.Config, releaseID string, index int, spec UpdateSpec) *Update {
	u := &Update{
		base:  newBase(cfg, TypeUpdate, releaseID, index),
		spec:  spec,
		basis: cfg.RootFile(spec.Basis),
	}
	u.swap = &swap{
		fm:   cfg.Files,
		live: u.basis,
		slot: u.cachePath("patched"),
		temp: u.cachePath("patched.tmp"),
	}
	return u
}

// Spec returns the description the operation was built from.
func (u *Update) Spec() UpdateSpec { return u.spec }

// Basis returns the absolute path of the patched file.
func (u *Update) Basis() string { return u.basis }

func (u *Update) deltaFile() string     { return u.cachePath("delta") }
func (u *Update) signatureFile() string { return u.cachePath("signature") }

func (u *Update) String() string {
	return fmt.Sprintf("update %s (%s → %s) with %s", u.spec.Basis, u.spec.PreChecksum, u.spec.PostChecksum, u.spec.DeltaURL)
}

// Prefetch downloads the delta into the cache ahead of Stage.
func (u *Update) Prefetch(ctx context.Context) error {
	if err := u.expect("prefetch", Unstaged); err != nil {
		return err
	}
	if err := u.cfg.Files.CreateDirectory(u.cacheDir()); err != nil {
		return files.Wrap("preparing cache", err)
	}
	if err := u.fetch(ctx, u.spec.DeltaURL, u.deltaFile(), u.spec.DeltaChecksum, u.spec.DeltaSize); err != nil {
		return err
	}
	u.prefetched = true
	return nil
}

func (u *Update) Stage(ctx context.Context) error {
	if err := u.expect("stage", Unstaged); err != nil {
		return err
	}
	return u.record("stage", u.stage(ctx))
}

func (u *Update) stage(ctx context.Context) error {
	fm := u.cfg.Files

	if !fm.IsReadable(u.basis) {
		return fail(appErrors.CodeFileMissing, "basis "+u.basis+" is not readable")
	}
	if digest := u.cfg.Hasher.HexDigestFile(u.basis); !digest.Matches(u.spec.PreChecksum) {
		return fail(appErrors.CodeFileIntegrityMismatch,
			fmt.Sprintf("basis %s has digest %s, expected %s", u.basis, digest, u.spec.PreChecksum))
	}
	if !fm.IsWritable(u.basis) || !fm.IsWritable(filepath.Dir(u.basis)) {
		return fail(appErrors.CodeUnauthorized, "basis "+u.basis+" is not writable")
	}
	if err := fm.CreateDirectory(u.cacheDir()); err != nil {
		return files.Wrap("preparing cache", err)
	}

	size, err := fm.StatFilesize(u.basis)
	if err != nil {
		return files.Wrap("sizing basis", err)
	}
	// Room for the patched copy, the original kept for rollback and the delta.
	need := 2*size + u.spec.DeltaSize
	if !u.hasRoomFor(u.cacheDir(), need) {
		return fail(appErrors.CodeOutOfSpace, "not enough space for "+units.HumanSize(float64(need))+" of patch data")
	}

	if u.prefetched && u.cfg.Hasher.HexDigestFile(u.deltaFile()).Matches(u.spec.DeltaChecksum) {
		u.logger.Debug("using prefetched delta", zap.String("path", u.deltaFile()))
	} else if err := u.fetch(ctx, u.spec.DeltaURL, u.deltaFile(), u.spec.DeltaChecksum, u.spec.DeltaSize); err != nil {
		return err
	}

	if err := u.cfg.Encoder.Signature(u.basis, u.signatureFile()); err != nil {
		return fmt.Errorf("signing basis: %w", err)
	}

	mode, err := fm.FileMode(u.basis)
	if err != nil {
		return files.Wrap("reading basis mode", err)
	}
	u.mode = mode

	u.state = Staged
	return nil
}

func (u *Update) Deploy(ctx context.Context) error {
	if err := u.expect("deploy", Staged); err != nil {
		return err
	}
	return u.record("deploy", u.deploy())
}

func (u *Update) deploy() error {
	fm := u.cfg.Files
	h := u.cfg.Hasher

	if digest := h.HexDigestFile(u.basis); !digest.Matches(u.spec.PreChecksum) {
		return fail(appErrors.CodeFileIntegrityMismatch,
			fmt.Sprintf("basis %s changed after staging (digest %s)", u.basis, digest))
	}

	if err := u.cfg.Encoder.Patch(u.basis, u.deltaFile(), u.swap.slot); err != nil {
		return fmt.Errorf("patching %s: %w", u.basis, err)
	}
	if digest := h.HexDigestFile(u.swap.slot); !digest.Matches(u.spec.PostChecksum) {
		if err := fm.RemoveFile(u.swap.slot); err != nil {
			u.logger.Warn("removing bad patch output", zap.Error(err))
		}
		return fail(appErrors.CodeFileIntegrityMismatch,
			fmt.Sprintf("patched %s has digest %s, expected %s", u.basis, digest, u.spec.PostChecksum))
	}
	if err := fm.Chmod(u.swap.slot, u.mode); err != nil {
		u.logger.Warn("could not carry basis mode over", zap.Error(err))
	}

	if err := u.swap.forward(); err != nil {
		return err
	}
	u.state = Deployed
	return nil
}

func (u *Update) Rollback(ctx context.Context) error {
	if err := u.expect("rollback", Unstaged, Staged, Deployed, RolledBack); err != nil {
		return err
	}
	if u.state == RolledBack {
		return nil
	}
	return u.record("rollback", u.rollback())
}

func (u *Update) rollback() error {
	if u.state == Deployed {
		h := u.cfg.Hasher
		if digest := h.HexDigestFile(u.basis); !digest.Matches(u.spec.PostChecksum) {
			return fail(appErrors.CodeInvalidState,
				fmt.Sprintf("%s changed after deploy (digest %s)", u.basis, digest))
		}
		if digest := h.HexDigestFile(u.swap.slot); !digest.Matches(u.spec.PreChecksum) {
			return fail(appErrors.CodeInvalidState,
				fmt.Sprintf("backup of %s is damaged (digest %s)", u.basis, digest))
		}
		if err := u.swap.reverse(); err != nil {
			return err
		}
	}
	u.state = RolledBack
	return nil
}

func (u *Update) Commit(ctx context.Context) error {
	if err := u.expect("commit", Deployed); err != nil {
		return err
	}
	return u.record("commit", u.commit())
}

func (u *Update) commit() error {
	if digest := u.cfg.Hasher.HexDigestFile(u.basis); !digest.Matches(u.spec.PostChecksum) {
		return fail(appErrors.CodeFileIntegrityMismatch,
			fmt.Sprintf("%s has digest %s at commit, expected %s", u.basis, digest, u.spec.PostChecksum))
	}
	for _, path := range []string{u.deltaFile(), u.signatureFile(), u.swap.slot} {
		if err := u.cfg.Files.RemoveFile(path); err != nil {
			return files.Wrap("discarding patch data", err)
		}
	}
	u.state = Committed
	return nil
}
