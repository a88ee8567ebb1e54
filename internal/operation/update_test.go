package operation

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/amireh/karazeh/internal/errors"
	"github.com/amireh/karazeh/internal/files"
)

var (
	v1 = []byte("the quick brown fox jumps over the lazy dog, version one")
	v2 = []byte("the quick brown fox leaps over the lazy dog, version two!")
)

func newUpdate(t *testing.T, f *fixture) *Update {
	t.Helper()
	f.write(t, "bin/app", v1, 0755)
	patch := makeDelta(t, v1, v2)
	sum := f.serve("/deltas/app.delta", patch)
	return NewUpdate(f.cfg, "r2", 0, UpdateSpec{
		Basis:         "bin/app",
		PreChecksum:   f.digest(v1),
		PostChecksum:  f.digest(v2),
		DeltaURL:      "/deltas/app.delta",
		DeltaChecksum: sum,
		DeltaSize:     int64(len(patch)),
	})
}

func TestUpdateLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	op := newUpdate(t, f)

	require.NoError(t, op.Stage(ctx))
	assert.True(t, f.exists(op.deltaFile()))
	assert.True(t, f.exists(op.signatureFile()))
	assert.Equal(t, string(v1), f.read(t, op.Basis()))

	require.NoError(t, op.Deploy(ctx))
	assert.Equal(t, string(v2), f.read(t, op.Basis()))
	assert.Equal(t, string(v1), f.read(t, op.swap.slot))
	assert.False(t, f.exists(op.swap.temp))
	assert.Equal(t, swapPatched, op.swap.phase)
	if runtime.GOOS != "windows" {
		info, err := f.fs.Stat(op.Basis())
		require.NoError(t, err)
		assert.Equal(t, "-rwxr-xr-x", info.Mode().Perm().String())
	}

	require.NoError(t, op.Commit(ctx))
	assert.Equal(t, Committed, op.State())
	assert.False(t, f.exists(op.deltaFile()))
	assert.False(t, f.exists(op.signatureFile()))
	assert.False(t, f.exists(op.swap.slot))
	assert.Equal(t, string(v2), f.read(t, op.Basis()))
}

func TestUpdateRollbackRestoresOriginal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	op := newUpdate(t, f)

	require.NoError(t, op.Stage(ctx))
	require.NoError(t, op.Deploy(ctx))
	require.NoError(t, op.Rollback(ctx))

	assert.Equal(t, RolledBack, op.State())
	assert.Equal(t, swapOriginal, op.swap.phase)
	assert.Equal(t, string(v1), f.read(t, op.Basis()))
	assert.Equal(t, f.digest(v1), f.cfg.Hasher.HexDigestFile(op.Basis()).Hex)
}

func TestUpdateStageMissingBasis(t *testing.T) {
	f := newFixture(t)
	op := NewUpdate(f.cfg, "r2", 0, UpdateSpec{
		Basis:       "bin/nope",
		PreChecksum: f.digest(v1),
		DeltaURL:    "/deltas/nope.delta",
	})

	err := op.Stage(context.Background())
	assert.True(t, appErrors.IsCode(err, appErrors.CodeFileMissing))
	assert.Zero(t, f.hits.Load())
}

func TestUpdateStageBasisMismatch(t *testing.T) {
	f := newFixture(t)
	op := newUpdate(t, f)
	f.write(t, "bin/app", []byte("locally modified"), 0755)

	err := op.Stage(context.Background())
	assert.True(t, appErrors.IsCode(err, appErrors.CodeFileIntegrityMismatch))
	assert.Equal(t, Unstaged, op.State())
}

func TestUpdateStageOutOfSpace(t *testing.T) {
	f := newFixture(t, files.WithFreeSpace(func(string) (uint64, error) { return uint64(len(v1)), nil }))
	op := newUpdate(t, f)

	err := op.Stage(context.Background())
	assert.True(t, appErrors.IsCode(err, appErrors.CodeOutOfSpace))
	assert.Zero(t, f.hits.Load())
}

func TestUpdateDeployRejectsWrongResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	op := newUpdate(t, f)
	op.spec.PostChecksum = f.digest([]byte("something else"))

	require.NoError(t, op.Stage(ctx))
	err := op.Deploy(ctx)
	assert.True(t, appErrors.IsCode(err, appErrors.CodeFileIntegrityMismatch))
	assert.Equal(t, Staged, op.State())
	assert.Equal(t, string(v1), f.read(t, op.Basis()))
	assert.False(t, f.exists(op.swap.slot))

	require.NoError(t, op.Rollback(ctx))
	assert.Equal(t, string(v1), f.read(t, op.Basis()))
}

func TestUpdateDeployRejectsChangedBasis(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	op := newUpdate(t, f)

	require.NoError(t, op.Stage(ctx))
	f.write(t, "bin/app", []byte("changed meanwhile"), 0755)

	err := op.Deploy(ctx)
	assert.True(t, appErrors.IsCode(err, appErrors.CodeFileIntegrityMismatch))
	assert.Equal(t, "changed meanwhile", f.read(t, op.Basis()))
}

func TestUpdateRollbackRefusesTamperedFiles(t *testing.T) {
	ctx := context.Background()

	t.Run("basis", func(t *testing.T) {
		f := newFixture(t)
		op := newUpdate(t, f)
		require.NoError(t, op.Stage(ctx))
		require.NoError(t, op.Deploy(ctx))
		f.write(t, "bin/app", []byte("tampered"), 0755)

		err := op.Rollback(ctx)
		assert.True(t, appErrors.IsCode(err, appErrors.CodeInvalidState))
		assert.Equal(t, "tampered", f.read(t, op.Basis()))
	})

	t.Run("backup", func(t *testing.T) {
		f := newFixture(t)
		op := newUpdate(t, f)
		require.NoError(t, op.Stage(ctx))
		require.NoError(t, op.Deploy(ctx))
		require.NoError(t, f.fs.Remove(op.swap.slot))

		err := op.Rollback(ctx)
		assert.True(t, appErrors.IsCode(err, appErrors.CodeInvalidState))
		assert.Equal(t, string(v2), f.read(t, op.Basis()))
	})
}

func TestUpdateOutOfOrderPhases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	op := newUpdate(t, f)

	assert.True(t, appErrors.IsCode(op.Deploy(ctx), appErrors.CodeInvalidState))
	assert.True(t, appErrors.IsCode(op.Commit(ctx), appErrors.CodeInvalidState))
	assert.Equal(t, string(v1), f.read(t, op.Basis()))
}

func TestUpdateUsesPrefetchedDelta(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	op := newUpdate(t, f)

	require.NoError(t, op.Prefetch(ctx))
	require.NoError(t, op.Stage(ctx))
	assert.Equal(t, int32(1), f.hits.Load())
}
