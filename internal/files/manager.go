// Package files wraps every filesystem probe and mutation the engine performs.
// All access goes through an afero.Fs so the operations can be exercised
// against an in-memory tree.
//
// Probes (Exists, IsReadable, IsWritable, IsDirectory) never return errors;
// any failure reads as "no".
package files

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	appErrors "github.com/amireh/karazeh/internal/errors"
	"github.com/amireh/karazeh/internal/platform"
)

const probePrefix = ".kzh-probe-"

// Manager performs filesystem probes and mutations against an afero.Fs.
type Manager struct {
	fs        afero.Fs
	logger    *zap.Logger
	freeSpace func(path string) (uint64, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for mutation tracing.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithFreeSpace overrides the free space query (useful for testing).
func WithFreeSpace(fn func(path string) (uint64, error)) Option {
	return func(m *Manager) {
		m.freeSpace = fn
	}
}

// New creates a Manager over fs. A nil fs means the OS filesystem.
func New(fs afero.Fs, opts ...Option) *Manager {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	m := &Manager{
		fs:     fs,
		logger: zap.NewNop(),
	}
	if _, ok := fs.(*afero.OsFs); ok {
		m.freeSpace = platform.FreeSpace
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Fs returns the underlying filesystem.
func (m *Manager) Fs() afero.Fs {
	return m.fs
}

// Exists reports whether anything lives at path.
func (m *Manager) Exists(path string) bool {
	_, err := m.fs.Stat(path)
	return err == nil
}

// IsDirectory reports whether path is an existing directory.
func (m *Manager) IsDirectory(path string) bool {
	info, err := m.fs.Stat(path)
	return err == nil && info.IsDir()
}

// IsReadable reports whether path can be opened for reading.
func (m *Manager) IsReadable(path string) bool {
	f, err := m.fs.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// IsWritable reports whether path can be written to. For directories a probe
// file is created inside and removed again; for missing paths an exclusive
// create+delete trial is made. Nothing is left behind either way.
func (m *Manager) IsWritable(path string) bool {
	info, err := m.fs.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return m.trialCreate(filepath.Join(path, probePrefix+uuid.NewString()))
	case err == nil:
		f, err := m.fs.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			return false
		}
		f.Close()
		return true
	case os.IsNotExist(err):
		return m.trialCreate(path)
	default:
		return false
	}
}

func (m *Manager) trialCreate(path string) bool {
	f, err := m.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return false
	}
	f.Close()
	if err := m.fs.Remove(path); err != nil {
		m.logger.Warn("removing write probe", zap.String("path", path), zap.Error(err))
	}
	return true
}

// CreateDirectory creates path and any missing parents.
func (m *Manager) CreateDirectory(path string) error {
	if err := m.fs.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}

// RemoveFile removes a single file. A missing file is not an error.
func (m *Manager) RemoveFile(path string) error {
	if err := m.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// RemoveDirectory removes path and everything below it.
func (m *Manager) RemoveDirectory(path string) error {
	if err := m.fs.RemoveAll(path); err != nil {
		return fmt.Errorf("removing directory %s: %w", path, err)
	}
	return nil
}

// Move renames src to dst, creating the parent of dst when needed. When the
// two paths live on different devices the file is copied, synced and the
// source removed.
func (m *Manager) Move(src, dst string) error {
	if err := m.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("preparing %s: %w", filepath.Dir(dst), err)
	}

	err := m.fs.Rename(src, dst)
	if err == nil {
		m.logger.Debug("moved", zap.String("from", src), zap.String("to", dst))
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("moving %s to %s: %w", src, dst, err)
	}

	m.logger.Debug("cross-device move, copying", zap.String("from", src), zap.String("to", dst))
	if err := m.copyFile(src, dst); err != nil {
		m.fs.Remove(dst)
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	if err := m.fs.Remove(src); err != nil {
		return fmt.Errorf("removing %s after copy: %w", src, err)
	}
	return nil
}

func (m *Manager) copyFile(src, dst string) error {
	in, err := m.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := m.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// MakeExecutable adds the execute bits to path. It does nothing on platforms
// without permission bits.
func (m *Manager) MakeExecutable(path string) error {
	info, err := m.fs.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := platform.Chmod(m.fs, path, platform.ExecutableMode(info.Mode().Perm())); err != nil {
		return fmt.Errorf("making %s executable: %w", path, err)
	}
	return nil
}

// Chmod sets the permission bits of path. It does nothing on platforms
// without permission bits.
func (m *Manager) Chmod(path string, mode os.FileMode) error {
	if err := platform.Chmod(m.fs, path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

// FileMode returns the permission bits of path.
func (m *Manager) FileMode(path string) (os.FileMode, error) {
	info, err := m.fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Mode().Perm(), nil
}

// StatFilesize returns the size of the file at path in bytes.
func (m *Manager) StatFilesize(path string) (int64, error) {
	info, err := m.fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// LoadFile reads the whole file at path.
func (m *Manager) LoadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return data, nil
}

// IsEmptyDirectory reports whether path is a directory with no entries.
func (m *Manager) IsEmptyDirectory(path string) bool {
	if !m.IsDirectory(path) {
		return false
	}
	empty, err := afero.IsEmpty(m.fs, path)
	return err == nil && empty
}

// FreeSpace returns the bytes available on the volume holding path. The
// second value is false when the amount cannot be determined, either because
// the filesystem is not the OS one or the query failed. Missing paths are
// resolved to their nearest existing ancestor.
func (m *Manager) FreeSpace(path string) (uint64, bool) {
	if m.freeSpace == nil {
		return 0, false
	}
	for !m.Exists(path) {
		parent := filepath.Dir(path)
		if parent == path {
			return 0, false
		}
		path = parent
	}
	free, err := m.freeSpace(path)
	if err != nil {
		m.logger.Debug("free space query failed", zap.String("path", path), zap.Error(err))
		return 0, false
	}
	return free, true
}

// Classify maps a filesystem error onto a result code.
func Classify(err error) appErrors.Code {
	switch {
	case err == nil:
		return appErrors.CodeOK
	case errors.Is(err, syscall.ENOSPC):
		return appErrors.CodeOutOfSpace
	case os.IsPermission(err) || errors.Is(err, os.ErrPermission):
		return appErrors.CodeUnauthorized
	case os.IsNotExist(err) || errors.Is(err, os.ErrNotExist):
		return appErrors.CodeFileMissing
	case os.IsExist(err) || errors.Is(err, os.ErrExist):
		return appErrors.CodeFileExists
	}
	return appErrors.CodeInternalError
}

// Wrap tags err with the code Classify assigns to it.
func Wrap(msg string, err error) error {
	if err == nil {
		return nil
	}
	return appErrors.New(Classify(err), msg, err)
}
