package platform

import (
	"os"
	"runtime"

	"github.com/spf13/afero"
)

// Chmod sets file permissions through fs. On Windows this is a no-op because
// Windows does not support Unix-style permission bits.
func Chmod(fs afero.Fs, path string, mode os.FileMode) error {
	if IsWindows() {
		return nil
	}
	return fs.Chmod(path, mode)
}

// ExecutableMode returns mode with full owner access and the group and other
// execute bits set.
func ExecutableMode(mode os.FileMode) os.FileMode {
	return mode | 0o711
}

// IsWindows returns true if the current OS is Windows.
func IsWindows() bool {
	return runtime.GOOS == "windows"
}
