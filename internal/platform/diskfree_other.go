//go:build !linux && !darwin && !freebsd && !windows

package platform

import "errors"

// ErrFreeSpaceUnsupported is returned where no free space query is wired.
var ErrFreeSpaceUnsupported = errors.New("free space query not supported on this platform")

// FreeSpace is not implemented on this platform.
func FreeSpace(path string) (uint64, error) {
	return 0, ErrFreeSpaceUnsupported
}
