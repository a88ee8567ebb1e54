// Package platform isolates the OS-specific bits the file manager needs:
// permission changes (skipped on Windows) and free disk space queries, which
// use statfs on Unix systems and GetDiskFreeSpaceEx on Windows.
package platform
