package updater

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

const (
	cacheFileName = "last-check.json"
	// DefaultCacheMaxAge is how long a saved check is trusted for the banner.
	DefaultCacheMaxAge = 24 * time.Hour
)

// LoadCache reads the last saved check from dir.
// Returns nil, nil if none was saved yet.
func LoadCache(fs afero.Fs, dir string) (*Status, error) {
	data, err := afero.ReadFile(fs, filepath.Join(dir, cacheFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading last check: %w", err)
	}

	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing last check: %w", err)
	}
	return &s, nil
}

// SaveCache writes s to dir.
func SaveCache(fs afero.Fs, dir string, s *Status) error {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling last check: %w", err)
	}
	if err := afero.WriteFile(fs, filepath.Join(dir, cacheFileName), data, 0644); err != nil {
		return fmt.Errorf("writing last check: %w", err)
	}
	return nil
}

// IsCacheStale returns true if s is nil or older than maxAge.
func IsCacheStale(s *Status, maxAge time.Duration) bool {
	if s == nil {
		return true
	}
	return time.Since(s.CheckedAt) > maxAge
}
