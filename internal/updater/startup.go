package updater

import (
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/amireh/karazeh/internal/branding"
)

// PrintSavedBanner prints the update banner from the last saved check when
// that check is fresh and found pending releases. Errors are ignored; the
// banner is advisory.
func PrintSavedBanner(w io.Writer, fs afero.Fs, dir string) {
	s, err := LoadCache(fs, dir)
	if err != nil || IsCacheStale(s, DefaultCacheMaxAge) || s.UpToDate() {
		return
	}
	PrintUpdateBanner(w, s)
}

// PrintUpdateBanner prints the update notification for s to w.
func PrintUpdateBanner(w io.Writer, s *Status) {
	from := s.CurrentTag
	if from == "" {
		from = short(s.CurrentVersion)
	}
	to := s.LatestTag
	if to == "" {
		to = short(s.Pending[len(s.Pending)-1])
	}
	noun := "release"
	if len(s.Pending) > 1 {
		noun = "releases"
	}
	fmt.Fprintf(w, "\nUpdate available: %s -> %s (%d %s)\n", from, to, len(s.Pending), noun)
	fmt.Fprintf(w, "    Run `%s update` to upgrade\n\n", branding.CLIName())
}

// short abbreviates a fingerprint for display.
func short(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}
