package updater

import (
	"github.com/Masterminds/semver/v3"

	"github.com/amireh/karazeh/internal/manifest"
)

// latestTag picks the highest semantic version among the tags of pending. Tags
// that are not versions lose to ones that are; if none parse, the tag of the
// last pending release wins.
func latestTag(m *manifest.Manifest, pending []string) string {
	var best *semver.Version
	bestTag := ""
	fallback := ""
	for _, id := range pending {
		r, ok := m.Release(id)
		if !ok || r.Tag == "" {
			continue
		}
		fallback = r.Tag
		v, err := r.Version()
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestTag = v, r.Tag
		}
	}
	if best != nil {
		return bestTag
	}
	return fallback
}
