package updater

import (
	"testing"
)

func TestLatestTag(t *testing.T) {
	m := loadManifest(t, `{
		"identities": [{"name": "default", "files": ["bin/app"]}],
		"releases": [
			{"id": "b", "head": "a", "identity": "default", "tag": "v1.10.0"},
			{"id": "c", "head": "b", "identity": "default", "tag": "v1.9.0"},
			{"id": "d", "head": "c", "identity": "default", "tag": "nightly"},
			{"id": "e", "head": "d", "identity": "default"},
			{"id": "f", "head": "e", "identity": "default", "tag": "1.10.1-rc.1"}
		]
	}`)

	tests := []struct {
		pending []string
		want    string
	}{
		{[]string{"b", "c", "d", "e"}, "v1.10.0"},
		{[]string{"b", "f"}, "1.10.1-rc.1"},
		{[]string{"f", "b"}, "1.10.1-rc.1"},
		{[]string{"c", "d"}, "v1.9.0"},
		{[]string{"d", "e"}, "nightly"},
		{[]string{"e"}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := latestTag(m, tt.pending); got != tt.want {
			t.Errorf("latestTag(%v) = %q, want %q", tt.pending, got, tt.want)
		}
	}
}
