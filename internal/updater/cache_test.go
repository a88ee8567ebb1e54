package updater

import (
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestLoadCache_Missing(t *testing.T) {
	cache, err := LoadCache(afero.NewMemMapFs(), "/home/.kzh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache != nil {
		t.Error("expected nil cache for missing file")
	}
}

func TestSaveAndLoadCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Now().Truncate(time.Second)
	original := &Status{
		CurrentVersion: "aaaa",
		CurrentTag:     "v1.1.0",
		Pending:        []string{"bbbb", "cccc"},
		LatestTag:      "v1.3.0",
		CheckedAt:      now,
	}

	if err := SaveCache(fs, "/home/.kzh", original); err != nil {
		t.Fatalf("SaveCache failed: %v", err)
	}

	loaded, err := LoadCache(fs, "/home/.kzh")
	if err != nil {
		t.Fatalf("LoadCache failed: %v", err)
	}
	if loaded.CurrentVersion != "aaaa" {
		t.Errorf("CurrentVersion = %q, want %q", loaded.CurrentVersion, "aaaa")
	}
	if loaded.LatestTag != "v1.3.0" {
		t.Errorf("LatestTag = %q, want %q", loaded.LatestTag, "v1.3.0")
	}
	if len(loaded.Pending) != 2 {
		t.Errorf("Pending = %v, want 2 entries", loaded.Pending)
	}
	if !loaded.CheckedAt.Equal(now) {
		t.Errorf("CheckedAt = %v, want %v", loaded.CheckedAt, now)
	}
}

func TestLoadCache_Corrupted(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/home/.kzh/"+cacheFileName, []byte("not valid json{{{"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadCache(fs, "/home/.kzh"); err == nil {
		t.Error("expected error for corrupted cache")
	}
}

func TestIsCacheStale(t *testing.T) {
	tests := []struct {
		name     string
		cache    *Status
		maxAge   time.Duration
		expected bool
	}{
		{"nil cache is stale", nil, 24 * time.Hour, true},
		{"fresh cache", &Status{CheckedAt: time.Now()}, 24 * time.Hour, false},
		{"stale cache", &Status{CheckedAt: time.Now().Add(-25 * time.Hour)}, 24 * time.Hour, true},
		{"exactly at boundary", &Status{CheckedAt: time.Now().Add(-24*time.Hour - time.Second)}, 24 * time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCacheStale(tt.cache, tt.maxAge); got != tt.expected {
				t.Errorf("IsCacheStale = %v, want %v", got, tt.expected)
			}
		})
	}
}
