package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/amireh/karazeh/internal/branding"
	"github.com/amireh/karazeh/internal/delta"
	"github.com/amireh/karazeh/internal/downloader"
	"github.com/amireh/karazeh/internal/hasher"
)

// Keys understood by the config file, environment and flags.
const (
	KeyHost          = "host"
	KeyRootPath      = "root_path"
	KeyCachePath     = "cache_path"
	KeyManifest      = "manifest"
	KeyVerbose       = "verbose"
	KeyRetries       = "retries"
	KeyRetryInterval = "retry_interval"
	KeyWorkers       = "workers"
	KeyHasher        = "hasher"
	KeyBlockSize     = "block_size"
)

// DefaultWorkers bounds concurrent prefetches within a release.
const DefaultWorkers = 4

var knownKeys = []string{
	KeyHost, KeyRootPath, KeyCachePath, KeyManifest, KeyVerbose,
	KeyRetries, KeyRetryInterval, KeyWorkers, KeyHasher, KeyBlockSize,
}

// IsKnownKey reports whether key is a recognized setting.
func IsKnownKey(key string) bool {
	for _, k := range knownKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Settings is the user-facing configuration surface.
type Settings struct {
	Host          string        `mapstructure:"host" validate:"required,url"`
	RootPath      string        `mapstructure:"root_path" validate:"required"`
	CachePath     string        `mapstructure:"cache_path"`
	Manifest      string        `mapstructure:"manifest" validate:"required"`
	Verbose       bool          `mapstructure:"verbose"`
	Retries       int           `mapstructure:"retries" validate:"gte=0,lte=10"`
	RetryInterval time.Duration `mapstructure:"retry_interval" validate:"gte=0"`
	Workers       int           `mapstructure:"workers" validate:"gte=1,lte=64"`
	Hasher        string        `mapstructure:"hasher" validate:"oneof=md5 sha256 blake2b"`
	BlockSize     int           `mapstructure:"block_size" validate:"gte=16,lte=16777216"`
}

var validate = validator.New()

// SetDefaults registers the default for every key on v.
func SetDefaults(v *viper.Viper) {
	root, err := os.Getwd()
	if err != nil {
		root = "."
	}
	v.SetDefault(KeyHost, branding.DefaultHost())
	v.SetDefault(KeyRootPath, root)
	v.SetDefault(KeyCachePath, "")
	v.SetDefault(KeyManifest, branding.DefaultManifest())
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyRetries, downloader.DefaultRetries)
	v.SetDefault(KeyRetryInterval, downloader.DefaultRetryInterval)
	v.SetDefault(KeyWorkers, DefaultWorkers)
	v.SetDefault(KeyHasher, hasher.MD5)
	v.SetDefault(KeyBlockSize, delta.DefaultBlockSize)
}

// Decode reads Settings out of v, resolves paths and validates the result.
// An empty cache path becomes <root>/.kzh/cache.
func Decode(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}

	s.Hasher = strings.ToLower(s.Hasher)
	if s.RootPath != "" {
		abs, err := filepath.Abs(s.RootPath)
		if err != nil {
			return nil, fmt.Errorf("resolving root path %s: %w", s.RootPath, err)
		}
		s.RootPath = abs
	}
	if s.CachePath == "" && s.RootPath != "" {
		s.CachePath = DefaultCachePath(s.RootPath)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Current decodes the settings held by the global viper instance.
func Current() (*Settings, error) {
	return Decode(viper.GetViper())
}

// DefaultCachePath returns the cache location for an install root.
func DefaultCachePath(root string) string {
	return filepath.Join(root, branding.HomeDir(), "cache")
}

// Validate checks every field against its constraints.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(errs))
			for _, fe := range errs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("validating settings: %w", err)
	}
	return nil
}
