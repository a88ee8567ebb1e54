package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/amireh/karazeh/internal/branding"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Dir returns the path to the user config directory (~/.kzh/).
func Dir() string {
	if dir := os.Getenv(branding.EnvVar("HOME")); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.kzh/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load points the global viper instance at the config file and the KZH_
// environment, on top of the defaults. A missing file is not an error.
func Load() {
	SetDefaults(viper.GetViper())
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set validates a key-value pair against the full settings and saves it to
// the config file. Values are checked before anything is written, so a bad
// value leaves the file untouched.
func Set(key, value string) error {
	if !IsKnownKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}

	trial := viper.New()
	SetDefaults(trial)
	for _, k := range knownKeys {
		if viper.IsSet(k) {
			trial.Set(k, viper.Get(k))
		}
	}
	trial.Set(key, value)
	if _, err := Decode(trial); err != nil {
		return fmt.Errorf("rejecting %s=%q: %w", key, value, err)
	}

	if err := EnsureDir(); err != nil {
		return err
	}
	viper.Set(key, value)
	if err := viper.WriteConfigAs(FilePath()); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// All returns every known key with its effective value, in declaration order.
func All() [][2]string {
	pairs := make([][2]string, 0, len(knownKeys))
	for _, k := range knownKeys {
		pairs = append(pairs, [2]string{k, viper.GetString(k)})
	}
	return pairs
}
