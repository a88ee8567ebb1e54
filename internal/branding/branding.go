// Package branding provides compile-time identity values for the CLI.
//
// Products embedding the updater edit branding.yaml in this package; Go's
// //go:embed bakes it into the binary.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName         string `yaml:"cli_name"`
	DisplayName     string `yaml:"display_name"`
	Description     string `yaml:"description"`
	HomeDir         string `yaml:"home_dir"`
	EnvPrefix       string `yaml:"env_prefix"`
	GoModule        string `yaml:"go_module"`
	DefaultHost     string `yaml:"default_host"`
	DefaultManifest string `yaml:"default_manifest"`
}

func load() {
	once.Do(func() {
		// Set hard defaults in case the embedded file is missing/empty.
		defaults = brand{
			CLIName:         "karazeh",
			DisplayName:     "Karazeh",
			Description:     "Transactional self-updater for installed applications",
			HomeDir:         ".kzh",
			EnvPrefix:       "KZH",
			GoModule:        "github.com/amireh/karazeh",
			DefaultHost:     "http://localhost:9393",
			DefaultManifest: "/version.json",
		}
		// Overlay with embedded YAML values.
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "karazeh").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name (e.g., "Karazeh").
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name used under $HOME and under the
// install root for the operation cache (e.g., ".kzh").
func HomeDir() string { load(); return defaults.HomeDir }

// EnvPrefix returns the environment variable prefix (e.g., "KZH").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// GoModule returns the Go module path. Not consumed at runtime.
func GoModule() string { load(); return defaults.GoModule }

// DefaultHost returns the update server used when none is configured.
func DefaultHost() string { load(); return defaults.DefaultHost }

// DefaultManifest returns the manifest location, relative to the host.
func DefaultManifest() string { load(); return defaults.DefaultManifest }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("HOST") → "KZH_HOST".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
