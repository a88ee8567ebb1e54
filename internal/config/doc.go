// Package config manages updater settings and the runtime handles built from
// them. Settings come from ~/.kzh/config.yaml, KZH_* environment variables and
// command-line flags (in increasing precedence) and are validated before use.
// Config bundles the resolved paths with the hasher, file manager, downloader
// and delta encoder every operation shares.
package config
