// Package cli defines the Cobra command tree for the karazeh CLI. Commands
// only parse flags, build the session configuration and format output; the
// work happens in the updater, manifest and delta packages.
package cli
