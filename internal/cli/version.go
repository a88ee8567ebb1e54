package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amireh/karazeh/internal/branding"
	"github.com/amireh/karazeh/internal/config"
)

var (
	versionShort bool
	versionJSON  bool
)

// versionInfo is the build plus the settings that decide which manifests
// this binary can read.
type versionInfo struct {
	Version  string `json:"version"`
	Commit   string `json:"commit"`
	Date     string `json:"date"`
	Manifest string `json:"manifest"`
	Hasher   string `json:"hasher"`
	Config   string `json:"config_file"`
}

func currentVersionInfo() versionInfo {
	return versionInfo{
		Version:  buildVersion,
		Commit:   buildCommit,
		Date:     buildDate,
		Manifest: config.Get(config.KeyManifest),
		Hasher:   config.Get(config.KeyHasher),
		Config:   config.FilePath(),
	}
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print version number only")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print version info as JSON")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		info := currentVersionInfo()

		switch {
		case versionShort:
			fmt.Fprintln(out, info.Version)
		case versionJSON:
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling version info: %w", err)
			}
			fmt.Fprintln(out, string(data))
		default:
			fmt.Fprintf(out, "%s %s (commit %s, built %s)\n", branding.CLIName(), info.Version, info.Commit, info.Date)
			fmt.Fprintf(out, "  manifest: %s, digests: %s\n", info.Manifest, info.Hasher)
			fmt.Fprintf(out, "  settings: %s\n", info.Config)
		}
		return nil
	},
}
