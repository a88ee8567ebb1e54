package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	statusManifest string
	statusJSON     bool
)

func init() {
	statusCmd.Flags().StringVar(&statusManifest, "manifest", "", "Version manifest file or URL (default: the manifest setting)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status as JSON")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the installed version and pending releases",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}
		defer sess.close()

		status, err := sess.updater(statusManifest).Check(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking for updates: %w", err)
		}
		saveStatus(sess, status)

		out := cmd.OutOrStdout()
		if statusJSON {
			data, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling status: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintf(out, "Root:     %s\n", sess.cfg.RootPath)
		fmt.Fprintf(out, "Host:     %s\n", sess.cfg.Host)
		if !status.Known() {
			fmt.Fprintln(out, "Version:  unknown")
			return nil
		}
		fmt.Fprintf(out, "Version:  %s\n", describe(status))
		if status.UpToDate() {
			fmt.Fprintln(out, "Pending:  none")
			return nil
		}
		latest := status.LatestTag
		if latest == "" {
			latest = status.Pending[len(status.Pending)-1]
		}
		fmt.Fprintf(out, "Pending:  %d release(s), latest %s\n", len(status.Pending), latest)
		for _, id := range status.Pending {
			fmt.Fprintf(out, "  - %s\n", id)
		}
		return nil
	},
}
