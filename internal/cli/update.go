package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/amireh/karazeh/internal/config"
	"github.com/amireh/karazeh/internal/updater"
)

var errUnknownVersion = errors.New("installation does not match any release in the manifest")

var (
	updateCheck       bool
	updateManifest    string
	updateMetricsFile string
)

func init() {
	updateCmd.Flags().BoolVar(&updateCheck, "check", false, "Only check for updates, do not apply them")
	updateCmd.Flags().StringVar(&updateManifest, "manifest", "", "Version manifest file or URL (default: the manifest setting)")
	updateCmd.Flags().StringVar(&updateMetricsFile, "metrics-file", "", "Write session metrics to this file in Prometheus text format")
	rootCmd.AddCommand(updateCmd)
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Apply every pending release",
	Long: `Identify the installation against the version manifest and apply the
releases that lead from it to the latest one, in order. A release that
fails is rolled back and stops the update; releases applied before it stay.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		sess, err := newSession()
		if err != nil {
			return err
		}
		defer sess.close()
		defer func() {
			if updateMetricsFile != "" {
				err = multierr.Append(err, sess.metrics.WriteTextfile(updateMetricsFile))
			}
		}()

		u := sess.updater(updateManifest)
		out := cmd.OutOrStdout()
		source, _ := u.Source()
		sess.cfg.Logger.Debug("checking for updates", zap.String("manifest", source), zap.String("root", sess.cfg.RootPath))

		m, err := u.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking for updates: %w", err)
		}
		status, err := u.Status(m)
		if err != nil {
			return fmt.Errorf("checking for updates: %w", err)
		}
		saveStatus(sess, status)

		if !status.Known() {
			fmt.Fprintf(out, "Unknown version: %s matches no release.\n", sess.cfg.RootPath)
			return errUnknownVersion
		}
		if status.UpToDate() {
			fmt.Fprintf(out, "Already up to date (%s).\n", describe(status))
			return nil
		}
		if updateCheck {
			updater.PrintUpdateBanner(out, status)
			return nil
		}

		applied, applyErr := u.ApplyFrom(cmd.Context(), m)
		if len(applied) > 0 {
			fmt.Fprintf(out, "Applied %d of %d release(s).\n", len(applied), len(status.Pending))
		}
		if after, err := u.Status(m); err == nil {
			saveStatus(sess, after)
			if applyErr == nil {
				fmt.Fprintf(out, "Now at %s.\n", describe(after))
			}
		}
		if applyErr != nil {
			return fmt.Errorf("updating: %w", applyErr)
		}
		return nil
	},
}

// saveStatus records the check for the startup banner. Failures only cost
// the banner.
func saveStatus(sess *session, s *updater.Status) {
	if err := updater.SaveCache(afero.NewOsFs(), config.Dir(), s); err != nil {
		sess.cfg.Logger.Debug("saving update check", zap.Error(err))
	}
}

func describe(s *updater.Status) string {
	if s.CurrentTag != "" {
		return s.CurrentTag
	}
	if len(s.CurrentVersion) > 12 {
		return s.CurrentVersion[:12]
	}
	return s.CurrentVersion
}
