package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/amireh/karazeh/internal/branding"
	"github.com/amireh/karazeh/internal/config"
	"github.com/amireh/karazeh/internal/updater"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` keeps an installation up to date by applying the releases described in a
version manifest. Each release is applied as a whole or rolled back entirely.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Commands that check for themselves or never touch an install
		// tree skip the banner.
		switch cmd.Name() {
		case "update", "status", "version", "help":
			return
		}
		if cmd.HasParent() && cmd.Parent().Name() == "delta" {
			return
		}
		updater.PrintSavedBanner(os.Stderr, afero.NewOsFs(), config.Dir())
	},
}

func init() {
	cobra.OnInitialize(config.Load)

	flags := rootCmd.PersistentFlags()
	flags.String("root", "", "Install root to update (default: current directory)")
	flags.String("host", "", "Base URL relative resources are fetched from")
	flags.BoolP("verbose", "v", false, "Log every step")

	_ = viper.BindPFlag(config.KeyRootPath, flags.Lookup("root"))
	_ = viper.BindPFlag(config.KeyHost, flags.Lookup("host"))
	_ = viper.BindPFlag(config.KeyVerbose, flags.Lookup("verbose"))
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
