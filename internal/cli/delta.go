package cli

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/amireh/karazeh/internal/config"
	"github.com/amireh/karazeh/internal/delta"
	"github.com/amireh/karazeh/internal/logging"
)

var deltaBlockSize int

func init() {
	deltaCmd.PersistentFlags().IntVar(&deltaBlockSize, "block-size", 0, "Signature block size in bytes (default: the block_size setting)")
	deltaCmd.AddCommand(deltaSignatureCmd)
	deltaCmd.AddCommand(deltaDiffCmd)
	deltaCmd.AddCommand(deltaPatchCmd)
	rootCmd.AddCommand(deltaCmd)
}

var deltaCmd = &cobra.Command{
	Use:   "delta",
	Short: "Produce and apply binary deltas",
	Long: `Tools for publishing update operations. A delta is made in two steps:
take the signature of the old file, then diff the new file against it.
The patch subcommand applies a delta the same way an update does.`,
}

var deltaSignatureCmd = &cobra.Command{
	Use:   "signature <basis> <signature>",
	Short: "Write the signature of a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEncoder()
		if err != nil {
			return err
		}
		if err := e.Signature(args[0], args[1]); err != nil {
			return err
		}
		return reportOutput(cmd, args[1])
	},
}

var deltaDiffCmd = &cobra.Command{
	Use:   "diff <signature> <new-file> <delta>",
	Short: "Write the delta turning the signed file into new-file",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEncoder()
		if err != nil {
			return err
		}
		if err := e.Delta(args[0], args[1], args[2]); err != nil {
			return err
		}
		return reportOutput(cmd, args[2])
	},
}

var deltaPatchCmd = &cobra.Command{
	Use:   "patch <basis> <delta> <output>",
	Short: "Apply a delta to basis",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEncoder()
		if err != nil {
			return err
		}
		if err := e.Patch(args[0], args[1], args[2]); err != nil {
			return err
		}
		return reportOutput(cmd, args[2])
	},
}

func newEncoder() (*delta.Encoder, error) {
	s, err := config.Current()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	logger, err := logging.New(logging.LevelFor(s.Verbose))
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	size := s.BlockSize
	if deltaBlockSize > 0 {
		size = deltaBlockSize
	}
	return delta.NewEncoder(afero.NewOsFs(), delta.WithBlockSize(size), delta.WithLogger(logger.Named("delta"))), nil
}

func reportOutput(cmd *cobra.Command, path string) error {
	info, err := afero.NewOsFs().Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", path, units.HumanSize(float64(info.Size())))
	return nil
}
