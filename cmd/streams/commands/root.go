package commands

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags every command shares.
type globalOptions struct {
	configPath  string
	keyringPath string
	verbose     bool
}

// NewRootCmd builds the streams command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "streams",
		Short: "Streams - encrypted, ordered message trees",
		Long: `Streams keeps encrypted message trees in a shared Redis-backed graph.

Spaces group streams; streams hold messages that can be nested, reordered,
highlighted and edited. Every field is signed by its owner and encrypted
with the stream's keys, which are kept in a local keyring.`,
		// Prevent silent success when unknown flags are passed to root command
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !opts.verbose {
				log.SetOutput(io.Discard)
			} else {
				log.SetOutput(os.Stderr)
			}
		},
		// Enable strict flag parsing - unknown flags will cause an error
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "streams.yml", "Path to streams.yml")
	rootCmd.PersistentFlags().StringVar(&opts.keyringPath, "keyring", "", "Path to the keyring (overrides streams.yml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Write structured logs to stderr")

	rootCmd.AddCommand(
		newInitCmd(opts),
		newUpCmd(opts),
		newDownCmd(opts),
		newSpaceCmd(opts),
		newStreamCmd(opts),
		newPostCmd(opts),
		newImportCmd(opts),
		newAttachCmd(opts),
		newEditCmd(opts),
		newHighlightCmd(opts),
		newRmCmd(opts),
		newMoveCmd(opts),
		newIndentCmd(opts),
		newOutdentCmd(opts),
		newLsCmd(opts),
		newWatchCmd(opts),
		newMigrateCmd(opts),
	)
	return rootCmd
}

// Execute runs the command tree.
func Execute(rootCmd *cobra.Command) error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(rootCmd *cobra.Command, version, commit, date string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}
