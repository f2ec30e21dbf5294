package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// ConfigPath names a YAML configuration file. Empty means defaults.
	ConfigPath string

	// Overrides applied on top of the loaded configuration when set.
	Datastore     string
	Shards        int
	JobName       string
	ProfileTarget string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the shardstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "shardstore",
		Short: "Sharded deduplicating object store",
		Long: `Operate a shardstore datastore: a directory of SQLite shards holding
deduplicated pipeline records.

Replicated types carry the same serial on every shard. Partitioned types
live on the one shard their shard key hashes to.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML configuration")
	flags.StringVar(&opts.Datastore, "datastore", "", "datastore directory (overrides config)")
	flags.IntVar(&opts.Shards, "shards", 0, "shard count for a new datastore (overrides config)")
	flags.StringVar(&opts.JobName, "job-name", "", "job name for profile labels (overrides config)")
	flags.StringVar(&opts.ProfileTarget, "profile", "", "profile sink: SQLite path or redis:// URL (overrides config)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewStoreCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewReadCommand(opts))
	cmd.AddCommand(NewPruneCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // keeps JSON on stdout parseable
		Verbose:   opts.Verbose,
	}
}
