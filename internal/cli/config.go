package cli

import (
	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after loading --config over the defaults and
applying flag overrides. The configuration is checked against the built-in
object types and shard-key rules before printing.

Example:
  shardstore config > shardstore.yaml
  shardstore config -c shardstore.yaml --shards 8 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(rootOpts, cmd)
		},
	}

	return cmd
}

func runConfig(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		return formatter.Fail("invalid configuration", err)
	}
	if opts.Format == "json" {
		return formatter.Success(cfg)
	}

	out, err := cfg.YAML()
	if err != nil {
		return formatter.Fail("render configuration", err)
	}
	_, err = formatter.Writer.Write(out)
	return err
}
