package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/shardstore/internal/factory"
	"github.com/roach88/shardstore/internal/pool"
)

// ReadOptions holds flags for the read command.
type ReadOptions struct {
	*RootOptions
	ShardKey      int64
	OnlyValidated bool
	Limit         int
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "read <type>",
		Short: "List stored objects in sort order",
		Long: `List the stored objects of one type in their natural sort order.

Replicated types are read from the leader shard. Partitioned types are read
from every shard and merged, or from one shard with --shard-key.

Example:
  shardstore read redshift
  shardstore read ScalarModel --shard-key 3 --validated --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.ShardKey, "shard-key", 0, "read only the shard this key routes to")
	cmd.Flags().BoolVar(&opts.OnlyValidated, "validated", false, "skip objects without a validation mark")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "stop after this many objects (0 = all)")

	return cmd
}

func runRead(opts *ReadOptions, typ string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	filter := factory.Filter{OnlyValidated: opts.OnlyValidated}
	if cmd.Flags().Changed("shard-key") {
		key := opts.ShardKey
		filter.ShardKey = &key
	}

	return withPool(opts.RootOptions, cmd, keepPlaceholders, func(ctx context.Context, p *pool.Pool) error {
		out := objectList{}
		for obj, err := range p.ReadMany(ctx, typ, filter) {
			if err != nil {
				return formatter.Fail("read "+typ, err)
			}
			out = append(out, obj)
			if opts.Limit > 0 && len(out) == opts.Limit {
				break
			}
		}
		formatter.VerboseLog("read %d %s object(s)", len(out), typ)
		return formatter.Success(out)
	})
}
