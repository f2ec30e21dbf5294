package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/shardstore/internal/pool"
)

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove unvalidated placeholders left by earlier processes",
		Long: `Delete, on every shard, the unvalidated rows inserted by other process
generations: placeholders of computations that never finished.

Do not run while pipeline workers are writing to the datastore.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(rootOpts, cmd)
		},
	}

	return cmd
}

func runPrune(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	return withPool(opts, cmd, keepPlaceholders, func(ctx context.Context, p *pool.Pool) error {
		report, err := p.PruneUnvalidated(ctx)
		if err != nil {
			return formatter.Fail("prune", err)
		}
		return formatter.Success(pruneResult(report))
	})
}

// pruneResult is a PruneReport with a text rendering.
type pruneResult pool.PruneReport

func (r pruneResult) renderText(w io.Writer) error {
	shards := make([]int, 0, len(r.Removed))
	for i := range r.Removed {
		shards = append(shards, i)
	}
	slices.Sort(shards)

	for _, i := range shards {
		types := make([]string, 0, len(r.Removed[i]))
		for typ := range r.Removed[i] {
			types = append(types, typ)
		}
		slices.Sort(types)
		for _, typ := range types {
			if _, err := fmt.Fprintf(w, "shard %d: removed %d %s\n", i, r.Removed[i][typ], typ); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintf(w, "removed %d unvalidated object(s)\n", r.Total)
	return err
}
