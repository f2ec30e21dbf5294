package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/shardstore/internal/pool"
	"github.com/roach88/shardstore/internal/router"
	"github.com/roach88/shardstore/internal/shard"
)

// InitResult describes an opened datastore.
type InitResult struct {
	Datastore     string            `json:"datastore"`
	Shards        int               `json:"shards"`
	Generation    string            `json:"generation"`
	VersionSerial int64             `json:"version_serial,omitempty"`
	Types         []string          `json:"types"`
	Meta          map[string]string `json:"meta"`
}

func (r InitResult) renderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "datastore %s ready: %d shard(s), %d type(s), created %s\n",
		r.Datastore, r.Shards, len(r.Types), r.Meta[shard.MetaCreatedAt])
	return err
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or upgrade a datastore",
		Long: `Create the datastore directory and every shard file, run schema
migrations and record the version row.

An existing datastore keeps the shard count it was created with; --shards
only applies to new datastores. Unvalidated placeholders of earlier
processes are pruned when the configuration asks for it.

Example:
  shardstore init --datastore ./datastore --shards 20`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd)
		},
	}

	return cmd
}

func runInit(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	return withPool(opts, cmd, nil, func(ctx context.Context, p *pool.Pool) error {
		meta, err := p.Shard(router.Leader).Meta(ctx)
		if err != nil {
			return formatter.Fail("init", err)
		}
		return formatter.Success(InitResult{
			Datastore:     p.Config().Datastore,
			Shards:        p.ShardCount(),
			Generation:    p.Generation(),
			VersionSerial: p.VersionSerial(),
			Types:         p.Registry().Names(),
			Meta:          meta,
		})
	})
}
