package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/shardstore/internal/payload"
	"github.com/roach88/shardstore/internal/pool"
	"github.com/roach88/shardstore/internal/storeerr"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Payloads []string
	File     string
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <type>",
		Short: "Find or create objects",
		Long: `Find the stored object matching each payload's key fields, or create it.

Payloads are YAML or JSON mappings. Each one is resolved independently and
reported with its serial, shard and provenance.

Example:
  shardstore get redshift -p '{z: 0.5}' -p '{z: 1.0}'
  shardstore get ScalarModel -f models.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Payloads, "payload", "p", nil, "payload mapping (repeatable)")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "YAML file with a mapping or a list of mappings")

	return cmd
}

func runGet(opts *GetOptions, typ string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var payloads []payload.Object
	for _, text := range opts.Payloads {
		p, err := parsePayload(typ, text)
		if err != nil {
			return formatter.Fail("invalid payload", err)
		}
		payloads = append(payloads, p)
	}
	if opts.File != "" {
		fromFile, err := readPayloadFile(typ, opts.File)
		if err != nil {
			return formatter.Fail("invalid payload file", err)
		}
		payloads = append(payloads, fromFile...)
	}
	if len(payloads) == 0 {
		return formatter.Fail("get", storeerr.InvalidPayload(typ, "no payloads: use --payload or --file"))
	}

	return withPool(opts.RootOptions, cmd, keepPlaceholders, func(ctx context.Context, p *pool.Pool) error {
		objs, err := pool.AwaitAll(ctx, p.GetMany(ctx, typ, payloads))
		if err != nil {
			return formatter.Fail("get "+typ, err)
		}
		return formatter.Success(objectList(objs))
	})
}
