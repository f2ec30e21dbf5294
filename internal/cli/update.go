package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/shardstore/internal/object"
	"github.com/roach88/shardstore/internal/payload"
	"github.com/roach88/shardstore/internal/pool"
	"github.com/roach88/shardstore/internal/storeerr"
)

// UpdateOptions holds flags for the store and validate commands.
type UpdateOptions struct {
	*RootOptions
	Payload string
}

// NewStoreCommand creates the store command.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "store <type> <serial>",
		Short: "Write computed data columns into an existing object",
		Long: `Write the data columns of --payload into the object with the given serial.

Partitioned types also need their shard-key field in the payload so the
request reaches the right shard. Replicated types are updated on every shard.

Example:
  shardstore store ScalarModel 12 -p '{k_serial: 3, compute_time: 4.2, steps: 800}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, "store", args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Payload, "payload", "p", "", "data columns and shard key as a YAML or JSON mapping")
	_ = cmd.MarkFlagRequired("payload")

	return cmd
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <type> <serial>",
		Short: "Mark an object's computation as complete",
		Long: `Set the validation mark of the object with the given serial. Validated
objects survive prune passes and are reported as available.

Example:
  shardstore validate ScalarModel 12 -p '{k_serial: 3}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, "validate", args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Payload, "payload", "p", "", "shard key of partitioned types as a YAML or JSON mapping")

	return cmd
}

func runUpdate(opts *UpdateOptions, op string, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	typ := args[0]

	serial, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || serial <= 0 {
		return formatter.Fail(op, storeerr.InvalidPayload(typ, "serial must be a positive integer, got %q", args[1]))
	}

	pl := payload.Object{}
	if opts.Payload != "" {
		pl, err = parsePayload(typ, opts.Payload)
		if err != nil {
			return formatter.Fail("invalid payload", err)
		}
	}
	target := &object.Object{StoreID: serial, Type: typ, Payload: pl}

	return withPool(opts.RootOptions, cmd, keepPlaceholders, func(ctx context.Context, p *pool.Pool) error {
		var future *pool.Future[*object.Object]
		if op == "validate" {
			future = p.Validate(ctx, target)
		} else {
			future = p.Store(ctx, target)
		}
		obj, err := future.Await(ctx)
		if err != nil {
			return formatter.Fail(fmt.Sprintf("%s %s#%d", op, typ, serial), err)
		}
		return formatter.Success(objectList{obj})
	})
}
