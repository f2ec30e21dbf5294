package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/shardstore/internal/config"
	"github.com/roach88/shardstore/internal/pool"
)

// loadConfig reads --config (or the defaults) and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		cfg, err = config.Load(opts.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
	}

	if opts.Datastore != "" {
		cfg.Datastore = opts.Datastore
	}
	if opts.Shards != 0 {
		cfg.Shards = opts.Shards
	}
	if opts.JobName != "" {
		cfg.JobName = opts.JobName
	}
	if opts.ProfileTarget != "" {
		cfg.Profile.Target = opts.ProfileTarget
	}
	return cfg, cfg.Check()
}

// newLogger builds the stderr text logger. --verbose lowers the level to debug.
func newLogger(opts *RootOptions, cmd *cobra.Command) *slog.Logger {
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// keepPlaceholders disables the prune pass at open. Commands other than
// init and prune must not remove placeholders that a running pipeline, or
// an earlier get, is about to fill.
func keepPlaceholders(cfg *config.Config) {
	cfg.PruneUnvalidated = false
}

// withPool opens the configured datastore, runs fn and closes the pool.
// SIGINT and SIGTERM cancel the context handed to fn.
func withPool(opts *RootOptions, cmd *cobra.Command, mutate func(*config.Config), fn func(context.Context, *pool.Pool) error) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		return formatter.Fail("invalid configuration", err)
	}
	if mutate != nil {
		mutate(&cfg)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(opts, cmd)
	formatter.VerboseLog("opening datastore %s", cfg.Datastore)

	var opErr error
	err = pool.With(ctx, cfg, func(p *pool.Pool) error {
		formatter.VerboseLog("generation %s, %d shard(s)", p.Generation(), p.ShardCount())
		opErr = fn(ctx, p)
		return opErr
	}, pool.WithLogger(logger))

	switch {
	case opErr != nil:
		// fn already reported it
		return opErr
	case err != nil:
		return formatter.Fail("datastore", err)
	}
	return nil
}
