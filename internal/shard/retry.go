package shard

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/shardstore/internal/storeerr"
)

// RetryPolicy bounds retries of transient shard failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

func (p *RetryPolicy) setDefaults() {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0 // bounded by attempts instead
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
}

// IsTransient reports whether err is a failure worth retrying: the database
// was busy or locked, or the connection went bad.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// retry runs op until it succeeds, fails permanently or exhausts the policy.
func (s *Shard) retry(ctx context.Context, op string, fn func() error) error {
	attempts := 0

	err := backoff.RetryNotify(func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, s.opts.Retry.backOff(ctx), func(err error, wait time.Duration) {
		s.logger.Debug("retrying transient shard failure",
			"op", op,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	})

	if err == nil {
		return nil
	}
	if IsTransient(err) {
		s.logger.Warn("shard unavailable", "op", op, "attempts", attempts, "error", err)
		return storeerr.Unavailable(s.index, attempts, err)
	}
	return err
}
