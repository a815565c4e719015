package broker

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/corpus/internal/observability"
	"github.com/haasonsaas/corpus/internal/retry"
)

// ReconnectConfig controls how the worker re-establishes its broker
// connection after a dropped connection.
type ReconnectConfig struct {
	// MaxAttempts bounds consecutive failed attempts. Zero selects the
	// defaults wholesale; negative retries forever.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	Jitter       bool
	// StableAfter is how long a connection must hold before a later
	// drop resets the attempt counter. Zero disables the reset.
	StableAfter time.Duration
}

// DefaultReconnectConfig returns the baseline reconnection policy.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2,
		Jitter:       true,
		StableAfter:  time.Minute,
	}
}

// RunWithReconnect runs the consumer and re-dials after transient
// connection failures with capped exponential backoff. It returns nil
// when Run exits cleanly (graceful drain), the last error once
// MaxAttempts consecutive failures accumulate, and immediately on
// context errors or errors marked permanent.
func (c *Consumer) RunWithReconnect(ctx context.Context, cfg ReconnectConfig) error {
	return runWithReconnect(ctx, cfg, c.logger, c.Run)
}

func runWithReconnect(ctx context.Context, cfg ReconnectConfig, logger *observability.Logger, run func(context.Context) error) error {
	if run == nil {
		return errors.New("reconnect: run func is nil")
	}
	def := DefaultReconnectConfig()
	if cfg.MaxAttempts == 0 {
		cfg = def
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Factor <= 0 {
		cfg.Factor = def.Factor
	}

	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		started := time.Now()
		err := run(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if retry.IsPermanent(err) {
			return err
		}
		if cfg.StableAfter > 0 && time.Since(started) >= cfg.StableAfter {
			// The connection held for a while before dropping; count the
			// next dial as a fresh first attempt.
			attempt = 0
		}
		attempt++
		if logger != nil {
			logger.Warn(ctx, "broker connection lost, reconnecting",
				"attempt", attempt,
				"error", err,
			)
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return err
		}
		delay := retry.Backoff(attempt, cfg.InitialDelay, cfg.MaxDelay, cfg.Factor)
		if cfg.Jitter {
			delay = retry.BackoffWithJitter(attempt, cfg.InitialDelay, cfg.MaxDelay, cfg.Factor)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
