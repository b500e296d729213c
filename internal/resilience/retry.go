// Package resilience retries per-product store writes that fail transiently.
package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/tier-ranker/internal/config"
)

// RetryConfig describes how one store write for one product is retried.
// Build the shared policy with FromWriteConfig and scope it with For.
type RetryConfig struct {
	Operation string
	ProductID string

	MaxAttempts    int           // total tries; 1 disables retries
	InitialBackoff time.Duration // doubled after every retry
	MaxBackoff     time.Duration
	BusyBackoff    time.Duration // floor on the wait after SQLite reports busy or locked
}

// FromWriteConfig builds the write-back retry policy. Zero fields fall back to defaults.
func FromWriteConfig(c config.WriteConfig) RetryConfig {
	return RetryConfig{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: time.Duration(c.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(c.MaxBackoffMs) * time.Millisecond,
		BusyBackoff:    time.Duration(c.BusyBackoffMs) * time.Millisecond,
	}.withDefaults()
}

// For scopes c to one operation on one product.
func (c RetryConfig) For(operation, productID string) RetryConfig {
	c.Operation, c.ProductID = operation, productID
	return c
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.BusyBackoff <= 0 {
		c.BusyBackoff = time.Second
	}
	if c.BusyBackoff > c.MaxBackoff {
		c.BusyBackoff = c.MaxBackoff
	}
	return c
}

// Do calls write until it succeeds or fails with an error Classify rejects.
// It gives up after MaxAttempts tries or once ctx is done, returning the last error.
func Do(ctx context.Context, c RetryConfig, write func(ctx context.Context) error) error {
	c = c.withDefaults()
	backoff := c.InitialBackoff

	for attempt := 1; ; attempt++ {
		err := write(ctx)
		if err == nil {
			return nil
		}
		reason := Classify(err)
		if reason == "" || attempt >= c.MaxAttempts || ctx.Err() != nil {
			return err
		}

		wait := c.wait(backoff, reason)
		zap.L().Warn("retrying store write",
			zap.String("operation", c.Operation),
			zap.String("product_id", c.ProductID),
			zap.Int("attempt", attempt),
			zap.String("reason", string(reason)),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		backoff = min(2*backoff, c.MaxBackoff)
	}
}

// wait jitters backoff by up to a quarter either way. A busy SQLite database
// waits at least BusyBackoff.
func (c RetryConfig) wait(backoff time.Duration, reason Reason) time.Duration {
	d := backoff
	if spread := backoff / 4; spread > 0 {
		d += rand.N(2*spread) - spread
	}
	if reason == ReasonSQLiteBusy && d < c.BusyBackoff {
		d = c.BusyBackoff
	}
	return min(d, c.MaxBackoff)
}
