// Package health provides readiness probes around the agent: waiting for the
// agent to answer /health and checking that local ports accept connections.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/f9-o/agentdeck/internal/core/logger"
)

// DefaultInterval is the wait between readiness attempts.
const DefaultInterval = 2 * time.Second

// DefaultTimeout bounds a single TCP probe.
const DefaultTimeout = 2 * time.Second

// Prober is the part of the Agent Link WaitAgent needs.
type Prober interface {
	CheckHealth(ctx context.Context) error
}

// Checker runs readiness probes.
type Checker struct {
	log      *logger.Logger
	interval time.Duration
}

// NewChecker constructs a Checker. interval ≤ 0 uses DefaultInterval.
func NewChecker(interval time.Duration, log *logger.Logger) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Checker{log: log, interval: interval}
}

// WaitAgent polls the agent's health endpoint until it answers or ctx ends.
// The returned error wraps the last probe failure.
func (c *Checker) WaitAgent(ctx context.Context, p Prober) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(c.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("agent not ready after %d attempts: %w", attempt, lastErr)
			case <-timer.C:
			}
		}

		lastErr = p.CheckHealth(ctx)
		if lastErr == nil {
			c.log.Info("agent ready", "attempt", attempt+1)
			return nil
		}
		c.log.Debug("agent not ready", "attempt", attempt+1, "err", lastErr)

		if ctx.Err() != nil {
			return fmt.Errorf("agent not ready after %d attempts: %w", attempt+1, lastErr)
		}
	}
}
