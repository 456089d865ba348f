// Package telemetry polls the agent for liveness and resource stats on a fixed interval
// and hands each result to the session controller.
package telemetry

import (
	"context"
	"time"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/agentlink"
	"github.com/f9-o/agentdeck/internal/core/logger"
	"github.com/f9-o/agentdeck/pkg/errs"
)

// DefaultInterval is used when the configured interval is zero.
const DefaultInterval = 2 * time.Second

// Report is the outcome of one poll tick.
type Report struct {
	Generation uint64 // controller generation the poll started under
	At         time.Time
	Online     bool
	Err        error           // set when the health probe failed
	Stats      *v1.SystemStats // nil when offline or the stats call failed
	StatsErr   error
}

// Sink receives reports. The controller implements it.
type Sink interface {
	// Generation returns the current configuration generation. Safe for concurrent use.
	Generation() uint64
	// ApplyTelemetry queues a report. It must not block for long.
	ApplyTelemetry(Report)
}

// Poller probes the agent continuously.
type Poller struct {
	link     agentlink.Link
	interval time.Duration
	log      *logger.Logger
}

// NewPoller constructs a Poller.
func NewPoller(link agentlink.Link, interval time.Duration, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Poller{link: link, interval: interval, log: log.With("component", "telemetry")}
}

// Interval returns the tick period.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// PollOnce runs a single health-then-stats probe. Stats are only requested
// when the agent answered the health check.
func (p *Poller) PollOnce(ctx context.Context) Report {
	r := Report{At: time.Now().UTC()}

	if err := p.link.CheckHealth(ctx); err != nil {
		r.Err = err
		return r
	}
	r.Online = true

	stats, err := p.link.GetSystemStats(ctx)
	if err != nil {
		r.StatsErr = err
		return r
	}
	r.Stats = &stats
	return r
}

// Run polls immediately and then on every tick until ctx is cancelled.
// A tick that fires while a poll is running is coalesced by the ticker.
func (p *Poller) Run(ctx context.Context, sink Sink) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	failCount := 0
	p.tick(ctx, sink, &failCount)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, sink, &failCount)
		}
	}
}

func (p *Poller) tick(ctx context.Context, sink Sink, failCount *int) {
	gen := sink.Generation()
	r := p.PollOnce(ctx)
	if ctx.Err() != nil {
		return
	}
	r.Generation = gen

	switch {
	case r.Err != nil:
		*failCount++
		if *failCount == 1 {
			p.log.Warn("agent offline", "err", errs.Describe(r.Err))
		} else {
			p.log.Debug("agent poll miss", "fail_count", *failCount, "err", errs.Describe(r.Err))
		}
	default:
		if *failCount > 0 {
			p.log.Info("agent recovered", "after_failures", *failCount)
		}
		*failCount = 0
		if r.StatsErr != nil {
			p.log.Debug("stats unavailable", "err", errs.Describe(r.StatsErr))
		}
	}

	sink.ApplyTelemetry(r)
}
