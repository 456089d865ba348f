// Package session owns the single authoritative SessionState.
//
// One actor goroutine drains an event queue holding user intents and telemetry
// reports in arrival order, so every state transition has exactly one writer.
// Views read copies through State or Subscribe and talk back only through intents.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/agentlink"
	"github.com/f9-o/agentdeck/internal/core/logger"
	"github.com/f9-o/agentdeck/internal/telemetry"
	"github.com/f9-o/agentdeck/pkg/errs"
)

// queueSize bounds the number of pending intents and reports.
const queueSize = 64

var errStopped = errs.New(errs.ErrInternal, "session", errors.New("controller stopped"))

// Store is the persistence the controller needs.
type Store interface {
	Load() v1.DeploymentConfig
	Save(cfg v1.DeploymentConfig) error
	Reset() error
	PutTunnelEvent(ev v1.TunnelEvent) error
}

// Options configures a Controller.
type Options struct {
	Store    Store
	Link     agentlink.Link
	Log      *logger.Logger
	Provider string        // tunnel provider, defaults to cloudflare
	Interval time.Duration // telemetry tick, defaults to telemetry.DefaultInterval

	// DisableTelemetry skips the poller, e.g. for one-shot CLI commands.
	DisableTelemetry bool
}

type event struct {
	intent func(ctx context.Context) error
	report *telemetry.Report
	reply  chan error
}

// Controller is the session state machine.
type Controller struct {
	store    Store
	link     agentlink.Link
	poller   *telemetry.Poller
	provider string
	log      *logger.Logger

	events chan event
	gen    atomic.Uint64

	st v1.SessionState // owned by the actor goroutine

	mu   sync.RWMutex
	snap v1.SessionState

	subMu   sync.Mutex
	subs    map[int]chan v1.SessionState
	nextSub int
	stopped bool // guarded by subMu

	lifeMu  sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// New builds a controller from the persisted configuration. It does not start
// any goroutines; call Start.
func New(opts Options) (*Controller, error) {
	if opts.Store == nil || opts.Link == nil {
		return nil, errs.Newf(errs.ErrInternal, "session.new", "store and link are required")
	}
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	if opts.Provider == "" {
		opts.Provider = v1.ProviderCloudflare
	}

	c := &Controller{
		store:    opts.Store,
		link:     opts.Link,
		provider: opts.Provider,
		events:   make(chan event, queueSize),
		subs:     make(map[int]chan v1.SessionState),
	}

	cfg := opts.Store.Load()
	c.st = v1.SessionState{
		SessionID: uuid.NewString(),
		Phase:     v1.PhaseUnconfigured,
		UIMode:    v1.UIOnboarding,
		Config:    cfg,
	}
	if cfg.Configured() {
		c.st.Phase = v1.PhaseConfigured
		c.st.UIMode = v1.UIDashboard
	}
	c.log = opts.Log.With("component", "session", "session", c.st.SessionID)
	c.snap = c.st.Clone()

	if !opts.DisableTelemetry {
		c.poller = telemetry.NewPoller(opts.Link, opts.Interval, opts.Log)
	}
	return c, nil
}

// Start launches the actor and, unless disabled, the telemetry poller.
func (c *Controller) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.running.Load() {
		return nil
	}

	c.log.Info("session started",
		"phase", c.st.Phase,
		"mode", c.st.Config.Mode,
		"telemetry", c.poller != nil,
	)

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running.Store(true)
	c.subMu.Lock()
	c.stopped = false
	c.subMu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop()
	}()

	if c.poller != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.poller.Run(c.ctx, c)
		}()
	}

	return nil
}

// Stop cancels the actor and poller, waits for them and closes all subscriptions.
func (c *Controller) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if !c.running.Load() {
		return
	}
	c.cancel()
	c.wg.Wait()
	c.running.Store(false)

	c.subMu.Lock()
	c.stopped = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subMu.Unlock()
	c.log.Info("session stopped")
}

// State returns a copy of the latest published snapshot.
func (c *Controller) State() v1.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Clone()
}

// Subscribe returns a channel that always holds the most recent snapshot and a
// func that ends the subscription. The current state is delivered immediately.
// After Stop the channel holds that state and is already closed.
func (c *Controller) Subscribe() (<-chan v1.SessionState, func()) {
	ch := make(chan v1.SessionState, 1)

	c.subMu.Lock()
	if c.stopped {
		ch <- c.State()
		close(ch)
		c.subMu.Unlock()
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	ch <- c.State()
	c.subs[id] = ch
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Generation implements telemetry.Sink.
func (c *Controller) Generation() uint64 {
	return c.gen.Load()
}

// ApplyTelemetry implements telemetry.Sink by queueing the report for the actor.
func (c *Controller) ApplyTelemetry(r telemetry.Report) {
	select {
	case c.events <- event{report: &r}:
	case <-c.ctx.Done():
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Actor
// ─────────────────────────────────────────────────────────────────────────────

func (c *Controller) loop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			if ev.report != nil {
				c.applyReport(*ev.report)
			} else {
				ev.reply <- ev.intent(c.ctx)
			}
			c.publish()
		}
	}
}

// submit runs fn on the actor and waits for its result.
func (c *Controller) submit(ctx context.Context, fn func(ctx context.Context) error) error {
	if !c.running.Load() {
		return errs.Newf(errs.ErrInternal, "session", "controller is not running")
	}
	ev := event{intent: fn, reply: make(chan error, 1)}

	select {
	case c.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return errStopped
	}

	select {
	case err := <-ev.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return errStopped
	}
}

func (c *Controller) applyReport(r telemetry.Report) {
	if r.Generation != c.gen.Load() {
		c.log.Debug("discarding stale telemetry", "report_gen", r.Generation, "current_gen", c.gen.Load())
		return
	}

	c.st.LastPollAt = r.At
	if r.Err != nil {
		c.st.AgentOnline = false
		c.st.LastError = errs.Describe(r.Err)
		return
	}

	c.st.AgentOnline = true
	c.st.LastError = ""
	if r.Stats == nil {
		return
	}
	stats := *r.Stats
	if c.st.Config.Mode != v1.ModeCloud {
		stats.Managed = nil
	}
	c.st.Stats = &stats
	c.st.StatsUpdatedAt = r.At
}

// publish copies the actor state into the shared snapshot and fans it out.
// A subscriber that has not consumed the previous snapshot gets it replaced.
func (c *Controller) publish() {
	snap := c.st.Clone()

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		s := snap.Clone()
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}
