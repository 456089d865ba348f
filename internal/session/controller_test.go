package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/agentlink"
	"github.com/f9-o/agentdeck/internal/core/logger"
	"github.com/f9-o/agentdeck/internal/telemetry"
	"github.com/f9-o/agentdeck/pkg/errs"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeStore struct {
	mu     sync.Mutex
	cfg    v1.DeploymentConfig
	saves  int
	events []v1.TunnelEvent
}

func (s *fakeStore) Load() v1.DeploymentConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *fakeStore) Save(cfg v1.DeploymentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.saves++
	return nil
}

func (s *fakeStore) Reset() error {
	return s.Save(v1.DeploymentConfig{})
}

func (s *fakeStore) PutTunnelEvent(ev v1.TunnelEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

type fakeLink struct {
	mu         sync.Mutex
	healthErr  error
	stats      v1.SystemStats
	statsErr   error
	startErr   error
	stopErr    error
	starts     []agentlink.TunnelStartRequest
	stops      int
	statsCalls int
}

func (f *fakeLink) CheckHealth(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthErr
}

func (f *fakeLink) GetSystemStats(context.Context) (v1.SystemStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	return f.stats, f.statsErr
}

func (f *fakeLink) StartTunnel(_ context.Context, req agentlink.TunnelStartRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	return f.startErr
}

func (f *fakeLink) StopTunnel(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func (f *fakeLink) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts) + f.stops
}

func newController(t *testing.T, cfg v1.DeploymentConfig) (*Controller, *fakeStore, *fakeLink) {
	t.Helper()
	store := &fakeStore{cfg: cfg}
	link := &fakeLink{}
	c, err := New(Options{Store: store, Link: link, DisableTelemetry: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(c.Stop)
	return c, store, link
}

// settle waits until every event queued before it has been applied.
func settle(t *testing.T, c *Controller) {
	t.Helper()
	if err := c.submit(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("settle: %v", err)
	}
}

var (
	standaloneCfg = v1.DeploymentConfig{Mode: v1.ModeStandalone, APIPort: 8080, MeshPort: 8081}
	cloudCfg      = v1.DeploymentConfig{Mode: v1.ModeCloud, Credential: "tok", NodeID: "node-1"}
	ctx           = context.Background()
)

// ─────────────────────────────────────────────────────────────────────────────
// Tunnel toggle
// ─────────────────────────────────────────────────────────────────────────────

func TestToggleTunnel_StandaloneStartStop(t *testing.T) {
	c, store, link := newController(t, standaloneCfg)

	if err := c.ToggleTunnel(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !c.State().TunnelActive {
		t.Fatal("expected tunnel active after start")
	}
	if len(link.starts) != 1 || link.starts[0].LocalPort != 8081 || link.starts[0].Token != "" {
		t.Errorf("unexpected start request %+v", link.starts)
	}
	if link.starts[0].Provider != v1.ProviderCloudflare {
		t.Errorf("expected default provider, got %q", link.starts[0].Provider)
	}

	if err := c.ToggleTunnel(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if c.State().TunnelActive {
		t.Fatal("expected tunnel inactive after stop")
	}
	if link.stops != 1 {
		t.Errorf("expected one stop call, got %d", link.stops)
	}
	if len(store.events) != 2 || store.events[0].Action != "start" || store.events[1].Action != "stop" {
		t.Errorf("unexpected tunnel history %+v", store.events)
	}
}

func TestToggleTunnel_CloudWithoutCredentialOpensSettings(t *testing.T) {
	c, _, link := newController(t, v1.DeploymentConfig{Mode: v1.ModeCloud, NodeID: "n1"})

	if err := c.ToggleTunnel(ctx); err != nil {
		t.Fatalf("ToggleTunnel: %v", err)
	}
	st := c.State()
	if st.UIMode != v1.UISettings {
		t.Errorf("expected settings, got %s", st.UIMode)
	}
	if st.TunnelActive {
		t.Error("tunnel must remain inactive")
	}
	if st.Draft == nil {
		t.Error("expected a draft to be opened")
	}
	if _, ok := st.FieldErrors[FieldToken]; !ok {
		t.Errorf("expected token field error, got %v", st.FieldErrors)
	}
	if n := link.calls(); n != 0 {
		t.Errorf("expected no agent calls, got %d", n)
	}
}

func TestToggleTunnel_StartFailureKeepsInactive(t *testing.T) {
	c, store, link := newController(t, cloudCfg)
	link.startErr = errs.New(errs.ErrTunnelStart, "agentlink.tunnel_start", errors.New("tunnel already running (status 409)"))

	err := c.ToggleTunnel(ctx)
	if !errs.IsCode(err, errs.ErrTunnelStart) {
		t.Fatalf("expected TunnelStartFailed, got %v", err)
	}
	st := c.State()
	if st.TunnelActive {
		t.Error("tunnel must remain inactive after failed start")
	}
	want := "TunnelStartFailed: tunnel already running (status 409)"
	if st.LastError != want || st.TunnelError != want {
		t.Errorf("unexpected errors last=%q tunnel=%q", st.LastError, st.TunnelError)
	}
	if len(store.events) != 1 || store.events[0].Result != "failure" {
		t.Errorf("expected failed event, got %+v", store.events)
	}
	if link.starts[0].Token != "tok" || link.starts[0].LocalPort != 0 {
		t.Errorf("unexpected cloud start request %+v", link.starts[0])
	}
}

func TestToggleTunnel_RejectedOutsideDashboard(t *testing.T) {
	c, _, link := newController(t, v1.DeploymentConfig{})

	before := c.State()
	err := c.ToggleTunnel(ctx)
	if !errs.IsCode(err, errs.ErrIntentRejected) {
		t.Fatalf("expected IntentRejected, got %v", err)
	}
	after := c.State()
	if after.UIMode != before.UIMode || after.Phase != before.Phase {
		t.Error("rejected intent must not change state")
	}
	if link.calls() != 0 {
		t.Error("rejected intent must not call the agent")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Telemetry
// ─────────────────────────────────────────────────────────────────────────────

func TestTelemetry_OfflineThenRecovery(t *testing.T) {
	c, _, link := newController(t, standaloneCfg)
	p := telemetry.NewPoller(link, time.Second, nil)

	link.healthErr = errs.New(errs.ErrAgentUnreachable, "agentlink.health", errors.New("timeout"))
	r := p.PollOnce(ctx)
	r.Generation = c.Generation()
	c.ApplyTelemetry(r)
	settle(t, c)

	st := c.State()
	if st.AgentOnline || st.LastError != "AgentUnreachable: timeout" {
		t.Fatalf("unexpected offline state online=%v err=%q", st.AgentOnline, st.LastError)
	}

	link.healthErr = nil
	link.stats = v1.SystemStats{CPUUsagePercent: 5}
	before := link.statsCalls
	r = p.PollOnce(ctx)
	r.Generation = c.Generation()
	c.ApplyTelemetry(r)
	settle(t, c)

	st = c.State()
	if !st.AgentOnline || st.LastError != "" {
		t.Fatalf("unexpected recovered state online=%v err=%q", st.AgentOnline, st.LastError)
	}
	if link.statsCalls-before != 1 {
		t.Errorf("expected exactly one stats call, got %d", link.statsCalls-before)
	}
	if st.Stats == nil || st.Stats.CPUUsagePercent != 5 {
		t.Errorf("expected stats to be published, got %+v", st.Stats)
	}
}

func TestTelemetry_StatsFailureKeepsOnlineAndStats(t *testing.T) {
	c, _, _ := newController(t, standaloneCfg)

	c.ApplyTelemetry(telemetry.Report{Online: true, Stats: &v1.SystemStats{CPUUsagePercent: 40}})
	c.ApplyTelemetry(telemetry.Report{Online: true, StatsErr: errs.Newf(errs.ErrStatsUnavailable, "agentlink.stats", "boom")})
	settle(t, c)

	st := c.State()
	if !st.AgentOnline {
		t.Error("stats failure must not flip agentOnline")
	}
	if st.Stats == nil || st.Stats.CPUUsagePercent != 40 {
		t.Errorf("previous stats must be kept, got %+v", st.Stats)
	}
}

func TestTelemetry_OfflineKeepsPreviousStats(t *testing.T) {
	c, _, _ := newController(t, standaloneCfg)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	c.ApplyTelemetry(telemetry.Report{At: t0, Online: true, Stats: &v1.SystemStats{CPUUsagePercent: 33}})
	c.ApplyTelemetry(telemetry.Report{
		At:  t0.Add(2 * time.Second),
		Err: errs.New(errs.ErrAgentUnreachable, "agentlink.health", errors.New("connection refused")),
	})
	settle(t, c)

	st := c.State()
	if st.AgentOnline {
		t.Error("failed health check must mark the agent offline")
	}
	if st.LastError == "" {
		t.Error("expected lastError to be set")
	}
	if st.Stats == nil || st.Stats.CPUUsagePercent != 33 {
		t.Errorf("stats changed after offline tick: %+v", st.Stats)
	}
	if !st.StatsUpdatedAt.Equal(t0) {
		t.Errorf("statsUpdatedAt = %v, want %v", st.StatsUpdatedAt, t0)
	}
	if !st.LastPollAt.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("lastPollAt = %v, want the offline tick", st.LastPollAt)
	}
}

func TestTelemetry_StaleGenerationDiscarded(t *testing.T) {
	c, _, _ := newController(t, standaloneCfg)
	stale := c.Generation()

	if err := c.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	c.ApplyTelemetry(telemetry.Report{
		Generation: stale,
		Err:        errs.Newf(errs.ErrAgentUnreachable, "agentlink.health", "timeout"),
	})
	settle(t, c)

	if st := c.State(); st.LastError != "" || !st.LastPollAt.IsZero() {
		t.Errorf("stale report was applied: %+v", st)
	}
}

func TestTelemetry_ManagedCountsOnlyInCloud(t *testing.T) {
	managed := &v1.ManagedCounts{Apps: v1.StatusCounts{Active: 3}}

	c, _, _ := newController(t, standaloneCfg)
	c.ApplyTelemetry(telemetry.Report{Online: true, Stats: &v1.SystemStats{Managed: managed}})
	settle(t, c)
	if c.State().Stats.Managed != nil {
		t.Error("managed counts must be stripped in standalone mode")
	}

	cc, _, _ := newController(t, cloudCfg)
	cc.ApplyTelemetry(telemetry.Report{Online: true, Stats: &v1.SystemStats{Managed: managed}})
	settle(t, cc)
	if m := cc.State().Stats.Managed; m == nil || m.Apps.Active != 3 {
		t.Errorf("expected managed counts in cloud mode, got %+v", m)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────────────────────

func TestSaveSettings_ValidationFailureKeepsConfig(t *testing.T) {
	c, store, _ := newController(t, standaloneCfg)
	savesBefore := store.saves

	if err := c.OpenSettings(ctx); err != nil {
		t.Fatal(err)
	}
	for field, value := range map[string]string{FieldMode: "cloud", FieldToken: "", FieldNodeID: "n1"} {
		if err := c.UpdateField(ctx, field, value); err != nil {
			t.Fatalf("UpdateField(%s): %v", field, err)
		}
	}

	err := c.SaveSettings(ctx)
	if !errs.IsCode(err, errs.ErrValidation) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
	st := c.State()
	if st.Config != standaloneCfg {
		t.Errorf("config changed: %+v", st.Config)
	}
	if st.UIMode != v1.UISettings {
		t.Errorf("expected to stay in settings, got %s", st.UIMode)
	}
	if st.FieldErrors[FieldToken] == "" {
		t.Errorf("expected token field error, got %v", st.FieldErrors)
	}
	if store.saves != savesBefore {
		t.Error("invalid draft must not be persisted")
	}
}

func TestSaveSettings_ModeChangeWithActiveTunnelWarns(t *testing.T) {
	var logs bytes.Buffer
	c, err := New(Options{
		Store:            &fakeStore{cfg: standaloneCfg},
		Link:             &fakeLink{},
		Log:              logger.New(slog.New(slog.NewTextHandler(&logs, nil)), nil),
		DisableTelemetry: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	if err := c.ToggleTunnel(ctx); err != nil {
		t.Fatalf("ToggleTunnel: %v", err)
	}
	if err := c.OpenSettings(ctx); err != nil {
		t.Fatal(err)
	}
	for _, kv := range [][2]string{{FieldMode, "cloud"}, {FieldToken, "tok"}, {FieldNodeID, "node-1"}} {
		if err := c.UpdateField(ctx, kv[0], kv[1]); err != nil {
			t.Fatalf("UpdateField(%s): %v", kv[0], err)
		}
	}
	if err := c.SaveSettings(ctx); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	if !c.State().TunnelActive {
		t.Error("save must not stop the tunnel")
	}
	if !strings.Contains(logs.String(), "tunnel still running") {
		t.Errorf("expected a warning about the running tunnel, logs:\n%s", logs.String())
	}
}

func TestSaveSettings_PersistsAndReturnsToDashboard(t *testing.T) {
	c, store, _ := newController(t, v1.DeploymentConfig{Mode: v1.ModeCloud, NodeID: "n1"})
	gen := c.Generation()

	if err := c.OpenSettings(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateField(ctx, "credential", "secret"); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateField(ctx, "workerId", "worker-9"); err != nil {
		t.Fatal(err)
	}
	if err := c.SaveSettings(ctx); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	st := c.State()
	if st.UIMode != v1.UIDashboard || st.Draft != nil {
		t.Errorf("expected dashboard without draft, got %s draft=%v", st.UIMode, st.Draft)
	}
	want := v1.DeploymentConfig{Mode: v1.ModeCloud, Credential: "secret", NodeID: "worker-9"}
	if st.Config != want || store.Load() != want {
		t.Errorf("config not applied: state=%+v store=%+v", st.Config, store.Load())
	}
	if c.Generation() == gen {
		t.Error("expected generation bump on config change")
	}
}

func TestUpdateField_Errors(t *testing.T) {
	c, _, _ := newController(t, standaloneCfg)
	if err := c.OpenSettings(ctx); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		field, value string
	}{
		{"bogus", "x"},
		{FieldAPIPort, "80"},
		{FieldMeshPort, "not-a-port"},
		{FieldMode, "hybrid"},
	}
	for _, tt := range tests {
		err := c.UpdateField(ctx, tt.field, tt.value)
		if !errs.IsCode(err, errs.ErrValidation) {
			t.Errorf("UpdateField(%s=%s): expected ValidationFailed, got %v", tt.field, tt.value, err)
		}
		if c.State().FieldErrors[tt.field] == "" {
			t.Errorf("expected field error for %s", tt.field)
		}
	}
	if d := c.State().Draft; d.APIPort != 8080 || d.Mode != v1.ModeStandalone {
		t.Errorf("invalid input must not change the draft: %+v", d)
	}
}

func TestCancelSettings_DiscardsDraft(t *testing.T) {
	c, _, _ := newController(t, standaloneCfg)
	if err := c.OpenSettings(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateField(ctx, FieldMeshPort, "9000"); err != nil {
		t.Fatal(err)
	}
	if err := c.CancelSettings(ctx); err != nil {
		t.Fatal(err)
	}
	st := c.State()
	if st.UIMode != v1.UIDashboard || st.Draft != nil || st.Config.MeshPort != 8081 {
		t.Errorf("cancel did not discard draft: %+v", st)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Onboarding and reset
// ─────────────────────────────────────────────────────────────────────────────

func TestCompleteOnboarding(t *testing.T) {
	c, store, _ := newController(t, v1.DeploymentConfig{})

	err := c.CompleteOnboarding(ctx, v1.DeploymentConfig{Mode: v1.ModeCloud, Credential: "tok"})
	if !errs.IsCode(err, errs.ErrValidation) {
		t.Fatalf("expected ValidationFailed for missing nodeId, got %v", err)
	}
	if st := c.State(); st.Phase != v1.PhaseUnconfigured || st.UIMode != v1.UIOnboarding {
		t.Fatalf("failed onboarding must stay unconfigured: %+v", st)
	}

	if err := c.CompleteOnboarding(ctx, v1.DeploymentConfig{Mode: v1.ModeStandalone}); err != nil {
		t.Fatalf("CompleteOnboarding: %v", err)
	}
	st := c.State()
	if st.Phase != v1.PhaseConfigured || st.UIMode != v1.UIDashboard || st.TunnelActive {
		t.Errorf("unexpected state after onboarding: %+v", st)
	}
	if got := store.Load(); got != standaloneCfg {
		t.Errorf("expected normalised standalone config, got %+v", got)
	}

	err = c.CompleteOnboarding(ctx, cloudCfg)
	if !errs.IsCode(err, errs.ErrIntentRejected) {
		t.Errorf("expected second onboarding to be rejected, got %v", err)
	}
}

func TestReset_StopsTunnelAndReturnsToOnboarding(t *testing.T) {
	c, store, link := newController(t, standaloneCfg)
	if err := c.ToggleTunnel(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	st := c.State()
	if st.Phase != v1.PhaseUnconfigured || st.UIMode != v1.UIOnboarding || st.TunnelActive {
		t.Errorf("unexpected state after reset: %+v", st)
	}
	if link.stops != 1 {
		t.Errorf("expected active tunnel to be stopped, got %d stops", link.stops)
	}
	if store.Load().Configured() {
		t.Error("expected unset config in store")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

func TestSubscribe_ReceivesLatestSnapshot(t *testing.T) {
	c, _, _ := newController(t, standaloneCfg)
	ch, cancel := c.Subscribe()
	defer cancel()

	if st := <-ch; st.UIMode != v1.UIDashboard {
		t.Fatalf("expected initial dashboard snapshot, got %s", st.UIMode)
	}
	if err := c.OpenSettings(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case st := <-ch:
		if st.UIMode != v1.UISettings {
			t.Errorf("expected settings snapshot, got %s", st.UIMode)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after intent")
	}
}

func TestIntentBeforeStart(t *testing.T) {
	c, err := New(Options{Store: &fakeStore{}, Link: &fakeLink{}, DisableTelemetry: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.OpenSettings(ctx); !errs.IsCode(err, errs.ErrInternal) {
		t.Errorf("expected error before Start, got %v", err)
	}
}

func TestStop_ClosesSubscriptions(t *testing.T) {
	store := &fakeStore{cfg: standaloneCfg}
	link := &fakeLink{}
	c, err := New(Options{Store: store, Link: link, Interval: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	ch, _ := c.Subscribe()
	c.Stop()

	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("subscription not closed on Stop")
		}
	}
}

func TestSubscribeAfterStop_IsClosed(t *testing.T) {
	c, err := New(Options{Store: &fakeStore{cfg: standaloneCfg}, Link: &fakeLink{}, DisableTelemetry: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	c.Stop()

	ch, cancel := c.Subscribe()
	defer cancel()

	select {
	case st, ok := <-ch:
		if !ok || st.UIMode != v1.UIDashboard {
			t.Fatalf("expected final snapshot first, got ok=%v mode=%s", ok, st.UIMode)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after Stop")
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription after Stop never closed")
	}
}
