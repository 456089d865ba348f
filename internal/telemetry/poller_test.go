package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/agentlink"
	"github.com/f9-o/agentdeck/pkg/errs"
)

type fakeLink struct {
	healthErr  error
	stats      v1.SystemStats
	statsErr   error
	statsCalls atomic.Int32
}

func (f *fakeLink) CheckHealth(context.Context) error { return f.healthErr }

func (f *fakeLink) GetSystemStats(context.Context) (v1.SystemStats, error) {
	f.statsCalls.Add(1)
	return f.stats, f.statsErr
}

func (f *fakeLink) StartTunnel(context.Context, agentlink.TunnelStartRequest) error { return nil }
func (f *fakeLink) StopTunnel(context.Context) error                              { return nil }

type recordingSink struct {
	gen     uint64
	mu      sync.Mutex
	reports []Report
	got     chan struct{}
}

func (s *recordingSink) Generation() uint64 { return s.gen }

func (s *recordingSink) ApplyTelemetry(r Report) {
	s.mu.Lock()
	s.reports = append(s.reports, r)
	s.mu.Unlock()
	select {
	case s.got <- struct{}{}:
	default:
	}
}

func TestPollOnce_Offline_SkipsStats(t *testing.T) {
	link := &fakeLink{healthErr: errs.Newf(errs.ErrAgentUnreachable, "agentlink.health", "timeout")}
	p := NewPoller(link, time.Second, nil)

	r := p.PollOnce(context.Background())
	if r.Online || r.Err == nil {
		t.Fatalf("expected offline report, got %+v", r)
	}
	if n := link.statsCalls.Load(); n != 0 {
		t.Errorf("stats must not be requested when offline, got %d calls", n)
	}
}

func TestPollOnce_StatsFailureStaysOnline(t *testing.T) {
	link := &fakeLink{statsErr: errs.New(errs.ErrStatsUnavailable, "agentlink.stats", errors.New("boom"))}
	p := NewPoller(link, time.Second, nil)

	r := p.PollOnce(context.Background())
	if !r.Online {
		t.Fatal("stats failure must not mark the agent offline")
	}
	if r.Stats != nil || r.StatsErr == nil {
		t.Errorf("expected StatsErr and no stats, got %+v", r)
	}
}

func TestPollOnce_Success(t *testing.T) {
	link := &fakeLink{stats: v1.SystemStats{CPUUsagePercent: 12}}
	p := NewPoller(link, time.Second, nil)

	r := p.PollOnce(context.Background())
	if !r.Online || r.Stats == nil || r.Stats.CPUUsagePercent != 12 {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestRun_StampsGenerationAndStops(t *testing.T) {
	link := &fakeLink{}
	sink := &recordingSink{gen: 7, got: make(chan struct{}, 1)}
	p := NewPoller(link, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, sink)
		close(done)
	}()

	select {
	case <-sink.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no report delivered")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.reports[0].Generation != 7 {
		t.Errorf("expected generation 7, got %d", sink.reports[0].Generation)
	}
}

func TestNewPoller_DefaultInterval(t *testing.T) {
	if p := NewPoller(&fakeLink{}, 0, nil); p.Interval() != DefaultInterval {
		t.Errorf("expected default interval, got %s", p.Interval())
	}
}
