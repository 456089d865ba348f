package devagent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/agentlink"
	"github.com/f9-o/agentdeck/pkg/errs"
)

func fixedStats(context.Context) (v1.SystemStats, error) {
	return v1.SystemStats{
		CPUUsagePercent:  25,
		MemoryUsedBytes:  2 << 30,
		MemoryTotalBytes: 8 << 30,
		DiskUsedBytes:    50,
		DiskTotalBytes:   100,
	}.Normalize(), nil
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	if opts.Stats == nil {
		opts.Stats = fixedStats
	}
	srv := httptest.NewServer(NewServer(opts, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthAndStats(t *testing.T) {
	managed := &v1.ManagedCounts{Apps: v1.StatusCounts{Active: 4}}
	srv := newTestServer(t, Options{Managed: managed})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("health: %v %v", resp, err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var stats v1.SystemStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.MemoryUsedPercent != 25 || stats.DiskUsedPercent != 50 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.Managed == nil || stats.Managed.Apps.Active != 4 {
		t.Errorf("expected managed counts, got %+v", stats.Managed)
	}
}

func TestStats_CollectionFailure(t *testing.T) {
	srv := newTestServer(t, Options{Stats: func(context.Context) (v1.SystemStats, error) {
		return v1.SystemStats{}, errors.New("no procfs")
	}})
	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
}

func TestTunnelLifecycle(t *testing.T) {
	srv := newTestServer(t, Options{})

	if resp := post(t, srv.URL+"/tunnel/stop", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("stop when idle: expected 404, got %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/tunnel/start", `{"provider":"ngrok","token":"x"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unsupported provider: expected 400, got %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/tunnel/start", `{"provider":"cloudflare","token":"x"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/tunnel/start", `{"provider":"pangolin","token":"x"}`); resp.StatusCode != http.StatusConflict {
		t.Errorf("second start: expected 409, got %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/tunnel/stop", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("stop: expected 200, got %d", resp.StatusCode)
	}
}

func TestTunnelThrottle(t *testing.T) {
	srv := newTestServer(t, Options{TunnelRate: rate.Every(time.Hour), TunnelBurst: 1})

	post(t, srv.URL+"/tunnel/start", `{"provider":"cloudflare","token":"x"}`)
	if resp := post(t, srv.URL+"/tunnel/stop", ""); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.StatusCode)
	}
}

// The Agent Link must map the dev agent's responses onto its error taxonomy.
func TestAgentLinkAgainstDevAgent(t *testing.T) {
	srv := newTestServer(t, Options{})
	link, err := agentlink.New(agentlink.Config{URL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := link.CheckHealth(ctx); err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if _, err := link.GetSystemStats(ctx); err != nil {
		t.Fatalf("GetSystemStats: %v", err)
	}
	if err := link.StopTunnel(ctx); !errs.IsCode(err, errs.ErrTunnelStop) {
		t.Errorf("expected TunnelStopFailed, got %v", err)
	}
	req := agentlink.TunnelStartRequest{Provider: v1.ProviderCloudflare, Token: "t"}
	if err := link.StartTunnel(ctx, req); err != nil {
		t.Fatalf("StartTunnel: %v", err)
	}
	err = link.StartTunnel(ctx, req)
	if !errs.IsCode(err, errs.ErrTunnelStart) || !strings.Contains(errs.Describe(err), "already running") {
		t.Errorf("expected conflict as TunnelStartFailed, got %v", err)
	}
}

func TestServe_Shutdown(t *testing.T) {
	s := NewServer(Options{Stats: fixedStats}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, "http://127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestHostStats(t *testing.T) {
	stats, err := HostStats(context.Background())
	if err != nil {
		t.Skipf("host stats unavailable here: %v", err)
	}
	if stats.MemoryTotalBytes == 0 {
		t.Error("expected non-zero memory total")
	}
	if stats.CPUUsagePercent < 0 || stats.CPUUsagePercent > 100 {
		t.Errorf("cpu out of range: %v", stats.CPUUsagePercent)
	}
}
