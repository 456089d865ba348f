package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolateHome(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.URL != "http://127.0.0.1:8081" {
		t.Errorf("unexpected agent url %q", cfg.Agent.URL)
	}
	if cfg.Agent.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.Agent.Timeout)
	}
	if cfg.Telemetry.Interval != 2*time.Second {
		t.Errorf("expected 2s interval, got %s", cfg.Telemetry.Interval)
	}
	if cfg.Tunnel.Provider != "cloudflare" {
		t.Errorf("unexpected provider %q", cfg.Tunnel.Provider)
	}
	if cfg.DataDir != filepath.Join(home, ".agentdeck") {
		t.Errorf("unexpected data dir %q", cfg.DataDir)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	isolateHome(t)
	t.Setenv("AGENTDECK_AGENT_TIMEOUT", "750ms")
	t.Setenv("AGENTDECK_TUNNEL_PROVIDER", "pangolin")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Timeout != 750*time.Millisecond {
		t.Errorf("expected env timeout, got %s", cfg.Agent.Timeout)
	}
	if cfg.Tunnel.Provider != "pangolin" {
		t.Errorf("expected env provider, got %q", cfg.Tunnel.Provider)
	}
}

func TestLoad_ExplicitFile(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "agentdeck.yaml")
	content := "agent:\n  url: unix:///run/zexio/agent.sock\ntelemetry:\n  interval: 10s\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.URL != "unix:///run/zexio/agent.sock" {
		t.Errorf("unexpected agent url %q", cfg.Agent.URL)
	}
	if cfg.Telemetry.Interval != 10*time.Second {
		t.Errorf("unexpected interval %s", cfg.Telemetry.Interval)
	}
}

func TestLoad_Invalid(t *testing.T) {
	isolateHome(t)
	t.Setenv("AGENTDECK_TUNNEL_PROVIDER", "ngrok")

	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("expected provider validation error, got %v", err)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolateHome(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestIsSensitiveKey(t *testing.T) {
	if !IsSensitiveKey("token") || !IsSensitiveKey("credential") {
		t.Error("expected token/credential to be sensitive")
	}
	if IsSensitiveKey("nodeId") {
		t.Error("nodeId is not sensitive")
	}
}
