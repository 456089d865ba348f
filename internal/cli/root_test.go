package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/f9-o/agentdeck/pkg/errs"
)

// run executes the root command with args against an isolated data dir.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := execute(context.Background())
	return out.String(), err
}

func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("AGENTDECK_DATA_DIR", dir)
	t.Setenv("AGENTDECK_AGENT_URL", "http://127.0.0.1:1")
	t.Setenv("AGENTDECK_LOG_LEVEL", "error")
}

func TestOnboardThenConfigShow(t *testing.T) {
	isolate(t)

	if _, err := run(t, "onboard", "--mode", "standalone", "--mesh-port", "9081"); err != nil {
		t.Fatalf("onboard: %v", err)
	}

	out, err := run(t, "config", "show", "--format", "json")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var view configShowView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	d := view.Deployment
	if d.Mode != "standalone" || d.APIPort != 8080 || d.MeshPort != 9081 || !d.Configured {
		t.Errorf("deployment = %+v", d)
	}
}

func TestOnboardTwiceIsRejected(t *testing.T) {
	isolate(t)

	if _, err := run(t, "onboard", "--mode", "standalone"); err != nil {
		t.Fatalf("first onboard: %v", err)
	}
	_, err := run(t, "onboard", "--mode", "standalone")
	if !errs.IsCode(err, errs.ErrIntentRejected) {
		t.Fatalf("second onboard err = %v, want IntentRejected", err)
	}
}

func TestConfigSetValidationKeepsConfig(t *testing.T) {
	isolate(t)

	if _, err := run(t, "onboard", "--mode", "standalone", "--mesh-port", "8081"); err != nil {
		t.Fatalf("onboard: %v", err)
	}
	_, err := run(t, "config", "set", "meshPort", "8080")
	if !errs.IsCode(err, errs.ErrValidation) {
		t.Fatalf("config set err = %v, want ValidationFailed", err)
	}

	out, err := run(t, "config", "show", "--format", "json")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var view configShowView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Deployment.MeshPort != 8081 {
		t.Errorf("meshPort = %d, want unchanged 8081", view.Deployment.MeshPort)
	}
}

func TestConfigResetNeedsYes(t *testing.T) {
	isolate(t)

	_, err := run(t, "config", "reset")
	if !errs.IsCode(err, errs.ErrValidation) {
		t.Fatalf("reset without --yes err = %v", err)
	}
}

// configShowView mirrors the JSON printed by `config show`.
type configShowView struct {
	Deployment struct {
		Mode       string `json:"mode"`
		APIPort    int    `json:"apiPort"`
		MeshPort   int    `json:"meshPort"`
		Configured bool   `json:"configured"`
	} `json:"deployment"`
}
