package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"timeout", New(ErrAgentUnreachable, "agentlink.health", errors.New("timeout")), "AgentUnreachable: timeout"},
		{"wrapped", fmt.Errorf("toggle: %w", Newf(ErrTunnelStart, "agentlink.tunnel.start", "provider refused")), "TunnelStartFailed: provider refused"},
		{"no cause", New(ErrStatsUnavailable, "agentlink.stats", nil), "StatsUnavailable"},
		{"foreign", errors.New("boom"), "Unknown: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.err); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrTunnelStop, "op", errors.New("x")))
	if !IsCode(err, ErrTunnelStop) {
		t.Error("expected IsCode to see through wrapping")
	}
	if IsCode(err, ErrTunnelStart) {
		t.Error("expected IsCode to reject a different code")
	}
	if IsCode(errors.New("plain"), ErrTunnelStop) {
		t.Error("expected IsCode false for a plain error")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, ErrInternal, "op") != nil {
		t.Error("expected Wrap(nil) to return nil")
	}
}

func TestValidationFields(t *testing.T) {
	err := Validation("session.save", FieldErrors{"token": "is required", "nodeId": "is required"})

	if !IsCode(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	fields := Fields(err)
	if len(fields) != 2 {
		t.Fatalf("expected 2 field errors, got %d", len(fields))
	}
	if fields["token"] != "is required" {
		t.Errorf("unexpected token message %q", fields["token"])
	}
	if got := Describe(err); got != "ValidationFailed: nodeId is required; token is required" {
		t.Errorf("unexpected description %q", got)
	}
}

func TestUserMessageAdvice(t *testing.T) {
	err := New(ErrAgentUnreachable, "agentlink.health", errors.New("connection refused")).
		WithAdvice("start the agent or run 'agentdeck dev-agent'")
	msg := err.UserMessage()
	if !strings.Contains(msg, "ERR-AGENT-001") || !strings.Contains(msg, "→ start the agent") {
		t.Errorf("unexpected user message %q", msg)
	}
}
