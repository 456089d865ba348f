// Package commands provides the shared context type and all CLI subcommands.
package commands

import (
	"context"
	"fmt"

	"github.com/f9-o/agentdeck/internal/agentlink"
	"github.com/f9-o/agentdeck/internal/core/config"
	"github.com/f9-o/agentdeck/internal/core/logger"
	"github.com/f9-o/agentdeck/internal/core/store"
	"github.com/f9-o/agentdeck/internal/session"
)

// contextKey is the key type for values stored in a command context.
type contextKey string

const runtimeContextKey contextKey = "agentdeck.runtime"

// GlobalFlags holds the parsed global flags for use by subcommands.
type GlobalFlags struct {
	Debug      bool
	JSONOutput bool
}

// Runtime is the shared dependency bundle injected into each subcommand via context.
type Runtime struct {
	Config *config.Config
	Log    *logger.Logger
	Store  *store.Store // nil for commands that run without local state
	Flags  GlobalFlags

	// LogLines receives log output while the TUI owns the terminal.
	LogLines chan string
}

// NewContext returns a new context carrying the Runtime.
func NewContext(parent context.Context, rt *Runtime) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, runtimeContextKey, rt)
}

// FromContext extracts the Runtime from ctx. Panics if not present (programming error).
func FromContext(ctx context.Context) *Runtime {
	rt, ok := ctx.Value(runtimeContextKey).(*Runtime)
	if !ok || rt == nil {
		panic("agentdeck: Runtime not found in context, missing PersistentPreRunE?")
	}
	return rt
}

// Link builds an Agent Link client from the loaded settings.
func (rt *Runtime) Link() (*agentlink.Client, error) {
	return agentlink.New(agentlink.Config{
		URL:     rt.Config.Agent.URL,
		Timeout: rt.Config.Agent.Timeout,
		Log:     rt.Log,
	})
}

// Controller builds a session controller over the runtime's store and agent.
// withTelemetry starts the background poller as well.
func (rt *Runtime) Controller(ctx context.Context, withTelemetry bool) (*session.Controller, error) {
	if rt.Store == nil {
		return nil, fmt.Errorf("state store is not open")
	}
	link, err := rt.Link()
	if err != nil {
		return nil, err
	}
	ctrl, err := session.New(session.Options{
		Store:            rt.Store,
		Link:             link,
		Log:              rt.Log,
		Provider:         rt.Config.Tunnel.Provider,
		Interval:         rt.Config.Telemetry.Interval,
		DisableTelemetry: !withTelemetry,
	})
	if err != nil {
		return nil, err
	}
	if err := ctrl.Start(ctx); err != nil {
		return nil, err
	}
	return ctrl, nil
}
