package session

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/agentlink"
	"github.com/f9-o/agentdeck/internal/core/logger"
	"github.com/f9-o/agentdeck/pkg/errs"
	"github.com/f9-o/agentdeck/pkg/netutil"
)

// Field names accepted by UpdateField. Aliases map onto these.
const (
	FieldMode     = "mode"
	FieldToken    = "token"
	FieldNodeID   = "nodeId"
	FieldAPIPort  = "apiPort"
	FieldMeshPort = "meshPort"
)

// ─────────────────────────────────────────────────────────────────────────────
// Onboarding
// ─────────────────────────────────────────────────────────────────────────────

// CompleteOnboarding validates and persists the first deployment configuration
// and moves to the dashboard. Only valid while unconfigured.
func (c *Controller) CompleteOnboarding(ctx context.Context, cfg v1.DeploymentConfig) error {
	return c.submit(ctx, func(ctx context.Context) error {
		const op = "session.complete_onboarding"
		if c.st.Phase != v1.PhaseUnconfigured {
			return c.rejected(op)
		}

		cfg = cfg.Normalize()
		if fe := Validate(cfg); fe != nil {
			c.st.FieldErrors = fe
			return errs.Validation(op, fe)
		}
		if err := c.persist(op, cfg); err != nil {
			return err
		}

		c.st.Phase = v1.PhaseConfigured
		c.st.UIMode = v1.UIDashboard
		c.st.TunnelActive = false
		c.st.TunnelError = ""
		c.st.FieldErrors = nil
		c.st.Draft = nil
		c.log.Info("onboarding complete", "mode", cfg.Mode, "node", cfg.NodeID)
		c.audit("onboarding.complete", "success", nil)
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Dashboard
// ─────────────────────────────────────────────────────────────────────────────

// ToggleTunnel starts the tunnel when inactive and stops it when active.
// Without a usable credential it opens settings instead of calling the agent.
// The returned error mirrors what was recorded in TunnelError.
func (c *Controller) ToggleTunnel(ctx context.Context) error {
	return c.submit(ctx, func(ctx context.Context) error {
		const op = "session.toggle_tunnel"
		if c.st.UIMode != v1.UIDashboard {
			return c.rejected(op)
		}

		cfg := c.st.Config
		if !c.st.TunnelActive && !cfg.HasUsableCredential() {
			c.openSettings()
			c.st.FieldErrors = Validate(cfg)
			c.log.Info("tunnel start needs credentials, opening settings", "mode", cfg.Mode)
			return nil
		}

		ev := v1.TunnelEvent{
			ID:        uuid.NewString(),
			SessionID: c.st.SessionID,
			Provider:  c.provider,
			Mode:      cfg.Mode,
		}
		c.st.TunnelError = ""

		var err error
		if c.st.TunnelActive {
			ev.Action = "stop"
			err = c.link.StopTunnel(ctx)
		} else {
			ev.Action = "start"
			req := agentlink.TunnelStartRequest{Provider: c.provider, Token: cfg.Credential}
			if cfg.Mode == v1.ModeStandalone {
				req.LocalPort = cfg.EffectiveMeshPort()
			}
			err = c.link.StartTunnel(ctx, req)
		}
		ev.At = time.Now().UTC()

		if err != nil {
			msg := errs.Describe(err)
			c.st.LastError = msg
			c.st.TunnelError = msg
			ev.Result = "failure"
			ev.Error = msg
			c.log.Warn("tunnel toggle failed", "action", ev.Action, "err", msg)
		} else {
			c.st.TunnelActive = !c.st.TunnelActive
			ev.Result = "success"
		}
		c.recordTunnelEvent(ev)
		return err
	})
}

// OpenSettings copies the active config into a draft and shows the settings form.
func (c *Controller) OpenSettings(ctx context.Context) error {
	return c.submit(ctx, func(ctx context.Context) error {
		if c.st.UIMode != v1.UIDashboard {
			return c.rejected("session.open_settings")
		}
		c.openSettings()
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Settings
// ─────────────────────────────────────────────────────────────────────────────

// UpdateField edits one field of the settings draft.
func (c *Controller) UpdateField(ctx context.Context, field, value string) error {
	return c.submit(ctx, func(ctx context.Context) error {
		const op = "session.update_field"
		if c.st.UIMode != v1.UISettings || c.st.Draft == nil {
			return c.rejected(op)
		}

		name, err := c.applyField(c.st.Draft, field, value)
		if c.st.FieldErrors == nil {
			c.st.FieldErrors = make(map[string]string)
		}
		if err != nil {
			for k, msg := range errs.Fields(err) {
				c.st.FieldErrors[k] = msg
			}
			return errs.Wrap(err, errs.ErrValidation, op)
		}
		delete(c.st.FieldErrors, name)
		return nil
	})
}

// SaveSettings validates and persists the draft, then returns to the dashboard.
// On validation failure the field errors are published and the form stays open.
func (c *Controller) SaveSettings(ctx context.Context) error {
	return c.submit(ctx, func(ctx context.Context) error {
		const op = "session.save_settings"
		if c.st.UIMode != v1.UISettings || c.st.Draft == nil {
			return c.rejected(op)
		}

		cfg := c.st.Draft.Normalize()
		if fe := Validate(cfg); fe != nil {
			c.st.FieldErrors = fe
			return errs.Validation(op, fe)
		}
		prev := c.st.Config
		if err := c.persist(op, cfg); err != nil {
			return err
		}
		if c.st.TunnelActive && (prev.Mode != cfg.Mode || prev.Credential != cfg.Credential) {
			c.log.Warn("tunnel still running with the previous mode or credential, toggle it to apply",
				"previous_mode", prev.Mode, "mode", cfg.Mode)
		}

		c.st.Phase = v1.PhaseConfigured
		c.st.UIMode = v1.UIDashboard
		c.st.Draft = nil
		c.st.FieldErrors = nil
		if cfg.Mode != v1.ModeCloud && c.st.Stats != nil {
			c.st.Stats.Managed = nil
		}
		c.log.Info("settings saved", "mode", cfg.Mode, "credential", logger.Fingerprint(cfg.Credential))
		c.audit("config.save", "success", nil)
		return nil
	})
}

// CancelSettings discards the draft and returns to the dashboard.
func (c *Controller) CancelSettings(ctx context.Context) error {
	return c.submit(ctx, func(ctx context.Context) error {
		if c.st.UIMode != v1.UISettings {
			return c.rejected("session.cancel_settings")
		}
		c.st.Draft = nil
		c.st.FieldErrors = nil
		c.st.UIMode = v1.UIDashboard
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Reset
// ─────────────────────────────────────────────────────────────────────────────

// Reset stops an active tunnel (best effort), writes an unset configuration and
// returns to onboarding. In-flight telemetry started before the reset is discarded.
func (c *Controller) Reset(ctx context.Context) error {
	return c.submit(ctx, func(ctx context.Context) error {
		const op = "session.reset"

		if c.st.TunnelActive {
			ev := v1.TunnelEvent{
				ID:        uuid.NewString(),
				SessionID: c.st.SessionID,
				Action:    "stop",
				Provider:  c.provider,
				Mode:      c.st.Config.Mode,
				Result:    "success",
			}
			if err := c.link.StopTunnel(ctx); err != nil {
				ev.Result = "failure"
				ev.Error = errs.Describe(err)
				c.log.Warn("reset: tunnel stop failed", "err", ev.Error)
			} else {
				c.st.TunnelActive = false
			}
			ev.At = time.Now().UTC()
			c.recordTunnelEvent(ev)
		}

		if err := c.commit(op, v1.DeploymentConfig{}, c.store.Reset); err != nil {
			return err
		}
		c.st.Phase = v1.PhaseUnconfigured
		c.st.UIMode = v1.UIOnboarding
		c.st.TunnelActive = false
		c.st.TunnelError = ""
		c.st.Draft = nil
		c.st.FieldErrors = nil
		c.log.Info("configuration reset")
		c.audit("config.reset", "success", nil)
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers (actor goroutine only)
// ─────────────────────────────────────────────────────────────────────────────

func (c *Controller) rejected(op string) error {
	return errs.Newf(errs.ErrIntentRejected, op, "not allowed in %s/%s", c.st.Phase, c.st.UIMode)
}

func (c *Controller) openSettings() {
	draft := c.st.Config
	c.st.Draft = &draft
	c.st.FieldErrors = nil
	c.st.UIMode = v1.UISettings
}

// persist saves cfg, swaps it in as the active config and bumps the generation.
func (c *Controller) persist(op string, cfg v1.DeploymentConfig) error {
	return c.commit(op, cfg, func() error { return c.store.Save(cfg) })
}

func (c *Controller) commit(op string, cfg v1.DeploymentConfig, write func() error) error {
	if err := write(); err != nil {
		werr := errs.Wrap(err, errs.ErrStateWrite, op)
		c.st.LastError = errs.Describe(werr)
		c.audit("config.save", "failure", map[string]string{"op": op, "error": err.Error()})
		return werr
	}
	c.st.Config = cfg
	c.gen.Add(1)
	return nil
}

// applyField writes value into draft and returns the canonical field name.
func (c *Controller) applyField(draft *v1.DeploymentConfig, field, value string) (string, error) {
	value = strings.TrimSpace(value)

	switch field {
	case FieldMode:
		m := v1.ParseMode(value)
		if m == v1.ModeUnset {
			return FieldMode, errs.FieldErrors{FieldMode: "must be cloud or standalone"}
		}
		draft.Mode = m
		return FieldMode, nil

	case FieldToken, "credential":
		draft.Credential = value
		return FieldToken, nil

	case FieldNodeID, "workerId":
		if field == "workerId" {
			c.log.Warn("field workerId is an alias of nodeId")
		}
		draft.NodeID = value
		return FieldNodeID, nil

	case FieldAPIPort, FieldMeshPort:
		port, ok := parsePort(value)
		if !ok {
			return field, errs.FieldErrors{field: "must be a number between 1024 and 65535"}
		}
		if field == FieldAPIPort {
			draft.APIPort = port
		} else {
			draft.MeshPort = port
		}
		return field, nil

	default:
		return field, errs.FieldErrors{field: "is not a known setting"}
	}
}

func (c *Controller) recordTunnelEvent(ev v1.TunnelEvent) {
	if err := c.store.PutTunnelEvent(ev); err != nil {
		c.log.Warn("tunnel history write failed", "err", err)
	}
	meta := map[string]string{"provider": ev.Provider}
	if ev.Error != "" {
		meta["error"] = ev.Error
	}
	c.audit("tunnel."+ev.Action, ev.Result, meta)
}

func (c *Controller) audit(op, result string, meta map[string]string) {
	c.log.Audit(logger.AuditEntry{
		Op:      op,
		Session: c.st.SessionID,
		Mode:    string(c.st.Config.Mode),
		Result:  result,
		Meta:    meta,
	})
}

// parsePort accepts an empty string as "use the default".
func parsePort(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || !netutil.IsValidPort(n) {
		return 0, false
	}
	return n, true
}
