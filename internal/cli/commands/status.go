// agentdeck status: one-shot agent health, stats and deployment summary.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/core/logger"
	"github.com/f9-o/agentdeck/internal/health"
	"github.com/f9-o/agentdeck/internal/telemetry"
	"github.com/f9-o/agentdeck/pkg/errs"
	"github.com/f9-o/agentdeck/pkg/pprint"
)

// statusReport is the --json shape of `agentdeck status`.
type statusReport struct {
	Agent      string              `json:"agent"`
	Online     bool                `json:"online"`
	Error      string              `json:"error,omitempty"`
	StatsError string              `json:"stats_error,omitempty"`
	Stats      *v1.SystemStats     `json:"stats,omitempty"`
	Deployment v1.DeploymentConfig `json:"deployment"`
	Credential string              `json:"credential_fingerprint,omitempty"`
	Tunnels    []v1.TunnelEvent    `json:"recent_tunnel_events,omitempty"`

	// MeshListening is set in standalone mode: whether anything accepts
	// connections on the mesh port the tunnel forwards to.
	MeshListening *bool `json:"mesh_port_listening,omitempty"`
}

func NewStatusCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Probe the agent once and show health, resources and deployment mode",
		Example: `  agentdeck status
  agentdeck status --json
  agentdeck status --wait 30s`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			link, err := rt.Link()
			if err != nil {
				return err
			}
			if wait > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), wait)
				err := health.NewChecker(rt.Config.Telemetry.Interval, rt.Log).WaitAgent(ctx, link)
				cancel()
				if err != nil {
					rt.Log.Warn("agent did not become ready", "wait", wait, "err", err)
				}
			}
			r := telemetry.NewPoller(link, rt.Config.Telemetry.Interval, rt.Log).PollOnce(cmd.Context())

			cfg := rt.Store.Load()
			if cfg.Mode != v1.ModeCloud && r.Stats != nil {
				r.Stats.Managed = nil
			}
			recent, err := rt.Store.ListTunnelEvents(1)
			if err != nil {
				rt.Log.Warn("read tunnel history", "err", err)
			}

			rep := statusReport{
				Agent:      link.BaseURL(),
				Online:     r.Online,
				Error:      errs.Describe(r.Err),
				StatsError: errs.Describe(r.StatsErr),
				Stats:      r.Stats,
				Deployment: redact(cfg),
				Credential: logger.Fingerprint(cfg.Credential),
				Tunnels:    recent,
			}
			if cfg.Mode == v1.ModeStandalone {
				listening := health.CheckTCP(cmd.Context(), "127.0.0.1", cfg.EffectiveMeshPort(), 0) == nil
				rep.MeshListening = &listening
			}

			if rt.Flags.JSONOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			printStatus(rep)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for the agent to answer /health first")
	return cmd
}

func printStatus(rep statusReport) {
	pprint.Header("agent")
	pprint.KV("Endpoint", rep.Agent)
	if rep.Online {
		pprint.KV("Status", pprint.StyleSuccess.Render("● online"))
	} else {
		pprint.KV("Status", pprint.StyleError.Render("○ offline"))
		pprint.KV("Error", rep.Error)
	}

	if s := rep.Stats; s != nil {
		pprint.KV("CPU", pprint.Gauge(s.CPUUsagePercent, 24))
		pprint.KV("Memory", pprint.Gauge(s.MemoryUsedPercent, 24)+
			pprint.StyleMuted.Render(fmt.Sprintf("  %s / %s", pprint.FormatBytes(s.MemoryUsedBytes), pprint.FormatBytes(s.MemoryTotalBytes))))
		pprint.KV("Disk", pprint.Gauge(s.DiskUsedPercent, 24)+
			pprint.StyleMuted.Render(fmt.Sprintf("  %s / %s", pprint.FormatBytes(s.DiskUsedBytes), pprint.FormatBytes(s.DiskTotalBytes))))
		if m := s.Managed; m != nil {
			pprint.KV("Apps", fmt.Sprintf("%d active, %d stopped, %d crashed", m.Apps.Active, m.Apps.Stopped, m.Apps.Crashed))
			pprint.KV("Services", fmt.Sprintf("%d active, %d stopped, %d crashed", m.Services.Active, m.Services.Stopped, m.Services.Crashed))
			pprint.KV("Addons", fmt.Sprintf("%d enabled / %d installed", m.Addons.Enabled, m.Addons.Installed))
		}
	} else if rep.StatsError != "" {
		pprint.KV("Stats", pprint.StyleWarning.Render(rep.StatsError))
	}

	pprint.Header("deployment")
	d := rep.Deployment
	switch d.Mode {
	case v1.ModeCloud:
		pprint.KV("Mode", "cloud")
		pprint.KV("Node ID", d.NodeID)
		pprint.KV("Credential", fingerprintLabel(rep.Credential))
	case v1.ModeStandalone:
		pprint.KV("Mode", "standalone")
		pprint.KV("API port", fmt.Sprint(d.APIPort))
		mesh := fmt.Sprint(d.MeshPort)
		if rep.MeshListening != nil && !*rep.MeshListening {
			mesh += pprint.StyleWarning.Render("  (nothing listening)")
		}
		pprint.KV("Mesh port", mesh)
	default:
		pprint.KV("Mode", pprint.StyleWarning.Render("not configured"))
		pprint.Info("run 'agentdeck onboard' or 'agentdeck ui' to choose a mode")
	}
	if len(rep.Tunnels) > 0 {
		ev := rep.Tunnels[0]
		pprint.KV("Last tunnel", fmt.Sprintf("%s %s (%s)", ev.Action, ev.Result, ev.At.Local().Format("2006-01-02 15:04:05")))
	}
	fmt.Println()
}

// redact blanks the credential for display; callers show its fingerprint instead.
func redact(cfg v1.DeploymentConfig) v1.DeploymentConfig {
	cfg.Credential = ""
	return cfg
}

func fingerprintLabel(fp string) string {
	if fp == "" {
		return pprint.StyleWarning.Render("missing")
	}
	return "set (" + fp + ")"
}
