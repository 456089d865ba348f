// agentdeck tunnel: start or stop the agent's public tunnel.
package commands

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/core/logger"
	"github.com/f9-o/agentdeck/pkg/errs"
	"github.com/f9-o/agentdeck/pkg/pprint"
)

func NewTunnelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tunnel",
		Short: "Start or stop the agent tunnel",
	}
	cmd.AddCommand(newTunnelStartCmd(), newTunnelStopCmd())
	return cmd
}

func newTunnelStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Ask the agent to open a tunnel with the saved configuration",
		Example: `  agentdeck tunnel start
  AGENTDECK_TUNNEL_PROVIDER=pangolin agentdeck tunnel start`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			ctx := cmd.Context()

			ctrl, err := rt.Controller(ctx, false)
			if err != nil {
				return err
			}
			defer ctrl.Stop()

			if st := ctrl.State(); st.Phase != v1.PhaseConfigured {
				return errs.Newf(errs.ErrIntentRejected, "cli.tunnel_start", "no deployment mode chosen").
					WithAdvice("run 'agentdeck onboard' first")
			}

			sp := pprint.NewSpinner("Starting " + rt.Config.Tunnel.Provider + " tunnel")
			sp.Start()
			err = ctrl.ToggleTunnel(ctx)
			st := ctrl.State()
			sp.Stop(err == nil && st.TunnelActive)

			if err != nil {
				return err
			}
			if st.UIMode == v1.UISettings {
				// The guard routed us to settings: nothing was sent to the agent.
				for field, msg := range st.FieldErrors {
					pprint.Warn("%s %s", field, msg)
				}
				return errs.Newf(errs.ErrValidation, "cli.tunnel_start", "credentials incomplete for %s mode", st.Config.Mode).
					WithAdvice("agentdeck config set token <token> nodeId <node-id>")
			}
			pprint.Success("Tunnel running (%s)", rt.Config.Tunnel.Provider)
			return nil
		},
	}
}

// newTunnelStopCmd talks to the agent directly: a fresh process cannot know
// whether an earlier one started the tunnel, and the agent answers 404 if not.
func newTunnelStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "stop",
		Short:        "Ask the agent to close the running tunnel",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			link, err := rt.Link()
			if err != nil {
				return err
			}

			cfg := rt.Store.Load()
			ev := v1.TunnelEvent{
				ID:        uuid.NewString(),
				SessionID: "cli",
				Action:    "stop",
				Provider:  rt.Config.Tunnel.Provider,
				Mode:      cfg.Mode,
				Result:    "success",
			}

			sp := pprint.NewSpinner("Stopping tunnel")
			sp.Start()
			err = link.StopTunnel(cmd.Context())
			sp.Stop(err == nil)
			ev.At = time.Now().UTC()

			meta := map[string]string{"provider": ev.Provider}
			if err != nil {
				ev.Result = "failure"
				ev.Error = errs.Describe(err)
				meta["error"] = ev.Error
			}
			if perr := rt.Store.PutTunnelEvent(ev); perr != nil {
				rt.Log.Warn("tunnel history write failed", "err", perr)
			}
			rt.Log.Audit(logger.AuditEntry{
				Op:      "tunnel.stop",
				Session: ev.SessionID,
				Mode:    string(cfg.Mode),
				Result:  ev.Result,
				Meta:    meta,
			})

			if err != nil {
				return err
			}
			pprint.Success("Tunnel stopped")
			return nil
		},
	}
}
