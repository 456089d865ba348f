// agentdeck dev-agent: run a local stand-in for the deployment agent.
package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/devagent"
	"github.com/f9-o/agentdeck/pkg/pprint"
)

// sampleManaged is what the dev agent reports in --mode cloud.
var sampleManaged = v1.ManagedCounts{
	Apps:     v1.StatusCounts{Active: 3, Stopped: 1, Crashed: 0},
	Services: v1.StatusCounts{Active: 5, Stopped: 0, Crashed: 1},
	Addons:   v1.AddonCounts{Enabled: 2, Installed: 4},
}

func NewDevAgentCmd() *cobra.Command {
	var (
		listen   string
		mode     string
		meshPort int
	)

	cmd := &cobra.Command{
		Use:   "dev-agent",
		Short: "Serve the agent HTTP API locally with real host stats and a simulated tunnel",
		Example: `  agentdeck dev-agent
  agentdeck dev-agent --listen unix:///tmp/agentdeck.sock --mode cloud`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			opts := devagent.DefaultOptions()
			opts.MeshPort = meshPort
			if v1.ParseMode(mode) == v1.ModeCloud {
				m := sampleManaged
				opts.Managed = &m
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pprint.Success("dev agent listening on %s (Ctrl+C to stop)", listen)
			rt.Log.Info("dev agent starting", "listen", listen, "mode", mode)

			err := devagent.NewServer(opts, rt.Log).Serve(ctx, listen)
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "http://127.0.0.1:8081", "Listen URL: http://host:port or unix:///path.sock")
	cmd.Flags().StringVar(&mode, "mode", "standalone", "Agent flavour: standalone | cloud (adds managed counts)")
	cmd.Flags().IntVar(&meshPort, "mesh-port", v1.DefaultMeshPort, "Default tunnel local_port")
	return cmd
}

