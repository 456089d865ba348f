// agentdeck onboard: choose the deployment mode without the TUI.
package commands

import (
	"github.com/spf13/cobra"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/pkg/errs"
	"github.com/f9-o/agentdeck/pkg/pprint"
)

func NewOnboardCmd() *cobra.Command {
	var (
		mode     string
		token    string
		nodeID   string
		apiPort  int
		meshPort int
	)

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Choose cloud or standalone mode and save it",
		Example: `  agentdeck onboard --mode standalone
  agentdeck onboard --mode cloud --token $ZEXIO_TOKEN --node-id node-123`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			ctrl, err := rt.Controller(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer ctrl.Stop()

			cfg := v1.DeploymentConfig{
				Mode:       v1.ParseMode(mode),
				Credential: token,
				NodeID:     nodeID,
				APIPort:    apiPort,
				MeshPort:   meshPort,
			}
			if err := ctrl.CompleteOnboarding(cmd.Context(), cfg); err != nil {
				if errs.IsCode(err, errs.ErrIntentRejected) {
					return errs.Wrap(err, errs.ErrIntentRejected, "cli.onboard").
						WithAdvice("already configured: use 'agentdeck config set' or 'agentdeck config reset'")
				}
				printFieldErrors(err)
				return err
			}

			st := ctrl.State()
			pprint.Success("Onboarding complete: %s mode", st.Config.Mode)
			if st.Config.Mode == v1.ModeStandalone {
				pprint.Info("API port %d, mesh port %d", st.Config.APIPort, st.Config.MeshPort)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Deployment mode: cloud | standalone")
	cmd.Flags().StringVar(&token, "token", "", "Cloud credential (cloud mode)")
	cmd.Flags().StringVar(&nodeID, "node-id", "", "Cloud node identifier (cloud mode)")
	cmd.Flags().StringVar(&nodeID, "worker-id", "", "Alias of --node-id")
	cmd.Flags().IntVar(&apiPort, "api-port", 0, "Standalone API port (default 8080)")
	cmd.Flags().IntVar(&meshPort, "mesh-port", 0, "Standalone mesh port (default 8081)")
	_ = cmd.MarkFlagRequired("mode")
	_ = cmd.Flags().MarkHidden("worker-id")
	return cmd
}

// printFieldErrors lists per-field validation messages, if err carries any.
func printFieldErrors(err error) {
	for field, msg := range errs.Fields(err) {
		pprint.Warn("%s %s", field, msg)
	}
}
