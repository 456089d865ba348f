// agentdeck ui: launch the interactive TUI.
package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/f9-o/agentdeck/internal/tui"
)

func NewUICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Launch the interactive dashboard (onboarding, live stats, tunnel, settings)",
		Example: `  agentdeck ui
  AGENTDECK_AGENT_URL=unix:///run/zexio/agent.sock agentdeck ui`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			ctrl, err := rt.Controller(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer ctrl.Stop()

			app := tui.New(tui.Config{
				Controller: ctrl,
				LogLines:   rt.LogLines,
				AgentURL:   rt.Config.Agent.URL,
				Provider:   rt.Config.Tunnel.Provider,
				Context:    cmd.Context(),
			})
			defer app.Close()

			p := tea.NewProgram(app,
				tea.WithAltScreen(),       // use alternate screen buffer
				tea.WithContext(cmd.Context()),
			)

			if _, err := p.Run(); err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			return nil
		},
	}
	return cmd
}
