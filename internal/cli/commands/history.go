// agentdeck history: list recorded tunnel start/stop attempts.
package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/f9-o/agentdeck/pkg/pprint"
)

func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent tunnel start/stop attempts, newest first",
		Example: `  agentdeck history
  agentdeck history --limit 50 --json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())

			events, err := rt.Store.ListTunnelEvents(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rt.Flags.JSONOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}
			if len(events) == 0 {
				pprint.Info("no tunnel activity recorded yet")
				return nil
			}

			tbl := pprint.NewTable("TIME", "ACTION", "PROVIDER", "MODE", "RESULT", "ERROR")
			tbl.SetOutput(out)
			for _, ev := range events {
				result := pprint.StyleSuccess.Render(ev.Result)
				if ev.Result != "success" {
					result = pprint.StyleError.Render(ev.Result)
				}
				tbl.AddRow(
					ev.At.Local().Format("2006-01-02 15:04:05"),
					ev.Action,
					ev.Provider,
					string(ev.Mode),
					result,
					ev.Error,
				)
			}
			tbl.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show (0 = all)")
	return cmd
}
