// agentdeck monitor: stream agent telemetry without the TUI.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/pkg/pprint"
)

// monitorLine is one --format json record.
type monitorLine struct {
	At     time.Time       `json:"at"`
	Online bool            `json:"online"`
	Error  string          `json:"error,omitempty"`
	Stats  *v1.SystemStats `json:"stats,omitempty"`
}

func NewMonitorCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stream live agent health and resource usage",
		Example: `  agentdeck monitor
  agentdeck monitor --format json
  AGENTDECK_TELEMETRY_INTERVAL=5s agentdeck monitor`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := FromContext(cmd.Context())
			if rt.Flags.JSONOutput {
				format = "json"
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("unknown format %q (table | json)", format)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Handle Ctrl+C
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigs)
			go func() {
				select {
				case <-sigs:
					cancel()
				case <-ctx.Done():
				}
			}()

			ctrl, err := rt.Controller(ctx, true)
			if err != nil {
				return err
			}
			defer ctrl.Stop()

			updates, unsubscribe := ctrl.Subscribe()
			defer unsubscribe()

			out := cmd.OutOrStdout()
			if format == "table" {
				fmt.Fprintf(out, "◉ Monitoring %s every %s (Ctrl+C to stop)...\n\n", rt.Config.Agent.URL, rt.Config.Telemetry.Interval)
			}

			var lastPoll time.Time
			for {
				select {
				case <-ctx.Done():
					return nil
				case st, ok := <-updates:
					if !ok {
						return nil
					}
					// Intent-driven snapshots repeat the previous poll.
					if st.LastPollAt.IsZero() || st.LastPollAt.Equal(lastPoll) {
						continue
					}
					lastPoll = st.LastPollAt

					if format == "json" {
						data, _ := json.Marshal(monitorLine{
							At:     st.LastPollAt,
							Online: st.AgentOnline,
							Error:  st.LastError,
							Stats:  st.Stats,
						})
						fmt.Fprintln(out, string(data))
						continue
					}
					printMonitorTable(out, st, rt.Config.Agent.URL)
				}
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table | json")
	return cmd
}

func printMonitorTable(out io.Writer, st v1.SessionState, agent string) {
	fmt.Fprint(out, "\033[H\033[2J") // clear screen
	fmt.Fprintf(out, "◉ agentdeck monitor  %s  %s\n\n", agent, st.LastPollAt.Local().Format("15:04:05"))

	if !st.AgentOnline {
		fmt.Fprintf(out, "%s  %s\n", pprint.StyleError.Render("○ offline"), st.LastError)
		if st.Stats != nil {
			fmt.Fprintf(out, "%s\n", pprint.StyleMuted.Render("last stats from "+st.StatsUpdatedAt.Local().Format("15:04:05")))
		}
	} else {
		fmt.Fprintln(out, pprint.StyleSuccess.Render("● online"))
	}
	if st.Stats == nil {
		return
	}

	s := st.Stats
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "\nRESOURCE\tUSED\tTOTAL\tPERCENT")
	fmt.Fprintln(w, "--------\t----\t-----\t-------")
	fmt.Fprintf(w, "cpu\t-\t-\t%.1f%%\n", s.CPUUsagePercent)
	fmt.Fprintf(w, "memory\t%s\t%s\t%.1f%%\n", pprint.FormatBytes(s.MemoryUsedBytes), pprint.FormatBytes(s.MemoryTotalBytes), s.MemoryUsedPercent)
	fmt.Fprintf(w, "disk\t%s\t%s\t%.1f%%\n", pprint.FormatBytes(s.DiskUsedBytes), pprint.FormatBytes(s.DiskTotalBytes), s.DiskUsedPercent)
	if m := s.Managed; m != nil {
		fmt.Fprintln(w, "\nMANAGED\tACTIVE\tSTOPPED\tCRASHED")
		fmt.Fprintln(w, "-------\t------\t-------\t-------")
		fmt.Fprintf(w, "apps\t%d\t%d\t%d\n", m.Apps.Active, m.Apps.Stopped, m.Apps.Crashed)
		fmt.Fprintf(w, "services\t%d\t%d\t%d\n", m.Services.Active, m.Services.Stopped, m.Services.Crashed)
		fmt.Fprintf(w, "addons\t%d enabled\t%d installed\t\n", m.Addons.Enabled, m.Addons.Installed)
	}
	_ = w.Flush()
}
