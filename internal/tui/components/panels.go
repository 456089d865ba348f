// Package components: agent resource, managed-count and tunnel panels, and modals.
package components

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	v1 "github.com/f9-o/agentdeck/api/v1"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F97316")).Bold(true).
			Padding(0, 1)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4A5568"))
	textStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E2E8F0"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#68D391")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F56565")).Bold(true)
)

// ─────────────────────────────────────────────────────────────────────────────
// Resources
// ─────────────────────────────────────────────────────────────────────────────

// RenderStats renders the CPU/memory/disk panel. Stats from before the agent
// went offline are still shown, marked with their age.
func RenderStats(st v1.SessionState, width int) string {
	content := titleStyle.Render("RESOURCES") + "\n\n"

	s := st.Stats
	if s == nil {
		msg := "Waiting for the first stats report..."
		if !st.LastPollAt.IsZero() && !st.AgentOnline {
			msg = "No stats yet: the agent is unreachable."
		}
		content += mutedStyle.Padding(0, 2).Render(msg)
		return lipgloss.NewStyle().Width(width).Render(content)
	}

	barWidth := width - 34
	if barWidth < 10 {
		barWidth = 10
	}
	content += fmt.Sprintf("  %-7s %s %5.1f%%\n", "CPU", usageBar(s.CPUUsagePercent, barWidth), s.CPUUsagePercent)
	content += fmt.Sprintf("  %-7s %s %5.1f%%  %s\n", "Memory", usageBar(s.MemoryUsedPercent, barWidth), s.MemoryUsedPercent,
		mutedStyle.Render(fmtBytes(s.MemoryUsedBytes)+"/"+fmtBytes(s.MemoryTotalBytes)))
	content += fmt.Sprintf("  %-7s %s %5.1f%%  %s\n", "Disk", usageBar(s.DiskUsedPercent, barWidth), s.DiskUsedPercent,
		mutedStyle.Render(fmtBytes(s.DiskUsedBytes)+"/"+fmtBytes(s.DiskTotalBytes)))

	if !st.StatsUpdatedAt.IsZero() {
		age := "updated " + st.StatsUpdatedAt.Local().Format("15:04:05")
		if !st.AgentOnline {
			age += " (stale)"
		}
		content += "\n  " + mutedStyle.Render(age)
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}

// RenderManaged renders Cloud-mode app, service and addon counts.
// It returns "" when the stats carry no managed section.
func RenderManaged(stats *v1.SystemStats, width int) string {
	if stats == nil || stats.Managed == nil {
		return ""
	}
	m := stats.Managed

	content := titleStyle.Render("MANAGED") + "\n\n"
	content += mutedStyle.Render(fmt.Sprintf("  %-10s %-8s %-8s %s", "", "ACTIVE", "STOPPED", "CRASHED")) + "\n"
	for _, row := range []struct {
		name string
		c    v1.StatusCounts
	}{{"apps", m.Apps}, {"services", m.Services}} {
		crashed := fmt.Sprint(row.c.Crashed)
		if row.c.Crashed > 0 {
			crashed = errStyle.Render(crashed)
		}
		content += textStyle.Render(fmt.Sprintf("  %-10s %-8d %-8d ", row.name, row.c.Active, row.c.Stopped)) + crashed + "\n"
	}
	content += textStyle.Render(fmt.Sprintf("  %-10s %d enabled / %d installed", "addons", m.Addons.Enabled, m.Addons.Installed))

	return lipgloss.NewStyle().Width(width).Render(content)
}

// RenderTunnel renders the tunnel state and the last toggle failure, if any.
func RenderTunnel(st v1.SessionState, provider string, width int) string {
	content := titleStyle.Render("TUNNEL") + "\n\n"

	if st.TunnelActive {
		content += "  " + okStyle.Render("● active") + mutedStyle.Render("  via "+provider) + "\n"
	} else {
		content += "  " + mutedStyle.Render("○ inactive") + "\n"
	}

	switch st.Config.Mode {
	case v1.ModeCloud:
		content += mutedStyle.Render("  node "+st.Config.NodeID) + "\n"
	case v1.ModeStandalone:
		content += mutedStyle.Render(fmt.Sprintf("  mesh port %d, api port %d", st.Config.EffectiveMeshPort(), st.Config.APIPort)) + "\n"
	}
	if st.TunnelError != "" {
		content += "\n  " + errStyle.Render(st.TunnelError) + "\n"
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}

// ─────────────────────────────────────────────────────────────────────────────
// Modal
// ─────────────────────────────────────────────────────────────────────────────

// Modal is a pop-over dialog.
type Modal struct {
	title     string
	body      string
	style     lipgloss.Style
	onConfirm func() tea.Cmd
	typ       modalType
}

type modalType int

const (
	modalConfirm modalType = iota
	modalHelp
)

// NewConfirmModal creates a destructive-action confirmation modal.
func NewConfirmModal(title, body string, style lipgloss.Style, onConfirm func() tea.Cmd) *Modal {
	return &Modal{
		title:     title,
		body:      body,
		style:     style,
		onConfirm: onConfirm,
		typ:       modalConfirm,
	}
}

// NewHelpModal creates the keyboard help modal.
func NewHelpModal(body string, style lipgloss.Style) *Modal {
	return &Modal{
		title: "Keyboard Shortcuts",
		body:  body,
		style: style,
		typ:   modalHelp,
	}
}

// HandleKey processes a key for the modal. Returns (cmd, done).
func (m *Modal) HandleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "esc", "q", "n":
		return nil, true
	case "enter", "y":
		if m.typ == modalConfirm && m.onConfirm != nil {
			return m.onConfirm(), true
		}
		return nil, true
	case "?":
		if m.typ == modalHelp {
			return nil, true
		}
	}
	return nil, false
}

// Overlay renders the modal centred in the terminal.
func (m *Modal) Overlay(width, height int) string {
	content := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#ECC94B")).Bold(true).
		Render("⚠  "+m.title) + "\n\n"
	content += m.body

	if m.typ == modalConfirm {
		content += "\n\n  [y/Enter] Confirm   [n/Esc] Cancel"
	} else {
		content += "\n\n  [Esc] Close"
	}

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, m.style.Render(content))
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func usageBar(pct float64, width int) string {
	filled := int(pct / 100.0 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	color := lipgloss.Color("#68D391")
	if pct > 90 {
		color = lipgloss.Color("#F56565")
	} else if pct > 70 {
		color = lipgloss.Color("#ECC94B")
	}
	return lipgloss.NewStyle().Foreground(color).Render("[" + bar + "]")
}

func fmtBytes(b uint64) string {
	switch {
	case b >= 1<<40:
		return fmt.Sprintf("%.1fT", float64(b)/float64(1<<40))
	case b >= 1<<30:
		return fmt.Sprintf("%.1fG", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1fK", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%dB", b)
	}
}

// Age formats how long ago t was, for compact status lines.
func Age(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t).Round(time.Second)
	if d < time.Second {
		return "just now"
	}
	return d.String() + " ago"
}
