// Package components: TUI sub-components for the agentdeck dashboard.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	v1 "github.com/f9-o/agentdeck/api/v1"
)

// ─────────────────────────────────────────────────────────────────────────────
// Header component
// ─────────────────────────────────────────────────────────────────────────────

// Header renders the top status bar.
type Header struct {
	agent  string
	online bool
	polled bool
	mode   v1.Mode
	tunnel bool
}

// NewHeader creates a Header for the agent at url.
func NewHeader(agent string) Header {
	return Header{agent: agent}
}

// SetState copies the fields the header shows out of a session snapshot.
func (h *Header) SetState(st v1.SessionState) {
	h.online = st.AgentOnline
	h.polled = !st.LastPollAt.IsZero()
	h.mode = st.Config.Mode
	h.tunnel = st.TunnelActive
}

// View renders the header bar. Accepts total terminal width.
func (h *Header) View(width int) string {
	left := fmt.Sprintf(" ◉ AGENTDECK  %s ", h.agent)

	status := "… connecting"
	switch {
	case h.online:
		status = "● online"
	case h.polled:
		status = "○ offline"
	}
	mode := string(h.mode)
	if mode == "" {
		mode = "unconfigured"
	}
	tunnel := "tunnel off"
	if h.tunnel {
		tunnel = "tunnel on"
	}
	right := fmt.Sprintf(" %s · %s · %s ", status, mode, tunnel)

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return lipgloss.NewStyle().
		Background(lipgloss.Color("#F97316")).
		Foreground(lipgloss.Color("#0F1117")).
		Bold(true).
		Width(width).
		Render(left + strings.Repeat(" ", gap) + right)
}

// ─────────────────────────────────────────────────────────────────────────────
// Footer component
// ─────────────────────────────────────────────────────────────────────────────

// Hint is one key/description pair in the footer.
type Hint struct {
	Key, Desc string
}

// Footer renders the bottom hint bar.
type Footer struct {
	hints  []Hint
	err    string
	status string
}

// NewFooter creates a Footer.
func NewFooter() Footer { return Footer{} }

// SetHints replaces the key hints for the current screen.
func (f *Footer) SetHints(h []Hint) { f.hints = h }

// SetError sets an error message to display instead of the hints.
func (f *Footer) SetError(msg string) { f.err = msg }

// SetStatus shows a transient progress message, e.g. while an intent runs.
func (f *Footer) SetStatus(msg string) { f.status = msg }

// View renders the footer.
func (f *Footer) View(width int) string {
	content := ""
	for _, h := range f.hints {
		content += lipgloss.NewStyle().Foreground(lipgloss.Color("#F97316")).Bold(true).Render(h.Key)
		content += lipgloss.NewStyle().Foreground(lipgloss.Color("#4A5568")).Render(" " + h.Desc + "  ")
	}

	switch {
	case f.status != "":
		content = lipgloss.NewStyle().Foreground(lipgloss.Color("#38BDF8")).
			Render("⠿ " + f.status)
	case f.err != "":
		content = lipgloss.NewStyle().Foreground(lipgloss.Color("#F56565")).
			Render("Error: " + f.err)
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color("#1A1D29")).
		Width(width).Padding(0, 1).
		Render(content)
}
