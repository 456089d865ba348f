// Package tui: Lipgloss style constants for the "Deck Dark" theme.
package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds all theme-aware Lipgloss styles.
type Styles struct {
	// Colors
	Background lipgloss.Color
	Surface    lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Danger     lipgloss.Color
	Warning    lipgloss.Color
	Success    lipgloss.Color
	Muted      lipgloss.Color
	Text       lipgloss.Color

	// Component styles
	Title       lipgloss.Style
	Subtitle    lipgloss.Style
	PanelTitle  lipgloss.Style
	Panel       lipgloss.Style
	LogViewport lipgloss.Style
	Banner      lipgloss.Style
	Label       lipgloss.Style
	LabelFocus  lipgloss.Style
	Choice      lipgloss.Style
	ChoiceSel   lipgloss.Style
	FieldError  lipgloss.Style
	Modal       lipgloss.Style
	StatusOK    lipgloss.Style
	StatusWarn  lipgloss.Style
	StatusErr   lipgloss.Style
	Dim         lipgloss.Style
}

// newStyles returns the "Deck Dark" theme styles.
func newStyles() Styles {
	bg := lipgloss.Color("#0F1117")
	surface := lipgloss.Color("#1A1D29")
	primary := lipgloss.Color("#F97316")
	accent := lipgloss.Color("#38BDF8")
	danger := lipgloss.Color("#F56565")
	warning := lipgloss.Color("#ECC94B")
	success := lipgloss.Color("#68D391")
	muted := lipgloss.Color("#4A5568")
	text := lipgloss.Color("#E2E8F0")

	return Styles{
		Background: bg, Surface: surface, Primary: primary,
		Accent: accent, Danger: danger, Warning: warning,
		Success: success, Muted: muted, Text: text,

		Title: lipgloss.NewStyle().
			Foreground(primary).Bold(true).Padding(1, 2, 0, 2),

		Subtitle: lipgloss.NewStyle().
			Foreground(muted).Padding(0, 2, 1, 2),

		PanelTitle: lipgloss.NewStyle().
			Foreground(primary).Bold(true).
			BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).
			BorderForeground(muted).Padding(0, 1),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),

		LogViewport: lipgloss.NewStyle().
			Background(bg).Foreground(text).
			Padding(0, 1),

		Banner: lipgloss.NewStyle().
			Background(danger).Foreground(bg).
			Bold(true).Padding(0, 1),

		Label: lipgloss.NewStyle().
			Foreground(muted).Width(12),

		LabelFocus: lipgloss.NewStyle().
			Foreground(accent).Bold(true).Width(12),

		Choice: lipgloss.NewStyle().
			Foreground(text).Padding(0, 1),

		ChoiceSel: lipgloss.NewStyle().
			Background(primary).Foreground(bg).Bold(true).Padding(0, 1),

		FieldError: lipgloss.NewStyle().
			Foreground(danger).PaddingLeft(14),

		Modal: lipgloss.NewStyle().
			Background(surface).Foreground(text).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primary).
			Padding(1, 2),

		StatusOK:   lipgloss.NewStyle().Foreground(success).Bold(true),
		StatusWarn: lipgloss.NewStyle().Foreground(warning),
		StatusErr:  lipgloss.NewStyle().Foreground(danger).Bold(true),
		Dim:        lipgloss.NewStyle().Foreground(muted),
	}
}
