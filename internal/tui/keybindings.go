// Package tui: keyboard binding configuration.
package tui

// Keymap defines all keyboard shortcuts for the TUI.
type Keymap struct {
	Quit      string
	ForceQuit string
	FieldNext string
	FieldPrev string
	ModeLeft  string
	ModeRight string
	Submit    string
	Cancel    string
	Tunnel    string
	Settings  string
	Reset     string
	Logs      string
	Help      string
}

// defaultKeymap returns the default agentdeck TUI key bindings.
func defaultKeymap() Keymap {
	return Keymap{
		Quit:      "q",
		ForceQuit: "ctrl+c",
		FieldNext: "tab",
		FieldPrev: "shift+tab",
		ModeLeft:  "left",
		ModeRight: "right",
		Submit:    "enter",
		Cancel:    "esc",
		Tunnel:    "t",
		Settings:  "s",
		Reset:     "r",
		Logs:      "l",
		Help:      "?",
	}
}

// HelpText returns the keyboard shortcut reference displayed in the help modal.
func HelpText() string {
	return `
  DASHBOARD
  ──────────────────────────────────────
  t                  Start / stop tunnel
  s                  Open settings
  r                  Reset configuration
  l                  Show / hide logs

  FORMS
  ──────────────────────────────────────
  Tab / Shift+Tab    Next / previous field
  ← →                Switch mode
  Enter              Save
  Esc                Cancel (settings)

  MISC
  ──────────────────────────────────────
  ?                  Toggle this help
  q                  Quit
  Ctrl+C             Force quit
`
}
