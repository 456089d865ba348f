// Package tui defines the Bubble Tea model for agentdeck's interactive dashboard.
//
// The model never mutates session state itself: it renders snapshots received
// from the controller subscription and turns keys into controller intents.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/tui/components"
	"github.com/f9-o/agentdeck/pkg/errs"
)

// maxLogLines bounds the log pane's history.
const maxLogLines = 500

// Controller is the part of the session controller the TUI drives.
type Controller interface {
	State() v1.SessionState
	Subscribe() (<-chan v1.SessionState, func())
	CompleteOnboarding(ctx context.Context, cfg v1.DeploymentConfig) error
	ToggleTunnel(ctx context.Context) error
	OpenSettings(ctx context.Context) error
	UpdateField(ctx context.Context, field, value string) error
	SaveSettings(ctx context.Context) error
	CancelSettings(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Config carries dependencies into the TUI app.
type Config struct {
	Controller Controller
	LogLines   <-chan string
	AgentURL   string
	Provider   string
	Context    context.Context
}

// Model is the root Bubble Tea model (Elm architecture).
type Model struct {
	cfg Config

	// Dimensions
	width  int
	height int

	// Session
	state       v1.SessionState
	updates     <-chan v1.SessionState
	unsubscribe func()
	busy        string

	// Screens
	form        *form
	formErrors  map[string]string
	showLogs    bool
	logViewport viewport.Model
	logLines    []string

	// Sub-components
	header components.Header
	footer components.Footer
	modal  *components.Modal

	keys   Keymap
	styles Styles
}

// stateMsg carries a snapshot from the controller subscription.
type stateMsg v1.SessionState

// subscriptionClosedMsg means the controller stopped.
type subscriptionClosedMsg struct{}

// logLineMsg carries a new log line from the logger sink.
type logLineMsg string

// intentDoneMsg reports the outcome of a dispatched intent.
type intentDoneMsg struct {
	op  string
	err error
}

// New constructs a new TUI Model subscribed to the controller.
func New(cfg Config) *Model {
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Provider == "" {
		cfg.Provider = v1.ProviderCloudflare
	}
	styles := newStyles()
	lv := viewport.New(0, 0)
	lv.Style = styles.LogViewport

	updates, unsubscribe := cfg.Controller.Subscribe()

	m := &Model{
		cfg:         cfg,
		updates:     updates,
		unsubscribe: unsubscribe,
		logViewport: lv,
		header:      components.NewHeader(cfg.AgentURL),
		footer:      components.NewFooter(),
		keys:        defaultKeymap(),
		styles:      styles,
	}
	m.applyState(cfg.Controller.State())
	return m
}

// Close ends the controller subscription.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Init
// ─────────────────────────────────────────────────────────────────────────────

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.waitForState(),
		m.waitForLog(),
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// Update
// ─────────────────────────────────────────────────────────────────────────────

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.logViewport.Width = m.width - 2
		m.logViewport.Height = max(m.height/3, 3)

	case tea.KeyMsg:
		if msg.String() == m.keys.ForceQuit {
			return m, tea.Quit
		}
		// Modal intercepts key events when open
		if m.modal != nil {
			cmd, done := m.modal.HandleKey(msg)
			if done {
				m.modal = nil
			}
			return m, cmd
		}
		return m, m.handleKey(msg)

	case stateMsg:
		m.applyState(v1.SessionState(msg))
		cmds = append(cmds, m.waitForState())

	case subscriptionClosedMsg:
		return m, tea.Quit

	case logLineMsg:
		m.logLines = append(m.logLines, string(msg))
		if len(m.logLines) > maxLogLines {
			m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
		}
		m.logViewport.SetContent(strings.Join(m.logLines, "\n"))
		m.logViewport.GotoBottom()
		cmds = append(cmds, m.waitForLog())

	case intentDoneMsg:
		m.busy = ""
		m.footer.SetStatus("")
		switch {
		case msg.err == nil:
			m.footer.SetError("")
		case errs.Fields(msg.err) != nil:
			// Shown next to the fields.
			m.footer.SetError("")
		default:
			m.footer.SetError(errs.Describe(msg.err))
		}
	}

	if m.showLogs {
		var lvCmd tea.Cmd
		m.logViewport, lvCmd = m.logViewport.Update(msg)
		cmds = append(cmds, lvCmd)
	}

	return m, tea.Batch(cmds...)
}

// applyState installs a snapshot and rebuilds the form when a form screen opens.
func (m *Model) applyState(st v1.SessionState) {
	prev := m.state.UIMode
	m.state = st
	m.header.SetState(st)

	if st.UIMode != prev {
		m.formErrors = nil
		switch st.UIMode {
		case v1.UIOnboarding:
			m.form = newForm(v1.DeploymentConfig{})
		case v1.UISettings:
			draft := st.Config
			if st.Draft != nil {
				draft = *st.Draft
			}
			m.form = newForm(draft)
		default:
			m.form = nil
		}
	}
	m.footer.SetHints(m.hints())
}

// handleKey routes keyboard input to the active screen.
func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch m.state.UIMode {
	case v1.UIOnboarding:
		return m.handleFormKey(msg, m.submitOnboarding)
	case v1.UISettings:
		if msg.String() == m.keys.Cancel {
			return m.dispatch("cancel settings", m.cfg.Controller.CancelSettings)
		}
		return m.handleFormKey(msg, m.submitSettings)
	default:
		return m.handleDashboardKey(msg)
	}
}

func (m *Model) handleFormKey(msg tea.KeyMsg, submit func() tea.Cmd) tea.Cmd {
	if m.form == nil {
		return nil
	}
	if msg.String() == m.keys.Submit {
		return submit()
	}
	return m.form.Update(msg)
}

func (m *Model) handleDashboardKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case m.keys.Quit:
		return tea.Quit

	case m.keys.Tunnel:
		label := "starting tunnel"
		if m.state.TunnelActive {
			label = "stopping tunnel"
		}
		return m.dispatch(label, m.cfg.Controller.ToggleTunnel)

	case m.keys.Settings:
		return m.dispatch("opening settings", m.cfg.Controller.OpenSettings)

	case m.keys.Reset:
		m.modal = components.NewConfirmModal(
			"Reset configuration?",
			"The saved deployment mode and credentials are forgotten\nand an active tunnel is stopped.",
			m.styles.Modal,
			func() tea.Cmd { return m.dispatch("resetting", m.cfg.Controller.Reset) },
		)

	case m.keys.Logs:
		m.showLogs = !m.showLogs

	case m.keys.Help:
		m.modal = components.NewHelpModal(HelpText(), m.styles.Modal)
	}
	return nil
}

func (m *Model) submitOnboarding() tea.Cmd {
	cfg, fe := m.form.Config()
	if fe != nil {
		m.formErrors = fe
		return nil
	}
	m.formErrors = nil
	return m.dispatch("saving", func(ctx context.Context) error {
		return m.cfg.Controller.CompleteOnboarding(ctx, cfg)
	})
}

func (m *Model) submitSettings() tea.Cmd {
	values := m.form.Values()
	m.formErrors = nil
	return m.dispatch("saving", func(ctx context.Context) error {
		var first error
		for _, kv := range values {
			if err := m.cfg.Controller.UpdateField(ctx, kv[0], kv[1]); err != nil && first == nil {
				first = err
			}
		}
		if first != nil {
			return first
		}
		return m.cfg.Controller.SaveSettings(ctx)
	})
}

// dispatch runs an intent off the UI goroutine. One intent runs at a time;
// keys pressed meanwhile are dropped.
func (m *Model) dispatch(label string, intent func(ctx context.Context) error) tea.Cmd {
	if m.busy != "" {
		return nil
	}
	m.busy = label
	m.footer.SetStatus(label + "...")
	ctx := m.cfg.Context
	return func() tea.Msg {
		return intentDoneMsg{op: label, err: intent(ctx)}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// View
// ─────────────────────────────────────────────────────────────────────────────

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.modal != nil {
		return m.modal.Overlay(m.width, m.height)
	}

	parts := []string{m.header.View(m.width)}
	if banner := m.banner(); banner != "" {
		parts = append(parts, banner)
	}

	switch m.state.UIMode {
	case v1.UIOnboarding:
		parts = append(parts,
			m.styles.Title.Render("Welcome to agentdeck"),
			m.styles.Subtitle.Render("Choose how this agent is deployed. Cloud connects to your account; standalone runs on its own ports."),
			m.renderForm(),
		)
	case v1.UISettings:
		parts = append(parts,
			m.styles.Title.Render("Settings"),
			m.styles.Subtitle.Render("Changes are validated and saved together. Esc discards them."),
			m.renderForm(),
		)
	default:
		parts = append(parts, m.renderDashboard())
	}

	body := lipgloss.JoinVertical(lipgloss.Left, parts...)
	footer := m.footer.View(m.width)
	gap := m.height - lipgloss.Height(body) - lipgloss.Height(footer)
	if gap > 0 {
		body += strings.Repeat("\n", gap)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

// banner reports an unreachable agent; navigation keeps working meanwhile.
func (m *Model) banner() string {
	if m.state.AgentOnline || m.state.LastPollAt.IsZero() || m.state.LastError == "" {
		return ""
	}
	return m.styles.Banner.Width(m.width).Render("agent unreachable: " + m.state.LastError)
}

func (m *Model) renderForm() string {
	if m.form == nil {
		return ""
	}
	fieldErrs := make(map[string]string, len(m.state.FieldErrors)+len(m.formErrors))
	for k, v := range m.state.FieldErrors {
		fieldErrs[k] = v
	}
	for k, v := range m.formErrors {
		fieldErrs[k] = v
	}
	return m.form.View(m.styles, fieldErrs)
}

func (m *Model) renderDashboard() string {
	colWidth := max((m.width-6)/2, 30)

	left := components.RenderStats(m.state, colWidth)
	right := components.RenderTunnel(m.state, m.cfg.Provider, colWidth)
	if managed := components.RenderManaged(m.state.Stats, colWidth); managed != "" {
		right = lipgloss.JoinVertical(lipgloss.Left, right, "", managed)
	}

	panels := lipgloss.JoinHorizontal(lipgloss.Top,
		m.styles.Panel.Render(left),
		m.styles.Panel.Render(right),
	)
	poll := m.styles.Dim.Render("  last poll " + components.Age(time.Now(), m.state.LastPollAt))

	if !m.showLogs {
		return lipgloss.JoinVertical(lipgloss.Left, panels, poll)
	}
	title := m.styles.PanelTitle.Render("LOGS")
	return lipgloss.JoinVertical(lipgloss.Left, panels, poll, title, m.logViewport.View())
}

func (m *Model) hints() []components.Hint {
	switch m.state.UIMode {
	case v1.UIOnboarding:
		return []components.Hint{{Key: "←→", Desc: "mode"}, {Key: "tab", Desc: "next field"}, {Key: "enter", Desc: "save"}, {Key: "ctrl+c", Desc: "quit"}}
	case v1.UISettings:
		return []components.Hint{{Key: "←→", Desc: "mode"}, {Key: "tab", Desc: "next field"}, {Key: "enter", Desc: "save"}, {Key: "esc", Desc: "cancel"}}
	default:
		tunnel := "start tunnel"
		if m.state.TunnelActive {
			tunnel = "stop tunnel"
		}
		return []components.Hint{{Key: "t", Desc: tunnel}, {Key: "s", Desc: "settings"}, {Key: "r", Desc: "reset"}, {Key: "l", Desc: "logs"}, {Key: "?", Desc: "help"}, {Key: "q", Desc: "quit"}}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands (subscription readers)
// ─────────────────────────────────────────────────────────────────────────────

func (m *Model) waitForState() tea.Cmd {
	ch := m.updates
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return subscriptionClosedMsg{}
		}
		return stateMsg(st)
	}
}

func (m *Model) waitForLog() tea.Cmd {
	if m.cfg.LogLines == nil {
		return nil
	}
	ch := m.cfg.LogLines
	return func() tea.Msg {
		line, ok := <-ch
		if !ok {
			return nil
		}
		return logLineMsg(line)
	}
}
