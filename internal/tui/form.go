package tui

import (
	"strconv"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/internal/session"
	"github.com/f9-o/agentdeck/pkg/errs"
)

var modeChoices = []v1.Mode{v1.ModeCloud, v1.ModeStandalone}

type formField struct {
	name  string
	label string
	input textinput.Model
}

// form edits a DeploymentConfig: a mode selector followed by the text fields
// that apply to the selected mode. focus 0 is the selector.
type form struct {
	mode   v1.Mode
	fields map[string]*formField
	focus  int
	keys   Keymap
}

func newForm(cfg v1.DeploymentConfig) *form {
	f := &form{
		mode:   cfg.Mode,
		fields: make(map[string]*formField),
		keys:   defaultKeymap(),
	}
	if f.mode == v1.ModeUnset {
		f.mode = v1.ModeCloud
	}

	token := newInput("paste the cloud credential", cfg.Credential)
	token.EchoMode = textinput.EchoPassword
	token.EchoCharacter = '•'
	f.fields[session.FieldToken] = &formField{name: session.FieldToken, label: "Token", input: token}
	f.fields[session.FieldNodeID] = &formField{name: session.FieldNodeID, label: "Node ID", input: newInput("node-…", cfg.NodeID)}
	f.fields[session.FieldAPIPort] = &formField{name: session.FieldAPIPort, label: "API port", input: newInput(strconv.Itoa(v1.DefaultAPIPort), portString(cfg.APIPort))}
	f.fields[session.FieldMeshPort] = &formField{name: session.FieldMeshPort, label: "Mesh port", input: newInput(strconv.Itoa(v1.DefaultMeshPort), portString(cfg.MeshPort))}
	return f
}

func newInput(placeholder, value string) textinput.Model {
	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = placeholder
	in.CharLimit = 256
	in.Width = 40
	in.SetValue(value)
	return in
}

func portString(p int) string {
	if p == 0 {
		return ""
	}
	return strconv.Itoa(p)
}

// visible lists the text fields that apply to the selected mode, in display order.
func (f *form) visible() []*formField {
	if f.mode == v1.ModeStandalone {
		return []*formField{f.fields[session.FieldAPIPort], f.fields[session.FieldMeshPort]}
	}
	return []*formField{f.fields[session.FieldToken], f.fields[session.FieldNodeID]}
}

// Update handles navigation and forwards other keys to the focused input.
func (f *form) Update(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case f.keys.FieldNext, "down":
		return f.setFocus((f.focus + 1) % (len(f.visible()) + 1))
	case f.keys.FieldPrev, "up":
		n := len(f.visible()) + 1
		return f.setFocus((f.focus + n - 1) % n)
	}

	if f.focus == 0 {
		switch msg.String() {
		case f.keys.ModeLeft, f.keys.ModeRight, " ", "h", "l":
			f.toggleMode()
		}
		return nil
	}

	fld := f.visible()[f.focus-1]
	var cmd tea.Cmd
	fld.input, cmd = fld.input.Update(msg)
	return cmd
}

func (f *form) toggleMode() {
	if f.mode == v1.ModeCloud {
		f.mode = v1.ModeStandalone
	} else {
		f.mode = v1.ModeCloud
	}
}

func (f *form) setFocus(i int) tea.Cmd {
	f.focus = i
	var cmd tea.Cmd
	for idx, fld := range f.visible() {
		if idx+1 == i {
			cmd = fld.input.Focus()
		} else {
			fld.input.Blur()
		}
	}
	return cmd
}

// Values returns field name → raw input for the selected mode, mode included.
func (f *form) Values() [][2]string {
	out := [][2]string{{session.FieldMode, string(f.mode)}}
	for _, fld := range f.visible() {
		out = append(out, [2]string{fld.name, fld.input.Value()})
	}
	return out
}

// Config builds a DeploymentConfig from the inputs. Ports that are not
// numbers are reported here; range checks are left to the controller.
func (f *form) Config() (v1.DeploymentConfig, errs.FieldErrors) {
	cfg := v1.DeploymentConfig{Mode: f.mode}
	var fe errs.FieldErrors

	port := func(name string) int {
		raw := f.fields[name].input.Value()
		if raw == "" {
			return 0
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			if fe == nil {
				fe = errs.FieldErrors{}
			}
			fe[name] = "must be a number between 1024 and 65535"
		}
		return n
	}

	switch f.mode {
	case v1.ModeCloud:
		cfg.Credential = f.fields[session.FieldToken].input.Value()
		cfg.NodeID = f.fields[session.FieldNodeID].input.Value()
	case v1.ModeStandalone:
		cfg.APIPort = port(session.FieldAPIPort)
		cfg.MeshPort = port(session.FieldMeshPort)
	}
	return cfg, fe
}

// View renders the selector, the inputs and any field errors.
func (f *form) View(s Styles, fieldErrors map[string]string) string {
	label := s.Label
	if f.focus == 0 {
		label = s.LabelFocus
	}
	choices := ""
	for _, m := range modeChoices {
		if m == f.mode {
			choices += s.ChoiceSel.Render(string(m)) + " "
		} else {
			choices += s.Choice.Render(string(m)) + " "
		}
	}
	rows := []string{"  " + label.Render("Mode") + choices}
	if msg, ok := fieldErrors[session.FieldMode]; ok {
		rows = append(rows, s.FieldError.Render("mode "+msg))
	}
	rows = append(rows, "")

	for i, fld := range f.visible() {
		label := s.Label
		if f.focus == i+1 {
			label = s.LabelFocus
		}
		rows = append(rows, "  "+label.Render(fld.label)+fld.input.View())
		if msg, ok := fieldErrors[fld.name]; ok {
			rows = append(rows, s.FieldError.Render(fld.name+" "+msg))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
