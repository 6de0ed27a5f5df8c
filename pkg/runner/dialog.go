package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/spec"
)

// Dialog asks for inputs with a full-screen terminal form. Fields start
// with their defaults filled in. Enter moves to the next field and submits
// from the last one; Esc or Ctrl+C cancels.
type Dialog struct {
	in  io.Reader
	out io.Writer
}

// NewDialog creates a dialog on the given terminal streams. Nil streams
// mean the process's standard input and output.
func NewDialog(in io.Reader, out io.Writer) *Dialog {
	return &Dialog{in: in, out: out}
}

// Collect implements Runner.
func (d *Dialog) Collect(ctx context.Context, wf *spec.Workflow) (map[string]string, error) {
	return d.Ask(ctx, Pending(wf, nil))
}

// Ask implements Asker.
func (d *Dialog) Ask(ctx context.Context, decls []spec.Input) (map[string]string, error) {
	if len(decls) == 0 {
		return map[string]string{}, nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if d.in != nil {
		opts = append(opts, tea.WithInput(d.in))
	}
	if d.out != nil {
		opts = append(opts, tea.WithOutput(d.out))
	}

	final, err := tea.NewProgram(newForm(decls), opts...).Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, tea.ErrInterrupted) {
			return nil, inputs.ErrCancelled
		}
		return nil, fmt.Errorf("input dialog failed: %w", err)
	}
	f, ok := final.(form)
	if !ok || f.cancelled {
		return nil, inputs.ErrCancelled
	}
	return f.values(), nil
}

var formKeys = struct {
	cancel, next, prev, enter key.Binding
}{
	cancel: key.NewBinding(key.WithKeys("esc", "ctrl+c")),
	next:   key.NewBinding(key.WithKeys("tab", "down")),
	prev:   key.NewBinding(key.WithKeys("shift+tab", "up")),
	enter:  key.NewBinding(key.WithKeys("enter")),
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	labelStyle   = lipgloss.NewStyle().Bold(true)
	focusStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	hintStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	fieldPadding = lipgloss.NewStyle().PaddingLeft(2)
)

// form is the bubbletea model behind Dialog.
type form struct {
	decls     []spec.Input
	fields    []textinput.Model
	focus     int
	err       string
	submitted bool
	cancelled bool
}

func newForm(decls []spec.Input) form {
	f := form{decls: decls, fields: make([]textinput.Model, len(decls))}
	for i, decl := range decls {
		ti := textinput.New()
		ti.Prompt = "> "
		ti.Width = 48
		ti.Placeholder = string(decl.Type)
		if decl.Type == spec.InputBool {
			ti.Placeholder = "true/false"
		}
		if decl.HasDefault() {
			ti.SetValue(FormatValue(decl.Default))
		}
		f.fields[i] = ti
	}
	f.fields[0].Focus()
	return f
}

func (f form) Init() tea.Cmd {
	return textinput.Blink
}

func (f form) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return f.updateField(msg)
	}
	switch {
	case key.Matches(km, formKeys.cancel):
		f.cancelled = true
		return f, tea.Quit
	case key.Matches(km, formKeys.next):
		return f.move(1), textinput.Blink
	case key.Matches(km, formKeys.prev):
		return f.move(-1), textinput.Blink
	case key.Matches(km, formKeys.enter):
		if f.focus < len(f.fields)-1 {
			return f.move(1), textinput.Blink
		}
		return f.submit()
	}
	return f.updateField(msg)
}

func (f form) updateField(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	f.fields[f.focus], cmd = f.fields[f.focus].Update(msg)
	return f, cmd
}

// move shifts focus by delta, wrapping around.
func (f form) move(delta int) form {
	f.fields[f.focus].Blur()
	f.focus = (f.focus + delta + len(f.fields)) % len(f.fields)
	f.fields[f.focus].Focus()
	return f
}

// submit checks every field and quits when all are acceptable.
func (f form) submit() (tea.Model, tea.Cmd) {
	var missing, invalid []string
	for i, decl := range f.decls {
		text := strings.TrimSpace(f.fields[i].Value())
		if text == "" {
			if decl.IsRequired() && !decl.HasDefault() {
				missing = append(missing, decl.Name)
			}
			continue
		}
		if _, err := inputs.ParseValue(decl.Name, decl.Type, text); err != nil {
			invalid = append(invalid, decl.Name)
		}
	}
	switch {
	case len(missing) > 0:
		f.err = "Missing required values for: " + strings.Join(missing, ", ")
		return f, nil
	case len(invalid) > 0:
		f.err = "Invalid values for: " + strings.Join(invalid, ", ")
		return f, nil
	}
	f.err = ""
	f.submitted = true
	return f, tea.Quit
}

// values returns the non-empty answers.
func (f form) values() map[string]string {
	out := make(map[string]string, len(f.fields))
	for i, decl := range f.decls {
		if text := strings.TrimSpace(f.fields[i].Value()); text != "" {
			out[decl.Name] = text
		}
	}
	return out
}

func (f form) View() string {
	if f.submitted || f.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("topoviz workflow inputs"))
	b.WriteString("\n")
	for i, decl := range f.decls {
		label := labelStyle
		if i == f.focus {
			label = focusStyle
		}
		b.WriteString(label.Render(decl.PromptText()))
		hint := string(decl.Type)
		if !decl.IsRequired() {
			hint += ", optional"
		}
		b.WriteString(" " + hintStyle.Render("("+hint+")"))
		b.WriteString("\n")
		b.WriteString(fieldPadding.Render(f.fields[i].View()))
		b.WriteString("\n\n")
	}
	if f.err != "" {
		b.WriteString(errorStyle.Render(f.err))
		b.WriteString("\n\n")
	}
	b.WriteString(hintStyle.Render("tab/↓ next • shift+tab/↑ previous • enter submit • esc cancel"))
	b.WriteString("\n")
	return b.String()
}
