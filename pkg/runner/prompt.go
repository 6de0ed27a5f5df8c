package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/spec"
)

// Prompt asks for inputs one line at a time. An empty answer keeps the
// default. A required input without a default is asked again until it is
// answered, and an answer that does not parse as the declared type is
// rejected. End of input cancels collection.
type Prompt struct {
	in  io.Reader
	out io.Writer

	label lipgloss.Style
	hint  lipgloss.Style
	fail  lipgloss.Style
}

// NewPrompt creates a prompt reading answers from in and writing
// questions to out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	r := lipgloss.NewRenderer(out)
	return &Prompt{
		in:    in,
		out:   out,
		label: r.NewStyle().Bold(true),
		hint:  r.NewStyle().Faint(true),
		fail:  r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// Collect implements Runner.
func (p *Prompt) Collect(ctx context.Context, wf *spec.Workflow) (map[string]string, error) {
	return p.Ask(ctx, Pending(wf, nil))
}

// Ask implements Asker.
func (p *Prompt) Ask(ctx context.Context, decls []spec.Input) (map[string]string, error) {
	reader := bufio.NewReader(p.in)
	values := make(map[string]string, len(decls))
	for _, decl := range decls {
		text, err := p.ask(ctx, reader, decl)
		if err != nil {
			return nil, err
		}
		if text != "" {
			values[decl.Name] = text
		}
	}
	log.Debug().Int("asked", len(decls)).Int("answered", len(values)).Msg("Prompt finished")
	return values, nil
}

func (p *Prompt) ask(ctx context.Context, reader *bufio.Reader, decl spec.Input) (string, error) {
	question := p.label.Render(decl.PromptText())
	if decl.HasDefault() {
		question += " " + p.hint.Render("["+FormatValue(decl.Default)+"]")
	}
	question += ": "

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprint(p.out, question)

		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			fmt.Fprintln(p.out)
			if errors.Is(err, io.EOF) {
				return "", inputs.ErrCancelled
			}
			return "", fmt.Errorf("failed to read %s: %w", decl.Name, err)
		}

		text := strings.TrimSpace(line)
		if text == "" {
			if decl.HasDefault() || !decl.IsRequired() {
				return "", nil
			}
			fmt.Fprintln(p.out, p.fail.Render("A value is required."))
			continue
		}
		if _, err := inputs.ParseValue(decl.Name, decl.Type, text); err != nil {
			fmt.Fprintln(p.out, p.fail.Render(err.Error()))
			continue
		}
		return text, nil
	}
}
