package spec

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue/errors"
)

// Problem is a single finding from parsing or validating a workflow.
type Problem struct {
	Path    string `json:"path,omitempty"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	var b strings.Builder
	if p.File != "" {
		b.WriteString(p.File)
		if p.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", p.Line, p.Column)
		}
		b.WriteString(": ")
	}
	if p.Path != "" {
		b.WriteString(p.Path)
		b.WriteString(": ")
	}
	b.WriteString(p.Message)
	return b.String()
}

// Problems collects every finding so a single failed validation reports all
// of them at once.
type Problems []Problem

func (ps Problems) Error() string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return strings.Join(parts, "; ")
}

// Err returns ps as an error, or nil when empty.
func (ps Problems) Err() error {
	if len(ps) == 0 {
		return nil
	}
	return ps
}

// WithFile stamps file on every problem that has none.
func (ps Problems) WithFile(file string) Problems {
	for i := range ps {
		if ps[i].File == "" {
			ps[i].File = file
		}
	}
	return ps
}

// convertCUEErrors converts CUE errors to problems.
func convertCUEErrors(err error) Problems {
	var out Problems
	for _, e := range errors.Errors(err) {
		p := Problem{Message: errors.Details(e, nil)}
		if path := e.Path(); len(path) > 0 {
			p.Path = strings.Join(path, ".")
		}
		if pos := errors.Positions(e); len(pos) > 0 {
			p.File = pos[0].Filename()
			p.Line = pos[0].Line()
			p.Column = pos[0].Column()
		}
		out = append(out, p)
	}
	return out
}
