package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/topoviz/topoviz/pkg/spec"
)

// ParamFileHeader is the first line of a generated parameter file.
const ParamFileHeader = "# topoviz workflow parameters"

var (
	// ErrParamLine is returned for a parameter file line that is neither
	// blank, a comment nor name=value.
	ErrParamLine = errors.New("invalid parameter line")

	// ErrNoDefault is returned by CheckDefaults.
	ErrNoDefault = errors.New("inputs without a default")
)

// ParamFile reads input values from a flat parameter file. It never
// prompts.
type ParamFile struct {
	Path string
}

// Collect implements Runner.
func (f ParamFile) Collect(ctx context.Context, wf *spec.Workflow) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	values, err := ReadParamFile(f.Path)
	if err != nil {
		return nil, err
	}
	for name := range values {
		if _, ok := wf.Inputs.Get(name); !ok {
			log.Warn().Str("file", f.Path).Str("input", name).Msg("Parameter file sets an undeclared input")
		}
	}
	return values, nil
}

// DefaultParamPath is where the parameter file for a workflow file goes
// unless told otherwise.
func DefaultParamPath(specPath string) string {
	return specPath + ".params"
}

// ReadParamFile parses the parameter file at path.
func ReadParamFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parameter file: %w", err)
	}
	defer file.Close()

	values, err := ParseParams(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return values, nil
}

// ParseParams reads name=value lines. Blank lines and lines starting with
// "#" are skipped; names and values are trimmed. A later line overrides an
// earlier one for the same name.
func ParseParams(r io.Reader) (map[string]string, error) {
	values := make(map[string]string)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("line %d: %w %q, use name=value", lineNo, ErrParamLine, line)
		}
		values[name] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read parameters: %w", err)
	}
	return values, nil
}

// FormatParams writes one name=default line per input in declaration
// order. Inputs without a default get an empty value.
func FormatParams(w io.Writer, wf *spec.Workflow) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, ParamFileHeader)
	for _, decl := range wf.Inputs {
		if decl.Prompt != "" {
			fmt.Fprintf(bw, "# %s\n", decl.Prompt)
		}
		fmt.Fprintf(bw, "%s=%s\n", decl.Name, FormatValue(decl.Default))
	}
	return bw.Flush()
}

// WriteParamFile writes the parameter file for wf to path.
func WriteParamFile(path string, wf *spec.Workflow) error {
	var buf bytes.Buffer
	if err := FormatParams(&buf, wf); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write parameter file: %w", err)
	}
	return nil
}

// CheckDefaults fails when an input declares no default, since a
// parameter file generated for it would carry an empty value.
func CheckDefaults(wf *spec.Workflow) error {
	var missing []string
	for _, decl := range wf.Inputs {
		if !decl.HasDefault() {
			missing = append(missing, decl.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrNoDefault, strings.Join(missing, ", "))
	}
	return nil
}
