package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Format is a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// FormatFromPath infers the format from a file extension. Unknown
// extensions are treated as YAML, which also accepts most JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".cue":
		return FormatCUE
	default:
		return FormatYAML
	}
}

// Parser decodes workflow documents and checks their structure.
type Parser struct {
	cueCtx   *cue.Context
	schemas  *SchemaRegistry
	validate *validator.Validate
}

// NewParser creates a parser with the built-in workflow schema.
func NewParser() *Parser {
	return &Parser{
		cueCtx:   cuecontext.New(),
		schemas:  NewSchemaRegistry(),
		validate: validator.New(),
	}
}

// Schemas returns the parser's schema registry.
func (p *Parser) Schemas() *SchemaRegistry { return p.schemas }

// Load reads and parses the workflow at path.
func (p *Parser) Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", path, err)
	}
	return p.Parse(data, FormatFromPath(path), path)
}

// Parse decodes data and validates it against the workflow schema and the
// struct constraints. Structural failures are returned as Problems.
func (p *Parser) Parse(data []byte, format Format, source string) (*Workflow, error) {
	doc, problems := p.decodeDocument(data, format, source)
	if len(problems) > 0 {
		return nil, problems.WithFile(source)
	}

	if problems := p.schemas.Validate(WorkflowSchema, doc); len(problems) > 0 {
		for i := range problems {
			problems[i].File, problems[i].Line, problems[i].Column = source, 0, 0
		}
		return nil, problems
	}

	var wf Workflow
	if err := decodeTyped(doc, data, format, &wf); err != nil {
		return nil, Problems{{File: source, Message: err.Error()}}
	}
	wf.normalize()

	if err := p.validate.Struct(&wf); err != nil {
		return nil, convertValidatorErrors(err).WithFile(source)
	}
	return &wf, nil
}

func (p *Parser) decodeDocument(data []byte, format Format, source string) (any, Problems) {
	var doc any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, Problems{{Message: fmt.Sprintf("invalid JSON: %v", err)}}
		}
		doc = normalizeNumbers(doc)
		if dups := jsonDuplicateDataSources(data); len(dups) > 0 {
			return nil, dups
		}
	case FormatCUE:
		val := p.cueCtx.CompileBytes(data, cue.Filename(source))
		if err := val.Err(); err != nil {
			return nil, convertCUEErrors(err)
		}
		if err := val.Decode(&doc); err != nil {
			return nil, convertCUEErrors(err)
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, Problems{{Message: fmt.Sprintf("invalid YAML: %v", err)}}
		}
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, Problems{{Message: "workflow document must be a mapping"}}
	}
	return doc, nil
}

// jsonDuplicateDataSources reports data source names given more than once.
// encoding/json keeps the last of duplicate keys, while YAML rejects them.
func jsonDuplicateDataSources(data []byte) Problems {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		if key, _ := tok.(string); key != "data_sources" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
			continue
		}
		if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
			return nil
		}
		var problems Problems
		seen := map[string]bool{}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return problems
			}
			name, _ := tok.(string)
			if seen[name] {
				problems = append(problems, Problem{Path: "data_sources." + name, Message: "duplicate data source name"})
			}
			seen[name] = true
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return problems
			}
		}
		return problems
	}
	return nil
}

// decodeTyped decodes into the typed model. CUE documents are re-encoded
// as JSON first.
func decodeTyped(doc any, data []byte, format Format, wf *Workflow) error {
	switch format {
	case FormatJSON:
		return json.Unmarshal(data, wf)
	case FormatCUE:
		buf, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return json.Unmarshal(buf, wf)
	default:
		return yaml.Unmarshal(data, wf)
	}
}

// normalizeNumbers turns json.Number into int64 when integral and float64
// otherwise, so CUE sees the same kinds YAML produces.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalizeNumbers(e)
		}
		return x
	default:
		return v
	}
}

func convertValidatorErrors(err error) Problems {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return Problems{{Message: err.Error()}}
	}
	out := make(Problems, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("failed %q constraint", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %q constraint (%s)", fe.Tag(), fe.Param())
		}
		out = append(out, Problem{Path: fe.Namespace(), Message: msg})
	}
	return out
}
