package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the only spec format version understood by this package.
const CurrentVersion = 1

// InputType is the declared type of a runtime input.
type InputType string

const (
	// InputPath is a filesystem path, passed through unchanged.
	InputPath InputType = "path"

	// InputStr is free text, passed through unchanged.
	InputStr InputType = "str"

	// InputInt is parsed as a base-10 integer.
	InputInt InputType = "int"

	// InputFloat is parsed as a 64-bit float.
	InputFloat InputType = "float"

	// InputBool accepts true/1 and false/0, case-insensitively.
	InputBool InputType = "bool"

	// InputJSON is parsed as a JSON literal.
	InputJSON InputType = "json"
)

// Validate checks if the input type is known.
func (t InputType) Validate() error {
	switch t {
	case InputPath, InputStr, InputInt, InputFloat, InputBool, InputJSON:
		return nil
	default:
		return fmt.Errorf("invalid input type: %s", t)
	}
}

// Context is a rendering target a processor can apply to.
type Context string

const (
	// Context2D is the flat map figure.
	Context2D Context = "2d"

	// Context3D is the elevation surface figure.
	Context3D Context = "3d"
)

// RunMode selects which figures a run produces.
type RunMode string

const (
	// RunMode2D renders only the 2D figure.
	RunMode2D RunMode = "fig2d"

	// RunMode3D renders only the 3D figure.
	RunMode3D RunMode = "fig3d"

	// RunModeBoth renders the 2D figure and then the 3D figure.
	RunModeBoth RunMode = "both"
)

// Validate checks if the run mode is known.
func (m RunMode) Validate() error {
	switch m {
	case RunMode2D, RunMode3D, RunModeBoth:
		return nil
	default:
		return fmt.Errorf("invalid run mode: %s", m)
	}
}

// Contexts returns the rendering contexts for the mode, in render order.
func (m RunMode) Contexts() []Context {
	switch m {
	case RunMode3D:
		return []Context{Context3D}
	case RunModeBoth:
		return []Context{Context2D, Context3D}
	default:
		return []Context{Context2D}
	}
}

// Input declares a value collected at run time.
type Input struct {
	// Name is the mapping key the input was declared under.
	Name string `json:"-" yaml:"-"`

	// Type drives how the raw text value is parsed.
	Type InputType `json:"type" yaml:"type" validate:"required,oneof=path str int float bool json"`

	// Default is used verbatim when no value is supplied.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`

	// Prompt is shown to the user when asking for the value.
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// Required defaults to true when omitted.
	Required *bool `json:"required,omitempty" yaml:"required,omitempty"`
}

// HasDefault reports whether the input declares a default value.
func (i Input) HasDefault() bool { return i.Default != nil }

// IsRequired reports whether a value must be supplied.
func (i Input) IsRequired() bool { return i.Required == nil || *i.Required }

// PromptText returns the prompt, falling back to a generated one.
func (i Input) PromptText() string {
	if i.Prompt != "" {
		return i.Prompt
	}
	return fmt.Sprintf("Enter %s (%s)", i.Name, i.Type)
}

// Inputs is the ordered set of input declarations. Order follows the
// document and drives prompting order.
type Inputs []Input

// Get returns the input called name.
func (in Inputs) Get(name string) (Input, bool) {
	for _, i := range in {
		if i.Name == name {
			return i, true
		}
	}
	return Input{}, false
}

// Names returns input names in declaration order.
func (in Inputs) Names() []string {
	names := make([]string, len(in))
	for idx, i := range in {
		names[idx] = i.Name
	}
	return names
}

// UnmarshalYAML decodes a mapping while keeping key order.
func (in *Inputs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*in = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: inputs must be a mapping", node.Line)
	}
	out := make(Inputs, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var decl Input
		if err := node.Content[i+1].Decode(&decl); err != nil {
			return fmt.Errorf("input %s: %w", node.Content[i].Value, err)
		}
		decl.Name = node.Content[i].Value
		out = append(out, decl)
	}
	*in = out
	return nil
}

// MarshalYAML encodes the inputs as an ordered mapping.
func (in Inputs) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, decl := range in {
		var val yaml.Node
		if err := val.Encode(decl); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: decl.Name}, &val)
	}
	return node, nil
}

// UnmarshalJSON decodes an object while keeping key order.
func (in *Inputs) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*in = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("inputs must be an object")
	}
	var out Inputs
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)
		var decl Input
		if err := dec.Decode(&decl); err != nil {
			return fmt.Errorf("input %s: %w", name, err)
		}
		decl.Name = name
		out = append(out, decl)
	}
	*in = out
	return nil
}

// MarshalJSON encodes the inputs as an ordered object.
func (in Inputs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for idx, decl := range in {
		if idx > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(decl.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(decl)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DataSource binds a loader to its parameters.
type DataSource struct {
	// Name is the mapping key the data source was declared under.
	Name string `json:"-" yaml:"-"`

	// Loader is the registered loader identifier.
	Loader string `json:"loader" yaml:"loader" validate:"required"`

	// Params are passed to the loader after reference resolution.
	Params Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// ProcessorSpec is one step of a map's processor chain.
type ProcessorSpec struct {
	// Name is the registered processor name.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Params are passed to the processor after reference resolution.
	Params Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// MapSpec declares one map layer.
type MapSpec struct {
	// Name identifies the map. Names are unique within a workflow.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Data is the name of the data source feeding the map.
	Data string `json:"data" yaml:"data" validate:"required"`

	// Cmap is the colormap name.
	Cmap string `json:"cmap,omitempty" yaml:"cmap,omitempty"`

	// Cbar is the colorbar label. Empty hides the colorbar.
	Cbar string `json:"cbar,omitempty" yaml:"cbar,omitempty"`

	// Alpha is the base layer opacity.
	Alpha *float64 `json:"alpha,omitempty" yaml:"alpha,omitempty" validate:"omitempty,gte=0,lte=1"`

	// Vmin and Vmax pin the color range. Unset bounds follow the data.
	Vmin *float64 `json:"vmin,omitempty" yaml:"vmin,omitempty"`
	Vmax *float64 `json:"vmax,omitempty" yaml:"vmax,omitempty"`

	// Draped marks the map as a texture over the 3D surface.
	Draped *bool `json:"draped,omitempty" yaml:"draped,omitempty"`

	// Lighting of the map's 3D surface. Unset values keep the defaults.
	Ambient        *float64 `json:"ambient,omitempty" yaml:"ambient,omitempty"`
	Diffuse        *float64 `json:"diffuse,omitempty" yaml:"diffuse,omitempty"`
	Specular       *float64 `json:"specular,omitempty" yaml:"specular,omitempty"`
	SpecularPower  *float64 `json:"specular_power,omitempty" yaml:"specular_power,omitempty"`
	LightAzimuth   *float64 `json:"light_azimuth,omitempty" yaml:"light_azimuth,omitempty"`
	LightElevation *float64 `json:"light_elevation,omitempty" yaml:"light_elevation,omitempty"`
	LightIntensity *float64 `json:"light_intensity,omitempty" yaml:"light_intensity,omitempty"`

	// SmoothShading overrides fig3d.smooth_shading for this map.
	SmoothShading *bool `json:"smooth_shading,omitempty" yaml:"smooth_shading,omitempty"`

	// EyeDomeLighting enables eye-dome lighting on the map's surface.
	EyeDomeLighting *bool `json:"eye_dome_lighting,omitempty" yaml:"eye_dome_lighting,omitempty"`

	// Processors run in order.
	Processors []ProcessorSpec `json:"processors,omitempty" yaml:"processors,omitempty" validate:"dive"`
}

// Action is a post-composition step applied to a 2D axis.
type Action struct {
	// Type names the action, e.g. "title" or "xlim".
	Type string `json:"type" yaml:"type" validate:"required"`

	// Axis is the zero-based axis index.
	Axis int `json:"axis" yaml:"axis" validate:"gte=0"`

	// Args holds the remaining action-specific keys.
	Args map[string]any `json:"-" yaml:",inline"`
}

// MarshalJSON flattens Args next to type and axis.
func (a Action) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Args)+2)
	for k, v := range a.Args {
		out[k] = v
	}
	out["type"] = a.Type
	out["axis"] = a.Axis
	return json.Marshal(out)
}

// UnmarshalJSON collects unknown keys into Args.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Action{}
	if t, ok := raw["type"].(string); ok {
		a.Type = t
	}
	if n, ok := raw["axis"].(float64); ok {
		a.Axis = int(n)
	}
	delete(raw, "type")
	delete(raw, "axis")
	if len(raw) > 0 {
		a.Args = raw
	}
	return nil
}

// Fig2D configures the flat figure.
type Fig2D struct {
	// Style is a named plot style.
	Style string `json:"style,omitempty" yaml:"style,omitempty"`

	// Figsize is width and height in inches.
	Figsize []float64 `json:"figsize,omitempty" yaml:"figsize,omitempty" validate:"omitempty,len=2,dive,gt=0"`

	// SavePath is where the figure is written.
	SavePath string `json:"save_path,omitempty" yaml:"save_path,omitempty"`

	// Show asks the builder to display the figure.
	Show *bool `json:"show,omitempty" yaml:"show,omitempty"`

	// Actions run after all maps are composed.
	Actions []Action `json:"actions,omitempty" yaml:"actions,omitempty" validate:"dive"`
}

// Fig3D configures the surface figure.
type Fig3D struct {
	Background     string   `json:"background,omitempty" yaml:"background,omitempty"`
	SmoothShading  *bool    `json:"smooth_shading,omitempty" yaml:"smooth_shading,omitempty"`
	ShowScalarBar  *bool    `json:"show_scalar_bar,omitempty" yaml:"show_scalar_bar,omitempty"`
	ZExaggeration  *float64 `json:"z_exaggeration,omitempty" yaml:"z_exaggeration,omitempty" validate:"omitempty,gt=0"`
	ScreenshotPath string   `json:"screenshot_path,omitempty" yaml:"screenshot_path,omitempty"`
	Show           *bool    `json:"show,omitempty" yaml:"show,omitempty"`
	SurfaceMap     string   `json:"surface_map,omitempty" yaml:"surface_map,omitempty"`

	// CameraPosition is a named view such as "iso" or a list of
	// [x, y, z] triples.
	CameraPosition any `json:"camera_position,omitempty" yaml:"camera_position,omitempty"`
}

// Run holds execution options.
type Run struct {
	// Mode selects the produced figures. Empty means fig2d.
	Mode RunMode `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=fig2d fig3d both"`
}

// Workflow is a complete, versioned visualization spec.
type Workflow struct {
	// Version must equal CurrentVersion.
	Version int `json:"version" yaml:"version" validate:"required,eq=1"`

	// Interactive asks for inputs even when defaults exist.
	Interactive bool `json:"interactive,omitempty" yaml:"interactive,omitempty"`

	// Inputs are resolved once per run.
	Inputs Inputs `json:"inputs,omitempty" yaml:"inputs,omitempty" validate:"dive"`

	// DataSources are keyed by name.
	DataSources map[string]DataSource `json:"data_sources" yaml:"data_sources" validate:"dive"`

	// Maps are composed in order.
	Maps []MapSpec `json:"maps" yaml:"maps" validate:"dive"`

	Fig2D *Fig2D `json:"fig2d,omitempty" yaml:"fig2d,omitempty"`
	Fig3D *Fig3D `json:"fig3d,omitempty" yaml:"fig3d,omitempty"`
	Run   Run    `json:"run,omitempty" yaml:"run,omitempty"`
}

// Mode returns the run mode, defaulting to fig2d.
func (w *Workflow) Mode() RunMode {
	if w.Run.Mode == "" {
		return RunMode2D
	}
	return w.Run.Mode
}

// DataSourceNames returns data source names in sorted order.
func (w *Workflow) DataSourceNames() []string {
	names := make([]string, 0, len(w.DataSources))
	for name := range w.DataSources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map returns the map called name.
func (w *Workflow) Map(name string) (MapSpec, bool) {
	for _, m := range w.Maps {
		if m.Name == name {
			return m, true
		}
	}
	return MapSpec{}, false
}

// normalize copies mapping keys into the Name fields.
func (w *Workflow) normalize() {
	for name, ds := range w.DataSources {
		ds.Name = name
		w.DataSources[name] = ds
	}
}
