package spec

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// WorkflowSchema is the name of the built-in document schema.
const WorkflowSchema = "workflow"

// SchemaRegistry manages CUE schemas for document validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with the built-in schema.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	if err := sr.RegisterSchema(WorkflowSchema, builtinWorkflowSchema, "#Workflow"); err != nil {
		panic(err)
	}
	return sr
}

// RegisterSchema compiles schema and registers the definition at path under
// name.
func (sr *SchemaRegistry) RegisterSchema(name, schema, path string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	def := val.LookupPath(cue.ParsePath(path))
	if !def.Exists() {
		return fmt.Errorf("schema %s has no definition %s", name, path)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Validate checks a decoded document against a named schema and returns
// one problem per CUE error.
func (sr *SchemaRegistry) Validate(schemaName string, doc any) Problems {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return Problems{{Message: fmt.Sprintf("schema %s not found", schemaName)}}
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	dataVal := sr.ctx.Encode(doc)
	if err := dataVal.Err(); err != nil {
		return convertCUEErrors(err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err)
	}
	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinWorkflowSchema = `
#Input: {
	type: "path" | "str" | "int" | "float" | "bool" | "json"
	default?: _
	prompt?: string
	required?: bool
}

#Params: null | {[string]: _}

#DataSource: {
	loader: string & !=""
	params?: #Params
}

#Processor: {
	name: string & !=""
	params?: #Params
}

#Map: {
	name: string & !=""
	data: string & !=""
	cmap?: string
	cbar?: string
	alpha?: number & >=0 & <=1
	vmin?: number
	vmax?: number
	draped?: bool
	ambient?: number
	diffuse?: number
	specular?: number
	specular_power?: number
	light_azimuth?: number
	light_elevation?: number
	light_intensity?: number
	smooth_shading?: bool
	eye_dome_lighting?: bool
	processors?: null | [...#Processor]
}

#Action: {
	type: string & !=""
	axis?: number & >=0
	...
}

#Fig2D: {
	style?: string
	figsize?: [number, number]
	save_path?: string
	show?: bool
	actions?: null | [...#Action]
}

#Fig3D: {
	background?: string
	smooth_shading?: bool
	show_scalar_bar?: bool
	z_exaggeration?: number & >0
	screenshot_path?: string
	show?: bool
	surface_map?: string
	camera_position?: string | [...[number, number, number]]
}

#Workflow: {
	version: number & >=1 & <=1
	interactive?: bool
	inputs?: null | {[string]: #Input}
	data_sources: {[string]: #DataSource}
	maps: [...#Map]
	fig2d?: null | #Fig2D
	fig3d?: null | #Fig3D
	run?: null | {
		mode?: "fig2d" | "fig3d" | "both"
	}
}
`
