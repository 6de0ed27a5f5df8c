// Package spec defines the versioned workflow document and everything
// needed to read, check and write it.
//
// # Overview
//
// A workflow declares typed inputs, named data sources bound to loaders,
// an ordered list of maps with processor chains, figure settings and a run
// mode. Documents are accepted as YAML, JSON or CUE:
//
//	p := spec.NewParser()
//	wf, err := p.Load("quickmap.yaml")
//	if err != nil {
//		// err is spec.Problems for structural failures
//	}
//	if problems := wf.Check(); len(problems) > 0 {
//		// undeclared $ref, duplicate map name, unknown data source...
//	}
//
// # Parameters
//
// Loader and processor parameters are a tagged union (Param): a literal,
// a reference written as {"$ref": "inputName"}, or a nested map or list of
// further params. References are never resolved here; see package inputs.
//
// # Validation
//
// Parsing runs in two layers. The decoded document is unified with a CUE
// schema (SchemaRegistry), then the typed model is checked with
// go-playground/validator struct tags. Workflow.Check adds the cross
// reference rules that need the whole document.
package spec
