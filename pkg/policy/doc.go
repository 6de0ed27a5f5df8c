// Package policy evaluates workflows against Open Policy Agent (OPA) Rego
// policies during validation.
//
// Every policy is a Rego module whose package defines a deny set. Each
// element is either a message string or an object with message, path and
// severity keys. The input document is
//
//	{
//	  "workflow": { ... the workflow in its JSON shape ... },
//	  "context":  {"operation": "validate", "source": "relief.yaml", "timestamp": "..."}
//	}
//
// # Built-in Policies
//
//   - naming: map and data source names should be lowercase identifiers (warning)
//   - prompts: required inputs without default should have prompt text (info)
//   - outputs: figure output paths should carry an image extension (warning)
//   - chain-length: more than 16 processors on one map (warning)
//
// Built-ins never block a run. Policies loaded from files default to error
// severity, which fails validation:
//
//	# Relief maps must be smoothed before shading.
//	# severity: error
//	package site.smoothing
//
//	import rego.v1
//
//	deny contains msg if {
//		some m in input.workflow.maps
//		m.processors[0].name != "gaussian_smooth"
//		msg := sprintf("map %s does not start with gaussian_smooth", [m.name])
//	}
//
// JSON policy files carry the Policy fields directly.
package policy
