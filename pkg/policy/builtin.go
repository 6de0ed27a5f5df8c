package policy

// BuiltinPolicies returns the policies every engine starts with. None of
// them block a run.
func BuiltinPolicies() []Policy {
	return []Policy{
		namingPolicy(),
		promptsPolicy(),
		outputsPolicy(),
		chainLengthPolicy(),
	}
}

// namingPolicy keeps map and data source names usable as identifiers.
func namingPolicy() Policy {
	return Policy{
		Name:        "naming",
		Description: "Map and data source names should be lowercase identifiers",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package topoviz.policies.naming

import rego.v1

ident := "^[a-z][a-z0-9_]*$"

deny contains violation if {
	some i
	name := input.workflow.maps[i].name
	not regex.match(ident, name)
	violation := {
		"message": sprintf("map name '%s' should be a lowercase identifier", [name]),
		"path": sprintf("maps[%d].name", [i]),
	}
}

deny contains violation if {
	some name
	input.workflow.data_sources[name]
	not regex.match(ident, name)
	violation := {
		"message": sprintf("data source name '%s' should be a lowercase identifier", [name]),
		"path": sprintf("data_sources.%s", [name]),
	}
}`,
	}
}

// promptsPolicy flags inputs that will be prompted for without any hint.
func promptsPolicy() Policy {
	return Policy{
		Name:        "prompts",
		Description: "Required inputs without a default should carry prompt text",
		Severity:    SeverityInfo,
		Enabled:     true,
		Rego: `package topoviz.policies.prompts

import rego.v1

has_key(obj, key) if {
	_ = obj[key]
}

required(decl) if {
	not has_key(decl, "required")
}

required(decl) if {
	decl.required == true
}

deny contains violation if {
	some name
	decl := input.workflow.inputs[name]
	required(decl)
	not has_key(decl, "default")
	not has_key(decl, "prompt")
	violation := {
		"message": sprintf("input '%s' has no default and no prompt text", [name]),
		"path": sprintf("inputs.%s", [name]),
	}
}`,
	}
}

// outputsPolicy checks that figure output paths name a known image format.
func outputsPolicy() Policy {
	return Policy{
		Name:        "outputs",
		Description: "Figure output paths should use an image extension",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package topoviz.policies.outputs

import rego.v1

image_ext := "(?i)\\.(png|jpe?g|pdf|svg|tiff?)$"

deny contains violation if {
	p := input.workflow.fig2d.save_path
	not regex.match(image_ext, p)
	violation := {
		"message": sprintf("save path '%s' has no image extension", [p]),
		"path": "fig2d.save_path",
	}
}

deny contains violation if {
	p := input.workflow.fig3d.screenshot_path
	not regex.match(image_ext, p)
	violation := {
		"message": sprintf("screenshot path '%s' has no image extension", [p]),
		"path": "fig3d.screenshot_path",
	}
}`,
	}
}

// chainLengthPolicy flags unusually long processor chains.
func chainLengthPolicy() Policy {
	return Policy{
		Name:        "chain-length",
		Description: "Processor chains longer than 16 steps are likely a mistake",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package topoviz.policies.chain

import rego.v1

max_steps := 16

deny contains violation if {
	some i
	m := input.workflow.maps[i]
	count(m.processors) > max_steps
	violation := {
		"message": sprintf("map '%s' has %d processors (more than %d)", [m.name, count(m.processors), max_steps]),
		"path": sprintf("maps[%d].processors", [i]),
	}
}`,
	}
}
