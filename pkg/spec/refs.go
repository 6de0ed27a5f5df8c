package spec

import "fmt"

// RefSite is one "$ref" occurrence inside a workflow.
type RefSite struct {
	// Input is the referenced input name.
	Input string
	// Location is a dotted path to the reference, e.g.
	// "maps[0].processors[1].params.threshold".
	Location string
}

// References lists every input reference in document order: data sources
// by name, then maps.
func (w *Workflow) References() []RefSite {
	var sites []RefSite
	collect := func(loc, ref string) {
		sites = append(sites, RefSite{Input: ref, Location: loc})
	}
	for _, name := range w.DataSourceNames() {
		w.DataSources[name].Params.Walk(fmt.Sprintf("data_sources.%s.params", name), collect)
	}
	for i, m := range w.Maps {
		for j, ps := range m.Processors {
			ps.Params.Walk(fmt.Sprintf("maps[%d].processors[%d].params", i, j), collect)
		}
	}
	return sites
}

// DataSourceRefs returns the distinct inputs referenced by data source
// parameters.
func (w *Workflow) DataSourceRefs() map[string]bool {
	refs := map[string]bool{}
	for _, ds := range w.DataSources {
		for _, r := range ds.Params.Refs() {
			refs[r] = true
		}
	}
	return refs
}

// Check verifies the cross references of a parsed workflow: every "$ref"
// names a declared input, names are unique, and every map's data source
// exists. All findings are returned together.
func (w *Workflow) Check() Problems {
	var problems Problems

	if w.Version != CurrentVersion {
		problems = append(problems, Problem{Path: "version", Message: fmt.Sprintf("unsupported version %d", w.Version)})
	}
	if w.Run.Mode != "" {
		if err := w.Run.Mode.Validate(); err != nil {
			problems = append(problems, Problem{Path: "run.mode", Message: err.Error()})
		}
	}

	seenInputs := map[string]bool{}
	for _, in := range w.Inputs {
		if seenInputs[in.Name] {
			problems = append(problems, Problem{Path: "inputs." + in.Name, Message: "duplicate input name"})
		}
		seenInputs[in.Name] = true
		if err := in.Type.Validate(); err != nil {
			problems = append(problems, Problem{Path: "inputs." + in.Name, Message: err.Error()})
		}
	}

	for _, site := range w.References() {
		if !seenInputs[site.Input] {
			problems = append(problems, Problem{
				Path:    site.Location,
				Message: fmt.Sprintf("reference to undeclared input %q", site.Input),
			})
		}
	}

	seenMaps := map[string]bool{}
	for i, m := range w.Maps {
		if seenMaps[m.Name] {
			problems = append(problems, Problem{Path: fmt.Sprintf("maps[%d].name", i), Message: fmt.Sprintf("duplicate map name %q", m.Name)})
		}
		seenMaps[m.Name] = true
		if _, ok := w.DataSources[m.Data]; !ok {
			problems = append(problems, Problem{Path: fmt.Sprintf("maps[%d].data", i), Message: fmt.Sprintf("unknown data source %q", m.Data)})
		}
	}

	if w.Fig3D != nil && w.Fig3D.SurfaceMap != "" && !seenMaps[w.Fig3D.SurfaceMap] {
		problems = append(problems, Problem{Path: "fig3d.surface_map", Message: fmt.Sprintf("unknown map %q", w.Fig3D.SurfaceMap)})
	}
	return problems
}
