package engine

import (
	"encoding/json"
	"fmt"
)

// Phase is the position of a run in the workflow lifecycle.
type Phase string

const (
	// PhaseParsed indicates the workflow document has been decoded.
	PhaseParsed Phase = "parsed"

	// PhaseValidated indicates every cross reference, registry lookup and
	// policy check passed.
	PhaseValidated Phase = "validated"

	// PhaseInputsResolved indicates all inputs have typed values.
	PhaseInputsResolved Phase = "inputs_resolved"

	// PhaseDataLoaded indicates every data source produced a grid.
	PhaseDataLoaded Phase = "data_loaded"

	// PhaseMapsBuilt indicates every map ran its processor chain.
	PhaseMapsBuilt Phase = "maps_built"

	// PhaseRendered indicates the figure builder finished.
	PhaseRendered Phase = "rendered"

	// PhaseFailed indicates the run stopped on an error.
	PhaseFailed Phase = "failed"
)

var phaseOrder = []Phase{
	PhaseParsed,
	PhaseValidated,
	PhaseInputsResolved,
	PhaseDataLoaded,
	PhaseMapsBuilt,
	PhaseRendered,
}

// Phases returns the successful lifecycle in order.
func Phases() []Phase {
	return append([]Phase(nil), phaseOrder...)
}

// IsTerminal returns true if no further transition is possible.
func (p Phase) IsTerminal() bool {
	return p == PhaseRendered || p == PhaseFailed
}

// Next returns the phase that follows p, or p itself when terminal.
func (p Phase) Next() Phase {
	for i, q := range phaseOrder {
		if q == p && i+1 < len(phaseOrder) {
			return phaseOrder[i+1]
		}
	}
	return p
}

// Validate checks if the phase is valid.
func (p Phase) Validate() error {
	switch p {
	case PhaseParsed, PhaseValidated, PhaseInputsResolved, PhaseDataLoaded,
		PhaseMapsBuilt, PhaseRendered, PhaseFailed:
		return nil
	default:
		return fmt.Errorf("invalid phase: %s", p)
	}
}

// MarshalJSON implements json.Marshaler.
func (p Phase) MarshalJSON() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(string(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	phase := Phase(s)
	if err := phase.Validate(); err != nil {
		return err
	}
	*p = phase
	return nil
}
