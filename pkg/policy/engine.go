package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/topoviz/topoviz/pkg/spec"
)

// Engine compiles Rego policies and evaluates workflows against them.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// NewEngine creates a policy engine holding the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := BuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStore(context.Background(), &builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}
	e.logger.Debug().Int("count", len(builtins)).Msg("Built-in policies loaded")
	return e, nil
}

// LoadPolicies loads and compiles policy files or directories.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range policies {
		if err := e.compileAndStore(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}
	e.logger.Info().Int("count", len(policies)).Msg("Policies loaded")
	return nil
}

// Evaluate runs every enabled policy against wf.
func (e *Engine) Evaluate(ctx context.Context, wf *spec.Workflow, source string) (*Result, error) {
	start := time.Now()
	doc, err := toGeneric(wf)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow for policy input: %w", err)
	}
	input := &Input{
		Workflow: doc,
		Context: &Context{
			Operation: "validate",
			Source:    source,
			Timestamp: start,
		},
	}
	raw, err := toGeneric(input)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true}
	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		rs, err := cp.query.Eval(ctx, rego.EvalInput(raw))
		if err != nil {
			e.logger.Error().Err(err).Str("policy", name).Msg("Policy evaluation failed")
			result.Warnings = append(result.Warnings, fmt.Sprintf("policy %s evaluation failed: %v", name, err))
			continue
		}
		for _, r := range rs {
			if len(r.Expressions) == 0 {
				continue
			}
			denied, ok := r.Expressions[0].Value.([]any)
			if !ok {
				continue
			}
			for _, d := range denied {
				v := newViolation(cp.policy, d)
				if v.Severity.Blocking() {
					result.Allowed = false
				}
				result.Violations = append(result.Violations, v)
			}
		}
	}
	sort.SliceStable(result.Violations, func(i, j int) bool {
		return result.Violations[i].Path < result.Violations[j].Path
	})
	result.Duration = time.Since(start)

	e.logger.Debug().
		Int("violations", len(result.Violations)).
		Bool("allowed", result.Allowed).
		Dur("duration", result.Duration).
		Msg("Workflow policy evaluation completed")
	return result, nil
}

func newViolation(p *Policy, raw any) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}
	switch d := raw.(type) {
	case string:
		v.Message = d
	case map[string]any:
		if msg, ok := d["message"].(string); ok {
			v.Message = msg
		}
		if path, ok := d["path"].(string); ok {
			v.Path = path
		}
		if sev, ok := d["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", raw)
	}
	return v
}

// compileAndStore parses policy, prepares its deny query and stores it.
func (e *Engine) compileAndStore(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name+".rego", policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	query, err := rego.New(
		rego.ParsedModule(module),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}
	e.policies[policy.Name] = &compiledPolicy{policy: policy, query: query}
	e.logger.Debug().Str("policy", policy.Name).Msg("Policy compiled")
	return nil
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		out = append(out, *e.policies[name].policy)
	}
	return out
}

// SetEnabled enables or disables a policy by name.
func (e *Engine) SetEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	return nil
}

func toGeneric(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
