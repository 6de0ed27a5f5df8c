package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/topoviz/topoviz/pkg/grid"
	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/loaders"
	"github.com/topoviz/topoviz/pkg/mapobject"
	"github.com/topoviz/topoviz/pkg/policy"
	"github.com/topoviz/topoviz/pkg/processors"
	"github.com/topoviz/topoviz/pkg/spec"
	"github.com/topoviz/topoviz/pkg/telemetry"
)

// Engine drives a workflow through its phases. It holds no per-run state
// and may be reused for any number of sequential runs.
type Engine struct {
	loaders    *loaders.Registry
	processors *processors.Registry
	policy     *policy.Engine
	tel        *telemetry.Telemetry
}

// Option configures an Engine.
type Option func(*Engine)

// WithLoaders replaces the built-in loader registry.
func WithLoaders(r *loaders.Registry) Option {
	return func(e *Engine) { e.loaders = r }
}

// WithProcessors replaces the built-in processor registry.
func WithProcessors(r *processors.Registry) Option {
	return func(e *Engine) { e.processors = r }
}

// WithPolicy evaluates workflows against p during validation.
func WithPolicy(p *policy.Engine) Option {
	return func(e *Engine) { e.policy = p }
}

// WithTelemetry sets the logger, tracer, metrics and event sink.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(e *Engine) { e.tel = t }
}

// New creates an engine with the built-in registries and no policies.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.loaders == nil {
		e.loaders = loaders.Builtin()
	}
	if e.processors == nil {
		e.processors = processors.Builtin()
	}
	if e.tel == nil {
		e.tel = telemetry.Nop()
	}
	return e
}

// Loaders returns the loader registry in use.
func (e *Engine) Loaders() *loaders.Registry { return e.loaders }

// Processors returns the processor registry in use.
func (e *Engine) Processors() *processors.Registry { return e.processors }

// RunOptions configure a single run.
type RunOptions struct {
	// Source names the workflow document, for logs and policy input.
	Source string

	// Collector supplies raw input values. Nil uses declared defaults only.
	Collector InputCollector

	// Builder renders the figure. Nil stops after the maps are built and
	// still reports PhaseRendered with no artifacts.
	Builder FigureBuilder

	// Mode overrides the workflow's run mode when set.
	Mode spec.RunMode
}

// Validate checks wf without collecting inputs or touching data. Every
// problem is collected; the returned error is a validation EngineError
// wrapping spec.Problems when any blocks the run.
func (e *Engine) Validate(ctx context.Context, wf *spec.Workflow) (*Validation, error) {
	return e.validate(ctx, wf, "")
}

func (e *Engine) validate(ctx context.Context, wf *spec.Workflow, source string) (*Validation, error) {
	if wf == nil {
		return nil, NewValidationError("workflow is nil", nil)
	}

	v := &Validation{Problems: wf.Check()}

	for _, name := range wf.DataSourceNames() {
		ds := wf.DataSources[name]
		if !e.loaders.Has(ds.Loader) {
			v.Problems = append(v.Problems, spec.Problem{
				Path:    fmt.Sprintf("data_sources.%s.loader", name),
				Message: fmt.Sprintf("unknown loader %q", ds.Loader),
			})
		}
	}
	for i, m := range wf.Maps {
		for j, ps := range m.Processors {
			if !e.processors.Has(ps.Name) {
				v.Problems = append(v.Problems, spec.Problem{
					Path:    fmt.Sprintf("maps[%d].processors[%d].name", i, j),
					Message: fmt.Sprintf("unknown processor %q", ps.Name),
				})
			}
		}
	}
	if wf.Fig2D != nil {
		for i, a := range wf.Fig2D.Actions {
			if _, err := ParseAction(a); err != nil {
				v.Problems = append(v.Problems, spec.Problem{
					Path:    fmt.Sprintf("fig2d.actions[%d]", i),
					Message: err.Error(),
				})
			}
		}
	}

	if e.policy != nil {
		res, err := e.policy.Evaluate(ctx, wf, source)
		if err != nil {
			return nil, NewValidationError("policy evaluation failed", err).WithCode(ErrCodePolicyViolation)
		}
		v.Violations = res.Violations
		for _, viol := range res.Violations {
			if viol.Severity.Blocking() {
				v.Problems = append(v.Problems, spec.Problem{
					Path:    viol.Path,
					Message: fmt.Sprintf("policy %s: %s", viol.Policy, viol.Message),
				})
			}
		}
	}

	if !v.OK() {
		return v, NewValidationError("workflow validation failed", v.Problems).
			WithDetail("problems", len(v.Problems))
	}
	return v, nil
}

// Run executes wf through every phase. On failure the Result is nil and the
// error is an *EngineError naming the phase that could not be entered.
func (e *Engine) Run(ctx context.Context, wf *spec.Workflow, opts RunOptions) (*Result, error) {
	r := &run{
		engine: e,
		wf:     wf,
		opts:   opts,
		id:     uuid.New().String(),
		start:  time.Now(),
		phase:  PhaseParsed,
	}
	r.log = e.tel.Logger.NewComponentLogger("engine").WithRunID(r.id)
	if opts.Source != "" {
		r.log = r.log.WithField("spec", opts.Source)
	}

	ctx, span := e.tel.Tracer.StartRunSpan(ctx, r.id, opts.Source)
	e.tel.Metrics.RecordRunStarted()
	_ = e.tel.Events.PublishRunStarted(r.id, opts.Source)
	r.log.Info().Msg("Run started")

	res, err := r.execute(ctx)
	telemetry.End(span, err)
	if err != nil {
		var ee *EngineError
		if !errors.As(err, &ee) {
			ee = newError(ErrorClassRender, r.phase.Next(), "run failed", err)
		}
		e.tel.Metrics.RecordError(string(ee.Class))
		e.tel.Metrics.RecordRunCompleted(string(PhaseFailed), time.Since(r.start))
		_ = e.tel.Events.PublishRunFailed(r.id, string(ee.Phase), string(ee.Class), err)
		r.log.WithError(err).Error().
			Str("phase", string(ee.Phase)).
			Str("class", string(ee.Class)).
			Msg("Run failed")
		return nil, ee
	}

	res.Duration = time.Since(r.start)
	e.tel.Metrics.RecordRunCompleted(string(PhaseRendered), res.Duration)
	_ = e.tel.Events.PublishRunCompleted(r.id, res.Duration)
	r.log.Info().Dur("duration", res.Duration).Int("artifacts", len(res.Artifacts)).Msg("Run completed")
	return res, nil
}

// run carries the state of one execution.
type run struct {
	engine *Engine
	wf     *spec.Workflow
	opts   RunOptions
	id     string
	start  time.Time
	log    *telemetry.Logger

	phase  Phase
	values inputs.Values
	grids  map[string]*grid.Grid
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	res := &Result{RunID: r.id, Reports: make(map[string]processors.Report)}

	err := r.step(ctx, PhaseValidated, func(ctx context.Context) error {
		v, err := r.engine.validate(ctx, r.wf, r.opts.Source)
		if v != nil {
			for _, viol := range v.Violations {
				blocking := viol.Severity.Blocking()
				_ = r.engine.tel.Events.PublishPolicyViolation(r.id, viol.Policy, viol.Path, viol.Message, blocking)
				if !blocking {
					res.Warnings = append(res.Warnings, viol)
					r.log.Warn().Str("policy", viol.Policy).Str("path", viol.Path).Msg(viol.Message)
				}
			}
		}
		if err != nil {
			return err
		}
		if r.opts.Mode != "" {
			if err := r.opts.Mode.Validate(); err != nil {
				return NewValidationError("invalid run mode override", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := r.step(ctx, PhaseInputsResolved, r.resolveInputs); err != nil {
		return nil, err
	}
	if err := r.step(ctx, PhaseDataLoaded, r.loadData); err != nil {
		return nil, err
	}

	fig := &Figure{RunID: r.id, Workflow: r.wf, Mode: r.mode()}
	err = r.step(ctx, PhaseMapsBuilt, func(ctx context.Context) error {
		fig.Values = r.values
		return r.buildMaps(ctx, fig, res.Reports)
	})
	if err != nil {
		return nil, err
	}

	err = r.step(ctx, PhaseRendered, func(ctx context.Context) error {
		if r.opts.Builder == nil {
			return nil
		}
		artifacts, err := r.opts.Builder.Build(ctx, fig)
		if err != nil {
			return NewRenderError("figure build failed", err)
		}
		res.Artifacts = artifacts
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Phase = r.phase
	res.Figure = fig
	return res, nil
}

// step enters phase by running fn under a phase span. Cancellation is
// checked before the phase starts.
func (r *run) step(ctx context.Context, phase Phase, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return newError(classFor(phase), phase, "run cancelled", err).WithCode(ErrCodeCancelled)
	}

	start := time.Now()
	ctx, span := r.engine.tel.Tracer.StartPhaseSpan(ctx, string(phase))
	err := fn(ctx)
	telemetry.End(span, err)
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	r.phase = phase
	r.engine.tel.Metrics.RecordPhase(string(phase), elapsed)
	_ = r.engine.tel.Events.PublishPhaseCompleted(r.id, string(phase), elapsed)
	r.log.Info().Str("phase", string(phase)).Dur("elapsed", elapsed).Msg("Phase completed")
	return nil
}

func classFor(phase Phase) ErrorClass {
	switch phase {
	case PhaseValidated:
		return ErrorClassValidation
	case PhaseInputsResolved:
		return ErrorClassInput
	case PhaseDataLoaded:
		return ErrorClassLoader
	case PhaseMapsBuilt:
		return ErrorClassProcessor
	default:
		return ErrorClassRender
	}
}

func (r *run) mode() spec.RunMode {
	if r.opts.Mode != "" {
		return r.opts.Mode
	}
	return r.wf.Mode()
}

func (r *run) resolveInputs(ctx context.Context) error {
	var raw map[string]string
	if r.opts.Collector != nil {
		var err error
		raw, err = r.opts.Collector.Collect(ctx, r.wf)
		if err != nil {
			if errors.Is(err, inputs.ErrCancelled) {
				return NewInputError("input collection cancelled", err).WithCode(ErrCodeCancelled)
			}
			return NewInputError("input collection failed", err)
		}
	}

	vals, err := inputs.Resolve(r.wf.Inputs, raw)
	if err != nil {
		ee := NewInputError("input resolution failed", err)
		switch {
		case errors.Is(err, inputs.ErrMissingInput):
			ee.WithCode(ErrCodeMissingInput)
		case errors.Is(err, inputs.ErrConversion):
			ee.WithCode(ErrCodeConversion)
		}
		return ee
	}
	r.values = vals
	r.log.Debug().Int("inputs", vals.Len()).Msg("Inputs resolved")
	return nil
}

func (r *run) loadData(ctx context.Context) error {
	r.grids = make(map[string]*grid.Grid, len(r.wf.DataSources))
	for _, name := range r.wf.DataSourceNames() {
		if err := ctx.Err(); err != nil {
			return NewLoaderError("run cancelled", err).WithSource(name).WithCode(ErrCodeCancelled)
		}
		ds := r.wf.DataSources[name]
		desc, err := r.engine.loaders.Get(ds.Loader)
		if err != nil {
			return NewLoaderError("unknown loader", err).WithSource(name)
		}
		args, err := inputs.ResolveParams(ds.Params, r.values)
		if err != nil {
			return NewLoaderError("parameter resolution failed", err).WithSource(name)
		}

		start := time.Now()
		spanCtx, span := r.engine.tel.Tracer.StartLoaderSpan(ctx, name, desc.Name)
		g, err := desc.Load(spanCtx, args)
		telemetry.End(span, err)
		r.engine.tel.Metrics.RecordLoaderCall(desc.Name, time.Since(start), err)
		if err != nil {
			return NewLoaderError(fmt.Sprintf("loader %s failed", desc.Name), err).WithSource(name)
		}
		if g == nil {
			return NewLoaderError(fmt.Sprintf("loader %s returned no grid", desc.Name), nil).WithSource(name)
		}
		r.grids[name] = g
		r.log.WithSource(name).Debug().
			Str("loader", desc.Name).
			Int("rows", g.Rows).
			Int("cols", g.Cols).
			Msg("Data source loaded")
	}
	return nil
}

func (r *run) buildMaps(ctx context.Context, fig *Figure, reports map[string]processors.Report) error {
	pipeline := processors.NewPipeline(r.engine.processors, r.engine.tel.Metrics,
		processors.WithLogger(r.log.Zerolog()),
		processors.WithTracer(r.engine.tel.Tracer.Tracer()),
	)
	for _, c := range fig.Mode.Contexts() {
		set := LayerSet{Context: c, Maps: make([]*mapobject.MapObject, 0, len(r.wf.Maps))}
		for _, ms := range r.wf.Maps {
			m := mapobject.FromSpec(ms, r.grids[ms.Data], c)

			mapCtx, span := r.engine.tel.Tracer.StartMapSpan(ctx, ms.Name, string(c))
			report, err := pipeline.Run(mapCtx, m, r.values)
			telemetry.End(span, err)
			if err != nil {
				return processorError(ms.Name, err)
			}
			reports[string(c)+"/"+ms.Name] = report
			set.Maps = append(set.Maps, m)
		}
		fig.Sets = append(fig.Sets, set)
	}
	return nil
}

func processorError(mapName string, err error) *EngineError {
	ee := NewProcessorError("processor chain failed", err).WithMap(mapName)
	var step *processors.StepError
	if errors.As(err, &step) {
		ee.WithProcessor(step.Processor, step.Position)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		ee.WithCode(ErrCodeCancelled)
	}
	return ee
}
