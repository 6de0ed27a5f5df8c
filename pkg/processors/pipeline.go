package processors

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/topoviz/topoviz/pkg/inputs"
	"github.com/topoviz/topoviz/pkg/mapobject"
)

// StepError locates a failure inside a map's processor chain.
type StepError struct {
	Map       string
	Processor string
	Position  int
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("map %s: processor %s (step %d): %v", e.Map, e.Processor, e.Position, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Observer is notified about every step of a pipeline run.
type Observer interface {
	ProcessorApplied(mapName, processor string, elapsed time.Duration)
	ProcessorSkipped(mapName, processor string)
}

// Report lists what happened to each step.
type Report struct {
	Applied []string
	Skipped []string
}

// Pipeline runs processor chains against maps.
type Pipeline struct {
	registry *Registry
	observer Observer
	log      zerolog.Logger
	tracer   trace.Tracer
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger steps are reported to.
func WithLogger(l zerolog.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

// WithTracer sets the tracer each applied step gets a span from.
func WithTracer(t trace.Tracer) PipelineOption {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// NewPipeline creates a pipeline over registry. A nil observer is allowed.
// Without options the pipeline neither logs nor traces.
func NewPipeline(registry *Registry, observer Observer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		registry: registry,
		observer: observer,
		log:      zerolog.Nop(),
		tracer:   noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run applies m.Processors in order under m.Context. Steps whose
// applicability excludes the context are skipped without effect.
func (p *Pipeline) Run(ctx context.Context, m *mapobject.MapObject, vals inputs.Values) (Report, error) {
	var report Report
	for i, ps := range m.Processors {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		desc, err := p.registry.Get(ps.Name)
		if err != nil {
			return report, &StepError{Map: m.Name, Processor: ps.Name, Position: i, Err: err}
		}

		args, err := inputs.ResolveParams(ps.Params, vals)
		if err != nil {
			return report, &StepError{Map: m.Name, Processor: ps.Name, Position: i, Err: err}
		}

		if !desc.Applicability.AppliesTo(m.Context) {
			p.log.Debug().
				Str("map", m.Name).
				Str("processor", ps.Name).
				Str("context", string(m.Context)).
				Msg("Skipping processor outside its context")
			report.Skipped = append(report.Skipped, ps.Name)
			if p.observer != nil {
				p.observer.ProcessorSkipped(m.Name, ps.Name)
			}
			continue
		}

		start := time.Now()
		spanCtx, span := p.tracer.Start(ctx, "processor."+ps.Name, trace.WithAttributes(
			attribute.String("map", m.Name),
			attribute.String("processor", ps.Name),
			attribute.Int("position", i),
			attribute.String("context", string(m.Context)),
		))
		err = desc.Apply(spanCtx, m, args)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if err != nil {
			return report, &StepError{Map: m.Name, Processor: ps.Name, Position: i, Err: err}
		}
		elapsed := time.Since(start)

		p.log.Debug().
			Str("map", m.Name).
			Str("processor", ps.Name).
			Int("position", i).
			Dur("elapsed", elapsed).
			Msg("Applied processor")
		report.Applied = append(report.Applied, ps.Name)
		if p.observer != nil {
			p.observer.ProcessorApplied(m.Name, ps.Name, elapsed)
		}
	}
	return report, nil
}
