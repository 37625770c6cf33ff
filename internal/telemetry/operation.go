// Package telemetry traces a server run. The root span lists the services
// planned for the run, and each service gets a child span recording how it
// ended.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	PlanEventName   = "wgserv.plan"
	PlanServicesKey = "wgserv.plan.services"
	PlanTitlesKey   = "wgserv.plan.titles"
	OutcomeKey      = "wgserv.outcome"
	instrumentation = "wgserv"
)

// Service is one unit planned for a run.
type Service struct {
	ID    string
	Title string
}

// Run is the root span of one supervised run.
type Run struct {
	ctx    context.Context
	tracer trace.Tracer
	span   trace.Span
}

// Tracer returns the process-wide tracer for wgserv. It is a no-op until an
// SDK tracer provider is installed with otel.SetTracerProvider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentation)
}

// Start opens the root span named operation and records the planned
// services on it.
func Start(ctx context.Context, tracer trace.Tracer, operation string, services []Service) (*Run, error) {
	if tracer == nil {
		return nil, fmt.Errorf("start run trace: tracer is required")
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		return nil, fmt.Errorf("start run trace: operation name is required")
	}

	ids := make([]string, 0, len(services))
	titles := make([]string, 0, len(services))
	seen := make(map[string]struct{}, len(services))
	for i, svc := range services {
		id := strings.TrimSpace(svc.ID)
		if id == "" {
			return nil, fmt.Errorf("start run trace: service %d has empty id", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("start run trace: duplicate service %q", id)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		titles = append(titles, svc.Title)
	}

	plan := []attribute.KeyValue{
		attribute.StringSlice(PlanServicesKey, ids),
		attribute.StringSlice(PlanTitlesKey, titles),
	}
	spanCtx, span := tracer.Start(ctx, operation, trace.WithAttributes(plan...))
	span.AddEvent(PlanEventName, trace.WithAttributes(plan...))
	return &Run{ctx: spanCtx, tracer: tracer, span: span}, nil
}

func (r *Run) Context() context.Context {
	if r == nil {
		return context.Background()
	}
	return r.ctx
}

// Service runs fn inside a child span named id. fn returns how the service
// ended, which is recorded under OutcomeKey, and its error, which marks the
// span failed.
func (r *Run) Service(ctx context.Context, id string, fn func(context.Context) (string, error)) error {
	if r == nil || r.tracer == nil {
		_, err := fn(ctx)
		return err
	}
	if ctx == nil {
		ctx = r.ctx
	}

	spanCtx, span := r.tracer.Start(ctx, id)
	defer span.End()

	outcome, err := fn(spanCtx)
	span.SetAttributes(attribute.String(OutcomeKey, outcome))
	fail(span, err)
	return err
}

// End records the run's overall outcome and closes the root span.
func (r *Run) End(outcome string, err error) {
	if r == nil || r.span == nil {
		return
	}
	r.span.SetAttributes(attribute.String(OutcomeKey, outcome))
	fail(r.span, err)
	r.span.End()
}

func fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
}
