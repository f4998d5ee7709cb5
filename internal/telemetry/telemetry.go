// Package telemetry traces the boot sequence with OpenTelemetry. The whole sequence is one span, with a child span
// per stage and an event per completed unit.
package telemetry

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/mkock/gameboot"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider hands out the tracer used for boot spans.
type Provider struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// Init returns a Provider for service. When enabled, spans are written to w as JSON; otherwise they are discarded.
func Init(service string, enabled bool, w io.Writer) (*Provider, error) {
	if !enabled || w == nil {
		tp := noop.NewTracerProvider()
		return &Provider{
			tracer:   tp.Tracer(service),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create trace exporter")
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	return NewProvider(tp, service), nil
}

// NewProvider wraps an SDK tracer provider.
func NewProvider(tp *sdktrace.TracerProvider, service string) *Provider {
	return &Provider{
		tracer:   tp.Tracer(service),
		shutdown: tp.Shutdown,
	}
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Wrap(p.shutdown(ctx), "shutdown tracer provider")
}

// Observer returns a gameboot.Observer that records the sequence as spans under ctx.
func (p *Provider) Observer(ctx context.Context, sequence string) gameboot.Observer {
	return &observer{ctx: ctx, tracer: p.tracer, sequence: sequence}
}

// observer turns scheduler events into spans. Scheduler events arrive on a single goroutine, but the lock keeps the
// observer safe to share.
type observer struct {
	mu       sync.Mutex
	ctx      context.Context
	tracer   trace.Tracer
	sequence string
	root     trace.Span
	rootCtx  context.Context
	stage    trace.Span
}

// StageStarted implements gameboot.Observer.
func (o *observer) StageStarted(stage, units int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.startRoot()
	_, o.stage = o.tracer.Start(o.rootCtx, "boot.stage", trace.WithAttributes(
		attribute.Int("boot.stage", stage),
		attribute.Int("boot.units", units),
	))
}

// UnitCompleted implements gameboot.Observer.
func (o *observer) UnitCompleted(p gameboot.Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stage == nil {
		return
	}
	o.stage.AddEvent("unit completed", trace.WithAttributes(
		attribute.String("boot.unit", p.Unit),
		attribute.Int("boot.done", p.Done),
		attribute.Int("boot.total", p.Total),
	))
}

// StageCompleted implements gameboot.Observer.
func (o *observer) StageCompleted(int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stage != nil {
		o.stage.End()
		o.stage = nil
	}
}

// SequenceCompleted implements gameboot.Observer.
func (o *observer) SequenceCompleted() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.startRoot()
	o.root.End()
}

// SequenceFailed implements gameboot.Observer. The open stage span and the boot span end with an error status.
func (o *observer) SequenceFailed(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stage != nil {
		o.stage.RecordError(err)
		o.stage.SetStatus(codes.Error, err.Error())
		o.stage.End()
		o.stage = nil
	}
	o.startRoot()
	o.root.RecordError(err)
	o.root.SetStatus(codes.Error, err.Error())
	o.root.End()
}

// startRoot starts the boot span for a sequence that ended before any stage began.
func (o *observer) startRoot() {
	if o.root == nil {
		o.rootCtx, o.root = o.tracer.Start(o.ctx, "boot", trace.WithAttributes(
			attribute.String("boot.sequence", o.sequence),
		))
	}
}
