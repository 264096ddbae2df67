package observe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

const instrumentationName = "sparkling_bridge"

// OTelConfig configures NewOTelObserver.
type OTelConfig struct {
	// TracerProvider defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// ServiceName is the rpc.service attribute.
	ServiceName string
}

// OTelObserver opens a span when a handler body starts and ends it on delivery. Calls that never reach
// a handler still get a span covering dispatch to delivery. A handler that completes asynchronously
// gets a "handler.returned" event when its body returns.
type OTelObserver struct {
	cfg      OTelConfig
	tracer   trace.Tracer
	calls    metric.Int64Counter
	duration metric.Float64Histogram

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewOTelObserver creates an OTelObserver.
func NewOTelObserver(cfg OTelConfig) (*OTelObserver, error) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "bridge"
	}

	meter := cfg.MeterProvider.Meter(instrumentationName)
	calls, err := meter.Int64Counter("bridge.calls",
		metric.WithUnit("{call}"),
		metric.WithDescription("Number of delivered bridge calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("observe:otel - create call counter: %w", err)
	}
	duration, err := meter.Float64Histogram("bridge.call.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time from dispatch to delivery"),
	)
	if err != nil {
		return nil, fmt.Errorf("observe:otel - create duration histogram: %w", err)
	}

	return &OTelObserver{
		cfg:      cfg,
		tracer:   cfg.TracerProvider.Tracer(instrumentationName),
		calls:    calls,
		duration: duration,
		spans:    make(map[string]trace.Span),
	}, nil
}

func (o *OTelObserver) attrs(env *call.Envelope) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("rpc.system", "bridge"),
		attribute.String("rpc.service", o.cfg.ServiceName),
		attribute.String("rpc.method", env.MethodName),
		attribute.String("bridge.namespace", env.Namespace),
		attribute.String("bridge.platform", env.Platform.String()),
		attribute.String("bridge.thread", env.Thread.String()),
	}
}

func (o *OTelObserver) start(ctx context.Context, env *call.Envelope, opts ...trace.SpanStartOption) trace.Span {
	opts = append(opts, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(o.attrs(env)...))
	_, span := o.tracer.Start(ctx, "bridge/"+env.MethodName, opts...)
	return span
}

func (o *OTelObserver) BeforeInvoke(ctx context.Context, env *call.Envelope) {
	var opts []trace.SpanStartOption
	if env.Monitoring != nil && !env.Monitoring.Begin.IsZero() {
		opts = append(opts, trace.WithTimestamp(env.Monitoring.Begin))
	}
	span := o.start(ctx, env, opts...)
	o.mu.Lock()
	o.spans[env.CallbackID] = span
	o.mu.Unlock()
}

func (o *OTelObserver) AfterInvoke(_ context.Context, env *call.Envelope, elapsed time.Duration) {
	o.mu.Lock()
	span, ok := o.spans[env.CallbackID]
	o.mu.Unlock()
	if ok && span.IsRecording() {
		span.AddEvent("handler.returned", trace.WithAttributes(attribute.Float64("bridge.handler.seconds", elapsed.Seconds())))
	}
}

func (o *OTelObserver) OnDelivered(ctx context.Context, env *call.Envelope, r status.Result) {
	d := newDelivered(env, r)

	o.mu.Lock()
	span, ok := o.spans[env.CallbackID]
	delete(o.spans, env.CallbackID)
	o.mu.Unlock()
	if !ok {
		var opts []trace.SpanStartOption
		if env.Monitoring != nil && !env.Monitoring.Begin.IsZero() {
			opts = append(opts, trace.WithTimestamp(env.Monitoring.Begin))
		}
		span = o.start(ctx, env, opts...)
	}

	if span.IsRecording() {
		span.SetAttributes(
			attribute.Int("bridge.code", int(d.code)),
			attribute.Bool("bridge.business_handler", d.businessHit),
		)
		if r.OK() {
			span.SetStatus(codes.Ok, "")
		} else {
			span.SetStatus(codes.Error, d.message)
		}
	}
	span.End(trace.WithTimestamp(d.end))

	attrs := metric.WithAttributes(
		attribute.String("rpc.method", d.method),
		attribute.String("bridge.namespace", d.namespace),
		attribute.String("bridge.code", d.code.String()),
	)
	o.calls.Add(ctx, 1, attrs)
	o.duration.Record(ctx, d.duration.Seconds(), attrs)
}

// Pending reports how many spans are open.
func (o *OTelObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.spans)
}
