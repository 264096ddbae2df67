package observe

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

// Collector is an Observer that exports call counts and latencies to its own Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	inFlight        prometheus.Gauge
	calls           *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	handlerDuration *prometheus.HistogramVec
	businessHits    *prometheus.CounterVec
}

// CollectorParams holds the fields for NewCollector.
type CollectorParams struct {
	// Namespace prefixes every metric name. Defaults to "bridge".
	Namespace string
	// Runtime adds the Go and process collectors.
	Runtime bool
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector(p CollectorParams) *Collector {
	ns := p.Namespace
	if ns == "" {
		ns = "bridge"
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "handler",
			Name:      "inflight",
			Help:      "Handler bodies currently executing.",
		}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "calls",
			Name:      "total",
			Help:      "Delivered calls by method and result code.",
		}, []string{"namespace", "method", "code"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "calls",
			Name:      "duration_seconds",
			Help:      "Time from dispatch to delivery.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"namespace", "method"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "handler",
			Name:      "duration_seconds",
			Help:      "Time spent inside the handler body before it returned.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"method", "thread"}),
		businessHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "calls",
			Name:      "business_handler_total",
			Help:      "Calls claimed by a namespace business handler.",
		}, []string{"namespace"}),
	}
	c.registry.MustRegister(c.inFlight, c.calls, c.callDuration, c.handlerDuration, c.businessHits)
	if p.Runtime {
		c.registry.MustRegister(
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
			prometheus.NewGoCollector(),
		)
	}
	return c
}

// Registry returns the Prometheus registry backing c.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) BeforeInvoke(context.Context, *call.Envelope) {
	c.inFlight.Inc()
}

func (c *Collector) AfterInvoke(_ context.Context, env *call.Envelope, elapsed time.Duration) {
	c.inFlight.Dec()
	c.handlerDuration.WithLabelValues(env.MethodName, env.Thread.String()).Observe(elapsed.Seconds())
}

func (c *Collector) OnDelivered(_ context.Context, env *call.Envelope, r status.Result) {
	d := newDelivered(env, r)
	c.calls.WithLabelValues(d.namespace, d.method, strconv.Itoa(int(d.code))).Inc()
	c.callDuration.WithLabelValues(d.namespace, d.method).Observe(d.duration.Seconds())
	if d.businessHit {
		c.businessHits.WithLabelValues(d.namespace).Inc()
	}
}
