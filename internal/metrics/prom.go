// Package metrics centralises Prometheus metric registration for the
// gateway binary. It exposes typed collectors and a Sink adapter so
// internal/telemetry can dual-export every flushed Report through the
// standard /metrics HTTP endpoint alongside whatever sink is configured for
// offline batches.
package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kestrelgw/appgw/internal/telemetry"
)

var (
	once sync.Once

	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "appgw",
		Subsystem: "gateway",
		Name:      "websocket_connections",
		Help:      "Current number of live websocket connections.",
	})

	CallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "appgw",
		Subsystem: "gateway",
		Name:      "calls_total",
		Help:      "Total resolved calls, partitioned by outcome.",
	}, []string{"outcome"})

	APIErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "appgw",
		Subsystem: "gateway",
		Name:      "api_errors_total",
		Help:      "API-surface errors, partitioned by plugin|method key.",
	}, []string{"key"})

	ServiceErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "appgw",
		Subsystem: "gateway",
		Name:      "service_errors_total",
		Help:      "Backend service-call errors, partitioned by plugin|service key.",
	}, []string{"key"})

	APILatencyMs = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "appgw",
		Subsystem: "gateway",
		Name:      "api_latency_ms",
		Help:      "API method latency in milliseconds, per flush batch.",
	}, []string{"key", "outcome"})

	ServiceLatencyMs = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "appgw",
		Subsystem: "gateway",
		Name:      "service_latency_ms",
		Help:      "Service-call latency in milliseconds, per flush batch.",
	}, []string{"key", "outcome"})
)

// Register exports all collectors; safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			Connections,
			CallsTotal,
			APIErrorsTotal,
			ServiceErrorsTotal,
			APILatencyMs,
			ServiceLatencyMs,
		)
	})
}

// Sink adapts the Prometheus collectors to telemetry.Sink, so a Report can
// be routed here in addition to (or instead of) a log/webhook sink.
type Sink struct{}

// NewSink returns a Sink; call Register once before wiring it in.
func NewSink() *Sink { return &Sink{} }

// Send implements telemetry.Sink.
func (Sink) Send(_ context.Context, report telemetry.Report) {
	Connections.Set(float64(report.WebsocketConnections))
	CallsTotal.WithLabelValues("success").Add(float64(report.SuccessfulCalls))
	CallsTotal.WithLabelValues("error").Add(float64(report.FailedCalls))

	for key, n := range report.APIErrorCounts {
		APIErrorsTotal.WithLabelValues(key).Add(float64(n))
	}
	for key, n := range report.ServiceErrorCounts {
		ServiceErrorsTotal.WithLabelValues(key).Add(float64(n))
	}
	observeStats(APILatencyMs, report.APIMethodStats)
	observeStats(ServiceLatencyMs, report.ServiceMethodStats)
	observeStats(APILatencyMs, report.APILatencyStats)
	observeStats(ServiceLatencyMs, report.ServiceLatencyStats)
}

func observeStats(vec *prometheus.SummaryVec, stats []telemetry.MethodStatsSnapshot) {
	for _, s := range stats {
		key := s.Plugin + "|" + s.Key
		if s.SuccessCount > 0 {
			vec.WithLabelValues(key, "success").Observe(s.SuccessAvgMs)
		}
		if s.ErrorCount > 0 {
			vec.WithLabelValues(key, "error").Observe(s.ErrorAvgMs)
		}
	}
}
