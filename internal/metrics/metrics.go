// Package metrics holds the Prometheus collectors for the broadcast loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Tick stages that can fail independently.
const (
	StageSnapshot = "snapshot"
	StageEncode   = "encode"
	StageInject   = "inject"
	StagePublish  = "publish"
)

// Metrics groups the loop collectors.
type Metrics struct {
	Ticks           prometheus.Counter
	TickDuration    prometheus.Histogram
	TickErrors      *prometheus.CounterVec
	FaultsInjected  *prometheus.CounterVec
	Subscribers     prometheus.Gauge
	EventsDelivered *prometheus.CounterVec
	TicksSkipped    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_ticks_total",
			Help: "Broadcast ticks that ran to completion or failed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_tick_duration_seconds",
			Help:    "Wall time of one broadcast tick.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		TickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_tick_errors_total",
			Help: "Tick failures by stage.",
		}, []string{"stage"}),
		FaultsInjected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_faults_injected_total",
			Help: "Faults written by the injector.",
		}, []string{"fault_type"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_subscribers",
			Help: "Push-channel viewers registered at the last tick.",
		}),
		EventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_events_delivered_total",
			Help: "Successful per-viewer sends by event type.",
		}, []string{"type"}),
		TicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_ticks_skipped_total",
			Help: "Ticks skipped because the previous tick was still running.",
		}),
	}

	reg.MustRegister(
		m.Ticks,
		m.TickDuration,
		m.TickErrors,
		m.FaultsInjected,
		m.Subscribers,
		m.EventsDelivered,
		m.TicksSkipped,
	)
	return m
}
