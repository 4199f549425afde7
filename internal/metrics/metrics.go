// Package metrics exposes the daemon's Prometheus registry, scraped at
// /metrics by the orchestrator's HTTP listener. Components never import
// the prometheus client directly; they report through the narrow
// Recorder surface this package defines, so a component's tests don't
// need a real registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the surface the event-bus bridge uses to report outcomes;
// components themselves stay metrics-agnostic and only emit events.Event
// values, matching the rest of the ambient stack's fan-out-from-bus
// design.
type Recorder interface {
	IncHarvest()
	IncClose()
	IncReconnect()
	SetQueueDepth(n int)
	SetInflight(n int)
	SetBalanceLamports(lamports uint64)
}

// Registry owns a dedicated prometheus.Registry (not the global default,
// so tests can construct as many as they like without collector
// registration panics) and the daemon's gauges/counters.
type Registry struct {
	reg *prometheus.Registry

	harvests    prometheus.Counter
	closes      prometheus.Counter
	reconnects  prometheus.Counter
	queueDepth  prometheus.Gauge
	inflight    prometheus.Gauge
	balance     prometheus.Gauge
}

// New builds a Registry with every collector registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		harvests: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvester_harvests_total",
			Help: "Total successful partial-withdrawal harvest transactions.",
		}),
		closes: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvester_position_closes_total",
			Help: "Total successful full-withdrawal close transactions.",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "harvester_stream_reconnects_total",
			Help: "Total stream reconnect attempts.",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_executor_queue_depth",
			Help: "Number of harvest jobs currently queued.",
		}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_executor_inflight",
			Help: "Number of harvest jobs currently executing.",
		}),
		balance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_signing_identity_balance_lamports",
			Help: "Last-sampled lamport balance of the signing identity.",
		}),
	}
}

// Gatherer exposes the underlying registry to the /metrics HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) IncHarvest()   { r.harvests.Inc() }
func (r *Registry) IncClose()     { r.closes.Inc() }
func (r *Registry) IncReconnect() { r.reconnects.Inc() }

func (r *Registry) SetQueueDepth(n int) { r.queueDepth.Set(float64(n)) }
func (r *Registry) SetInflight(n int)   { r.inflight.Set(float64(n)) }

func (r *Registry) SetBalanceLamports(lamports uint64) { r.balance.Set(float64(lamports)) }
