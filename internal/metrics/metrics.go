// SPDX-License-Identifier: MPL-2.0

// Package metrics exposes coordinator phases and work admission as
// Prometheus metrics.
//
// All methods on a nil *Lifespan are no-ops, so callers can leave metrics
// disabled without guarding every call site.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/invowk/lifespan/pkg/lifespan"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lifespan"

var phases = []lifespan.Phase{
	lifespan.PhaseNotStarted,
	lifespan.PhaseStarting,
	lifespan.PhaseReady,
	lifespan.PhaseDraining,
	lifespan.PhaseStopped,
	lifespan.PhaseStartupFailed,
}

// Lifespan holds the collectors for one coordinator.
type Lifespan struct {
	// Phase is 1 for the current phase and 0 for every other.
	Phase *prometheus.GaugeVec

	// Transitions counts phase changes by source and destination.
	Transitions *prometheus.CounterVec

	// InFlight is the number of units of work currently admitted.
	InFlight prometheus.Gauge

	// Work counts admission attempts by outcome ("admitted", "rejected").
	Work *prometheus.CounterVec

	// StartupSeconds observes time from Starting to Ready or StartupFailed.
	StartupSeconds prometheus.Histogram

	// ShutdownSeconds observes time from Draining (or StartupFailed) to Stopped.
	ShutdownSeconds prometheus.Histogram

	mu     sync.Mutex
	marker time.Time
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics gathered by reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Lifespan {
	factory := promauto.With(reg)

	m := &Lifespan{
		Phase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "Current coordinator phase (1 for the active phase)",
		}, []string{"phase"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Total number of coordinator phase transitions",
		}, []string{"from", "to"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "work_in_flight",
			Help:      "Units of work begun and not yet ended",
		}),
		Work: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_total",
			Help:      "Work admission attempts by outcome",
		}, []string{"outcome"}),
		StartupSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "startup_duration_seconds",
			Help:      "Time spent acquiring resources during startup",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		ShutdownSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shutdown_duration_seconds",
			Help:      "Time spent draining work and releasing resources",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
	}

	m.setPhase(lifespan.PhaseNotStarted)
	return m
}

// Observer returns a lifespan.Observer that keeps the phase gauge current
// and times startup and shutdown.
func (m *Lifespan) Observer() lifespan.Observer {
	return func(t lifespan.Transition) {
		if m == nil {
			return
		}
		m.setPhase(t.To)
		m.Transitions.WithLabelValues(t.From.String(), t.To.String()).Inc()

		m.mu.Lock()
		defer m.mu.Unlock()
		switch t.To {
		case lifespan.PhaseStarting:
			m.marker = t.At
		case lifespan.PhaseReady:
			m.StartupSeconds.Observe(t.At.Sub(m.marker).Seconds())
		case lifespan.PhaseStartupFailed:
			m.StartupSeconds.Observe(t.At.Sub(m.marker).Seconds())
			m.marker = t.At
		case lifespan.PhaseDraining:
			m.marker = t.At
		case lifespan.PhaseStopped:
			if !m.marker.IsZero() && t.From != lifespan.PhaseNotStarted {
				m.ShutdownSeconds.Observe(t.At.Sub(m.marker).Seconds())
			}
		}
	}
}

func (m *Lifespan) setPhase(current lifespan.Phase) {
	for _, p := range phases {
		v := 0.0
		if p == current {
			v = 1
		}
		m.Phase.WithLabelValues(p.String()).Set(v)
	}
}

// WorkAdmitted records a successful BeginWork.
func (m *Lifespan) WorkAdmitted() {
	if m == nil {
		return
	}
	m.Work.WithLabelValues("admitted").Inc()
	m.InFlight.Inc()
}

// WorkRejected records a BeginWork refused because the coordinator was not
// ready.
func (m *Lifespan) WorkRejected() {
	if m == nil {
		return
	}
	m.Work.WithLabelValues("rejected").Inc()
}

// WorkEnded records an EndWork for admitted work.
func (m *Lifespan) WorkEnded() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}
