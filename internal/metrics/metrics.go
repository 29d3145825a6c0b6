// Package metrics exposes engine and publish cache activity as Prometheus collectors.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/publish"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "arbor"

// Metrics holds the collectors. It implements publish.Observer.
type Metrics struct {
	stateVisits  *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	publishes    *prometheus.CounterVec
	evictions    prometheus.Counter
	sweepSeconds prometheus.Histogram
	persists     *prometheus.CounterVec
	indexEntries prometheus.Gauge
	requests     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stateVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_visits_total",
			Help:      "Total number of states entered by the engine.",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Total number of transitions taken, by whether the default event was substituted.",
		}, []string{"fallback"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "lookups_total",
			Help:      "Publish cache lookups by publisher and result.",
		}, []string{"publisher", "result"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "writes_total",
			Help:      "Artifact writes by publisher and outcome.",
		}, []string{"publisher", "outcome"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "evictions_total",
			Help:      "Records evicted by the expiration sweep.",
		}),
		sweepSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of expiration sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		persists: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "persists_total",
			Help:      "Index persistence attempts by outcome.",
		}, []string{"outcome"}),
		indexEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "index_entries",
			Help:      "Entries in the last persisted index.",
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Controller request duration by cache outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"cached"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.stateVisits, m.transitions, m.cacheLookups, m.publishes,
			m.evictions, m.sweepSeconds, m.persists, m.indexEntries, m.requests,
		)
	}
	return m
}

// Hooks returns engine lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateEnter: func(_ context.Context, e *domain.StateEvent) {
			m.stateVisits.WithLabelValues(string(e.Kind)).Inc()
		},
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.transitions.WithLabelValues(strconv.FormatBool(e.Hop.Fallback)).Inc()
		},
	}
}

// ObserveRequest records a controller request.
func (m *Metrics) ObserveRequest(cached bool, took time.Duration) {
	m.requests.WithLabelValues(strconv.FormatBool(cached)).Observe(took.Seconds())
}

func (m *Metrics) CacheHit(publisher string) {
	m.cacheLookups.WithLabelValues(publisher, "hit").Inc()
}

func (m *Metrics) CacheMiss(publisher string) {
	m.cacheLookups.WithLabelValues(publisher, "miss").Inc()
}

func (m *Metrics) Published(publisher string, err error) {
	m.publishes.WithLabelValues(publisher, outcome(err)).Inc()
}

func (m *Metrics) Swept(evicted int, took time.Duration) {
	m.evictions.Add(float64(evicted))
	m.sweepSeconds.Observe(took.Seconds())
}

func (m *Metrics) Persisted(entries int, err error) {
	m.persists.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.indexEntries.Set(float64(entries))
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

var _ publish.Observer = (*Metrics)(nil)
