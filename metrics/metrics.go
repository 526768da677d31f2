// Package metrics exposes Prometheus counters for the progression engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"progresskit/core"
)

// Recorder implements engine.Metrics on a Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	applied          *prometheus.CounterVec
	rejected         *prometheus.CounterVec
	conflicts        prometheus.Counter
	retriesExhausted prometheus.Counter
	badgesUnlocked   *prometheus.CounterVec
	levelUps         prometheus.Counter
}

// New builds a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.applied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progresskit",
		Name:      "events_applied_total",
		Help:      "Progression events committed, by kind.",
	}, []string{"kind"})
	r.rejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progresskit",
		Name:      "events_rejected_total",
		Help:      "Progression events rejected before commit, by kind.",
	}, []string{"kind"})
	r.conflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progresskit",
		Name:      "version_conflicts_total",
		Help:      "Compare-and-swap attempts lost to a concurrent writer.",
	})
	r.retriesExhausted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progresskit",
		Name:      "retries_exhausted_total",
		Help:      "Apply calls that gave up after the retry budget.",
	})
	r.badgesUnlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progresskit",
		Name:      "badges_unlocked_total",
		Help:      "Badges unlocked, by badge id.",
	}, []string{"badge"})
	r.levelUps = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "progresskit",
		Name:      "level_ups_total",
		Help:      "Level-up transitions committed.",
	})

	r.registry.MustRegister(r.applied, r.rejected, r.conflicts, r.retriesExhausted, r.badgesUnlocked, r.levelUps)
	return r
}

// Handler returns the /metrics HTTP handler for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) ApplyCommitted(kind core.EventKind) {
	r.applied.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) ApplyRejected(kind core.EventKind) {
	r.rejected.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) VersionConflict() { r.conflicts.Inc() }

func (r *Recorder) RetriesExhausted() { r.retriesExhausted.Inc() }

func (r *Recorder) BadgeUnlocked(id core.BadgeID) {
	r.badgesUnlocked.WithLabelValues(string(id)).Inc()
}

func (r *Recorder) LevelUp(int) { r.levelUps.Inc() }
