package world

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics with bounded cardinality (kind labels only, never spawner names)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lightsniper_tick_duration_seconds",
		Help:    "Time spent in a controller tick",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	searchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lightsniper_searches_total",
		Help: "Parent searches performed",
	})

	spawnedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lightsniper_spawned_total",
		Help: "Instances created",
	}, []string{"kind"})

	destroyedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lightsniper_destroyed_total",
		Help: "Instances destroyed",
	}, []string{"kind"})

	orphansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lightsniper_orphans_total",
		Help: "Searches that found no parent",
	})

	anomaliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lightsniper_anomalies_total",
		Help: "Searches that found a moved parent",
	})

	erroredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lightsniper_errored_total",
		Help: "Spawners deleted after a tick failure",
	})

	backoffTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lightsniper_backoff_total",
		Help: "Ticks that exhausted the search budget",
	})

	activeSpawners = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lightsniper_active_spawners",
		Help: "Spawned instances by kind",
	}, []string{"kind"})

	visibleSpawners = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lightsniper_visible_spawners",
		Help: "Spawned instances inside the cull radius by kind",
	}, []string{"kind"})

	autosaveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lightsniper_autosave_duration_seconds",
		Help:    "Time spent saving dirty groups",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1},
	})

	groupsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lightsniper_groups_saved_total",
		Help: "Group documents written",
	})
)

// recordTick publishes a finished ticket.
func recordTick(t *UpdateTicket, d time.Duration, backedOff bool) {
	tickDuration.Observe(d.Seconds())
	searchesTotal.Add(float64(t.Searches))
	orphansTotal.Add(float64(t.Orphans))
	anomaliesTotal.Add(float64(t.Anomalies))
	erroredTotal.Add(float64(t.Errored))
	if backedOff {
		backoffTotal.Inc()
	}

	activeSpawners.WithLabelValues(KindLight.String()).Set(float64(t.ActiveLights))
	activeSpawners.WithLabelValues(KindMesh.String()).Set(float64(t.ActiveMeshes))
	activeSpawners.WithLabelValues(KindDecoration.String()).Set(float64(t.ActiveDecorations))
	visibleSpawners.WithLabelValues(KindLight.String()).Set(float64(t.VisibleLights))
	visibleSpawners.WithLabelValues(KindMesh.String()).Set(float64(t.VisibleMeshes))
	visibleSpawners.WithLabelValues(KindDecoration.String()).Set(float64(t.VisibleDecorations))
}

func recordAutosave(d time.Duration, saved int) {
	autosaveDuration.Observe(d.Seconds())
	groupsSaved.Add(float64(saved))
}
