// Package telemetry exposes Prometheus metrics for the replay server.
package telemetry

import (
	"github.com/atlas-desktop/portfolio-replay/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DatasetsLoaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_datasets_loaded_total",
			Help: "Result files parsed and added to the registry",
		},
	)

	LoadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_load_failures_total",
			Help: "Result files rejected during loading",
		},
	)

	DatasetsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "replay_datasets_active",
			Help: "Datasets currently in the registry",
		},
	)

	PlaybackSteps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "replay_playback_steps_total",
			Help: "Steps advanced by the playback clock",
		},
	)

	StateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_state_changes_total",
			Help: "Session commands that changed state",
		},
		[]string{"reason"},
	)

	FramesRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_frames_total",
			Help: "Frame requests by whether they were drawn or served from cache",
		},
		[]string{"result"},
	)

	RenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "replay_render_duration_seconds",
			Help:    "Time spent drawing a frame",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "replay_websocket_clients",
			Help: "Connected WebSocket clients",
		},
	)
)

// Subscribe feeds session events into the counters
func Subscribe(bus *events.EventBus) *events.Subscription {
	return bus.SubscribeAll(func(e events.Event) error {
		switch ev := e.(type) {
		case *events.IndexAdvancedEvent:
			PlaybackSteps.Inc()
		case *events.DatasetsChangedEvent:
			DatasetsLoaded.Add(float64(len(ev.Added)))
			DatasetsActive.Set(float64(ev.Count))
		case *events.LoadFailedEvent:
			LoadFailures.Inc()
		case *events.StateChangedEvent:
			StateChanges.WithLabelValues(ev.Reason).Inc()
		}
		return nil
	})
}
