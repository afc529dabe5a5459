// Package metrics exposes Prometheus instrumentation for playback
// sessions.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "halcyon"

var (
	estimatedBandwidth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "abr",
		Name:      "estimated_bandwidth_bps",
		Help:      "Conservative per-session bandwidth estimate in bits per second.",
	}, []string{"session"})

	activeLevel = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "abr",
		Name:      "active_level",
		Help:      "Identifier of the currently selected rendition (-1 while auto with no selection).",
	}, []string{"session"})

	bufferSeconds = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "abr",
		Name:      "buffer_seconds",
		Help:      "Playable media buffered ahead of the play-head.",
	}, []string{"session"})

	droppedFrames = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "abr",
		Name:      "dropped_frames",
		Help:      "Cumulative dropped-frame count reported by the playback engine.",
	}, []string{"session"})

	renditionSwitches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "abr",
		Name:      "rendition_switches_total",
		Help:      "Rendition changes issued by the controller.",
	}, []string{"session", "direction"})

	emergencyDowngrades = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "abr",
		Name:      "emergency_downgrades_total",
		Help:      "Switches forced by critically low buffer.",
	}, []string{"session"})
)

func init() {
	prometheus.MustRegister(
		estimatedBandwidth,
		activeLevel,
		bufferSeconds,
		droppedFrames,
		renditionSwitches,
		emergencyDowngrades,
	)
}

// ObserveSession records one telemetry snapshot.
func ObserveSession(session string, bandwidthBps, buffered float64, levelID int, dropped uint64) {
	estimatedBandwidth.WithLabelValues(session).Set(bandwidthBps)
	activeLevel.WithLabelValues(session).Set(float64(levelID))
	bufferSeconds.WithLabelValues(session).Set(buffered)
	droppedFrames.WithLabelValues(session).Set(float64(dropped))
}

// RecordSwitch counts one rendition change.
func RecordSwitch(session string, up, emergency bool) {
	direction := "down"
	if up {
		direction = "up"
	}
	renditionSwitches.WithLabelValues(session, direction).Inc()
	if emergency {
		emergencyDowngrades.WithLabelValues(session).Inc()
	}
}

// ForgetSession drops the label series of a disposed session.
func ForgetSession(session string) {
	labels := prometheus.Labels{"session": session}
	estimatedBandwidth.DeletePartialMatch(labels)
	activeLevel.DeletePartialMatch(labels)
	bufferSeconds.DeletePartialMatch(labels)
	droppedFrames.DeletePartialMatch(labels)
	renditionSwitches.DeletePartialMatch(labels)
	emergencyDowngrades.DeletePartialMatch(labels)
}
