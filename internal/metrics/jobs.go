package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "running",
		Help:      "Background jobs currently running",
	}, []string{"kind"})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "finished_total",
		Help:      "Background jobs finished by outcome",
	}, []string{"kind", "outcome"})

	artifactsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "artifacts",
		Name:      "generated_total",
		Help:      "Thumbnails and previews written to the cache",
	}, []string{"kind"})

	sourcesRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "library",
		Name:      "sources",
		Help:      "Media sources in the registry",
	})
)

// JobStarted increments the running gauge for a job kind.
func JobStarted(kind string) {
	jobsRunning.WithLabelValues(kind).Inc()
}

// JobFinished moves a job from running to finished with the given outcome.
func JobFinished(kind, outcome string) {
	jobsRunning.WithLabelValues(kind).Dec()
	jobsFinished.WithLabelValues(kind, outcome).Inc()
}

// IncArtifactGenerated counts one written artifact ("icon", "frame", "preview").
func IncArtifactGenerated(kind string) {
	artifactsGenerated.WithLabelValues(kind).Inc()
}

// SetSourcesRegistered records the registry size.
func SetSourcesRegistered(n int) {
	sourcesRegistered.Set(float64(n))
}
