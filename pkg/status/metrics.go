package status

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus
// metrics. It exports the pipeline's progress fraction, running flag, and the
// artifact signal/error counters.
type PrometheusRecorder struct {
	progress      prometheus.Gauge
	running       prometheus.Gauge
	signalsTotal  *prometheus.CounterVec
	errorsTotal   prometheus.Counter
	stageDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder registered on the default
// Prometheus registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return NewPrometheusRecorderWith(prometheus.DefaultRegisterer)
}

// NewPrometheusRecorderWith creates a recorder registered on the given
// registry. Tests pass a fresh registry to avoid duplicate registration.
func NewPrometheusRecorderWith(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		progress: factory.NewGauge(prometheus.GaugeOpts{
			Name: "advisor_pipeline_progress_fraction",
			Help: "Current pipeline progress as a fraction between 0 and 1",
		}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "advisor_pipeline_running",
			Help: "Whether a pipeline run is in flight (1) or not (0)",
		}),
		signalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_artifact_signals_total",
				Help: "Artifact progress signals observed, by task and delivery source",
			},
			[]string{"task_id", "source"},
		),
		errorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "advisor_pipeline_errors_total",
			Help: "Total number of pipeline runs that ended in an error",
		}),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "advisor_stage_duration_seconds",
				Help:    "Wall-clock duration of each pipeline stage",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"stage"},
		),
	}
}

// ObserveProgress records the current progress fraction.
func (p *PrometheusRecorder) ObserveProgress(fraction float64) {
	p.progress.Set(fraction)
}

// ObserveSignal counts one artifact signal delivery. The same task ID arriving
// from both the watcher and the reconciler is counted per source, which is how
// duplicate delivery stays visible.
func (p *PrometheusRecorder) ObserveSignal(taskID, source string) {
	p.signalsTotal.WithLabelValues(taskID, source).Inc()
}

// ObserveRunning records the running flag.
func (p *PrometheusRecorder) ObserveRunning(running bool) {
	if running {
		p.running.Set(1)
	} else {
		p.running.Set(0)
	}
}

// ObserveError counts one failed run.
func (p *PrometheusRecorder) ObserveError() {
	p.errorsTotal.Inc()
}

// ObserveStageDuration records how long one pipeline stage ran.
func (p *PrometheusRecorder) ObserveStageDuration(stage string, seconds float64) {
	p.stageDuration.WithLabelValues(stage).Observe(seconds)
}
