package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"datapipe/internal/etl"
)

// Metrics instruments pipeline runs.
type Metrics struct {
	runs        *prometheus.CounterVec
	rowsRead    *prometheus.CounterVec
	rowsWritten *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	running     prometheus.Gauge
}

// NewMetrics registers the pipeline metrics on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		runs: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "datapipe",
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs by outcome.",
		}, []string{"pipeline", "status"}),
		rowsRead: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "datapipe",
			Name:      "pipeline_rows_read_total",
			Help:      "Total number of rows read from pipeline sources.",
		}, []string{"pipeline"}),
		rowsWritten: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "datapipe",
			Name:      "pipeline_rows_written_total",
			Help:      "Total number of rows written to pipeline targets.",
		}, []string{"pipeline"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "datapipe",
			Name:      "pipeline_run_duration_seconds",
			Help:      "Time spent running a pipeline.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"pipeline"}),
		running: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "datapipe",
			Name:      "pipelines_running",
			Help:      "Number of pipelines currently running.",
		}),
	}
}

func (m *Metrics) observe(name string, result *etl.SyncResult, elapsed time.Duration) {
	status := etl.StatusError
	if result != nil {
		status = result.Status
		m.rowsRead.WithLabelValues(name).Add(float64(result.RowsRead))
		m.rowsWritten.WithLabelValues(name).Add(float64(result.RowsWritten))
	}
	m.runs.WithLabelValues(name, status).Inc()
	m.duration.WithLabelValues(name).Observe(elapsed.Seconds())
}
