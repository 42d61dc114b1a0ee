package metrics

import (
	"time"

	"db-sync/internal/engine"
	"db-sync/internal/schema"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder collects per-run metrics in its own registry. It implements
// engine.Listener.
type Recorder struct {
	registry *prometheus.Registry

	tasks    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	runs     *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "db_sync",
				Name:      "tasks_total",
				Help:      "Settled table tasks by status.",
			},
			[]string{"status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "db_sync",
				Name:      "task_duration_seconds",
				Help:      "Wall clock duration of table tasks.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"table"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "db_sync",
			Name:      "tasks_in_flight",
			Help:      "Tasks currently running.",
		}),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "db_sync",
				Name:      "runs_total",
				Help:      "Sync runs by outcome.",
			},
			[]string{"outcome"},
		),
	}
	r.registry.MustRegister(r.tasks, r.duration, r.inFlight, r.runs)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) Registered(schema.TableRef) {}

func (r *Recorder) Started(schema.TableRef) { r.inFlight.Inc() }

func (r *Recorder) Finished(table schema.TableRef, result engine.Result, elapsed time.Duration) {
	r.inFlight.Dec()
	r.tasks.WithLabelValues(string(result.Status)).Inc()
	r.duration.WithLabelValues(table.String()).Observe(elapsed.Seconds())
}

// RunFinished counts a run as succeeded or failed.
func (r *Recorder) RunFinished(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.runs.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes the registry for the node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

var _ engine.Listener = (*Recorder)(nil)
