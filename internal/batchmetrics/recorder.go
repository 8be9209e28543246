package batchmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Recorder collects the outcome of one command run in a private registry.
type Recorder struct {
	registry    *prometheus.Registry
	command     string
	rows        *prometheus.CounterVec
	duration    *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	failures    *prometheus.CounterVec
}

func NewRecorder(command string) *Recorder {
	registry := prometheus.NewRegistry()
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetseries_batch_rows_total",
		Help: "Rows written or deleted by a batch command.",
	}, []string{"command"})
	duration := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sheetseries_batch_duration_seconds",
		Help: "Wall time of the last batch command run.",
	}, []string{"command"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sheetseries_batch_last_success_timestamp_seconds",
		Help: "Unix time of the last successful batch command run.",
	}, []string{"command"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sheetseries_batch_failures_total",
		Help: "Failed batch command runs.",
	}, []string{"command"})
	registry.MustRegister(rows, duration, lastSuccess, failures)

	return &Recorder{
		registry:    registry,
		command:     command,
		rows:        rows,
		duration:    duration,
		lastSuccess: lastSuccess,
		failures:    failures,
	}
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Observe records one run ending at finishedAt.
func (r *Recorder) Observe(rows int64, elapsed time.Duration, finishedAt time.Time, err error) {
	r.duration.WithLabelValues(r.command).Set(elapsed.Seconds())
	if err != nil {
		r.failures.WithLabelValues(r.command).Inc()
		return
	}
	if rows > 0 {
		r.rows.WithLabelValues(r.command).Add(float64(rows))
	}
	r.lastSuccess.WithLabelValues(r.command).Set(float64(finishedAt.Unix()))
}

// Flush pushes the recorded metrics; push failures are logged only.
func (r *Recorder) Flush(ctx context.Context, pusher Pusher, log *zap.Logger) {
	if pusher == nil {
		return
	}
	if err := pusher.Push(ctx, r.registry); err != nil && log != nil {
		log.Warn("metrics push failed", zap.String("command", r.command), zap.Error(err))
	}
}
