package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed analysis runs.
	OutcomeSuccess = "success"
	// OutcomeError labels runs that failed (bad input, scorer failure).
	OutcomeError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rca_pipeline",
			Name:      "runs_total",
			Help:      "Total number of analysis runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rca_pipeline",
			Name:      "run_seconds",
			Help:      "Analysis run latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	recordsProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rca_pipeline",
			Name:      "records_processed_total",
			Help:      "Log records consumed across all runs.",
		},
	)

	recordsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rca_pipeline",
			Name:      "records_skipped_total",
			Help:      "Malformed input records skipped at the ingestion boundary.",
		},
	)

	anomaliesDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rca_pipeline",
			Name:      "anomalies_detected_total",
			Help:      "Anomalous records reported across all runs.",
		},
	)
)

// Register attaches the pipeline collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		recordsProcessedTotal,
		recordsSkippedTotal,
		anomaliesDetectedTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records one run's duration and outcome label.
func ObserveRun(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	runsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
}

// AddRecordsProcessed accumulates consumed record counts.
func AddRecordsProcessed(n int) {
	if n > 0 {
		recordsProcessedTotal.Add(float64(n))
	}
}

// AddRecordsSkipped accumulates skipped record counts.
func AddRecordsSkipped(n int) {
	if n > 0 {
		recordsSkippedTotal.Add(float64(n))
	}
}

// AddAnomaliesDetected accumulates reported anomaly counts.
func AddAnomaliesDetected(n int) {
	if n > 0 {
		anomaliesDetectedTotal.Add(float64(n))
	}
}
