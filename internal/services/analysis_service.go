package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aiopskit/rca-pipeline/internal/metrics"
	"github.com/aiopskit/rca-pipeline/internal/models"
	"github.com/aiopskit/rca-pipeline/internal/pipeline"
)

// AnalysisService wraps the pipeline with run accounting: per-run ids in
// logs, Prometheus observations, and a single place for both the CLI and
// the HTTP surface to call.
type AnalysisService struct {
	logger   *slog.Logger
	pipeline *pipeline.Pipeline
}

// NewAnalysisService constructs the service.
func NewAnalysisService(logger *slog.Logger, p *pipeline.Pipeline) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{logger: logger, pipeline: p}
}

// Analyze executes one batch run. The run id only appears in logs; the
// report artifact stays free of per-run identifiers so identical inputs
// produce identical bytes.
func (s *AnalysisService) Analyze(ctx context.Context, logs []models.LogRecord, metricSeries map[string][]models.MetricSnapshot) (models.Report, error) {
	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID))

	start := time.Now()
	logger.Info("analysis run starting",
		slog.Int("log_records", len(logs)),
		slog.Int("metric_services", len(metricSeries)),
	)

	result, err := s.pipeline.Run(ctx, logs, metricSeries)
	duration := time.Since(start)

	if err != nil {
		metrics.ObserveRun(duration, metrics.OutcomeError)
		logger.Error("analysis run failed", slog.Any("error", err), slog.Duration("duration", duration))
		return models.Report{}, err
	}

	metrics.ObserveRun(duration, metrics.OutcomeSuccess)
	metrics.AddRecordsProcessed(len(logs))
	metrics.AddAnomaliesDetected(result.Summary.AnomalyCount)

	logger.Info("analysis run finished",
		slog.Int("anomalies", result.Summary.AnomalyCount),
		slog.Duration("duration", duration),
	)
	return result, nil
}

// Correlate exposes the intermediate correlated dataset for artifact
// emission.
func (s *AnalysisService) Correlate(logs []models.LogRecord, metricSeries map[string][]models.MetricSnapshot) []models.CorrelatedRecord {
	return s.pipeline.Correlate(logs, metricSeries)
}
