package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aiopskit/rca-pipeline/internal/anomaly"
	"github.com/aiopskit/rca-pipeline/internal/config"
	"github.com/aiopskit/rca-pipeline/internal/correlate"
	"github.com/aiopskit/rca-pipeline/internal/encode"
	"github.com/aiopskit/rca-pipeline/internal/models"
	"github.com/aiopskit/rca-pipeline/internal/report"
	"github.com/aiopskit/rca-pipeline/internal/rootcause"
)

// Startup chatter that never indicates a fault; dropped before scoring so it
// cannot dominate the message-frequency features.
var informationalPatterns = []string{
	"completed initialization",
	"application started",
	"service ready",
	"server started",
	"started successfully",
}

// Pipeline wires the batch stages together: correlate, encode, score,
// annotate, build. Stages run strictly in sequence because each consumes
// the full output of the previous one; the scorer in particular fits on the
// whole batch.
type Pipeline struct {
	logger     *slog.Logger
	correlator *correlate.Correlator
	encoder    *encode.Encoder
	scorer     *anomaly.Scorer
	annotator  *rootcause.Annotator
	builder    *report.Builder

	dropInformational bool
}

// New constructs a Pipeline from configuration and a loaded keyword rule
// pack.
func New(cfg *config.Config, rules []rootcause.KeywordRule, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	thresholds := rootcause.Thresholds{
		CPUHigh:        cfg.Thresholds.CPUHigh,
		HeapHighRatio:  cfg.Thresholds.HeapHighRatio,
		ErrorRateHigh:  cfg.Thresholds.ErrorRateHigh,
		LatencyHighMs:  cfg.Thresholds.LatencyHighMs,
		PoolActiveHigh: cfg.Thresholds.PoolActiveHigh,
	}

	return &Pipeline{
		logger:     logger,
		correlator: correlate.New(cfg.Pipeline.CorrelationTolerance, logger),
		encoder:    encode.NewEncoder(),
		scorer: anomaly.NewScorer(anomaly.ScorerOptions{
			Trees:         cfg.Pipeline.Trees,
			SampleSize:    cfg.Pipeline.SampleSize,
			Contamination: cfg.Pipeline.Contamination,
			Seed:          cfg.Pipeline.Seed,
			MinRecords:    cfg.Pipeline.MinRecords,
		}, logger),
		annotator:         rootcause.NewAnnotator(thresholds, rules, logger),
		builder:           report.NewBuilder(cfg.Pipeline.TopErrors),
		dropInformational: cfg.Pipeline.DropInformational,
	}
}

// Correlate exposes the correlation stage on its own so callers can emit
// the intermediate dataset for inspection or feed the scorer offline. Logs
// are sorted by timestamp first, matching Run.
func (p *Pipeline) Correlate(logs []models.LogRecord, metrics map[string][]models.MetricSnapshot) []models.CorrelatedRecord {
	return p.correlator.Correlate(sortedByTime(logs), metrics)
}

// Run executes the full batch analysis and returns the report artifact.
// An empty batch (nothing survives filtering) yields a valid zeroed report;
// a non-empty batch below the scorer's minimum surfaces the insufficient
// data condition to the caller.
func (p *Pipeline) Run(ctx context.Context, logs []models.LogRecord, metrics map[string][]models.MetricSnapshot) (models.Report, error) {
	if err := ctx.Err(); err != nil {
		return models.Report{}, err
	}

	ordered := sortedByTime(logs)
	if p.dropInformational {
		before := len(ordered)
		ordered = filterInformational(ordered)
		if dropped := before - len(ordered); dropped > 0 {
			p.logger.Debug("dropped informational records", slog.Int("count", dropped))
		}
	}

	correlated := p.correlator.Correlate(ordered, metrics)
	if len(correlated) == 0 {
		p.logger.Info("no records to analyze, emitting empty report")
		return p.builder.Build(nil), nil
	}

	if err := ctx.Err(); err != nil {
		return models.Report{}, err
	}

	vectors := p.encoder.Encode(correlated)
	scored, err := p.scorer.FitScore(vectors)
	if err != nil {
		return models.Report{}, fmt.Errorf("score batch: %w", err)
	}

	results := make([]models.AnomalyResult, len(correlated))
	for i, rec := range correlated {
		results[i] = models.AnomalyResult{
			Record:      rec,
			Score:       scored[i].Score,
			IsAnomalous: scored[i].IsAnomalous,
		}
	}

	resolver := rootcause.NewTraceResolver(results)

	annotated := make([]report.AnnotatedResult, len(results))
	for i, res := range results {
		annotated[i] = report.AnnotatedResult{
			Result:           res,
			Suggestions:      p.annotator.Annotate(res),
			RootCauseService: resolver.RootCauseService(res),
			AffectedServices: resolver.AffectedServices(res),
		}
	}

	built := p.builder.Build(annotated)
	p.logger.Info("analysis complete",
		slog.Int("records", len(results)),
		slog.Int("anomalies", built.Summary.AnomalyCount),
	)
	return built, nil
}

func sortedByTime(logs []models.LogRecord) []models.LogRecord {
	ordered := append([]models.LogRecord(nil), logs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})
	return ordered
}

// filterInformational drops DEBUG/INFO records and known startup messages.
func filterInformational(logs []models.LogRecord) []models.LogRecord {
	kept := make([]models.LogRecord, 0, len(logs))
	for _, rec := range logs {
		if rec.Level == models.LevelDebug || rec.Level == models.LevelInfo {
			continue
		}
		if isStartupChatter(rec.Message) {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

func isStartupChatter(message string) bool {
	msg := strings.ToLower(message)
	for _, pattern := range informationalPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
