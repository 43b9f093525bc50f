package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/aiopskit/rca-pipeline/internal/models"
)

// AnnotatedResult is one scored record enriched with root-cause context,
// the builder's input shape.
type AnnotatedResult struct {
	Result           models.AnomalyResult
	Suggestions      []models.Suggestion
	RootCauseService string
	AffectedServices []string
}

// Builder assembles the final report artifact. It always produces a
// well-formed Report: a run with zero anomalies yields an empty list and a
// zeroed summary, never a missing artifact.
type Builder struct {
	topErrors int
}

// NewBuilder constructs a Builder that keeps at most topErrors recurring
// messages in the summary.
func NewBuilder(topErrors int) *Builder {
	if topErrors <= 0 {
		topErrors = 10
	}
	return &Builder{topErrors: topErrors}
}

// Build filters the anomalous results, ranks them most-anomalous first
// (ascending score, ties broken by timestamp), and aggregates the summary.
func (b *Builder) Build(results []AnnotatedResult) models.Report {
	anomalous := make([]AnnotatedResult, 0, len(results))
	for _, r := range results {
		if r.Result.IsAnomalous {
			anomalous = append(anomalous, r)
		}
	}

	sort.SliceStable(anomalous, func(i, j int) bool {
		si, sj := anomalous[i].Result.Score, anomalous[j].Result.Score
		if si != sj {
			return si < sj
		}
		return anomalous[i].Result.Record.Log.Timestamp.Before(anomalous[j].Result.Record.Log.Timestamp)
	})

	anomalies := make([]models.ReportAnomaly, 0, len(anomalous))
	for _, r := range anomalous {
		log := r.Result.Record.Log
		anomalies = append(anomalies, models.ReportAnomaly{
			Timestamp:        log.Timestamp,
			Service:          log.Service,
			Level:            log.Level,
			Message:          log.Message,
			TraceID:          log.TraceID,
			AnomalyScore:     r.Result.Score,
			RootCauseService: r.RootCauseService,
			MetricSnapshot:   models.NewMetricSnapshotWire(r.Result.Record.Metric),
			Suggestions:      r.Suggestions,
			AffectedServices: r.AffectedServices,
		})
	}

	return models.Report{
		Summary: models.ReportSummary{
			AnomalyCount: len(anomalies),
			TopErrors:    topErrors(anomalous, b.topErrors),
		},
		Anomalies: anomalies,
	}
}

// topErrors groups anomalous records by exact message, counts occurrences,
// and keeps the n most frequent. Count ties resolve by first-seen order so
// the ranking is stable across runs.
func topErrors(anomalous []AnnotatedResult, n int) []models.TopError {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0

	for _, r := range anomalous {
		msg := r.Result.Record.Log.Message
		if _, ok := counts[msg]; !ok {
			firstSeen[msg] = order
			order++
		}
		counts[msg]++
	}

	grouped := make([]models.TopError, 0, len(counts))
	for msg, count := range counts {
		grouped = append(grouped, models.TopError{Message: msg, Count: count})
	}
	sort.SliceStable(grouped, func(i, j int) bool {
		if grouped[i].Count != grouped[j].Count {
			return grouped[i].Count > grouped[j].Count
		}
		return firstSeen[grouped[i].Message] < firstSeen[grouped[j].Message]
	})

	if len(grouped) > n {
		grouped = grouped[:n]
	}
	return grouped
}

// WriteJSON serializes the report with stable indentation. Marshalling is
// deterministic for a given Report value, which keeps repeat runs
// byte-identical.
func WriteJSON(w io.Writer, r models.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
