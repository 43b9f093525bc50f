package rootcause

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aiopskit/rca-pipeline/internal/models"
)

// Thresholds holds the metric levels above which a rule fires. Values come
// from configuration; the annotator never hard-codes them.
type Thresholds struct {
	CPUHigh        float64
	HeapHighRatio  float64
	ErrorRateHigh  float64
	LatencyHighMs  float64
	PoolActiveHigh float64
}

// Annotator evaluates an ordered rule set over an anomalous record's metric
// snapshot and message. Rules are independent, not mutually exclusive; their
// emission order is fixed so the most actionable signal appears first:
// CPU, heap, error rate, latency, connection pool, then message keywords,
// then the generic fallback.
type Annotator struct {
	thresholds Thresholds
	rules      []KeywordRule
	logger     *slog.Logger
}

// NewAnnotator constructs an Annotator with the given thresholds and keyword
// rule pack. A nil or empty rule pack falls back to the built-in rules.
func NewAnnotator(thresholds Thresholds, rules []KeywordRule, logger *slog.Logger) *Annotator {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Annotator{thresholds: thresholds, rules: rules, logger: logger}
}

// Annotate produces the ranked suggestion list for one scored record. The
// list is never empty: when no rule fires, the fallback suggestion is
// emitted so every anomaly carries at least one actionable line.
func (a *Annotator) Annotate(result models.AnomalyResult) []models.Suggestion {
	record := result.Record
	service := record.Log.Service
	suggestions := make([]models.Suggestion, 0, 4)

	if m := record.Metric; m != nil {
		if m.CPUUsage > a.thresholds.CPUHigh {
			suggestions = append(suggestions, models.Suggestion{
				Service: service,
				Text:    fmt.Sprintf("CPU usage at %.0f%%: profile hot paths or scale out", m.CPUUsage*100),
			})
		}
		if ratio, ok := m.HeapRatio(); ok && ratio > a.thresholds.HeapHighRatio {
			suggestions = append(suggestions, models.Suggestion{
				Service: service,
				Text:    fmt.Sprintf("JVM heap at %.0f%% of max: capture a heap dump and review memory limits", ratio*100),
			})
		}
		if m.ErrorRate > a.thresholds.ErrorRateHigh {
			suggestions = append(suggestions, models.Suggestion{
				Service: service,
				Text:    "Elevated error rate: inspect recent deployments and upstream dependencies",
			})
		}
		if m.LatencyP95Ms > a.thresholds.LatencyHighMs {
			suggestions = append(suggestions, models.Suggestion{
				Service: service,
				Text:    fmt.Sprintf("p95 latency %.0fms: inspect slow dependencies or tune timeouts", m.LatencyP95Ms),
			})
		}
		if m.HikariCPActive > a.thresholds.PoolActiveHigh {
			suggestions = append(suggestions, models.Suggestion{
				Service: service,
				Text:    "Connection pool near saturation: raise pool size or find connection leaks",
			})
		}
	}

	msg := strings.ToLower(record.Log.Message)
	for _, rule := range a.rules {
		if rule.matches(msg) {
			suggestions = append(suggestions, models.Suggestion{Service: service, Text: rule.Suggestion})
		}
	}

	if len(suggestions) == 0 {
		suggestions = append(suggestions, models.Suggestion{
			Service: service,
			Text:    "Review logs for deeper context",
		})
	}
	return suggestions
}
