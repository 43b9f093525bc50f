package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aiopskit/rca-pipeline/internal/anomaly"
	"github.com/aiopskit/rca-pipeline/internal/config"
	"github.com/aiopskit/rca-pipeline/internal/models"
	"github.com/aiopskit/rca-pipeline/internal/report"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

// fleetBatch synthesizes a batch with mostly routine warnings plus a few
// records that should stand out: long OOM messages on a service with a
// saturated heap.
func fleetBatch() ([]models.LogRecord, map[string][]models.MetricSnapshot) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var logs []models.LogRecord
	for i := 0; i < 60; i++ {
		logs = append(logs, models.LogRecord{
			Timestamp: base.Add(time.Duration(i) * 10 * time.Second),
			Service:   "cards-ms",
			Level:     models.LevelWarn,
			Message:   "retrying request",
			TraceID:   fmt.Sprintf("trace-%d", i),
		})
	}
	for i := 0; i < 4; i++ {
		logs = append(logs, models.LogRecord{
			Timestamp: base.Add(time.Duration(i)*120*time.Second + 5*time.Second),
			Service:   "accounts-ms",
			Level:     models.LevelError,
			Message:   "OOM killer invoked for java PID 1 reason=oom_kill memory cgroup out of memory: Killed process 1 (java) total-vm:4526096kB",
			TraceID:   fmt.Sprintf("oom-%d", i),
		})
	}

	metrics := map[string][]models.MetricSnapshot{
		"accounts-ms": {},
		"cards-ms":    {},
	}
	for i := 0; i < 11; i++ {
		ts := base.Add(time.Duration(i) * 60 * time.Second)
		metrics["accounts-ms"] = append(metrics["accounts-ms"], models.MetricSnapshot{
			Timestamp:        ts,
			Service:          "accounts-ms",
			CPUUsage:         0.4,
			JVMHeapUsedBytes: 990_000_000,
			JVMHeapMaxBytes:  1_000_000_000,
			LatencyP95Ms:     400,
			ThroughputRPS:    50,
		})
		metrics["cards-ms"] = append(metrics["cards-ms"], models.MetricSnapshot{
			Timestamp:        ts,
			Service:          "cards-ms",
			CPUUsage:         0.3,
			JVMHeapUsedBytes: 300_000_000,
			JVMHeapMaxBytes:  1_000_000_000,
			LatencyP95Ms:     200,
			ThroughputRPS:    80,
		})
	}
	return logs, metrics
}

func TestRunProducesRankedReport(t *testing.T) {
	logs, metrics := fleetBatch()
	p := New(testConfig(t), nil, nil)

	rep, err := p.Run(context.Background(), logs, metrics)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Summary.AnomalyCount == 0 {
		t.Fatal("expected at least one anomaly in a batch with clear outliers")
	}
	if rep.Summary.AnomalyCount != len(rep.Anomalies) {
		t.Fatalf("summary count %d != anomaly list length %d", rep.Summary.AnomalyCount, len(rep.Anomalies))
	}

	for i := 1; i < len(rep.Anomalies); i++ {
		if rep.Anomalies[i-1].AnomalyScore > rep.Anomalies[i].AnomalyScore {
			t.Fatalf("ranking not ascending at %d", i)
		}
	}
	for i, a := range rep.Anomalies {
		if len(a.Suggestions) == 0 {
			t.Fatalf("anomaly %d has no suggestions", i)
		}
		if a.RootCauseService == "" {
			t.Fatalf("anomaly %d has no root cause service", i)
		}
		if len(a.AffectedServices) == 0 {
			t.Fatalf("anomaly %d has no affected services", i)
		}
	}
}

func TestRunDeterministic(t *testing.T) {
	logs, metrics := fleetBatch()
	cfg := testConfig(t)

	var first, second bytes.Buffer
	for i, buf := range []*bytes.Buffer{&first, &second} {
		p := New(cfg, nil, nil)
		rep, err := p.Run(context.Background(), logs, metrics)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if err := report.WriteJSON(buf, rep); err != nil {
			t.Fatalf("serialize %d: %v", i, err)
		}
	}

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Fatal("identical input must yield byte-identical reports")
	}
}

func TestRunEmptyInput(t *testing.T) {
	_, metrics := fleetBatch()
	p := New(testConfig(t), nil, nil)

	rep, err := p.Run(context.Background(), nil, metrics)
	if err != nil {
		t.Fatalf("empty log input must still produce a report, got %v", err)
	}
	if rep.Summary.AnomalyCount != 0 || len(rep.Anomalies) != 0 {
		t.Fatalf("expected zeroed report, got %+v", rep.Summary)
	}
	if rep.Anomalies == nil {
		t.Fatal("anomaly list must be empty, not absent")
	}
}

func TestRunTinyBatchRejected(t *testing.T) {
	logs, metrics := fleetBatch()
	p := New(testConfig(t), nil, nil)

	_, err := p.Run(context.Background(), logs[:3], metrics)
	if !errors.Is(err, anomaly.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData for a near-empty batch, got %v", err)
	}
}

func TestRunDropsInformationalRecords(t *testing.T) {
	logs, metrics := fleetBatch()
	base := logs[0].Timestamp
	logs = append(logs, models.LogRecord{
		Timestamp: base,
		Service:   "accounts-ms",
		Level:     models.LevelInfo,
		Message:   "Application started successfully in 3.1 seconds",
	})

	p := New(testConfig(t), nil, nil)
	rep, err := p.Run(context.Background(), logs, metrics)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, a := range rep.Anomalies {
		if a.Level == models.LevelInfo {
			t.Fatalf("informational record leaked into the report: %+v", a)
		}
	}
}

func TestRunHeapSuggestionFirstForOOM(t *testing.T) {
	logs, metrics := fleetBatch()
	p := New(testConfig(t), nil, nil)

	rep, err := p.Run(context.Background(), logs, metrics)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, a := range rep.Anomalies {
		if a.Service != "accounts-ms" {
			continue
		}
		// accounts-ms runs at 99% heap, so the heap-pressure rule must
		// outrank the OOM keyword match.
		if len(a.Suggestions) < 2 {
			t.Fatalf("expected heap and keyword suggestions, got %+v", a.Suggestions)
		}
		if got := a.Suggestions[0].Text; !containsFold(got, "heap") {
			t.Fatalf("heap suggestion must come first, got %q", got)
		}
		return
	}
	t.Fatal("no accounts-ms anomaly found; the OOM records should be flagged")
}

func containsFold(s, substr string) bool {
	return bytes.Contains(bytes.ToLower([]byte(s)), bytes.ToLower([]byte(substr)))
}
