package encode

import (
	"testing"
	"time"

	"github.com/aiopskit/rca-pipeline/internal/models"
)

func record(level models.LogLevel, message string, metric *models.MetricSnapshot) models.CorrelatedRecord {
	return models.CorrelatedRecord{
		Log: models.LogRecord{
			Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			Service:   "accounts-ms",
			Level:     level,
			Message:   message,
		},
		Metric: metric,
	}
}

func TestEncodeFixedWidth(t *testing.T) {
	m := &models.MetricSnapshot{CPUUsage: 0.9, LatencyP95Ms: 1200}
	records := []models.CorrelatedRecord{
		record(models.LevelError, "Connection refused by accounts-db", m),
		record(models.LevelWarn, "slow request", nil),
	}

	vectors := NewEncoder().Encode(records)
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	for i, v := range vectors {
		if len(v) != FeatureCount {
			t.Fatalf("vector %d has width %d, want %d", i, len(v), FeatureCount)
		}
	}
}

func TestEncodeIdempotent(t *testing.T) {
	m := &models.MetricSnapshot{CPUUsage: 0.4, ErrorRate: 0.01, LatencyP95Ms: 300}
	records := []models.CorrelatedRecord{
		record(models.LevelError, "Failed to retrieve customer details", m),
		record(models.LevelWarn, "Timeout calling cards-ms", nil),
		record(models.LevelError, "OutOfMemoryError in heap space", m),
	}

	enc := NewEncoder()
	first := enc.Encode(records)
	second := enc.Encode(records)

	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("encoding not idempotent at [%d][%d]: %v vs %v", i, j, first[i][j], second[i][j])
			}
		}
	}
}

func TestEncodeMissingMetricIndicator(t *testing.T) {
	m := &models.MetricSnapshot{CPUUsage: 0.4}
	records := []models.CorrelatedRecord{
		record(models.LevelError, "boom", m),
		record(models.LevelError, "boom", nil),
	}

	vectors := NewEncoder().Encode(records)
	if vectors[0][featMetricMissing] != 0 {
		t.Fatal("matched record must not set the missing indicator")
	}
	if vectors[1][featMetricMissing] != 1 {
		t.Fatal("unmatched record must set the missing indicator")
	}
	for i := featCPUUsage; i < featMetricMissing; i++ {
		if vectors[1][i] != 0 {
			t.Fatalf("unmatched record must have neutral metric columns, got %v at %d", vectors[1][i], i)
		}
	}
}

func TestEncodeTokenFlags(t *testing.T) {
	records := []models.CorrelatedRecord{
		record(models.LevelError, "OutOfMemoryError: Java heap space", nil),
		record(models.LevelError, "Connection refused", nil),
		record(models.LevelWarn, "Read timeout after 5s", nil),
		record(models.LevelWarn, "all fine", nil),
	}

	vectors := NewEncoder().Encode(records)
	if vectors[0][featTokenOOM] != 1 {
		t.Fatal("OOM token not detected")
	}
	if vectors[1][featTokenConnRefused] != 1 {
		t.Fatal("connection-refused token not detected")
	}
	if vectors[2][featTokenTimeout] != 1 {
		t.Fatal("timeout token not detected")
	}
	if vectors[3][featTokenOOM] != 0 || vectors[3][featTokenConnRefused] != 0 || vectors[3][featTokenTimeout] != 0 {
		t.Fatal("token flags fired on a clean message")
	}
}

func TestEncodeLevelScores(t *testing.T) {
	records := []models.CorrelatedRecord{
		record(models.LevelDebug, "a", nil),
		record(models.LevelInfo, "b", nil),
		record(models.LevelWarn, "c", nil),
		record(models.LevelError, "d", nil),
	}
	vectors := NewEncoder().Encode(records)
	for i, want := range []float64{1, 2, 3, 4} {
		if vectors[i][featLevelScore] != want {
			t.Fatalf("level score at %d: got %v want %v", i, vectors[i][featLevelScore], want)
		}
	}
}

func TestEncodeNormalizesMetricColumns(t *testing.T) {
	m1 := &models.MetricSnapshot{CPUUsage: 0.2}
	m2 := &models.MetricSnapshot{CPUUsage: 0.8}
	records := []models.CorrelatedRecord{
		record(models.LevelError, "a", m1),
		record(models.LevelError, "b", m2),
	}

	vectors := NewEncoder().Encode(records)
	// Two symmetric values z-score to -1 and +1 under the population stddev.
	if vectors[0][featCPUUsage] >= 0 || vectors[1][featCPUUsage] <= 0 {
		t.Fatalf("z-scores not centered: %v, %v", vectors[0][featCPUUsage], vectors[1][featCPUUsage])
	}
	if diff := vectors[0][featCPUUsage] + vectors[1][featCPUUsage]; diff < -1e-9 || diff > 1e-9 {
		t.Fatalf("z-scores must be symmetric, sum=%v", diff)
	}
}
