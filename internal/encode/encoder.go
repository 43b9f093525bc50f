package encode

import (
	"hash/fnv"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/aiopskit/rca-pipeline/internal/models"
)

// Feature layout. Column order is part of the scoring contract: the scorer's
// output is only reproducible while this ordering is stable.
const (
	featLevelScore = iota
	featMessageLen
	featTokenOOM
	featTokenConnRefused
	featTokenTimeout
	featMessageHash
	featCPUUsage
	featErrorRate
	featHikariActive
	featHeapUsed
	featHeapMax
	featLatencyP95
	featThroughput
	featMetricMissing

	// FeatureCount is the fixed width of every encoded vector.
	FeatureCount = featMetricMissing + 1
)

const hashBuckets = 64

const metricFieldCount = 7

// Encoder turns correlated records into fixed-width numeric vectors. Metric
// columns are z-scored against statistics of the batch being encoded, so
// normalization is batch-local and never persisted. Encoding the same batch
// twice yields identical vectors.
type Encoder struct{}

// NewEncoder constructs a feature encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode returns one FeatureCount-wide vector per record, index-aligned with
// the input. Records without a metric snapshot get neutral (zero z-score)
// metric columns and the missing-metric indicator set, so absence informs
// the model without corrupting it.
func (e *Encoder) Encode(records []models.CorrelatedRecord) [][]float64 {
	stats := metricColumnStats(records)

	vectors := make([][]float64, 0, len(records))
	for _, rec := range records {
		v := make([]float64, FeatureCount)

		v[featLevelScore] = rec.Log.Level.Score()
		v[featMessageLen] = float64(len(rec.Log.Message))

		msg := strings.ToLower(rec.Log.Message)
		v[featTokenOOM] = boolFeature(strings.Contains(msg, "outofmemory") || strings.Contains(msg, "oom"))
		v[featTokenConnRefused] = boolFeature(strings.Contains(msg, "connection refused"))
		v[featTokenTimeout] = boolFeature(strings.Contains(msg, "timeout"))
		v[featMessageHash] = hashBucket(msg)

		if m := rec.Metric; m != nil {
			raw := metricColumns(m)
			for i, value := range raw {
				v[featCPUUsage+i] = stats[i].zscore(value)
			}
		} else {
			v[featMetricMissing] = 1
		}

		vectors = append(vectors, v)
	}
	return vectors
}

type columnStats struct {
	mean, std float64
}

// zscore centers a value against the batch. A constant column (std == 0)
// maps to zero so it carries no signal instead of exploding.
func (s columnStats) zscore(value float64) float64 {
	if s.std == 0 {
		return 0
	}
	return (value - s.mean) / s.std
}

// metricColumnStats computes per-column mean and population stddev over the
// records that actually carry a snapshot. Missing snapshots contribute
// nothing, which makes the neutral imputation a zero z-score (the column
// mean).
func metricColumnStats(records []models.CorrelatedRecord) [metricFieldCount]columnStats {
	var out [metricFieldCount]columnStats

	columns := make([][]float64, metricFieldCount)
	for _, rec := range records {
		if rec.Metric == nil {
			continue
		}
		raw := metricColumns(rec.Metric)
		for i, value := range raw {
			columns[i] = append(columns[i], value)
		}
	}

	for i, values := range columns {
		if len(values) == 0 {
			continue
		}
		mean := stat.Mean(values, nil)
		variance := stat.PopVariance(values, nil)
		out[i] = columnStats{mean: mean, std: math.Sqrt(variance)}
	}
	return out
}

func metricColumns(m *models.MetricSnapshot) [metricFieldCount]float64 {
	return [metricFieldCount]float64{
		m.CPUUsage,
		m.ErrorRate,
		m.HikariCPActive,
		m.JVMHeapUsedBytes,
		m.JVMHeapMaxBytes,
		m.LatencyP95Ms,
		m.ThroughputRPS,
	}
}

// hashBucket maps a message into a coarse similarity bucket scaled to [0, 1].
func hashBucket(msg string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(msg))
	return float64(h.Sum32()%hashBuckets) / float64(hashBuckets-1)
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
