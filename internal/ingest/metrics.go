package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/aiopskit/rca-pipeline/internal/models"
	"github.com/aiopskit/rca-pipeline/internal/utils"
)

// Metric dumps group tab-separated "timestamp<TAB>value" rows under header
// lines that name the metric and the PromQL it was sampled from:
//
//	## METRIC: latency_p95_ms
//	## PROMQL: histogram_quantile(0.95, ...{service="accounts-ms"}...)
//	2024-05-01T12:00:00+00:00	812.5
//
// Rows pivot into one MetricSnapshot per (service, timestamp).
var promqlService = regexp.MustCompile(`service="([^"]+)"`)

// MetricParseResult carries the pivoted snapshots keyed by service, sorted by
// timestamp, plus the count of rows that could not be used.
type MetricParseResult struct {
	Series  map[string][]models.MetricSnapshot
	Skipped int
}

type snapshotKey struct {
	service string
	ts      int64
}

// ParseMetrics reads one metric dump and pivots its rows into snapshots.
func ParseMetrics(r io.Reader) (MetricParseResult, error) {
	result := MetricParseResult{Series: make(map[string][]models.MetricSnapshot)}

	var (
		currentMetric  string
		currentService string
		rows           = make(map[snapshotKey]*models.MetricSnapshot)
		order          []snapshotKey
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "## METRIC:") {
			currentMetric = strings.TrimSpace(strings.TrimPrefix(line, "## METRIC:"))
			continue
		}
		if strings.HasPrefix(line, "## PROMQL:") {
			if m := promqlService.FindStringSubmatch(line); m != nil {
				currentService = m[1]
			}
			continue
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if currentMetric == "" || currentService == "" {
			result.Skipped++
			continue
		}

		parts := strings.Split(strings.TrimSpace(line), "\t")
		if len(parts) != 2 {
			result.Skipped++
			continue
		}
		ts, err := utils.ParseRFC3339(parts[0])
		if err != nil {
			result.Skipped++
			continue
		}
		value, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			result.Skipped++
			continue
		}

		key := snapshotKey{service: currentService, ts: ts.UnixNano()}
		snap, ok := rows[key]
		if !ok {
			snap = &models.MetricSnapshot{Timestamp: ts.UTC(), Service: currentService}
			rows[key] = snap
			order = append(order, key)
		}
		if !setMetricField(snap, currentMetric, value) {
			result.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("scan metrics: %w", err)
	}

	for _, key := range order {
		snap := rows[key]
		result.Series[snap.Service] = append(result.Series[snap.Service], *snap)
	}
	for service := range result.Series {
		series := result.Series[service]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})
		result.Series[service] = series
	}
	return result, nil
}

// setMetricField maps a dump metric name onto a snapshot field. Legacy names
// emitted by older fetchers are accepted as aliases.
func setMetricField(snap *models.MetricSnapshot, metric string, value float64) bool {
	switch metric {
	case "cpu_usage", "cpu_seconds_rate":
		snap.CPUUsage = value
	case "error_rate":
		snap.ErrorRate = value
	case "hikaricp_active":
		snap.HikariCPActive = value
	case "jvm_heap_used_bytes":
		snap.JVMHeapUsedBytes = value
	case "jvm_heap_max_bytes":
		snap.JVMHeapMaxBytes = value
	case "latency_p95_ms":
		snap.LatencyP95Ms = value
	case "throughput_rps", "throughput_requests_per_second":
		snap.ThroughputRPS = value
	default:
		return false
	}
	return true
}

// LoadMetricFiles parses every metric dump in order and merges the resulting
// per-service series.
func LoadMetricFiles(paths []string) (map[string][]models.MetricSnapshot, int, error) {
	merged := make(map[string][]models.MetricSnapshot)
	skipped := 0

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, skipped, fmt.Errorf("open metric file: %w", err)
		}
		res, err := ParseMetrics(f)
		f.Close()
		if err != nil {
			return nil, skipped, fmt.Errorf("parse %s: %w", path, err)
		}
		skipped += res.Skipped
		for service, series := range res.Series {
			merged[service] = append(merged[service], series...)
		}
	}

	for service := range merged {
		series := merged[service]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})
		merged[service] = series
	}
	return merged, skipped, nil
}
