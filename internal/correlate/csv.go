package correlate

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aiopskit/rca-pipeline/internal/models"
)

var csvHeader = []string{
	"timestamp", "service", "level", "trace_id", "message",
	"metric_timestamp", "cpu_usage", "error_rate", "hikaricp_active",
	"jvm_heap_used_bytes", "jvm_heap_max_bytes", "latency_p95_ms",
	"throughput_requests_per_second",
}

// WriteCSV emits the correlated dataset as a tabular artifact, one row per
// record. Rows without a matched snapshot leave the metric columns empty.
// The file is meant for inspection and for feeding the scorer offline.
func WriteCSV(w io.Writer, records []models.CorrelatedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.Log.Timestamp.Format(time.RFC3339Nano),
			rec.Log.Service,
			string(rec.Log.Level),
			rec.Log.TraceID,
			rec.Log.Message,
			"", "", "", "", "", "", "", "",
		}
		if m := rec.Metric; m != nil {
			row[5] = m.Timestamp.Format(time.RFC3339Nano)
			row[6] = formatFloat(m.CPUUsage)
			row[7] = formatFloat(m.ErrorRate)
			row[8] = formatFloat(m.HikariCPActive)
			row[9] = formatFloat(m.JVMHeapUsedBytes)
			row[10] = formatFloat(m.JVMHeapMaxBytes)
			row[11] = formatFloat(m.LatencyP95Ms)
			row[12] = formatFloat(m.ThroughputRPS)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
