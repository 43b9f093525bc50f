package models

import "time"

// AnomalyResult carries one scored record. Score follows the isolation
// convention: lower means more anomalous. The ranking in the final report
// sorts ascending on this value.
type AnomalyResult struct {
	Record      CorrelatedRecord
	Score       float64
	IsAnomalous bool
}

// Suggestion is one actionable root-cause hint attributed to a service.
type Suggestion struct {
	Service string `json:"service"`
	Text    string `json:"text"`
}

// ReportMetricSnapshot is the wire form of the metric snapshot attached to
// an anomaly. Field names are the downstream compatibility boundary; do not
// rename without versioning the consumers.
type ReportMetricSnapshot struct {
	CPUUsage         float64 `json:"cpu_usage"`
	ErrorRate        float64 `json:"error_rate"`
	HikariCPActive   float64 `json:"hikaricp_active"`
	JVMHeapUsedBytes float64 `json:"jvm_heap_used_bytes"`
	JVMHeapMaxBytes  float64 `json:"jvm_heap_max_bytes"`
	LatencyP95Ms     float64 `json:"latency_p95_ms"`
	ThroughputRPS    float64 `json:"throughput_requests_per_second"`
}

// ReportAnomaly is one entry of the ranked anomaly list.
type ReportAnomaly struct {
	Timestamp        time.Time             `json:"timestamp"`
	Service          string                `json:"service"`
	Level            LogLevel              `json:"level"`
	Message          string                `json:"message"`
	TraceID          string                `json:"trace_id"`
	AnomalyScore     float64               `json:"anomaly_score"`
	RootCauseService string                `json:"root_cause_service"`
	MetricSnapshot   *ReportMetricSnapshot `json:"metric_snapshot"`
	Suggestions      []Suggestion          `json:"suggestions"`
	AffectedServices []string              `json:"affected_services"`
}

// TopError is one recurring anomalous message with its occurrence count.
type TopError struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// ReportSummary aggregates the batch outcome.
type ReportSummary struct {
	AnomalyCount int        `json:"anomaly_count"`
	TopErrors    []TopError `json:"top_errors"`
}

// Report is the final artifact of a pipeline run, built once and immutable
// afterwards. A run that finds nothing still produces a well-formed Report
// with a zeroed summary and an empty anomaly list.
type Report struct {
	Summary   ReportSummary   `json:"summary"`
	Anomalies []ReportAnomaly `json:"anomalies"`
}

// NewMetricSnapshotWire converts an internal snapshot into its wire form.
func NewMetricSnapshotWire(m *MetricSnapshot) *ReportMetricSnapshot {
	if m == nil {
		return nil
	}
	return &ReportMetricSnapshot{
		CPUUsage:         m.CPUUsage,
		ErrorRate:        m.ErrorRate,
		HikariCPActive:   m.HikariCPActive,
		JVMHeapUsedBytes: m.JVMHeapUsedBytes,
		JVMHeapMaxBytes:  m.JVMHeapMaxBytes,
		LatencyP95Ms:     m.LatencyP95Ms,
		ThroughputRPS:    m.ThroughputRPS,
	}
}
