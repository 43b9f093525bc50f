package models

import (
	"strings"
	"time"
)

// LogLevel enumerates the severities emitted by the fleet's logging stack.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// ParseLogLevel maps a raw severity token onto a LogLevel. Spring Boot and
// syslog-style producers disagree on spelling, so WARNING and CRITICAL are
// folded into the nearest level. Unknown tokens report ok=false so the
// ingestion boundary can skip the record.
func ParseLogLevel(raw string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBUG", "TRACE":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR", "CRITICAL", "FATAL":
		return LevelError, true
	default:
		return "", false
	}
}

// Score returns the ordinal weight used by the feature encoder.
func (l LogLevel) Score() float64 {
	switch l {
	case LevelDebug:
		return 1
	case LevelInfo:
		return 2
	case LevelWarn:
		return 3
	case LevelError:
		return 4
	default:
		return 0
	}
}

// LogRecord is one parsed log event. Immutable once produced by the
// ingestion boundary.
type LogRecord struct {
	Timestamp time.Time
	Service   string
	Level     LogLevel
	Message   string
	TraceID   string // empty when the producer emitted no trace id
}

// MetricSnapshot is one sample of the per-service metric set, pivoted from
// the raw per-metric series into a single row.
type MetricSnapshot struct {
	Timestamp        time.Time
	Service          string
	CPUUsage         float64
	ErrorRate        float64
	HikariCPActive   float64
	JVMHeapUsedBytes float64
	JVMHeapMaxBytes  float64
	LatencyP95Ms     float64
	ThroughputRPS    float64
}

// HeapRatio reports used/max heap. Producers occasionally publish a zero or
// stale max, so ok=false marks the ratio as unusable rather than dividing
// by zero or returning a ratio above one silently.
func (m MetricSnapshot) HeapRatio() (float64, bool) {
	if m.JVMHeapMaxBytes <= 0 {
		return 0, false
	}
	return m.JVMHeapUsedBytes / m.JVMHeapMaxBytes, true
}

// CorrelatedRecord pairs a log event with the temporally nearest metric
// snapshot for its service. Metric is nil when no sample fell within the
// correlation tolerance.
type CorrelatedRecord struct {
	Log    LogRecord
	Metric *MetricSnapshot
}
