package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aiopskit/rca-pipeline/internal/anomaly"
	"github.com/aiopskit/rca-pipeline/internal/metrics"
	"github.com/aiopskit/rca-pipeline/internal/models"
	"github.com/aiopskit/rca-pipeline/internal/services"
)

// LogPayload is the wire form of one already-fetched log record.
type LogPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	TraceID   string    `json:"trace_id"`
}

// MetricPayload is the wire form of one metric sample.
type MetricPayload struct {
	Timestamp        time.Time `json:"timestamp"`
	CPUUsage         float64   `json:"cpu_usage"`
	ErrorRate        float64   `json:"error_rate"`
	HikariCPActive   float64   `json:"hikaricp_active"`
	JVMHeapUsedBytes float64   `json:"jvm_heap_used_bytes"`
	JVMHeapMaxBytes  float64   `json:"jvm_heap_max_bytes"`
	LatencyP95Ms     float64   `json:"latency_p95_ms"`
	ThroughputRPS    float64   `json:"throughput_requests_per_second"`
}

// AnalyzeRequest carries a full batch: log records plus per-service metric
// series. Acquisition happened elsewhere; this surface only triggers the
// analysis.
type AnalyzeRequest struct {
	Logs    []LogPayload               `json:"logs"`
	Metrics map[string][]MetricPayload `json:"metrics"`
}

// Handler exposes the analysis service over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *services.AnalysisService
}

// NewHandler constructs the HTTP handler set.
func NewHandler(logger *slog.Logger, service *services.AnalysisService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// Routes assembles the mux: the analyze endpoint, a liveness probe, and the
// Prometheus scrape endpoint.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/analyze", h.handleAnalyze)
	return mux
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	logs, skipped := decodeLogs(req.Logs)
	if skipped > 0 {
		metrics.AddRecordsSkipped(skipped)
		h.logger.Warn("skipped malformed log records", slog.Int("count", skipped))
	}

	metricSeries := make(map[string][]models.MetricSnapshot, len(req.Metrics))
	for service, series := range req.Metrics {
		snapshots := make([]models.MetricSnapshot, 0, len(series))
		for _, p := range series {
			snapshots = append(snapshots, models.MetricSnapshot{
				Timestamp:        p.Timestamp,
				Service:          service,
				CPUUsage:         p.CPUUsage,
				ErrorRate:        p.ErrorRate,
				HikariCPActive:   p.HikariCPActive,
				JVMHeapUsedBytes: p.JVMHeapUsedBytes,
				JVMHeapMaxBytes:  p.JVMHeapMaxBytes,
				LatencyP95Ms:     p.LatencyP95Ms,
				ThroughputRPS:    p.ThroughputRPS,
			})
		}
		metricSeries[service] = snapshots
	}

	result, err := h.service.Analyze(r.Context(), logs, metricSeries)
	if err != nil {
		if errors.Is(err, anomaly.ErrInsufficientData) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("analysis failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// decodeLogs validates payload records, skipping and counting the ones with
// an unusable level or timestamp rather than failing the batch.
func decodeLogs(payloads []LogPayload) ([]models.LogRecord, int) {
	records := make([]models.LogRecord, 0, len(payloads))
	skipped := 0
	for _, p := range payloads {
		level, ok := models.ParseLogLevel(p.Level)
		if !ok || p.Timestamp.IsZero() || p.Service == "" {
			skipped++
			continue
		}
		records = append(records, models.LogRecord{
			Timestamp: p.Timestamp,
			Service:   p.Service,
			Level:     level,
			Message:   p.Message,
			TraceID:   p.TraceID,
		})
	}
	return records, skipped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
