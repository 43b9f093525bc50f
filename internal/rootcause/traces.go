package rootcause

import "github.com/aiopskit/rca-pipeline/internal/models"

// TraceResolver attributes anomalies to services via trace-id grouping: the
// service of the earliest anomalous record in a trace is the suspected root
// cause for every anomaly in that trace, and every service the trace touched
// is affected. Records without a trace id resolve to themselves.
type TraceResolver struct {
	rootByTrace     map[string]string
	servicesByTrace map[string][]string
}

// NewTraceResolver indexes the scored batch. Results must be in pipeline
// order (timestamp ascending), so "first anomalous record in the trace"
// means earliest in time.
func NewTraceResolver(results []models.AnomalyResult) *TraceResolver {
	r := &TraceResolver{
		rootByTrace:     make(map[string]string),
		servicesByTrace: make(map[string][]string),
	}

	for _, res := range results {
		traceID := res.Record.Log.TraceID
		if traceID == "" {
			continue
		}
		service := res.Record.Log.Service

		if res.IsAnomalous {
			if _, ok := r.rootByTrace[traceID]; !ok {
				r.rootByTrace[traceID] = service
			}
		}
		if !containsString(r.servicesByTrace[traceID], service) {
			r.servicesByTrace[traceID] = append(r.servicesByTrace[traceID], service)
		}
	}
	return r
}

// RootCauseService names the suspected origin for one result.
func (r *TraceResolver) RootCauseService(res models.AnomalyResult) string {
	traceID := res.Record.Log.TraceID
	if traceID != "" {
		if root, ok := r.rootByTrace[traceID]; ok {
			return root
		}
	}
	return res.Record.Log.Service
}

// AffectedServices lists every service the result's trace touched, in
// first-seen order. Without a trace id the record's own service stands alone.
func (r *TraceResolver) AffectedServices(res models.AnomalyResult) []string {
	traceID := res.Record.Log.TraceID
	if traceID != "" {
		if services, ok := r.servicesByTrace[traceID]; ok {
			return append([]string(nil), services...)
		}
	}
	return []string{res.Record.Log.Service}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
