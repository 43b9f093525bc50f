package correlate

import (
	"log/slog"
	"sort"
	"time"

	"github.com/aiopskit/rca-pipeline/internal/models"
	"github.com/aiopskit/rca-pipeline/internal/utils"
)

// Correlator attaches the temporally nearest metric snapshot to each log
// record for the same service. Lookup is a binary search per record, so the
// whole pass is O(L log M) rather than a linear scan per log.
type Correlator struct {
	tolerance time.Duration
	logger    *slog.Logger
}

// New constructs a Correlator with the given matching tolerance.
func New(tolerance time.Duration, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{tolerance: tolerance, logger: logger}
}

// Correlate produces one CorrelatedRecord per input log record, preserving
// input order. A record whose service has no snapshot within tolerance gets
// a nil metric; that is expected, not an error. Empty input yields an empty
// output.
func (c *Correlator) Correlate(logs []models.LogRecord, metrics map[string][]models.MetricSnapshot) []models.CorrelatedRecord {
	sorted := make(map[string][]models.MetricSnapshot, len(metrics))
	for service, series := range metrics {
		sorted[service] = ensureSorted(series)
	}

	out := make([]models.CorrelatedRecord, 0, len(logs))
	matched := 0
	for _, record := range logs {
		snap := c.nearest(sorted[record.Service], record.Timestamp)
		if snap != nil {
			matched++
		}
		out = append(out, models.CorrelatedRecord{Log: record, Metric: snap})
	}

	c.logger.Debug("correlation complete",
		slog.Int("records", len(out)),
		slog.Int("matched", matched),
		slog.Duration("tolerance", c.tolerance),
	)
	return out
}

// nearest returns the snapshot closest in time to ts, or nil when the series
// is empty or the best candidate lies outside the tolerance. On an exact
// delta tie the earlier snapshot wins.
func (c *Correlator) nearest(series []models.MetricSnapshot, ts time.Time) *models.MetricSnapshot {
	if len(series) == 0 {
		return nil
	}

	// First snapshot at or after ts.
	idx := sort.Search(len(series), func(i int) bool {
		return !series[i].Timestamp.Before(ts)
	})

	best := -1
	switch {
	case idx == 0:
		best = 0
	case idx == len(series):
		best = len(series) - 1
	default:
		earlier := utils.AbsDuration(ts.Sub(series[idx-1].Timestamp))
		later := utils.AbsDuration(series[idx].Timestamp.Sub(ts))
		if earlier <= later {
			best = idx - 1
		} else {
			best = idx
		}
	}

	if utils.AbsDuration(ts.Sub(series[best].Timestamp)) > c.tolerance {
		return nil
	}
	snap := series[best]
	return &snap
}

func ensureSorted(series []models.MetricSnapshot) []models.MetricSnapshot {
	if sort.SliceIsSorted(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	}) {
		return series
	}
	copied := append([]models.MetricSnapshot(nil), series...)
	sort.SliceStable(copied, func(i, j int) bool {
		return copied[i].Timestamp.Before(copied[j].Timestamp)
	})
	return copied
}
