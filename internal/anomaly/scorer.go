package anomaly

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientData marks a batch too small to fit a meaningful model on.
// Callers must surface it rather than degrade into a report built from a
// handful of points.
var ErrInsufficientData = errors.New("insufficient data to fit anomaly model")

// ErrVectorLength marks an inconsistently shaped batch. This corrupts the
// model, so it is fatal for the run.
var ErrVectorLength = errors.New("inconsistent feature vector length")

// Result carries the score and label for one input vector, index-aligned
// with the batch passed to FitScore.
type Result struct {
	Score       float64
	IsAnomalous bool
}

// Scorer fits a seeded isolation forest on a batch and scores that same
// batch. The score convention is sklearn's decision function: 0.5 minus the
// isolation score, so lower means more anomalous and the threshold derived
// from contamination cuts from the bottom.
type Scorer struct {
	trees         int
	sampleSize    int
	contamination float64
	seed          int64
	minRecords    int
	logger        *slog.Logger
}

// ScorerOptions configures a Scorer.
type ScorerOptions struct {
	Trees         int
	SampleSize    int
	Contamination float64
	Seed          int64
	MinRecords    int
}

// NewScorer constructs a Scorer; zero option fields fall back to the
// conventional isolation-forest defaults.
func NewScorer(opts ScorerOptions, logger *slog.Logger) *Scorer {
	if opts.Trees <= 0 {
		opts.Trees = 100
	}
	if opts.SampleSize <= 1 {
		opts.SampleSize = 256
	}
	if opts.MinRecords < 2 {
		opts.MinRecords = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		trees:         opts.Trees,
		sampleSize:    opts.SampleSize,
		contamination: opts.Contamination,
		seed:          opts.Seed,
		minRecords:    opts.MinRecords,
		logger:        logger,
	}
}

// FitScore fits the ensemble on vectors and returns one Result per vector.
// The randomness is fully derived from the configured seed, so an identical
// batch always yields identical scores and labels.
func (s *Scorer) FitScore(vectors [][]float64) ([]Result, error) {
	if len(vectors) < s.minRecords {
		return nil, fmt.Errorf("%w: have %d records, need at least %d", ErrInsufficientData, len(vectors), s.minRecords)
	}
	if s.contamination <= 0 || s.contamination >= 0.5 {
		return nil, fmt.Errorf("contamination %v outside (0, 0.5)", s.contamination)
	}

	width := len(vectors[0])
	for i, v := range vectors {
		if len(v) != width {
			return nil, fmt.Errorf("%w: vector %d has %d features, expected %d", ErrVectorLength, i, len(v), width)
		}
	}

	rng := rand.New(rand.NewSource(s.seed))
	f := buildForest(vectors, s.trees, s.sampleSize, rng)

	scores := make([]float64, len(vectors))
	for i, v := range vectors {
		scores[i] = 0.5 - f.score(v)
	}

	threshold := contaminationThreshold(scores, s.contamination)

	results := make([]Result, len(vectors))
	anomalous := 0
	for i, score := range scores {
		flagged := score <= threshold
		if flagged {
			anomalous++
		}
		results[i] = Result{Score: score, IsAnomalous: flagged}
	}

	s.logger.Debug("scoring complete",
		slog.Int("records", len(vectors)),
		slog.Int("anomalous", anomalous),
		slog.Float64("threshold", threshold),
	)
	return results, nil
}

// contaminationThreshold returns the score value below or at which the
// expected anomalous fraction of the batch lies.
func contaminationThreshold(scores []float64, contamination float64) float64 {
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	return stat.Quantile(contamination, stat.Empirical, sorted, nil)
}
