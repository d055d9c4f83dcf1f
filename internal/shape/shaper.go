// Package shape orders records by a composite quality score and balances
// source diversity in the final set.
package shape

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/scholarsearch/internal/domain"
)

// Weights is the quality score weight vector. The components are each
// normalized to [0, 1] before weighting.
type Weights struct {
	Recency   float64
	Citations float64
	Venue     float64
	Relevance float64
}

// DefaultWeights returns the weight vector used when none is configured.
func DefaultWeights() Weights {
	return Weights{
		Recency:   0.2,
		Citations: 0.3,
		Venue:     0.1,
		Relevance: 0.4,
	}
}

// Sum returns the total weight mass.
func (w Weights) Sum() float64 {
	return w.Recency + w.Citations + w.Venue + w.Relevance
}

// Config holds the shaper settings.
type Config struct {
	// Weights is the quality score weight vector.
	Weights Weights

	// MaxSourceShare caps any single source's share of the final set when
	// diversity rebalancing applies. Must be in (0, 1].
	MaxSourceShare float64
}

const (
	// recencyHorizonYears is the age at which the recency component
	// bottoms out.
	recencyHorizonYears = 10.0

	// citationSaturation is the citation count at which the citation
	// component saturates to 1.
	citationSaturation = 1000.0

	// missingYearRecency is the neutral recency for records without a
	// publication year.
	missingYearRecency = 0.5
)

// Shaper computes composite quality scores, sorts, truncates to the target
// count and applies the per-source diversity cap.
type Shaper struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a Shaper. A zero weight vector falls back to DefaultWeights.
func New(cfg Config, logger zerolog.Logger) *Shaper {
	if cfg.Weights.Sum() <= 0 {
		cfg.Weights = DefaultWeights()
	}
	if cfg.MaxSourceShare <= 0 || cfg.MaxSourceShare > 1 {
		cfg.MaxSourceShare = 0.5
	}
	return &Shaper{
		cfg:    cfg,
		logger: logger.With().Str("component", "shape").Logger(),
		now:    time.Now,
	}
}

// Shape scores and orders records, returning at most target records. The
// diversity cap is applied only when the candidate count exceeds the target;
// at or below target every candidate is kept, trading diversity for
// coverage.
func (s *Shaper) Shape(records []domain.Record, target int) []domain.Record {
	if len(records) == 0 {
		return nil
	}

	maxLexical := 0.0
	for _, rec := range records {
		if rec.LexicalScore > maxLexical {
			maxLexical = rec.LexicalScore
		}
	}

	scored := make([]domain.Record, len(records))
	for i, rec := range records {
		scored[i] = rec.WithQualityScore(s.score(rec, maxLexical))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].QualityScore > *scored[j].QualityScore
	})

	if target <= 0 || len(scored) <= target {
		return scored
	}

	return s.rebalance(scored, target)
}

// score computes the composite quality score for one record.
func (s *Shaper) score(rec domain.Record, maxLexical float64) float64 {
	w := s.cfg.Weights
	total := w.Recency*s.recency(rec) +
		w.Citations*citationSignal(rec) +
		w.Venue*venueSignal(rec) +
		w.Relevance*relevanceSignal(rec, maxLexical)
	return total / w.Sum()
}

func (s *Shaper) recency(rec domain.Record) float64 {
	if rec.Year == nil {
		return missingYearRecency
	}
	age := float64(s.now().Year() - *rec.Year)
	if age < 0 {
		age = 0
	}
	value := 1 - age/recencyHorizonYears
	if value < 0 {
		return 0
	}
	return value
}

func citationSignal(rec domain.Record) float64 {
	if rec.CitationCount <= 0 {
		return 0
	}
	value := math.Log1p(float64(rec.CitationCount)) / math.Log1p(citationSaturation)
	if value > 1 {
		return 1
	}
	return value
}

func venueSignal(rec domain.Record) float64 {
	if rec.Venue == "" {
		return 0
	}
	return 1
}

// relevanceSignal prefers the neural score; when the neural stage did not
// run it falls back to the lexical score scaled by the set maximum.
func relevanceSignal(rec domain.Record, maxLexical float64) float64 {
	if rec.NeuralScore != nil {
		return *rec.NeuralScore
	}
	if maxLexical <= 0 {
		return 0
	}
	return rec.LexicalScore / maxLexical
}

// rebalance truncates the sorted set to target while capping each source's
// share. If the cap leaves the set short, the highest-scored skipped
// records fill the remainder.
func (s *Shaper) rebalance(sorted []domain.Record, target int) []domain.Record {
	shareCap := int(math.Ceil(float64(target) * s.cfg.MaxSourceShare))
	if shareCap < 1 {
		shareCap = 1
	}

	out := make([]domain.Record, 0, target)
	skipped := make([]domain.Record, 0)
	perSource := make(map[domain.SourceType]int)

	for _, rec := range sorted {
		if len(out) == target {
			break
		}
		if perSource[rec.Source] >= shareCap {
			skipped = append(skipped, rec)
			continue
		}
		perSource[rec.Source]++
		out = append(out, rec)
	}

	// Backfill from skipped records so the cap never shrinks the set
	// below target.
	for _, rec := range skipped {
		if len(out) == target {
			break
		}
		out = append(out, rec)
	}

	if len(skipped) > 0 {
		s.logger.Debug().
			Int("capped", len(skipped)).
			Int("per_source_cap", shareCap).
			Msg("diversity rebalancing applied")
	}

	return out
}
