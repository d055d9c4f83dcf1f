package domain

import "time"

// SourceReport is the per-provider outcome of one fetch within a pipeline
// run: record count, duration, optional error. Reports are aggregated into
// search metadata for transparency and never influence ranking.
type SourceReport struct {
	Papers     int           `json:"papers"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"durationMs"`
	Err        string        `json:"error,omitempty"`
}

// Failed reports whether the fetch ended in an error.
func (r SourceReport) Failed() bool {
	return r.Err != ""
}

// SearchMetadata describes how a pipeline run degraded or succeeded. Every
// fallback path taken is recorded here, never silently hidden.
type SearchMetadata struct {
	// TotalCollected is the record count after merging all providers,
	// before deduplication.
	TotalCollected int `json:"totalCollected"`

	// Sources maps provider name to its fetch report, including failures.
	Sources map[SourceType]SourceReport `json:"sources"`

	// DeduplicationRate is the fraction of collected records removed as
	// duplicates, in [0, 1].
	DeduplicationRate float64 `json:"deduplicationRate"`

	// RelevanceTier records which fallback tier produced the result set.
	RelevanceTier RelevanceTier `json:"relevanceTier"`

	// NeuralDegraded is true when the lexical tier was used because neural
	// inference failed, not because no record passed the neural thresholds.
	NeuralDegraded bool `json:"neuralDegraded,omitempty"`

	// Complexity is the query classification that drove fetch allocation.
	Complexity QueryComplexity `json:"complexity"`

	// ExtraRounds counts boosted re-fetch rounds issued because the first
	// round fell below the minimum acceptable result count.
	ExtraRounds int `json:"extraRounds,omitempty"`

	// CacheHit is true when the response was served from the result cache.
	CacheHit bool `json:"cacheHit"`
}
