package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the search service.
// Metrics are organized by subsystem: searches, providers, deduplication,
// relevance, cache, and resilience. All counters and histograms are
// registered via promauto for automatic registration with the default
// Prometheus registry.
type Metrics struct {
	// SearchesStarted counts the total number of search requests received.
	SearchesStarted prometheus.Counter

	// SearchesCompleted counts the total number of searches that finished successfully.
	SearchesCompleted prometheus.Counter

	// SearchesFailed counts the total number of searches that ended in failure.
	SearchesFailed prometheus.Counter

	// SearchDuration observes the end-to-end duration of searches in seconds.
	SearchDuration prometheus.Histogram

	// SearchesByComplexity counts searches labeled by query complexity.
	SearchesByComplexity *prometheus.CounterVec

	// ResultsPerSearch observes the distribution of final result counts per search.
	ResultsPerSearch prometheus.Histogram

	// ExtraRounds counts boosted re-fetch rounds run by the aggregator.
	ExtraRounds prometheus.Counter

	// ProviderFetches counts fetch operations against providers, labeled by source.
	ProviderFetches *prometheus.CounterVec

	// ProviderFailures counts failed fetch operations, labeled by source.
	ProviderFailures *prometheus.CounterVec

	// ProviderFetchDuration observes fetch duration in seconds, labeled by source.
	ProviderFetchDuration *prometheus.HistogramVec

	// RecordsPerFetch observes the distribution of records returned per fetch, labeled by source.
	RecordsPerFetch *prometheus.HistogramVec

	// RecordsSkipped counts malformed provider items skipped during decoding, labeled by source.
	RecordsSkipped *prometheus.CounterVec

	// DuplicatesRemoved counts records folded away during deduplication.
	DuplicatesRemoved prometheus.Counter

	// DeduplicationRate observes the fraction of collected records removed as duplicates.
	DeduplicationRate prometheus.Histogram

	// RelevanceTierUsed counts searches by the relevance tier the filter settled on.
	RelevanceTierUsed *prometheus.CounterVec

	// RerankerRequests counts batch requests sent to the reranker.
	RerankerRequests prometheus.Counter

	// RerankerFailures counts reranker batch requests that failed.
	RerankerFailures prometheus.Counter

	// RerankerDuration observes reranker batch request duration in seconds.
	RerankerDuration prometheus.Histogram

	// CacheHits counts search requests answered from the result cache.
	CacheHits prometheus.Counter

	// CacheMisses counts search requests that required a full pipeline run.
	CacheMisses prometheus.Counter

	// BreakerTransitions counts circuit breaker state changes, labeled by provider and new state.
	BreakerTransitions *prometheus.CounterVec

	// RateLimitWaits counts fetches that blocked on the provider rate limiter.
	RateLimitWaits *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SearchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of search requests received.",
		}),
		SearchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of searches completed successfully.",
		}),
		SearchesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of searches that failed.",
		}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SearchesByComplexity: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_by_complexity_total",
			Help:      "Searches by classified query complexity.",
		}, []string{"complexity"}),
		ResultsPerSearch: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "results_per_search",
			Help:      "Distribution of final result counts per search.",
			Buckets:   []float64{0, 5, 10, 25, 50, 100, 150, 250},
		}),
		ExtraRounds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregator_extra_rounds_total",
			Help:      "Total boosted re-fetch rounds run by the aggregator.",
		}),
		ProviderFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fetches_total",
			Help:      "Fetch operations against providers by source.",
		}, []string{"source"}),
		ProviderFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Failed fetch operations by source.",
		}, []string{"source"}),
		ProviderFetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_fetch_duration_seconds",
			Help:      "Provider fetch duration in seconds by source.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		RecordsPerFetch: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "records_per_fetch",
			Help:      "Distribution of records returned per fetch by source.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
		}, []string{"source"}),
		RecordsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Malformed provider items skipped during decoding by source.",
		}, []string{"source"}),
		DuplicatesRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_removed_total",
			Help:      "Records folded away during deduplication.",
		}),
		DeduplicationRate: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deduplication_rate",
			Help:      "Fraction of collected records removed as duplicates.",
			Buckets:   []float64{0, 0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1},
		}),
		RelevanceTierUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relevance_tier_used_total",
			Help:      "Searches by the relevance tier the filter settled on.",
		}, []string{"tier"}),
		RerankerRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reranker_requests_total",
			Help:      "Batch requests sent to the reranker.",
		}),
		RerankerFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reranker_failures_total",
			Help:      "Reranker batch requests that failed.",
		}),
		RerankerDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reranker_duration_seconds",
			Help:      "Reranker batch request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Search requests answered from the result cache.",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Search requests that required a full pipeline run.",
		}),
		BreakerTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state changes by provider and new state.",
		}, []string{"provider", "state"}),
		RateLimitWaits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_waits_total",
			Help:      "Fetches that blocked on the provider rate limiter.",
		}, []string{"source"}),
	}
}

// RecordSearchStarted increments the started counter and the complexity label.
func (m *Metrics) RecordSearchStarted(complexity string) {
	m.SearchesStarted.Inc()
	m.SearchesByComplexity.WithLabelValues(complexity).Inc()
}

// RecordSearchCompleted records a successful search with its duration and result count.
func (m *Metrics) RecordSearchCompleted(durationSeconds float64, resultCount int) {
	m.SearchesCompleted.Inc()
	m.SearchDuration.Observe(durationSeconds)
	m.ResultsPerSearch.Observe(float64(resultCount))
}

// RecordSearchFailed records a search that ended in failure.
func (m *Metrics) RecordSearchFailed(durationSeconds float64) {
	m.SearchesFailed.Inc()
	m.SearchDuration.Observe(durationSeconds)
}

// RecordFetch records a provider fetch attempt and its outcome.
func (m *Metrics) RecordFetch(source string, durationSeconds float64, recordCount int, err error) {
	m.ProviderFetches.WithLabelValues(source).Inc()
	m.ProviderFetchDuration.WithLabelValues(source).Observe(durationSeconds)
	if err != nil {
		m.ProviderFailures.WithLabelValues(source).Inc()
		return
	}
	m.RecordsPerFetch.WithLabelValues(source).Observe(float64(recordCount))
}

// RecordSkipped records malformed provider items dropped during decoding.
func (m *Metrics) RecordSkipped(source string, count int) {
	if count > 0 {
		m.RecordsSkipped.WithLabelValues(source).Add(float64(count))
	}
}

// RecordDeduplication records the outcome of a deduplication pass.
func (m *Metrics) RecordDeduplication(collected, removed int) {
	m.DuplicatesRemoved.Add(float64(removed))
	if collected > 0 {
		m.DeduplicationRate.Observe(float64(removed) / float64(collected))
	}
}

// RecordRelevanceTier records which tier the relevance filter settled on.
func (m *Metrics) RecordRelevanceTier(tier string) {
	m.RelevanceTierUsed.WithLabelValues(tier).Inc()
}

// RecordRerank records a reranker batch request.
func (m *Metrics) RecordRerank(durationSeconds float64, err error) {
	m.RerankerRequests.Inc()
	m.RerankerDuration.Observe(durationSeconds)
	if err != nil {
		m.RerankerFailures.Inc()
	}
}

// RecordCacheHit increments the cache hit counter.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(provider, state string) {
	m.BreakerTransitions.WithLabelValues(provider, state).Inc()
}

// RecordExtraRounds records boosted re-fetch rounds run for a search.
func (m *Metrics) RecordExtraRounds(rounds int) {
	if rounds > 0 {
		m.ExtraRounds.Add(float64(rounds))
	}
}

// RecordRateLimitWait records a fetch that blocked on the rate limiter.
func (m *Metrics) RecordRateLimitWait(source string) {
	m.RateLimitWaits.WithLabelValues(source).Inc()
}
