// Package search runs the full pipeline for one query: collect, deduplicate,
// filter for relevance and domain, shape, cache, paginate.
package search

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/scholarsearch/internal/aggregate"
	"github.com/helixir/scholarsearch/internal/cache"
	"github.com/helixir/scholarsearch/internal/dedup"
	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/domainfilter"
	"github.com/helixir/scholarsearch/internal/observability"
	"github.com/helixir/scholarsearch/internal/relevance"
	"github.com/helixir/scholarsearch/internal/shape"
)

// Collector abstracts the aggregator so the service can be tested with a
// scripted implementation.
type Collector interface {
	Collect(ctx context.Context, query domain.Query) (*aggregate.Result, error)
}

// Response is one page of a search result plus the metadata describing how
// the full result set was produced.
type Response struct {
	Records  []domain.Record       `json:"records"`
	Total    int                   `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"pageSize"`
	Metadata domain.SearchMetadata `json:"metadata"`
}

// Service wires the pipeline stages together. The cache sits in front of the
// whole pipeline: any page of a cached query is served by slicing the stored
// result, and a miss recomputes the full set regardless of which page was
// asked for.
type Service struct {
	collector Collector
	deduper   *dedup.Deduper
	relevance *relevance.Filter
	domains   *domainfilter.Filter
	shaper    *shape.Shaper
	cache     *cache.ResultCache
	metrics   *observability.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a Service. The metrics parameter may be nil (metrics recording
// will be skipped).
func New(
	collector Collector,
	deduper *dedup.Deduper,
	relevanceFilter *relevance.Filter,
	domainFilter *domainfilter.Filter,
	shaper *shape.Shaper,
	resultCache *cache.ResultCache,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		collector: collector,
		deduper:   deduper,
		relevance: relevanceFilter,
		domains:   domainFilter,
		shaper:    shaper,
		cache:     resultCache,
		metrics:   metrics,
		logger:    logger.With().Str("component", "search").Logger(),
		now:       time.Now,
	}
}

// Search runs the pipeline for the query and returns the requested page.
// The query is normalized and validated first; pagination fields do not
// participate in the cache key, so page two of a cached query is a hit.
func (s *Service) Search(ctx context.Context, query domain.Query) (*Response, error) {
	q := query.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	key := q.CacheKey()
	if entry, ok := s.cache.Get(key); ok {
		if s.metrics != nil {
			s.metrics.RecordCacheHit()
		}
		s.logger.Debug().
			Str("query", q.Text).
			Int("page", q.Page).
			Msg("serving search from cache")
		return s.page(entry, q, true), nil
	}
	if s.metrics != nil {
		s.metrics.RecordCacheMiss()
		s.metrics.RecordSearchStarted(string(aggregate.Classify(q)))
	}

	start := s.now()
	entry, err := s.compute(ctx, q)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordSearchFailed(s.now().Sub(start).Seconds())
		}
		return nil, err
	}

	s.cache.Put(key, *entry)
	if s.metrics != nil {
		s.metrics.RecordSearchCompleted(s.now().Sub(start).Seconds(), len(entry.Records))
	}

	return s.page(*entry, q, false), nil
}

// compute runs the full pipeline for a cache miss.
func (s *Service) compute(ctx context.Context, q domain.Query) (*cache.Entry, error) {
	collected, err := s.collector.Collect(ctx, q)
	if err != nil {
		return nil, err
	}

	deduped := s.deduper.Dedup(collected.Records)
	removed := len(collected.Records) - len(deduped)
	var dedupRate float64
	if len(collected.Records) > 0 {
		dedupRate = float64(removed) / float64(len(collected.Records))
	}
	if s.metrics != nil {
		s.metrics.RecordDeduplication(len(collected.Records), removed)
	}

	// Providers that can filter by citation count server-side already did;
	// this catches the ones that cannot (arXiv and PubMed report none). It
	// runs after deduplication so a record merged across providers keeps the
	// richest citation count it was seen with.
	eligible := citationFloor(deduped, q.MinCitations)

	relevant, err := s.relevance.Apply(ctx, q, eligible)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordRelevanceTier(string(relevant.Tier))
		s.metrics.RecordExtraRounds(collected.ExtraRounds)
	}

	kept := s.domains.Apply(relevant.Records)
	shaped := s.shaper.Shape(kept, collected.Target)

	s.logger.Info().
		Str("query", q.Text).
		Int("collected", len(collected.Records)).
		Int("deduplicated", len(deduped)).
		Int("eligible", len(eligible)).
		Int("relevant", len(relevant.Records)).
		Int("final", len(shaped)).
		Str("tier", string(relevant.Tier)).
		Bool("neuralDegraded", relevant.NeuralDegraded).
		Int("extraRounds", collected.ExtraRounds).
		Msg("search pipeline completed")

	return &cache.Entry{
		Records: shaped,
		Metadata: domain.SearchMetadata{
			TotalCollected:    len(collected.Records),
			Sources:           collected.Reports,
			DeduplicationRate: dedupRate,
			RelevanceTier:     relevant.Tier,
			NeuralDegraded:    relevant.NeuralDegraded,
			Complexity:        collected.Complexity,
			ExtraRounds:       collected.ExtraRounds,
		},
		ComputedAt: s.now(),
	}, nil
}

// citationFloor drops records below the minimum citation count. Zero keeps
// everything.
func citationFloor(records []domain.Record, minCitations int) []domain.Record {
	if minCitations <= 0 {
		return records
	}
	kept := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		if rec.CitationCount >= minCitations {
			kept = append(kept, rec)
		}
	}
	return kept
}

// page slices the stored result for the requested page. Metadata is copied
// per response so the CacheHit flag never leaks back into the stored entry.
func (s *Service) page(entry cache.Entry, q domain.Query, cacheHit bool) *Response {
	md := entry.Metadata
	md.CacheHit = cacheHit

	return &Response{
		Records:  cache.Slice(entry, q.Page, q.PageSize),
		Total:    len(entry.Records),
		Page:     q.Page,
		PageSize: q.PageSize,
		Metadata: md,
	}
}
