// Package sources provides interfaces and types for scholarly record source
// adapters.
//
// Each external academic API (Semantic Scholar, OpenAlex, arXiv, Crossref,
// PubMed) implements the Source interface, allowing the aggregator to fetch
// from many providers concurrently with a unified contract. Adapters
// translate the normalized query into a provider-specific request, perform it
// through the resilience layer, and map responses into the canonical
// domain.Record type. A malformed item is logged and skipped; it never aborts
// the rest of the response.
package sources

import (
	"context"

	"github.com/helixir/scholarsearch/internal/domain"
)

// FetchParams defines the parameters for one provider fetch. The per-provider
// limit is determined by the aggregator's tier allocation, never hardcoded in
// an adapter.
type FetchParams struct {
	// Query is the free-text search string.
	Query string

	// Limit is the maximum number of records to request from the provider.
	Limit int

	// Offset is the starting position for providers that paginate.
	Offset int

	// YearFrom/YearTo bound the publication year range. Nil means unbounded.
	YearFrom *int
	YearTo   *int

	// MinCitations excludes records below this citation count where the
	// provider supports it; otherwise it is applied downstream.
	MinCitations int
}

// FetchResult contains the outcome of one provider fetch.
type FetchResult struct {
	// Records holds the parsed records; malformed items are already skipped.
	Records []domain.Record

	// Total is the provider-reported total match count, which may be an
	// estimate. Zero when the provider does not report it.
	Total int

	// Skipped counts malformed items dropped during parsing.
	Skipped int
}

// Source is the adapter contract implemented once per external provider.
type Source interface {
	// Fetch queries the provider for records matching the given parameters.
	// Implementations must respect context cancellation, go through the
	// resilience layer for all I/O, and skip (not fail on) malformed items.
	Fetch(ctx context.Context, params FetchParams) (*FetchResult, error)

	// SourceType returns the provider identifier used for attribution,
	// configuration and tier mapping.
	SourceType() domain.SourceType

	// Name returns a human-readable provider name for logs and metadata.
	Name() string

	// Enabled reports whether this source may be used for searches. A source
	// may be disabled by configuration or a missing API key.
	Enabled() bool
}
