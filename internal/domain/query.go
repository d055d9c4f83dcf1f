package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Query is a normalized search request. Two queries are cache-equivalent if
// all fields except pagination are equal; the source set is compared as a
// set, not a sequence.
type Query struct {
	// Text is the free-text search string.
	Text string

	// Sources is the requested provider set. Empty means all enabled sources.
	Sources []SourceType

	// YearFrom/YearTo bound the publication year range. Nil means unbounded.
	YearFrom *int
	YearTo   *int

	// MinCitations excludes records below this citation count. Zero applies
	// no filter.
	MinCitations int

	// Page and PageSize control the slice of the cached result set returned
	// to the caller. They do not participate in the cache key.
	Page     int
	PageSize int
}

// Normalize trims the query text and sorts the source set so that queries
// differing only in source ordering or surrounding whitespace are equal.
func (q Query) Normalize() Query {
	q.Text = strings.Join(strings.Fields(q.Text), " ")
	if len(q.Sources) > 0 {
		sources := make([]SourceType, len(q.Sources))
		copy(sources, q.Sources)
		sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
		// Drop adjacent duplicates after the sort.
		deduped := sources[:1]
		for _, s := range sources[1:] {
			if s != deduped[len(deduped)-1] {
				deduped = append(deduped, s)
			}
		}
		q.Sources = deduped
	}
	return q
}

// CacheKey returns a stable hash of the cache-equivalent query: every field
// except pagination. Callers must Normalize first if source ordering or
// whitespace may vary.
func (q Query) CacheKey() string {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(q.Text))
	sb.WriteByte('\n')
	for _, s := range q.Sources {
		sb.WriteString(string(s))
		sb.WriteByte(',')
	}
	sb.WriteByte('\n')
	if q.YearFrom != nil {
		fmt.Fprintf(&sb, "from=%d", *q.YearFrom)
	}
	sb.WriteByte('\n')
	if q.YearTo != nil {
		fmt.Fprintf(&sb, "to=%d", *q.YearTo)
	}
	sb.WriteByte('\n')
	fmt.Fprintf(&sb, "mincite=%d", q.MinCitations)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Tokens splits the query text into lowercase terms for complexity
// classification and lexical scoring.
func (q Query) Tokens() []string {
	return strings.Fields(strings.ToLower(q.Text))
}

// Validate checks that the query is well-formed before any provider call.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return NewValidationError("query", "must not be empty")
	}
	if q.Page < 1 {
		return NewValidationError("page", "must be >= 1")
	}
	if q.PageSize < 1 || q.PageSize > 200 {
		return NewValidationError("pageSize", "must be between 1 and 200")
	}
	if q.YearFrom != nil && q.YearTo != nil && *q.YearFrom > *q.YearTo {
		return NewValidationError("yearFrom", "must not exceed yearTo")
	}
	if q.MinCitations < 0 {
		return NewValidationError("minCitations", "must not be negative")
	}
	known := make(map[SourceType]bool, len(AllSourceTypes()))
	for _, s := range AllSourceTypes() {
		known[s] = true
	}
	for _, s := range q.Sources {
		if !known[s] {
			return NewValidationError("sources", fmt.Sprintf("unknown source %q", s))
		}
	}
	return nil
}
