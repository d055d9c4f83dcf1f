// Package domainfilter removes records that are not scholarly articles, such
// as books, chapters and datasets, using document-type tags plus URL and
// venue heuristics. Records with missing metadata are always kept.
package domainfilter

import (
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/observability"
)

// DefaultExcludedTypes is the document-type exclusion set used when none is
// configured. Matching is case-insensitive on the normalized tag.
var DefaultExcludedTypes = []string{
	"book",
	"book-chapter",
	"book-section",
	"book-part",
	"monograph",
	"reference-entry",
	"reference-book",
	"dataset",
	"standard",
	"paratext",
	"editorial",
	"erratum",
}

// urlPathSegments are path segments that indicate book or reference content.
var urlPathSegments = []string{
	"book",
	"books",
	"chapter",
	"chapters",
	"encyclopedia",
	"handbook",
	"referencework",
	"reference-work",
}

// venuePrefixes are venue-name openings that indicate reference works.
var venuePrefixes = []string{
	"handbook of",
	"encyclopedia of",
	"encyclopaedia of",
	"dictionary of",
}

// Config holds the filter settings.
type Config struct {
	// ExcludedTypes overrides DefaultExcludedTypes when non-empty.
	ExcludedTypes []string
}

// Filter excludes non-article records. A record flagged by any one of the
// three checks (type tag, URL path, venue name) is dropped.
type Filter struct {
	excluded map[string]bool
	logger   zerolog.Logger
}

// New creates a Filter.
func New(cfg Config, logger zerolog.Logger) *Filter {
	types := cfg.ExcludedTypes
	if len(types) == 0 {
		types = DefaultExcludedTypes
	}
	excluded := make(map[string]bool, len(types))
	for _, t := range types {
		excluded[normalizeType(t)] = true
	}
	return &Filter{
		excluded: excluded,
		logger:   logger.With().Str("component", "domainfilter").Logger(),
	}
}

// Apply returns the records that pass all checks, preserving order.
func (f *Filter) Apply(records []domain.Record) []domain.Record {
	kept := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		if reason := f.excludeReason(rec); reason != "" {
			recLogger := observability.WithRecordContext(f.logger, rec.ID, rec.DOI)
			recLogger.Debug().
				Str("reason", reason).
				Msg("record excluded")
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// excludeReason names the check that excluded the record, or "" to keep it.
// Missing type, URL and venue information defaults to inclusion.
func (f *Filter) excludeReason(rec domain.Record) string {
	for _, t := range rec.DocumentTypes {
		if f.excluded[normalizeType(t)] {
			return "document type " + t
		}
	}
	if seg := matchedURLSegment(rec.URL); seg != "" {
		return "url path segment " + seg
	}
	if prefix := matchedVenuePrefix(rec.Venue); prefix != "" {
		return "venue name " + prefix
	}
	return ""
}

// matchedURLSegment reports the first URL path segment in the exclusion
// list. Unparseable URLs are treated as missing data.
func matchedURLSegment(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		for _, candidate := range urlPathSegments {
			if seg == candidate {
				return seg
			}
		}
	}
	return ""
}

func matchedVenuePrefix(venue string) string {
	lower := strings.ToLower(strings.TrimSpace(venue))
	for _, prefix := range venuePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return prefix
		}
	}
	return ""
}

// normalizeType collapses separator differences: "Book Chapter",
// "book-chapter" and "book_chapter" all normalize to "book-chapter".
func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.ReplaceAll(t, "_", "-")
	return strings.ReplaceAll(t, " ", "-")
}
