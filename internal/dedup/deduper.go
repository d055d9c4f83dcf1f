package dedup

import (
	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"

	"github.com/helixir/scholarsearch/internal/domain"
)

// Config holds the matching thresholds for the deduper.
type Config struct {
	// AuthorOverlapThreshold is the minimum author overlap score for two
	// records with identical normalized titles to be considered duplicates.
	AuthorOverlapThreshold float64

	// FuzzyTitleThreshold is the minimum normalized title similarity
	// (1 - editDistance/maxLen) for the fuzzy title rule. Kept high because
	// the rule only additionally requires a matching publication year.
	FuzzyTitleThreshold float64

	// TitlePrefixLength is the number of leading characters of the
	// normalized title used as the candidate index key.
	TitlePrefixLength int
}

// DefaultConfig returns the thresholds used when a field is zero.
func DefaultConfig() Config {
	return Config{
		AuthorOverlapThreshold: 0.5,
		FuzzyTitleThreshold:    0.90,
		TitlePrefixLength:      24,
	}
}

// Deduper folds record sequences into duplicate-free sequences. The zero
// value is not usable; construct with New. Safe for concurrent use since
// all state lives in the per-call fold.
type Deduper struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates a Deduper. Zero config fields fall back to defaults.
func New(cfg Config, logger zerolog.Logger) *Deduper {
	def := DefaultConfig()
	if cfg.AuthorOverlapThreshold <= 0 {
		cfg.AuthorOverlapThreshold = def.AuthorOverlapThreshold
	}
	if cfg.FuzzyTitleThreshold <= 0 {
		cfg.FuzzyTitleThreshold = def.FuzzyTitleThreshold
	}
	if cfg.TitlePrefixLength <= 0 {
		cfg.TitlePrefixLength = def.TitlePrefixLength
	}
	return &Deduper{
		cfg:    cfg,
		logger: logger.With().Str("component", "dedup").Logger(),
	}
}

// index carries the lookup structures for one fold. DOI matches resolve in
// one map lookup; title rules only compare against records sharing a
// normalized-title prefix, keeping the fold near linear.
type index struct {
	byDOI    map[string]int
	byPrefix map[string][]int
	titles   []string
}

// Dedup folds records into a duplicate-free sequence, preserving first-seen
// order. When a later record duplicates a kept one, richer fields are merged
// into the kept record and the later one is dropped.
//
// Matching precedence per record: exact normalized DOI, then exact normalized
// title with sufficient author overlap, then fuzzy title similarity combined
// with an identical publication year.
//
// The fold is idempotent: Dedup(Dedup(x)) yields the same sequence as Dedup(x).
func (d *Deduper) Dedup(records []domain.Record) []domain.Record {
	kept := make([]domain.Record, 0, len(records))
	idx := index{
		byDOI:    make(map[string]int),
		byPrefix: make(map[string][]int),
	}

	for _, rec := range records {
		doi := domain.NormalizeDOI(rec.DOI)
		title := domain.NormalizeTitle(rec.Title)

		if at, ok := d.match(idx, kept, doi, title, rec); ok {
			merged := mergeRecords(kept[at], rec)
			// A merge can surface a DOI the kept record lacked.
			if mergedDOI := domain.NormalizeDOI(merged.DOI); mergedDOI != "" {
				if _, exists := idx.byDOI[mergedDOI]; !exists {
					idx.byDOI[mergedDOI] = at
				}
			}
			kept[at] = merged
			d.logger.Debug().
				Str("dropped_id", rec.ID).
				Str("kept_id", merged.ID).
				Msg("merged duplicate record")
			continue
		}

		at := len(kept)
		kept = append(kept, rec)
		idx.titles = append(idx.titles, title)
		if doi != "" {
			idx.byDOI[doi] = at
		}
		if title != "" {
			prefix := d.titlePrefix(title)
			idx.byPrefix[prefix] = append(idx.byPrefix[prefix], at)
		}
	}

	return kept
}

// match finds the kept record the incoming one duplicates, if any.
func (d *Deduper) match(idx index, kept []domain.Record, doi, title string, rec domain.Record) (int, bool) {
	if doi != "" {
		if at, ok := idx.byDOI[doi]; ok {
			return at, true
		}
	}

	// Untitled records never match by title.
	if title == "" {
		return 0, false
	}

	for _, at := range idx.byPrefix[d.titlePrefix(title)] {
		candidate := idx.titles[at]

		if candidate == title {
			if AuthorOverlap(rec.Authors, kept[at].Authors) >= d.cfg.AuthorOverlapThreshold {
				return at, true
			}
			continue
		}

		if rec.Year == nil || kept[at].Year == nil || *rec.Year != *kept[at].Year {
			continue
		}
		if titleSimilarity(title, candidate) >= d.cfg.FuzzyTitleThreshold {
			return at, true
		}
	}

	return 0, false
}

func (d *Deduper) titlePrefix(title string) string {
	if len(title) <= d.cfg.TitlePrefixLength {
		return title
	}
	return title[:d.cfg.TitlePrefixLength]
}

// titleSimilarity converts edit distance into a similarity in [0, 1].
func titleSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// mergeRecords fills gaps in the kept record from a duplicate. The kept
// record's identity (ID, Source, position) is preserved; only richer payload
// fields move over.
func mergeRecords(kept, dup domain.Record) domain.Record {
	if len(dup.Abstract) > len(kept.Abstract) {
		kept.Abstract = dup.Abstract
	}
	if kept.DOI == "" {
		kept.DOI = dup.DOI
	}
	if kept.URL == "" {
		kept.URL = dup.URL
	}
	if kept.Venue == "" {
		kept.Venue = dup.Venue
	}
	if kept.Year == nil {
		kept.Year = dup.Year
	}
	if len(dup.Authors) > len(kept.Authors) {
		kept.Authors = dup.Authors
	}
	if len(kept.DocumentTypes) == 0 {
		kept.DocumentTypes = dup.DocumentTypes
	}
	if dup.CitationCount > kept.CitationCount {
		kept.CitationCount = dup.CitationCount
	}
	return kept
}
