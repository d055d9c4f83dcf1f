package domain

import (
	"strings"
)

// Record represents a single scholarly item collected from an external
// provider. A Record is created by a source adapter and enriched (scores
// added) by later pipeline stages. Records stored in the result cache are
// never mutated; enrichment produces a new value that replaces the prior
// one in the working set.
type Record struct {
	// ID is a stable derived identifier (doi: / arxiv: / provider-native
	// prefix chain). It is not authoritative across runs.
	ID string `json:"id"`

	Title    string   `json:"title"`
	Authors  []string `json:"authors,omitempty"`
	Year     *int     `json:"year,omitempty"`
	Abstract string   `json:"abstract,omitempty"`

	// DOI is normalized (lowercase, no URL prefix) before any comparison.
	DOI string `json:"doi,omitempty"`

	URL   string `json:"url,omitempty"`
	Venue string `json:"venue,omitempty"`

	// Source identifies the adapter that produced this record.
	Source SourceType `json:"source"`

	// DocumentTypes holds provider-reported type tags (journal-article,
	// book-chapter, dataset, ...). Used by the domain filter.
	DocumentTypes []string `json:"documentTypes,omitempty"`

	CitationCount int `json:"citationCount"`

	// LexicalScore is set by the lexical recall stage.
	LexicalScore float64 `json:"lexicalScore,omitempty"`

	// NeuralScore is set by the neural reranking stage; nil when the
	// lexical-only fallback tier was used.
	NeuralScore *float64 `json:"neuralScore,omitempty"`

	// QualityScore is set by the quality shaper.
	QualityScore *float64 `json:"qualityScore,omitempty"`
}

// RecordIdentifiers holds the raw identifiers a provider reported for a record.
type RecordIdentifiers struct {
	DOI      string
	ArXivID  string
	PubMedID string
	// NativeID is the provider's own identifier, used when no shared
	// identifier is available.
	NativeID string
	// Source qualifies NativeID so identifiers from different providers
	// never collide.
	Source SourceType
}

// NormalizeDOI lowercases a DOI and strips any resolver URL prefix.
// Returns the empty string for blank input.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(strings.ToLower(doi))
	for _, prefix := range []string{
		"https://doi.org/",
		"http://doi.org/",
		"https://dx.doi.org/",
		"http://dx.doi.org/",
		"doi:",
	} {
		if strings.HasPrefix(doi, prefix) {
			doi = doi[len(prefix):]
			break
		}
	}
	return strings.TrimSpace(doi)
}

// DeriveRecordID generates a stable derived identifier from record identifiers.
// Priority order: DOI > arXiv > PubMed > provider-native ID.
// Returns the empty string if no identifier is available.
func DeriveRecordID(ids RecordIdentifiers) string {
	if doi := NormalizeDOI(ids.DOI); doi != "" {
		return "doi:" + doi
	}
	if arxiv := strings.TrimSpace(ids.ArXivID); arxiv != "" {
		return "arxiv:" + arxiv
	}
	if pubmed := strings.TrimSpace(ids.PubMedID); pubmed != "" {
		return "pubmed:" + pubmed
	}
	if native := strings.TrimSpace(ids.NativeID); native != "" {
		return string(ids.Source) + ":" + native
	}
	return ""
}

// NormalizeTitle lowercases a title and collapses runs of non-alphanumeric
// characters into single spaces, for exact-title duplicate matching.
func NormalizeTitle(title string) string {
	var sb strings.Builder
	sb.Grow(len(title))
	prevSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			sb.WriteRune(r)
			prevSpace = false
		default:
			if !prevSpace {
				sb.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// HasIdentifier returns true if the record has a derived identifier.
func (r *Record) HasIdentifier() bool {
	return r.ID != ""
}

// WithLexicalScore returns a copy of the record with the lexical score set.
func (r Record) WithLexicalScore(score float64) Record {
	r.LexicalScore = score
	return r
}

// WithNeuralScore returns a copy of the record with the neural score set.
func (r Record) WithNeuralScore(score float64) Record {
	r.NeuralScore = &score
	return r
}

// WithQualityScore returns a copy of the record with the quality score set.
func (r Record) WithQualityScore(score float64) Record {
	r.QualityScore = &score
	return r
}
