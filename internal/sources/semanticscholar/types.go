// Package semanticscholar provides a source adapter for the Semantic Scholar
// Graph API.
//
// API Documentation: https://api.semanticscholar.org/api-docs/graph
package semanticscholar

// SearchResponse represents the top-level paper search response.
type SearchResponse struct {
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Next   int           `json:"next"`
	Data   []PaperResult `json:"data"`
}

// PaperResult represents one paper in a search response.
type PaperResult struct {
	PaperID          string       `json:"paperId"`
	ExternalIDs      *ExternalIDs `json:"externalIds"`
	Title            string       `json:"title"`
	Abstract         string       `json:"abstract"`
	Year             *int         `json:"year"`
	Venue            string       `json:"venue"`
	PublicationTypes []string     `json:"publicationTypes"`
	CitationCount    int          `json:"citationCount"`
	IsOpenAccess     bool         `json:"isOpenAccess"`
	URL              string       `json:"url"`
	Authors          []Author     `json:"authors"`
}

// ExternalIDs contains the shared identifiers Semantic Scholar reports.
type ExternalIDs struct {
	DOI    string `json:"DOI"`
	ArXiv  string `json:"ArXiv"`
	PubMed string `json:"PubMed"`
}

// Author represents an author entry.
type Author struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

// ErrorResponse represents an API error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
