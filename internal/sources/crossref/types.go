// Package crossref provides a source adapter for the Crossref works API.
//
// API Documentation: https://api.crossref.org/swagger-ui/index.html
package crossref

// SearchResponse represents the top-level response from the works endpoint.
type SearchResponse struct {
	Status  string  `json:"status"`
	Message Message `json:"message"`
}

// Message holds the result payload of a works query.
type Message struct {
	TotalResults int    `json:"total-results"`
	Items        []Work `json:"items"`
}

// Work represents a scholarly work in Crossref.
type Work struct {
	DOI    string   `json:"DOI"`
	Type   string   `json:"type"`
	Urls   string   `json:"URL"`
	Titles []string `json:"title"`

	// Abstract is JATS-flavored XML when present.
	Abstract string `json:"abstract"`

	Authors        []Author  `json:"author"`
	ContainerTitle []string  `json:"container-title"`
	Published      *DateInfo `json:"published"`
	IsReferencedBy int       `json:"is-referenced-by-count"`
}

// Author represents an author entry.
type Author struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"`
}

// DateInfo holds Crossref's date-parts representation.
type DateInfo struct {
	DateParts [][]int `json:"date-parts"`
}

// Year returns the year component, or zero when absent.
func (d *DateInfo) Year() int {
	if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return 0
	}
	return d.DateParts[0][0]
}
