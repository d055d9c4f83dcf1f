// Package openalex provides a source adapter for the OpenAlex works API.
//
// OpenAlex is a free, open catalog of scholarly works, authors and venues.
//
// API Documentation: https://docs.openalex.org/
package openalex

// SearchResponse represents the top-level response from the works endpoint.
type SearchResponse struct {
	Meta    Meta   `json:"meta"`
	Results []Work `json:"results"`
}

// Meta contains result metadata including pagination info.
type Meta struct {
	Count   int `json:"count"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Work represents a scholarly work in OpenAlex.
type Work struct {
	ID              string       `json:"id"`
	DOI             string       `json:"doi"`
	Title           string       `json:"title"`
	DisplayName     string       `json:"display_name"`
	PublicationYear int          `json:"publication_year"`
	Type            string       `json:"type"`
	CitedByCount    int          `json:"cited_by_count"`
	Authorships     []Authorship `json:"authorships"`
	PrimaryLocation *Location    `json:"primary_location"`
	IDs             IDs          `json:"ids"`

	// AbstractInvertedIndex stores the abstract as word -> positions; the
	// adapter reconstructs the plain text.
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

// Authorship represents an author's contribution to a work.
type Authorship struct {
	Author AuthorInfo `json:"author"`
}

// AuthorInfo contains basic author information.
type AuthorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Location represents where a work is available.
type Location struct {
	Source      *VenueSource `json:"source"`
	LandingPage string       `json:"landing_page_url"`
}

// VenueSource represents a publication venue (journal, repository, ...).
type VenueSource struct {
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

// IDs contains the identifiers OpenAlex reports for a work.
type IDs struct {
	OpenAlex string `json:"openalex"`
	DOI      string `json:"doi"`
	PMID     string `json:"pmid"`
}
