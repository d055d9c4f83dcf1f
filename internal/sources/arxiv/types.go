// Package arxiv provides a source adapter for the arXiv Atom API.
//
// API Documentation: https://info.arxiv.org/help/api/
package arxiv

import "encoding/xml"

// Feed represents the Atom XML response from the arXiv API.
type Feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	StartIndex   int      `xml:"startIndex"`
	Entries      []Entry  `xml:"entry"`
}

// Entry represents a single arXiv paper in the Atom feed.
type Entry struct {
	// ID is the abstract URL, e.g. "http://arxiv.org/abs/2301.12345v1".
	ID         string     `xml:"id"`
	Title      string     `xml:"title"`
	Summary    string     `xml:"summary"`
	Published  string     `xml:"published"`
	Authors    []Author   `xml:"author"`
	Categories []Category `xml:"category"`
	DOI        string     `xml:"doi"`
	JournalRef string     `xml:"journal_ref"`
}

// Author represents a paper author in the Atom feed.
type Author struct {
	Name string `xml:"name"`
}

// Category represents an arXiv subject category.
type Category struct {
	Term string `xml:"term,attr"`
}
