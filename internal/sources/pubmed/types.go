// Package pubmed provides a source adapter for the NCBI E-utilities PubMed API.
//
// Searching PubMed is a two-step protocol: esearch returns matching PMIDs,
// esummary returns document summaries for a PMID list.
//
// API Documentation: https://www.ncbi.nlm.nih.gov/books/NBK25501/
package pubmed

import "encoding/json"

// ESearchResponse represents the esearch.fcgi JSON response.
type ESearchResponse struct {
	Result ESearchResult `json:"esearchresult"`
}

// ESearchResult holds the PMID list for a search.
type ESearchResult struct {
	// Count is the total match count, reported as a decimal string.
	Count  string   `json:"count"`
	IDList []string `json:"idlist"`
}

// ESummaryResponse represents the esummary.fcgi JSON response. The "result"
// object maps each PMID to its summary alongside a "uids" ordering key, so
// summaries are kept raw until decoded per UID.
type ESummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

// DocSummary represents one PubMed document summary.
type DocSummary struct {
	UID   string `json:"uid"`
	Title string `json:"title"`
	// PubDate is a loose display date such as "2023 Jan 15" or "2023".
	PubDate         string      `json:"pubdate"`
	Authors         []Author    `json:"authors"`
	FullJournalName string      `json:"fulljournalname"`
	Source          string      `json:"source"`
	PubTypes        []string    `json:"pubtype"`
	ArticleIDs      []ArticleID `json:"articleids"`
}

// Author represents an author entry in a document summary.
type Author struct {
	Name string `json:"name"`
}

// ArticleID represents one identifier attached to a summary.
type ArticleID struct {
	IDType string `json:"idtype"`
	Value  string `json:"value"`
}
