package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/sources"
)

const (
	// DefaultBaseURL is the default E-utilities base URL.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// APIKeyParam is the query parameter carrying the NCBI API key.
	APIKeyParam = "api_key"

	sourceName = "PubMed"
)

// Config contains configuration options for the PubMed adapter.
type Config struct {
	// BaseURL is the E-utilities base URL. Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey raises the NCBI rate limit when set. Sent as a query parameter,
	// not a header.
	APIKey string

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client implements the sources.Source interface for PubMed.
type Client struct {
	httpClient *sources.HTTPClient
	cfg        Config
	logger     zerolog.Logger
}

var _ sources.Source = (*Client)(nil)

// New creates a PubMed adapter.
func New(cfg Config, httpClient *sources.HTTPClient, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger.With().Str("source", string(domain.SourceTypePubMed)).Logger(),
	}
}

// Fetch queries PubMed for records matching the given parameters. The fetch
// performs two provider calls (esearch, then esummary), each going through
// the resilience layer independently.
func (c *Client) Fetch(ctx context.Context, params sources.FetchParams) (*sources.FetchResult, error) {
	searchURL, err := c.buildESearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building esearch URL: %w", err)
	}

	var searchResp ESearchResponse
	if err := c.httpClient.GetJSON(ctx, searchURL, &searchResp); err != nil {
		return nil, err
	}

	total, _ := strconv.Atoi(searchResp.Result.Count)
	if len(searchResp.Result.IDList) == 0 {
		return &sources.FetchResult{Total: total}, nil
	}

	summaryURL, err := c.buildESummaryURL(searchResp.Result.IDList)
	if err != nil {
		return nil, fmt.Errorf("building esummary URL: %w", err)
	}

	var summaryResp ESummaryResponse
	if err := c.httpClient.GetJSON(ctx, summaryURL, &summaryResp); err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(searchResp.Result.IDList))
	skipped := 0
	for i, pmid := range searchResp.Result.IDList {
		raw, ok := summaryResp.Result[pmid]
		if !ok {
			skipped++
			c.logger.Warn().Str("pmid", pmid).Msg("summary missing for PMID")
			continue
		}

		var summary DocSummary
		if err := json.Unmarshal(raw, &summary); err != nil {
			skipped++
			c.logger.Warn().
				Str("pmid", pmid).
				Err(&domain.MalformedItemError{Provider: domain.SourceTypePubMed, Index: i, Reason: err.Error()}).
				Msg("skipping malformed summary")
			continue
		}

		record, ok := c.convert(pmid, summary)
		if !ok {
			skipped++
			c.logger.Warn().
				Str("pmid", pmid).
				Err(&domain.MalformedItemError{Provider: domain.SourceTypePubMed, Index: i, Reason: "empty title"}).
				Msg("skipping summary without usable fields")
			continue
		}
		records = append(records, record)
	}

	return &sources.FetchResult{
		Records: records,
		Total:   total,
		Skipped: skipped,
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypePubMed
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// Enabled returns whether this source is currently enabled.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled
}

// buildESearchURL constructs the esearch URL with date bounds.
func (c *Client) buildESearchURL(params sources.FetchParams) (string, error) {
	baseURL, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	searchURL := baseURL.JoinPath("esearch.fcgi")
	q := searchURL.Query()
	q.Set("db", "pubmed")
	q.Set("term", params.Query)
	q.Set("retmode", "json")
	q.Set("sort", "relevance")
	if params.Limit > 0 {
		q.Set("retmax", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("retstart", strconv.Itoa(params.Offset))
	}
	if params.YearFrom != nil || params.YearTo != nil {
		q.Set("datetype", "pdat")
		if params.YearFrom != nil {
			q.Set("mindate", strconv.Itoa(*params.YearFrom))
		}
		if params.YearTo != nil {
			q.Set("maxdate", strconv.Itoa(*params.YearTo))
		}
	}
	if c.cfg.APIKey != "" {
		q.Set(APIKeyParam, c.cfg.APIKey)
	}

	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// buildESummaryURL constructs the esummary URL for a PMID list.
func (c *Client) buildESummaryURL(pmids []string) (string, error) {
	baseURL, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	summaryURL := baseURL.JoinPath("esummary.fcgi")
	q := summaryURL.Query()
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "json")
	if c.cfg.APIKey != "" {
		q.Set(APIKeyParam, c.cfg.APIKey)
	}

	summaryURL.RawQuery = q.Encode()
	return summaryURL.String(), nil
}

// convert maps one document summary to a domain record.
func (c *Client) convert(pmid string, summary DocSummary) (domain.Record, bool) {
	if strings.TrimSpace(summary.Title) == "" {
		return domain.Record{}, false
	}

	var doi string
	for _, id := range summary.ArticleIDs {
		if id.IDType == "doi" {
			doi = id.Value
			break
		}
	}

	id := domain.DeriveRecordID(domain.RecordIdentifiers{
		DOI:      doi,
		PubMedID: pmid,
		Source:   domain.SourceTypePubMed,
	})
	if id == "" {
		return domain.Record{}, false
	}

	authors := make([]string, 0, len(summary.Authors))
	for _, a := range summary.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	venue := summary.FullJournalName
	if venue == "" {
		venue = summary.Source
	}

	docTypes := make([]string, 0, len(summary.PubTypes))
	for _, t := range summary.PubTypes {
		docTypes = append(docTypes, strings.ToLower(t))
	}

	return domain.Record{
		ID:            id,
		Title:         strings.TrimSuffix(summary.Title, "."),
		Authors:       authors,
		Year:          yearFromPubDate(summary.PubDate),
		DOI:           domain.NormalizeDOI(doi),
		URL:           "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/",
		Venue:         venue,
		Source:        domain.SourceTypePubMed,
		DocumentTypes: docTypes,
	}, true
}

// yearFromPubDate extracts the leading year from a display date such as
// "2023 Jan 15". Returns nil when no year is present.
func yearFromPubDate(pubDate string) *int {
	fields := strings.Fields(pubDate)
	if len(fields) == 0 {
		return nil
	}
	year, err := strconv.Atoi(fields[0])
	if err != nil || year < 1000 {
		return nil
	}
	return &year
}
