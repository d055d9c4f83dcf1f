package semanticscholar

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/sources"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// APIKeyHeader is the header name for the Semantic Scholar API key.
	APIKeyHeader = "x-api-key"

	// paperFields is the field list requested from the API.
	paperFields = "paperId,externalIds,title,abstract,year,venue,publicationTypes,citationCount,isOpenAccess,url,authors"

	sourceName = "Semantic Scholar"
)

// Config contains configuration options for the Semantic Scholar adapter.
type Config struct {
	// BaseURL is the API base URL. Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client implements the sources.Source interface for Semantic Scholar.
type Client struct {
	httpClient *sources.HTTPClient
	cfg        Config
	logger     zerolog.Logger
}

// Compile-time check that Client implements sources.Source.
var _ sources.Source = (*Client)(nil)

// New creates a Semantic Scholar adapter. The httpClient already carries the
// provider's resilience policy and API key header.
func New(cfg Config, httpClient *sources.HTTPClient, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger.With().Str("source", string(domain.SourceTypeSemanticScholar)).Logger(),
	}
}

// Fetch queries Semantic Scholar for records matching the given parameters.
func (c *Client) Fetch(ctx context.Context, params sources.FetchParams) (*sources.FetchResult, error) {
	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	var resp SearchResponse
	if err := c.httpClient.GetJSON(ctx, searchURL, &resp); err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(resp.Data))
	skipped := 0
	for i, item := range resp.Data {
		record, ok := c.convert(item)
		if !ok {
			skipped++
			c.logger.Warn().
				Err(&domain.MalformedItemError{Provider: domain.SourceTypeSemanticScholar, Index: i, Reason: "empty title"}).
				Msg("skipping malformed search result item")
			continue
		}
		records = append(records, record)
	}

	return &sources.FetchResult{
		Records: records,
		Total:   resp.Total,
		Skipped: skipped,
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeSemanticScholar
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// Enabled returns whether this source is currently enabled.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled
}

// buildSearchURL constructs the search API URL with query parameters.
func (c *Client) buildSearchURL(params sources.FetchParams) (string, error) {
	baseURL, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	searchURL := baseURL.JoinPath("paper", "search")
	q := searchURL.Query()
	q.Set("query", params.Query)
	q.Set("fields", paperFields)
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	// Semantic Scholar filters by year range in "from-to" form.
	if params.YearFrom != nil || params.YearTo != nil {
		var year strings.Builder
		if params.YearFrom != nil {
			fmt.Fprintf(&year, "%d", *params.YearFrom)
		}
		year.WriteByte('-')
		if params.YearTo != nil {
			fmt.Fprintf(&year, "%d", *params.YearTo)
		}
		q.Set("year", year.String())
	}

	if params.MinCitations > 0 {
		q.Set("minCitationCount", strconv.Itoa(params.MinCitations))
	}

	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// convert maps one API item to a domain record. Returns false for items too
// malformed to keep; the rest of the response is unaffected.
func (c *Client) convert(item PaperResult) (domain.Record, bool) {
	if strings.TrimSpace(item.Title) == "" {
		return domain.Record{}, false
	}

	ids := domain.RecordIdentifiers{
		NativeID: item.PaperID,
		Source:   domain.SourceTypeSemanticScholar,
	}
	if item.ExternalIDs != nil {
		ids.DOI = item.ExternalIDs.DOI
		ids.ArXivID = item.ExternalIDs.ArXiv
		ids.PubMedID = item.ExternalIDs.PubMed
	}

	id := domain.DeriveRecordID(ids)
	if id == "" {
		return domain.Record{}, false
	}

	authors := make([]string, 0, len(item.Authors))
	for _, a := range item.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	docTypes := make([]string, 0, len(item.PublicationTypes))
	for _, t := range item.PublicationTypes {
		docTypes = append(docTypes, strings.ToLower(t))
	}

	return domain.Record{
		ID:            id,
		Title:         item.Title,
		Authors:       authors,
		Year:          item.Year,
		Abstract:      item.Abstract,
		DOI:           domain.NormalizeDOI(ids.DOI),
		URL:           item.URL,
		Venue:         item.Venue,
		Source:        domain.SourceTypeSemanticScholar,
		DocumentTypes: docTypes,
		CitationCount: item.CitationCount,
	}, true
}
