package openalex

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
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	sourceName = "OpenAlex"
)

// Config contains configuration options for the OpenAlex adapter.
type Config struct {
	// BaseURL is the API base URL. Defaults to DefaultBaseURL if empty.
	BaseURL string

	// MailTo joins the OpenAlex polite pool when set.
	MailTo string

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client implements the sources.Source interface for OpenAlex.
type Client struct {
	httpClient *sources.HTTPClient
	cfg        Config
	logger     zerolog.Logger
}

var _ sources.Source = (*Client)(nil)

// New creates an OpenAlex adapter.
func New(cfg Config, httpClient *sources.HTTPClient, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger.With().Str("source", string(domain.SourceTypeOpenAlex)).Logger(),
	}
}

// Fetch queries OpenAlex for records matching the given parameters.
func (c *Client) Fetch(ctx context.Context, params sources.FetchParams) (*sources.FetchResult, error) {
	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	var resp SearchResponse
	if err := c.httpClient.GetJSON(ctx, searchURL, &resp); err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(resp.Results))
	skipped := 0
	for i, work := range resp.Results {
		record, ok := c.convert(work)
		if !ok {
			skipped++
			c.logger.Warn().
				Err(&domain.MalformedItemError{Provider: domain.SourceTypeOpenAlex, Index: i, Reason: "empty title"}).
				Msg("skipping malformed work")
			continue
		}
		records = append(records, record)
	}

	return &sources.FetchResult{
		Records: records,
		Total:   resp.Meta.Count,
		Skipped: skipped,
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeOpenAlex
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// Enabled returns whether this source is currently enabled.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled
}

// buildSearchURL constructs the works search URL. OpenAlex expresses year and
// citation bounds as filter expressions.
func (c *Client) buildSearchURL(params sources.FetchParams) (string, error) {
	baseURL, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	searchURL := baseURL.JoinPath("works")
	q := searchURL.Query()
	q.Set("search", params.Query)
	if params.Limit > 0 {
		q.Set("per-page", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 && params.Limit > 0 {
		q.Set("page", strconv.Itoa(params.Offset/params.Limit+1))
	}
	if c.cfg.MailTo != "" {
		q.Set("mailto", c.cfg.MailTo)
	}

	var filters []string
	if params.YearFrom != nil {
		filters = append(filters, fmt.Sprintf("from_publication_date:%d-01-01", *params.YearFrom))
	}
	if params.YearTo != nil {
		filters = append(filters, fmt.Sprintf("to_publication_date:%d-12-31", *params.YearTo))
	}
	if params.MinCitations > 0 {
		filters = append(filters, fmt.Sprintf("cited_by_count:>%d", params.MinCitations-1))
	}
	if len(filters) > 0 {
		q.Set("filter", strings.Join(filters, ","))
	}

	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// convert maps one work to a domain record.
func (c *Client) convert(work Work) (domain.Record, bool) {
	title := work.Title
	if title == "" {
		title = work.DisplayName
	}
	if strings.TrimSpace(title) == "" {
		return domain.Record{}, false
	}

	id := domain.DeriveRecordID(domain.RecordIdentifiers{
		DOI:      work.DOI,
		PubMedID: pmidFromURL(work.IDs.PMID),
		NativeID: shortOpenAlexID(work.ID),
		Source:   domain.SourceTypeOpenAlex,
	})
	if id == "" {
		return domain.Record{}, false
	}

	authors := make([]string, 0, len(work.Authorships))
	for _, a := range work.Authorships {
		if a.Author.DisplayName != "" {
			authors = append(authors, a.Author.DisplayName)
		}
	}

	var year *int
	if work.PublicationYear > 0 {
		y := work.PublicationYear
		year = &y
	}

	var venue, recordURL string
	if work.PrimaryLocation != nil {
		recordURL = work.PrimaryLocation.LandingPage
		if work.PrimaryLocation.Source != nil {
			venue = work.PrimaryLocation.Source.DisplayName
		}
	}
	if recordURL == "" {
		recordURL = work.ID
	}

	var docTypes []string
	if work.Type != "" {
		docTypes = []string{strings.ToLower(work.Type)}
	}

	return domain.Record{
		ID:            id,
		Title:         title,
		Authors:       authors,
		Year:          year,
		Abstract:      reconstructAbstract(work.AbstractInvertedIndex),
		DOI:           domain.NormalizeDOI(work.DOI),
		URL:           recordURL,
		Venue:         venue,
		Source:        domain.SourceTypeOpenAlex,
		DocumentTypes: docTypes,
		CitationCount: work.CitedByCount,
	}, true
}

// reconstructAbstract rebuilds the abstract text from OpenAlex's inverted
// index representation (word -> list of positions).
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}

	maxPos := -1
	for _, positions := range index {
		for _, p := range positions {
			if p > maxPos {
				maxPos = p
			}
		}
	}
	if maxPos < 0 {
		return ""
	}

	words := make([]string, maxPos+1)
	for word, positions := range index {
		for _, p := range positions {
			if p >= 0 && p <= maxPos {
				words[p] = word
			}
		}
	}

	// Drop unfilled gaps before joining.
	filled := words[:0]
	for _, w := range words {
		if w != "" {
			filled = append(filled, w)
		}
	}
	return strings.Join(filled, " ")
}

// shortOpenAlexID strips the URL prefix from an OpenAlex work ID
// ("https://openalex.org/W123" -> "W123").
func shortOpenAlexID(id string) string {
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// pmidFromURL extracts the numeric PubMed ID from an identifier URL.
func pmidFromURL(pmid string) string {
	if idx := strings.LastIndex(pmid, "/"); idx >= 0 {
		return pmid[idx+1:]
	}
	return pmid
}
