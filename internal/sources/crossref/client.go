package crossref

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/sources"
)

const (
	// DefaultBaseURL is the default Crossref API base URL.
	DefaultBaseURL = "https://api.crossref.org"

	sourceName = "Crossref"
)

// jatsTagRegex strips JATS markup from Crossref abstracts.
var jatsTagRegex = regexp.MustCompile(`</?[^>]+>`)

// Config contains configuration options for the Crossref adapter.
type Config struct {
	// BaseURL is the API base URL. Defaults to DefaultBaseURL if empty.
	BaseURL string

	// MailTo joins the Crossref polite pool when set.
	MailTo string

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client implements the sources.Source interface for Crossref.
type Client struct {
	httpClient *sources.HTTPClient
	cfg        Config
	logger     zerolog.Logger
}

var _ sources.Source = (*Client)(nil)

// New creates a Crossref adapter.
func New(cfg Config, httpClient *sources.HTTPClient, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger.With().Str("source", string(domain.SourceTypeCrossref)).Logger(),
	}
}

// Fetch queries Crossref for records matching the given parameters.
// MinCitations is applied client-side; Crossref cannot filter on it.
func (c *Client) Fetch(ctx context.Context, params sources.FetchParams) (*sources.FetchResult, error) {
	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	var resp SearchResponse
	if err := c.httpClient.GetJSON(ctx, searchURL, &resp); err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(resp.Message.Items))
	skipped := 0
	for i, work := range resp.Message.Items {
		record, ok := c.convert(work)
		if !ok {
			skipped++
			c.logger.Warn().
				Err(&domain.MalformedItemError{Provider: domain.SourceTypeCrossref, Index: i, Reason: "missing title or DOI"}).
				Msg("skipping malformed work")
			continue
		}
		if params.MinCitations > 0 && record.CitationCount < params.MinCitations {
			continue
		}
		records = append(records, record)
	}

	return &sources.FetchResult{
		Records: records,
		Total:   resp.Message.TotalResults,
		Skipped: skipped,
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeCrossref
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// Enabled returns whether this source is currently enabled.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled
}

// buildSearchURL constructs the works query URL.
func (c *Client) buildSearchURL(params sources.FetchParams) (string, error) {
	baseURL, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	searchURL := baseURL.JoinPath("works")
	q := searchURL.Query()
	q.Set("query", params.Query)
	if params.Limit > 0 {
		q.Set("rows", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}
	if c.cfg.MailTo != "" {
		q.Set("mailto", c.cfg.MailTo)
	}

	var filters []string
	if params.YearFrom != nil {
		filters = append(filters, fmt.Sprintf("from-pub-date:%d-01-01", *params.YearFrom))
	}
	if params.YearTo != nil {
		filters = append(filters, fmt.Sprintf("until-pub-date:%d-12-31", *params.YearTo))
	}
	if len(filters) > 0 {
		q.Set("filter", strings.Join(filters, ","))
	}

	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// convert maps one work to a domain record.
func (c *Client) convert(work Work) (domain.Record, bool) {
	if len(work.Titles) == 0 || strings.TrimSpace(work.Titles[0]) == "" {
		return domain.Record{}, false
	}

	id := domain.DeriveRecordID(domain.RecordIdentifiers{
		DOI:    work.DOI,
		Source: domain.SourceTypeCrossref,
	})
	if id == "" {
		// Crossref items are DOI-keyed; one without a DOI is malformed.
		return domain.Record{}, false
	}

	authors := make([]string, 0, len(work.Authors))
	for _, a := range work.Authors {
		name := a.Name
		if name == "" {
			name = strings.TrimSpace(a.Given + " " + a.Family)
		}
		if name != "" {
			authors = append(authors, name)
		}
	}

	var year *int
	if y := work.Published.Year(); y > 0 {
		year = &y
	}

	var venue string
	if len(work.ContainerTitle) > 0 {
		venue = work.ContainerTitle[0]
	}

	var docTypes []string
	if work.Type != "" {
		docTypes = []string{strings.ToLower(work.Type)}
	}

	return domain.Record{
		ID:            id,
		Title:         work.Titles[0],
		Authors:       authors,
		Year:          year,
		Abstract:      stripJATS(work.Abstract),
		DOI:           domain.NormalizeDOI(work.DOI),
		URL:           work.Urls,
		Venue:         venue,
		Source:        domain.SourceTypeCrossref,
		DocumentTypes: docTypes,
		CitationCount: work.IsReferencedBy,
	}, true
}

// stripJATS removes JATS XML markup from a Crossref abstract.
func stripJATS(abstract string) string {
	if abstract == "" {
		return ""
	}
	plain := jatsTagRegex.ReplaceAllString(abstract, " ")
	return strings.Join(strings.Fields(plain), " ")
}
