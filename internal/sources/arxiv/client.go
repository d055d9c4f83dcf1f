package arxiv

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/sources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	sourceName = "arXiv"
)

// arxivIDRegex extracts the arXiv ID from the abstract URL, dropping any
// version suffix. Matches "arxiv.org/abs/2301.12345v1" and the legacy
// "arxiv.org/abs/hep-th/9901001v1" form.
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config contains configuration options for the arXiv adapter.
type Config struct {
	// BaseURL is the API base URL. Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client implements the sources.Source interface for arXiv.
type Client struct {
	httpClient *sources.HTTPClient
	cfg        Config
	logger     zerolog.Logger
}

var _ sources.Source = (*Client)(nil)

// New creates an arXiv adapter.
func New(cfg Config, httpClient *sources.HTTPClient, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger.With().Str("source", string(domain.SourceTypeArXiv)).Logger(),
	}
}

// Fetch queries arXiv for records matching the given parameters. Year bounds
// are applied client-side because the query API does not support them
// directly; arXiv reports no citation counts, so the citation floor is left
// to the pipeline.
func (c *Client) Fetch(ctx context.Context, params sources.FetchParams) (*sources.FetchResult, error) {
	queryURL, err := c.buildQueryURL(params)
	if err != nil {
		return nil, fmt.Errorf("building query URL: %w", err)
	}

	var feed Feed
	if err := c.httpClient.GetXML(ctx, queryURL, &feed); err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(feed.Entries))
	skipped := 0
	for i, entry := range feed.Entries {
		record, ok := c.convert(entry)
		if !ok {
			skipped++
			c.logger.Warn().
				Err(&domain.MalformedItemError{Provider: domain.SourceTypeArXiv, Index: i, Reason: "empty title"}).
				Msg("skipping malformed feed entry")
			continue
		}
		if !yearInRange(record.Year, params.YearFrom, params.YearTo) {
			continue
		}
		records = append(records, record)
	}

	return &sources.FetchResult{
		Records: records,
		Total:   feed.TotalResults,
		Skipped: skipped,
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeArXiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// Enabled returns whether this source is currently enabled.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled
}

// buildQueryURL constructs the Atom query URL.
func (c *Client) buildQueryURL(params sources.FetchParams) (string, error) {
	baseURL, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	queryURL := baseURL.JoinPath("query")
	q := queryURL.Query()
	q.Set("search_query", "all:"+params.Query)
	q.Set("sortBy", "relevance")
	q.Set("sortOrder", "descending")
	if params.Limit > 0 {
		q.Set("max_results", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("start", strconv.Itoa(params.Offset))
	}

	queryURL.RawQuery = q.Encode()
	return queryURL.String(), nil
}

// convert maps one Atom entry to a domain record.
func (c *Client) convert(entry Entry) (domain.Record, bool) {
	title := collapseWhitespace(entry.Title)
	if title == "" {
		return domain.Record{}, false
	}

	arxivID := ""
	if m := arxivIDRegex.FindStringSubmatch(entry.ID); len(m) == 2 {
		arxivID = m[1]
	}

	id := domain.DeriveRecordID(domain.RecordIdentifiers{
		DOI:     entry.DOI,
		ArXivID: arxivID,
		Source:  domain.SourceTypeArXiv,
	})
	if id == "" {
		return domain.Record{}, false
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	var year *int
	if published, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		y := published.Year()
		year = &y
	}

	venue := entry.JournalRef
	if venue == "" {
		venue = "arXiv"
	}

	// Everything on arXiv is a preprint unless a journal reference says
	// otherwise.
	docTypes := []string{"preprint"}
	if entry.JournalRef != "" {
		docTypes = []string{"journal-article"}
	}

	return domain.Record{
		ID:            id,
		Title:         title,
		Authors:       authors,
		Year:          year,
		Abstract:      collapseWhitespace(entry.Summary),
		DOI:           domain.NormalizeDOI(entry.DOI),
		URL:           entry.ID,
		Venue:         venue,
		Source:        domain.SourceTypeArXiv,
		DocumentTypes: docTypes,
	}, true
}

// collapseWhitespace normalizes the newline-wrapped text arXiv returns in
// title and summary fields.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// yearInRange applies the year bounds client-side. Records without a year
// are included.
func yearInRange(year, from, to *int) bool {
	if year == nil {
		return true
	}
	if from != nil && *year < *from {
		return false
	}
	if to != nil && *year > *to {
		return false
	}
	return true
}
