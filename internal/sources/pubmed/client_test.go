package pubmed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/resilience"
	"github.com/helixir/scholarsearch/internal/sources"
)

const esearchResponseJSON = `{
	"header": {"type": "esearch", "version": "0.3"},
	"esearchresult": {
		"count": "2",
		"retmax": "2",
		"retstart": "0",
		"idlist": ["12345678", "87654321"]
	}
}`

const esearchEmptyResponseJSON = `{
	"header": {"type": "esearch", "version": "0.3"},
	"esearchresult": {
		"count": "0",
		"retmax": "0",
		"retstart": "0",
		"idlist": []
	}
}`

const esummaryResponseJSON = `{
	"header": {"type": "esummary", "version": "0.3"},
	"result": {
		"uids": ["12345678", "87654321"],
		"12345678": {
			"uid": "12345678",
			"pubdate": "2023 Mar 15",
			"title": "CRISPR-Cas9 Gene Editing in Biomedical Research.",
			"authors": [
				{"name": "Smith JA", "authtype": "Author"},
				{"name": "Johnson E", "authtype": "Author"}
			],
			"fulljournalname": "Journal of Testing",
			"source": "J Test",
			"pubtype": ["Journal Article", "Review"],
			"articleids": [
				{"idtype": "pubmed", "value": "12345678"},
				{"idtype": "doi", "value": "10.1234/test.2023.001"},
				{"idtype": "pmc", "value": "PMC9876543"}
			]
		},
		"87654321": {
			"uid": "87654321",
			"pubdate": "2022 Jan-Feb",
			"title": "Advances in Gene Therapy Delivery Systems",
			"authors": [
				{"name": "Brown M", "authtype": "Author"}
			],
			"fulljournalname": "Molecular Therapy Methods",
			"source": "Mol Ther Methods",
			"pubtype": ["Journal Article"],
			"articleids": [
				{"idtype": "pubmed", "value": "87654321"}
			]
		}
	}
}`

const esummaryMalformedEntryJSON = `{
	"header": {"type": "esummary", "version": "0.3"},
	"result": {
		"uids": ["12345678", "87654321"],
		"12345678": {
			"uid": "12345678",
			"pubdate": "2023 Mar 15",
			"title": "Valid Article",
			"articleids": [{"idtype": "pubmed", "value": "12345678"}]
		},
		"87654321": {
			"uid": "87654321",
			"pubdate": "2022",
			"title": "   ",
			"articleids": [{"idtype": "pubmed", "value": "87654321"}]
		}
	}
}`

func TestClient_Fetch(t *testing.T) {
	t.Run("successful fetch with results", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch {
			case strings.Contains(r.URL.Path, "esearch.fcgi"):
				w.Write([]byte(esearchResponseJSON))
			case strings.Contains(r.URL.Path, "esummary.fcgi"):
				assert.Equal(t, "12345678,87654321", r.URL.Query().Get("id"))
				w.Write([]byte(esummaryResponseJSON))
			}
		}))
		defer server.Close()

		client := createTestClient(t, server.URL)

		result, err := client.Fetch(context.Background(), sources.FetchParams{
			Query: "CRISPR gene editing",
			Limit: 10,
		})
		require.NoError(t, err)
		require.NotNil(t, result)

		assert.Equal(t, 2, result.Total)
		assert.Zero(t, result.Skipped)
		require.Len(t, result.Records, 2)

		first := result.Records[0]
		assert.Equal(t, "doi:10.1234/test.2023.001", first.ID)
		assert.Equal(t, "CRISPR-Cas9 Gene Editing in Biomedical Research", first.Title)
		assert.Equal(t, []string{"Smith JA", "Johnson E"}, first.Authors)
		require.NotNil(t, first.Year)
		assert.Equal(t, 2023, *first.Year)
		assert.Equal(t, "10.1234/test.2023.001", first.DOI)
		assert.Equal(t, "Journal of Testing", first.Venue)
		assert.Equal(t, domain.SourceTypePubMed, first.Source)
		assert.Equal(t, []string{"journal article", "review"}, first.DocumentTypes)
		assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/12345678/", first.URL)

		second := result.Records[1]
		assert.Equal(t, "pubmed:87654321", second.ID)
		assert.Empty(t, second.DOI)
		require.NotNil(t, second.Year)
		assert.Equal(t, 2022, *second.Year)
	})

	t.Run("fetch with date filters", func(t *testing.T) {
		var receivedQuery string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			receivedQuery = r.URL.RawQuery
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(esearchEmptyResponseJSON))
		}))
		defer server.Close()

		client := createTestClient(t, server.URL)

		yearFrom, yearTo := 2020, 2023
		_, err := client.Fetch(context.Background(), sources.FetchParams{
			Query:    "test",
			Limit:    10,
			YearFrom: &yearFrom,
			YearTo:   &yearTo,
		})
		require.NoError(t, err)

		assert.Contains(t, receivedQuery, "datetype=pdat")
		assert.Contains(t, receivedQuery, "mindate=2020")
		assert.Contains(t, receivedQuery, "maxdate=2023")
	})

	t.Run("fetch with pagination", func(t *testing.T) {
		var receivedStart string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			receivedStart = r.URL.Query().Get("retstart")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(esearchEmptyResponseJSON))
		}))
		defer server.Close()

		client := createTestClient(t, server.URL)

		_, err := client.Fetch(context.Background(), sources.FetchParams{
			Query:  "test",
			Limit:  10,
			Offset: 50,
		})
		require.NoError(t, err)
		assert.Equal(t, "50", receivedStart)
	})

	t.Run("api key sent as query parameter", func(t *testing.T) {
		var receivedKey string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			receivedKey = r.URL.Query().Get("api_key")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(esearchEmptyResponseJSON))
		}))
		defer server.Close()

		res := resilience.NewRegistry(testProviderConfigs(), nil, zerolog.Nop())
		httpClient := sources.NewHTTPClient(domain.SourceTypePubMed, res, sources.HTTPClientConfig{})
		client := New(Config{
			BaseURL: server.URL,
			APIKey:  "test-api-key-123",
			Enabled: true,
		}, httpClient, zerolog.Nop())

		_, err := client.Fetch(context.Background(), sources.FetchParams{Query: "test", Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, "test-api-key-123", receivedKey)
	})

	t.Run("empty result skips esummary call", func(t *testing.T) {
		summaryCalled := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "esummary.fcgi") {
				summaryCalled = true
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(esearchEmptyResponseJSON))
		}))
		defer server.Close()

		client := createTestClient(t, server.URL)

		result, err := client.Fetch(context.Background(), sources.FetchParams{Query: "nonexistent", Limit: 5})
		require.NoError(t, err)
		assert.Empty(t, result.Records)
		assert.Zero(t, result.Total)
		assert.False(t, summaryCalled)
	})

	t.Run("skips summaries without a title", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if strings.Contains(r.URL.Path, "esearch.fcgi") {
				w.Write([]byte(esearchResponseJSON))
				return
			}
			w.Write([]byte(esummaryMalformedEntryJSON))
		}))
		defer server.Close()

		client := createTestClient(t, server.URL)

		result, err := client.Fetch(context.Background(), sources.FetchParams{Query: "test", Limit: 10})
		require.NoError(t, err)
		require.Len(t, result.Records, 1)
		assert.Equal(t, "Valid Article", result.Records[0].Title)
		assert.Equal(t, 1, result.Skipped)
	})

	t.Run("server error surfaces as provider failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := createTestClient(t, server.URL)

		_, err := client.Fetch(context.Background(), sources.FetchParams{Query: "test", Limit: 5})
		require.Error(t, err)

		var provErr *domain.ProviderError
		assert.True(t, errors.As(err, &provErr) || errors.Is(err, domain.ErrProviderTransient))
	})

	t.Run("malformed JSON is not retried", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"esearchresult": [`))
		}))
		defer server.Close()

		client := createTestClient(t, server.URL)

		_, err := client.Fetch(context.Background(), sources.FetchParams{Query: "test", Limit: 5})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrMalformedResponse)
		assert.Equal(t, 1, calls)
	})
}

func TestClient_SourceType(t *testing.T) {
	client := New(Config{Enabled: true}, nil, zerolog.Nop())
	assert.Equal(t, domain.SourceTypePubMed, client.SourceType())
	assert.Equal(t, "PubMed", client.Name())
	assert.True(t, client.Enabled())
}

func TestYearFromPubDate(t *testing.T) {
	tests := []struct {
		input    string
		expected *int
	}{
		{"2023 Mar 15", intPtr(2023)},
		{"2022 Jan-Feb", intPtr(2022)},
		{"2021", intPtr(2021)},
		{"", nil},
		{"Spring 2020", nil},
		{"999", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := yearFromPubDate(tt.input)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.expected, *got)
		})
	}
}

func testProviderConfigs() map[domain.SourceType]resilience.ProviderConfig {
	return map[domain.SourceType]resilience.ProviderConfig{
		domain.SourceTypePubMed: {
			RateLimit:   1000,
			Burst:       100,
			MaxAttempts: 1,
		},
	}
}

func createTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	res := resilience.NewRegistry(testProviderConfigs(), nil, zerolog.Nop())
	httpClient := sources.NewHTTPClient(domain.SourceTypePubMed, res, sources.HTTPClientConfig{})
	return New(Config{BaseURL: baseURL, Enabled: true}, httpClient, zerolog.Nop())
}

func intPtr(v int) *int { return &v }
