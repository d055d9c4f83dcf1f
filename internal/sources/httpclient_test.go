package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/resilience"
)

func newTestHTTPClient(maxAttempts int) func(provider domain.SourceType) *HTTPClient {
	res := resilience.NewRegistry(map[domain.SourceType]resilience.ProviderConfig{
		domain.SourceTypeArXiv: {
			RateLimit:            1000,
			Burst:                1000,
			FailureThreshold:     100,
			MaxAttempts:          maxAttempts,
			RetryInitialInterval: time.Millisecond,
			CallTimeout:          5 * time.Second,
		},
	}, nil, zerolog.Nop())
	return func(provider domain.SourceType) *HTTPClient {
		return NewHTTPClient(provider, res, HTTPClientConfig{})
	}
}

func TestRetryAfterDelay(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   func(t *testing.T, d time.Duration)
	}{
		{"absent", "", func(t *testing.T, d time.Duration) { assert.Zero(t, d) }},
		{"seconds", "2", func(t *testing.T, d time.Duration) { assert.Equal(t, 2*time.Second, d) }},
		{"zero seconds", "0", func(t *testing.T, d time.Duration) { assert.Zero(t, d) }},
		{"negative seconds", "-1", func(t *testing.T, d time.Duration) { assert.Zero(t, d) }},
		{"garbage", "soon", func(t *testing.T, d time.Duration) { assert.Zero(t, d) }},
		{
			"http date in the future",
			time.Now().Add(3 * time.Second).UTC().Format(http.TimeFormat),
			func(t *testing.T, d time.Duration) {
				assert.Greater(t, d, time.Second)
				assert.LessOrEqual(t, d, 3*time.Second)
			},
		},
		{
			"http date in the past",
			time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat),
			func(t *testing.T, d time.Duration) { assert.Zero(t, d) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.header != "" {
				resp.Header.Set("Retry-After", tt.header)
			}
			tt.want(t, retryAfterDelay(resp))
		})
	}
}

func TestGetJSONHonorsRetryAfterHeader(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := newTestHTTPClient(3)(domain.SourceTypeArXiv)

	var out struct {
		OK bool `json:"ok"`
	}
	start := time.Now()
	err := client.GetJSON(context.Background(), srv.URL, &out)

	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(2), requests.Load())
	// The configured backoff interval is one millisecond; a one second wait
	// proves the header drove the retry delay.
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestGetJSONRateLimitedErrorChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestHTTPClient(1)(domain.SourceTypeArXiv)

	var out struct{}
	err := client.GetJSON(context.Background(), srv.URL, &out)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.ErrorIs(t, err, domain.ErrProviderTransient)
}
