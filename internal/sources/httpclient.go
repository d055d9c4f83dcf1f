package sources

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/resilience"
)

// maxResponseBytes caps provider response bodies to prevent resource
// exhaustion from a misbehaving upstream.
const maxResponseBytes = 10 << 20

// HTTPClientConfig configures the shared provider HTTP client.
type HTTPClientConfig struct {
	// UserAgent is sent with every request. Several providers (OpenAlex,
	// Crossref) use it for their polite pools.
	UserAgent string

	// APIKey is an optional provider API key.
	APIKey string

	// APIKeyHeader is the header carrying the API key (e.g. "x-api-key").
	APIKeyHeader string
}

// HTTPClient performs provider requests through the resilience layer, which
// owns rate limiting, circuit breaking, retries and per-attempt timeouts.
// It is safe for concurrent use.
type HTTPClient struct {
	client   *http.Client
	res      *resilience.Registry
	provider domain.SourceType
	cfg      HTTPClientConfig
}

// NewHTTPClient creates an HTTP client for one provider. All calls made
// through it are wrapped by the given resilience registry.
func NewHTTPClient(provider domain.SourceType, res *resilience.Registry, cfg HTTPClientConfig) *HTTPClient {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Helixir-ScholarSearch/1.0"
	}
	return &HTTPClient{
		// Timeouts are enforced per attempt by the resilience layer through
		// the request context.
		client:   &http.Client{},
		res:      res,
		provider: provider,
		cfg:      cfg,
	}
}

// GetJSON performs a GET request and decodes a JSON response body into out.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, out any) error {
	return c.get(ctx, url, "application/json", func(body io.Reader) error {
		if err := json.NewDecoder(body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding JSON response: %v", domain.ErrMalformedResponse, err)
		}
		return nil
	})
}

// GetXML performs a GET request and decodes an XML (Atom) response body into out.
func (c *HTTPClient) GetXML(ctx context.Context, url string, out any) error {
	return c.get(ctx, url, "application/xml", func(body io.Reader) error {
		if err := xml.NewDecoder(body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding XML response: %v", domain.ErrMalformedResponse, err)
		}
		return nil
	})
}

// get executes the request under the resilience layer and hands the bounded
// response body to decode. Non-2xx statuses become typed provider errors so
// the retry policy can classify them.
func (c *HTTPClient) get(ctx context.Context, url, accept string, decode func(io.Reader) error) error {
	return c.res.Call(ctx, c.provider, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		req.Header.Set("Accept", accept)
		if c.cfg.APIKey != "" && c.cfg.APIKeyHeader != "" {
			req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return domain.NewProviderError(c.provider, 0, "request failed", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			var cause error
			if resp.StatusCode == http.StatusTooManyRequests {
				cause = domain.ErrRateLimited
			}
			perr := domain.NewProviderError(c.provider, resp.StatusCode, string(body), cause)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
				if d := retryAfterDelay(resp); d > 0 {
					// The retry policy picks the signaled delay over its own
					// exponential schedule.
					return fmt.Errorf("%w: %w", &backoff.RetryAfterError{Duration: d}, perr)
				}
			}
			return perr
		}

		return decode(io.LimitReader(resp.Body, maxResponseBytes))
	})
}

// retryAfterDelay parses the Retry-After response header, which providers
// send in either delta-seconds or HTTP-date form. Zero means absent or
// already elapsed.
func retryAfterDelay(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.ParseInt(v, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return 0
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
