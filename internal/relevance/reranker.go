package relevance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/helixir/scholarsearch/internal/domain"
)

// Reranker scores documents against a query with a learned relevance model.
// Scores are in [0, 1], one per document, in document order.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
}

// Default values for the HTTP reranker.
const (
	defaultRerankerModel   = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	defaultRerankerTimeout = 30 * time.Second
)

// rerankRequest is the inference service request body.
type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

// rerankResponse is the inference service response body.
type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// rerankErrorResponse is an error body from the inference service.
type rerankErrorResponse struct {
	Error string `json:"error"`
}

// HTTPRerankerConfig holds the parameters for the HTTP reranker client.
type HTTPRerankerConfig struct {
	// Endpoint is the full URL of the batch scoring endpoint.
	Endpoint string

	// Model is the model identifier sent with each request (empty means the
	// service default).
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds each inference request.
	Timeout time.Duration
}

// HTTPReranker calls a batch scoring inference service over HTTP. Failures
// are wrapped with ErrNeuralUnavailable so the filter can drop to the
// lexical fallback tier instead of failing the pipeline run.
type HTTPReranker struct {
	httpClient *http.Client
	cfg        HTTPRerankerConfig
}

var _ Reranker = (*HTTPReranker)(nil)

// NewHTTPReranker creates an HTTP reranker client.
func NewHTTPReranker(cfg HTTPRerankerConfig) *HTTPReranker {
	if cfg.Model == "" {
		cfg.Model = defaultRerankerModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRerankerTimeout
	}
	return &HTTPReranker{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg: cfg,
	}
}

// Rerank scores one batch of documents against the query.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     r.cfg.Model,
		Query:     query,
		Documents: documents,
	})
	if err != nil {
		return nil, fmt.Errorf("reranker: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("reranker: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: inference request failed: %v", domain.ErrNeuralUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading inference response: %v", domain.ErrNeuralUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var errResp rerankErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return nil, fmt.Errorf("%w: inference service returned %d: %s",
			domain.ErrNeuralUnavailable, resp.StatusCode, msg)
	}

	var rerankResp rerankResponse
	if err := json.Unmarshal(respBody, &rerankResp); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling inference response: %v", domain.ErrNeuralUnavailable, err)
	}

	if len(rerankResp.Scores) != len(documents) {
		return nil, fmt.Errorf("%w: expected %d scores, got %d",
			domain.ErrNeuralUnavailable, len(documents), len(rerankResp.Scores))
	}

	return rerankResp.Scores, nil
}
