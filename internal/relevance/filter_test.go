package relevance

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/observability"
)

// stubReranker scores documents with a fixed function and counts calls.
type stubReranker struct {
	score    func(doc string) float64
	err      error
	calls    atomic.Int32
	maxBatch int
}

func (s *stubReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.maxBatch > 0 && len(documents) > s.maxBatch {
		return nil, fmt.Errorf("batch of %d exceeds limit %d", len(documents), s.maxBatch)
	}
	scores := make([]float64, len(documents))
	for i, doc := range documents {
		scores[i] = s.score(doc)
	}
	return scores, nil
}

func testRecords(n int) []domain.Record {
	records := make([]domain.Record, n)
	for i := range records {
		records[i] = domain.Record{
			ID:       fmt.Sprintf("rec-%d", i),
			Title:    fmt.Sprintf("machine learning study %d", i),
			Abstract: "empirical methods for machine learning systems",
		}
	}
	return records
}

func TestFilter_Apply(t *testing.T) {
	query := domain.Query{Text: "machine learning"}

	t.Run("strict tier when records pass", func(t *testing.T) {
		reranker := &stubReranker{score: func(string) float64 { return 0.9 }}
		f := New(reranker, Config{}, nil, zerolog.Nop())

		result, err := f.Apply(context.Background(), query, testRecords(5))
		require.NoError(t, err)

		assert.Equal(t, domain.TierStrict, result.Tier)
		assert.Len(t, result.Records, 5)
		assert.False(t, result.NeuralDegraded)
		for _, rec := range result.Records {
			require.NotNil(t, rec.NeuralScore)
			assert.InDelta(t, 0.9, *rec.NeuralScore, 0.001)
		}
	})

	t.Run("relaxed tier when strict passes nothing", func(t *testing.T) {
		reranker := &stubReranker{score: func(string) float64 { return 0.5 }}
		f := New(reranker, Config{StrictThreshold: 0.6, RelaxedThreshold: 0.4}, nil, zerolog.Nop())

		result, err := f.Apply(context.Background(), query, testRecords(5))
		require.NoError(t, err)

		assert.Equal(t, domain.TierRelaxed, result.Tier)
		assert.Len(t, result.Records, 5)
		assert.False(t, result.NeuralDegraded)
	})

	t.Run("lexical tier when neural passes nothing", func(t *testing.T) {
		reranker := &stubReranker{score: func(string) float64 { return 0.1 }}
		f := New(reranker, Config{}, nil, zerolog.Nop())

		result, err := f.Apply(context.Background(), query, testRecords(5))
		require.NoError(t, err)

		assert.Equal(t, domain.TierLexical, result.Tier)
		assert.Len(t, result.Records, 5,
			"lexical candidates must survive threshold strictness")
		assert.False(t, result.NeuralDegraded)
	})

	t.Run("inference failure degrades to lexical tier", func(t *testing.T) {
		reranker := &stubReranker{err: fmt.Errorf("%w: inference service returned 503", domain.ErrNeuralUnavailable)}
		f := New(reranker, Config{}, nil, zerolog.Nop())

		result, err := f.Apply(context.Background(), query, testRecords(5))
		require.NoError(t, err)

		assert.Equal(t, domain.TierLexical, result.Tier)
		assert.Len(t, result.Records, 5)
		assert.True(t, result.NeuralDegraded)
	})

	t.Run("nil reranker always yields lexical tier", func(t *testing.T) {
		f := New(nil, Config{}, nil, zerolog.Nop())

		result, err := f.Apply(context.Background(), query, testRecords(3))
		require.NoError(t, err)

		assert.Equal(t, domain.TierLexical, result.Tier)
		assert.Len(t, result.Records, 3)
	})

	t.Run("lexical top-K cap", func(t *testing.T) {
		f := New(nil, Config{LexicalTopK: 2}, nil, zerolog.Nop())

		result, err := f.Apply(context.Background(), query, testRecords(5))
		require.NoError(t, err)
		assert.Len(t, result.Records, 2)
	})

	t.Run("records sharing no query terms are discarded by recall", func(t *testing.T) {
		reranker := &stubReranker{score: func(string) float64 { return 0.9 }}
		f := New(reranker, Config{}, nil, zerolog.Nop())

		records := append(testRecords(3), domain.Record{
			ID:       "noise",
			Title:    "Gardening Tips",
			Abstract: "Tomatoes and soil.",
		})

		result, err := f.Apply(context.Background(), query, records)
		require.NoError(t, err)

		assert.Len(t, result.Records, 3)
		for _, rec := range result.Records {
			assert.NotEqual(t, "noise", rec.ID)
		}
	})

	t.Run("empty candidate set", func(t *testing.T) {
		reranker := &stubReranker{score: func(string) float64 { return 0.9 }}
		f := New(reranker, Config{}, nil, zerolog.Nop())

		result, err := f.Apply(context.Background(), query, nil)
		require.NoError(t, err)

		assert.Empty(t, result.Records)
		assert.Equal(t, domain.TierLexical, result.Tier)
		assert.Zero(t, reranker.calls.Load(), "no inference on empty input")
	})

	t.Run("batches respect configured size", func(t *testing.T) {
		reranker := &stubReranker{score: func(string) float64 { return 0.9 }, maxBatch: 4}
		f := New(reranker, Config{BatchSize: 4, Concurrency: 2}, nil, zerolog.Nop())

		result, err := f.Apply(context.Background(), query, testRecords(10))
		require.NoError(t, err)

		assert.Equal(t, domain.TierStrict, result.Tier)
		assert.Len(t, result.Records, 10)
		assert.Equal(t, int32(3), reranker.calls.Load())
	})

	t.Run("cancellation propagates", func(t *testing.T) {
		reranker := &stubReranker{score: func(string) float64 { return 0.9 }}
		f := New(reranker, Config{}, nil, zerolog.Nop())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.Apply(ctx, query, testRecords(5))
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestRerankDocument(t *testing.T) {
	assert.Equal(t, "Title Only", rerankDocument(domain.Record{Title: "Title Only"}))
	assert.Equal(t, "Title\nAbstract body.",
		rerankDocument(domain.Record{Title: "Title", Abstract: " Abstract body. "}))
}

func TestFilter_RecordsRerankerMetrics(t *testing.T) {
	// promauto registers on the default registry, so the namespace must be
	// unique per test.
	m := observability.NewMetrics("test_relevance_reranker_metrics")
	reranker := &stubReranker{err: domain.ErrNeuralUnavailable}
	f := New(reranker, Config{}, m, zerolog.Nop())

	result, err := f.Apply(context.Background(), domain.Query{Text: "machine learning"}, testRecords(4))
	require.NoError(t, err)

	assert.Equal(t, domain.TierLexical, result.Tier)
	assert.True(t, result.NeuralDegraded)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RerankerRequests))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RerankerFailures))
}
