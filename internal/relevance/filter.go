package relevance

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/observability"
)

// Config holds the thresholds and batching parameters for the filter.
type Config struct {
	// RecallThreshold is the minimum BM25 score to survive the lexical
	// stage. Kept low on purpose.
	RecallThreshold float64

	// StrictThreshold is the neural score cutoff for TierStrict.
	StrictThreshold float64

	// RelaxedThreshold is the neural score cutoff for TierRelaxed.
	RelaxedThreshold float64

	// LexicalTopK caps the lexical-only fallback tier.
	LexicalTopK int

	// BatchSize is the number of documents per inference request.
	BatchSize int

	// Concurrency bounds the number of in-flight inference batches.
	Concurrency int
}

// DefaultConfig returns the filter settings used when a field is zero.
func DefaultConfig() Config {
	return Config{
		RecallThreshold:  0.05,
		StrictThreshold:  0.60,
		RelaxedThreshold: 0.40,
		LexicalTopK:      50,
		BatchSize:        16,
		Concurrency:      4,
	}
}

// Result is the outcome of one filter run. Tier names the rung of the
// fallback ladder that produced the records, so callers can distinguish
// "neural worked", "neural relaxed" and "lexical only".
type Result struct {
	Records []domain.Record
	Tier    domain.RelevanceTier

	// NeuralDegraded is set when the lexical tier was chosen because
	// inference failed, rather than because no record passed the neural
	// thresholds.
	NeuralDegraded bool
}

// Filter applies the two-stage relevance filter. A nil reranker is allowed
// and always yields the lexical tier.
type Filter struct {
	reranker Reranker
	cfg      Config
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// New creates a Filter. Zero config fields fall back to defaults. The
// metrics parameter may be nil (metrics recording will be skipped).
func New(reranker Reranker, cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Filter {
	def := DefaultConfig()
	if cfg.RecallThreshold <= 0 {
		cfg.RecallThreshold = def.RecallThreshold
	}
	if cfg.StrictThreshold <= 0 {
		cfg.StrictThreshold = def.StrictThreshold
	}
	if cfg.RelaxedThreshold <= 0 {
		cfg.RelaxedThreshold = def.RelaxedThreshold
	}
	if cfg.LexicalTopK <= 0 {
		cfg.LexicalTopK = def.LexicalTopK
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	return &Filter{
		reranker: reranker,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.With().Str("component", "relevance").Logger(),
	}
}

// Apply runs the lexical recall stage and then walks the tier ladder:
// TierStrict, TierRelaxed, TierLexical. Records below the accepted tier's
// threshold are discarded. The only returned error is caller cancellation;
// inference failure degrades to the lexical tier instead.
func (f *Filter) Apply(ctx context.Context, query domain.Query, records []domain.Record) (*Result, error) {
	scored := ScoreLexical(query.Tokens(), records)
	survivors := RecallFilter(scored, f.cfg.RecallThreshold)

	f.logger.Debug().
		Int("candidates", len(records)).
		Int("lexical_survivors", len(survivors)).
		Msg("lexical recall stage complete")

	if len(survivors) == 0 {
		return &Result{Tier: domain.TierLexical}, nil
	}

	if f.reranker == nil {
		return &Result{
			Records: f.lexicalTop(survivors),
			Tier:    domain.TierLexical,
		}, nil
	}

	scores, err := f.rerankAll(ctx, query.Text, survivors)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Warn().Err(err).
			Int("records", len(survivors)).
			Msg("neural reranking unavailable, falling back to lexical tier")
		return &Result{
			Records:        f.lexicalTop(survivors),
			Tier:           domain.TierLexical,
			NeuralDegraded: true,
		}, nil
	}

	reranked := make([]domain.Record, len(survivors))
	for i, rec := range survivors {
		reranked[i] = rec.WithNeuralScore(scores[i])
	}

	if strict := keepAbove(reranked, f.cfg.StrictThreshold); len(strict) > 0 {
		return &Result{Records: strict, Tier: domain.TierStrict}, nil
	}

	if relaxed := keepAbove(reranked, f.cfg.RelaxedThreshold); len(relaxed) > 0 {
		f.logger.Info().
			Int("records", len(relaxed)).
			Msg("no record passed the strict tier, relaxed threshold applied")
		return &Result{Records: relaxed, Tier: domain.TierRelaxed}, nil
	}

	f.logger.Info().
		Int("records", len(survivors)).
		Msg("no record passed the neural thresholds, lexical fallback used")
	return &Result{
		Records: f.lexicalTop(survivors),
		Tier:    domain.TierLexical,
	}, nil
}

// rerankAll scores all records through the reranker in bounded-concurrency
// batches. The returned scores align with the input records.
func (f *Filter) rerankAll(ctx context.Context, query string, records []domain.Record) ([]float64, error) {
	scores := make([]float64, len(records))
	sem := make(chan struct{}, f.cfg.Concurrency)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for start := 0; start < len(records); start += f.cfg.BatchSize {
		end := min(start+f.cfg.BatchSize, len(records))

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			mu.Lock()
			failed := firstErr != nil
			mu.Unlock()
			if failed || ctx.Err() != nil {
				return
			}

			docs := make([]string, 0, end-start)
			for _, rec := range records[start:end] {
				docs = append(docs, rerankDocument(rec))
			}

			batchStart := time.Now()
			batchScores, err := f.reranker.Rerank(ctx, query, docs)
			if f.metrics != nil {
				f.metrics.RecordRerank(time.Since(batchStart).Seconds(), err)
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			copy(scores[start:end], batchScores)
		}(start, end)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scores, nil
}

// lexicalTop returns the top-K records by lexical score, descending.
func (f *Filter) lexicalTop(records []domain.Record) []domain.Record {
	out := make([]domain.Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LexicalScore > out[j].LexicalScore
	})
	if len(out) > f.cfg.LexicalTopK {
		out = out[:f.cfg.LexicalTopK]
	}
	return out
}

// keepAbove keeps records whose neural score meets the threshold,
// preserving order.
func keepAbove(records []domain.Record, threshold float64) []domain.Record {
	kept := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		if rec.NeuralScore != nil && *rec.NeuralScore >= threshold {
			kept = append(kept, rec)
		}
	}
	return kept
}

// rerankDocument is the text sent to the inference service for one record.
func rerankDocument(rec domain.Record) string {
	if rec.Abstract == "" {
		return rec.Title
	}
	return rec.Title + "\n" + strings.TrimSpace(rec.Abstract)
}
