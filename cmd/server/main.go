// Package main provides the entry point for the scholar search service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/scholarsearch/internal/aggregate"
	"github.com/helixir/scholarsearch/internal/cache"
	"github.com/helixir/scholarsearch/internal/config"
	"github.com/helixir/scholarsearch/internal/dedup"
	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/domainfilter"
	"github.com/helixir/scholarsearch/internal/observability"
	"github.com/helixir/scholarsearch/internal/relevance"
	"github.com/helixir/scholarsearch/internal/resilience"
	"github.com/helixir/scholarsearch/internal/search"
	httpserver "github.com/helixir/scholarsearch/internal/server/http"
	"github.com/helixir/scholarsearch/internal/shape"
	"github.com/helixir/scholarsearch/internal/sources"
	"github.com/helixir/scholarsearch/internal/sources/arxiv"
	"github.com/helixir/scholarsearch/internal/sources/crossref"
	"github.com/helixir/scholarsearch/internal/sources/openalex"
	"github.com/helixir/scholarsearch/internal/sources/pubmed"
	"github.com/helixir/scholarsearch/internal/sources/semanticscholar"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("scholarsearch server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	// Resilience layer: one limiter + breaker + retry policy per provider.
	resCfgs := make(map[domain.SourceType]resilience.ProviderConfig)
	for _, st := range domain.AllSourceTypes() {
		pc := cfg.Providers.ByType(st)
		if !pc.Enabled {
			continue
		}
		resCfgs[st] = resilience.ProviderConfig{
			RateLimit:            pc.RateLimit,
			Burst:                pc.Burst,
			FailureThreshold:     cfg.Resilience.FailureThreshold,
			Cooldown:             cfg.Resilience.Cooldown,
			MaxAttempts:          cfg.Resilience.MaxAttempts,
			RetryInitialInterval: cfg.Resilience.RetryInitialInterval,
			CallTimeout:          pc.Timeout,
		}
	}
	resRegistry := resilience.NewRegistry(resCfgs, metrics, logger)

	// Source adapters.
	registry := buildSourceRegistry(cfg, resRegistry, logger)
	enabled := registry.Enabled()
	names := make([]string, 0, len(enabled))
	for _, src := range enabled {
		names = append(names, src.Name())
	}
	logger.Info().Strs("providers", names).Msg("source registry initialized")

	// Aggregator with the tier mapping from configuration. An enabled
	// provider without a tier fails startup here.
	aggregator, err := aggregate.New(registry, aggregate.Config{
		Tiers: cfg.Providers.Tiers(),
		Targets: aggregate.TargetCounts{
			Broad:         cfg.Aggregator.TargetBroad,
			Specific:      cfg.Aggregator.TargetSpecific,
			Comprehensive: cfg.Aggregator.TargetComprehensive,
		},
		MinAcceptable:  cfg.Aggregator.MinAcceptable,
		BoostFactor:    cfg.Aggregator.BoostFactor,
		MaxExtraRounds: cfg.Aggregator.MaxExtraRounds,
	}, metrics, logger)
	if err != nil {
		return fmt.Errorf("create aggregator: %w", err)
	}

	// Pipeline stages.
	deduper := dedup.New(dedup.Config{
		AuthorOverlapThreshold: cfg.Dedup.AuthorOverlapThreshold,
		FuzzyTitleThreshold:    cfg.Dedup.FuzzyTitleThreshold,
	}, logger)

	var reranker relevance.Reranker
	if cfg.Reranker.Enabled {
		reranker = relevance.NewHTTPReranker(relevance.HTTPRerankerConfig{
			Endpoint: cfg.Reranker.Endpoint,
			Model:    cfg.Reranker.Model,
			APIKey:   cfg.Reranker.APIKey,
			Timeout:  cfg.Reranker.Timeout,
		})
		logger.Info().Str("endpoint", cfg.Reranker.Endpoint).Msg("neural reranker enabled")
	} else {
		logger.Info().Msg("neural reranker disabled, searches use the lexical tier")
	}

	relevanceFilter := relevance.New(reranker, relevance.Config{
		RecallThreshold:  cfg.Relevance.RecallThreshold,
		StrictThreshold:  cfg.Relevance.StrictThreshold,
		RelaxedThreshold: cfg.Relevance.RelaxedThreshold,
		LexicalTopK:      cfg.Relevance.LexicalTopK,
		BatchSize:        cfg.Relevance.BatchSize,
		Concurrency:      cfg.Relevance.Concurrency,
	}, metrics, logger)

	domainFilter := domainfilter.New(domainfilter.Config{
		ExcludedTypes: cfg.DomainFilter.ExcludedTypes,
	}, logger)

	shaper := shape.New(shape.Config{
		Weights: shape.Weights{
			Recency:   cfg.Quality.RecencyWeight,
			Citations: cfg.Quality.CitationsWeight,
			Venue:     cfg.Quality.VenueWeight,
			Relevance: cfg.Quality.RelevanceWeight,
		},
		MaxSourceShare: cfg.Quality.MaxSourceShare,
	}, logger)

	resultCache := cache.New(cache.Config{
		Capacity: cfg.Cache.Capacity,
		TTL:      cfg.Cache.TTL,
	}, logger)

	searchService := search.New(
		aggregator,
		deduper,
		relevanceFilter,
		domainFilter,
		shaper,
		resultCache,
		metrics,
		logger,
	)

	// HTTP server.
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		SearchTimeout:   cfg.Server.SearchTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsPath:     cfg.Metrics.Path,
	}
	httpSrv := httpserver.NewServer(httpCfg, searchService, registry, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Msg("scholarsearch is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down scholarsearch")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("scholarsearch shutdown complete")
	return nil
}

// buildSourceRegistry constructs every provider adapter and registers it.
// Disabled providers are registered too so the sources endpoint can report
// them; the aggregator only ever fetches from enabled ones.
func buildSourceRegistry(cfg *config.Config, res *resilience.Registry, logger zerolog.Logger) *sources.Registry {
	registry := sources.NewRegistry()

	ss := cfg.Providers.SemanticScholar
	registry.Register(semanticscholar.New(semanticscholar.Config{
		BaseURL: ss.BaseURL,
		Enabled: ss.Enabled,
	}, sources.NewHTTPClient(domain.SourceTypeSemanticScholar, res, sources.HTTPClientConfig{
		APIKey:       ss.APIKey,
		APIKeyHeader: semanticscholar.APIKeyHeader,
	}), logger))

	oa := cfg.Providers.OpenAlex
	registry.Register(openalex.New(openalex.Config{
		BaseURL: oa.BaseURL,
		MailTo:  oa.Mailto,
		Enabled: oa.Enabled,
	}, sources.NewHTTPClient(domain.SourceTypeOpenAlex, res, sources.HTTPClientConfig{}), logger))

	ax := cfg.Providers.ArXiv
	registry.Register(arxiv.New(arxiv.Config{
		BaseURL: ax.BaseURL,
		Enabled: ax.Enabled,
	}, sources.NewHTTPClient(domain.SourceTypeArXiv, res, sources.HTTPClientConfig{}), logger))

	cr := cfg.Providers.Crossref
	registry.Register(crossref.New(crossref.Config{
		BaseURL: cr.BaseURL,
		MailTo:  cr.Mailto,
		Enabled: cr.Enabled,
	}, sources.NewHTTPClient(domain.SourceTypeCrossref, res, sources.HTTPClientConfig{}), logger))

	pm := cfg.Providers.PubMed
	registry.Register(pubmed.New(pubmed.Config{
		BaseURL: pm.BaseURL,
		APIKey:  pm.APIKey,
		Enabled: pm.Enabled,
	}, sources.NewHTTPClient(domain.SourceTypePubMed, res, sources.HTTPClientConfig{}), logger))

	return registry
}
