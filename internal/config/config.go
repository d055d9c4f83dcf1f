// Package config provides configuration management for the scholar search service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/helixir/scholarsearch/internal/domain"
)

// Config holds all configuration for the scholar search service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Providers contains per-provider API configurations.
	Providers ProvidersConfig `mapstructure:"providers"`
	// Resilience contains circuit breaker and retry settings shared by all providers.
	Resilience ResilienceConfig `mapstructure:"resilience"`
	// Aggregator contains fetch allocation and boosted re-fetch settings.
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	// Dedup contains deduplication thresholds.
	Dedup DedupConfig `mapstructure:"dedup"`
	// Relevance contains lexical recall and neural reranking settings.
	Relevance RelevanceConfig `mapstructure:"relevance"`
	// Reranker contains the neural reranker inference endpoint settings.
	Reranker RerankerConfig `mapstructure:"reranker"`
	// DomainFilter contains document type exclusion settings.
	DomainFilter DomainFilterConfig `mapstructure:"domain_filter"`
	// Quality contains composite scoring weights and diversity settings.
	Quality QualityConfig `mapstructure:"quality"`
	// Cache contains result cache settings.
	Cache CacheConfig `mapstructure:"cache"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// SearchTimeout bounds one full pipeline run.
	SearchTimeout time.Duration `mapstructure:"search_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes all metric names.
	Namespace string `mapstructure:"namespace"`
}

// ProvidersConfig holds configuration for all provider APIs.
type ProvidersConfig struct {
	// SemanticScholar contains Semantic Scholar API settings.
	SemanticScholar ProviderConfig `mapstructure:"semantic_scholar"`
	// OpenAlex contains OpenAlex API settings.
	OpenAlex ProviderConfig `mapstructure:"openalex"`
	// ArXiv contains arXiv API settings.
	ArXiv ProviderConfig `mapstructure:"arxiv"`
	// Crossref contains Crossref API settings.
	Crossref ProviderConfig `mapstructure:"crossref"`
	// PubMed contains PubMed E-utilities settings.
	PubMed ProviderConfig `mapstructure:"pubmed"`
}

// ProviderConfig holds configuration for a single provider API.
type ProviderConfig struct {
	// Enabled controls whether this provider is queried.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from environment variable, e.g.
	// SCHOLARSEARCH_PROVIDERS_SEMANTIC_SCHOLAR_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the per-attempt deadline for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the sustained requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// Burst is the token bucket capacity for the rate limiter.
	Burst int `mapstructure:"burst"`
	// Tier ranks the provider for fetch allocation (primary, secondary,
	// supplemental). Every enabled provider must have a valid tier.
	Tier string `mapstructure:"tier"`
	// Mailto identifies the caller to providers with polite pools
	// (OpenAlex, Crossref).
	Mailto string `mapstructure:"mailto"`
}

// ResilienceConfig holds circuit breaker and retry settings shared by all
// providers. Rate limits are per provider; see ProviderConfig.
type ResilienceConfig struct {
	// FailureThreshold is consecutive failures before a circuit opens.
	FailureThreshold int `mapstructure:"failure_threshold"`
	// Cooldown is how long an open circuit waits before a probe.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// MaxAttempts bounds the retry loop, including the first attempt.
	MaxAttempts int `mapstructure:"max_attempts"`
	// RetryInitialInterval is the base delay for exponential backoff.
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
}

// AggregatorConfig holds fetch allocation and boosted re-fetch settings.
type AggregatorConfig struct {
	// MinAcceptable is the unique record count below which a boosted
	// re-fetch round is issued.
	MinAcceptable int `mapstructure:"min_acceptable"`
	// BoostFactor multiplies per-provider limits in boosted rounds.
	BoostFactor float64 `mapstructure:"boost_factor"`
	// MaxExtraRounds bounds boosted re-fetch rounds per search.
	MaxExtraRounds int `mapstructure:"max_extra_rounds"`
	// TargetBroad is the target result count for broad queries.
	TargetBroad int `mapstructure:"target_broad"`
	// TargetSpecific is the target result count for specific queries.
	TargetSpecific int `mapstructure:"target_specific"`
	// TargetComprehensive is the target result count for comprehensive queries.
	TargetComprehensive int `mapstructure:"target_comprehensive"`
}

// DedupConfig holds deduplication thresholds.
type DedupConfig struct {
	// AuthorOverlapThreshold is the minimum author overlap for an
	// exact-title match, in [0, 1].
	AuthorOverlapThreshold float64 `mapstructure:"author_overlap_threshold"`
	// FuzzyTitleThreshold is the minimum title similarity for a fuzzy
	// match, in [0, 1].
	FuzzyTitleThreshold float64 `mapstructure:"fuzzy_title_threshold"`
}

// RelevanceConfig holds lexical recall and neural reranking settings.
type RelevanceConfig struct {
	// RecallThreshold is the minimum lexical score to enter reranking.
	RecallThreshold float64 `mapstructure:"recall_threshold"`
	// StrictThreshold is the neural score cutoff for the strict tier.
	StrictThreshold float64 `mapstructure:"strict_threshold"`
	// RelaxedThreshold is the neural score cutoff for the relaxed tier.
	RelaxedThreshold float64 `mapstructure:"relaxed_threshold"`
	// LexicalTopK caps the lexical-only fallback result set.
	LexicalTopK int `mapstructure:"lexical_top_k"`
	// BatchSize is the number of documents per reranker request.
	BatchSize int `mapstructure:"batch_size"`
	// Concurrency bounds in-flight reranker batches.
	Concurrency int `mapstructure:"concurrency"`
}

// RerankerConfig holds the neural reranker inference endpoint settings.
type RerankerConfig struct {
	// Enabled controls whether the neural stage runs at all. When false,
	// every search uses the lexical tier.
	Enabled bool `mapstructure:"enabled"`
	// Endpoint is the inference server URL.
	Endpoint string `mapstructure:"endpoint"`
	// Model is the cross-encoder model identifier.
	Model string `mapstructure:"model"`
	// APIKey is the inference server API key (loaded from
	// SCHOLARSEARCH_RERANKER_API_KEY).
	APIKey string `mapstructure:"-"`
	// Timeout is the per-request deadline for inference calls.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DomainFilterConfig holds document type exclusion settings.
type DomainFilterConfig struct {
	// ExcludedTypes replaces the default excluded document type set when
	// non-empty.
	ExcludedTypes []string `mapstructure:"excluded_types"`
}

// QualityConfig holds composite scoring weights and diversity settings.
type QualityConfig struct {
	// RecencyWeight scales the publication recency signal.
	RecencyWeight float64 `mapstructure:"recency_weight"`
	// CitationsWeight scales the citation count signal.
	CitationsWeight float64 `mapstructure:"citations_weight"`
	// VenueWeight scales the venue presence signal.
	VenueWeight float64 `mapstructure:"venue_weight"`
	// RelevanceWeight scales the relevance score signal.
	RelevanceWeight float64 `mapstructure:"relevance_weight"`
	// MaxSourceShare caps a single provider's share of the final set,
	// in (0, 1].
	MaxSourceShare float64 `mapstructure:"max_source_share"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	// Capacity is the maximum number of cached searches before LRU eviction.
	Capacity int `mapstructure:"capacity"`
	// TTL is how long a cached search stays valid.
	TTL time.Duration `mapstructure:"ttl"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// ByType returns the configuration for one provider.
func (c *ProvidersConfig) ByType(st domain.SourceType) ProviderConfig {
	switch st {
	case domain.SourceTypeSemanticScholar:
		return c.SemanticScholar
	case domain.SourceTypeOpenAlex:
		return c.OpenAlex
	case domain.SourceTypeArXiv:
		return c.ArXiv
	case domain.SourceTypeCrossref:
		return c.Crossref
	case domain.SourceTypePubMed:
		return c.PubMed
	default:
		return ProviderConfig{}
	}
}

// Tiers returns the provider tier mapping for every enabled provider.
// Load has already validated the tier names.
func (c *ProvidersConfig) Tiers() map[domain.SourceType]domain.ProviderTier {
	tiers := make(map[domain.SourceType]domain.ProviderTier)
	for _, st := range domain.AllSourceTypes() {
		pc := c.ByType(st)
		if !pc.Enabled {
			continue
		}
		if tier, ok := domain.ParseProviderTier(pc.Tier); ok {
			tiers[st] = tier
		}
	}
	return tiers
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("SCHOLARSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/scholarsearch")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	cfg.Providers.SemanticScholar.APIKey = os.Getenv("SCHOLARSEARCH_PROVIDERS_SEMANTIC_SCHOLAR_API_KEY")
	cfg.Providers.OpenAlex.APIKey = os.Getenv("SCHOLARSEARCH_PROVIDERS_OPENALEX_API_KEY")
	cfg.Providers.ArXiv.APIKey = os.Getenv("SCHOLARSEARCH_PROVIDERS_ARXIV_API_KEY")
	cfg.Providers.Crossref.APIKey = os.Getenv("SCHOLARSEARCH_PROVIDERS_CROSSREF_API_KEY")
	cfg.Providers.PubMed.APIKey = os.Getenv("SCHOLARSEARCH_PROVIDERS_PUBMED_API_KEY")

	cfg.Reranker.APIKey = os.Getenv("SCHOLARSEARCH_RERANKER_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.search_timeout", "45s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "scholarsearch")

	// Provider defaults - Semantic Scholar
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("providers.semantic_scholar.enabled", true)
	v.SetDefault("providers.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("providers.semantic_scholar.timeout", "30s")
	v.SetDefault("providers.semantic_scholar.rate_limit", 10.0)
	v.SetDefault("providers.semantic_scholar.burst", 10)
	v.SetDefault("providers.semantic_scholar.tier", "primary")

	// Provider defaults - OpenAlex
	v.SetDefault("providers.openalex.enabled", true)
	v.SetDefault("providers.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("providers.openalex.timeout", "30s")
	v.SetDefault("providers.openalex.rate_limit", 10.0)
	v.SetDefault("providers.openalex.burst", 10)
	v.SetDefault("providers.openalex.tier", "primary")
	v.SetDefault("providers.openalex.mailto", "")

	// Provider defaults - arXiv
	v.SetDefault("providers.arxiv.enabled", true)
	v.SetDefault("providers.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("providers.arxiv.timeout", "30s")
	v.SetDefault("providers.arxiv.rate_limit", 3.0) // arXiv recommends max 3 req/sec
	v.SetDefault("providers.arxiv.burst", 3)
	v.SetDefault("providers.arxiv.tier", "secondary")

	// Provider defaults - Crossref
	v.SetDefault("providers.crossref.enabled", true)
	v.SetDefault("providers.crossref.base_url", "https://api.crossref.org")
	v.SetDefault("providers.crossref.timeout", "30s")
	v.SetDefault("providers.crossref.rate_limit", 5.0)
	v.SetDefault("providers.crossref.burst", 5)
	v.SetDefault("providers.crossref.tier", "secondary")
	v.SetDefault("providers.crossref.mailto", "")

	// Provider defaults - PubMed
	v.SetDefault("providers.pubmed.enabled", true)
	v.SetDefault("providers.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("providers.pubmed.timeout", "30s")
	v.SetDefault("providers.pubmed.rate_limit", 3.0) // NCBI recommends max 3 req/sec without API key
	v.SetDefault("providers.pubmed.burst", 3)
	v.SetDefault("providers.pubmed.tier", "supplemental")

	// Resilience defaults
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.cooldown", "60s")
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.retry_initial_interval", "1s")

	// Aggregator defaults
	v.SetDefault("aggregator.min_acceptable", 20)
	v.SetDefault("aggregator.boost_factor", 2.0)
	v.SetDefault("aggregator.max_extra_rounds", 1)
	v.SetDefault("aggregator.target_broad", 100)
	v.SetDefault("aggregator.target_specific", 60)
	v.SetDefault("aggregator.target_comprehensive", 150)

	// Dedup defaults
	v.SetDefault("dedup.author_overlap_threshold", 0.5)
	v.SetDefault("dedup.fuzzy_title_threshold", 0.90)

	// Relevance defaults
	v.SetDefault("relevance.recall_threshold", 0.05)
	v.SetDefault("relevance.strict_threshold", 0.60)
	v.SetDefault("relevance.relaxed_threshold", 0.40)
	v.SetDefault("relevance.lexical_top_k", 50)
	v.SetDefault("relevance.batch_size", 16)
	v.SetDefault("relevance.concurrency", 4)

	// Reranker defaults
	v.SetDefault("reranker.enabled", false)
	v.SetDefault("reranker.endpoint", "")
	v.SetDefault("reranker.model", "cross-encoder/ms-marco-MiniLM-L-6-v2")
	v.SetDefault("reranker.timeout", "30s")

	// Domain filter defaults: empty means the built-in excluded type set.
	v.SetDefault("domain_filter.excluded_types", []string{})

	// Quality defaults
	v.SetDefault("quality.recency_weight", 0.2)
	v.SetDefault("quality.citations_weight", 0.3)
	v.SetDefault("quality.venue_weight", 0.1)
	v.SetDefault("quality.relevance_weight", 0.4)
	v.SetDefault("quality.max_source_share", 0.5)

	// Cache defaults
	v.SetDefault("cache.capacity", 256)
	v.SetDefault("cache.ttl", "15m")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Every enabled provider must carry a valid tier. An unmapped provider
	// is a startup error, not a silent default.
	enabledCount := 0
	for _, st := range domain.AllSourceTypes() {
		pc := c.Providers.ByType(st)
		if !pc.Enabled {
			continue
		}
		enabledCount++
		if _, ok := domain.ParseProviderTier(pc.Tier); !ok {
			return fmt.Errorf("provider %s has invalid tier %q (want primary, secondary or supplemental)", st, pc.Tier)
		}
		if pc.BaseURL == "" {
			return fmt.Errorf("provider %s has no base URL", st)
		}
		if pc.RateLimit <= 0 {
			return fmt.Errorf("provider %s rate limit must be positive", st)
		}
	}
	if enabledCount == 0 {
		return fmt.Errorf("at least one provider must be enabled")
	}

	if c.Resilience.FailureThreshold <= 0 {
		return fmt.Errorf("resilience failure_threshold must be positive")
	}
	if c.Resilience.MaxAttempts <= 0 {
		return fmt.Errorf("resilience max_attempts must be positive")
	}

	if c.Aggregator.MinAcceptable <= 0 {
		return fmt.Errorf("aggregator min_acceptable must be positive")
	}
	if c.Aggregator.BoostFactor <= 1 {
		return fmt.Errorf("aggregator boost_factor must be greater than 1")
	}
	if c.Aggregator.MaxExtraRounds < 0 {
		return fmt.Errorf("aggregator max_extra_rounds must not be negative")
	}

	if c.Dedup.AuthorOverlapThreshold < 0 || c.Dedup.AuthorOverlapThreshold > 1 {
		return fmt.Errorf("dedup author_overlap_threshold must be in [0, 1]")
	}
	if c.Dedup.FuzzyTitleThreshold < 0 || c.Dedup.FuzzyTitleThreshold > 1 {
		return fmt.Errorf("dedup fuzzy_title_threshold must be in [0, 1]")
	}

	if c.Relevance.StrictThreshold < c.Relevance.RelaxedThreshold {
		return fmt.Errorf("relevance strict_threshold must be >= relaxed_threshold")
	}
	if c.Relevance.LexicalTopK <= 0 {
		return fmt.Errorf("relevance lexical_top_k must be positive")
	}

	if c.Reranker.Enabled && c.Reranker.Endpoint == "" {
		return fmt.Errorf("reranker endpoint is required when the reranker is enabled")
	}

	weightSum := c.Quality.RecencyWeight + c.Quality.CitationsWeight +
		c.Quality.VenueWeight + c.Quality.RelevanceWeight
	if weightSum <= 0 {
		return fmt.Errorf("quality weights must sum to a positive value")
	}
	if c.Quality.RecencyWeight < 0 || c.Quality.CitationsWeight < 0 ||
		c.Quality.VenueWeight < 0 || c.Quality.RelevanceWeight < 0 {
		return fmt.Errorf("quality weights must not be negative")
	}
	if c.Quality.MaxSourceShare <= 0 || c.Quality.MaxSourceShare > 1 {
		return fmt.Errorf("quality max_source_share must be in (0, 1]")
	}

	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}

	return nil
}
