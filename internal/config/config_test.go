package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/scholarsearch/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Server defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 45*time.Second, cfg.Server.SearchTimeout)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Metrics defaults
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "scholarsearch", cfg.Metrics.Namespace)

	// Provider defaults
	assert.True(t, cfg.Providers.SemanticScholar.Enabled)
	assert.Equal(t, "primary", cfg.Providers.SemanticScholar.Tier)
	assert.True(t, cfg.Providers.OpenAlex.Enabled)
	assert.Equal(t, "primary", cfg.Providers.OpenAlex.Tier)
	assert.True(t, cfg.Providers.ArXiv.Enabled)
	assert.Equal(t, "secondary", cfg.Providers.ArXiv.Tier)
	assert.True(t, cfg.Providers.Crossref.Enabled)
	assert.True(t, cfg.Providers.PubMed.Enabled)
	assert.Equal(t, "supplemental", cfg.Providers.PubMed.Tier)
	assert.Equal(t, 3.0, cfg.Providers.ArXiv.RateLimit)

	// Resilience defaults
	assert.Equal(t, 5, cfg.Resilience.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Resilience.Cooldown)
	assert.Equal(t, 3, cfg.Resilience.MaxAttempts)

	// Aggregator defaults
	assert.Equal(t, 20, cfg.Aggregator.MinAcceptable)
	assert.Equal(t, 2.0, cfg.Aggregator.BoostFactor)
	assert.Equal(t, 1, cfg.Aggregator.MaxExtraRounds)
	assert.Equal(t, 100, cfg.Aggregator.TargetBroad)
	assert.Equal(t, 150, cfg.Aggregator.TargetComprehensive)

	// Relevance defaults
	assert.Equal(t, 0.60, cfg.Relevance.StrictThreshold)
	assert.Equal(t, 0.40, cfg.Relevance.RelaxedThreshold)
	assert.Equal(t, 50, cfg.Relevance.LexicalTopK)

	// Reranker is opt-in.
	assert.False(t, cfg.Reranker.Enabled)
	assert.Equal(t, "cross-encoder/ms-marco-MiniLM-L-6-v2", cfg.Reranker.Model)

	// Quality defaults
	assert.Equal(t, 0.4, cfg.Quality.RelevanceWeight)
	assert.Equal(t, 0.5, cfg.Quality.MaxSourceShare)

	// Cache defaults
	assert.Equal(t, 256, cfg.Cache.Capacity)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("SCHOLARSEARCH_SERVER_HTTP_PORT", "8888")
	t.Setenv("SCHOLARSEARCH_LOGGING_LEVEL", "debug")
	t.Setenv("SCHOLARSEARCH_PROVIDERS_PUBMED_ENABLED", "false")
	t.Setenv("SCHOLARSEARCH_PROVIDERS_ARXIV_TIER", "primary")
	t.Setenv("SCHOLARSEARCH_AGGREGATOR_MIN_ACCEPTABLE", "40")
	t.Setenv("SCHOLARSEARCH_CACHE_TTL", "5m")
	t.Setenv("SCHOLARSEARCH_PROVIDERS_SEMANTIC_SCHOLAR_API_KEY", "s2-test-key")
	t.Setenv("SCHOLARSEARCH_RERANKER_API_KEY", "rr-test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Providers.PubMed.Enabled)
	assert.Equal(t, "primary", cfg.Providers.ArXiv.Tier)
	assert.Equal(t, 40, cfg.Aggregator.MinAcceptable)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "s2-test-key", cfg.Providers.SemanticScholar.APIKey)
	assert.Equal(t, "rr-test-key", cfg.Reranker.APIKey)
}

func TestLoad_RejectsInvalidTier(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("SCHOLARSEARCH_PROVIDERS_CROSSREF_TIER", "platinum")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `provider crossref has invalid tier "platinum"`)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectedErr string
	}{
		{
			name: "HTTP port zero",
			modifyFunc: func(c *Config) {
				c.Server.HTTPPort = 0
			},
			expectedErr: "invalid HTTP port: 0",
		},
		{
			name: "HTTP port too high",
			modifyFunc: func(c *Config) {
				c.Server.HTTPPort = 70000
			},
			expectedErr: "invalid HTTP port: 70000",
		},
		{
			name: "invalid log level",
			modifyFunc: func(c *Config) {
				c.Logging.Level = "verbose"
			},
			expectedErr: "invalid log level: verbose",
		},
		{
			name: "enabled provider without tier",
			modifyFunc: func(c *Config) {
				c.Providers.OpenAlex.Tier = ""
			},
			expectedErr: `provider openalex has invalid tier ""`,
		},
		{
			name: "enabled provider without base URL",
			modifyFunc: func(c *Config) {
				c.Providers.ArXiv.BaseURL = ""
			},
			expectedErr: "provider arxiv has no base URL",
		},
		{
			name: "zero rate limit",
			modifyFunc: func(c *Config) {
				c.Providers.PubMed.RateLimit = 0
			},
			expectedErr: "provider pubmed rate limit must be positive",
		},
		{
			name: "all providers disabled",
			modifyFunc: func(c *Config) {
				c.Providers.SemanticScholar.Enabled = false
				c.Providers.OpenAlex.Enabled = false
				c.Providers.ArXiv.Enabled = false
				c.Providers.Crossref.Enabled = false
				c.Providers.PubMed.Enabled = false
			},
			expectedErr: "at least one provider must be enabled",
		},
		{
			name: "boost factor not above one",
			modifyFunc: func(c *Config) {
				c.Aggregator.BoostFactor = 1.0
			},
			expectedErr: "boost_factor must be greater than 1",
		},
		{
			name: "negative extra rounds",
			modifyFunc: func(c *Config) {
				c.Aggregator.MaxExtraRounds = -1
			},
			expectedErr: "max_extra_rounds must not be negative",
		},
		{
			name: "fuzzy threshold above one",
			modifyFunc: func(c *Config) {
				c.Dedup.FuzzyTitleThreshold = 1.5
			},
			expectedErr: "fuzzy_title_threshold must be in [0, 1]",
		},
		{
			name: "strict below relaxed",
			modifyFunc: func(c *Config) {
				c.Relevance.StrictThreshold = 0.3
				c.Relevance.RelaxedThreshold = 0.4
			},
			expectedErr: "strict_threshold must be >= relaxed_threshold",
		},
		{
			name: "reranker enabled without endpoint",
			modifyFunc: func(c *Config) {
				c.Reranker.Enabled = true
				c.Reranker.Endpoint = ""
			},
			expectedErr: "reranker endpoint is required",
		},
		{
			name: "negative quality weight",
			modifyFunc: func(c *Config) {
				c.Quality.VenueWeight = -0.1
			},
			expectedErr: "quality weights must not be negative",
		},
		{
			name: "zero weight sum",
			modifyFunc: func(c *Config) {
				c.Quality.RecencyWeight = 0
				c.Quality.CitationsWeight = 0
				c.Quality.VenueWeight = 0
				c.Quality.RelevanceWeight = 0
			},
			expectedErr: "quality weights must sum to a positive value",
		},
		{
			name: "source share above one",
			modifyFunc: func(c *Config) {
				c.Quality.MaxSourceShare = 1.2
			},
			expectedErr: "max_source_share must be in (0, 1]",
		},
		{
			name: "zero cache capacity",
			modifyFunc: func(c *Config) {
				c.Cache.Capacity = 0
			},
			expectedErr: "cache capacity must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modifyFunc(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestProvidersTiers(t *testing.T) {
	cfg := validConfig()
	cfg.Providers.PubMed.Enabled = false

	tiers := cfg.Providers.Tiers()

	assert.Equal(t, domain.ProviderTierPrimary, tiers[domain.SourceTypeSemanticScholar])
	assert.Equal(t, domain.ProviderTierSecondary, tiers[domain.SourceTypeArXiv])
	_, ok := tiers[domain.SourceTypePubMed]
	assert.False(t, ok, "disabled providers must not appear in the tier map")
}

func TestServerHTTPAddress(t *testing.T) {
	sc := ServerConfig{Host: "127.0.0.1", HTTPPort: 9000}
	assert.Equal(t, "127.0.0.1:9000", sc.HTTPAddress())
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "SCHOLARSEARCH_") {
			key, _, _ := strings.Cut(env, "=")
			os.Unsetenv(key)
		}
	}
}

// validConfig returns a valid configuration for testing.
func validConfig() *Config {
	provider := func(tier string) ProviderConfig {
		return ProviderConfig{
			Enabled:   true,
			BaseURL:   "https://api.example.org",
			Timeout:   30 * time.Second,
			RateLimit: 5,
			Burst:     5,
			Tier:      tier,
		}
	}

	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			HTTPPort: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "scholarsearch",
		},
		Providers: ProvidersConfig{
			SemanticScholar: provider("primary"),
			OpenAlex:        provider("primary"),
			ArXiv:           provider("secondary"),
			Crossref:        provider("secondary"),
			PubMed:          provider("supplemental"),
		},
		Resilience: ResilienceConfig{
			FailureThreshold:     5,
			Cooldown:             60 * time.Second,
			MaxAttempts:          3,
			RetryInitialInterval: time.Second,
		},
		Aggregator: AggregatorConfig{
			MinAcceptable:       20,
			BoostFactor:         2.0,
			MaxExtraRounds:      1,
			TargetBroad:         100,
			TargetSpecific:      60,
			TargetComprehensive: 150,
		},
		Dedup: DedupConfig{
			AuthorOverlapThreshold: 0.5,
			FuzzyTitleThreshold:    0.90,
		},
		Relevance: RelevanceConfig{
			RecallThreshold:  0.05,
			StrictThreshold:  0.60,
			RelaxedThreshold: 0.40,
			LexicalTopK:      50,
			BatchSize:        16,
			Concurrency:      4,
		},
		Reranker: RerankerConfig{
			Enabled: false,
			Model:   "cross-encoder/ms-marco-MiniLM-L-6-v2",
			Timeout: 30 * time.Second,
		},
		Quality: QualityConfig{
			RecencyWeight:   0.2,
			CitationsWeight: 0.3,
			VenueWeight:     0.1,
			RelevanceWeight: 0.4,
			MaxSourceShare:  0.5,
		},
		Cache: CacheConfig{
			Capacity: 256,
			TTL:      15 * time.Minute,
		},
	}
}
