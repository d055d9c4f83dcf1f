// Package domain provides domain models and business logic for the scholar search service.
package domain

// SourceType represents the external provider that supplied a record.
type SourceType string

const (
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
	SourceTypeOpenAlex        SourceType = "openalex"
	SourceTypeArXiv           SourceType = "arxiv"
	SourceTypeCrossref        SourceType = "crossref"
	SourceTypePubMed          SourceType = "pubmed"
)

// AllSourceTypes lists every source type known to the service, in the order
// used for deterministic iteration (config validation, cache keys).
func AllSourceTypes() []SourceType {
	return []SourceType{
		SourceTypeSemanticScholar,
		SourceTypeOpenAlex,
		SourceTypeArXiv,
		SourceTypeCrossref,
		SourceTypePubMed,
	}
}

// RelevanceTier identifies which stage of the relevance fallback ladder
// produced the final result set. Callers can distinguish "neural worked",
// "neural relaxed" and "neural unavailable, lexical-only".
type RelevanceTier string

const (
	// TierStrict means the neural reranker ran and the strict threshold
	// yielded a non-empty set.
	TierStrict RelevanceTier = "strict"

	// TierRelaxed means the strict threshold yielded nothing and the
	// moderate threshold was applied instead.
	TierRelaxed RelevanceTier = "relaxed"

	// TierLexical means the neural stage yielded nothing (or was
	// unavailable) and the top lexical-score records were used directly.
	TierLexical RelevanceTier = "lexical"
)

// QueryComplexity classifies a query for per-provider fetch allocation.
type QueryComplexity string

const (
	ComplexityBroad         QueryComplexity = "broad"
	ComplexitySpecific      QueryComplexity = "specific"
	ComplexityComprehensive QueryComplexity = "comprehensive"
)

// ProviderTier ranks providers by result quality. Higher-quality providers
// receive larger per-call fetch limits from the aggregator.
type ProviderTier int

const (
	// ProviderTierPrimary providers return well-curated metadata and get the
	// largest allocations.
	ProviderTierPrimary ProviderTier = iota + 1

	// ProviderTierSecondary providers are reliable but narrower in coverage.
	ProviderTierSecondary

	// ProviderTierSupplemental providers fill gaps and get the smallest
	// allocations.
	ProviderTierSupplemental
)

// String returns a human-readable name for the provider tier.
func (t ProviderTier) String() string {
	switch t {
	case ProviderTierPrimary:
		return "primary"
	case ProviderTierSecondary:
		return "secondary"
	case ProviderTierSupplemental:
		return "supplemental"
	default:
		return "unknown"
	}
}

// ParseProviderTier converts a configuration string into a ProviderTier.
// The boolean is false for unknown names.
func ParseProviderTier(s string) (ProviderTier, bool) {
	switch s {
	case "primary":
		return ProviderTierPrimary, true
	case "secondary":
		return ProviderTierSecondary, true
	case "supplemental":
		return ProviderTierSupplemental, true
	default:
		return 0, false
	}
}
