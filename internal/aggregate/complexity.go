// Package aggregate classifies queries, allocates per-provider fetch limits
// and collects records from all requested providers concurrently.
package aggregate

import (
	"strings"

	"github.com/helixir/scholarsearch/internal/domain"
)

// Classification thresholds. Short queries cast a wide net, long queries are
// treated as comprehensive literature pulls.
const (
	broadTokenMax         = 2
	comprehensiveTokenMin = 7
)

// Classify maps a query onto a complexity tier from its token count and
// specificity signals. Filters (year range, citation floor) and quoted
// phrases mark a short query as specific rather than broad.
func Classify(q domain.Query) domain.QueryComplexity {
	tokens := q.Tokens()

	if len(tokens) >= comprehensiveTokenMin {
		return domain.ComplexityComprehensive
	}
	if len(tokens) > broadTokenMax {
		return domain.ComplexitySpecific
	}

	if q.YearFrom != nil || q.YearTo != nil || q.MinCitations > 0 {
		return domain.ComplexitySpecific
	}
	if strings.Contains(q.Text, `"`) {
		return domain.ComplexitySpecific
	}

	return domain.ComplexityBroad
}

// TargetCounts is the final result-set size per complexity tier.
type TargetCounts struct {
	Broad         int
	Specific      int
	Comprehensive int
}

// DefaultTargetCounts returns the targets used when none are configured.
func DefaultTargetCounts() TargetCounts {
	return TargetCounts{
		Broad:         100,
		Specific:      60,
		Comprehensive: 150,
	}
}

// For returns the target for one complexity tier.
func (t TargetCounts) For(c domain.QueryComplexity) int {
	switch c {
	case domain.ComplexityBroad:
		return t.Broad
	case domain.ComplexityComprehensive:
		return t.Comprehensive
	default:
		return t.Specific
	}
}

// allocationTable maps complexity and provider tier to the per-call fetch
// limit. Higher-quality providers get larger limits.
var allocationTable = map[domain.QueryComplexity]map[domain.ProviderTier]int{
	domain.ComplexityBroad: {
		domain.ProviderTierPrimary:      40,
		domain.ProviderTierSecondary:    25,
		domain.ProviderTierSupplemental: 15,
	},
	domain.ComplexitySpecific: {
		domain.ProviderTierPrimary:      25,
		domain.ProviderTierSecondary:    15,
		domain.ProviderTierSupplemental: 10,
	},
	domain.ComplexityComprehensive: {
		domain.ProviderTierPrimary:      60,
		domain.ProviderTierSecondary:    40,
		domain.ProviderTierSupplemental: 25,
	},
}

// Allocation returns the fetch limit for one provider tier under one
// complexity classification.
func Allocation(c domain.QueryComplexity, tier domain.ProviderTier) int {
	if limits, ok := allocationTable[c]; ok {
		if limit, ok := limits[tier]; ok {
			return limit
		}
	}
	return allocationTable[domain.ComplexitySpecific][domain.ProviderTierSecondary]
}
