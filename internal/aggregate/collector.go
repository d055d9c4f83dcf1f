package aggregate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/scholarsearch/internal/domain"
	"github.com/helixir/scholarsearch/internal/observability"
	"github.com/helixir/scholarsearch/internal/sources"
)

// Config holds the aggregator settings.
type Config struct {
	// Tiers assigns a quality tier to every configured provider. A
	// provider without a tier is a configuration error at construction,
	// never a silent default.
	Tiers map[domain.SourceType]domain.ProviderTier

	// Targets is the final result count per complexity tier.
	Targets TargetCounts

	// MinAcceptable is the unique-record count below which boosted
	// re-fetch rounds are issued.
	MinAcceptable int

	// BoostFactor multiplies the fetch limit of high-yield providers in
	// extra rounds.
	BoostFactor float64

	// MaxExtraRounds bounds the number of boosted re-fetch rounds.
	MaxExtraRounds int
}

// applyDefaults fills zero config fields.
func (c *Config) applyDefaults() {
	if c.Targets == (TargetCounts{}) {
		c.Targets = DefaultTargetCounts()
	}
	if c.MinAcceptable <= 0 {
		c.MinAcceptable = 20
	}
	if c.BoostFactor <= 1 {
		c.BoostFactor = 2.0
	}
	if c.MaxExtraRounds < 0 {
		c.MaxExtraRounds = 0
	} else if c.MaxExtraRounds == 0 {
		c.MaxExtraRounds = 1
	}
}

// Result is the outcome of one Collect run.
type Result struct {
	// Records is the merged sequence from all providers, unique by record
	// ID, in provider-then-arrival order. Cross-provider deduplication by
	// DOI and title happens downstream.
	Records []domain.Record

	// Reports maps each attempted provider to its fetch outcome across
	// all rounds.
	Reports map[domain.SourceType]domain.SourceReport

	// Complexity is the classification that drove the allocation.
	Complexity domain.QueryComplexity

	// Target is the final result count requested of the pipeline.
	Target int

	// ExtraRounds is how many boosted rounds were issued.
	ExtraRounds int
}

// Aggregator fans a query out to all requested providers through the source
// registry and merges the responses.
type Aggregator struct {
	registry *sources.Registry
	cfg      Config
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// New creates an Aggregator. Every enabled source in the registry must have
// a tier in cfg.Tiers; an unmapped provider is a configuration error. The
// metrics parameter may be nil (metrics recording will be skipped).
func New(registry *sources.Registry, cfg Config, metrics *observability.Metrics, logger zerolog.Logger) (*Aggregator, error) {
	cfg.applyDefaults()

	for _, src := range registry.Enabled() {
		if _, ok := cfg.Tiers[src.SourceType()]; !ok {
			return nil, fmt.Errorf("provider %s has no tier mapping", src.SourceType())
		}
	}

	return &Aggregator{
		registry: registry,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.With().Str("component", "aggregate").Logger(),
	}, nil
}

// fetchOutcome is one provider's result within a round.
type fetchOutcome struct {
	source  domain.SourceType
	records []domain.Record
	report  domain.SourceReport
}

// Collect classifies the query, fetches from every requested provider
// concurrently and merges the responses. A provider failure never cancels
// its siblings; it is recorded in that provider's report. When the unique
// count falls short of the minimum, up to MaxExtraRounds boosted rounds are
// issued to high-yield providers, stopping early when a round adds nothing
// new.
func (a *Aggregator) Collect(ctx context.Context, query domain.Query) (*Result, error) {
	srcs := a.registry.Resolve(query.Sources)
	if len(srcs) == 0 {
		return nil, fmt.Errorf("%w: no enabled providers for query", domain.ErrAllProvidersFailed)
	}

	complexity := Classify(query)
	result := &Result{
		Reports:    make(map[domain.SourceType]domain.SourceReport, len(srcs)),
		Complexity: complexity,
		Target:     a.cfg.Targets.For(complexity),
	}

	seen := make(map[string]bool)
	offsets := make(map[domain.SourceType]int, len(srcs))
	limits := make(map[domain.SourceType]int, len(srcs))
	for _, src := range srcs {
		limits[src.SourceType()] = Allocation(complexity, a.cfg.Tiers[src.SourceType()])
	}

	round := srcs
	for roundNum := 0; ; roundNum++ {
		outcomes := a.fetchRound(ctx, query, round, limits, offsets)

		added := 0
		for _, out := range outcomes {
			mergeReport(result.Reports, out.source, out.report)
			offsets[out.source] += len(out.records)
			for _, rec := range out.records {
				if rec.ID == "" || seen[rec.ID] {
					continue
				}
				seen[rec.ID] = true
				result.Records = append(result.Records, rec)
				added++
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if len(result.Records) >= a.cfg.MinAcceptable {
			break
		}
		if roundNum >= a.cfg.MaxExtraRounds {
			break
		}
		if roundNum > 0 && added == 0 {
			break
		}

		round = a.highYieldSources(srcs, result.Reports)
		if len(round) == 0 {
			break
		}
		for _, src := range round {
			limits[src.SourceType()] = int(float64(limits[src.SourceType()]) * a.cfg.BoostFactor)
		}
		result.ExtraRounds++

		a.logger.Info().
			Int("round", roundNum+1).
			Int("unique_records", len(result.Records)).
			Int("min_acceptable", a.cfg.MinAcceptable).
			Int("providers", len(round)).
			Msg("issuing boosted re-fetch round")
	}

	if len(result.Records) == 0 && allFailed(result.Reports) {
		return nil, fmt.Errorf("%w: all %d providers failed", domain.ErrAllProvidersFailed, len(srcs))
	}

	return result, nil
}

// fetchRound issues one concurrent fetch per source and waits for all of
// them to settle.
func (a *Aggregator) fetchRound(
	ctx context.Context,
	query domain.Query,
	srcs []sources.Source,
	limits map[domain.SourceType]int,
	offsets map[domain.SourceType]int,
) []fetchOutcome {
	outcomeChan := make(chan fetchOutcome, len(srcs))
	var wg sync.WaitGroup

	for _, src := range srcs {
		wg.Add(1)
		go func(s sources.Source) {
			defer wg.Done()

			st := s.SourceType()
			params := sources.FetchParams{
				Query:        query.Text,
				Limit:        limits[st],
				Offset:       offsets[st],
				YearFrom:     query.YearFrom,
				YearTo:       query.YearTo,
				MinCitations: query.MinCitations,
			}

			start := time.Now()
			fetched, err := s.Fetch(ctx, params)
			elapsed := time.Since(start)

			flog := observability.WithSearchContext(a.logger, query.Text, string(st))
			report := domain.SourceReport{
				Duration:   elapsed,
				DurationMs: elapsed.Milliseconds(),
			}
			var records []domain.Record
			if err != nil {
				report.Err = err.Error()
				flog.Warn().
					Dur("duration", elapsed).
					Err(err).
					Msg("provider fetch failed")
			} else {
				records = fetched.Records
				report.Papers = len(fetched.Records)
				if fetched.Skipped > 0 {
					flog.Debug().
						Int("skipped", fetched.Skipped).
						Msg("provider returned malformed items")
				}
			}
			if a.metrics != nil {
				a.metrics.RecordFetch(string(st), elapsed.Seconds(), report.Papers, err)
				if err == nil {
					a.metrics.RecordSkipped(string(st), fetched.Skipped)
				}
			}

			outcomeChan <- fetchOutcome{source: st, records: records, report: report}
		}(src)
	}

	go func() {
		wg.Wait()
		close(outcomeChan)
	}()

	outcomes := make([]fetchOutcome, 0, len(srcs))
	for out := range outcomeChan {
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// highYieldSources picks the providers eligible for a boosted round: the
// top-yielding half of those that returned records, at least one.
func (a *Aggregator) highYieldSources(srcs []sources.Source, reports map[domain.SourceType]domain.SourceReport) []sources.Source {
	yielding := make([]sources.Source, 0, len(srcs))
	for _, src := range srcs {
		if reports[src.SourceType()].Papers > 0 {
			yielding = append(yielding, src)
		}
	}
	if len(yielding) == 0 {
		return nil
	}

	sort.SliceStable(yielding, func(i, j int) bool {
		return reports[yielding[i].SourceType()].Papers > reports[yielding[j].SourceType()].Papers
	})

	keep := (len(yielding) + 1) / 2
	return yielding[:keep]
}

// mergeReport folds a round's report into the provider's accumulated
// report. Counts and durations add up; the last error wins.
func mergeReport(reports map[domain.SourceType]domain.SourceReport, st domain.SourceType, r domain.SourceReport) {
	acc := reports[st]
	acc.Papers += r.Papers
	acc.Duration += r.Duration
	acc.DurationMs += r.DurationMs
	if r.Err != "" {
		acc.Err = r.Err
	}
	reports[st] = acc
}

func allFailed(reports map[domain.SourceType]domain.SourceReport) bool {
	for _, r := range reports {
		if !r.Failed() {
			return false
		}
	}
	return len(reports) > 0
}
