// Package pem builds the mention to entity prior table p(e|m) from
// Wikipedia anchors, CrossWiki statistics and an optional secondary
// corpus, and loads it into a lookup store.
package pem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/pem/pkg/pem/analytics"
	"github.com/cognicore/pem/pkg/pem/export"
	"github.com/cognicore/pem/pkg/pem/ingest"
	"github.com/cognicore/pem/pkg/pem/internalerr"
	"github.com/cognicore/pem/pkg/pem/metrics"
	"github.com/cognicore/pem/pkg/pem/prior"
	"github.com/cognicore/pem/pkg/pem/store"
	"github.com/cognicore/pem/pkg/pem/store/memstore"
)

// Secondary distribution weighting
const (
	WeightingUniform = "uniform"
	WeightingCounts  = "counts"
)

// Builder is the prior table facade
type Builder struct {
	store     store.Store
	secondary store.Store
	sink      export.Sink
	wiki      []ingest.Parser
	custom    ingest.Parser
	calc      *prior.Calculator
	digits    int
	weighting string
	load      export.LoadOptions
	metrics   *metrics.BuildMetrics
	logger    *zap.Logger

	table *prior.Table
	stats map[string]ingest.Stats
	merge prior.MergeStats
}

// Options configures a Builder
type Options struct {
	// Store accumulates the Wikipedia and CrossWiki counts.
	Store store.Store
	// SecondaryStore accumulates the custom corpus; defaults to memory.
	SecondaryStore store.Store
	Sink           export.Sink
	// Wiki parsers run in order into Store.
	Wiki []ingest.Parser
	// Custom is the optional secondary corpus.
	Custom    ingest.Parser
	Prior     prior.Config
	Weighting string
	Load      export.LoadOptions
	Metrics   *metrics.BuildMetrics
	Logger    *zap.Logger
}

// New creates a Builder with the given dependencies
func New(opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SecondaryStore == nil {
		opts.SecondaryStore = memstore.New()
	}
	if opts.Weighting == "" {
		opts.Weighting = WeightingUniform
	}
	if opts.Prior.RoundDigits <= 0 {
		opts.Prior.RoundDigits = prior.DefaultRoundDigits
	}
	return &Builder{
		store:     opts.Store,
		secondary: opts.SecondaryStore,
		sink:      opts.Sink,
		wiki:      opts.Wiki,
		custom:    opts.Custom,
		calc:      prior.NewCalculator(opts.Prior),
		digits:    opts.Prior.RoundDigits,
		weighting: opts.Weighting,
		load:      opts.Load,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		stats:     make(map[string]ingest.Stats),
	}
}

// Close cleanly shuts down the stores and the sink
func (b *Builder) Close() error {
	var errs []error
	if b.store != nil {
		errs = append(errs, b.store.Close())
	}
	errs = append(errs, b.secondary.Close())
	if b.sink != nil {
		errs = append(errs, b.sink.Close())
	}
	return errors.Join(errs...)
}

// Table returns the current prior table, nil before ComputeWiki.
func (b *Builder) Table() *prior.Table { return b.table }

// Stats returns the parser statistics collected so far, by corpus.
func (b *Builder) Stats() map[string]ingest.Stats {
	out := make(map[string]ingest.Stats, len(b.stats))
	for k, v := range b.stats {
		out[k] = v
	}
	return out
}

// MergeStats reports what the last ComputeCustom changed.
func (b *Builder) MergeStats() prior.MergeStats { return b.merge }

// ComputeWiki accumulates every wiki corpus and derives the primary
// prior table from the combined counts.
func (b *Builder) ComputeWiki(ctx context.Context) (ingest.Stats, error) {
	var total ingest.Stats
	if b.store == nil {
		return total, fmt.Errorf("%w: no accumulation store", internalerr.ErrInvalidInput)
	}
	if len(b.wiki) == 0 {
		return total, fmt.Errorf("%w: wiki corpora", internalerr.ErrNoSource)
	}

	pipeline := ingest.NewPipeline(b.store, b.metrics, b.logger)
	for _, p := range b.wiki {
		stats, err := pipeline.Run(ctx, p)
		b.stats[p.Name()] = stats
		total.Add(stats)
		if err != nil {
			return total, err
		}
	}
	if err := b.store.Finalize(ctx); err != nil {
		return total, fmt.Errorf("finalize counts: %w", err)
	}

	start := time.Now()
	table, err := prior.BuildTable(ctx, b.store, b.calc.Compute)
	if err != nil {
		return total, fmt.Errorf("compute wiki prior: %w", err)
	}
	b.table = table
	b.metrics.SetPriorMentions(table.Len())
	b.logger.Info("Computed wiki prior",
		zap.Int("mentions", table.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return total, nil
}

// ComputeCustom accumulates the secondary corpus, normalizes it and
// merges it into the wiki prior table. Every secondary mention also adds
// one to its total frequency.
func (b *Builder) ComputeCustom(ctx context.Context) (ingest.Stats, error) {
	var stats ingest.Stats
	if b.custom == nil {
		return stats, fmt.Errorf("%w: custom corpus", internalerr.ErrNoSource)
	}
	if b.table == nil {
		return stats, fmt.Errorf("%w: wiki prior must be computed before merging", internalerr.ErrInvalidInput)
	}

	stats, err := ingest.NewPipeline(b.secondary, b.metrics, b.logger).Run(ctx, b.custom)
	b.stats[b.custom.Name()] = stats
	if err != nil {
		return stats, err
	}
	if err := b.secondary.Finalize(ctx); err != nil {
		return stats, fmt.Errorf("finalize %s counts: %w", b.custom.Name(), err)
	}

	compute := b.calc.Uniform
	if b.weighting == WeightingCounts {
		compute = b.calc.Compute
	}
	secondary, err := prior.BuildTable(ctx, b.secondary, compute)
	if err != nil {
		return stats, fmt.Errorf("compute %s prior: %w", b.custom.Name(), err)
	}

	b.merge = prior.Merge(b.table, secondary, b.digits)
	err = secondary.Each(func(mention string, _ prior.Distribution) error {
		return b.store.AddMentionFreq(ctx, mention, 1)
	})
	if err != nil {
		return stats, fmt.Errorf("update mention frequencies: %w", err)
	}
	if err := b.store.Flush(ctx); err != nil {
		return stats, err
	}

	b.metrics.SetPriorMentions(b.table.Len())
	b.logger.Info("Merged custom prior",
		zap.String("corpus", b.custom.Name()),
		zap.Int("secondary_mentions", secondary.Len()),
		zap.Int("inserted", b.merge.Inserted),
		zap.Int("updated", b.merge.Updated),
		zap.Int("capped", b.merge.Capped),
		zap.Int("mentions", b.table.Len()))
	return stats, nil
}

// Store loads the prior table into the sink. Returns the rows written.
func (b *Builder) Store(ctx context.Context) (int, error) {
	if b.sink == nil {
		return 0, fmt.Errorf("%w: no export sink", internalerr.ErrInvalidInput)
	}
	if b.table == nil {
		return 0, fmt.Errorf("%w: nothing computed to store", internalerr.ErrInvalidInput)
	}
	n, err := b.sink.Load(ctx, b.table, b.store, b.load)
	if err != nil {
		return n, fmt.Errorf("store prior table: %w", err)
	}
	return n, nil
}

// Summary analyzes the current table.
func (b *Builder) Summary(ctx context.Context) (analytics.Stats, error) {
	if b.table == nil {
		return analytics.Stats{}, fmt.Errorf("%w: nothing computed", internalerr.ErrInvalidInput)
	}
	return analytics.AnalyzeTable(ctx, b.table, b.store)
}

// Run computes the wiki prior, merges the custom corpus when one is
// configured, stores the result and records the run.
func (b *Builder) Run(ctx context.Context) (*export.Run, error) {
	source := "none"
	if b.custom != nil {
		source = b.custom.Name()
	}
	run := export.NewRun(time.Now(), source)

	if _, err := b.ComputeWiki(ctx); err != nil {
		return nil, err
	}
	if b.custom != nil {
		if _, err := b.ComputeCustom(ctx); err != nil {
			return nil, err
		}
	}

	summary, err := b.Summary(ctx)
	if err != nil {
		return nil, err
	}
	b.logger.Info("Prior table summary",
		zap.Int64("mentions", summary.Mentions),
		zap.Int64("ambiguous", summary.Ambiguous),
		zap.Float64("mean_candidates", summary.MeanCandidates),
		zap.Float64("mean_entropy", summary.MeanEntropy))

	if _, err := b.Store(ctx); err != nil {
		return nil, err
	}

	run.FinishedAt = time.Now()
	run.Mentions = b.table.Len()
	statsJSON, err := json.Marshal(b.stats)
	if err != nil {
		return nil, err
	}
	run.Stats = string(statsJSON)
	if err := b.sink.RecordRun(ctx, run); err != nil {
		return nil, err
	}
	b.logger.Info("Recorded run", zap.String("run_id", run.ID), zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)))
	return run, nil
}
