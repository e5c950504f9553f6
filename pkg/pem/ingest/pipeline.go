package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/cognicore/pem/pkg/pem/metrics"
	"github.com/cognicore/pem/pkg/pem/store"
)

// Pipeline orchestrates the accumulation flow:
// corpus → parser → validated triples → store
type Pipeline struct {
	store   store.Store
	metrics *metrics.BuildMetrics
	logger  *zap.Logger
}

// NewPipeline creates a pipeline writing into st. m may be nil.
func NewPipeline(st store.Store, m *metrics.BuildMetrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:   st,
		metrics: m,
		logger:  logger.Named("ingest"),
	}
}

// Run parses one corpus into the store and flushes it. The returned
// stats are those of this run only.
func (p *Pipeline) Run(ctx context.Context, parser Parser) (Stats, error) {
	start := time.Now()
	p.logger.Info("Computing counts", zap.String("corpus", parser.Name()))

	stats, err := parser.Parse(ctx, func(t Triple) error {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%s: mention %q: %w", parser.Name(), t.Mention, err)
		}
		return p.store.Accumulate(ctx, t.Mention, t.Entity, t.Count)
	})
	p.metrics.RecordParse(parser.Name(), stats.Lines, stats.Triples, stats.Dropped())
	if err != nil {
		return stats, fmt.Errorf("parse %s: %w", parser.Name(), err)
	}
	if err := p.store.Flush(ctx); err != nil {
		return stats, fmt.Errorf("flush %s counts: %w", parser.Name(), err)
	}

	p.logger.Info("Computed counts",
		zap.String("corpus", parser.Name()),
		zap.String("lines", humanize.Comma(stats.Lines)),
		zap.String("triples", humanize.Comma(stats.Triples)),
		zap.Int64("skipped_documents", stats.SkippedDocuments),
		zap.Int64("filtered", stats.Filtered),
		zap.Int64("disambiguation_errors", stats.DisambiguationErrors),
		zap.Int64("unresolved", stats.Unresolved),
		zap.Int64("malformed", stats.Malformed),
		zap.Duration("elapsed", time.Since(start)))
	return stats, nil
}
