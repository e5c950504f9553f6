package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cognicore/pem/pkg/pem"
	"github.com/cognicore/pem/pkg/pem/config"
	"github.com/cognicore/pem/pkg/pem/export"
	"github.com/cognicore/pem/pkg/pem/ingest"
	"github.com/cognicore/pem/pkg/pem/store"
	"github.com/cognicore/pem/pkg/pem/store/memstore"
	"github.com/cognicore/pem/pkg/pem/store/sqlite"
)

// secondarySuffix keeps the secondary sqlite counts next to, but apart
// from, the wiki counts.
const secondarySuffix = ".custom"

// openBuilder loads the catalog and wires parsers, stores and the export
// sink into a Builder. withCustom selects whether the configured
// secondary corpus takes part. The returned cleanup closes everything.
func (a *app) openBuilder(ctx context.Context, withCustom bool) (*pem.Builder, func() error, error) {
	cfg := a.cfg
	comps, err := (&config.Loader{Config: cfg, Logger: a.logger}).Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	popts := ingest.Options{Logger: a.logger, ProgressEvery: cfg.Log.ProgressEvery}
	wiki := []ingest.Parser{
		ingest.NewAnchorParser(cfg.Path(cfg.Wiki.AnchorDir), comps.Catalog, popts),
		ingest.NewCrossWikiParser(cfg.Path(cfg.Wiki.CrossWikiPath), comps.Catalog, popts),
	}

	var custom ingest.Parser
	if withCustom {
		custom, err = customParser(cfg, comps, popts)
		if err != nil {
			comps.Close()
			return nil, nil, err
		}
	}

	primary, err := a.openStore(ctx, cfg.Accumulator.Path)
	if err != nil {
		comps.Close()
		return nil, nil, err
	}
	var secondary store.Store
	if custom != nil {
		secondary, err = a.openStore(ctx, cfg.Accumulator.Path+secondarySuffix)
		if err != nil {
			primary.Close()
			comps.Close()
			return nil, nil, err
		}
	}
	sink, err := a.openSink(ctx)
	if err != nil {
		if secondary != nil {
			secondary.Close()
		}
		primary.Close()
		comps.Close()
		return nil, nil, err
	}

	b := pem.New(pem.Options{
		Store:          primary,
		SecondaryStore: secondary,
		Sink:           sink,
		Wiki:           wiki,
		Custom:         custom,
		Prior:          cfg.Prior,
		Weighting:      cfg.Custom.Weighting,
		Load:           export.LoadOptions{BatchSize: cfg.Export.BatchSize, Reset: cfg.Export.Reset},
		Metrics:        a.metrics.Build,
		Logger:         a.logger,
	})
	cleanup := func() error {
		return errors.Join(b.Close(), comps.Close())
	}
	return b, cleanup, nil
}

// customParser builds the parser of the configured secondary corpus, nil
// for the "none" source.
func customParser(cfg *config.Config, comps *config.Components, opts ingest.Options) (ingest.Parser, error) {
	switch cfg.Custom.Source {
	case config.SourceNone:
		return nil, nil
	case config.SourceYago:
		return ingest.NewYagoParser(cfg.Path(cfg.Custom.YagoPath), comps.Catalog, opts), nil
	case config.SourceClueWeb:
		if comps.Freebase == nil {
			return nil, errors.New("clueweb source requires the freebase mapping")
		}
		return ingest.NewClueWebParser(cfg.Path(cfg.Custom.ClueWebDir), comps.Catalog, comps.Freebase, opts), nil
	case config.SourceJSON:
		return ingest.NewCustomParser(cfg.Path(cfg.Custom.JSONPath), comps.Catalog, opts), nil
	default:
		return nil, fmt.Errorf("unknown custom source %q", cfg.Custom.Source)
	}
}

// openStore opens an accumulation store of the configured backend; path
// is only used by sqlite.
func (a *app) openStore(ctx context.Context, path string) (store.Store, error) {
	cfg := a.cfg
	if cfg.Accumulator.Backend != config.BackendSQLite {
		return memstore.New(), nil
	}
	st, err := sqlite.OpenSQLite(ctx, cfg.Path(path), sqlite.Options{
		BatchSize: cfg.Accumulator.BatchSize,
		Reset:     cfg.Accumulator.Reset,
		Logger:    a.logger,
		OnFlush:   a.metrics.Build.ObserveFlush,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Opened accumulation store", zap.String("path", cfg.Path(path)))
	return st, nil
}

// openSink connects to the lookup database.
func (a *app) openSink(ctx context.Context) (*export.GormSink, error) {
	cfg := a.cfg
	return export.Open(ctx, export.Options{
		Driver: cfg.Export.Driver,
		DSN:    cfg.ExportDSN(),
		Table:  cfg.Export.Table,
		Logger: a.logger,
		OnRows: a.metrics.Build.AddExportRows,
		OnSkip: a.metrics.Build.AddExportSkipped,
	})
}
