package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/cognicore/pem/pkg/pem/catalog"
)

// Loader loads the catalog files named by a Config and constructs the
// lookup components.
type Loader struct {
	Config *Config
	Logger *zap.Logger
}

// Components holds the loaded collaborators.
type Components struct {
	Catalog *catalog.Memory
	// Freebase is only opened for the ClueWeb source.
	Freebase *catalog.FreebaseMapper
}

// Close releases the components that hold resources.
func (c *Components) Close() error {
	if c.Freebase != nil {
		return c.Freebase.Close()
	}
	return nil
}

// Load reads the catalog and opens the freebase mapping when needed.
func (l *Loader) Load(ctx context.Context) (*Components, error) {
	if l.Config == nil {
		return nil, errors.New("loader: config is required")
	}
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := l.Config

	cat, stats, err := catalog.LoadTSV(cfg.Path(cfg.Catalog.NamesPath), cfg.Path(cfg.Catalog.RedirectsPath))
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("Loaded entity catalog",
		zap.String("entities", humanize.Comma(int64(stats.Entities))),
		zap.String("redirects", humanize.Comma(int64(stats.Redirects))),
		zap.Int("skipped", stats.Skipped))

	comp := &Components{Catalog: cat}
	if cfg.Custom.Source == SourceClueWeb {
		fb, err := catalog.OpenFreebase(ctx, cfg.Path(cfg.Catalog.FreebaseDB))
		if err != nil {
			return nil, fmt.Errorf("open freebase mapping: %w", err)
		}
		comp.Freebase = fb
	}
	return comp, nil
}
