package ingest

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// DefaultProgressEvery is the line interval between progress log lines.
const DefaultProgressEvery = 5000000

// Triple is one accepted mention/entity observation.
type Triple struct {
	Mention  string
	EntityID int64  // catalog id when the corpus carries one, else 0
	Entity   string // catalog title, spaces replaced by underscores
	Count    int64
}

// Validate checks that the triple can be accumulated.
func (t Triple) Validate() error {
	if strings.TrimSpace(t.Entity) == "" {
		return errors.New("triple entity is required")
	}
	if t.Count < 1 {
		return errors.New("triple count must be positive")
	}
	return nil
}

// EmitFunc receives accepted triples. Returning an error aborts parsing.
type EmitFunc func(Triple) error

// Parser streams triples out of one corpus.
type Parser interface {
	Name() string
	Parse(ctx context.Context, emit EmitFunc) (Stats, error)
}

// Options are shared by all parsers.
type Options struct {
	Logger        *zap.Logger
	ProgressEvery int64
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
	return o
}

// Stats counts what a parser saw and what it dropped.
type Stats struct {
	Files                int64
	Lines                int64
	Documents            int64
	SkippedDocuments     int64
	Triples              int64
	Filtered             int64 // meta links, list pages, fragments, empty mentions
	DisambiguationErrors int64 // anchor targets missing from the catalog
	Unresolved           int64 // ids or titles that did not resolve
	Malformed            int64
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Files += o.Files
	s.Lines += o.Lines
	s.Documents += o.Documents
	s.SkippedDocuments += o.SkippedDocuments
	s.Triples += o.Triples
	s.Filtered += o.Filtered
	s.DisambiguationErrors += o.DisambiguationErrors
	s.Unresolved += o.Unresolved
	s.Malformed += o.Malformed
}

// Dropped breaks the dropped observations down by reason.
func (s Stats) Dropped() map[string]int64 {
	return map[string]int64{
		"filtered":       s.Filtered,
		"disambiguation": s.DisambiguationErrors,
		"unresolved":     s.Unresolved,
		"malformed":      s.Malformed,
	}
}

func containsWikipedia(s string) bool {
	return strings.Contains(s, "Wikipedia") || strings.Contains(s, "wikipedia")
}
