package ingest

import (
	"context"
	"strconv"
	"strings"

	"github.com/cognicore/pem/pkg/pem/catalog"
)

// CrossWikiParser reads the CrossWiki p(e|m) dump:
// mention<TAB>total<TAB>id,count[,...]<TAB>id,count[,...]...
// Each candidate contributes its corpus count rather than +1.
type CrossWikiParser struct {
	path    string
	catalog catalog.Catalog
	opts    Options
}

// NewCrossWikiParser creates a parser for the file at path.
func NewCrossWikiParser(path string, cat catalog.Catalog, opts Options) *CrossWikiParser {
	return &CrossWikiParser{path: path, catalog: cat, opts: opts.withDefaults()}
}

// Name implements Parser.
func (p *CrossWikiParser) Name() string { return "crosswiki" }

// Parse implements Parser.
func (p *CrossWikiParser) Parse(ctx context.Context, emit EmitFunc) (Stats, error) {
	var stats Stats
	scanner := newLineScanner(p.Name(), p.opts, &stats)
	err := scanner.scanFile(ctx, p.path, func(line string) error {
		return p.parseLine(line, &stats, emit)
	})
	return stats, err
}

func (p *CrossWikiParser) parseLine(line string, stats *Stats, emit EmitFunc) error {
	parts := strings.Split(line, "\t")
	mention := Unquote(parts[0])
	if containsWikipedia(mention) {
		stats.Filtered++
		return nil
	}

	for _, col := range parts[min(2, len(parts)):] {
		id, count, ok := parseCandidate(col)
		if !ok {
			stats.Malformed++
			continue
		}

		id, name, ok := p.resolve(id)
		if !ok {
			stats.Unresolved++
			continue
		}
		if count < 1 {
			stats.Filtered++
			continue
		}

		stats.Triples++
		if err := emit(Triple{Mention: mention, EntityID: id, Entity: catalog.EntityKey(name), Count: count}); err != nil {
			return err
		}
	}
	return nil
}

// resolve maps an id to its canonical id and title, following one
// redirect.
func (p *CrossWikiParser) resolve(id int64) (int64, string, bool) {
	if name, ok := p.catalog.NameForID(id); ok {
		return id, name, true
	}
	target, ok := p.catalog.RedirectTarget(id)
	if !ok {
		return 0, "", false
	}
	name, ok := p.catalog.NameForID(target)
	return target, name, ok
}

// parseCandidate reads the leading "id,count" of a candidate column.
func parseCandidate(col string) (int64, int64, bool) {
	fields := strings.SplitN(col, ",", 3)
	if len(fields) < 2 {
		return 0, 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	count, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return id, count, true
}
