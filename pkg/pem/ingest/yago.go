package ingest

import (
	"context"
	"strings"

	"github.com/cognicore/pem/pkg/pem/catalog"
)

// YagoParser reads a YAGO means file: "mention"<TAB>Entity_Title.
// Every distinct (mention, entity) pair is emitted exactly once with
// count 1, whatever the number of repeats in the file.
type YagoParser struct {
	path    string
	catalog catalog.Catalog
	opts    Options
}

// NewYagoParser creates a parser for the means file at path.
func NewYagoParser(path string, cat catalog.Catalog, opts Options) *YagoParser {
	return &YagoParser{path: path, catalog: cat, opts: opts.withDefaults()}
}

// Name implements Parser.
func (p *YagoParser) Name() string { return "yago" }

// Parse implements Parser.
func (p *YagoParser) Parse(ctx context.Context, emit EmitFunc) (Stats, error) {
	var stats Stats
	seen := make(map[string]struct{})

	scanner := newLineScanner(p.Name(), p.opts, &stats)
	err := scanner.scanFile(ctx, p.path, func(line string) error {
		parts := strings.Split(Unquote(strings.TrimRight(line, " \t\r\n\v\f")), "\t")
		if len(parts) < 2 {
			stats.Malformed++
			return nil
		}

		mention := strings.TrimSpace(trimOne(parts[0]))
		name := p.catalog.NormalizeTitle(CleanYagoTitle(parts[1]))
		if _, ok := p.catalog.IDForName(name); !ok {
			stats.Unresolved++
			return nil
		}

		entity := catalog.EntityKey(name)
		key := mention + "\x00" + entity
		if _, dup := seen[key]; dup {
			return nil
		}
		seen[key] = struct{}{}

		stats.Triples++
		return emit(Triple{Mention: mention, Entity: entity, Count: 1})
	})
	return stats, err
}

// CleanYagoTitle undoes the escaping of a YAGO entity column: &amp; and
// &quot; entities and \uXXXX escapes.
func CleanYagoTitle(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	return DecodeUnicodeEscapes(s)
}
