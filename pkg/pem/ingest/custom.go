package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cognicore/pem/pkg/pem/catalog"
)

// CustomParser reads user supplied counts from a JSON object of the form
// {"mention": {"Entity_Title": count, ...}, ...}. The file is decoded
// token by token, so mentions and entities are visited in file order
// without holding the whole object in memory.
type CustomParser struct {
	path    string
	catalog catalog.Catalog
	opts    Options
}

// NewCustomParser creates a parser for the JSON file at path.
func NewCustomParser(path string, cat catalog.Catalog, opts Options) *CustomParser {
	return &CustomParser{path: path, catalog: cat, opts: opts.withDefaults()}
}

// Name implements Parser.
func (p *CustomParser) Name() string { return "custom" }

// Parse implements Parser.
func (p *CustomParser) Parse(ctx context.Context, emit EmitFunc) (Stats, error) {
	var stats Stats

	f, err := os.Open(p.path)
	if err != nil {
		return stats, fmt.Errorf("open custom counts %s: %w", p.path, err)
	}
	defer f.Close()
	stats.Files++

	dec := json.NewDecoder(f)
	dec.UseNumber()
	if err := expectDelim(dec, '{'); err != nil {
		return stats, fmt.Errorf("decode custom counts %s: %w", p.path, err)
	}
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		mention, err := stringToken(dec)
		if err != nil {
			return stats, fmt.Errorf("decode custom counts %s: %w", p.path, err)
		}
		stats.Lines++
		if err := expectDelim(dec, '{'); err != nil {
			return stats, fmt.Errorf("decode custom counts %s: mention %q: %w", p.path, mention, err)
		}
		for dec.More() {
			title, err := stringToken(dec)
			if err != nil {
				return stats, fmt.Errorf("decode custom counts %s: %w", p.path, err)
			}
			var n json.Number
			if err := dec.Decode(&n); err != nil {
				return stats, fmt.Errorf("decode custom counts %s: mention %q: %w", p.path, mention, err)
			}
			if err := p.accept(mention, title, n, &stats, emit); err != nil {
				return stats, err
			}
		}
		if err := expectDelim(dec, '}'); err != nil {
			return stats, fmt.Errorf("decode custom counts %s: %w", p.path, err)
		}
	}
	return stats, expectDelim(dec, '}')
}

func (p *CustomParser) accept(mention, title string, n json.Number, stats *Stats, emit EmitFunc) error {
	count, err := n.Int64()
	if err != nil {
		stats.Malformed++
		return nil
	}
	if count < 1 {
		stats.Filtered++
		return nil
	}

	name := p.catalog.NormalizeTitle(title)
	if _, ok := p.catalog.IDForName(name); !ok {
		stats.Unresolved++
		return nil
	}

	stats.Triples++
	return emit(Triple{Mention: mention, Entity: catalog.EntityKey(name), Count: count})
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return s, nil
}
