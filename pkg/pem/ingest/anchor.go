package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/cognicore/pem/pkg/pem/catalog"
)

// Delimiters of the anchor markup in extracted Wikipedia text.
const (
	docMarker   = `<doc id="`
	anchorOpen  = `<a href="`
	targetClose = `">`
	anchorClose = `</a>`
	wiktPrefix  = "wikt:"
)

// AnchorParser extracts hyperlink mentions from a directory of extracted
// Wikipedia text files (one <doc id="..."> block per article).
type AnchorParser struct {
	dir     string
	catalog catalog.Catalog
	opts    Options
}

// NewAnchorParser creates a parser over every regular file in dir.
func NewAnchorParser(dir string, cat catalog.Catalog, opts Options) *AnchorParser {
	return &AnchorParser{dir: dir, catalog: cat, opts: opts.withDefaults()}
}

// Name implements Parser.
func (p *AnchorParser) Name() string { return "wikipedia" }

// Parse implements Parser. Documents must arrive with increasing ids; a
// document whose id is not greater than the last one is skipped entirely.
func (p *AnchorParser) Parse(ctx context.Context, emit EmitFunc) (Stats, error) {
	var stats Stats

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return stats, fmt.Errorf("list anchor files in %s: %w", p.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		lastID   int64 = -1
		skipping bool
	)
	scanner := newLineScanner(p.Name(), p.opts, &stats)
	for _, name := range names {
		err := scanner.scanFile(ctx, filepath.Join(p.dir, name), func(line string) error {
			if strings.Contains(line, docMarker) {
				id, ok := parseDocID(line)
				switch {
				case !ok:
					stats.Malformed++
					stats.SkippedDocuments++
					skipping = true
				case id <= lastID:
					stats.SkippedDocuments++
					skipping = true
				default:
					stats.Documents++
					skipping = false
					lastID = id
				}
				return nil
			}
			if skipping {
				return nil
			}
			return p.parseLine(line, &stats, emit)
		})
		if err != nil {
			return stats, err
		}
	}

	p.opts.Logger.Info("Done computing Wikipedia counts",
		zap.Int64("documents", stats.Documents),
		zap.Int64("valid_hyperlinks", stats.Triples),
		zap.Int64("disambiguation_errors", stats.DisambiguationErrors))
	return stats, nil
}

func (p *AnchorParser) parseLine(line string, stats *Stats, emit EmitFunc) error {
	for _, sp := range ScanAnchors(Unquote(line)) {
		if sp.Mention == "" || containsWikipedia(sp.Mention) {
			stats.Filtered++
			continue
		}

		target := p.catalog.NormalizeTitle(strings.TrimPrefix(sp.Target, wiktPrefix))
		if strings.HasPrefix(target, "List of ") || strings.Contains(target, "#") {
			stats.Filtered++
			continue
		}

		id, ok := p.catalog.IDForName(target)
		if !ok {
			stats.DisambiguationErrors++
			continue
		}
		name, ok := p.catalog.NameForID(id)
		if !ok {
			stats.Unresolved++
			continue
		}

		stats.Triples++
		if err := emit(Triple{Mention: sp.Mention, EntityID: id, Entity: catalog.EntityKey(name), Count: 1}); err != nil {
			return err
		}
	}
	return nil
}

// Span is one hyperlink found by ScanAnchors.
type Span struct {
	Target  string
	Mention string
}

// ScanAnchors finds hyperlinks positionally, left to right. After each
// `<a href="` the target runs up to the next `">` and the mention from
// there up to the next `</a>`; when `</a>` comes first the mention is
// empty. A missing `">` or `</a>` ends the scan, so malformed markup
// yields fewer spans rather than an error.
func ScanAnchors(line string) []Span {
	var spans []Span
	for {
		start := strings.Index(line, anchorOpen)
		if start < 0 {
			return spans
		}
		line = line[start+len(anchorOpen):]

		endTarget := strings.Index(line, targetClose)
		endMention := strings.Index(line, anchorClose)
		if endTarget < 0 || endMention < 0 {
			return spans
		}

		var mention string
		if begin := endTarget + len(targetClose); begin <= endMention {
			mention = line[begin:endMention]
		}
		spans = append(spans, Span{Target: line[:endTarget], Mention: mention})
	}
}

// parseDocID reads the id attribute of a <doc> boundary tag.
func parseDocID(line string) (int64, bool) {
	z := html.NewTokenizer(strings.NewReader(line))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return 0, false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "doc" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "id" {
					id, err := strconv.ParseInt(strings.TrimSpace(string(val)), 10, 64)
					return id, err == nil
				}
			}
			return 0, false
		}
	}
}
