package ingest

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/cognicore/pem/pkg/pem/catalog"
)

// MIDResolver maps a Freebase MID to Wikipedia titles.
type MIDResolver interface {
	TitlesForMID(ctx context.Context, mid string) ([]string, error)
}

// ClueWeb annotation columns (FACC1 layout).
const (
	clueWebMentionCol = 2
	clueWebMIDCol     = 7
)

// ClueWebParser reads FACC1 entity annotations of the ClueWeb corpus from
// gzipped tar archives (*.tgz) holding *.tsv members. Repeated pairs
// accumulate, one per annotation.
type ClueWebParser struct {
	dir      string
	catalog  catalog.Catalog
	resolver MIDResolver
	opts     Options
}

// NewClueWebParser creates a parser over every *.tgz below dir.
func NewClueWebParser(dir string, cat catalog.Catalog, resolver MIDResolver, opts Options) *ClueWebParser {
	return &ClueWebParser{dir: dir, catalog: cat, resolver: resolver, opts: opts.withDefaults()}
}

// Name implements Parser.
func (p *ClueWebParser) Name() string { return "clueweb" }

// Parse implements Parser.
func (p *ClueWebParser) Parse(ctx context.Context, emit EmitFunc) (Stats, error) {
	var stats Stats

	var archives []string
	err := filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".tgz") {
			archives = append(archives, path)
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("list clueweb archives in %s: %w", p.dir, err)
	}
	sort.Strings(archives)

	scanner := newLineScanner(p.Name(), p.opts, &stats)
	for _, path := range archives {
		if err := p.parseArchive(ctx, path, scanner, &stats, emit); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (p *ClueWebParser) parseArchive(ctx context.Context, path string, scanner *lineScanner, stats *Stats, emit EmitFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open clueweb archive %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open clueweb archive %s: %w", path, err)
	}
	defer gz.Close()

	stats.Files++
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read clueweb archive %s: %w", path, err)
		}
		if !hdr.FileInfo().Mode().IsRegular() || !strings.HasSuffix(hdr.Name, ".tsv") {
			continue
		}

		err = scanner.scan(ctx, tr, func(line string) error {
			return p.parseLine(ctx, line, stats, emit)
		})
		if err != nil {
			return fmt.Errorf("read %s in %s: %w", hdr.Name, path, err)
		}
	}
}

func (p *ClueWebParser) parseLine(ctx context.Context, line string, stats *Stats, emit EmitFunc) error {
	parts := strings.Split(Unquote(strings.TrimRight(line, " \t\r\n\v\f")), "\t")
	if len(parts) <= clueWebMIDCol {
		stats.Malformed++
		return nil
	}
	mention := parts[clueWebMentionCol]

	titles, err := p.resolver.TitlesForMID(ctx, parts[clueWebMIDCol])
	if err != nil {
		return fmt.Errorf("resolve mid %s: %w", parts[clueWebMIDCol], err)
	}
	if len(titles) == 0 {
		stats.Unresolved++
		return nil
	}

	name := p.catalog.NormalizeTitle(titles[0])
	if _, ok := p.catalog.IDForName(name); !ok {
		stats.Unresolved++
		return nil
	}

	stats.Triples++
	return emit(Triple{Mention: mention, Entity: catalog.EntityKey(name), Count: 1})
}
