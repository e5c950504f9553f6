package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const maxLineSize = 16 * 1024 * 1024

// lineScanner streams lines and logs progress every few million lines.
// The counter spans every reader it is handed.
type lineScanner struct {
	corpus string
	opts   Options
	lines  int64
	stats  *Stats
}

func newLineScanner(corpus string, opts Options, stats *Stats) *lineScanner {
	return &lineScanner{corpus: corpus, opts: opts, stats: stats}
}

// scan calls fn for every line of r without its line terminator.
func (s *lineScanner) scan(ctx context.Context, r io.Reader, fn func(line string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.lines++
		s.stats.Lines++
		if s.lines%s.opts.ProgressEvery == 0 {
			s.opts.Logger.Info("Processed lines",
				zap.String("corpus", s.corpus),
				zap.String("lines", humanize.Comma(s.lines)),
				zap.String("triples", humanize.Comma(s.stats.Triples)))
		}
		if err := fn(strings.TrimSuffix(scanner.Text(), "\r")); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// scanFile opens path and scans it.
func (s *lineScanner) scanFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s file %s: %w", s.corpus, path, err)
	}
	defer f.Close()

	s.stats.Files++
	if err := s.scan(ctx, f, fn); err != nil {
		return fmt.Errorf("read %s file %s: %w", s.corpus, path, err)
	}
	return nil
}
