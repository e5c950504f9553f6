package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/cognicore/pem/pkg/pem/store"
)

// DefaultBatchSize is the number of pending pairs written per transaction.
const DefaultBatchSize = 50000

// mentionPageSize bounds how many mentions EachMention loads at a time.
var mentionPageSize = 50000

// Options configures the sqlite accumulation store.
type Options struct {
	BatchSize int
	// Reset drops previously accumulated counts on open. Without it the
	// committed rows of an earlier run are kept and added to.
	Reset   bool
	Logger  *zap.Logger
	OnFlush func(rows int, elapsed time.Duration)
}

// sqliteStore implements store.Store on a sqlite file. Writes are
// buffered, pre-aggregated per key and flushed in one transaction per
// batch.
type sqliteStore struct {
	db     *sql.DB
	opts   Options
	logger *zap.Logger

	pending []pendingPair
	index   map[pairKey]int
	freq    map[string]int64
}

type pairKey struct {
	mention string
	entity  string
}

type pendingPair struct {
	pairKey
	n int64
}

// OpenSQLite opens the accumulation database at path with WAL mode
// enabled.
func OpenSQLite(ctx context.Context, path string, opts ...Options) (store.Store, error) {
	o := Options{BatchSize: DefaultBatchSize, Reset: true}
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create accumulation directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer, one connection: keeps per-connection pragmas in effect.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("open accumulation store %s: %w", path, err)
		}
	}

	if o.Reset {
		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS mention_counts; DROP TABLE IF EXISTS mention_freq;`); err != nil {
			db.Close()
			return nil, fmt.Errorf("reset accumulation store %s: %w", path, err)
		}
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init accumulation store %s: %w", path, err)
	}

	return &sqliteStore{
		db:     db,
		opts:   o,
		logger: o.Logger.Named("sqlite"),
		index:  make(map[pairKey]int),
		freq:   make(map[string]int64),
	}, nil
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS mention_counts (
	mention TEXT NOT NULL,
	entity TEXT NOT NULL,
	count INTEGER NOT NULL,
	UNIQUE(mention, entity)
);

CREATE TABLE IF NOT EXISTS mention_freq (
	mention TEXT PRIMARY KEY,
	freq INTEGER NOT NULL
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Close flushes pending writes and closes the database.
func (s *sqliteStore) Close() error {
	err := s.Flush(context.Background())
	return errors.Join(err, s.db.Close())
}

// Accumulate buffers the increment and flushes once the batch is full.
func (s *sqliteStore) Accumulate(ctx context.Context, mention, entity string, n int64) error {
	key := pairKey{mention: mention, entity: entity}
	if i, ok := s.index[key]; ok {
		s.pending[i].n += n
	} else {
		s.index[key] = len(s.pending)
		s.pending = append(s.pending, pendingPair{pairKey: key, n: n})
	}
	s.freq[mention] += n

	if len(s.pending) >= s.opts.BatchSize {
		return s.Flush(ctx)
	}
	return nil
}

// AddMentionFreq buffers a frequency-only increment.
func (s *sqliteStore) AddMentionFreq(ctx context.Context, mention string, n int64) error {
	s.freq[mention] += n
	if len(s.freq) >= s.opts.BatchSize {
		return s.Flush(ctx)
	}
	return nil
}

// Flush writes the pending batch in a single transaction and releases
// the buffers.
func (s *sqliteStore) Flush(ctx context.Context) error {
	if len(s.pending) == 0 && len(s.freq) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pairStmt, err := tx.PrepareContext(ctx, `
INSERT INTO mention_counts (mention, entity, count) VALUES (?, ?, ?)
ON CONFLICT(mention, entity) DO UPDATE SET count = count + excluded.count;
`)
	if err != nil {
		return err
	}
	defer pairStmt.Close()
	for _, p := range s.pending {
		if _, err := pairStmt.ExecContext(ctx, p.mention, p.entity, p.n); err != nil {
			return err
		}
	}

	freqStmt, err := tx.PrepareContext(ctx, `
INSERT INTO mention_freq (mention, freq) VALUES (?, ?)
ON CONFLICT(mention) DO UPDATE SET freq = freq + excluded.freq;
`)
	if err != nil {
		return err
	}
	defer freqStmt.Close()
	for m, n := range s.freq {
		if _, err := freqStmt.ExecContext(ctx, m, n); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	rows := len(s.pending)
	elapsed := time.Since(start)
	s.logger.Debug("Wrote mention/entity combinations",
		zap.Int("rows", rows),
		zap.Int("mentions", len(s.freq)),
		zap.Duration("elapsed", elapsed))
	if s.opts.OnFlush != nil {
		s.opts.OnFlush(rows, elapsed)
	}

	s.pending = nil
	s.index = make(map[pairKey]int)
	s.freq = make(map[string]int64)
	return nil
}

// Finalize flushes and indexes the counts by mention.
func (s *sqliteStore) Finalize(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS mention_counts_mention ON mention_counts (mention)`)
	return err
}

// EachMention pages through distinct mentions in byte order. No cursor
// is held while fn runs.
func (s *sqliteStore) EachMention(ctx context.Context, fn func(mention string) error) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}

	const (
		firstPage = `SELECT DISTINCT mention FROM mention_counts WHERE mention >= ? ORDER BY mention LIMIT ?`
		nextPage  = `SELECT DISTINCT mention FROM mention_counts WHERE mention > ? ORDER BY mention LIMIT ?`
	)
	query := firstPage
	after := ""
	for {
		page, err := s.loadStrings(ctx, query, after, mentionPageSize)
		if err != nil {
			return err
		}
		for _, m := range page {
			if err := fn(m); err != nil {
				return err
			}
		}
		if len(page) < mentionPageSize {
			return nil
		}
		after = page[len(page)-1]
		query = nextPage
	}
}

// EntityCounts returns counts highest first; rowid breaks ties in
// first-seen order.
func (s *sqliteStore) EntityCounts(ctx context.Context, mention string) ([]store.EntityCount, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT entity, count
FROM mention_counts
WHERE mention = ?
ORDER BY count DESC, rowid ASC;
`, mention)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []store.EntityCount
	for rows.Next() {
		var ec store.EntityCount
		if err := rows.Scan(&ec.Entity, &ec.Count); err != nil {
			return nil, err
		}
		counts = append(counts, ec)
	}
	return counts, rows.Err()
}

// MentionFreq returns the mention's total frequency, 0 when unknown.
func (s *sqliteStore) MentionFreq(ctx context.Context, mention string) (int64, error) {
	if err := s.Flush(ctx); err != nil {
		return 0, err
	}

	var freq int64
	err := s.db.QueryRowContext(ctx, `SELECT freq FROM mention_freq WHERE mention = ?`, mention).Scan(&freq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return freq, err
}

// Stats implements store.Store.
func (s *sqliteStore) Stats(ctx context.Context) (store.Stats, error) {
	if err := s.Flush(ctx); err != nil {
		return store.Stats{}, err
	}

	var st store.Stats
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(DISTINCT mention), COUNT(*), COALESCE(SUM(count), 0)
FROM mention_counts;
`).Scan(&st.Mentions, &st.Pairs, &st.Total)
	return st, err
}

func (s *sqliteStore) loadStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var val string
		if err := rows.Scan(&val); err != nil {
			return nil, err
		}
		result = append(result, val)
	}
	return result, rows.Err()
}
