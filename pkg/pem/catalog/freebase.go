package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/patrickmn/go-cache"
	_ "modernc.org/sqlite"

	"github.com/cognicore/pem/pkg/pem/internalerr"
)

// FreebaseMapper maps Freebase machine ids (MIDs) to Wikipedia titles
// using a sqlite index. Lookups are cached.
type FreebaseMapper struct {
	db    *sql.DB
	cache *cache.Cache
}

// FreebaseOptions tunes the lookup cache.
type FreebaseOptions struct {
	CacheTTL        time.Duration
	CleanupInterval time.Duration
}

// DefaultFreebaseOptions returns the cache settings used by OpenFreebase.
func DefaultFreebaseOptions() FreebaseOptions {
	return FreebaseOptions{
		CacheTTL:        30 * time.Minute,
		CleanupInterval: 10 * time.Minute,
	}
}

// OpenFreebase opens the existing MID index at path. A missing file or
// a file without the fb2wp table is an error.
func OpenFreebase(ctx context.Context, path string, opts ...FreebaseOptions) (*FreebaseMapper, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: freebase index %s: %v", internalerr.ErrStoreUnavailable, path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: freebase index %s: %v", internalerr.ErrStoreUnavailable, path, err)
	}
	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'fb2wp'`).Scan(&n)
	if err == nil && n == 0 {
		err = errors.New("no fb2wp table")
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: freebase index %s: %v", internalerr.ErrStoreUnavailable, path, err)
	}
	return newFreebaseMapper(db, opts), nil
}

// CreateFreebase opens the MID index at path for building, creating the
// file and its schema when needed.
func CreateFreebase(ctx context.Context, path string, opts ...FreebaseOptions) (*FreebaseMapper, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	const schema = `
CREATE TABLE IF NOT EXISTS fb2wp (
	mid TEXT NOT NULL,
	title TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS fb2wp_mid ON fb2wp (mid);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init freebase index %s: %w", path, err)
	}
	return newFreebaseMapper(db, opts), nil
}

func newFreebaseMapper(db *sql.DB, opts []FreebaseOptions) *FreebaseMapper {
	o := DefaultFreebaseOptions()
	if len(opts) > 0 {
		o = opts[0]
	}
	return &FreebaseMapper{
		db:    db,
		cache: cache.New(o.CacheTTL, o.CleanupInterval),
	}
}

// Close closes the index.
func (f *FreebaseMapper) Close() error {
	f.cache.Flush()
	return f.db.Close()
}

// AddMapping inserts a MID → title row.
func (f *FreebaseMapper) AddMapping(ctx context.Context, mid, title string) error {
	_, err := f.db.ExecContext(ctx, `INSERT INTO fb2wp (mid, title) VALUES (?, ?)`, mid, title)
	if err == nil {
		f.cache.Delete(mid)
	}
	return err
}

// TitlesForMID returns the Wikipedia titles mapped to mid in insertion
// order. An unknown MID yields an empty slice.
func (f *FreebaseMapper) TitlesForMID(ctx context.Context, mid string) ([]string, error) {
	if v, ok := f.cache.Get(mid); ok {
		return v.([]string), nil
	}

	rows, err := f.db.QueryContext(ctx, `SELECT title FROM fb2wp WHERE mid = ? ORDER BY rowid`, mid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	titles := []string{}
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, err
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	f.cache.SetDefault(mid, titles)
	return titles, nil
}
