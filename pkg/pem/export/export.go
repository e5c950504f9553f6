// Package export loads prior tables into a relational lookup store.
package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/cognicore/pem/pkg/pem/internalerr"
	"github.com/cognicore/pem/pkg/pem/prior"
)

// Supported drivers
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// DefaultTable is the lookup table name entity linkers read from.
const DefaultTable = "wiki"

// DefaultBatchSize is the number of rows per insert transaction.
const DefaultBatchSize = 50000

// MaxWordLength is the longest mention, in characters, the word column
// holds. Longer mentions are skipped.
const MaxWordLength = 512

// mysqlWordCollation keeps mention keys case and accent sensitive on
// mysql, whose default collations would fold "Paris" and "paris".
const mysqlWordCollation = "utf8mb4_bin"

// insertChunkSize bounds the rows of one INSERT statement so sqlite stays
// under its host parameter limit.
const insertChunkSize = 1000

// Entry is one row of the lookup table.
type Entry struct {
	Word  string `gorm:"column:word;primaryKey;size:512"`
	PEM   string `gorm:"column:p_e_m;type:text"` // JSON [[entity, prob], ...]
	Lower string `gorm:"column:lower;size:512;index"`
	Freq  int64  `gorm:"column:freq"`
}

// TableName implements gorm's tabler.
func (Entry) TableName() string { return DefaultTable }

// Distribution decodes the stored candidates.
func (e Entry) Distribution() (prior.Distribution, error) {
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal([]byte(e.PEM), &pairs); err != nil {
		return nil, fmt.Errorf("decode p_e_m of %q: %w", e.Word, err)
	}
	dist := make(prior.Distribution, len(pairs))
	for i, p := range pairs {
		if err := json.Unmarshal(p[0], &dist[i].Entity); err != nil {
			return nil, fmt.Errorf("decode p_e_m of %q: %w", e.Word, err)
		}
		if err := json.Unmarshal(p[1], &dist[i].Prob); err != nil {
			return nil, fmt.Errorf("decode p_e_m of %q: %w", e.Word, err)
		}
	}
	return dist, nil
}

// EncodeDistribution renders d as the p_e_m column: pairs ordered by
// probability, highest first, equal probabilities in table order.
func EncodeDistribution(d prior.Distribution) (string, error) {
	sorted := append(prior.Distribution(nil), d...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Prob > sorted[j].Prob
	})
	pairs := make([][2]interface{}, len(sorted))
	for i, c := range sorted {
		pairs[i] = [2]interface{}{c.Entity, c.Prob}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Run records one build.
type Run struct {
	ID         string    `gorm:"column:id;primaryKey;size:26"`
	StartedAt  time.Time `gorm:"column:started_at"`
	FinishedAt time.Time `gorm:"column:finished_at"`
	Mentions   int       `gorm:"column:mentions"`
	Source     string    `gorm:"column:source;size:32"`
	Stats      string    `gorm:"column:stats;type:text"` // JSON per corpus
}

// TableName implements gorm's tabler.
func (Run) TableName() string { return "pem_runs" }

// FreqLookup supplies the total frequency of a mention.
type FreqLookup interface {
	MentionFreq(ctx context.Context, mention string) (int64, error)
}

// LoadOptions controls one bulk load.
type LoadOptions struct {
	BatchSize int
	// Reset drops and recreates the table first; otherwise rows are
	// upserted by word.
	Reset bool
}

// Sink receives finished prior tables.
type Sink interface {
	Load(ctx context.Context, priors *prior.Table, freq FreqLookup, opts LoadOptions) (int, error)
	Lookup(ctx context.Context, mention string) (Entry, bool, error)
	RecordRun(ctx context.Context, run *Run) error
	Close() error
}

// Options configures a GormSink.
type Options struct {
	Driver string
	DSN    string
	Table  string
	Logger *zap.Logger
	// OnRows is called with the size of every written batch.
	OnRows func(n int)
	// OnSkip is called once per Load with the number of mentions too
	// long for the word column.
	OnSkip func(n int)
}

// GormSink writes the lookup table through gorm to sqlite or mysql.
type GormSink struct {
	db     *gorm.DB
	table  string
	logger *zap.Logger
	onRows func(n int)
	onSkip func(n int)
}

// Open connects to the lookup database and migrates its tables.
func Open(ctx context.Context, opts Options) (*GormSink, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	log := opts.Logger.Named("export")

	var dialector gorm.Dialector
	switch strings.ToLower(opts.Driver) {
	case DriverSQLite, "":
		if dir := filepath.Dir(opts.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create export directory %s: %w", dir, err)
			}
		}
		dialector = sqlite.Open(opts.DSN)
	case DriverMySQL:
		dialector = mysql.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("%w: export driver %q", internalerr.ErrInvalidConfig, opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(log, DefaultSlowQueryThreshold, logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s export database: %v", internalerr.ErrStoreUnavailable, opts.Driver, err)
	}

	s := &GormSink{db: db, table: opts.Table, logger: log, onRows: opts.OnRows, onSkip: opts.OnSkip}
	if err := s.migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *GormSink) migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	entries := db.Table(s.table)
	if opts := tableOptions(s.db.Dialector.Name()); opts != "" {
		entries = entries.Set("gorm:table_options", opts)
	}
	if err := entries.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("migrate table %s: %w", s.table, err)
	}
	if s.db.Dialector.Name() == DriverMySQL {
		if err := s.ensureBinaryWord(ctx); err != nil {
			return err
		}
	}
	if err := db.AutoMigrate(&Run{}); err != nil {
		return fmt.Errorf("migrate run table: %w", err)
	}
	return nil
}

// tableOptions returns the CREATE TABLE options of the lookup table for
// a dialect.
func tableOptions(dialect string) string {
	if dialect == DriverMySQL {
		return "DEFAULT CHARSET=utf8mb4 COLLATE=" + mysqlWordCollation
	}
	return ""
}

// binaryWordDDL converts the word column of table to the binary
// collation.
func binaryWordDDL(table string) string {
	return fmt.Sprintf("ALTER TABLE `%s` MODIFY `word` VARCHAR(%d) CHARACTER SET utf8mb4 COLLATE %s NOT NULL",
		table, MaxWordLength, mysqlWordCollation)
}

// ensureBinaryWord fixes the collation of a word column created before
// the table options were applied.
func (s *GormSink) ensureBinaryWord(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	var collation sql.NullString
	err := db.Raw(`SELECT COLLATION_NAME FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = 'word'`, s.table).Row().Scan(&collation)
	if err != nil {
		return fmt.Errorf("inspect word column of %s: %w", s.table, err)
	}
	if collation.Valid && collation.String == mysqlWordCollation {
		return nil
	}
	s.logger.Info("Converting word column to binary collation",
		zap.String("table", s.table),
		zap.String("collation", collation.String))
	if err := db.Exec(binaryWordDDL(s.table)).Error; err != nil {
		return fmt.Errorf("alter word column of %s: %w", s.table, err)
	}
	return nil
}

// Load writes every mention of priors. Returns the number of rows
// written.
func (s *GormSink) Load(ctx context.Context, priors *prior.Table, freq FreqLookup, opts LoadOptions) (int, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	if opts.Reset {
		if err := s.db.WithContext(ctx).Migrator().DropTable(s.table); err != nil {
			return 0, fmt.Errorf("drop table %s: %w", s.table, err)
		}
		if err := s.migrate(ctx); err != nil {
			return 0, err
		}
	}

	start := time.Now()
	written, skipped := 0, 0
	batch := make([]Entry, 0, opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.insert(ctx, batch, opts); err != nil {
			return err
		}
		written += len(batch)
		if s.onRows != nil {
			s.onRows(len(batch))
		}
		s.logger.Debug("Wrote lookup rows", zap.Int("rows", written))
		batch = batch[:0]
		return nil
	}

	err := priors.Each(func(mention string, d prior.Distribution) error {
		if utf8.RuneCountInString(mention) > MaxWordLength {
			skipped++
			return nil
		}
		pem, err := EncodeDistribution(d)
		if err != nil {
			return fmt.Errorf("encode %q: %w", mention, err)
		}
		var f int64
		if freq != nil {
			if f, err = freq.MentionFreq(ctx, mention); err != nil {
				return fmt.Errorf("frequency of %q: %w", mention, err)
			}
		}
		batch = append(batch, Entry{Word: mention, PEM: pem, Lower: strings.ToLower(mention), Freq: f})
		if len(batch) >= opts.BatchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return written, err
	}
	if s.onSkip != nil {
		s.onSkip(skipped)
	}

	s.logger.Info("Loaded lookup table",
		zap.String("table", s.table),
		zap.Int("rows", written),
		zap.Int("skipped_too_long", skipped),
		zap.Duration("elapsed", time.Since(start)))
	return written, nil
}

func (s *GormSink) insert(ctx context.Context, rows []Entry, opts LoadOptions) error {
	db := s.db.WithContext(ctx).Table(s.table)
	if !opts.Reset {
		db = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "word"}},
			UpdateAll: true,
		})
	}
	if err := db.CreateInBatches(rows, min(len(rows), insertChunkSize)).Error; err != nil {
		return fmt.Errorf("insert into %s: %w", s.table, err)
	}
	return nil
}

// Lookup returns the row stored for mention.
func (s *GormSink) Lookup(ctx context.Context, mention string) (Entry, bool, error) {
	var e Entry
	err := s.db.WithContext(ctx).Table(s.table).Where("word = ?", mention).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// LookupLower returns the rows whose lower-cased word equals
// strings.ToLower(mention), most frequent first.
func (s *GormSink) LookupLower(ctx context.Context, mention string) ([]Entry, error) {
	var rows []Entry
	err := s.db.WithContext(ctx).Table(s.table).
		Where("lower = ?", strings.ToLower(mention)).
		Order("freq DESC").
		Find(&rows).Error
	return rows, err
}

// Each visits every stored row in word order, batchSize rows at a time.
func (s *GormSink) Each(ctx context.Context, batchSize int, fn func(Entry) error) error {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var batch []Entry
	return s.db.WithContext(ctx).Table(s.table).
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			for _, e := range batch {
				if err := fn(e); err != nil {
					return err
				}
			}
			return nil
		}).Error
}

// Count returns the number of stored rows.
func (s *GormSink) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Table(s.table).Count(&n).Error
	return n, err
}

// NewRun starts a run record with a fresh ULID.
func NewRun(started time.Time, source string) *Run {
	return &Run{
		ID:        ulid.MustNew(ulid.Timestamp(started), ulid.DefaultEntropy()).String(),
		StartedAt: started,
		Source:    source,
	}
}

// RecordRun stores run metadata; an empty ID gets a new ULID.
func (s *GormSink) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = ulid.Make().String()
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// Runs returns recorded runs, newest first.
func (s *GormSink) Runs(ctx context.Context) ([]Run, error) {
	var runs []Run
	err := s.db.WithContext(ctx).Order("id DESC").Find(&runs).Error
	return runs, err
}

// Close closes the underlying connection pool.
func (s *GormSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
