package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultSlowQueryThreshold marks statements worth a warning.
const DefaultSlowQueryThreshold = 2 * time.Second

// gormLogger routes GORM's logging through zap.
type gormLogger struct {
	log           *zap.Logger
	slowThreshold time.Duration
	level         logger.LogLevel
}

func newGormLogger(log *zap.Logger, slowThreshold time.Duration, level logger.LogLevel) *gormLogger {
	return &gormLogger{log: log, slowThreshold: slowThreshold, level: level}
}

// LogMode implements logger.Interface
func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.level = level
	return &newLogger
}

// Info implements logger.Interface
func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		l.log.Info(fmt.Sprintf(msg, data...))
	}
}

// Warn implements logger.Interface
func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		l.log.Warn(fmt.Sprintf(msg, data...))
	}
}

// Error implements logger.Interface
func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		l.log.Error(fmt.Sprintf(msg, data...))
	}
}

// Trace implements logger.Interface. SQL text is truncated since bulk
// inserts carry thousands of values.
func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		sql, rows := fc()
		l.log.Error("Database query failed",
			zap.Error(err),
			zap.String("sql", truncateSQL(sql)),
			zap.Int64("rows_affected", rows),
			zap.Duration("elapsed", elapsed))
	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		sql, rows := fc()
		l.log.Warn("Slow query detected",
			zap.String("sql", truncateSQL(sql)),
			zap.Int64("rows_affected", rows),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", l.slowThreshold))
	case l.level >= logger.Info:
		sql, rows := fc()
		l.log.Debug("Query",
			zap.String("sql", truncateSQL(sql)),
			zap.Int64("rows_affected", rows),
			zap.Duration("elapsed", elapsed))
	}
}

func truncateSQL(sql string) string {
	const max = 256
	if len(sql) <= max {
		return sql
	}
	return sql[:max] + "..."
}
