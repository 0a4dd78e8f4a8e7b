package logger

import (
	"context"
	"errors"
	"time"

	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// GormLogger routes gorm's statement log through the zap logger.
type GormLogger struct {
	log      *Logger
	LogLevel gormlogger.LogLevel
}

func NewGormLogger(l *Logger) *GormLogger {
	return &GormLogger{log: l.With("component", "gorm"), LogLevel: gormlogger.Warn}
}

func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.LogLevel = level
	return &clone
}

func (g *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if g.LogLevel >= gormlogger.Info {
		g.log.Info(msg, "data", data)
	}
}

func (g *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if g.LogLevel >= gormlogger.Warn {
		g.log.Warn(msg, "data", data)
	}
}

func (g *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if g.LogLevel >= gormlogger.Error {
		g.log.Error(msg, "data", data)
	}
}

func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.LogLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && g.LogLevel >= gormlogger.Error:
		g.log.Error("sql error", "sql", sql, "latency", elapsed, "rows", rows, "err", err)
	case elapsed > slowQueryThreshold && g.LogLevel >= gormlogger.Warn:
		g.log.Warn("sql slow", "sql", sql, "latency", elapsed, "rows", rows)
	case g.LogLevel >= gormlogger.Info:
		g.log.Debug("sql", "sql", sql, "latency", elapsed, "rows", rows)
	}
}
