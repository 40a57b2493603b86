package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormLogger adapts a go-kit logger to gorm's logger interface.
type gormLogger struct {
	logger log.Logger
	level  gormlogger.LogLevel
}

func NewGormLogger(l log.Logger) gormlogger.Interface {
	if l == nil {
		l = log.NewNopLogger()
	}
	return &gormLogger{
		logger: log.With(l, "component", "gorm"),
		level:  gormlogger.Warn,
	}
}

func (g *gormLogger) LogMode(lvl gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.level = lvl
	return &clone
}

func (g *gormLogger) Info(_ context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Info {
		level.Info(g.logger).Log("msg", fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Warn(_ context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Warn {
		level.Warn(g.logger).Log("msg", fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Error(_ context.Context, msg string, args ...any) {
	if g.level >= gormlogger.Error {
		level.Error(g.logger).Log("msg", fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= gormlogger.Error:
		sql, rows := fc()
		level.Error(g.logger).Log("msg", "query failed", "err", err, "elapsed", elapsed, "rows", rows, "sql", sql)
	case elapsed > slowQueryThreshold && g.level >= gormlogger.Warn:
		sql, rows := fc()
		level.Warn(g.logger).Log("msg", "slow query", "elapsed", elapsed, "rows", rows, "sql", sql)
	case g.level >= gormlogger.Info:
		sql, rows := fc()
		level.Debug(g.logger).Log("msg", "query", "elapsed", elapsed, "rows", rows, "sql", sql)
	}
}
