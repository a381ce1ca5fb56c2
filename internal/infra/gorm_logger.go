package infra

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

// 日志里 SQL 截断长度，生成代码列可能很长
const maxLoggedQueryLen = 1024

// gormZapAdapter 把 GORM 日志接到 Zap
// Agent 记录携带整段生成代码，Trace 对 SQL 做截断避免刷屏
type gormZapAdapter struct {
	log           *zap.Logger
	level         gormLogger.LogLevel
	slowThreshold time.Duration
	skipNotFound  bool
}

// NewGormLogger 构造 GORM 日志适配器
// 未命中记录（ErrRecordNotFound）属于业务常态，不按错误输出
func NewGormLogger(log *zap.Logger, level gormLogger.LogLevel, slowThreshold time.Duration) gormLogger.Interface {
	return &gormZapAdapter{
		log:           log.Named("gorm"),
		level:         level,
		slowThreshold: slowThreshold,
		skipNotFound:  true,
	}
}

func (l *gormZapAdapter) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormZapAdapter) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Info {
		l.log.Sugar().Infof(msg, data...)
	}
}

func (l *gormZapAdapter) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Warn {
		l.log.Sugar().Warnf(msg, data...)
	}
}

func (l *gormZapAdapter) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Error {
		l.log.Sugar().Errorf(msg, data...)
	}
}

// Trace 按错误、慢查询、普通查询三档输出
func (l *gormZapAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.String("query", truncateQuery(sql)),
		zap.Duration("elapsed", elapsed),
	}
	// rows == -1 表示驱动未统计行数
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}

	switch {
	case err != nil && l.level >= gormLogger.Error &&
		!(l.skipNotFound && errors.Is(err, gormLogger.ErrRecordNotFound)):
		l.log.Error("数据库查询失败", append(fields, zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed >= l.slowThreshold && l.level >= gormLogger.Warn:
		l.log.Warn("数据库慢查询", append(fields, zap.Duration("threshold", l.slowThreshold))...)
	case l.level >= gormLogger.Info:
		l.log.Debug("数据库查询", fields...)
	}
}

func truncateQuery(q string) string {
	if len(q) <= maxLoggedQueryLen {
		return q
	}
	return q[:maxLoggedQueryLen] + "..."
}
