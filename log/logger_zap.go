package log

import (
	"context"

	"go.uber.org/zap"
)

type zapLogger struct {
	l *zap.SugaredLogger
}

// NewZapは、zapをバックエンドとするロガーを返却します。
//
// コンテキストにセットされたセッションID、チャネル名、メッセージIDは構造化フィールドとして出力します。
func NewZap(l *zap.Logger) Logger {
	return &zapLogger{
		l: l.WithOptions(zap.AddCallerSkip(1)).Sugar(),
	}
}

func (l *zapLogger) with(ctx context.Context) *zap.SugaredLogger {
	fields := trackFields(ctx)
	if len(fields) == 0 {
		return l.l
	}
	kv := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		kv = append(kv, f.key, f.value)
	}
	return l.l.With(kv...)
}

func (l *zapLogger) Infof(ctx context.Context, format string, args ...any) {
	l.with(ctx).Infof(format, args...)
}

func (l *zapLogger) Warnf(ctx context.Context, format string, args ...any) {
	l.with(ctx).Warnf(format, args...)
}

func (l *zapLogger) Errorf(ctx context.Context, format string, args ...any) {
	l.with(ctx).Errorf(format, args...)
}

func (l *zapLogger) Debugf(ctx context.Context, format string, args ...any) {
	l.with(ctx).Debugf(format, args...)
}
