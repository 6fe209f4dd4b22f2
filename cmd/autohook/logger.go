package main

import (
	"context"
	"log/slog"
	"os"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-autohook/adapters/gologger"
)

type slogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func newLogger(debug bool) glog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &slogLogger{logger: slog.New(handler).With("logger", gologger.DefaultLoggerName), ctx: context.Background()}
}

func (l *slogLogger) Trace(msg string, args ...any) { l.logger.DebugContext(l.ctx, msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.logger.DebugContext(l.ctx, msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.InfoContext(l.ctx, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.WarnContext(l.ctx, msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.ErrorContext(l.ctx, msg, args...) }

func (l *slogLogger) Fatal(msg string, args ...any) {
	l.logger.ErrorContext(l.ctx, msg, args...)
	os.Exit(1)
}

func (l *slogLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	return &slogLogger{logger: l.logger, ctx: ctx}
}
