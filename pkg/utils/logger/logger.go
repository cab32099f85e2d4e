// Package logger is a package-level structured-logging facade over zap,
// with rotation provided by either lumberjack (size-based) or
// file-rotatelogs (time-based), matching the two rotation strategies a
// long-running discovery/transport daemon needs.
package logger

import (
	"os"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level mirrors zapcore.Level so callers never need to import zap directly.
type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

var atomicLevel = zap.NewAtomicLevelAt(InfoLevel)

var (
	defaultLogger = build(zapcore.AddSync(os.Stdout))
	sugar         = defaultLogger.Sugar()
)

func build(ws zapcore.WriteSyncer) *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(enc, ws, atomicLevel)
	return zap.New(core, zap.AddCaller())
}

// New builds a Logger writing to out, sharing this package's level.
func New(out zapcore.WriteSyncer, level Level) *zap.Logger {
	atomicLevel.SetLevel(level)
	return build(out)
}

// NewProductionRotateByTime returns a WriteSyncer that rotates path daily
// and keeps 7 days of history, via file-rotatelogs.
func NewProductionRotateByTime(path string) zapcore.WriteSyncer {
	rl, err := rotatelogs.New(
		path+".%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return zapcore.AddSync(os.Stderr)
	}
	return zapcore.AddSync(rl)
}

// NewProductionRotateBySize returns a WriteSyncer that rotates path once
// it exceeds maxSizeMB, keeping maxBackups old copies, via lumberjack.
func NewProductionRotateBySize(path string, maxSizeMB, maxBackups int) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     28,
		Compress:   true,
	})
}

// ReplaceDefault installs l as the package-level logger used by Debug,
// Info, Error and friends.
func ReplaceDefault(l *zap.Logger) {
	defaultLogger = l
	sugar = l.Sugar()
}

// SetLevel adjusts the level of every logger built by this package (the
// default one and any returned by New), since they all share atomicLevel.
func SetLevel(level Level) { atomicLevel.SetLevel(level) }

// Sync flushes any buffered log entries.
func Sync() error { return defaultLogger.Sync() }

func Debug(args ...interface{})                 { sugar.Debug(args...) }
func Debugf(format string, args ...interface{}) { sugar.Debugf(format, args...) }
func Info(args ...interface{})                  { sugar.Info(args...) }
func Infof(format string, args ...interface{})  { sugar.Infof(format, args...) }
func Warn(args ...interface{})                  { sugar.Warn(args...) }
func Warnf(format string, args ...interface{})  { sugar.Warnf(format, args...) }
func Error(args ...interface{})                 { sugar.Error(args...) }
func Errorf(format string, args ...interface{}) { sugar.Errorf(format, args...) }
func Fatal(args ...interface{})                 { sugar.Fatal(args...) }
func Fatalf(format string, args ...interface{}) { sugar.Fatalf(format, args...) }

// GetError renders err as a log argument, or "<nil>" for a nil error —
// grounded on the teacher's log.Error("...failed:", log.GetError(err))
// call sites, which always pass the error as the final positional arg
// rather than via a format string.
func GetError(err error) interface{} {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

// Adapter satisfies pkg/coap.Logger (and any other Debugf/Infof/Errorf
// consumer) by delegating to this package's default logger.
type Adapter struct{}

func (Adapter) Debugf(format string, args ...interface{}) { Debugf(format, args...) }
func (Adapter) Infof(format string, args ...interface{})  { Infof(format, args...) }
func (Adapter) Errorf(format string, args ...interface{}) { Errorf(format, args...) }
