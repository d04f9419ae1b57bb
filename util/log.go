// Package util holds process-wide plumbing shared by the wg-keepalive packages.
package util

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures SetupFileLog.
type LogOptions struct {
	// Level is a zap level name (debug, info, warn, error).
	Level string
	// File is appended to in addition to stderr. Leave empty to log to stderr only.
	File string
	// MaxSizeMB is the size at which File is rotated. 0 means lumberjack's default.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SetupLog installs a development-friendly stderr logger as the global zap logger.
func SetupLog() {
	err := SetupFileLog(LogOptions{Level: "info"})
	if err != nil {
		panic(err)
	}
}

// SetupFileLog installs the global zap logger writing to stderr and, if opts.File is set, to a rotated log file.
func SetupFileLog(opts LogOptions) error {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		err := level.UnmarshalText([]byte(opts.Level))
		if err != nil {
			return fmt.Errorf("parsing log level %q: %w", opts.Level, err)
		}
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if opts.File != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}))
	}
	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level)
	logger := zap.New(core)
	zap.ReplaceGlobals(logger)
	return nil
}
