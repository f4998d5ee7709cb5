// Package logger builds the zap logger used across gameboot.
package logger

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level, encoding and destination of log output.
type Config struct {
	Level    string
	Encoding string // "json" or "console"
	File     string // Written to instead of stderr when set.
	Quiet    bool   // Suppress stderr output, e.g. while a full-screen UI is running.
}

// zapConfig returns the zap configuration for cfg.
func zapConfig(cfg Config) zap.Config {
	encoding := strings.ToLower(strings.TrimSpace(cfg.Encoding))
	if encoding != "json" {
		encoding = "console"
	}

	outputs := []string{"stderr"}
	switch {
	case cfg.File != "":
		outputs = []string{cfg.File}
	case cfg.Quiet:
		outputs = nil
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	if encoding == "json" {
		encoderCfg = zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	return zap.Config{
		Level:            zap.NewAtomicLevelAt(ParseLevel(cfg.Level)),
		Encoding:         encoding,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    encoderCfg,
	}
}

// New builds a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	zc := zapConfig(cfg)
	if len(zc.OutputPaths) == 0 {
		return zap.NewNop(), nil
	}
	log, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return log, nil
}

// ParseLevel maps a level name to a zap level. Unknown names map to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE", "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "FATAL":
		return zapcore.FatalLevel
	case "DPANIC":
		return zapcore.DPanicLevel
	default:
		return zapcore.InfoLevel
	}
}
