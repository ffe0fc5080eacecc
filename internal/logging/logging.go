// Package logging builds the zap loggers used by both binaries.
package logging

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a supported log level name.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format is a supported log encoding name.
type Format string

const (
	FormatStructured Format = "structured"
	FormatConsole    Format = "console"

	// FormatAuto picks console on a terminal and structured otherwise.
	FormatAuto Format = "auto"
)

var levels = map[Level]zapcore.Level{
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
}

var encodings = map[Format]string{
	FormatStructured: "json",
	FormatConsole:    "console",
}

// LoggerFactory builds loggers with a consistent production configuration.
// Output goes to stderr so stdout stays free for findings.
type LoggerFactory struct{}

// NewLoggerFactory returns a LoggerFactory.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{}
}

// CreateLogger builds a logger for the given level and format. Empty values
// select info and structured.
func (f *LoggerFactory) CreateLogger(level Level, format Format) (*zap.Logger, error) {
	if level == "" {
		level = LevelInfo
	}
	if format == "" {
		format = FormatStructured
	}
	if format == FormatAuto {
		format = DetectFormat(os.Stderr.Fd())
	}

	zapLevel, ok := levels[level]
	if !ok {
		return nil, fmt.Errorf("unsupported log level: %s", level)
	}
	encoding, ok := encodings[format]
	if !ok {
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.Encoding = encoding
	if format == FormatConsole {
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return cfg.Build()
}

// DetectFormat returns FormatConsole when fd is a terminal.
func DetectFormat(fd uintptr) Format {
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return FormatConsole
	}
	return FormatStructured
}
