package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/locktivity/epack-collector-template-security/internal/collector"
	"github.com/locktivity/epack-collector-template-security/internal/config"
	"github.com/locktivity/epack-collector-template-security/internal/logging"
)

// app runs one collection and writes its findings.
type app struct {
	collector *collector.Collector
	writer    *reportWriter
	logger    *zap.Logger
}

func (a *app) run(ctx context.Context) error {
	defer func() { _ = a.logger.Sync() }()

	report, err := a.collector.Collect(ctx)
	if err != nil {
		return err
	}
	return a.writer.write(report)
}

// reportWriter writes the findings document to a file, or to out when no
// file is configured.
type reportWriter struct {
	path string
	out  io.Writer
}

func (w *reportWriter) write(report *collector.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding findings: %w", err)
	}
	data = append(data, '\n')

	if w.path == "" {
		_, err = w.out.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(w.path, data, 0o644); err != nil {
		return fmt.Errorf("writing findings: %w", err)
	}
	return nil
}

// buildContainer registers the providers of one run.
func buildContainer(settings config.Settings, out io.Writer) (*dig.Container, error) {
	container := dig.New()

	providers := []any{
		func() config.Settings { return settings },
		func(s config.Settings) (*zap.Logger, error) {
			return logging.NewLoggerFactory().CreateLogger(logging.Level(s.LogLevel), logging.Format(s.LogFormat))
		},
		func(s config.Settings, logger *zap.Logger) collector.Config {
			cfg := s.CollectorConfig()
			cfg.OnStatus = func(message string) { logger.Info(message) }
			cfg.OnProgress = func(current, total int64, message string) {
				logger.Debug(message, zap.Int64("current", current), zap.Int64("total", total))
			}
			return cfg
		},
		func(cfg collector.Config, logger *zap.Logger) (*collector.Collector, error) {
			return collector.New(cfg, logger)
		},
		func(s config.Settings) *reportWriter {
			return &reportWriter{path: s.JSONOutputFile, out: out}
		},
		func(c *collector.Collector, w *reportWriter, logger *zap.Logger) *app {
			return &app{collector: c, writer: w, logger: logger}
		},
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}
	return container, nil
}
