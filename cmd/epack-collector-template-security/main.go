// epack-collector-template-security audits repositories created from a
// template repository against a security baseline.
//
// This binary is designed to be executed by the epack collector runner.
// It uses the epack Component SDK for protocol compliance.
package main

import (
	"errors"

	"github.com/go-viper/mapstructure/v2"
	"github.com/locktivity/epack/componentsdk"
	"go.uber.org/zap"

	"github.com/locktivity/epack-collector-template-security/internal/collector"
	"github.com/locktivity/epack-collector-template-security/internal/config"
	"github.com/locktivity/epack-collector-template-security/internal/logging"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	componentsdk.RunCollector(componentsdk.CollectorSpec{
		Name:        "template-security",
		Version:     Version,
		Description: "Audits template-derived repositories against a security baseline",
	}, run)
}

// logOptions are the logging keys of the collector config.
type logOptions struct {
	Level  string `mapstructure:"log_level"`
	Format string `mapstructure:"log_format"`
}

func run(ctx componentsdk.CollectorContext) error {
	cfg := collector.DefaultConfig()
	if err := decode(ctx.Config(), &cfg); err != nil {
		return componentsdk.NewConfigError("decoding config: %v", err)
	}
	var opts logOptions
	if err := decode(ctx.Config(), &opts); err != nil {
		return componentsdk.NewConfigError("decoding config: %v", err)
	}

	cfg.GitHubToken = ctx.Secret("GITHUB_TOKEN")
	if cfg.GitHubToken == "" {
		cfg.GitHubToken = ctx.Secret("GH_TOKEN")
	}
	cfg.PrivateKey = ctx.Secret("GITHUB_APP_PRIVATE_KEY")

	logger, err := logging.NewLoggerFactory().CreateLogger(logging.Level(opts.Level), logging.Format(opts.Format))
	if err != nil {
		return componentsdk.NewConfigError("%v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg.OnStatus = func(message string) { logger.Info(message) }
	cfg.OnProgress = func(current, total int64, message string) {
		logger.Debug(message, zap.Int64("current", current), zap.Int64("total", total))
	}

	c, err := collector.New(cfg, logger)
	if err != nil {
		return componentsdk.NewConfigError("creating collector: %v", err)
	}

	report, err := c.Collect(ctx.Context())
	if err != nil {
		var configErr *collector.ConfigError
		if errors.As(err, &configErr) {
			return componentsdk.NewConfigError("%v", err)
		}
		return componentsdk.NewNetworkError("collecting findings: %v", err)
	}

	// Emit the collected data (SDK handles protocol envelope)
	return ctx.Emit(report)
}

// decode maps the collector config onto target. List values may be given as
// arrays or as comma/space separated strings.
func decode(input map[string]any, target any) error {
	if input == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       config.SplitListHook(),
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
