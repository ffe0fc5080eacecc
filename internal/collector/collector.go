package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/locktivity/epack-collector-template-security/internal/audit"
	"github.com/locktivity/epack-collector-template-security/internal/discovery"
	"github.com/locktivity/epack-collector-template-security/internal/github"
	"github.com/locktivity/epack-collector-template-security/internal/remediation"
)

// Collector audits the template-derived repositories of a set of owners.
type Collector struct {
	client github.GitHubClient
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// status reports an indeterminate status update.
func (c *Collector) status(message string) {
	if c.config.OnStatus != nil {
		c.config.OnStatus(message)
	}
}

// progress reports a determinate progress update.
func (c *Collector) progress(current, total int64, message string) {
	if c.config.OnProgress != nil {
		c.config.OnProgress(current, total, message)
	}
}

// New creates a new Collector with the given configuration.
// It supports two authentication methods:
//   - GitHub App: Set AppID, InstallationID, and PrivateKey
//   - Token: Set GitHubToken
//
// The configuration is validated before any client is built.
func New(config Config, logger *zap.Logger) (*Collector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var client github.GitHubClient
	if config.HasAppAuth() {
		appClient, err := github.NewClientFromApp(config.AppID, config.InstallationID, []byte(config.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub App client: %w", err)
		}
		client = appClient
	} else {
		client = github.NewClient(config.GitHubToken)
	}

	return NewWithClient(config, client, logger), nil
}

// NewWithClient creates a Collector with a custom client (for testing).
func NewWithClient(config Config, client github.GitHubClient, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		client: client,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Collect discovers, audits and optionally remediates repositories. Only a
// *ConfigError is returned; every other failure is recorded in the report.
func (c *Collector) Collect(ctx context.Context) (*Report, error) {
	if err := c.config.Validate(); err != nil {
		return nil, err
	}
	cfg := c.config.withDefaults()

	runID := uuid.NewString()
	logger := c.logger.With(zap.String("run_id", runID))
	now := c.now()

	report := NewReport(runID, cfg, now)
	metrics := &metricsAggregator{}

	discoverer := discovery.New(c.client, discovery.Options{
		Template: cfg.Template,
		MaxPages: cfg.MaxPages,
		Logger:   logger,
	})

	filter := NewRepoFilter(cfg.IncludePatterns, cfg.ExcludePatterns)
	seen := make(map[string]bool)
	var selected []discovery.RepositoryRef
	fresh := []discovery.RepositoryRef{}
	cutoff := now.Add(-time.Duration(cfg.NewWithinHours) * time.Hour)

	for _, owner := range cfg.Owners {
		c.status(fmt.Sprintf("Discovering repositories of %s...", owner))
		result := discoverer.DiscoverOwner(ctx, owner)
		report.Owners = append(report.Owners, OwnerSummary{
			Owner:        result.Owner,
			Strategy:     result.Strategy,
			Repositories: len(result.Repositories),
			Errors:       result.Errors,
		})

		for _, ref := range result.Repositories {
			key := strings.ToLower(ref.FullName)
			if seen[key] {
				continue
			}
			seen[key] = true

			metrics.scanned++
			if ref.IsFromTemplate {
				metrics.templateDerived++
				if cfg.NewWithinHours > 0 && !ref.CreatedAt.Before(cutoff) {
					fresh = append(fresh, ref)
				}
			}

			if cfg.Mode == ReportTemplateOnly && !ref.IsFromTemplate {
				continue
			}
			if !filter.Includes(ref) {
				metrics.excluded++
				continue
			}
			selected = append(selected, ref)
		}
	}

	if cfg.NewWithinHours > 0 {
		metrics.newInWindow = len(fresh)
		report.NewInWindow = &NewInWindow{
			WithinHours:  cfg.NewWithinHours,
			Repositories: fresh,
		}
	}

	logger.Info("discovery complete",
		zap.Int("scanned", metrics.scanned),
		zap.Int("template_derived", metrics.templateDerived),
		zap.Int("selected", len(selected)))

	auditor := audit.New(c.client, audit.Options{Branches: cfg.Branches, Logger: logger})
	engine := remediation.New(c.client, cfg.AutoFix.engineConfig(), logger)

	total := int64(len(selected))
	for i, ref := range selected {
		c.progress(int64(i+1), total, fmt.Sprintf("Auditing %s", ref.FullName))
		rec := auditor.Audit(ctx, ref)
		engine.Remediate(ctx, rec)
		metrics.countRecord(rec)
		report.Repositories = append(report.Repositories, rec)
	}

	report.Summary = metrics.toSummary()
	report.Scope.RepositoriesCoverage = percent(len(selected), len(selected)+metrics.excluded)

	c.status("Collection complete")
	logger.Info("collection complete",
		zap.Int("audited", report.Summary.Audited),
		zap.Int("pull_requests_opened", report.Summary.PullRequestsOpened),
		zap.Int("pull_requests_reused", report.Summary.PullRequestsReused),
		zap.Int("unknown_findings", report.Summary.UnknownFindings))

	return report, nil
}
