package collector

import (
	"fmt"
	"strings"

	"github.com/locktivity/epack-collector-template-security/internal/remediation"
)

// StatusFunc is called to report indeterminate status updates.
type StatusFunc func(message string)

// ProgressFunc is called to report determinate progress (current/total).
type ProgressFunc func(current, total int64, message string)

// ReportMode selects which discovered repositories are audited.
type ReportMode string

const (
	ReportTemplateOnly ReportMode = "template-only"
	ReportAll          ReportMode = "all"
)

// Config holds the run configuration.
type Config struct {
	Owners   []string   `json:"owners" mapstructure:"owners"`
	Template string     `json:"template" mapstructure:"template"`
	Branches []string   `json:"branches" mapstructure:"branches"`
	Mode     ReportMode `json:"report_mode" mapstructure:"report_mode"`

	GitHubToken    string `json:"-" mapstructure:"github_token"`    // PAT or installation token
	AppID          int64  `json:"-" mapstructure:"app_id"`          // GitHub App ID
	InstallationID int64  `json:"-" mapstructure:"installation_id"` // GitHub App installation ID
	PrivateKey     string `json:"-" mapstructure:"private_key"`     // GitHub App private key (PEM)

	IncludePatterns []string `json:"include_patterns" mapstructure:"include_patterns"`
	ExcludePatterns []string `json:"exclude_patterns" mapstructure:"exclude_patterns"`

	// NewWithinHours lists template-derived repositories created in the
	// window; 0 disables it.
	NewWithinHours int `json:"new_within_hours" mapstructure:"new_within_hours"`
	// MaxPages bounds each repository listing; 0 means unbounded.
	MaxPages int `json:"max_pages" mapstructure:"max_pages"`

	AutoFix AutoFixConfig `json:"auto_fix" mapstructure:"auto_fix"`

	// Progress callbacks (optional, set by main to report status)
	OnStatus   StatusFunc   `json:"-" mapstructure:"-"`
	OnProgress ProgressFunc `json:"-" mapstructure:"-"`
}

// AutoFixConfig controls remediation pull requests.
type AutoFixConfig struct {
	Enabled              bool     `json:"enabled" mapstructure:"enabled"`
	MaxPullRequests      int      `json:"max_pull_requests" mapstructure:"max_pull_requests"`
	Codeowners           bool     `json:"codeowners" mapstructure:"codeowners"`
	Dependabot           bool     `json:"dependabot" mapstructure:"dependabot"`
	CodeownersOwner      string   `json:"codeowners_owner,omitempty" mapstructure:"codeowners_owner"`
	DependabotEcosystems []string `json:"dependabot_ecosystems,omitempty" mapstructure:"dependabot_ecosystems"`
	DependabotInterval   string   `json:"dependabot_interval,omitempty" mapstructure:"dependabot_interval"`
}

// DefaultConfig returns the configuration that decoding starts from.
// Auto-fix is disabled; both generators are enabled once it is turned on.
func DefaultConfig() Config {
	return Config{
		Branches: append([]string(nil), DefaultBranches...),
		Mode:     ReportTemplateOnly,
		AutoFix: AutoFixConfig{
			MaxPullRequests: remediation.DefaultMaxPullRequests,
			Codeowners:      true,
			Dependabot:      true,
		},
	}
}

// ConfigError is a fatal configuration problem found before any network call.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// HasAppAuth reports whether GitHub App credentials are configured.
func (c Config) HasAppAuth() bool {
	return c.AppID != 0 && c.PrivateKey != ""
}

// Validate checks the configuration and returns a *ConfigError for the first problem.
func (c Config) Validate() error {
	switch {
	case c.AppID != 0 && c.PrivateKey == "":
		return &ConfigError{Field: "private_key", Message: "required when app_id is set"}
	case c.HasAppAuth() && c.InstallationID == 0:
		return &ConfigError{Field: "installation_id", Message: "required when using GitHub App authentication"}
	case !c.HasAppAuth() && c.GitHubToken == "":
		return &ConfigError{Field: "github_token", Message: "authentication required: provide a token or app_id + private_key"}
	}

	owner, name, ok := strings.Cut(c.Template, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return &ConfigError{Field: "template", Message: fmt.Sprintf("must be owner/name, got %q", c.Template)}
	}

	if len(c.Owners) == 0 {
		return &ConfigError{Field: "owners", Message: "at least one owner is required"}
	}
	for _, o := range c.Owners {
		if strings.TrimSpace(o) == "" {
			return &ConfigError{Field: "owners", Message: "owner names must not be empty"}
		}
	}

	switch c.Mode {
	case "", ReportTemplateOnly, ReportAll:
	default:
		return &ConfigError{Field: "report_mode", Message: fmt.Sprintf("must be %q or %q, got %q", ReportTemplateOnly, ReportAll, c.Mode)}
	}

	if c.AutoFix.MaxPullRequests < 0 {
		return &ConfigError{Field: "auto_fix.max_pull_requests", Message: "must be a non-negative integer"}
	}
	if c.MaxPages < 0 {
		return &ConfigError{Field: "max_pages", Message: "must be a non-negative integer"}
	}
	if c.NewWithinHours < 0 {
		return &ConfigError{Field: "new_within_hours", Message: "must be a non-negative integer"}
	}
	return nil
}

// withDefaults fills values that have no meaningful zero.
func (c Config) withDefaults() Config {
	c.Owners = uniqueOwners(c.Owners)
	if len(c.Branches) == 0 {
		c.Branches = append([]string(nil), DefaultBranches...)
	}
	if c.Mode == "" {
		c.Mode = ReportTemplateOnly
	}
	if len(c.IncludePatterns) == 0 {
		c.IncludePatterns = []string{DefaultIncludePattern}
	}
	if c.ExcludePatterns == nil {
		c.ExcludePatterns = []string{}
	}
	return c
}

// uniqueOwners drops repeated owners, ignoring case. Owner logins are
// case-insensitive on GitHub.
func uniqueOwners(owners []string) []string {
	seen := make(map[string]bool, len(owners))
	result := make([]string, 0, len(owners))
	for _, o := range owners {
		o = strings.TrimSpace(o)
		key := strings.ToLower(o)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, o)
	}
	return result
}

func (a AutoFixConfig) engineConfig() remediation.Config {
	return remediation.Config{
		Enabled:              a.Enabled,
		MaxPullRequests:      a.MaxPullRequests,
		FixCodeowners:        a.Codeowners,
		FixDependabot:        a.Dependabot,
		CodeownersOwner:      a.CodeownersOwner,
		DependabotEcosystems: a.DependabotEcosystems,
		DependabotInterval:   a.DependabotInterval,
	}
}
