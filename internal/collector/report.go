// Package collector runs one audit of template-derived repositories and
// assembles the findings document.
package collector

import (
	"time"

	"github.com/locktivity/epack-collector-template-security/internal/audit"
	"github.com/locktivity/epack-collector-template-security/internal/discovery"
)

// SchemaVersion is the version of the output schema.
const SchemaVersion = "1.0.0"

// Report is the findings document of one run.
type Report struct {
	SchemaVersion string                    `json:"schema_version"`
	RunID         string                    `json:"run_id"`
	CollectedAt   string                    `json:"collected_at"`
	Template      string                    `json:"template"`
	Owners        []OwnerSummary            `json:"owners"`
	ReportMode    ReportMode                `json:"report_mode"`
	Branches      []string                  `json:"branches"`
	AutoFix       AutoFixSettings           `json:"auto_fix"`
	Scope         Scope                     `json:"scope"`
	Summary       Summary                   `json:"summary"`
	NewInWindow   *NewInWindow              `json:"new_in_window,omitempty"`
	Repositories  []*audit.ComplianceRecord `json:"repositories"`
}

// OwnerSummary describes how an owner's repositories were discovered.
type OwnerSummary struct {
	Owner        string             `json:"owner"`
	Strategy     discovery.Strategy `json:"strategy"`
	Repositories int                `json:"repositories"`
	Errors       []string           `json:"errors,omitempty"`
}

// AutoFixSettings echoes the remediation settings of the run.
type AutoFixSettings struct {
	Enabled         bool `json:"enabled"`
	MaxPullRequests int  `json:"max_pull_requests"`
	Codeowners      bool `json:"codeowners"`
	Dependabot      bool `json:"dependabot"`
}

// Scope describes what was included and excluded from the audit.
type Scope struct {
	IncludePatterns      []string `json:"include_patterns"`
	ExcludePatterns      []string `json:"exclude_patterns"`
	RepositoriesCoverage int      `json:"repositories_coverage"`
}

// NewInWindow lists template-derived repositories created within the window.
type NewInWindow struct {
	WithinHours  int                       `json:"within_hours"`
	Repositories []discovery.RepositoryRef `json:"repositories"`
}

// Summary aggregates the run.
type Summary struct {
	ReposScanned       int      `json:"repos_scanned"`
	TemplateDerived    int      `json:"template_derived"`
	Audited            int      `json:"audited"`
	Excluded           int      `json:"excluded"`
	NewInWindow        int      `json:"new_in_window"`
	Coverage           Coverage `json:"coverage"`
	ActionsPinnedPct   int      `json:"actions_pinned_pct"`
	PullRequestsOpened int      `json:"pull_requests_opened"`
	PullRequestsReused int      `json:"pull_requests_reused"`
	AutofixFailures    int      `json:"autofix_failures"`
	AutofixSkipped     int      `json:"autofix_skipped"`
	UnknownFindings    int      `json:"unknown_findings"`
}

// Coverage holds percentages of audited repositories where a check is confirmed true.
type Coverage struct {
	Codeowners        int `json:"codeowners"`
	Dependabot        int `json:"dependabot"`
	SecurityPolicy    int `json:"security_policy"`
	SecretScanning    int `json:"secret_scanning"`
	SecurityFeatures  int `json:"security_features"`
	ProtectedBranches int `json:"protected_branches"`
}

// NewReport creates a Report with the current timestamp.
func NewReport(runID string, config Config, now time.Time) *Report {
	return &Report{
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		CollectedAt:   now.UTC().Format(time.RFC3339),
		Template:      config.Template,
		Owners:        []OwnerSummary{},
		ReportMode:    config.Mode,
		Branches:      config.Branches,
		AutoFix: AutoFixSettings{
			Enabled:         config.AutoFix.Enabled,
			MaxPullRequests: config.AutoFix.MaxPullRequests,
			Codeowners:      config.AutoFix.Codeowners,
			Dependabot:      config.AutoFix.Dependabot,
		},
		Scope: Scope{
			IncludePatterns: config.IncludePatterns,
			ExcludePatterns: config.ExcludePatterns,
		},
		Repositories: []*audit.ComplianceRecord{},
	}
}
