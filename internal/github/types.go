package github

import "time"

// RepositoryDetails is the REST view of a repository.
// SecurityAndAnalysis is nil when the platform omits the block entirely.
type RepositoryDetails struct {
	FullName            string
	HTMLURL             string
	CreatedAt           time.Time
	DefaultBranch       string
	TemplateFullName    string
	SecurityAndAnalysis *SecurityAndAnalysis
}

// SecurityAndAnalysis holds the per-feature status entries of a repository.
// Each entry is nil when the platform did not report it.
type SecurityAndAnalysis struct {
	AdvancedSecurity             *FeatureStatus
	SecretScanning               *FeatureStatus
	SecretScanningPushProtection *FeatureStatus
	DependabotSecurityUpdates    *FeatureStatus
}

// FeatureStatus is a single security-and-analysis entry ("enabled"/"disabled").
type FeatureStatus struct {
	Status string
}

// Content is a file or directory entry from the contents API.
type Content struct {
	Type string
	Path string
	SHA  string
	Text string
}

// Protection is the branch protection ruleset of a branch.
type Protection struct {
	RequiredStatusChecks           *StatusChecks       `json:"required_status_checks"`
	RequiredPullRequestReviews     *ReviewRequirements `json:"required_pull_request_reviews"`
	EnforceAdmins                  *EnabledSetting     `json:"enforce_admins"`
	RequiredLinearHistory          *EnabledSetting     `json:"required_linear_history"`
	RequiredConversationResolution *EnabledSetting     `json:"required_conversation_resolution"`
	AllowForcePushes               *EnabledSetting     `json:"allow_force_pushes"`
	AllowDeletions                 *EnabledSetting     `json:"allow_deletions"`
}

// StatusChecks lists required status checks. Older rulesets only carry
// Contexts; newer ones carry Checks.
type StatusChecks struct {
	Strict   bool          `json:"strict"`
	Contexts []string      `json:"contexts"`
	Checks   []StatusCheck `json:"checks"`
}

// StatusCheck is a single required check.
type StatusCheck struct {
	Context string `json:"context"`
}

// ReviewRequirements describes required pull request reviews.
type ReviewRequirements struct {
	RequiredApprovingReviewCount int  `json:"required_approving_review_count"`
	RequireCodeOwnerReviews      bool `json:"require_code_owner_reviews"`
}

// EnabledSetting is a protection toggle reported as {"enabled": bool}.
type EnabledSetting struct {
	Enabled bool `json:"enabled"`
}

// PullRequest is the subset of pull request fields the remediation flow needs.
type PullRequest struct {
	Number  int
	URL     string
	HeadRef string
	BaseRef string
}

// NewPullRequest describes a pull request to open.
type NewPullRequest struct {
	Title string
	Head  string
	Base  string
	Body  string
}

// FileUpdate writes Content to Path on Branch. SHA must carry the blob SHA
// of the existing file when one exists, otherwise the write is a creation.
type FileUpdate struct {
	Path    string
	Branch  string
	Message string
	Content []byte
	SHA     string
}
