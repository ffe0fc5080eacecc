// Package audit checks a repository against the security baseline and
// produces one ComplianceRecord per audited repository.
package audit

import (
	"github.com/locktivity/epack-collector-template-security/internal/discovery"
	"github.com/locktivity/epack-collector-template-security/internal/tristate"
)

// ProtectionStatus summarizes the protection of one branch.
type ProtectionStatus string

const (
	StatusProtected   ProtectionStatus = "protected"
	StatusUnprotected ProtectionStatus = "unprotected"
	StatusMissing     ProtectionStatus = "missing"
	StatusUnknown     ProtectionStatus = "unknown"
)

// BranchProtectionState is the audited state of one configured branch.
// Exists=False always comes with StatusMissing; an existing branch without a
// ruleset is StatusUnprotected.
type BranchProtectionState struct {
	Exists                 tristate.State   `json:"exists"`
	Status                 ProtectionStatus `json:"status"`
	Strict                 bool             `json:"strict,omitempty"`
	Contexts               []string         `json:"contexts,omitempty"`
	Approvals              int              `json:"approvals,omitempty"`
	CodeownersRequired     bool             `json:"codeowners_required,omitempty"`
	LinearHistory          bool             `json:"linear_history,omitempty"`
	ConversationResolution bool             `json:"conversation_resolution,omitempty"`
	EnforceAdmins          bool             `json:"enforce_admins,omitempty"`
	AllowForcePushes       bool             `json:"allow_force_pushes,omitempty"`
	AllowDeletions         bool             `json:"allow_deletions,omitempty"`
	Message                string           `json:"message,omitempty"`
}

// SecurityPosture holds the platform security settings of a repository.
type SecurityPosture struct {
	SecurityPolicy               tristate.State `json:"security_policy"`
	VulnerabilityAlerts          tristate.State `json:"vulnerability_alerts"`
	AutomatedSecurityFixes       tristate.State `json:"automated_security_fixes"`
	AdvancedSecurity             tristate.State `json:"advanced_security"`
	SecretScanning               tristate.State `json:"secret_scanning"`
	SecretScanningPushProtection tristate.State `json:"secret_scanning_push_protection"`
	DependabotSecurityUpdates    tristate.State `json:"dependabot_security_updates"`
}

// WorkflowAnalysis is the textual scan result of one workflow file.
type WorkflowAnalysis struct {
	Path                          string `json:"path"`
	TotalActionRefs               int    `json:"total_action_refs"`
	PinnedRefs                    int    `json:"pinned_refs"`
	PinnedPct                     int    `json:"pinned_pct"`
	UsesElevatedTrigger           bool   `json:"uses_elevated_trigger"`
	CredentialPersistenceDisabled bool   `json:"credential_persistence_disabled"`
	HasPermissionsBlock           bool   `json:"has_permissions_block"`
}

// ActionsSummary aggregates the workflow analyses of a repository.
// Listed is False when the workflows directory does not exist and Unknown
// when it could not be read.
type ActionsSummary struct {
	Listed                           tristate.State `json:"listed"`
	TotalActionRefs                  int            `json:"total_action_refs"`
	PinnedRefs                       int            `json:"pinned_refs"`
	PinnedPct                        int            `json:"pinned_pct"`
	AnyElevatedTrigger               bool           `json:"any_elevated_trigger"`
	AnyCredentialPersistenceDisabled bool           `json:"any_credential_persistence_disabled"`
	AnyPermissionsBlock              bool           `json:"any_permissions_block"`
}

// AutofixOutcome records what remediation did for a repository.
type AutofixOutcome struct {
	Attempted    bool     `json:"attempted"`
	PRURL        string   `json:"pr_url,omitempty"`
	Reused       bool     `json:"reused"`
	FilesApplied []string `json:"files_applied,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

// ComplianceRecord is the audit result of one repository.
type ComplianceRecord struct {
	Repo             discovery.RepositoryRef          `json:"repository"`
	Codeowners       tristate.State                   `json:"codeowners"`
	CodeownersPath   string                           `json:"codeowners_path,omitempty"`
	Dependabot       tristate.State                   `json:"dependabot"`
	Security         SecurityPosture                  `json:"security"`
	BranchProtection map[string]BranchProtectionState `json:"branch_protection"`
	Workflows        []WorkflowAnalysis               `json:"workflows"`
	Actions          ActionsSummary                   `json:"actions"`
	Autofix          AutofixOutcome                   `json:"autofix"`
	Notes            []string                         `json:"notes,omitempty"`
}

// Unknowns counts the tri-state findings of the record that are Unknown.
func (r *ComplianceRecord) Unknowns() int {
	states := []tristate.State{
		r.Codeowners,
		r.Dependabot,
		r.Security.SecurityPolicy,
		r.Security.VulnerabilityAlerts,
		r.Security.AutomatedSecurityFixes,
		r.Security.AdvancedSecurity,
		r.Security.SecretScanning,
		r.Security.SecretScanningPushProtection,
		r.Security.DependabotSecurityUpdates,
	}
	n := 0
	for _, s := range states {
		if !s.Known() {
			n++
		}
	}
	for _, bp := range r.BranchProtection {
		if bp.Status == StatusUnknown {
			n++
		}
	}
	return n
}
