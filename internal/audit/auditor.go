package audit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/locktivity/epack-collector-template-security/internal/discovery"
	"github.com/locktivity/epack-collector-template-security/internal/github"
	"github.com/locktivity/epack-collector-template-security/internal/tristate"
)

// Candidate locations, checked in order.
var (
	CodeownersPaths     = []string{".github/CODEOWNERS", "CODEOWNERS", "docs/CODEOWNERS"}
	SecurityPolicyPaths = []string{"SECURITY.md", ".github/SECURITY.md", "docs/SECURITY.md"}
)

const (
	DependabotPath = ".github/dependabot.yml"
	WorkflowsDir   = ".github/workflows"

	// FallbackBranch is used when discovery could not resolve a default branch.
	FallbackBranch = "main"
)

// Options configures an Auditor.
type Options struct {
	// Branches lists the branch names whose protection is audited.
	Branches []string
	Logger   *zap.Logger
}

// Auditor runs the baseline checks against one repository at a time.
type Auditor struct {
	client   github.RepositoryReader
	branches []string
	logger   *zap.Logger
}

// New creates an Auditor.
func New(client github.RepositoryReader, opts Options) *Auditor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		client:   client,
		branches: opts.Branches,
		logger:   logger,
	}
}

// Audit checks ref and returns its record. Failures of individual checks
// become Unknown findings with a note; Audit itself never fails.
func (a *Auditor) Audit(ctx context.Context, ref discovery.RepositoryRef) *ComplianceRecord {
	owner, name := ref.Owner(), ref.Name()
	branch := ref.DefaultBranch
	if branch == "" {
		branch = FallbackBranch
	}
	a.logger.Debug("auditing repository", zap.String("repository", ref.FullName), zap.String("ref", branch))

	rec := &ComplianceRecord{
		Repo:             ref,
		BranchProtection: make(map[string]BranchProtectionState, len(a.branches)),
		Workflows:        []WorkflowAnalysis{},
	}

	var err error
	rec.Codeowners, rec.CodeownersPath, err = a.firstPresent(ctx, owner, name, branch, CodeownersPaths)
	if err != nil {
		a.addNote(rec, "codeowners", err)
	}

	rec.Dependabot, _, err = a.firstPresent(ctx, owner, name, branch, []string{DependabotPath})
	if err != nil {
		a.addNote(rec, "dependabot", err)
	}

	rec.Security.SecurityPolicy, _, err = a.firstPresent(ctx, owner, name, branch, SecurityPolicyPaths)
	if err != nil {
		a.addNote(rec, "security policy", err)
	}

	a.auditSecuritySettings(ctx, rec, owner, name)

	for _, b := range a.branches {
		rec.BranchProtection[b] = a.branchProtection(ctx, rec, owner, name, b)
	}

	a.auditWorkflows(ctx, rec, owner, name, branch)

	return rec
}

// firstPresent checks candidate paths in order. The first readable path is a
// match. Without a match, any unreadable path makes the result Unknown; only
// when every path is confirmed absent is the result False. The returned
// error is the last non-NotFound failure.
func (a *Auditor) firstPresent(ctx context.Context, owner, repo, ref string, paths []string) (tristate.State, string, error) {
	var lastErr error
	for _, p := range paths {
		_, err := a.client.GetContent(ctx, owner, repo, ref, p)
		switch github.Classify(err) {
		case github.OutcomeSuccess:
			return tristate.True, p, nil
		case github.OutcomeNotFound:
			continue
		default:
			lastErr = err
		}
	}
	if lastErr != nil {
		return tristate.Unknown, "", lastErr
	}
	return tristate.False, "", nil
}

func (a *Auditor) auditSecuritySettings(ctx context.Context, rec *ComplianceRecord, owner, name string) {
	details, err := a.client.GetRepository(ctx, owner, name)
	switch {
	case err != nil:
		a.addNote(rec, "repository settings", err)
	case details.SecurityAndAnalysis == nil:
		rec.Notes = append(rec.Notes, "security_and_analysis not reported (personal account or missing permissions)")
	default:
		saa := details.SecurityAndAnalysis
		rec.Security.AdvancedSecurity = featureState(saa.AdvancedSecurity)
		rec.Security.SecretScanning = featureState(saa.SecretScanning)
		rec.Security.SecretScanningPushProtection = featureState(saa.SecretScanningPushProtection)
		rec.Security.DependabotSecurityUpdates = featureState(saa.DependabotSecurityUpdates)
	}

	rec.Security.VulnerabilityAlerts, err = a.client.VulnerabilityAlerts(ctx, owner, name)
	if err != nil {
		rec.Security.VulnerabilityAlerts = tristate.Unknown
		a.addNote(rec, "vulnerability alerts", err)
	}

	rec.Security.AutomatedSecurityFixes, err = a.client.AutomatedSecurityFixes(ctx, owner, name)
	if err != nil {
		rec.Security.AutomatedSecurityFixes = tristate.Unknown
		a.addNote(rec, "automated security fixes", err)
	}
}

func featureState(f *github.FeatureStatus) tristate.State {
	if f == nil {
		return tristate.Unknown
	}
	switch f.Status {
	case github.StatusEnabled:
		return tristate.True
	case github.StatusDisabled:
		return tristate.False
	default:
		return tristate.Unknown
	}
}

func (a *Auditor) branchProtection(ctx context.Context, rec *ComplianceRecord, owner, name, branch string) BranchProtectionState {
	err := a.client.GetBranch(ctx, owner, name, branch)
	switch github.Existence(err) {
	case tristate.False:
		return BranchProtectionState{Exists: tristate.False, Status: StatusMissing}
	case tristate.Unknown:
		a.addNote(rec, "branch "+branch, err)
		return BranchProtectionState{Exists: tristate.Unknown, Status: StatusUnknown, Message: err.Error()}
	}

	protection, err := a.client.GetBranchProtection(ctx, owner, name, branch)
	switch github.Classify(err) {
	case github.OutcomeSuccess:
	case github.OutcomeNotFound:
		return BranchProtectionState{Exists: tristate.True, Status: StatusUnprotected}
	case github.OutcomeForbidden:
		return BranchProtectionState{Exists: tristate.True, Status: StatusUnknown, Message: "access denied reading protection"}
	default:
		a.addNote(rec, "protection of "+branch, err)
		return BranchProtectionState{Exists: tristate.True, Status: StatusUnknown, Message: err.Error()}
	}

	state := BranchProtectionState{Exists: tristate.True, Status: StatusProtected}
	if sc := protection.RequiredStatusChecks; sc != nil {
		state.Strict = sc.Strict
		state.Contexts = statusContexts(sc)
	}
	if rv := protection.RequiredPullRequestReviews; rv != nil {
		state.Approvals = rv.RequiredApprovingReviewCount
		state.CodeownersRequired = rv.RequireCodeOwnerReviews
	}
	state.EnforceAdmins = enabled(protection.EnforceAdmins)
	state.LinearHistory = enabled(protection.RequiredLinearHistory)
	state.ConversationResolution = enabled(protection.RequiredConversationResolution)
	state.AllowForcePushes = enabled(protection.AllowForcePushes)
	state.AllowDeletions = enabled(protection.AllowDeletions)
	return state
}

// statusContexts prefers the legacy contexts list and falls back to checks.
func statusContexts(sc *github.StatusChecks) []string {
	if len(sc.Contexts) > 0 {
		return sc.Contexts
	}
	var contexts []string
	for _, c := range sc.Checks {
		if c.Context != "" {
			contexts = append(contexts, c.Context)
		}
	}
	return contexts
}

func enabled(s *github.EnabledSetting) bool {
	return s != nil && s.Enabled
}

func (a *Auditor) auditWorkflows(ctx context.Context, rec *ComplianceRecord, owner, name, ref string) {
	entries, err := a.client.ListDirectory(ctx, owner, name, ref, WorkflowsDir)
	switch github.Classify(err) {
	case github.OutcomeSuccess:
		rec.Actions.Listed = tristate.True
	case github.OutcomeNotFound:
		rec.Actions = summarizeActions(nil)
		rec.Actions.Listed = tristate.False
		return
	default:
		a.addNote(rec, "workflows", err)
		rec.Actions = summarizeActions(nil)
		return
	}

	for _, entry := range entries {
		if entry.Type != github.ContentTypeFile || !isWorkflowFile(entry.Path) {
			continue
		}
		content, err := a.client.GetContent(ctx, owner, name, ref, entry.Path)
		if err != nil {
			a.addNote(rec, entry.Path, err)
			continue
		}
		rec.Workflows = append(rec.Workflows, AnalyzeWorkflow(entry.Path, content.Text))
	}

	rec.Actions = summarizeActions(rec.Workflows)
	rec.Actions.Listed = tristate.True
}

// addNote records why a finding is Unknown.
func (a *Auditor) addNote(rec *ComplianceRecord, check string, err error) {
	a.logger.Warn("check failed",
		zap.String("repository", rec.Repo.FullName),
		zap.String("check", check),
		zap.String("outcome", github.Classify(err).String()),
		zap.Error(err))
	rec.Notes = append(rec.Notes, fmt.Sprintf("%s: %s", check, err))
}
