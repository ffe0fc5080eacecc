package collector

import (
	"github.com/locktivity/epack-collector-template-security/internal/audit"
	"github.com/locktivity/epack-collector-template-security/internal/tristate"
)

// metricsAggregator collects counts while records are produced.
type metricsAggregator struct {
	// Scope tracking
	scanned         int
	templateDerived int
	excluded        int
	newInWindow     int
	audited         int

	// Baseline files
	codeowners     int
	dependabot     int
	securityPolicy int

	// Security feature counts
	securityFeatures int
	secretScanning   int

	// Branches
	existingBranches  int
	protectedBranches int

	// Actions
	actionRefs int
	pinnedRefs int

	unknowns int

	// Remediation
	prsOpened   int
	prsReused   int
	fixFailures int
	fixSkipped  int
}

// countRecord updates metrics from one compliance record.
func (m *metricsAggregator) countRecord(rec *audit.ComplianceRecord) {
	m.audited++

	if rec.Codeowners == tristate.True {
		m.codeowners++
	}
	if rec.Dependabot == tristate.True {
		m.dependabot++
	}
	if rec.Security.SecurityPolicy == tristate.True {
		m.securityPolicy++
	}
	if rec.Security.SecretScanning == tristate.True {
		m.secretScanning++
	}
	m.countSecurityFeatures(rec.Security)

	for _, bp := range rec.BranchProtection {
		if bp.Exists != tristate.True {
			continue
		}
		m.existingBranches++
		if bp.Status == audit.StatusProtected {
			m.protectedBranches++
		}
	}

	m.actionRefs += rec.Actions.TotalActionRefs
	m.pinnedRefs += rec.Actions.PinnedRefs
	m.unknowns += rec.Unknowns()

	m.countAutofix(rec.Autofix)
}

// countSecurityFeatures counts the platform features confirmed enabled.
func (m *metricsAggregator) countSecurityFeatures(s audit.SecurityPosture) {
	for _, state := range []tristate.State{
		s.VulnerabilityAlerts,
		s.AutomatedSecurityFixes,
		s.AdvancedSecurity,
		s.SecretScanning,
		s.SecretScanningPushProtection,
		s.DependabotSecurityUpdates,
	} {
		if state == tristate.True {
			m.securityFeatures++
		}
	}
}

func (m *metricsAggregator) countAutofix(a audit.AutofixOutcome) {
	switch {
	case a.Attempted && a.Reason != "":
		m.fixFailures++
	case a.Reason != "":
		m.fixSkipped++
	case a.PRURL != "" && a.Reused:
		m.prsReused++
	case a.PRURL != "":
		m.prsOpened++
	}
}

// securityFeaturesCoverage calculates the average coverage across all security features.
func (m *metricsAggregator) securityFeaturesCoverage() int {
	if m.audited == 0 {
		return 0
	}
	return (m.securityFeatures * MaxPercentage) / (m.audited * NumSecurityFeatures)
}

// actionsPinnedPct is 100 when no action references were seen.
func (m *metricsAggregator) actionsPinnedPct() int {
	if m.actionRefs == 0 {
		return MaxPercentage
	}
	return percent(m.pinnedRefs, m.actionRefs)
}

func (m *metricsAggregator) toSummary() Summary {
	return Summary{
		ReposScanned:    m.scanned,
		TemplateDerived: m.templateDerived,
		Audited:         m.audited,
		Excluded:        m.excluded,
		NewInWindow:     m.newInWindow,
		Coverage: Coverage{
			Codeowners:        percent(m.codeowners, m.audited),
			Dependabot:        percent(m.dependabot, m.audited),
			SecurityPolicy:    percent(m.securityPolicy, m.audited),
			SecretScanning:    percent(m.secretScanning, m.audited),
			SecurityFeatures:  m.securityFeaturesCoverage(),
			ProtectedBranches: percent(m.protectedBranches, m.existingBranches),
		},
		ActionsPinnedPct:   m.actionsPinnedPct(),
		PullRequestsOpened: m.prsOpened,
		PullRequestsReused: m.prsReused,
		AutofixFailures:    m.fixFailures,
		AutofixSkipped:     m.fixSkipped,
		UnknownFindings:    m.unknowns,
	}
}

// percent calculates the percentage of count over total, returning 0 if total is 0.
func percent(count, total int) int {
	if total == 0 {
		return 0
	}
	return (count * MaxPercentage) / total
}
