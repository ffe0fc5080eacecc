package audit

import (
	"math"
	"regexp"
	"strings"
)

var (
	usesPattern        = regexp.MustCompile(`\buses:\s*([^\s#]+)`)
	pinnedPattern      = regexp.MustCompile(`@[0-9a-fA-F]{40}$`)
	elevatedTrigger    = regexp.MustCompile(`(?s)\bon:\s*.*\bpull_request_target\b`)
	persistCredsOff    = regexp.MustCompile(`(?s)uses:\s*actions/checkout@[^\n]+.*persist-credentials:\s*false`)
	topLevelPermission = regexp.MustCompile(`(?m)^permissions\s*:`)
)

// AnalyzeWorkflow scans workflow text for action references and hardening
// markers. The scan is textual; the YAML is never parsed.
func AnalyzeWorkflow(path, text string) WorkflowAnalysis {
	analysis := WorkflowAnalysis{Path: path}

	for _, m := range usesPattern.FindAllStringSubmatch(text, -1) {
		ref := strings.Trim(m[1], `"'`)
		analysis.TotalActionRefs++
		if pinnedPattern.MatchString(ref) {
			analysis.PinnedRefs++
		}
	}
	analysis.PinnedPct = pinnedPercent(analysis.PinnedRefs, analysis.TotalActionRefs)

	analysis.UsesElevatedTrigger = elevatedTrigger.MatchString(text)
	analysis.CredentialPersistenceDisabled = persistCredsOff.MatchString(text)
	analysis.HasPermissionsBlock = topLevelPermission.MatchString(text)
	return analysis
}

// summarizeActions aggregates per-file analyses.
func summarizeActions(analyses []WorkflowAnalysis) ActionsSummary {
	var s ActionsSummary
	for _, a := range analyses {
		s.TotalActionRefs += a.TotalActionRefs
		s.PinnedRefs += a.PinnedRefs
		s.AnyElevatedTrigger = s.AnyElevatedTrigger || a.UsesElevatedTrigger
		s.AnyCredentialPersistenceDisabled = s.AnyCredentialPersistenceDisabled || a.CredentialPersistenceDisabled
		s.AnyPermissionsBlock = s.AnyPermissionsBlock || a.HasPermissionsBlock
	}
	s.PinnedPct = pinnedPercent(s.PinnedRefs, s.TotalActionRefs)
	return s
}

// pinnedPercent is 100 when there is nothing to pin.
func pinnedPercent(pinned, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(pinned) * 100 / float64(total)))
}

func isWorkflowFile(path string) bool {
	return strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml")
}
