package remediation

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Baseline file locations and labels.
const (
	CodeownersPath  = ".github/CODEOWNERS"
	CodeownersLabel = "CODEOWNERS"
	DependabotPath  = ".github/dependabot.yml"
	DependabotLabel = "dependabot.yml"

	DefaultDependabotEcosystem = "github-actions"
	DefaultDependabotInterval  = "weekly"
)

// Fix is one baseline file to write on the fix branch.
type Fix struct {
	Label   string
	Path    string
	Message string
	Content []byte
}

// Codeowners renders a CODEOWNERS file assigning every path to owner.
// The owner may be a user or a team ("org/team"), with or without "@".
func Codeowners(owner string) []byte {
	owner = "@" + strings.TrimPrefix(owner, "@")
	return []byte(strings.Join([]string{
		"# This file was generated by the template security posture automation.",
		"# Update owners as appropriate (team-based ownership recommended for orgs).",
		"* " + owner,
		"",
	}, "\n"))
}

type dependabotConfig struct {
	Version int                `yaml:"version"`
	Updates []dependabotUpdate `yaml:"updates"`
}

type dependabotUpdate struct {
	PackageEcosystem string             `yaml:"package-ecosystem"`
	Directory        string             `yaml:"directory"`
	Schedule         dependabotSchedule `yaml:"schedule"`
}

type dependabotSchedule struct {
	Interval string `yaml:"interval"`
}

// Dependabot renders a version 2 dependabot config with one update entry per
// ecosystem, all rooted at "/".
func Dependabot(ecosystems []string, interval string) ([]byte, error) {
	if len(ecosystems) == 0 {
		ecosystems = []string{DefaultDependabotEcosystem}
	}
	if interval == "" {
		interval = DefaultDependabotInterval
	}

	cfg := dependabotConfig{Version: 2}
	for _, eco := range ecosystems {
		cfg.Updates = append(cfg.Updates, dependabotUpdate{
			PackageEcosystem: eco,
			Directory:        "/",
			Schedule:         dependabotSchedule{Interval: interval},
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding dependabot config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding dependabot config: %w", err)
	}
	return buf.Bytes(), nil
}

func pullRequestBody(fixes []Fix) string {
	lines := []string{
		"This PR is automatically generated by the template security audit.",
		"",
		"Changes:",
	}
	for _, f := range fixes {
		lines = append(lines, fmt.Sprintf("- Add/update `%s`", f.Path))
	}
	lines = append(lines, "",
		"If you prefer a team-based CODEOWNERS rule, update `.github/CODEOWNERS` accordingly.")
	return strings.Join(lines, "\n")
}
