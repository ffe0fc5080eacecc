package collector

import (
	"testing"

	"github.com/locktivity/epack-collector-template-security/internal/discovery"
)

func TestRepoFilter_Globs(t *testing.T) {
	tests := []struct {
		name    string
		repo    string
		pattern string
		want    bool
	}{
		{"star matches anything", "acme/any-repo", "*", true},
		{"literal", "acme/svc", "svc", true},
		{"literal other name", "acme/svc", "web", false},
		{"trailing star", "acme/svc-api", "svc-*", true},
		{"leading star", "acme/svc-legacy", "*-legacy", true},
		{"inner star", "acme/svc-api-v2", "svc-*-v2", true},
		{"question mark", "acme/svc1", "svc?", true},
		{"question mark is one char", "acme/svc12", "svc?", false},
		{"dot is literal", "acme/svcXapi", "svc.api", false},
		{"owner ignored for bare patterns", "acme/svc", "acme*", false},
		{"qualified pattern", "acme/svc-api", "acme/svc-*", true},
		{"qualified pattern other owner", "other/svc-api", "acme/svc-*", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := discovery.RepositoryRef{FullName: tt.repo}
			got := NewRepoFilter([]string{tt.pattern}, nil).Includes(ref)
			if got != tt.want {
				t.Errorf("pattern %q on %q = %v, want %v", tt.pattern, tt.repo, got, tt.want)
			}
		})
	}
}

func TestRepoFilter_Includes(t *testing.T) {
	tests := []struct {
		name    string
		repo    string
		include []string
		exclude []string
		want    bool
	}{
		{name: "no patterns", repo: "acme/svc", want: true},
		{name: "exclude wins over include", repo: "acme/svc-legacy", include: []string{"svc-*"}, exclude: []string{"*-legacy"}, want: false},
		{name: "any include matches", repo: "acme/web-app", include: []string{"svc-*", "web-*"}, want: true},
		{name: "no include matches", repo: "acme/tools", include: []string{"svc-*", "web-*"}, want: false},
		{name: "exclude only", repo: "sandbox/svc", exclude: []string{"sandbox/*"}, want: false},
		{name: "exclude only keeps other owners", repo: "acme/svc", exclude: []string{"sandbox/*"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := discovery.RepositoryRef{FullName: tt.repo}
			if got := NewRepoFilter(tt.include, tt.exclude).Includes(ref); got != tt.want {
				t.Errorf("Includes(%q) with include=%v exclude=%v = %v, want %v",
					tt.repo, tt.include, tt.exclude, got, tt.want)
			}
		})
	}
}
