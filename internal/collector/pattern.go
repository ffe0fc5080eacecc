package collector

import (
	"regexp"
	"strings"

	"github.com/locktivity/epack-collector-template-security/internal/discovery"
)

var globReplacer = strings.NewReplacer(`\*`, ".*", `\?`, ".")

// glob is a compiled name pattern. Qualified patterns ("owner/name") match
// the full name, the others match the repository name only.
type glob struct {
	qualified bool
	re        *regexp.Regexp
}

func compileGlob(pattern string) glob {
	expr := "^" + globReplacer.Replace(regexp.QuoteMeta(pattern)) + "$"
	return glob{
		qualified: strings.Contains(pattern, "/"),
		re:        regexp.MustCompile(expr),
	}
}

func (g glob) match(ref discovery.RepositoryRef) bool {
	if g.qualified {
		return g.re.MatchString(ref.FullName)
	}
	return g.re.MatchString(ref.Name())
}

// RepoFilter selects repositories by include and exclude globs.
// Supports * (any characters) and ? (single character) wildcards.
type RepoFilter struct {
	include []glob
	exclude []glob
}

// NewRepoFilter compiles the patterns. An empty include list includes everything.
func NewRepoFilter(include, exclude []string) *RepoFilter {
	f := &RepoFilter{}
	for _, p := range include {
		f.include = append(f.include, compileGlob(p))
	}
	for _, p := range exclude {
		f.exclude = append(f.exclude, compileGlob(p))
	}
	return f
}

// Includes reports whether ref is selected. Exclusions take precedence.
func (f *RepoFilter) Includes(ref discovery.RepositoryRef) bool {
	for _, g := range f.exclude {
		if g.match(ref) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, g := range f.include {
		if g.match(ref) {
			return true
		}
	}
	return false
}
