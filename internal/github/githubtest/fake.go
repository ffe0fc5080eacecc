// Package githubtest provides an in-memory GitHub platform for tests.
package githubtest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/locktivity/epack-collector-template-security/internal/github"
	"github.com/locktivity/epack-collector-template-security/internal/tristate"
)

// Ensure Fake implements github.GitHubClient.
var _ github.GitHubClient = (*Fake)(nil)

// NotFound returns the error the gateway produces for a 404.
func NotFound() error {
	return &github.APIError{Method: http.MethodGet, Endpoint: "fake", StatusCode: http.StatusNotFound, Message: "Not Found"}
}

// Forbidden returns the error the gateway produces for a 403.
func Forbidden() error {
	return &github.APIError{Method: http.MethodGet, Endpoint: "fake", StatusCode: http.StatusForbidden, Message: "Resource not accessible by integration"}
}

// ServerError returns the error the gateway produces for a 502.
func ServerError() error {
	return &github.APIError{Method: http.MethodGet, Endpoint: "fake", StatusCode: http.StatusBadGateway, Message: "Bad Gateway"}
}

// File is a file stored on a fake branch.
type File struct {
	Text string
	SHA  string
}

// Repo is a fake repository.
type Repo struct {
	Details                github.RepositoryDetails
	Branches               map[string]string          // branch -> tip commit
	Files                  map[string]map[string]File // branch -> path -> file
	Protection             map[string]*github.Protection
	VulnerabilityAlerts    tristate.State
	AutomatedSecurityFixes tristate.State
	PullRequests           []PullRequest
}

// PullRequest is a fake pull request.
type PullRequest struct {
	github.PullRequest
	Open bool
}

// OpenPullRequests returns the open pull requests of the repository.
func (r *Repo) OpenPullRequests() []github.PullRequest {
	var open []github.PullRequest
	for _, pr := range r.PullRequests {
		if pr.Open {
			open = append(open, pr.PullRequest)
		}
	}
	return open
}

// Fake is an in-memory platform. Errors registered with Fail take precedence
// over stored state; keys are the method name followed by its arguments,
// space separated, e.g. "GetBranch acme/svc develop".
type Fake struct {
	OrgRepos  map[string][]github.Repository
	UserRepos map[string][]github.Repository
	RESTRepos map[string][]github.RepositoryDetails
	Repos     map[string]*Repo

	Calls []string

	errors  map[string]error
	counter int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		OrgRepos:  map[string][]github.Repository{},
		UserRepos: map[string][]github.Repository{},
		RESTRepos: map[string][]github.RepositoryDetails{},
		Repos:     map[string]*Repo{},
		errors:    map[string]error{},
	}
}

// Fail registers err as the response of the call identified by key.
func (f *Fake) Fail(key string, err error) {
	f.errors[key] = err
}

// AddRepo registers a repository whose default branch starts at commit "base-0".
func (f *Fake) AddRepo(details github.RepositoryDetails) *Repo {
	branch := details.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	r := &Repo{
		Details:    details,
		Branches:   map[string]string{branch: "base-0"},
		Files:      map[string]map[string]File{branch: {}},
		Protection: map[string]*github.Protection{},
	}
	f.Repos[details.FullName] = r
	return r
}

// CallCount counts recorded calls starting with prefix.
func (f *Fake) CallCount(prefix string) int {
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *Fake) record(parts ...string) error {
	key := strings.Join(parts, " ")
	f.Calls = append(f.Calls, key)
	return f.errors[key]
}

func (f *Fake) next(prefix string) string {
	f.counter++
	return fmt.Sprintf("%s-%d", prefix, f.counter)
}

func (f *Fake) repo(owner, name string) (*Repo, error) {
	r, ok := f.Repos[owner+"/"+name]
	if !ok {
		return nil, NotFound()
	}
	return r, nil
}

func (f *Fake) ListOrganizationRepositories(ctx context.Context, org string, maxPages int) ([]github.Repository, error) {
	if err := f.record("ListOrganizationRepositories", org); err != nil {
		return nil, err
	}
	repos, ok := f.OrgRepos[org]
	if !ok {
		return nil, &github.APIError{Method: http.MethodPost, Endpoint: "graphql", Err: fmt.Errorf("Could not resolve to an Organization with the login of '%s'.", org)}
	}
	return repos, nil
}

func (f *Fake) ListUserRepositories(ctx context.Context, login string, maxPages int) ([]github.Repository, error) {
	if err := f.record("ListUserRepositories", login); err != nil {
		return nil, err
	}
	repos, ok := f.UserRepos[login]
	if !ok {
		return nil, &github.APIError{Method: http.MethodPost, Endpoint: "graphql", Err: fmt.Errorf("Could not resolve to a User with the login of '%s'.", login)}
	}
	return repos, nil
}

func (f *Fake) ListOwnerRepositories(ctx context.Context, owner string, maxPages int) ([]github.RepositoryDetails, error) {
	if err := f.record("ListOwnerRepositories", owner); err != nil {
		return nil, err
	}
	repos, ok := f.RESTRepos[owner]
	if !ok {
		return nil, NotFound()
	}
	return repos, nil
}

func (f *Fake) GetRepository(ctx context.Context, owner, repo string) (*github.RepositoryDetails, error) {
	if err := f.record("GetRepository", owner+"/"+repo); err != nil {
		return nil, err
	}
	r, err := f.repo(owner, repo)
	if err != nil {
		return nil, err
	}
	details := r.Details
	return &details, nil
}

func (f *Fake) GetContent(ctx context.Context, owner, repo, ref, path string) (*github.Content, error) {
	if err := f.record("GetContent", owner+"/"+repo, ref, path); err != nil {
		return nil, err
	}
	r, err := f.repo(owner, repo)
	if err != nil {
		return nil, err
	}
	file, ok := r.Files[ref][path]
	if !ok {
		return nil, NotFound()
	}
	return &github.Content{Type: github.ContentTypeFile, Path: path, SHA: file.SHA, Text: file.Text}, nil
}

func (f *Fake) ListDirectory(ctx context.Context, owner, repo, ref, path string) ([]github.Content, error) {
	if err := f.record("ListDirectory", owner+"/"+repo, ref, path); err != nil {
		return nil, err
	}
	r, err := f.repo(owner, repo)
	if err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(path, "/") + "/"
	var entries []github.Content
	for p, file := range r.Files[ref] {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		entries = append(entries, github.Content{Type: github.ContentTypeFile, Path: p, SHA: file.SHA})
	}
	if len(entries) == 0 {
		return nil, NotFound()
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (f *Fake) GetBranch(ctx context.Context, owner, repo, branch string) error {
	if err := f.record("GetBranch", owner+"/"+repo, branch); err != nil {
		return err
	}
	r, err := f.repo(owner, repo)
	if err != nil {
		return err
	}
	if _, ok := r.Branches[branch]; !ok {
		return NotFound()
	}
	return nil
}

func (f *Fake) GetBranchProtection(ctx context.Context, owner, repo, branch string) (*github.Protection, error) {
	if err := f.record("GetBranchProtection", owner+"/"+repo, branch); err != nil {
		return nil, err
	}
	r, err := f.repo(owner, repo)
	if err != nil {
		return nil, err
	}
	p, ok := r.Protection[branch]
	if !ok {
		return nil, NotFound()
	}
	return p, nil
}

func (f *Fake) VulnerabilityAlerts(ctx context.Context, owner, repo string) (tristate.State, error) {
	if err := f.record("VulnerabilityAlerts", owner+"/"+repo); err != nil {
		return tristate.Unknown, err
	}
	r, err := f.repo(owner, repo)
	if err != nil {
		return tristate.False, nil
	}
	return r.VulnerabilityAlerts, nil
}

func (f *Fake) AutomatedSecurityFixes(ctx context.Context, owner, repo string) (tristate.State, error) {
	if err := f.record("AutomatedSecurityFixes", owner+"/"+repo); err != nil {
		return tristate.Unknown, err
	}
	r, err := f.repo(owner, repo)
	if err != nil {
		return tristate.False, nil
	}
	return r.AutomatedSecurityFixes, nil
}

func (f *Fake) GetRef(ctx context.Context, owner, repo, branch string) (string, error) {
	if err := f.record("GetRef", owner+"/"+repo, branch); err != nil {
		return "", err
	}
	r, err := f.repo(owner, repo)
	if err != nil {
		return "", err
	}
	sha, ok := r.Branches[branch]
	if !ok {
		return "", NotFound()
	}
	return sha, nil
}

func (f *Fake) CreateRef(ctx context.Context, owner, repo, branch, sha string) error {
	if err := f.record("CreateRef", owner+"/"+repo, branch, sha); err != nil {
		return err
	}
	r, err := f.repo(owner, repo)
	if err != nil {
		return err
	}
	if _, exists := r.Branches[branch]; exists {
		return &github.APIError{Method: http.MethodPost, Endpoint: "fake", StatusCode: http.StatusUnprocessableEntity, Message: "Reference already exists"}
	}
	r.pointBranch(branch, sha)
	return nil
}

func (f *Fake) UpdateRef(ctx context.Context, owner, repo, branch, sha string, force bool) error {
	if err := f.record("UpdateRef", owner+"/"+repo, branch, sha, fmt.Sprintf("force=%t", force)); err != nil {
		return err
	}
	r, err := f.repo(owner, repo)
	if err != nil {
		return err
	}
	if _, exists := r.Branches[branch]; !exists {
		return &github.APIError{Method: http.MethodPatch, Endpoint: "fake", StatusCode: http.StatusUnprocessableEntity, Message: "Reference does not exist"}
	}
	r.pointBranch(branch, sha)
	return nil
}

// pointBranch moves branch to sha, taking the file tree of whichever branch
// currently has that tip.
func (r *Repo) pointBranch(branch, sha string) {
	files := map[string]File{}
	for name, tip := range r.Branches {
		if tip == sha {
			for p, file := range r.Files[name] {
				files[p] = file
			}
			break
		}
	}
	r.Branches[branch] = sha
	r.Files[branch] = files
}

func (f *Fake) ListOpenPullRequests(ctx context.Context, owner, repo, base string) ([]github.PullRequest, error) {
	if err := f.record("ListOpenPullRequests", owner+"/"+repo, base); err != nil {
		return nil, err
	}
	r, err := f.repo(owner, repo)
	if err != nil {
		return nil, err
	}
	var result []github.PullRequest
	for _, pr := range r.OpenPullRequests() {
		if pr.BaseRef == base {
			result = append(result, pr)
		}
	}
	return result, nil
}

// PutFile rejects a write to an existing path that does not carry the
// current blob SHA, as the platform does.
func (f *Fake) PutFile(ctx context.Context, owner, repo string, file github.FileUpdate) error {
	if err := f.record("PutFile", owner+"/"+repo, file.Branch, file.Path); err != nil {
		return err
	}
	r, err := f.repo(owner, repo)
	if err != nil {
		return err
	}
	files, ok := r.Files[file.Branch]
	if !ok {
		return NotFound()
	}
	if existing, exists := files[file.Path]; exists && existing.SHA != file.SHA {
		return &github.APIError{Method: http.MethodPut, Endpoint: "fake", StatusCode: http.StatusUnprocessableEntity, Message: "sha wasn't supplied"}
	}
	if _, exists := files[file.Path]; !exists && file.SHA != "" {
		return &github.APIError{Method: http.MethodPut, Endpoint: "fake", StatusCode: http.StatusConflict, Message: "sha does not match"}
	}
	files[file.Path] = File{Text: string(file.Content), SHA: f.next("blob")}
	r.Branches[file.Branch] = f.next("commit")
	return nil
}

func (f *Fake) CreatePullRequest(ctx context.Context, owner, repo string, pr github.NewPullRequest) (*github.PullRequest, error) {
	if err := f.record("CreatePullRequest", owner+"/"+repo, pr.Head, pr.Base); err != nil {
		return nil, err
	}
	r, err := f.repo(owner, repo)
	if err != nil {
		return nil, err
	}
	for _, existing := range r.OpenPullRequests() {
		if existing.HeadRef == pr.Head && existing.BaseRef == pr.Base {
			return nil, &github.APIError{Method: http.MethodPost, Endpoint: "fake", StatusCode: http.StatusUnprocessableEntity, Message: "A pull request already exists"}
		}
	}
	number := len(r.PullRequests) + 1
	created := github.PullRequest{
		Number:  number,
		URL:     fmt.Sprintf("https://github.com/%s/%s/pull/%d", owner, repo, number),
		HeadRef: pr.Head,
		BaseRef: pr.Base,
	}
	r.PullRequests = append(r.PullRequests, PullRequest{PullRequest: created, Open: true})
	return &created, nil
}
