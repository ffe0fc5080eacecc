package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gh "github.com/google/go-github/v75/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/locktivity/epack-collector-template-security/internal/tristate"
)

// RepositoryLister enumerates repositories of an owner.
type RepositoryLister interface {
	ListOrganizationRepositories(ctx context.Context, org string, maxPages int) ([]Repository, error)
	ListUserRepositories(ctx context.Context, login string, maxPages int) ([]Repository, error)
	ListOwnerRepositories(ctx context.Context, owner string, maxPages int) ([]RepositoryDetails, error)
	GetRepository(ctx context.Context, owner, repo string) (*RepositoryDetails, error)
}

// RepositoryReader performs the read-only calls of an audit.
type RepositoryReader interface {
	GetRepository(ctx context.Context, owner, repo string) (*RepositoryDetails, error)
	GetContent(ctx context.Context, owner, repo, ref, path string) (*Content, error)
	ListDirectory(ctx context.Context, owner, repo, ref, path string) ([]Content, error)
	GetBranch(ctx context.Context, owner, repo, branch string) error
	GetBranchProtection(ctx context.Context, owner, repo, branch string) (*Protection, error)
	VulnerabilityAlerts(ctx context.Context, owner, repo string) (tristate.State, error)
	AutomatedSecurityFixes(ctx context.Context, owner, repo string) (tristate.State, error)
}

// RepositoryWriter performs the calls of a remediation.
type RepositoryWriter interface {
	GetRepository(ctx context.Context, owner, repo string) (*RepositoryDetails, error)
	GetContent(ctx context.Context, owner, repo, ref, path string) (*Content, error)
	GetRef(ctx context.Context, owner, repo, branch string) (string, error)
	CreateRef(ctx context.Context, owner, repo, branch, sha string) error
	UpdateRef(ctx context.Context, owner, repo, branch, sha string, force bool) error
	ListOpenPullRequests(ctx context.Context, owner, repo, base string) ([]PullRequest, error)
	PutFile(ctx context.Context, owner, repo string, file FileUpdate) error
	CreatePullRequest(ctx context.Context, owner, repo string, pr NewPullRequest) (*PullRequest, error)
}

// GitHubClient defines the interface for GitHub API operations.
// This interface allows for easy substitution in tests.
type GitHubClient interface {
	RepositoryLister
	RepositoryReader
	RepositoryWriter
}

// Client wraps the GitHub GraphQL and REST clients.
type Client struct {
	graphql *githubv4.Client
	rest    *gh.Client
}

// Ensure Client implements GitHubClient.
var _ GitHubClient = (*Client)(nil)

// NewClient creates a new GitHub client with the given token.
func NewClient(token string) *Client {
	src := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	httpClient := oauth2.NewClient(context.Background(), src)
	return newClient(httpClient, DefaultBaseURL, githubv4.NewClient(httpClient))
}

// NewClientWithHTTP creates a client with a custom HTTP client and REST base URL (for testing).
func NewClientWithHTTP(httpClient *http.Client, baseURL string) *Client {
	return newClient(httpClient, baseURL, nil)
}

// NewClientWithGraphQL creates a client with custom HTTP client, base URL, and GraphQL endpoint (for testing).
func NewClientWithGraphQL(httpClient *http.Client, baseURL, graphqlURL string) *Client {
	return newClient(httpClient, baseURL, githubv4.NewEnterpriseClient(graphqlURL, httpClient))
}

// NewClientFromApp creates a client using GitHub App installation authentication.
func NewClientFromApp(appID, installationID int64, privateKey []byte) (*Client, error) {
	itr, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App transport: %w", err)
	}

	httpClient := &http.Client{Transport: itr}
	return newClient(httpClient, DefaultBaseURL, githubv4.NewClient(httpClient)), nil
}

func newClient(httpClient *http.Client, baseURL string, graphql *githubv4.Client) *Client {
	rest := gh.NewClient(httpClient)
	if u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/"); err == nil {
		rest.BaseURL = u
	}
	rest.UserAgent = UserAgent
	return &Client{graphql: graphql, rest: rest}
}

// do issues a REST call and decodes a 2xx body into into (when non-nil).
// Every failure comes back as *APIError.
func (c *Client) do(ctx context.Context, method, endpoint string, body, into any) error {
	req, err := c.rest.NewRequest(method, endpoint, body)
	if err != nil {
		return &APIError{Method: method, Endpoint: endpoint, Err: err}
	}
	setAPIHeaders(req)

	resp, err := c.rest.Do(ctx, req, into)
	if err == nil {
		return nil
	}

	var accepted *gh.AcceptedError
	if errors.As(err, &accepted) {
		return nil
	}

	apiErr := &APIError{Method: method, Endpoint: endpoint, Err: err}
	if resp != nil && resp.Response != nil {
		apiErr.StatusCode = resp.StatusCode
	}
	var errResp *gh.ErrorResponse
	if errors.As(err, &errResp) {
		apiErr.Message = errResp.Message
	}
	return apiErr
}

// statusFlag reads a feature toggle that is encoded purely in the status
// code: 2xx is enabled, 404 disabled, 403 unknown. Any other outcome is
// returned as an error together with Unknown.
func (c *Client) statusFlag(ctx context.Context, endpoint string) (tristate.State, error) {
	err := c.do(ctx, http.MethodGet, endpoint, nil, nil)
	switch Classify(err) {
	case OutcomeSuccess:
		return tristate.True, nil
	case OutcomeNotFound:
		return tristate.False, nil
	case OutcomeForbidden:
		return tristate.Unknown, nil
	default:
		return tristate.Unknown, err
	}
}

// ListOrganizationRepositories lists an organization's repositories via GraphQL.
func (c *Client) ListOrganizationRepositories(ctx context.Context, org string, maxPages int) ([]Repository, error) {
	return collectPages(maxPages, func(cursor *githubv4.String) ([]Repository, PageInfo, error) {
		var query OrganizationRepositoriesQuery
		if err := c.query(ctx, &query, map[string]any{
			"login":  githubv4.String(org),
			"cursor": cursor,
		}); err != nil {
			return nil, PageInfo{}, err
		}
		conn := query.Organization.Repositories
		return conn.Nodes, conn.PageInfo, nil
	})
}

// ListUserRepositories lists an individual account's repositories via GraphQL.
func (c *Client) ListUserRepositories(ctx context.Context, login string, maxPages int) ([]Repository, error) {
	return collectPages(maxPages, func(cursor *githubv4.String) ([]Repository, PageInfo, error) {
		var query UserRepositoriesQuery
		if err := c.query(ctx, &query, map[string]any{
			"login":  githubv4.String(login),
			"cursor": cursor,
		}); err != nil {
			return nil, PageInfo{}, err
		}
		conn := query.User.Repositories
		return conn.Nodes, conn.PageInfo, nil
	})
}

func (c *Client) query(ctx context.Context, q any, variables map[string]any) error {
	if c.graphql == nil {
		return &APIError{Method: http.MethodPost, Endpoint: "graphql", Err: errors.New("graphql client not configured")}
	}
	if err := c.graphql.Query(ctx, q, variables); err != nil {
		return &APIError{Method: http.MethodPost, Endpoint: "graphql", Err: err}
	}
	return nil
}

// ListOwnerRepositories lists repositories over REST, newest first, trying the
// organization endpoint and falling back to the user endpoint on 404. The
// listing carries no template lineage.
func (c *Client) ListOwnerRepositories(ctx context.Context, owner string, maxPages int) ([]RepositoryDetails, error) {
	const listQuery = "?type=all&sort=created&direction=desc"

	repos, err := paginate[*gh.Repository](ctx, c, "orgs/"+url.PathEscape(owner)+"/repos"+listQuery, maxPages)
	if Classify(err) == OutcomeNotFound {
		repos, err = paginate[*gh.Repository](ctx, c, "users/"+url.PathEscape(owner)+"/repos"+listQuery, maxPages)
	}
	if err != nil {
		return nil, err
	}

	result := make([]RepositoryDetails, 0, len(repos))
	for _, r := range repos {
		result = append(result, toRepositoryDetails(r))
	}
	return result, nil
}

// GetRepository fetches repository metadata, including template lineage and
// the security-and-analysis block.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*RepositoryDetails, error) {
	var r gh.Repository
	if err := c.do(ctx, http.MethodGet, repoPath(owner, repo), nil, &r); err != nil {
		return nil, err
	}
	details := toRepositoryDetails(&r)
	return &details, nil
}

func toRepositoryDetails(r *gh.Repository) RepositoryDetails {
	details := RepositoryDetails{
		FullName:         r.GetFullName(),
		HTMLURL:          r.GetHTMLURL(),
		CreatedAt:        r.GetCreatedAt().Time,
		DefaultBranch:    r.GetDefaultBranch(),
		TemplateFullName: r.GetTemplateRepository().GetFullName(),
	}

	saa := r.SecurityAndAnalysis
	if saa == nil {
		return details
	}
	details.SecurityAndAnalysis = &SecurityAndAnalysis{}
	if saa.AdvancedSecurity != nil {
		details.SecurityAndAnalysis.AdvancedSecurity = &FeatureStatus{Status: saa.AdvancedSecurity.GetStatus()}
	}
	if saa.SecretScanning != nil {
		details.SecurityAndAnalysis.SecretScanning = &FeatureStatus{Status: saa.SecretScanning.GetStatus()}
	}
	if saa.SecretScanningPushProtection != nil {
		details.SecurityAndAnalysis.SecretScanningPushProtection = &FeatureStatus{Status: saa.SecretScanningPushProtection.GetStatus()}
	}
	if saa.DependabotSecurityUpdates != nil {
		details.SecurityAndAnalysis.DependabotSecurityUpdates = &FeatureStatus{Status: saa.DependabotSecurityUpdates.GetStatus()}
	}
	return details
}

// GetContent fetches a single file at ref. Text holds the decoded file body
// when the platform inlined it.
func (c *Client) GetContent(ctx context.Context, owner, repo, ref, path string) (*Content, error) {
	var rc gh.RepositoryContent
	if err := c.do(ctx, http.MethodGet, contentsPath(owner, repo, path)+"?ref="+url.QueryEscape(ref), nil, &rc); err != nil {
		return nil, err
	}
	content := toContent(&rc)
	if text, err := rc.GetContent(); err == nil {
		content.Text = text
	}
	return &content, nil
}

// ListDirectory lists the entries of a directory at ref.
func (c *Client) ListDirectory(ctx context.Context, owner, repo, ref, path string) ([]Content, error) {
	var entries []*gh.RepositoryContent
	if err := c.do(ctx, http.MethodGet, contentsPath(owner, repo, path)+"?ref="+url.QueryEscape(ref), nil, &entries); err != nil {
		return nil, err
	}
	result := make([]Content, 0, len(entries))
	for _, e := range entries {
		result = append(result, toContent(e))
	}
	return result, nil
}

func toContent(rc *gh.RepositoryContent) Content {
	return Content{
		Type: rc.GetType(),
		Path: rc.GetPath(),
		SHA:  rc.GetSHA(),
	}
}

// GetBranch returns nil when the branch exists.
func (c *Client) GetBranch(ctx context.Context, owner, repo, branch string) error {
	return c.do(ctx, http.MethodGet, repoPath(owner, repo)+"/branches/"+url.PathEscape(branch), nil, nil)
}

// GetBranchProtection fetches the protection ruleset of a branch. An
// unprotected branch is reported by the platform as not found.
func (c *Client) GetBranchProtection(ctx context.Context, owner, repo, branch string) (*Protection, error) {
	var p Protection
	if err := c.do(ctx, http.MethodGet, repoPath(owner, repo)+"/branches/"+url.PathEscape(branch)+"/protection", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// VulnerabilityAlerts reports whether dependency vulnerability alerts are enabled.
func (c *Client) VulnerabilityAlerts(ctx context.Context, owner, repo string) (tristate.State, error) {
	return c.statusFlag(ctx, repoPath(owner, repo)+"/vulnerability-alerts")
}

// AutomatedSecurityFixes reports whether automated security fixes are enabled.
func (c *Client) AutomatedSecurityFixes(ctx context.Context, owner, repo string) (tristate.State, error) {
	return c.statusFlag(ctx, repoPath(owner, repo)+"/automated-security-fixes")
}

// GetRef resolves the commit SHA a branch points at.
func (c *Client) GetRef(ctx context.Context, owner, repo, branch string) (string, error) {
	var ref gh.Reference
	endpoint := repoPath(owner, repo) + "/git/ref/heads/" + escapePath(branch)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &ref); err != nil {
		return "", err
	}
	sha := ref.GetObject().GetSHA()
	if sha == "" {
		return "", &APIError{Method: http.MethodGet, Endpoint: endpoint, Err: errors.New("reference has no object sha")}
	}
	return sha, nil
}

// CreateRef creates branch pointing at sha.
func (c *Client) CreateRef(ctx context.Context, owner, repo, branch, sha string) error {
	body := struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}{Ref: "refs/heads/" + branch, SHA: sha}
	return c.do(ctx, http.MethodPost, repoPath(owner, repo)+"/git/refs", body, nil)
}

// UpdateRef moves branch to sha.
func (c *Client) UpdateRef(ctx context.Context, owner, repo, branch, sha string, force bool) error {
	body := struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}{SHA: sha, Force: force}
	return c.do(ctx, http.MethodPatch, repoPath(owner, repo)+"/git/refs/heads/"+escapePath(branch), body, nil)
}

// ListOpenPullRequests lists open pull requests targeting base.
func (c *Client) ListOpenPullRequests(ctx context.Context, owner, repo, base string) ([]PullRequest, error) {
	endpoint := repoPath(owner, repo) + "/pulls?state=open&base=" + url.QueryEscape(base)
	prs, err := paginate[*gh.PullRequest](ctx, c, endpoint, 0)
	if err != nil {
		return nil, err
	}
	result := make([]PullRequest, 0, len(prs))
	for _, pr := range prs {
		result = append(result, toPullRequest(pr))
	}
	return result, nil
}

// PutFile creates or revises a file on a branch through the contents API.
func (c *Client) PutFile(ctx context.Context, owner, repo string, file FileUpdate) error {
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(file.Message),
		Content: file.Content,
		Branch:  gh.Ptr(file.Branch),
	}
	if file.SHA != "" {
		opts.SHA = gh.Ptr(file.SHA)
	}
	return c.do(ctx, http.MethodPut, contentsPath(owner, repo, file.Path), opts, nil)
}

// CreatePullRequest opens a pull request.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo string, pr NewPullRequest) (*PullRequest, error) {
	body := &gh.NewPullRequest{
		Title: gh.Ptr(pr.Title),
		Head:  gh.Ptr(pr.Head),
		Base:  gh.Ptr(pr.Base),
		Body:  gh.Ptr(pr.Body),
	}
	var created gh.PullRequest
	if err := c.do(ctx, http.MethodPost, repoPath(owner, repo)+"/pulls", body, &created); err != nil {
		return nil, err
	}
	result := toPullRequest(&created)
	return &result, nil
}

func toPullRequest(pr *gh.PullRequest) PullRequest {
	return PullRequest{
		Number:  pr.GetNumber(),
		URL:     pr.GetHTMLURL(),
		HeadRef: pr.GetHead().GetRef(),
		BaseRef: pr.GetBase().GetRef(),
	}
}

func repoPath(owner, repo string) string {
	return "repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
}

func contentsPath(owner, repo, path string) string {
	return repoPath(owner, repo) + "/contents/" + escapePath(path)
}

// escapePath escapes each segment of a slash-separated path.
func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// setAPIHeaders sets the standard GitHub API headers on a request.
func setAPIHeaders(req *http.Request) {
	req.Header.Set("Accept", AcceptHeader)
	req.Header.Set("X-GitHub-Api-Version", APIVersion)
}
