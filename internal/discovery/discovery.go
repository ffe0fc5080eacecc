// Package discovery enumerates the repositories of a set of owners and tags
// each one with its template lineage.
package discovery

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/locktivity/epack-collector-template-security/internal/github"
)

// Strategy names the listing method that produced an owner's repositories.
type Strategy string

const (
	StrategyOrganization Strategy = "graphql-organization"
	StrategyUser         Strategy = "graphql-user"
	StrategyREST         Strategy = "rest"
	StrategyNone         Strategy = "none"
)

// RepositoryRef identifies a discovered repository. It is not modified after discovery.
type RepositoryRef struct {
	FullName         string    `json:"full_name"`
	URL              string    `json:"url"`
	CreatedAt        time.Time `json:"created_at"`
	DefaultBranch    string    `json:"default_branch,omitempty"`
	TemplateFullName string    `json:"template_full_name,omitempty"`
	IsFromTemplate   bool      `json:"is_from_template"`
}

// Owner returns the owner part of FullName.
func (r RepositoryRef) Owner() string {
	owner, _, _ := strings.Cut(r.FullName, "/")
	return owner
}

// Name returns the repository part of FullName.
func (r RepositoryRef) Name() string {
	_, name, _ := strings.Cut(r.FullName, "/")
	return name
}

// OwnerResult is the discovery outcome for one owner.
type OwnerResult struct {
	Owner        string          `json:"owner"`
	Strategy     Strategy        `json:"strategy"`
	Repositories []RepositoryRef `json:"-"`
	Errors       []string        `json:"errors,omitempty"`
}

// Options configures a Discoverer.
type Options struct {
	// Template is the "owner/name" of the template repository.
	Template string
	// MaxPages bounds every listing; 0 means unbounded.
	MaxPages int
	Logger   *zap.Logger
}

// Discoverer lists repositories using GraphQL first and REST as a fallback.
type Discoverer struct {
	client   github.RepositoryLister
	template string
	maxPages int
	logger   *zap.Logger
}

// New creates a Discoverer.
func New(client github.RepositoryLister, opts Options) *Discoverer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		client:   client,
		template: opts.Template,
		maxPages: opts.MaxPages,
		logger:   logger,
	}
}

// Discover runs DiscoverOwner for each owner in order. A failing owner never
// stops the others.
func (d *Discoverer) Discover(ctx context.Context, owners []string) []OwnerResult {
	results := make([]OwnerResult, 0, len(owners))
	for _, owner := range owners {
		results = append(results, d.DiscoverOwner(ctx, owner))
	}
	return results
}

// DiscoverOwner lists the repositories of one owner, in the order the
// platform returns them. An owner whose every strategy fails yields no
// repositories and StrategyNone.
func (d *Discoverer) DiscoverOwner(ctx context.Context, owner string) OwnerResult {
	result := OwnerResult{Owner: owner, Strategy: StrategyNone}
	log := d.logger.With(zap.String("owner", owner))

	nodes, err := d.client.ListOrganizationRepositories(ctx, owner, d.maxPages)
	if err == nil && len(nodes) > 0 {
		result.Strategy = StrategyOrganization
		result.Repositories = d.fromNodes(nodes)
		log.Debug("listed organization repositories", zap.Int("count", len(nodes)))
		return result
	}
	if err != nil {
		result.Errors = append(result.Errors, "organization listing: "+err.Error())
		log.Debug("organization listing failed, trying user listing", zap.Error(err))
	}

	nodes, err = d.client.ListUserRepositories(ctx, owner, d.maxPages)
	if err == nil && len(nodes) > 0 {
		result.Strategy = StrategyUser
		result.Repositories = d.fromNodes(nodes)
		log.Debug("listed user repositories", zap.Int("count", len(nodes)))
		return result
	}
	if err != nil {
		result.Errors = append(result.Errors, "user listing: "+err.Error())
		log.Debug("user listing failed, falling back to REST", zap.Error(err))
	}

	listed, err := d.client.ListOwnerRepositories(ctx, owner, d.maxPages)
	if err != nil {
		result.Errors = append(result.Errors, "rest listing: "+err.Error())
		log.Warn("all listing strategies failed", zap.Error(err))
		return result
	}

	result.Strategy = StrategyREST
	result.Repositories = make([]RepositoryRef, 0, len(listed))
	for _, repo := range listed {
		result.Repositories = append(result.Repositories, d.enrich(ctx, log, repo))
	}
	log.Debug("listed repositories via REST", zap.Int("count", len(listed)))
	return result
}

// enrich fetches lineage and default branch, which the REST listing omits.
// A failed fetch keeps the repository with unresolved lineage.
func (d *Discoverer) enrich(ctx context.Context, log *zap.Logger, listed github.RepositoryDetails) RepositoryRef {
	ref := RepositoryRef{
		FullName:      listed.FullName,
		URL:           listed.HTMLURL,
		CreatedAt:     listed.CreatedAt,
		DefaultBranch: listed.DefaultBranch,
	}

	owner, name, _ := strings.Cut(listed.FullName, "/")
	details, err := d.client.GetRepository(ctx, owner, name)
	if err != nil {
		log.Warn("repository detail fetch failed, lineage unresolved",
			zap.String("repository", listed.FullName), zap.Error(err))
		return ref
	}

	if details.DefaultBranch != "" {
		ref.DefaultBranch = details.DefaultBranch
	}
	ref.TemplateFullName = details.TemplateFullName
	ref.IsFromTemplate = d.matchesTemplate(ref.TemplateFullName)
	return ref
}

func (d *Discoverer) fromNodes(nodes []github.Repository) []RepositoryRef {
	refs := make([]RepositoryRef, 0, len(nodes))
	for _, n := range nodes {
		ref := RepositoryRef{
			FullName:  n.NameWithOwner,
			URL:       n.URL,
			CreatedAt: n.CreatedAt.Time,
		}
		if n.DefaultBranchRef != nil {
			ref.DefaultBranch = n.DefaultBranchRef.Name
		}
		if n.TemplateRepository != nil {
			ref.TemplateFullName = n.TemplateRepository.NameWithOwner
		}
		ref.IsFromTemplate = d.matchesTemplate(ref.TemplateFullName)
		refs = append(refs, ref)
	}
	return refs
}

func (d *Discoverer) matchesTemplate(name string) bool {
	return name != "" && name == d.template
}
