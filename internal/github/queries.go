// Package github provides the REST and GraphQL gateway to the GitHub API.
package github

import "github.com/shurcooL/githubv4"

// OrganizationRepositoriesQuery lists an organization's repositories,
// newest first, with template lineage and default branch.
type OrganizationRepositoriesQuery struct {
	Organization struct {
		Repositories RepositoryConnection `graphql:"repositories(first: 100, after: $cursor, orderBy: {field: CREATED_AT, direction: DESC})"`
	} `graphql:"organization(login: $login)"`
}

// UserRepositoriesQuery is OrganizationRepositoriesQuery for an individual account.
type UserRepositoriesQuery struct {
	User struct {
		Repositories RepositoryConnection `graphql:"repositories(first: 100, after: $cursor, orderBy: {field: CREATED_AT, direction: DESC})"`
	} `graphql:"user(login: $login)"`
}

// RepositoryConnection is one page of repositories.
type RepositoryConnection struct {
	Nodes    []Repository
	PageInfo PageInfo
}

// PageInfo mirrors the GraphQL connection pageInfo block.
type PageInfo struct {
	HasNextPage bool
	EndCursor   githubv4.String
}

// Repository is a repository node with lineage information.
type Repository struct {
	NameWithOwner      string
	URL                string `graphql:"url"`
	CreatedAt          githubv4.DateTime
	DefaultBranchRef   *BranchRef
	TemplateRepository *TemplateRef
}

// BranchRef names a git ref.
type BranchRef struct {
	Name string
}

// TemplateRef identifies the template a repository was created from.
type TemplateRef struct {
	NameWithOwner string
}
