// Package remediation opens pull requests that add missing baseline files.
// Every operation is idempotent: the fix branch has a fixed name and an open
// pull request for it is reused.
package remediation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/locktivity/epack-collector-template-security/internal/audit"
	"github.com/locktivity/epack-collector-template-security/internal/github"
	"github.com/locktivity/epack-collector-template-security/internal/tristate"
)

const (
	DefaultBranchName      = "security/template-baseline"
	DefaultMaxPullRequests = 5

	PullRequestTitle = "chore(security): baseline repo security files"
)

// Config controls remediation.
type Config struct {
	Enabled bool
	// MaxPullRequests caps pull request operations (opened or reused) per run.
	MaxPullRequests int
	FixCodeowners   bool
	FixDependabot   bool

	// BranchName defaults to DefaultBranchName.
	BranchName string
	// CodeownersOwner overrides the repository owner in generated CODEOWNERS.
	CodeownersOwner      string
	DependabotEcosystems []string
	DependabotInterval   string
}

// Engine applies fixes for audited repositories. An Engine holds the per-run
// operation counter and must not be shared between runs.
type Engine struct {
	client     github.RepositoryWriter
	config     Config
	logger     *zap.Logger
	operations int
}

// New creates an Engine.
func New(client github.RepositoryWriter, config Config, logger *zap.Logger) *Engine {
	if config.BranchName == "" {
		config.BranchName = DefaultBranchName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{client: client, config: config, logger: logger}
}

// Operations returns the number of pull requests opened or reused so far.
func (e *Engine) Operations() int {
	return e.operations
}

// CapReached reports whether the per-run cap has been hit.
func (e *Engine) CapReached() bool {
	return e.operations >= e.config.MaxPullRequests
}

// Remediate fixes the missing baseline files of rec and records the outcome
// in rec.Autofix. Failures are recorded, never returned. Records with nothing
// to fix are left untouched, even once the cap is reached.
func (e *Engine) Remediate(ctx context.Context, rec *audit.ComplianceRecord) {
	if !e.config.Enabled {
		return
	}

	fixes, err := e.plan(rec)
	if err != nil {
		rec.Autofix.Attempted = true
		rec.Autofix.Reason = err.Error()
		return
	}
	if len(fixes) == 0 {
		return
	}
	if e.CapReached() {
		rec.Autofix.Reason = fmt.Sprintf("skipped: auto-fix pull request cap of %d reached for this run", e.config.MaxPullRequests)
		return
	}

	rec.Autofix.Attempted = true
	log := e.logger.With(zap.String("repository", rec.Repo.FullName))

	pr, reused, err := e.ensurePullRequest(ctx, rec, fixes)
	if err != nil {
		rec.Autofix.Reason = err.Error()
		log.Warn("remediation failed", zap.Error(err))
		return
	}

	e.operations++
	rec.Autofix.PRURL = pr.URL
	rec.Autofix.Reused = reused
	log.Info("remediation pull request ready",
		zap.String("url", pr.URL),
		zap.Bool("reused", reused),
		zap.Strings("files", rec.Autofix.FilesApplied))
}

// plan selects the fixes for files confirmed missing. Unknown findings are
// never remediated.
func (e *Engine) plan(rec *audit.ComplianceRecord) ([]Fix, error) {
	var fixes []Fix
	if e.config.FixCodeowners && rec.Codeowners == tristate.False {
		owner := e.config.CodeownersOwner
		if owner == "" {
			owner = rec.Repo.Owner()
		}
		fixes = append(fixes, Fix{
			Label:   CodeownersLabel,
			Path:    CodeownersPath,
			Message: "chore(security): add CODEOWNERS",
			Content: Codeowners(owner),
		})
	}
	if e.config.FixDependabot && rec.Dependabot == tristate.False {
		content, err := Dependabot(e.config.DependabotEcosystems, e.config.DependabotInterval)
		if err != nil {
			return nil, err
		}
		fixes = append(fixes, Fix{
			Label:   DependabotLabel,
			Path:    DependabotPath,
			Message: "chore(security): add dependabot config",
			Content: content,
		})
	}
	return fixes, nil
}

func (e *Engine) ensurePullRequest(ctx context.Context, rec *audit.ComplianceRecord, fixes []Fix) (*github.PullRequest, bool, error) {
	owner, name := rec.Repo.Owner(), rec.Repo.Name()
	branch := e.config.BranchName

	base, err := e.baseBranch(ctx, rec)
	if err != nil {
		return nil, false, err
	}

	baseSHA, err := e.client.GetRef(ctx, owner, name, base)
	if err != nil {
		return nil, false, fmt.Errorf("resolving %s tip: %w", base, err)
	}

	existing, err := e.openPullRequest(ctx, owner, name, base, branch)
	if err != nil {
		return nil, false, err
	}

	_, err = e.client.GetRef(ctx, owner, name, branch)
	switch github.Classify(err) {
	case github.OutcomeNotFound:
		if err := e.client.CreateRef(ctx, owner, name, branch, baseSHA); err != nil {
			return nil, false, fmt.Errorf("creating branch %s: %w", branch, err)
		}
	case github.OutcomeSuccess:
		if existing == nil {
			if err := e.client.UpdateRef(ctx, owner, name, branch, baseSHA, true); err != nil {
				return nil, false, fmt.Errorf("resetting branch %s: %w", branch, err)
			}
		}
	default:
		return nil, false, fmt.Errorf("resolving branch %s: %w", branch, err)
	}

	for _, fix := range fixes {
		if err := e.writeFile(ctx, owner, name, branch, fix); err != nil {
			return nil, false, err
		}
		rec.Autofix.FilesApplied = append(rec.Autofix.FilesApplied, fix.Label)
	}

	if existing != nil {
		return existing, true, nil
	}

	pr, err := e.client.CreatePullRequest(ctx, owner, name, github.NewPullRequest{
		Title: PullRequestTitle,
		Head:  branch,
		Base:  base,
		Body:  pullRequestBody(fixes),
	})
	if err != nil {
		return nil, false, fmt.Errorf("opening pull request: %w", err)
	}
	return pr, false, nil
}

func (e *Engine) baseBranch(ctx context.Context, rec *audit.ComplianceRecord) (string, error) {
	if rec.Repo.DefaultBranch != "" {
		return rec.Repo.DefaultBranch, nil
	}
	details, err := e.client.GetRepository(ctx, rec.Repo.Owner(), rec.Repo.Name())
	if err != nil {
		return "", fmt.Errorf("resolving default branch: %w", err)
	}
	if details.DefaultBranch == "" {
		return audit.FallbackBranch, nil
	}
	return details.DefaultBranch, nil
}

// openPullRequest finds an open pull request from branch into base. A failed
// listing is an error, never "no pull request".
func (e *Engine) openPullRequest(ctx context.Context, owner, name, base, branch string) (*github.PullRequest, error) {
	prs, err := e.client.ListOpenPullRequests(ctx, owner, name, base)
	if err != nil {
		return nil, fmt.Errorf("listing open pull requests: %w", err)
	}
	for i := range prs {
		if prs[i].HeadRef == branch {
			return &prs[i], nil
		}
	}
	return nil, nil
}

// writeFile writes fix on branch, carrying the blob SHA of an existing file
// so the write is a revision.
func (e *Engine) writeFile(ctx context.Context, owner, name, branch string, fix Fix) error {
	var sha string
	current, err := e.client.GetContent(ctx, owner, name, branch, fix.Path)
	switch github.Classify(err) {
	case github.OutcomeSuccess:
		sha = current.SHA
	case github.OutcomeNotFound:
	default:
		return fmt.Errorf("reading %s: %w", fix.Path, err)
	}

	err = e.client.PutFile(ctx, owner, name, github.FileUpdate{
		Path:    fix.Path,
		Branch:  branch,
		Message: fix.Message,
		Content: fix.Content,
		SHA:     sha,
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", fix.Path, err)
	}
	return nil
}
