// Package vcsclient adapts pkg/github's gh-CLI-backed client to the
// substrate.VcsClient interface the remediation control loop depends on,
// translating types at the boundary the way pkg/forge/github wraps its own
// underlying client.
package vcsclient

import (
	"context"
	"fmt"

	"github.com/ci-remediator/orchestrator/pkg/github"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// Client adapts pkg/github's per-repository github.Client to substrate.VcsClient. Each
// call builds a github.Client bound to the "owner/repo" it is given, so one Client
// instance serves every repository.
type Client struct {
	byRepo func(repository string) (*github.Client, error)
}

// New creates a VcsClient that resolves a github.Client per "owner/repo" string it is
// asked to operate on, so a single instance can serve every repository under management.
func New() *Client {
	return &Client{
		byRepo: func(repository string) (*github.Client, error) {
			owner, repo, err := splitRepository(repository)
			if err != nil {
				return nil, err
			}
			return github.NewClient(owner, repo), nil
		},
	}
}

func splitRepository(repository string) (owner, repo string, err error) {
	for i := 0; i < len(repository); i++ {
		if repository[i] == '/' {
			return repository[:i], repository[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("repository %q is not in owner/repo form", repository)
}

func (c *Client) ListFailedRuns(ctx context.Context, repository string, status string) ([]substrate.WorkflowRun, error) {
	gh, err := c.byRepo(repository)
	if err != nil {
		return nil, err
	}
	runs, err := gh.ListWorkflowRunsByStatus(ctx, "completed", status)
	if err != nil {
		return nil, fmt.Errorf("vcsclient: list failed runs for %s: %w", repository, err)
	}

	out := make([]substrate.WorkflowRun, 0, len(runs))
	for i := range runs {
		r := &runs[i]
		out = append(out, substrate.WorkflowRun{
			ID:         r.ID,
			Repository: repository,
			Branch:     r.HeadBranch,
			Workflow:   r.Name,
			CommitSHA:  r.HeadSHA,
			Status:     r.Status,
			Conclusion: r.Conclusion,
			URL:        r.URL,
		})
	}
	return out, nil
}

func (c *Client) GetRunLogs(ctx context.Context, repository string, runID int64) (string, error) {
	gh, err := c.byRepo(repository)
	if err != nil {
		return "", err
	}
	logs, err := gh.GetRunLogs(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("vcsclient: get run logs for %s#%d: %w", repository, runID, err)
	}
	return logs, nil
}

func (c *Client) GetFile(ctx context.Context, repository, ref, path string) ([]byte, error) {
	gh, err := c.byRepo(repository)
	if err != nil {
		return nil, err
	}
	content, err := gh.GetFileContent(ctx, ref, path)
	if err != nil {
		return nil, fmt.Errorf("vcsclient: get file %s@%s in %s: %w", path, ref, repository, err)
	}
	return content, nil
}

func (c *Client) CreateBranchFromSHA(ctx context.Context, repository, branch, sha string) error {
	gh, err := c.byRepo(repository)
	if err != nil {
		return err
	}
	if err := gh.CreateBranchFromSHA(ctx, branch, sha); err != nil {
		return fmt.Errorf("vcsclient: create branch %s in %s: %w", branch, repository, err)
	}
	return nil
}

func (c *Client) CommitFiles(ctx context.Context, repository, branch, message string, edits []substrate.FileEdit) error {
	gh, err := c.byRepo(repository)
	if err != nil {
		return err
	}

	ghEdits := make([]github.FileEdit, 0, len(edits))
	for _, e := range edits {
		ghEdits = append(ghEdits, github.FileEdit{Path: e.Path, Content: e.Content, Delete: e.Delete})
	}

	if err := gh.CommitFiles(ctx, branch, message, ghEdits); err != nil {
		return fmt.Errorf("vcsclient: commit files to %s@%s: %w", repository, branch, err)
	}
	return nil
}

func (c *Client) CreatePR(ctx context.Context, repository string, opts substrate.PRCreateOptions) (*substrate.PullRequest, error) {
	gh, err := c.byRepo(repository)
	if err != nil {
		return nil, err
	}
	pr, err := gh.CreatePR(ctx, github.PRCreateOptions{Title: opts.Title, Body: opts.Body, Head: opts.Head, Base: opts.Base, Draft: opts.Draft, Labels: opts.Labels})
	if err != nil {
		return nil, fmt.Errorf("vcsclient: create PR in %s: %w", repository, err)
	}
	return toSubstratePR(pr), nil
}

func (c *Client) GetOrCreatePR(ctx context.Context, repository string, opts substrate.PRCreateOptions) (*substrate.PullRequest, error) {
	gh, err := c.byRepo(repository)
	if err != nil {
		return nil, err
	}
	pr, err := gh.GetOrCreatePR(ctx, github.PRCreateOptions{Title: opts.Title, Body: opts.Body, Head: opts.Head, Base: opts.Base, Draft: opts.Draft, Labels: opts.Labels})
	if err != nil {
		return nil, fmt.Errorf("vcsclient: get-or-create PR in %s: %w", repository, err)
	}
	return toSubstratePR(pr), nil
}

func (c *Client) CommentOnPR(ctx context.Context, repository string, prNumber int, body string) error {
	gh, err := c.byRepo(repository)
	if err != nil {
		return err
	}
	if err := gh.CommentOnPR(ctx, fmt.Sprintf("%d", prNumber), body); err != nil {
		return fmt.Errorf("vcsclient: comment on PR #%d in %s: %w", prNumber, repository, err)
	}
	return nil
}

func (c *Client) CreateDeployment(ctx context.Context, repository, ref, environment string) (*substrate.DeploymentStatus, error) {
	gh, err := c.byRepo(repository)
	if err != nil {
		return nil, err
	}
	dep, err := gh.CreateDeployment(ctx, ref, environment)
	if err != nil {
		return nil, fmt.Errorf("vcsclient: create deployment in %s: %w", repository, err)
	}
	return &substrate.DeploymentStatus{ID: dep.ID, State: "pending", URL: dep.URL}, nil
}

func (c *Client) GetDeploymentStatus(ctx context.Context, repository string, deploymentID int64) (*substrate.DeploymentStatus, error) {
	gh, err := c.byRepo(repository)
	if err != nil {
		return nil, err
	}
	status, err := gh.GetDeploymentStatus(ctx, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("vcsclient: get deployment status in %s: %w", repository, err)
	}
	return &substrate.DeploymentStatus{ID: deploymentID, State: status.State, URL: status.URL}, nil
}

func (c *Client) GetHeadSHA(ctx context.Context, repository, branch string) (string, error) {
	gh, err := c.byRepo(repository)
	if err != nil {
		return "", err
	}
	sha, err := gh.GetHeadSHA(ctx, branch)
	if err != nil {
		return "", fmt.Errorf("vcsclient: get head SHA for %s@%s: %w", repository, branch, err)
	}
	return sha, nil
}

func (c *Client) DefaultBranch(ctx context.Context, repository string) (string, error) {
	gh, err := c.byRepo(repository)
	if err != nil {
		return "", err
	}
	branch, err := gh.GetDefaultBranch(ctx)
	if err != nil {
		return "", fmt.Errorf("vcsclient: get default branch for %s: %w", repository, err)
	}
	return branch, nil
}

func (c *Client) WorkflowStatusForRef(ctx context.Context, repository, ref string) (substrate.WorkflowStatus, error) {
	gh, err := c.byRepo(repository)
	if err != nil {
		return substrate.WorkflowStatus{}, err
	}
	status, err := gh.GetWorkflowStatus(ctx, ref)
	if err != nil {
		return substrate.WorkflowStatus{}, fmt.Errorf("vcsclient: workflow status for %s@%s: %w", repository, ref, err)
	}
	return substrate.WorkflowStatus{
		State:      status.State,
		TotalRuns:  status.TotalRuns,
		Failed:     status.Failed,
		FailedRuns: status.FailedRuns,
	}, nil
}

func toSubstratePR(pr *github.PullRequest) *substrate.PullRequest {
	return &substrate.PullRequest{
		Number:     pr.Number,
		URL:        pr.URL,
		Title:      pr.Title,
		State:      pr.State,
		HeadBranch: pr.HeadRefName,
		HeadSHA:    pr.HeadRefOid,
		BaseBranch: pr.BaseRefName,
	}
}

var _ substrate.VcsClient = (*Client)(nil)
