package github

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PullRequest represents a GitHub pull request.
// Field names match gh CLI --json output (GraphQL field names).
//
//nolint:govet // Logical grouping preferred over memory optimization
type PullRequest struct {
	Number      int    `json:"number"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	State       string `json:"state"`       // OPEN, CLOSED, MERGED
	HeadRefName string `json:"headRefName"` // Branch name (gh CLI)
	HeadRefOid  string `json:"headRefOid"`  // Commit SHA (gh CLI)
	BaseRefName string `json:"baseRefName"` // Target branch name (gh CLI)
	BaseRefOid  string `json:"baseRefOid"`  // Target commit SHA (gh CLI)
	Closed      bool   `json:"closed"`      // Whether PR is closed
	MergedAt    string `json:"mergedAt"`    // Non-empty if merged
	Mergeable   string `json:"mergeable"`   // MERGEABLE, CONFLICTING, or UNKNOWN
}

// IsMerged returns true if the PR has been merged.
func (pr *PullRequest) IsMerged() bool {
	return pr.MergedAt != ""
}

// RemediationLabel tags every PR this system opens, so a repository's own automation and
// reviewers can filter auto-remediation traffic from human-authored PRs at a glance.
const RemediationLabel = "auto-remediation"

// PRCreateOptions contains options for creating a pull request.
type PRCreateOptions struct {
	Title  string
	Body   string
	Head   string // Source branch
	Base   string // Target branch: must be the failing branch, never DefaultBranch
	Draft  bool
	Labels []string
}

// ListPRsForBranch lists pull requests for a specific head branch.
func (c *Client) ListPRsForBranch(ctx context.Context, branch string) ([]PullRequest, error) {
	args := []string{
		"pr", "list",
		"--repo", c.RepoPath(),
		"--head", branch,
		"--json", "number,url,title,state,headRefName,headRefOid,baseRefName,baseRefOid,closed,mergedAt",
	}

	var prs []PullRequest
	if err := c.runJSON(ctx, &prs, args...); err != nil {
		return nil, fmt.Errorf("failed to list PRs for branch %s: %w", branch, err)
	}

	return prs, nil
}

// GetPR retrieves a pull request by number or branch name.
func (c *Client) GetPR(ctx context.Context, ref string) (*PullRequest, error) {
	args := []string{
		"pr", "view", ref,
		"--repo", c.RepoPath(),
		"--json", "number,url,title,state,headRefName,headRefOid,baseRefName,baseRefOid,closed,mergedAt,mergeable",
	}

	var pr PullRequest
	if err := c.runJSON(ctx, &pr, args...); err != nil {
		return nil, fmt.Errorf("failed to get PR %s: %w", ref, err)
	}

	return &pr, nil
}

// CreatePR creates a new pull request. Base must name the failing branch: the Branch/base
// invariant forbids targeting the repository's default branch with a fix PR, so unlike a
// general-purpose PR helper this never falls back to DefaultBranch when Base is empty.
func (c *Client) CreatePR(ctx context.Context, opts PRCreateOptions) (*PullRequest, error) {
	if opts.Head == "" {
		return nil, fmt.Errorf("head branch is required")
	}
	if opts.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if opts.Base == "" {
		return nil, fmt.Errorf("base branch is required")
	}
	if opts.Base == opts.Head {
		return nil, fmt.Errorf("base branch %q must differ from head branch", opts.Base)
	}

	args := []string{
		"pr", "create",
		"--repo", c.RepoPath(),
		"--title", opts.Title,
		"--head", opts.Head,
		"--base", opts.Base,
	}

	if opts.Body != "" {
		args = append(args, "--body", opts.Body)
	}

	if opts.Draft {
		args = append(args, "--draft")
	}

	for _, label := range opts.Labels {
		args = append(args, "--label", label)
	}

	// Use longer timeout for PR creation
	client := c.WithTimeout(2 * time.Minute)
	output, err := client.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PR: %w", err)
	}

	// gh pr create returns the PR URL
	prURL := strings.TrimSpace(string(output))
	if prURL == "" {
		return nil, fmt.Errorf("PR created but no URL returned")
	}

	// Fetch the full PR details
	return c.GetPR(ctx, prURL)
}

// GetOrCreatePR returns an existing PR for the branch or creates a new one.
func (c *Client) GetOrCreatePR(ctx context.Context, opts PRCreateOptions) (*PullRequest, error) {
	// Check for existing PR
	prs, err := c.ListPRsForBranch(ctx, opts.Head)
	if err != nil {
		c.logger.Debug("Failed to check for existing PR, will try to create: %v", err)
	} else if len(prs) > 0 {
		c.logger.Debug("Found existing PR #%d for branch %s", prs[0].Number, opts.Head)
		return &prs[0], nil
	}

	// Create new PR
	return c.CreatePR(ctx, opts)
}

// CommentOnPR adds a comment to a pull request, used to summarize an Analysis and its risk
// score on the PR when ApprovalManager escalates a remediation (§4.8).
func (c *Client) CommentOnPR(ctx context.Context, ref, body string) error {
	args := []string{
		"pr", "comment", ref,
		"--repo", c.RepoPath(),
		"--body", body,
	}

	_, err := c.run(ctx, args...)
	if err != nil {
		return fmt.Errorf("failed to comment on PR %s: %w", ref, err)
	}

	return nil
}
