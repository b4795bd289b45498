package github

import (
	"context"
	"encoding/json"
	"fmt"
)

// Repository represents a GitHub repository.
type Repository struct {
	Name             string `json:"name"`
	FullName         string `json:"full_name"`
	DefaultBranch    string `json:"default_branch"`
	AllowAutoMerge   bool   `json:"allow_auto_merge"`
	Private          bool   `json:"private"`
	Archived         bool   `json:"archived"`
	HasIssues        bool   `json:"has_issues"`
	HasWiki          bool   `json:"has_wiki"`
	HasProjects      bool   `json:"has_projects"`
	AllowSquashMerge bool   `json:"allow_squash_merge"`
	AllowMergeCommit bool   `json:"allow_merge_commit"`
	AllowRebaseMerge bool   `json:"allow_rebase_merge"`
}

// GetRepository retrieves repository information. The Executor's only use of this is
// GetDefaultBranch, which reads Repository.DefaultBranch to reject an Executor bug that
// would target it as a PR base (branches never differ, admin settings are out of scope).
func (c *Client) GetRepository(ctx context.Context) (*Repository, error) {
	endpoint := fmt.Sprintf("/repos/%s", c.RepoPath())
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}

	var repo Repository
	if err := json.Unmarshal(output, &repo); err != nil {
		return nil, fmt.Errorf("failed to parse repository: %w", err)
	}

	return &repo, nil
}
