package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// ListWorkflowRunsByStatus lists workflow runs filtered by status (e.g. "completed") and,
// when conclusion is non-empty, by conclusion (e.g. "failure"). Used by the Poller to
// discover new CI failures without pulling every run on every poll (§4.1).
func (c *Client) ListWorkflowRunsByStatus(ctx context.Context, status, conclusion string) ([]WorkflowRun, error) {
	endpoint := fmt.Sprintf("/repos/%s/actions/runs?status=%s&per_page=50", c.RepoPath(), status)
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow runs: %w", err)
	}

	var response WorkflowRunsResponse
	if err := json.Unmarshal(output, &response); err != nil {
		return nil, fmt.Errorf("failed to parse workflow runs: %w", err)
	}

	if conclusion == "" {
		return response.WorkflowRuns, nil
	}

	filtered := make([]WorkflowRun, 0, len(response.WorkflowRuns))
	for _, run := range response.WorkflowRuns {
		if run.Conclusion == conclusion {
			filtered = append(filtered, run)
		}
	}
	return filtered, nil
}

// GetRunLogs fetches the plain-text log for a workflow run. GitHub Actions logs expire
// (typically after 90 days) and return 410 Gone; callers should treat that as "logs
// unavailable" rather than a hard failure, per §7's tolerance for stale runs.
func (c *Client) GetRunLogs(ctx context.Context, runID int64) (string, error) {
	args := []string{"run", "view", fmt.Sprintf("%d", runID), "--repo", c.RepoPath(), "--log-failed"}
	output, err := c.run(ctx, args...)
	if err != nil {
		if strings.Contains(err.Error(), "410") || strings.Contains(strings.ToLower(err.Error()), "gone") {
			return "", fmt.Errorf("run logs expired for run %d: %w", runID, err)
		}
		return "", fmt.Errorf("failed to fetch logs for run %d: %w", runID, err)
	}
	return string(output), nil
}

// fileContentResponse mirrors the GitHub Contents API's single-file GET response.
type fileContentResponse struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

// GetFileContent reads a file's content at a specific ref (branch, tag, or SHA).
func (c *Client) GetFileContent(ctx context.Context, ref, path string) ([]byte, error) {
	endpoint := fmt.Sprintf("/repos/%s/contents/%s?ref=%s", c.RepoPath(), path, ref)
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s at %s: %w", path, ref, err)
	}

	var resp fileContentResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse file content response: %w", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode file content: %w", err)
	}
	return decoded, nil
}

// CreateBranchFromSHA creates a new ref pointing at sha, the equivalent of
// `git branch <branch> <sha> && git push origin <branch>` via the Git Data API.
func (c *Client) CreateBranchFromSHA(ctx context.Context, branch, sha string) error {
	endpoint := fmt.Sprintf("/repos/%s/git/refs", c.RepoPath())
	_, err := c.API(ctx, "POST", endpoint, map[string]interface{}{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	})
	if err != nil {
		return fmt.Errorf("failed to create branch %s from %s: %w", branch, sha, err)
	}
	return nil
}

// FileEdit describes one write to be committed on a branch. Delete indicates the path
// should be removed rather than created/updated.
type FileEdit struct {
	Path    string
	Content []byte
	Delete  bool
}

type gitBlob struct {
	SHA string `json:"sha"`
}

type gitTreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  *string `json:"sha"`
}

type gitTree struct {
	SHA string `json:"sha"`
}

type gitCommit struct {
	SHA string `json:"sha"`
}

type gitRefObject struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

// CommitFiles applies edits atomically on branch in a single commit, using the Git Data
// API (create blobs, build a tree over the branch's current head, create a commit, move
// the ref) rather than the simpler Contents API, which only supports one file per commit.
func (c *Client) CommitFiles(ctx context.Context, branch, message string, edits []FileEdit) error {
	if len(edits) == 0 {
		return fmt.Errorf("no file edits provided")
	}

	refEndpoint := fmt.Sprintf("/repos/%s/git/refs/heads/%s", c.RepoPath(), branch)
	refOutput, err := c.APIGet(ctx, refEndpoint)
	if err != nil {
		return fmt.Errorf("failed to resolve branch %s head: %w", branch, err)
	}
	var ref gitRefObject
	if err := json.Unmarshal(refOutput, &ref); err != nil {
		return fmt.Errorf("failed to parse branch ref: %w", err)
	}
	baseSHA := ref.Object.SHA

	entries := make([]gitTreeEntry, 0, len(edits))
	for _, edit := range edits {
		if edit.Delete {
			entries = append(entries, gitTreeEntry{Path: edit.Path, Mode: "100644", Type: "blob", SHA: nil})
			continue
		}

		blobEndpoint := fmt.Sprintf("/repos/%s/git/blobs", c.RepoPath())
		blobOutput, blobErr := c.API(ctx, "POST", blobEndpoint, map[string]interface{}{
			"content":  base64.StdEncoding.EncodeToString(edit.Content),
			"encoding": "base64",
		})
		if blobErr != nil {
			return fmt.Errorf("failed to create blob for %s: %w", edit.Path, blobErr)
		}
		var blob gitBlob
		if err := json.Unmarshal(blobOutput, &blob); err != nil {
			return fmt.Errorf("failed to parse blob response for %s: %w", edit.Path, err)
		}
		sha := blob.SHA
		entries = append(entries, gitTreeEntry{Path: edit.Path, Mode: "100644", Type: "blob", SHA: &sha})
	}

	treeEndpoint := fmt.Sprintf("/repos/%s/git/trees", c.RepoPath())
	treeOutput, err := c.API(ctx, "POST", treeEndpoint, map[string]interface{}{
		"base_tree": baseSHA,
		"tree":      entries,
	})
	if err != nil {
		return fmt.Errorf("failed to create tree: %w", err)
	}
	var tree gitTree
	if err := json.Unmarshal(treeOutput, &tree); err != nil {
		return fmt.Errorf("failed to parse tree response: %w", err)
	}

	commitEndpoint := fmt.Sprintf("/repos/%s/git/commits", c.RepoPath())
	commitOutput, err := c.API(ctx, "POST", commitEndpoint, map[string]interface{}{
		"message": message,
		"tree":    tree.SHA,
		"parents": []string{baseSHA},
	})
	if err != nil {
		return fmt.Errorf("failed to create commit: %w", err)
	}
	var commit gitCommit
	if err := json.Unmarshal(commitOutput, &commit); err != nil {
		return fmt.Errorf("failed to parse commit response: %w", err)
	}

	if _, err := c.APIPatch(ctx, refEndpoint, map[string]interface{}{"sha": commit.SHA, "force": false}); err != nil {
		return fmt.Errorf("failed to fast-forward branch %s to %s: %w", branch, commit.SHA, err)
	}
	return nil
}

// GetHeadSHA returns the current tip commit SHA for a branch.
func (c *Client) GetHeadSHA(ctx context.Context, branch string) (string, error) {
	info, err := c.GetBranch(ctx, branch)
	if err != nil {
		return "", fmt.Errorf("failed to get head SHA for %s: %w", branch, err)
	}
	return info.Commit.SHA, nil
}

// Deployment mirrors the subset of the GitHub Deployments API this system uses to gate
// higher-risk remediations behind a native environment-protection-rule approval.
type Deployment struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// DeploymentStatusInfo is the latest recorded status for a deployment.
type DeploymentStatusInfo struct {
	State string `json:"state"` // pending, in_progress, success, failure, rejected
	URL   string `json:"log_url"`
}

// CreateDeployment creates a deployment to a named environment. When the environment has
// required reviewers configured, the deployment starts in "pending approval" state and
// ApprovalManager polls GetDeploymentStatus for the reviewer's decision (§4.8).
func (c *Client) CreateDeployment(ctx context.Context, ref, environment string) (*Deployment, error) {
	endpoint := fmt.Sprintf("/repos/%s/deployments", c.RepoPath())
	output, err := c.API(ctx, "POST", endpoint, map[string]interface{}{
		"ref":                   ref,
		"environment":           environment,
		"auto_merge":            false,
		"required_contexts":     []string{},
		"transient_environment": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create deployment to %s: %w", environment, err)
	}

	var dep Deployment
	if err := json.Unmarshal(output, &dep); err != nil {
		return nil, fmt.Errorf("failed to parse deployment response: %w", err)
	}
	return &dep, nil
}

// GetDeploymentStatus returns the most recent status recorded for a deployment.
func (c *Client) GetDeploymentStatus(ctx context.Context, deploymentID int64) (*DeploymentStatusInfo, error) {
	endpoint := fmt.Sprintf("/repos/%s/deployments/%d/statuses?per_page=1", c.RepoPath(), deploymentID)
	output, err := c.APIGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment status for %d: %w", deploymentID, err)
	}

	var statuses []DeploymentStatusInfo
	if err := json.Unmarshal(output, &statuses); err != nil {
		return nil, fmt.Errorf("failed to parse deployment statuses: %w", err)
	}
	if len(statuses) == 0 {
		return &DeploymentStatusInfo{State: "pending"}, nil
	}
	return &statuses[0], nil
}
