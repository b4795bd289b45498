package testkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// FakeVcsClient is an in-memory substrate.VcsClient for control-loop tests: branches and
// file contents live in maps, commits mutate them directly, and every call is recorded
// for assertions.
type FakeVcsClient struct {
	mu sync.Mutex

	DefaultBranchName string
	Heads             map[string]string            // "repo/branch" -> sha
	Files             map[string]map[string][]byte // "repo/sha" -> path -> content
	Runs              map[string][]substrate.WorkflowRun
	Logs              map[int64]string
	PRs               map[string]*substrate.PullRequest // keyed by "repo/head"
	Deployments       map[int64]*substrate.DeploymentStatus

	nextPR   int
	nextDep  int64
	Calls    []string
}

// NewFakeVcsClient returns an empty FakeVcsClient with defaultBranch as the repository
// default branch for every repository queried.
func NewFakeVcsClient(defaultBranch string) *FakeVcsClient {
	return &FakeVcsClient{
		DefaultBranchName: defaultBranch,
		Heads:             map[string]string{},
		Files:             map[string]map[string][]byte{},
		Runs:              map[string][]substrate.WorkflowRun{},
		Logs:              map[int64]string{},
		PRs:               map[string]*substrate.PullRequest{},
		Deployments:       map[int64]*substrate.DeploymentStatus{},
	}
}

func branchKey(repo, branch string) string { return repo + "/" + branch }
func refKey(repo, ref string) string       { return repo + "/" + ref }

func (f *FakeVcsClient) record(call string) {
	f.Calls = append(f.Calls, call)
}

// SeedBranch sets branch's head to sha with the given file contents at that ref.
func (f *FakeVcsClient) SeedBranch(repo, branch, sha string, files map[string][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Heads[branchKey(repo, branch)] = sha
	f.Files[refKey(repo, sha)] = files
}

// SeedRun adds a WorkflowRun to repository's run list.
func (f *FakeVcsClient) SeedRun(repo string, run substrate.WorkflowRun) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Runs[repo] = append(f.Runs[repo], run)
}

func (f *FakeVcsClient) ListFailedRuns(_ context.Context, repository, status string) ([]substrate.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListFailedRuns")
	var out []substrate.WorkflowRun
	for _, r := range f.Runs[repository] {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *FakeVcsClient) GetRunLogs(_ context.Context, _ string, runID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetRunLogs")
	return f.Logs[runID], nil
}

func (f *FakeVcsClient) GetFile(_ context.Context, repository, ref, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetFile")
	files, ok := f.Files[refKey(repository, ref)]
	if !ok {
		return nil, fmt.Errorf("testkit: no such ref %s/%s", repository, ref)
	}
	content, ok := files[path]
	if !ok {
		return nil, fmt.Errorf("testkit: no such file %s at %s/%s", path, repository, ref)
	}
	return content, nil
}

func (f *FakeVcsClient) CreateBranchFromSHA(_ context.Context, repository, branch, sha string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateBranchFromSHA")
	f.Heads[branchKey(repository, branch)] = sha
	if files, ok := f.Files[refKey(repository, sha)]; ok {
		clone := make(map[string][]byte, len(files))
		for k, v := range files {
			clone[k] = v
		}
		f.Files[refKey(repository, sha)] = clone
	}
	return nil
}

func (f *FakeVcsClient) CommitFiles(_ context.Context, repository, branch, _ string, edits []substrate.FileEdit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CommitFiles")
	sha, ok := f.Heads[branchKey(repository, branch)]
	if !ok {
		return fmt.Errorf("testkit: unknown branch %s/%s", repository, branch)
	}
	newSHA := sha + "1"
	files, ok := f.Files[refKey(repository, sha)]
	clone := map[string][]byte{}
	if ok {
		for k, v := range files {
			clone[k] = v
		}
	}
	for _, e := range edits {
		if e.Delete {
			delete(clone, e.Path)
			continue
		}
		clone[e.Path] = e.Content
	}
	f.Files[refKey(repository, newSHA)] = clone
	f.Heads[branchKey(repository, branch)] = newSHA
	return nil
}

func (f *FakeVcsClient) CreatePR(_ context.Context, repository string, opts substrate.PRCreateOptions) (*substrate.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreatePR")
	f.nextPR++
	pr := &substrate.PullRequest{
		Number: f.nextPR, Title: opts.Title, State: "open",
		HeadBranch: opts.Head, BaseBranch: opts.Base,
		HeadSHA: f.Heads[branchKey(repository, opts.Head)],
	}
	f.PRs[branchKey(repository, opts.Head)] = pr
	return pr, nil
}

func (f *FakeVcsClient) GetOrCreatePR(ctx context.Context, repository string, opts substrate.PRCreateOptions) (*substrate.PullRequest, error) {
	f.mu.Lock()
	if pr, ok := f.PRs[branchKey(repository, opts.Head)]; ok {
		f.mu.Unlock()
		f.record("GetOrCreatePR")
		return pr, nil
	}
	f.mu.Unlock()
	return f.CreatePR(ctx, repository, opts)
}

func (f *FakeVcsClient) CommentOnPR(_ context.Context, _ string, _ int, _ string) error {
	f.record("CommentOnPR")
	return nil
}

func (f *FakeVcsClient) CreateDeployment(_ context.Context, _, _, _ string) (*substrate.DeploymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateDeployment")
	f.nextDep++
	dep := &substrate.DeploymentStatus{ID: f.nextDep, State: "pending"}
	f.Deployments[f.nextDep] = dep
	return dep, nil
}

func (f *FakeVcsClient) GetDeploymentStatus(_ context.Context, _ string, deploymentID int64) (*substrate.DeploymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetDeploymentStatus")
	dep, ok := f.Deployments[deploymentID]
	if !ok {
		return nil, fmt.Errorf("testkit: no such deployment %d", deploymentID)
	}
	return dep, nil
}

func (f *FakeVcsClient) GetHeadSHA(_ context.Context, repository, branch string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetHeadSHA")
	sha, ok := f.Heads[branchKey(repository, branch)]
	if !ok {
		return "", fmt.Errorf("testkit: unknown branch %s/%s", repository, branch)
	}
	return sha, nil
}

func (f *FakeVcsClient) DefaultBranch(_ context.Context, _ string) (string, error) {
	f.record("DefaultBranch")
	return f.DefaultBranchName, nil
}

func (f *FakeVcsClient) WorkflowStatusForRef(_ context.Context, repository, ref string) (substrate.WorkflowStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("WorkflowStatusForRef")
	var status substrate.WorkflowStatus
	for _, r := range f.Runs[repository] {
		if r.CommitSHA != ref {
			continue
		}
		status.TotalRuns++
		if r.Status == "completed" && r.Conclusion != "" && r.Conclusion != "success" {
			status.Failed++
			status.FailedRuns = append(status.FailedRuns, r.Workflow)
		}
	}
	if status.Failed > 0 {
		status.State = "failure"
	} else {
		status.State = "success"
	}
	return status, nil
}

var _ substrate.VcsClient = (*FakeVcsClient)(nil)
