package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ci-remediator/orchestrator/pkg/logx"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// DryRunSummary accumulates every state-changing call a dry-run intercepted, for the
// end-of-run report (§4.7).
type DryRunSummary struct {
	mu      sync.Mutex
	Entries []DryRunEntry
}

// DryRunEntry is one intercepted call.
type DryRunEntry struct {
	Operation    string
	Repository   string
	PayloadDigest string
	Description  string
}

func (s *DryRunSummary) record(operation, repository, description string, payload any) {
	digest := digestOf(payload)
	s.mu.Lock()
	s.Entries = append(s.Entries, DryRunEntry{
		Operation:     operation,
		Repository:    repository,
		PayloadDigest: digest,
		Description:   description,
	})
	s.mu.Unlock()
}

func digestOf(payload any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", payload))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// dryRunVcsClient wraps a real substrate.VcsClient, replacing every state-changing method
// with a logged no-op. Read-only methods pass through unchanged, since the Executor still
// needs real repository content to compute what it *would* do.
type dryRunVcsClient struct {
	substrate.VcsClient
	summary *DryRunSummary
	logger  *logx.Logger
}

// newDryRunVcsClient returns vcs unchanged if summary is nil, otherwise an interception
// wrapper. Callers select this at Executor construction time based on config.Config.DryRun.
func newDryRunVcsClient(vcs substrate.VcsClient, summary *DryRunSummary, logger *logx.Logger) substrate.VcsClient {
	if summary == nil {
		return vcs
	}
	return &dryRunVcsClient{VcsClient: vcs, summary: summary, logger: logger}
}

func (d *dryRunVcsClient) CreateBranchFromSHA(_ context.Context, repository, branch, sha string) error {
	d.summary.record("CreateBranchFromSHA", repository, fmt.Sprintf("would create branch %s from %s", branch, sha), map[string]string{"branch": branch, "sha": sha})
	d.logger.Info("dry-run: skipping CreateBranchFromSHA repository=%s branch=%s", repository, branch)
	return nil
}

func (d *dryRunVcsClient) CommitFiles(_ context.Context, repository, branch, message string, edits []substrate.FileEdit) error {
	d.summary.record("CommitFiles", repository, fmt.Sprintf("would commit %d file edits to %s: %s", len(edits), branch, message), edits)
	d.logger.Info("dry-run: skipping CommitFiles repository=%s branch=%s files=%d", repository, branch, len(edits))
	return nil
}

func (d *dryRunVcsClient) CreatePR(_ context.Context, repository string, opts substrate.PRCreateOptions) (*substrate.PullRequest, error) {
	d.summary.record("CreatePR", repository, fmt.Sprintf("would open PR %s: %s -> %s", opts.Title, opts.Head, opts.Base), opts)
	d.logger.Info("dry-run: skipping CreatePR repository=%s head=%s", repository, opts.Head)
	return &substrate.PullRequest{Title: opts.Title, HeadBranch: opts.Head, BaseBranch: opts.Base, State: "simulated"}, nil
}

func (d *dryRunVcsClient) GetOrCreatePR(_ context.Context, repository string, opts substrate.PRCreateOptions) (*substrate.PullRequest, error) {
	d.summary.record("GetOrCreatePR", repository, fmt.Sprintf("would get-or-create PR %s -> %s", opts.Head, opts.Base), opts)
	d.logger.Info("dry-run: skipping GetOrCreatePR repository=%s head=%s", repository, opts.Head)
	return &substrate.PullRequest{Title: opts.Title, HeadBranch: opts.Head, BaseBranch: opts.Base, State: "simulated"}, nil
}

func (d *dryRunVcsClient) CommentOnPR(_ context.Context, repository string, prNumber int, body string) error {
	d.summary.record("CommentOnPR", repository, fmt.Sprintf("would comment on PR #%d", prNumber), body)
	d.logger.Info("dry-run: skipping CommentOnPR repository=%s pr=%d", repository, prNumber)
	return nil
}

func (d *dryRunVcsClient) CreateDeployment(_ context.Context, repository, ref, environment string) (*substrate.DeploymentStatus, error) {
	d.summary.record("CreateDeployment", repository, fmt.Sprintf("would deploy %s to %s", ref, environment), map[string]string{"ref": ref, "environment": environment})
	d.logger.Info("dry-run: skipping CreateDeployment repository=%s environment=%s", repository, environment)
	return &DeploymentSimulated, nil
}

// DeploymentSimulated is the placeholder status returned in place of a real approval
// deployment while running in dry-run mode.
var DeploymentSimulated = substrate.DeploymentStatus{ID: -1, State: "simulated"}
