// Package substrate defines the leaf-level collaborator interfaces the remediation
// control loop is built on: ModelClient, VcsClient, Notifier, Clock (the Store interface
// lives in pkg/remediation/store). Concrete adapters live in pkg/remediation/store/sqlite,
// pkg/remediation/llmclient, pkg/remediation/vcsclient and pkg/remediation/notifier;
// decision services and the control loop depend only on these
// interfaces, matching the teacher's "leaves-first, explicit dependency" composition.
package substrate

import (
	"context"
	"time"

	"github.com/ci-remediator/orchestrator/pkg/agent/llm"
)

// ModelClient is the LLM chat-completion collaborator. It is intentionally the same
// shape as the teacher's llm.LLMClient so every provider adapter under
// pkg/agent/llmimpl can be reused unmodified.
type ModelClient = llm.LLMClient

// EmbeddingClient produces fixed-dimension embeddings for PatternMemory. Optional: when
// nil, PatternMemory falls back to a deterministic hashed-token projection (§4.6).
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// WorkflowRun is one CI run as reported by the hosting platform.
type WorkflowRun struct {
	ID         int64
	Repository string
	Branch     string
	Workflow   string
	CommitSHA  string
	Status     string
	Conclusion string
	CreatedAt  time.Time
	URL        string
}

// FileEdit describes one write to be committed on a branch.
type FileEdit struct {
	Path    string
	Content []byte
	Delete  bool
}

// PRCreateOptions mirrors the teacher's forge.PRCreateOptions.
type PRCreateOptions struct {
	Title  string
	Body   string
	Head   string
	Base   string
	Draft  bool
	Labels []string
}

// PullRequest mirrors the teacher's forge.PullRequest with the fields this system needs.
type PullRequest struct {
	Number     int
	URL        string
	Title      string
	State      string
	HeadBranch string
	HeadSHA    string
	BaseBranch string
}

// DeploymentStatus is the state of a native approval checkpoint.
type DeploymentStatus struct {
	ID     int64
	State  string // "pending", "approved", "rejected"
	URL    string
}

// WorkflowStatus summarizes the CI runs sharing a commit ref, used by the health check to
// look for regressions on correlated workflows beyond the one that originally failed.
type WorkflowStatus struct {
	State      string // pending, success, failure
	TotalRuns  int
	Failed     int
	FailedRuns []string
}

// VcsClient is the read/write collaborator over the source-control hosting API (§6).
type VcsClient interface {
	// ListFailedRuns lists workflow runs in the given status for a repository.
	ListFailedRuns(ctx context.Context, repository string, status string) ([]WorkflowRun, error)
	// GetRunLogs fetches the log tail for a run; tolerates 410 Gone for expired logs.
	GetRunLogs(ctx context.Context, repository string, runID int64) (string, error)
	// GetFile reads a file's content at a ref.
	GetFile(ctx context.Context, repository, ref, path string) ([]byte, error)
	// CreateBranchFromSHA creates a branch pointing at sha.
	CreateBranchFromSHA(ctx context.Context, repository, branch, sha string) error
	// CommitFiles creates/updates/deletes files on a branch in one commit.
	CommitFiles(ctx context.Context, repository, branch, message string, edits []FileEdit) error
	// CreatePR opens a pull request.
	CreatePR(ctx context.Context, repository string, opts PRCreateOptions) (*PullRequest, error)
	// GetOrCreatePR returns the existing PR for opts.Head or creates one.
	GetOrCreatePR(ctx context.Context, repository string, opts PRCreateOptions) (*PullRequest, error)
	// CommentOnPR posts a comment.
	CommentOnPR(ctx context.Context, repository string, prNumber int, body string) error
	// CreateDeployment creates a deployment to a named (review-gated) environment.
	CreateDeployment(ctx context.Context, repository, ref, environment string) (*DeploymentStatus, error)
	// GetDeploymentStatus polls a deployment's approval state.
	GetDeploymentStatus(ctx context.Context, repository string, deploymentID int64) (*DeploymentStatus, error)
	// GetHeadSHA returns the current tip commit SHA for a branch.
	GetHeadSHA(ctx context.Context, repository, branch string) (string, error)
	// DefaultBranch returns the repository's default branch name.
	DefaultBranch(ctx context.Context, repository string) (string, error)
	// WorkflowStatusForRef summarizes every workflow run sharing ref, so the health check
	// can catch a regression on a correlated workflow the original failure didn't touch.
	WorkflowStatusForRef(ctx context.Context, repository, ref string) (WorkflowStatus, error)
}

// NotificationKind enumerates the Notifier message kinds (§6).
type NotificationKind string

// Recognized notification kinds.
const (
	NotifyInitialAlert      NotificationKind = "initial_alert"
	NotifyAnalysis          NotificationKind = "analysis"
	NotifyApprovalRequest   NotificationKind = "approval_request"
	NotifyRemediationResult NotificationKind = "remediation_result"
	NotifyCritical          NotificationKind = "critical"
	NotifyEscalation        NotificationKind = "escalation"
	NotifyWeeklyReport      NotificationKind = "weekly_report"
)

// Notifier is the outbound chat-notification collaborator.
type Notifier interface {
	Send(ctx context.Context, channel string, kind NotificationKind, payload map[string]any) error
}

// Clock is an injectable time source so tests can step time deterministically (§9).
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the production Clock backed by the standard library.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// After returns a channel that fires after d, per time.After.
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Sleep blocks for d or until ctx is done, whichever comes first.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
