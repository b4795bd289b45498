// Package sqlite implements store.Store on top of modernc.org/sqlite, grounded on
// pkg/persistence/db.go's connection setup (WAL journal mode, busy timeout, single
// writer) adapted to an instance-scoped client rather than a process-wide singleton,
// since the control loop constructs its dependencies explicitly at startup.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ci-remediator/orchestrator/pkg/logx"
	"github.com/ci-remediator/orchestrator/pkg/remediation/domain"
	remerrors "github.com/ci-remediator/orchestrator/pkg/remediation/errors"
	"github.com/ci-remediator/orchestrator/pkg/remediation/store"
)

// Client is a store.Store backed by a SQLite file.
type Client struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open connects to (and, if necessary, initializes) a SQLite database at dsn, a
// standard modernc.org/sqlite data source such as "file:remediator.db".
func Open(dsn string) (*Client, error) {
	if !strings.Contains(dsn, "_journal_mode") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn = fmt.Sprintf("%s%s_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", dsn, sep)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite tolerates one writer; readers multiplex over it too
	db.SetMaxIdleConns(1)

	return &Client{db: db, logger: logx.NewLogger("remediation-store")}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.db.Close()
}

var _ store.Store = (*Client)(nil)

func toJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func fromJSON(s string, v interface{}) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

// --- Failure ---

func (c *Client) SaveFailure(ctx context.Context, f *domain.Failure) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO failures (id, repository, branch, workflow_name, run_id, commit_hash, status,
			captured_logs, failure_reason, detected_at, updated_at, terminal_reason, dedupe_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			captured_logs = excluded.captured_logs,
			failure_reason = excluded.failure_reason,
			updated_at = excluded.updated_at,
			terminal_reason = excluded.terminal_reason
	`, f.ID, f.Repository, f.Branch, f.Workflow, f.RunID, f.CommitHash, f.Status,
		f.CapturedLogs, f.FailureReason, f.DetectedAt, f.UpdatedAt, f.TerminalReason, f.Key())
	if err != nil {
		return fmt.Errorf("save failure %s: %w", f.ID, err)
	}
	return nil
}

func scanFailure(row interface{ Scan(...any) error }) (*domain.Failure, error) {
	var f domain.Failure
	var terminalReason sql.NullString
	var dedupeKey string
	if err := row.Scan(&f.ID, &f.Repository, &f.Branch, &f.Workflow, &f.RunID, &f.CommitHash,
		&f.Status, &f.CapturedLogs, &f.FailureReason, &f.DetectedAt, &f.UpdatedAt, &terminalReason, &dedupeKey); err != nil {
		return nil, err
	}
	f.TerminalReason = terminalReason.String
	return &f, nil
}

func (c *Client) GetFailure(ctx context.Context, id string) (*domain.Failure, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, repository, branch, workflow_name, run_id, commit_hash, status,
			captured_logs, failure_reason, detected_at, updated_at, terminal_reason, dedupe_key
		FROM failures WHERE id = ?`, id)
	f, err := scanFailure(row)
	if err == sql.ErrNoRows {
		return nil, remerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failure %s: %w", id, err)
	}
	return f, nil
}

func (c *Client) FindFailureByKey(ctx context.Context, key string) (*domain.Failure, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, repository, branch, workflow_name, run_id, commit_hash, status,
			captured_logs, failure_reason, detected_at, updated_at, terminal_reason, dedupe_key
		FROM failures WHERE dedupe_key = ?`, key)
	f, err := scanFailure(row)
	if err == sql.ErrNoRows {
		return nil, remerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find failure by key %s: %w", key, err)
	}
	return f, nil
}

func (c *Client) ListFailures(ctx context.Context, repository string, statuses []domain.FailureStatus, limit int) ([]domain.Failure, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, repository, branch, workflow_name, run_id, commit_hash, status,
			captured_logs, failure_reason, detected_at, updated_at, terminal_reason, dedupe_key
		FROM failures WHERE repository = ?`)
	args := []interface{}{repository}

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = "?"
			args = append(args, s)
		}
		query.WriteString(" AND status IN (" + strings.Join(placeholders, ",") + ")")
	}
	query.WriteString(" ORDER BY detected_at DESC")
	if limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list failures for %s: %w", repository, err)
	}
	defer rows.Close()

	var out []domain.Failure
	for rows.Next() {
		f, err := scanFailure(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failure row: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// --- Analysis ---

func (c *Client) SaveAnalysis(ctx context.Context, a *domain.Analysis) error {
	files, err := toJSON(a.FilesToModify)
	if err != nil {
		return err
	}
	ops, err := toJSON(a.FixOperations)
	if err != nil {
		return err
	}
	components, err := toJSON(a.AffectedComponents)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO analyses (failure_id, error_type, category, risk_score, confidence, effort,
			proposed_fix, files_to_modify, fix_operations, reasoning, affected_components,
			model_id, response_latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(failure_id) DO UPDATE SET
			error_type = excluded.error_type, category = excluded.category,
			risk_score = excluded.risk_score, confidence = excluded.confidence,
			effort = excluded.effort, proposed_fix = excluded.proposed_fix,
			files_to_modify = excluded.files_to_modify, fix_operations = excluded.fix_operations,
			reasoning = excluded.reasoning, affected_components = excluded.affected_components
	`, a.FailureID, a.ErrorType, a.Category, a.RiskScore, a.Confidence, a.Effort,
		a.ProposedFix, files, ops, a.Reasoning, components, a.ModelID, a.ResponseLatencyMS, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("save analysis for %s: %w", a.FailureID, err)
	}
	return nil
}

func (c *Client) GetAnalysis(ctx context.Context, failureID string) (*domain.Analysis, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT failure_id, error_type, category, risk_score, confidence, effort, proposed_fix,
			files_to_modify, fix_operations, reasoning, affected_components, model_id,
			response_latency_ms, created_at
		FROM analyses WHERE failure_id = ?`, failureID)

	var a domain.Analysis
	var filesJSON, opsJSON, componentsJSON string
	if err := row.Scan(&a.FailureID, &a.ErrorType, &a.Category, &a.RiskScore, &a.Confidence, &a.Effort,
		&a.ProposedFix, &filesJSON, &opsJSON, &a.Reasoning, &componentsJSON, &a.ModelID,
		&a.ResponseLatencyMS, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, remerrors.ErrNotFound
		}
		return nil, fmt.Errorf("get analysis for %s: %w", failureID, err)
	}
	if err := fromJSON(filesJSON, &a.FilesToModify); err != nil {
		return nil, err
	}
	if err := fromJSON(opsJSON, &a.FixOperations); err != nil {
		return nil, err
	}
	if err := fromJSON(componentsJSON, &a.AffectedComponents); err != nil {
		return nil, err
	}
	return &a, nil
}

// --- CircuitState ---

func (c *Client) SaveCircuitState(ctx context.Context, s *domain.CircuitState) error {
	history, err := toJSON(s.History)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO circuit_states (signature, state, failure_count, last_failure_at, opened_at, auto_reset_at, history)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(signature) DO UPDATE SET
			state = excluded.state, failure_count = excluded.failure_count,
			last_failure_at = excluded.last_failure_at, opened_at = excluded.opened_at,
			auto_reset_at = excluded.auto_reset_at, history = excluded.history
	`, s.Signature, s.State, s.FailureCount, s.LastFailureAt, s.OpenedAt, s.AutoResetAt, history)
	if err != nil {
		return fmt.Errorf("save circuit state %s: %w", s.Signature, err)
	}
	return nil
}

func (c *Client) GetCircuitState(ctx context.Context, signature string) (*domain.CircuitState, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT signature, state, failure_count, last_failure_at, opened_at, auto_reset_at, history
		FROM circuit_states WHERE signature = ?`, signature)
	s, err := scanCircuitState(row)
	if err == sql.ErrNoRows {
		return nil, remerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get circuit state %s: %w", signature, err)
	}
	return s, nil
}

func scanCircuitState(row interface{ Scan(...any) error }) (*domain.CircuitState, error) {
	var s domain.CircuitState
	var historyJSON string
	var openedAt, autoResetAt sql.NullTime
	if err := row.Scan(&s.Signature, &s.State, &s.FailureCount, &s.LastFailureAt, &openedAt, &autoResetAt, &historyJSON); err != nil {
		return nil, err
	}
	if openedAt.Valid {
		s.OpenedAt = &openedAt.Time
	}
	if autoResetAt.Valid {
		s.AutoResetAt = &autoResetAt.Time
	}
	if err := fromJSON(historyJSON, &s.History); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ListOpenCircuits(ctx context.Context) ([]domain.CircuitState, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT signature, state, failure_count, last_failure_at, opened_at, auto_reset_at, history
		FROM circuit_states WHERE state != ?`, domain.CircuitClosed)
	if err != nil {
		return nil, fmt.Errorf("list open circuits: %w", err)
	}
	defer rows.Close()

	var out []domain.CircuitState
	for rows.Next() {
		s, err := scanCircuitState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan circuit state row: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// --- Pattern ---

func (c *Client) SavePattern(ctx context.Context, p *domain.Pattern) error {
	filesJSON, err := toJSON(p.FilesModified)
	if err != nil {
		return err
	}
	cmdsJSON, err := toJSON(p.FixCommands)
	if err != nil {
		return err
	}
	embeddingBytes, err := toJSON(p.Embedding)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO patterns (id, repository, branch, error_signature, category, proposed_fix,
			files_modified, fix_commands, fix_successful, resolution_time_ms, embedding,
			embedding_family, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, p.ID, p.Repository, p.Branch, p.ErrorSignature, p.Category, p.ProposedFix,
		filesJSON, cmdsJSON, p.FixSuccessful, p.ResolutionTimeMS, embeddingBytes, p.EmbeddingFamily, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("save pattern %s: %w", p.ID, err)
	}
	return nil
}

func (c *Client) ListPatterns(ctx context.Context, repository string, family domain.EmbeddingFamily) ([]domain.Pattern, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, repository, branch, error_signature, category, proposed_fix, files_modified,
			fix_commands, fix_successful, resolution_time_ms, embedding, embedding_family, created_at
		FROM patterns WHERE repository = ? AND embedding_family = ?`, repository, family)
	if err != nil {
		return nil, fmt.Errorf("list patterns for %s: %w", repository, err)
	}
	defer rows.Close()

	var out []domain.Pattern
	for rows.Next() {
		var p domain.Pattern
		var filesJSON, cmdsJSON, embeddingJSON string
		if err := rows.Scan(&p.ID, &p.Repository, &p.Branch, &p.ErrorSignature, &p.Category, &p.ProposedFix,
			&filesJSON, &cmdsJSON, &p.FixSuccessful, &p.ResolutionTimeMS, &embeddingJSON, &p.EmbeddingFamily, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pattern row: %w", err)
		}
		if err := fromJSON(filesJSON, &p.FilesModified); err != nil {
			return nil, err
		}
		if err := fromJSON(cmdsJSON, &p.FixCommands); err != nil {
			return nil, err
		}
		if err := fromJSON(embeddingJSON, &p.Embedding); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- PersonalityProfile ---

func (c *Client) SavePersonalityProfile(ctx context.Context, p *domain.PersonalityProfile) error {
	catJSON, err := toJSON(p.CategoryHistogram)
	if err != nil {
		return err
	}
	dowJSON, err := toJSON(p.DayOfWeekHistogram)
	if err != nil {
		return err
	}
	hourJSON, err := toJSON(p.HourHistogram)
	if err != nil {
		return err
	}
	patternsJSON, err := toJSON(p.DetectedPatterns)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO personality_profiles (repository, total_failures, category_histogram,
			day_of_week_histogram, hour_histogram, flaky_rate, avg_resolution_minutes,
			success_rate, detected_patterns, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repository) DO UPDATE SET
			total_failures = excluded.total_failures, category_histogram = excluded.category_histogram,
			day_of_week_histogram = excluded.day_of_week_histogram, hour_histogram = excluded.hour_histogram,
			flaky_rate = excluded.flaky_rate, avg_resolution_minutes = excluded.avg_resolution_minutes,
			success_rate = excluded.success_rate, detected_patterns = excluded.detected_patterns,
			computed_at = excluded.computed_at
	`, p.Repository, p.TotalFailures, catJSON, dowJSON, hourJSON, p.FlakyRate,
		p.AvgResolutionMinutes, p.SuccessRate, patternsJSON, p.ComputedAt)
	if err != nil {
		return fmt.Errorf("save personality profile for %s: %w", p.Repository, err)
	}
	return nil
}

func (c *Client) GetPersonalityProfile(ctx context.Context, repository string) (*domain.PersonalityProfile, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT repository, total_failures, category_histogram, day_of_week_histogram, hour_histogram,
			flaky_rate, avg_resolution_minutes, success_rate, detected_patterns, computed_at
		FROM personality_profiles WHERE repository = ?`, repository)

	var p domain.PersonalityProfile
	var catJSON, dowJSON, hourJSON, patternsJSON string
	if err := row.Scan(&p.Repository, &p.TotalFailures, &catJSON, &dowJSON, &hourJSON,
		&p.FlakyRate, &p.AvgResolutionMinutes, &p.SuccessRate, &patternsJSON, &p.ComputedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, remerrors.ErrNotFound
		}
		return nil, fmt.Errorf("get personality profile for %s: %w", repository, err)
	}
	if err := fromJSON(catJSON, &p.CategoryHistogram); err != nil {
		return nil, err
	}
	if err := fromJSON(dowJSON, &p.DayOfWeekHistogram); err != nil {
		return nil, err
	}
	if err := fromJSON(hourJSON, &p.HourHistogram); err != nil {
		return nil, err
	}
	if err := fromJSON(patternsJSON, &p.DetectedPatterns); err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Snapshot ---

func (c *Client) SaveSnapshot(ctx context.Context, s *domain.Snapshot) error {
	filesJSON, err := toJSON(s.Files)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, repository, remediation_id, branch, base_commit_sha, files,
			created_at, expires_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status
	`, s.ID, s.Repository, s.RemediationID, s.Branch, s.BaseCommitSHA, filesJSON, s.CreatedAt, s.ExpiresAt, s.Status)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", s.ID, err)
	}
	return nil
}

func (c *Client) GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, repository, remediation_id, branch, base_commit_sha, files, created_at, expires_at, status
		FROM snapshots WHERE id = ?`, id)

	var s domain.Snapshot
	var filesJSON string
	if err := row.Scan(&s.ID, &s.Repository, &s.RemediationID, &s.Branch, &s.BaseCommitSHA,
		&filesJSON, &s.CreatedAt, &s.ExpiresAt, &s.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, remerrors.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	if err := fromJSON(filesJSON, &s.Files); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) GetSnapshotByRemediationID(ctx context.Context, remediationID string) (*domain.Snapshot, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, repository, remediation_id, branch, base_commit_sha, files, created_at, expires_at, status
		FROM snapshots WHERE remediation_id = ? ORDER BY created_at DESC LIMIT 1`, remediationID)

	var s domain.Snapshot
	var filesJSON string
	if err := row.Scan(&s.ID, &s.Repository, &s.RemediationID, &s.Branch, &s.BaseCommitSHA,
		&filesJSON, &s.CreatedAt, &s.ExpiresAt, &s.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, remerrors.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot by remediation %s: %w", remediationID, err)
	}
	if err := fromJSON(filesJSON, &s.Files); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ListExpiredSnapshots(ctx context.Context, before time.Time) ([]domain.Snapshot, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, repository, remediation_id, branch, base_commit_sha, files, created_at, expires_at, status
		FROM snapshots WHERE status = ? AND expires_at < ?`, domain.SnapshotActive, before)
	if err != nil {
		return nil, fmt.Errorf("list expired snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.Snapshot
	for rows.Next() {
		var s domain.Snapshot
		var filesJSON string
		if err := rows.Scan(&s.ID, &s.Repository, &s.RemediationID, &s.Branch, &s.BaseCommitSHA,
			&filesJSON, &s.CreatedAt, &s.ExpiresAt, &s.Status); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		if err := fromJSON(filesJSON, &s.Files); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *Client) UpdateSnapshotStatus(ctx context.Context, id string, status domain.SnapshotStatus) error {
	res, err := c.db.ExecContext(ctx, `UPDATE snapshots SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update snapshot status %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return remerrors.ErrNotFound
	}
	return nil
}

// --- HealthCheck ---

func (c *Client) SaveHealthCheck(ctx context.Context, h *domain.HealthCheck) error {
	checksJSON, err := toJSON(h.Checks)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO health_checks (id, remediation_id, snapshot_id, scheduled_at, executed_at,
			passed, checks, triggered_rollback)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			executed_at = excluded.executed_at, passed = excluded.passed,
			checks = excluded.checks, triggered_rollback = excluded.triggered_rollback
	`, h.ID, h.RemediationID, h.SnapshotID, h.ScheduledAt, h.ExecutedAt, h.Passed, checksJSON, h.TriggeredRollback)
	if err != nil {
		return fmt.Errorf("save health check %s: %w", h.ID, err)
	}
	return nil
}

func (c *Client) ListDueHealthChecks(ctx context.Context, before time.Time) ([]domain.HealthCheck, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, remediation_id, snapshot_id, scheduled_at, executed_at, passed, checks, triggered_rollback
		FROM health_checks WHERE executed_at IS NULL AND scheduled_at < ?`, before)
	if err != nil {
		return nil, fmt.Errorf("list due health checks: %w", err)
	}
	defer rows.Close()

	var out []domain.HealthCheck
	for rows.Next() {
		var h domain.HealthCheck
		var checksJSON string
		var executedAt sql.NullTime
		var passed sql.NullBool
		if err := rows.Scan(&h.ID, &h.RemediationID, &h.SnapshotID, &h.ScheduledAt, &executedAt,
			&passed, &checksJSON, &h.TriggeredRollback); err != nil {
			return nil, fmt.Errorf("scan health check row: %w", err)
		}
		if executedAt.Valid {
			h.ExecutedAt = &executedAt.Time
		}
		if passed.Valid {
			h.Passed = &passed.Bool
		}
		if err := fromJSON(checksJSON, &h.Checks); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- ApprovalRequest ---

func (c *Client) SaveApprovalRequest(ctx context.Context, a *domain.ApprovalRequest) error {
	reviewersJSON, err := toJSON(a.RequiredReviewers)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO approval_requests (id, failure_id, repository, pr_number, required_reviewers,
			environment_name, status, created_at, expires_at, resolved_at, resolved_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, resolved_at = excluded.resolved_at, resolved_by = excluded.resolved_by
	`, a.ID, a.FailureID, a.Repository, a.PRNumber, reviewersJSON, a.EnvironmentName,
		a.Status, a.CreatedAt, a.ExpiresAt, a.ResolvedAt, a.ResolvedBy)
	if err != nil {
		return fmt.Errorf("save approval request %s: %w", a.ID, err)
	}
	return nil
}

func scanApproval(row interface{ Scan(...any) error }) (*domain.ApprovalRequest, error) {
	var a domain.ApprovalRequest
	var reviewersJSON string
	var resolvedAt sql.NullTime
	var resolvedBy sql.NullString
	if err := row.Scan(&a.ID, &a.FailureID, &a.Repository, &a.PRNumber, &reviewersJSON,
		&a.EnvironmentName, &a.Status, &a.CreatedAt, &a.ExpiresAt, &resolvedAt, &resolvedBy); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	a.ResolvedBy = resolvedBy.String
	if err := fromJSON(reviewersJSON, &a.RequiredReviewers); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) GetApprovalRequest(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, failure_id, repository, pr_number, required_reviewers, environment_name,
			status, created_at, expires_at, resolved_at, resolved_by
		FROM approval_requests WHERE id = ?`, id)
	a, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, remerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get approval request %s: %w", id, err)
	}
	return a, nil
}

func (c *Client) ListPendingApprovals(ctx context.Context, repository string) ([]domain.ApprovalRequest, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, failure_id, repository, pr_number, required_reviewers, environment_name,
			status, created_at, expires_at, resolved_at, resolved_by
		FROM approval_requests WHERE repository = ? AND status = ?`, repository, domain.ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals for %s: %w", repository, err)
	}
	defer rows.Close()

	var out []domain.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval row: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (c *Client) ResolveApproval(ctx context.Context, id string, status domain.ApprovalStatus, resolvedBy string, at time.Time) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE approval_requests SET status = ?, resolved_at = ?, resolved_by = ? WHERE id = ?
	`, status, at, resolvedBy, id)
	if err != nil {
		return fmt.Errorf("resolve approval %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return remerrors.ErrNotFound
	}
	return nil
}

// --- DecisionRecord ---

func (c *Client) SaveDecisionRecord(ctx context.Context, d *domain.DecisionRecord) error {
	altsJSON, err := toJSON(d.Alternatives)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO decision_records (id, failure_id, kind, chosen, alternatives, context_digest, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.FailureID, d.Kind, d.Chosen, altsJSON, d.ContextDigest, d.Confidence, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("save decision record %s: %w", d.ID, err)
	}
	return nil
}

func (c *Client) ListDecisionsForFailure(ctx context.Context, failureID string) ([]domain.DecisionRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, failure_id, kind, chosen, alternatives, context_digest, confidence, created_at
		FROM decision_records WHERE failure_id = ? ORDER BY created_at ASC`, failureID)
	if err != nil {
		return nil, fmt.Errorf("list decisions for %s: %w", failureID, err)
	}
	defer rows.Close()

	var out []domain.DecisionRecord
	for rows.Next() {
		var d domain.DecisionRecord
		var altsJSON string
		if err := rows.Scan(&d.ID, &d.FailureID, &d.Kind, &d.Chosen, &altsJSON, &d.ContextDigest, &d.Confidence, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision row: %w", err)
		}
		if err := fromJSON(altsJSON, &d.Alternatives); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- AuditEntry ---

func (c *Client) AppendAuditEntry(ctx context.Context, e *domain.AuditEntry) error {
	detailsJSON, err := toJSON(e.Details)
	if err != nil {
		return err
	}
	// repository is denormalized off Details for query filtering; fall back to empty.
	repository, _ := e.Details["repository"].(string)

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO audit_log (timestamp, actor, action_kind, failure_id, repository, outcome, details, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Timestamp, e.Actor, e.ActionKind, e.FailureID, repository, e.Outcome, detailsJSON, e.Error)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		e.ID = id
	}
	return nil
}

func (c *Client) QueryAuditLog(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, timestamp, actor, action_kind, failure_id, outcome, details, error FROM audit_log WHERE 1=1`)
	var args []interface{}

	if filter.Repository != "" {
		query.WriteString(" AND repository = ?")
		args = append(args, filter.Repository)
	}
	if filter.FailureID != "" {
		query.WriteString(" AND failure_id = ?")
		args = append(args, filter.FailureID)
	}
	if filter.ActionKind != "" {
		query.WriteString(" AND action_kind = ?")
		args = append(args, filter.ActionKind)
	}
	if !filter.Since.IsZero() {
		query.WriteString(" AND timestamp >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		query.WriteString(" AND timestamp <= ?")
		args = append(args, filter.Until)
	}
	query.WriteString(" ORDER BY timestamp DESC")
	if filter.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var failureID, errStr sql.NullString
		var detailsJSON string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor, &e.ActionKind, &failureID, &e.Outcome, &detailsJSON, &errStr); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.FailureID = failureID.String
		e.Error = errStr.String
		if err := fromJSON(detailsJSON, &e.Details); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
