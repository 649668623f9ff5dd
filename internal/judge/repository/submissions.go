package repository

import (
	"context"
	"time"

	"arbiter/internal/common/db"
	"arbiter/internal/judge/model"
	appErr "arbiter/pkg/errors"
)

// SubmissionRepository persists submissions and their state transitions.
type SubmissionRepository interface {
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error)

	// UpdateStatus performs a guarded transition. It fails with
	// TransactionFailed when the row is not currently in the from state,
	// which keeps two workers from advancing the same attempt.
	UpdateStatus(ctx context.Context, tx db.Transaction, submissionID string, from, to model.SubmissionStatus) error

	// MarkTerminal writes the terminal state together with the aggregates.
	MarkTerminal(ctx context.Context, tx db.Transaction, submissionID string, status model.SubmissionStatus, timeMs, memoryKB int64, score int) error

	// ResetForRejudge puts a terminal submission back to pending.
	ResetForRejudge(ctx context.Context, tx db.Transaction, submissionID string) error

	// FindClaimedNonTerminal lists submissions stuck in a non-terminal state
	// longer than the given age, candidates for reclaiming after a crash.
	FindClaimedNonTerminal(ctx context.Context, olderThan time.Duration, limit int) ([]string, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db db.Database
}

// NewSubmissionRepository creates a submission repository.
func NewSubmissionRepository(database db.Database) SubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

const submissionColumns = "id, user_id, problem_id, language_id, source_code, status, time_execution_ms, memory_usage_kb, score, created_at, judged_at, deleted_at"

func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*model.Submission, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID)
	submission := &model.Submission{}
	if err := row.Scan(
		&submission.ID,
		&submission.UserID,
		&submission.ProblemID,
		&submission.LanguageID,
		&submission.SourceCode,
		&submission.Status,
		&submission.TimeExecutionMs,
		&submission.MemoryUsageKB,
		&submission.Score,
		&submission.CreatedAt,
		&submission.JudgedAt,
		&submission.DeletedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	return submission, nil
}

func (r *MySQLSubmissionRepository) UpdateStatus(ctx context.Context, tx db.Transaction, submissionID string, from, to model.SubmissionStatus) error {
	if !model.ValidTransition(from, to) {
		return appErr.Newf(appErr.InvalidParams, "invalid transition %s -> %s", from, to)
	}
	query := "UPDATE submissions SET status = ? WHERE id = ? AND status = ? AND deleted_at IS NULL"
	res, err := db.GetQuerier(r.db, tx).Exec(ctx, query, to, submissionID, from)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update submission status failed")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update submission status failed")
	}
	if affected == 0 {
		return appErr.Newf(appErr.TransactionFailed, "submission %s is not in state %s", submissionID, from)
	}
	return nil
}

func (r *MySQLSubmissionRepository) MarkTerminal(ctx context.Context, tx db.Transaction, submissionID string, status model.SubmissionStatus, timeMs, memoryKB int64, score int) error {
	if !status.IsTerminal() {
		return appErr.ValidationError("status", "must be terminal")
	}
	query := `
		UPDATE submissions
		SET status = ?, time_execution_ms = ?, memory_usage_kb = ?, score = ?, judged_at = ?
		WHERE id = ?
	`
	res, err := db.GetQuerier(r.db, tx).Exec(ctx, query, status, timeMs, memoryKB, score, time.Now(), submissionID)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "mark submission terminal failed")
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
	}
	return nil
}

func (r *MySQLSubmissionRepository) ResetForRejudge(ctx context.Context, tx db.Transaction, submissionID string) error {
	query := `
		UPDATE submissions
		SET status = ?, time_execution_ms = 0, memory_usage_kb = 0, score = 0, judged_at = NULL
		WHERE id = ? AND deleted_at IS NULL
	`
	res, err := db.GetQuerier(r.db, tx).Exec(ctx, query, model.StatusPending, submissionID)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "reset submission failed")
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
	}
	return nil
}

func (r *MySQLSubmissionRepository) FindClaimedNonTerminal(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id FROM submissions
		WHERE status IN (?, ?) AND deleted_at IS NULL AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	cutoff := time.Now().Add(-olderThan)
	rows, err := r.db.Query(ctx, query, model.StatusCompiling, model.StatusRunning, cutoff, limit)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "find claimed submissions failed")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan submission id failed")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate submissions failed")
	}
	return ids, nil
}
