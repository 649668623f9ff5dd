package repository

import (
	"context"
	"strings"

	"arbiter/internal/common/db"
	"arbiter/internal/judge/model"
	appErr "arbiter/pkg/errors"
)

// SubmissionTestcaseRepository persists per-testcase outcome rows.
type SubmissionTestcaseRepository interface {
	// ReplaceForSubmission supersedes any rows from an earlier attempt and
	// inserts the new set. Old rows are discarded, never merged.
	ReplaceForSubmission(ctx context.Context, tx db.Transaction, submissionID string, rows []*model.SubmissionTestcase) error

	ListBySubmission(ctx context.Context, submissionID string) ([]*model.SubmissionTestcase, error)
}

// MySQLSubmissionTestcaseRepository implements the repository with MySQL.
type MySQLSubmissionTestcaseRepository struct {
	db db.Database
}

func NewSubmissionTestcaseRepository(database db.Database) SubmissionTestcaseRepository {
	return &MySQLSubmissionTestcaseRepository{db: database}
}

func (r *MySQLSubmissionTestcaseRepository) ReplaceForSubmission(ctx context.Context, tx db.Transaction, submissionID string, rows []*model.SubmissionTestcase) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	querier := db.GetQuerier(r.db, tx)
	if _, err := querier.Exec(ctx, "DELETE FROM submission_testcases WHERE submission_id = ?", submissionID); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "delete superseded rows failed")
	}
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO submission_testcases (submission_id, testcase_id, status, stdout, truncated, time_ms, memory_kb) VALUES ")
	args := make([]interface{}, 0, len(rows)*7)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, submissionID, row.TestcaseID, row.Status, row.Stdout, row.Truncated, row.TimeMs, row.MemoryKB)
	}
	if _, err := querier.Exec(ctx, sb.String(), args...); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "insert testcase rows failed")
	}
	return nil
}

func (r *MySQLSubmissionTestcaseRepository) ListBySubmission(ctx context.Context, submissionID string) ([]*model.SubmissionTestcase, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	query := `
		SELECT id, submission_id, testcase_id, status, stdout, truncated, time_ms, memory_kb
		FROM submission_testcases
		WHERE submission_id = ?
		ORDER BY testcase_id ASC
	`
	rows, err := r.db.Query(ctx, query, submissionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list testcase rows failed")
	}
	defer rows.Close()

	var out []*model.SubmissionTestcase
	for rows.Next() {
		row := &model.SubmissionTestcase{}
		if err := rows.Scan(&row.ID, &row.SubmissionID, &row.TestcaseID, &row.Status, &row.Stdout, &row.Truncated, &row.TimeMs, &row.MemoryKB); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan testcase row failed")
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate testcase rows failed")
	}
	return out, nil
}
