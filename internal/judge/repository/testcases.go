package repository

import (
	"context"

	"arbiter/internal/common/db"
	"arbiter/internal/judge/model"
	appErr "arbiter/pkg/errors"
)

// TestcaseRepository reads the testcases of a problem.
type TestcaseRepository interface {
	// ListByProblem returns non-deleted testcases in ascending id order,
	// which is the priority order for verdict aggregation.
	ListByProblem(ctx context.Context, tx db.Transaction, problemID int64) ([]*model.Testcase, error)
}

// MySQLTestcaseRepository implements TestcaseRepository with MySQL.
type MySQLTestcaseRepository struct {
	db db.Database
}

func NewTestcaseRepository(database db.Database) TestcaseRepository {
	return &MySQLTestcaseRepository{db: database}
}

func (r *MySQLTestcaseRepository) ListByProblem(ctx context.Context, tx db.Transaction, problemID int64) ([]*model.Testcase, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	query := `
		SELECT id, problem_id, input, expected_output, input_key, output_key, checksum, is_sample, points, deleted_at
		FROM testcases
		WHERE problem_id = ? AND deleted_at IS NULL
		ORDER BY id ASC
	`
	rows, err := db.GetQuerier(r.db, tx).Query(ctx, query, problemID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list testcases failed")
	}
	defer rows.Close()

	var out []*model.Testcase
	for rows.Next() {
		tc := &model.Testcase{}
		if err := rows.Scan(
			&tc.ID,
			&tc.ProblemID,
			&tc.Input,
			&tc.Expected,
			&tc.InputKey,
			&tc.OutputKey,
			&tc.Checksum,
			&tc.IsSample,
			&tc.Points,
			&tc.DeletedAt,
		); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan testcase failed")
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate testcases failed")
	}
	return out, nil
}
