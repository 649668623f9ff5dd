package repository

import (
	"context"

	"arbiter/internal/common/db"
	"arbiter/internal/judge/model"
	appErr "arbiter/pkg/errors"
)

// ProblemRepository reads problem configuration and maintains aggregate
// counters.
type ProblemRepository interface {
	GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*model.Problem, error)
	GetOverride(ctx context.Context, tx db.Transaction, problemID, languageID int64) (*model.ProblemLanguage, error)

	// IncrementCounters bumps totalSubmissions, and acceptedSubmissions when
	// accepted, in one atomic UPDATE. Issued exactly once per terminal
	// transition.
	IncrementCounters(ctx context.Context, tx db.Transaction, problemID int64, accepted bool) error
}

// MySQLProblemRepository implements ProblemRepository with MySQL.
type MySQLProblemRepository struct {
	db db.Database
}

func NewProblemRepository(database db.Database) ProblemRepository {
	return &MySQLProblemRepository{db: database}
}

func (r *MySQLProblemRepository) GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*model.Problem, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	query := `
		SELECT id, time_limit_ms, memory_limit_mb, is_public, total_submissions, accepted_submissions
		FROM problems WHERE id = ? LIMIT 1
	`
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, problemID)
	problem := &model.Problem{}
	if err := row.Scan(
		&problem.ID,
		&problem.TimeLimitMs,
		&problem.MemoryLimitMB,
		&problem.IsPublic,
		&problem.TotalSubmissions,
		&problem.AcceptedSubmissions,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.New(appErr.ProblemNotFound).WithMessage("problem not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get problem failed")
	}
	return problem, nil
}

func (r *MySQLProblemRepository) GetOverride(ctx context.Context, tx db.Transaction, problemID, languageID int64) (*model.ProblemLanguage, error) {
	if problemID <= 0 || languageID <= 0 {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	query := `
		SELECT problem_id, language_id, time_limit_ms, memory_limit_mb, template
		FROM problem_languages
		WHERE problem_id = ? AND language_id = ?
		LIMIT 1
	`
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, problemID, languageID)
	override := &model.ProblemLanguage{}
	if err := row.Scan(
		&override.ProblemID,
		&override.LanguageID,
		&override.TimeLimitMs,
		&override.MemoryLimitMB,
		&override.Template,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get problem override failed")
	}
	return override, nil
}

func (r *MySQLProblemRepository) IncrementCounters(ctx context.Context, tx db.Transaction, problemID int64, accepted bool) error {
	query := `
		UPDATE problems
		SET total_submissions = total_submissions + 1,
		    accepted_submissions = accepted_submissions + ?
		WHERE id = ?
	`
	acceptedDelta := 0
	if accepted {
		acceptedDelta = 1
	}
	res, err := db.GetQuerier(r.db, tx).Exec(ctx, query, acceptedDelta, problemID)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "increment problem counters failed")
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return appErr.New(appErr.ProblemNotFound).WithMessage("problem not found")
	}
	return nil
}
