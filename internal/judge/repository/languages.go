package repository

import (
	"context"

	"arbiter/internal/common/db"
	"arbiter/internal/judge/model"
	appErr "arbiter/pkg/errors"
)

// LanguageRepository reads language configuration.
type LanguageRepository interface {
	GetByID(ctx context.Context, tx db.Transaction, languageID int64) (*model.Language, error)
}

// MySQLLanguageRepository implements LanguageRepository with MySQL.
type MySQLLanguageRepository struct {
	db db.Database
}

func NewLanguageRepository(database db.Database) LanguageRepository {
	return &MySQLLanguageRepository{db: database}
}

func (r *MySQLLanguageRepository) GetByID(ctx context.Context, tx db.Transaction, languageID int64) (*model.Language, error) {
	if languageID <= 0 {
		return nil, appErr.ValidationError("language_id", "required")
	}
	query := `
		SELECT id, name, source_ext, binary_ext, compile_command, run_command,
		       time_multiplier, mem_multiplier, template, is_active
		FROM languages WHERE id = ? LIMIT 1
	`
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, languageID)
	lang := &model.Language{}
	if err := row.Scan(
		&lang.ID,
		&lang.Name,
		&lang.SourceExt,
		&lang.BinaryExt,
		&lang.CompileCommand,
		&lang.RunCommand,
		&lang.TimeMultiplier,
		&lang.MemMultiplier,
		&lang.Template,
		&lang.IsActive,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.New(appErr.LanguageNotSupported).WithMessage("language not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get language failed")
	}
	return lang, nil
}
