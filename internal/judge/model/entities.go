package model

import (
	"database/sql"
	"time"
)

// Language describes how source code in one language is compiled and run.
// Immutable during a judging run; looked up once per submission.
type Language struct {
	ID             int64          `db:"id"`
	Name           string         `db:"name"`
	SourceExt      string         `db:"source_ext"`
	BinaryExt      sql.NullString `db:"binary_ext"`
	CompileCommand sql.NullString `db:"compile_command"`
	RunCommand     string         `db:"run_command"`
	TimeMultiplier float64        `db:"time_multiplier"`
	MemMultiplier  float64        `db:"mem_multiplier"`
	Template       sql.NullString `db:"template"`
	IsActive       bool           `db:"is_active"`
}

// Problem holds default limits and running submission totals.
type Problem struct {
	ID                  int64 `db:"id"`
	TimeLimitMs         int64 `db:"time_limit_ms"`
	MemoryLimitMB       int64 `db:"memory_limit_mb"`
	IsPublic            bool  `db:"is_public"`
	TotalSubmissions    int64 `db:"total_submissions"`
	AcceptedSubmissions int64 `db:"accepted_submissions"`
}

// ProblemLanguage overrides limits and template for one (problem, language)
// pair. Zero-valued limits fall back to the problem defaults.
type ProblemLanguage struct {
	ProblemID     int64          `db:"problem_id"`
	LanguageID    int64          `db:"language_id"`
	TimeLimitMs   int64          `db:"time_limit_ms"`
	MemoryLimitMB int64          `db:"memory_limit_mb"`
	Template      sql.NullString `db:"template"`
}

// Testcase belongs to exactly one problem. Input and expected output either
// live inline or are offloaded to the content store when large; the object
// key and checksum point at the stored blob.
type Testcase struct {
	ID        int64          `db:"id"`
	ProblemID int64          `db:"problem_id"`
	Input     []byte         `db:"input"`
	Expected  []byte         `db:"expected_output"`
	InputKey  sql.NullString `db:"input_key"`
	OutputKey sql.NullString `db:"output_key"`
	Checksum  sql.NullString `db:"checksum"`
	IsSample  bool           `db:"is_sample"`
	Points    int            `db:"points"`
	DeletedAt sql.NullTime   `db:"deleted_at"`
}

// Submission is one judging request for one user's source code.
type Submission struct {
	ID         string           `db:"id"`
	UserID     int64            `db:"user_id"`
	ProblemID  int64            `db:"problem_id"`
	LanguageID int64            `db:"language_id"`
	SourceCode string           `db:"source_code"`
	Status     SubmissionStatus `db:"status"`

	// Aggregates over the most recent judging attempt.
	TimeExecutionMs int64 `db:"time_execution_ms"`
	MemoryUsageKB   int64 `db:"memory_usage_kb"`
	Score           int   `db:"score"`

	CreatedAt time.Time    `db:"created_at"`
	JudgedAt  sql.NullTime `db:"judged_at"`
	DeletedAt sql.NullTime `db:"deleted_at"`
}

// SubmissionTestcase is one testcase outcome within one judging attempt.
type SubmissionTestcase struct {
	ID           int64   `db:"id"`
	SubmissionID string  `db:"submission_id"`
	TestcaseID   int64   `db:"testcase_id"`
	Status       Verdict `db:"status"`
	Stdout       []byte  `db:"stdout"`
	Truncated    bool    `db:"truncated"`
	TimeMs       int64   `db:"time_ms"`
	MemoryKB     int64   `db:"memory_kb"`
}
