package repository

import (
	"context"

	"arbiter/internal/judge/model"
	appErr "arbiter/pkg/errors"
)

// SnapshotLoader assembles the flattened judging spec for one submission:
// limits resolved, language profile built, testcase contents materialized.
// The snapshot is taken once at claim time and never refreshed mid-run.
type SnapshotLoader struct {
	submissions SubmissionRepository
	problems    ProblemRepository
	languages   LanguageRepository
	testcases   TestcaseRepository
	contents    *ContentStore
}

// NewSnapshotLoader creates a snapshot loader. The content store may be nil
// when all testcases are stored inline.
func NewSnapshotLoader(
	submissions SubmissionRepository,
	problems ProblemRepository,
	languages LanguageRepository,
	testcases TestcaseRepository,
	contents *ContentStore,
) *SnapshotLoader {
	return &SnapshotLoader{
		submissions: submissions,
		problems:    problems,
		languages:   languages,
		testcases:   testcases,
		contents:    contents,
	}
}

// Load builds the judging spec for one submission.
func (l *SnapshotLoader) Load(ctx context.Context, submissionID string) (*model.JudgingSpec, error) {
	submission, err := l.submissions.GetByID(ctx, nil, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.DeletedAt.Valid {
		return nil, appErr.New(appErr.SubmissionDeleted).WithMessage("submission has been deleted")
	}

	lang, err := l.languages.GetByID(ctx, nil, submission.LanguageID)
	if err != nil {
		return nil, err
	}
	if !lang.IsActive {
		return nil, appErr.New(appErr.LanguageNotSupported).WithMessage("language is disabled")
	}

	problem, err := l.problems.GetByID(ctx, nil, submission.ProblemID)
	if err != nil {
		return nil, err
	}
	override, err := l.problems.GetOverride(ctx, nil, submission.ProblemID, submission.LanguageID)
	if err != nil {
		return nil, err
	}

	testcases, err := l.testcases.ListByProblem(ctx, nil, submission.ProblemID)
	if err != nil {
		return nil, err
	}
	if err := l.materialize(ctx, testcases); err != nil {
		return nil, err
	}

	totalPoints := 0
	for _, tc := range testcases {
		totalPoints += tc.Points
	}

	judgingSpec := &model.JudgingSpec{
		Submission: submission,
		Profile:    buildProfile(lang),
		Limits:     model.EffectiveLimits(problem, override, lang),
		Testcases:  testcases,
		TotalPoint: totalPoints,
	}
	if err := judgingSpec.Validate(); err != nil {
		return nil, err
	}
	return judgingSpec, nil
}

// materialize resolves offloaded testcase contents through the content
// store.
func (l *SnapshotLoader) materialize(ctx context.Context, testcases []*model.Testcase) error {
	for _, tc := range testcases {
		if tc.InputKey.Valid && tc.InputKey.String != "" && len(tc.Input) == 0 {
			if l.contents == nil {
				return appErr.New(appErr.StorageError).WithMessage("content store is not configured")
			}
			data, err := l.contents.Fetch(ctx, tc.InputKey.String, checksumOf(tc))
			if err != nil {
				return err
			}
			tc.Input = data
		}
		if tc.OutputKey.Valid && tc.OutputKey.String != "" && len(tc.Expected) == 0 {
			if l.contents == nil {
				return appErr.New(appErr.StorageError).WithMessage("content store is not configured")
			}
			data, err := l.contents.Fetch(ctx, tc.OutputKey.String, "")
			if err != nil {
				return err
			}
			tc.Expected = data
		}
	}
	return nil
}

func checksumOf(tc *model.Testcase) string {
	if tc.Checksum.Valid {
		return tc.Checksum.String
	}
	return ""
}

func buildProfile(lang *model.Language) model.LanguageProfile {
	sourceName := "Main"
	if lang.SourceExt != "" {
		sourceName += lang.SourceExt
	}
	binaryName := "main"
	if lang.BinaryExt.Valid && lang.BinaryExt.String != "" {
		binaryName += lang.BinaryExt.String
	}
	return model.LanguageProfile{
		LanguageID:      lang.ID,
		Name:            lang.Name,
		SourceFileName:  sourceName,
		BinaryFileName:  binaryName,
		HasCompileStep:  lang.CompileCommand.Valid && lang.CompileCommand.String != "",
		CompileTemplate: lang.CompileCommand.String,
		RunTemplate:     lang.RunCommand,
	}
}
