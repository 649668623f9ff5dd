package sandbox

import (
	"context"
	"path/filepath"

	"arbiter/internal/judge/limiter"
	"arbiter/internal/judge/model"
	appErr "arbiter/pkg/errors"
)

// CompileRequest describes one compilation task.
type CompileRequest struct {
	SubmissionID string
	Profile      model.LanguageProfile
	Workspace    *Workspace
}

// ExecuteRequest describes one execution task against one testcase input.
type ExecuteRequest struct {
	SubmissionID string
	TestID       string
	Profile      model.LanguageProfile
	Workspace    *Workspace
	Input        []byte
	Limits       model.ResourceLimit
}

// Runner drives the compile and run workflows through the resource limiter.
type Runner interface {
	// Compile builds the submission's artifact into the workspace box
	// directory. Languages without a compile step succeed immediately.
	Compile(ctx context.Context, req CompileRequest) (CompileResult, error)

	// Execute runs the compiled artifact against one input under the given
	// ceilings. The error is non-nil only when the sandbox itself failed.
	Execute(ctx context.Context, req ExecuteRequest) (limiter.Measurement, error)

	// Kill terminates all in-flight runs for one submission.
	Kill(ctx context.Context, submissionID string) error
}

// DefaultRunner implements Runner on top of a limiter.Limiter.
type DefaultRunner struct {
	cfg Config
	lim limiter.Limiter
}

// NewRunner creates a runner backed by the given limiter.
func NewRunner(cfg Config, lim limiter.Limiter) *DefaultRunner {
	return &DefaultRunner{cfg: cfg, lim: lim}
}

func (r *DefaultRunner) Compile(ctx context.Context, req CompileRequest) (CompileResult, error) {
	if req.SubmissionID == "" {
		return CompileResult{}, appErr.ValidationError("submission_id", "required")
	}
	if req.Workspace == nil {
		return CompileResult{}, appErr.ValidationError("workspace", "required")
	}
	if !req.Profile.HasCompile() {
		return CompileResult{OK: true}, nil
	}

	src := filepath.Join(containerWorkDir, req.Profile.SourceFileName)
	bin := filepath.Join(containerWorkDir, binaryName(req.Profile))
	cmd, err := buildCommand(req.Profile.CompileTemplate, src, bin)
	if err != nil {
		return CompileResult{}, err
	}

	runSpec := limiter.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       "compile",
		WorkDir:      containerWorkDir,
		Cmd:          cmd,
		StderrPath:   filepath.Join(containerWorkDir, compileLogName),
		Isolation:    r.cfg.Profiles.Compile,
		Limits:       r.cfg.CompileLimits,
		BindMounts: []limiter.MountSpec{{
			Source:   req.Workspace.BoxDir,
			Target:   containerWorkDir,
			ReadOnly: false,
		}},
	}

	m, err := r.lim.Run(ctx, runSpec)
	if err != nil {
		return CompileResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "compile sandbox failed")
	}
	return CompileResult{
		OK:       m.ExitCode == 0 && !m.TimedOut,
		ExitCode: m.ExitCode,
		TimeMs:   m.CPUTimeMs,
		MemoryKB: m.MemoryKB,
		Log:      m.Stderr,
	}, nil
}

func (r *DefaultRunner) Execute(ctx context.Context, req ExecuteRequest) (limiter.Measurement, error) {
	if req.SubmissionID == "" {
		return limiter.Measurement{}, appErr.ValidationError("submission_id", "required")
	}
	if req.TestID == "" {
		return limiter.Measurement{}, appErr.ValidationError("test_id", "required")
	}
	if req.Workspace == nil {
		return limiter.Measurement{}, appErr.ValidationError("workspace", "required")
	}

	runDir, cleanup, err := req.Workspace.NewRunDir(req.TestID, req.Input)
	if err != nil {
		return limiter.Measurement{}, err
	}
	defer cleanup()

	src := filepath.Join(containerBoxDir, req.Profile.SourceFileName)
	bin := filepath.Join(containerBoxDir, binaryName(req.Profile))
	cmd, err := buildCommand(req.Profile.RunTemplate, src, bin)
	if err != nil {
		return limiter.Measurement{}, err
	}

	runSpec := limiter.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       req.TestID,
		WorkDir:      containerWorkDir,
		Cmd:          cmd,
		StdinPath:    filepath.Join(containerWorkDir, inputFileName),
		StdoutPath:   filepath.Join(containerWorkDir, outputFileName),
		StderrPath:   filepath.Join(containerWorkDir, runtimeLogName),
		Isolation:    r.cfg.Profiles.Run,
		Limits:       req.Limits,
		BindMounts: []limiter.MountSpec{
			{Source: runDir, Target: containerWorkDir, ReadOnly: false},
			{Source: req.Workspace.BoxDir, Target: containerBoxDir, ReadOnly: true},
		},
	}

	m, err := r.lim.Run(ctx, runSpec)
	if err != nil {
		return limiter.Measurement{}, appErr.Wrapf(err, appErr.JudgeSystemError, "run sandbox failed")
	}
	return m, nil
}

func (r *DefaultRunner) Kill(ctx context.Context, submissionID string) error {
	return r.lim.KillSubmission(ctx, submissionID)
}

func binaryName(profile model.LanguageProfile) string {
	if profile.BinaryFileName != "" {
		return profile.BinaryFileName
	}
	return binaryFallback
}
