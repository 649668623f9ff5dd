// Package executor judges one submission+testcase pair: it drives the
// sandbox with the right input, applies the comparator and yields a
// per-testcase verdict record.
package executor

import (
	"context"
	"strconv"

	"arbiter/internal/judge/comparator"
	"arbiter/internal/judge/limiter"
	"arbiter/internal/judge/model"
	"arbiter/internal/judge/sandbox"
)

// Config controls output capture and comparison.
type Config struct {
	// MaxStdoutBytes is the ceiling on captured stdout. Output beyond it is
	// truncated before comparison and the testcase is classified
	// OutputTooLarge rather than WrongAnswer.
	MaxStdoutBytes int64             `yaml:"maxStdoutBytes"`
	Policy         comparator.Policy `yaml:"policy"`
}

// DefaultConfig returns the conventional capture and comparison settings.
func DefaultConfig() Config {
	return Config{
		MaxStdoutBytes: 64 * 1024,
		Policy:         comparator.DefaultPolicy(),
	}
}

// Result is one testcase outcome before persistence.
type Result struct {
	TestcaseID int64
	Verdict    model.Verdict
	TimeMs     int64
	MemoryKB   int64
	Stdout     []byte
	Truncated  bool
	Points     int
}

// Executor runs testcases through the sandbox runner. Instances are
// stateless; concurrent calls share nothing but the read-only workspace.
type Executor struct {
	cfg    Config
	runner sandbox.Runner
}

func New(cfg Config, runner sandbox.Runner) *Executor {
	if cfg.MaxStdoutBytes <= 0 {
		cfg.MaxStdoutBytes = DefaultConfig().MaxStdoutBytes
	}
	return &Executor{cfg: cfg, runner: runner}
}

// JudgeOne executes one testcase and classifies the outcome. The error is
// non-nil only for infrastructure faults that produced no measurement at
// all; every code-caused condition is folded into the verdict.
func (e *Executor) JudgeOne(ctx context.Context, spec *model.JudgingSpec, ws *sandbox.Workspace, tc *model.Testcase) (Result, error) {
	m, err := e.runner.Execute(ctx, sandbox.ExecuteRequest{
		SubmissionID: spec.Submission.ID,
		TestID:       testID(tc),
		Profile:      spec.Profile,
		Workspace:    ws,
		Input:        tc.Input,
		Limits:       spec.Limits,
	})
	if err != nil {
		return Result{TestcaseID: tc.ID}, err
	}

	res := Result{
		TestcaseID: tc.ID,
		TimeMs:     m.CPUTimeMs,
		MemoryKB:   m.MemoryKB,
		Stdout:     truncate([]byte(m.Stdout), e.cfg.MaxStdoutBytes),
	}
	res.Truncated = m.OutputBytes > int64(len(res.Stdout))
	res.Verdict = e.classify(m, spec.Limits, tc)
	if res.Verdict == model.VerdictAccepted {
		res.Points = tc.Points
	}
	return res, nil
}

// classify applies the verdict precedence: a limit violation always wins
// over output comparison, a timed-out process's partial output is never
// compared.
func (e *Executor) classify(m limiter.Measurement, limits model.ResourceLimit, tc *model.Testcase) model.Verdict {
	switch m.Violation(limits) {
	case limiter.ViolationTime:
		return model.VerdictTimeLimitExceeded
	case limiter.ViolationMemory:
		return model.VerdictMemoryLimitExceeded
	case limiter.ViolationOutput:
		return model.VerdictOutputTooLarge
	}
	if m.ExitCode != 0 {
		return model.VerdictRuntimeError
	}
	if m.OutputBytes > e.cfg.MaxStdoutBytes {
		return model.VerdictOutputTooLarge
	}
	ok, err := comparator.Compare(m.Stdout, string(tc.Expected), e.cfg.Policy)
	if err != nil || !ok {
		return model.VerdictWrongAnswer
	}
	return model.VerdictAccepted
}

func truncate(b []byte, max int64) []byte {
	if max > 0 && int64(len(b)) > max {
		return b[:max]
	}
	return b
}

func testID(tc *model.Testcase) string {
	return "tc-" + strconv.FormatInt(tc.ID, 10)
}
