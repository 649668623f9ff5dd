package executor

import (
	"context"
	"testing"

	"arbiter/internal/judge/limiter"
	"arbiter/internal/judge/model"
	"arbiter/internal/judge/sandbox"
	appErr "arbiter/pkg/errors"
)

type fakeRunner struct {
	measurement limiter.Measurement
	err         error
	lastReq     sandbox.ExecuteRequest
}

func (f *fakeRunner) Compile(ctx context.Context, req sandbox.CompileRequest) (sandbox.CompileResult, error) {
	return sandbox.CompileResult{OK: true}, nil
}

func (f *fakeRunner) Execute(ctx context.Context, req sandbox.ExecuteRequest) (limiter.Measurement, error) {
	f.lastReq = req
	return f.measurement, f.err
}

func (f *fakeRunner) Kill(ctx context.Context, submissionID string) error { return nil }

func testSpec() *model.JudgingSpec {
	return &model.JudgingSpec{
		Submission: &model.Submission{ID: "sub-1", SourceCode: "x"},
		Profile:    model.LanguageProfile{RunTemplate: "./{bin}"},
		Limits: model.ResourceLimit{
			CPUTimeMs:  1000,
			WallTimeMs: 3000,
			MemoryMB:   256,
			OutputMB:   16,
			PIDs:       32,
		},
	}
}

func testcase(id int64, expected string, points int) *model.Testcase {
	return &model.Testcase{ID: id, ProblemID: 1, Input: []byte("in"), Expected: []byte(expected), Points: points}
}

func TestJudgeOneVerdictPrecedence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		measurement limiter.Measurement
		want        model.Verdict
	}{
		{
			name: "timeout-beats-matching-output",
			measurement: limiter.Measurement{
				TimedOut: true,
				ExitCode: -1,
				Stdout:   "42\n",
			},
			want: model.VerdictTimeLimitExceeded,
		},
		{
			name: "cpu-over-limit-without-wall-timeout",
			measurement: limiter.Measurement{
				ExitCode:  0,
				CPUTimeMs: 1500,
				Stdout:    "42\n",
			},
			want: model.VerdictTimeLimitExceeded,
		},
		{
			name: "oom-beats-runtime-error",
			measurement: limiter.Measurement{
				OomKilled: true,
				ExitCode:  137,
				Stdout:    "",
			},
			want: model.VerdictMemoryLimitExceeded,
		},
		{
			name: "memory-over-limit",
			measurement: limiter.Measurement{
				ExitCode: 0,
				MemoryKB: 300 * 1024,
				Stdout:   "42\n",
			},
			want: model.VerdictMemoryLimitExceeded,
		},
		{
			name: "output-limit-beats-comparison",
			measurement: limiter.Measurement{
				ExitCode:    0,
				OutputBytes: 17 * 1024 * 1024,
				Stdout:      "42\n",
			},
			want: model.VerdictOutputTooLarge,
		},
		{
			name: "runtime-error-beats-comparison",
			measurement: limiter.Measurement{
				ExitCode: 1,
				Stdout:   "42\n",
			},
			want: model.VerdictRuntimeError,
		},
		{
			name: "wrong-answer",
			measurement: limiter.Measurement{
				ExitCode: 0,
				Stdout:   "41\n",
			},
			want: model.VerdictWrongAnswer,
		},
		{
			name: "accepted",
			measurement: limiter.Measurement{
				ExitCode: 0,
				Stdout:   "42\n",
			},
			want: model.VerdictAccepted,
		},
		{
			name: "accepted-trailing-whitespace",
			measurement: limiter.Measurement{
				ExitCode: 0,
				Stdout:   "42 \n",
			},
			want: model.VerdictAccepted,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := &fakeRunner{measurement: tt.measurement}
			exec := New(DefaultConfig(), runner)
			res, err := exec.JudgeOne(context.Background(), testSpec(), nil, testcase(7, "42\n", 10))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Verdict != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, res.Verdict)
			}
			if res.TestcaseID != 7 {
				t.Fatalf("expected testcase id 7, got %d", res.TestcaseID)
			}
		})
	}
}

func TestJudgeOnePointsOnlyOnAccepted(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{measurement: limiter.Measurement{ExitCode: 0, Stdout: "42\n"}}
	exec := New(DefaultConfig(), runner)

	res, err := exec.JudgeOne(context.Background(), testSpec(), nil, testcase(1, "42\n", 25))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Points != 25 {
		t.Fatalf("expected 25 points, got %d", res.Points)
	}

	runner.measurement.Stdout = "41\n"
	res, err = exec.JudgeOne(context.Background(), testSpec(), nil, testcase(1, "42\n", 25))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Points != 0 {
		t.Fatalf("expected 0 points on wrong answer, got %d", res.Points)
	}
}

func TestJudgeOneStdoutTruncation(t *testing.T) {
	t.Parallel()
	big := make([]byte, 100)
	for i := range big {
		big[i] = 'a'
	}
	runner := &fakeRunner{measurement: limiter.Measurement{
		ExitCode:    0,
		Stdout:      string(big),
		OutputBytes: int64(len(big)),
	}}
	exec := New(Config{MaxStdoutBytes: 10}, runner)

	res, err := exec.JudgeOne(context.Background(), testSpec(), nil, testcase(1, "whatever", 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Stdout) != 10 {
		t.Fatalf("expected 10 stored bytes, got %d", len(res.Stdout))
	}
	if !res.Truncated {
		t.Fatal("expected truncated flag")
	}
	if res.Verdict != model.VerdictOutputTooLarge {
		t.Fatalf("expected output_too_large for oversized capture, got %s", res.Verdict)
	}
}

func TestJudgeOnePropagatesInfraError(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{err: appErr.New(appErr.JudgeSystemError)}
	exec := New(DefaultConfig(), runner)
	if _, err := exec.JudgeOne(context.Background(), testSpec(), nil, testcase(1, "42\n", 0)); err == nil {
		t.Fatal("expected infrastructure error to propagate")
	}
}

func TestJudgeOnePassesLimitsThrough(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{measurement: limiter.Measurement{ExitCode: 0, Stdout: "42\n"}}
	exec := New(DefaultConfig(), runner)
	spec := testSpec()
	if _, err := exec.JudgeOne(context.Background(), spec, nil, testcase(3, "42\n", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.lastReq.Limits != spec.Limits {
		t.Fatalf("expected limits passed through, got %+v", runner.lastReq.Limits)
	}
	if runner.lastReq.TestID != "tc-3" {
		t.Fatalf("expected test id tc-3, got %s", runner.lastReq.TestID)
	}
}
