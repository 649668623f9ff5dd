package model

import "testing"

func TestIsTerminal(t *testing.T) {
	t.Parallel()
	terminals := []SubmissionStatus{
		StatusAccepted, StatusWrongAnswer, StatusTimeLimitExceeded,
		StatusMemoryLimitExceeded, StatusOutputTooLarge, StatusRuntimeError,
		StatusCompileError, StatusInternalError, StatusCancelled,
	}
	for _, s := range terminals {
		if !s.IsTerminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []SubmissionStatus{StatusPending, StatusCompiling, StatusRunning} {
		if s.IsTerminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestVerdictSubmissionStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		verdict Verdict
		want    SubmissionStatus
	}{
		{VerdictAccepted, StatusAccepted},
		{VerdictWrongAnswer, StatusWrongAnswer},
		{VerdictTimeLimitExceeded, StatusTimeLimitExceeded},
		{VerdictMemoryLimitExceeded, StatusMemoryLimitExceeded},
		{VerdictOutputTooLarge, StatusOutputTooLarge},
		{VerdictRuntimeError, StatusRuntimeError},
		{Verdict("garbage"), StatusInternalError},
	}
	for _, tt := range tests {
		if got := tt.verdict.SubmissionStatus(); got != tt.want {
			t.Fatalf("verdict %s: expected %s, got %s", tt.verdict, tt.want, got)
		}
	}
}

func TestValidTransition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		from SubmissionStatus
		to   SubmissionStatus
		want bool
	}{
		{name: "pending-to-compiling", from: StatusPending, to: StatusCompiling, want: true},
		{name: "pending-to-cancelled", from: StatusPending, to: StatusCancelled, want: true},
		{name: "pending-to-running-skips-compile", from: StatusPending, to: StatusRunning, want: false},
		{name: "compiling-to-running", from: StatusCompiling, to: StatusRunning, want: true},
		{name: "compiling-to-compile-error", from: StatusCompiling, to: StatusCompileError, want: true},
		{name: "compiling-to-accepted", from: StatusCompiling, to: StatusAccepted, want: false},
		{name: "running-to-accepted", from: StatusRunning, to: StatusAccepted, want: true},
		{name: "running-to-cancelled", from: StatusRunning, to: StatusCancelled, want: true},
		{name: "running-to-pending", from: StatusRunning, to: StatusPending, want: false},
		{name: "terminal-to-pending-rejudge", from: StatusAccepted, to: StatusPending, want: true},
		{name: "terminal-to-terminal", from: StatusAccepted, to: StatusWrongAnswer, want: false},
		{name: "cancelled-to-pending-rejudge", from: StatusCancelled, to: StatusPending, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ValidTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
			}
		})
	}
}
