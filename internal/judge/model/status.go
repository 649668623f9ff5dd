package model

// SubmissionStatus is the lifecycle state of one submission.
type SubmissionStatus string

const (
	StatusPending   SubmissionStatus = "pending"
	StatusCompiling SubmissionStatus = "compiling"
	StatusRunning   SubmissionStatus = "running"

	StatusAccepted            SubmissionStatus = "accepted"
	StatusWrongAnswer         SubmissionStatus = "wrong_answer"
	StatusTimeLimitExceeded   SubmissionStatus = "time_limit_exceeded"
	StatusMemoryLimitExceeded SubmissionStatus = "memory_limit_exceeded"
	StatusOutputTooLarge      SubmissionStatus = "output_too_large"
	StatusRuntimeError        SubmissionStatus = "runtime_error"
	StatusCompileError        SubmissionStatus = "compile_error"
	StatusInternalError       SubmissionStatus = "internal_error"
	StatusCancelled           SubmissionStatus = "cancelled"
)

// IsTerminal reports whether no further processing occurs for this attempt.
func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case StatusAccepted, StatusWrongAnswer, StatusTimeLimitExceeded,
		StatusMemoryLimitExceeded, StatusOutputTooLarge, StatusRuntimeError,
		StatusCompileError, StatusInternalError, StatusCancelled:
		return true
	}
	return false
}

// Verdict is the outcome classification of one testcase run.
type Verdict string

const (
	VerdictAccepted            Verdict = "accepted"
	VerdictWrongAnswer         Verdict = "wrong_answer"
	VerdictTimeLimitExceeded   Verdict = "time_limit_exceeded"
	VerdictMemoryLimitExceeded Verdict = "memory_limit_exceeded"
	VerdictOutputTooLarge      Verdict = "output_too_large"
	VerdictRuntimeError        Verdict = "runtime_error"
)

// SubmissionStatus maps a per-testcase verdict onto the submission state it
// implies when that testcase is the first failure.
func (v Verdict) SubmissionStatus() SubmissionStatus {
	switch v {
	case VerdictAccepted:
		return StatusAccepted
	case VerdictWrongAnswer:
		return StatusWrongAnswer
	case VerdictTimeLimitExceeded:
		return StatusTimeLimitExceeded
	case VerdictMemoryLimitExceeded:
		return StatusMemoryLimitExceeded
	case VerdictOutputTooLarge:
		return StatusOutputTooLarge
	case VerdictRuntimeError:
		return StatusRuntimeError
	}
	return StatusInternalError
}

// ValidTransition reports whether a submission may move from one state to
// another. Terminal states accept no further transitions except a fresh
// rejudge back to pending.
func ValidTransition(from, to SubmissionStatus) bool {
	if from.IsTerminal() {
		return to == StatusPending
	}
	switch from {
	case StatusPending:
		return to == StatusCompiling || to == StatusCancelled || to == StatusInternalError
	case StatusCompiling:
		return to == StatusRunning || to == StatusCompileError ||
			to == StatusCancelled || to == StatusInternalError
	case StatusRunning:
		return to.IsTerminal()
	}
	return false
}
