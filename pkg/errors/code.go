package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Problem & Testcase errors
// 13000-13999: Submission & Judge errors

const (
	// Success indicates no error
	Success ErrorCode = 0

	// ========== System & Common Errors (10000-10999) ==========

	InternalServerError ErrorCode = 10000
	InvalidParams       ErrorCode = 10001
	NotFound            ErrorCode = 10002
	Timeout             ErrorCode = 10003
	ServiceUnavailable  ErrorCode = 10004

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	RecordNotFound    ErrorCode = 10101
	TransactionFailed ErrorCode = 10102

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	LockFailed ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300
	InvalidFormat    ErrorCode = 10301

	// Storage errors (10400-10499)
	StorageError     ErrorCode = 10400
	ObjectNotFound   ErrorCode = 10401
	ChecksumMismatch ErrorCode = 10402

	// ========== Problem & Testcase Errors (12000-12999) ==========

	ProblemNotFound  ErrorCode = 12000
	TestcaseNotFound ErrorCode = 12100
	TestcaseInvalid  ErrorCode = 12101

	// ========== Submission & Judge Errors (13000-13999) ==========

	SubmissionNotFound   ErrorCode = 13000
	SubmissionDeleted    ErrorCode = 13001
	LanguageNotSupported ErrorCode = 13002

	// Judge (13100-13199)
	JudgeQueueFull      ErrorCode = 13100
	JudgeSystemError    ErrorCode = 13101
	CompilationError    ErrorCode = 13102
	RuntimeError        ErrorCode = 13103
	TimeLimitExceeded   ErrorCode = 13104
	MemoryLimitExceeded ErrorCode = 13105
	OutputLimitExceeded ErrorCode = 13106
	LeaseConflict       ErrorCode = 13107
	JudgeCancelled      ErrorCode = 13108
)

var codeMessages = map[ErrorCode]string{
	Success:             "success",
	InternalServerError: "internal server error",
	InvalidParams:       "invalid parameters",
	NotFound:            "resource not found",
	Timeout:             "operation timed out",
	ServiceUnavailable:  "service unavailable",

	DatabaseError:     "database error",
	RecordNotFound:    "record not found",
	TransactionFailed: "transaction failed",

	CacheError: "cache error",
	LockFailed: "lock acquisition failed",

	ValidationFailed: "validation failed",
	InvalidFormat:    "invalid format",

	StorageError:     "object storage error",
	ObjectNotFound:   "object not found",
	ChecksumMismatch: "object checksum mismatch",

	ProblemNotFound:  "problem not found",
	TestcaseNotFound: "testcase not found",
	TestcaseInvalid:  "testcase is invalid",

	SubmissionNotFound:   "submission not found",
	SubmissionDeleted:    "submission has been deleted",
	LanguageNotSupported: "language is not supported",

	JudgeQueueFull:      "judge queue is full",
	JudgeSystemError:    "judge system error",
	CompilationError:    "compilation error",
	RuntimeError:        "runtime error",
	TimeLimitExceeded:   "time limit exceeded",
	MemoryLimitExceeded: "memory limit exceeded",
	OutputLimitExceeded: "output limit exceeded",
	LeaseConflict:       "submission is already being judged",
	JudgeCancelled:      "judging was cancelled",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "unknown error"
}

// HTTPStatus maps the error code to an HTTP status for API responses
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case Success:
		return http.StatusOK
	case InvalidParams, ValidationFailed, InvalidFormat:
		return http.StatusBadRequest
	case NotFound, RecordNotFound, ObjectNotFound, ProblemNotFound,
		TestcaseNotFound, SubmissionNotFound, SubmissionDeleted:
		return http.StatusNotFound
	case LanguageNotSupported, TestcaseInvalid, ChecksumMismatch:
		return http.StatusUnprocessableEntity
	case LeaseConflict:
		return http.StatusConflict
	case JudgeQueueFull:
		return http.StatusTooManyRequests
	case Timeout:
		return http.StatusGatewayTimeout
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether the code represents a transient
// infrastructure fault worth retrying.
func (c ErrorCode) IsRetryable() bool {
	switch c {
	case Timeout, ServiceUnavailable, DatabaseError, TransactionFailed,
		CacheError, LockFailed, StorageError, JudgeQueueFull, JudgeSystemError:
		return true
	}
	return false
}
