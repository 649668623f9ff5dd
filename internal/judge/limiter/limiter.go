// Package limiter wraps child processes with enforced wall-clock, CPU-time
// and memory ceilings and reports exact measured usage.
package limiter

import (
	"context"

	"arbiter/internal/judge/model"
)

// Violation identifies which ceiling a run tripped, if any.
type Violation string

const (
	ViolationNone   Violation = ""
	ViolationTime   Violation = "time"
	ViolationMemory Violation = "memory"
	ViolationOutput Violation = "output"
)

// MountSpec describes a bind mount inside the sandbox.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// IsolationProfile describes namespace and seccomp settings.
type IsolationProfile struct {
	RootFS         string
	SeccompProfile string
	DisableNetwork bool
}

// RunSpec is the unified execution specification for one measured run.
type RunSpec struct {
	SubmissionID string
	TestID       string
	WorkDir      string
	Cmd          []string
	Env          []string
	StdinPath    string
	StdoutPath   string
	StderrPath   string
	BindMounts   []MountSpec
	Isolation    IsolationProfile
	Limits       model.ResourceLimit
}

// Measurement captures raw execution data. Times and memory are measured
// values, never limit echoes.
type Measurement struct {
	ExitCode    int
	CPUTimeMs   int64
	WallTimeMs  int64
	MemoryKB    int64
	OutputBytes int64
	Stdout      string
	Stderr      string
	TimedOut    bool
	OomKilled   bool
}

// Violation classifies the measurement against the given ceilings. Wall and
// CPU ceilings are enforced independently and the first to trip wins; a
// timed-out run is never classified by its memory or output.
func (m Measurement) Violation(limits model.ResourceLimit) Violation {
	if m.TimedOut {
		return ViolationTime
	}
	if limits.CPUTimeMs > 0 && m.CPUTimeMs > limits.CPUTimeMs {
		return ViolationTime
	}
	if m.OomKilled {
		return ViolationMemory
	}
	if limits.MemoryMB > 0 && m.MemoryKB > limits.MemoryMB*1024 {
		return ViolationMemory
	}
	if limits.OutputMB > 0 && m.OutputBytes > limits.OutputMB*1024*1024 {
		return ViolationOutput
	}
	return ViolationNone
}

// Limiter executes a RunSpec under enforced resource ceilings.
type Limiter interface {
	// Run executes the spec and returns the measurement. An error means the
	// run could not be performed at all; limit violations are reported
	// through the measurement, not the error.
	Run(ctx context.Context, runSpec RunSpec) (Measurement, error)

	// KillSubmission force-terminates every process group still running for
	// one submission.
	KillSubmission(ctx context.Context, submissionID string) error
}

// Config controls limiter behavior.
type Config struct {
	CgroupRoot           string `yaml:"cgroupRoot"`
	SeccompDir           string `yaml:"seccompDir"`
	HelperPath           string `yaml:"helperPath"`
	StdoutStderrMaxBytes int64  `yaml:"stdoutStderrMaxBytes"`
	EnableSeccomp        bool   `yaml:"enableSeccomp"`
	EnableCgroup         bool   `yaml:"enableCgroup"`
	EnableNamespaces     bool   `yaml:"enableNamespaces"`
}
