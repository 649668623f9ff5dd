// Package sandbox orchestrates compile and run steps for submitted code
// inside an isolated execution context.
package sandbox

import (
	"arbiter/internal/judge/limiter"
	"arbiter/internal/judge/model"
)

const (
	// containerWorkDir is the writable per-run directory inside the sandbox.
	containerWorkDir = "/work"
	// containerBoxDir holds the shared read-only compiled artifact.
	containerBoxDir = "/box"

	inputFileName  = "input.txt"
	outputFileName = "output.txt"
	compileLogName = "compile.log"
	runtimeLogName = "runtime.log"
	binaryFallback = "main"
)

// Config controls sandbox workspace layout and isolation.
type Config struct {
	WorkRoot      string              `yaml:"workRoot"`
	CompileLimits model.ResourceLimit `yaml:"compileLimits"`
	Profiles      ProfileConfig       `yaml:"profiles"`
}

// ProfileConfig maps task kinds onto isolation settings. Network is denied
// for both kinds; compile gets looser resource defaults, not looser walls.
type ProfileConfig struct {
	Compile limiter.IsolationProfile `yaml:"compile"`
	Run     limiter.IsolationProfile `yaml:"run"`
}

// DefaultConfig returns a config suitable for single-host judging.
func DefaultConfig() Config {
	return Config{
		WorkRoot: "/var/lib/arbiter/work",
		CompileLimits: model.ResourceLimit{
			CPUTimeMs:  10000,
			WallTimeMs: 20000,
			MemoryMB:   1024,
			OutputMB:   64,
			PIDs:       64,
		},
		Profiles: ProfileConfig{
			Compile: limiter.IsolationProfile{DisableNetwork: true},
			Run:     limiter.IsolationProfile{DisableNetwork: true},
		},
	}
}

// CompileResult contains compilation outcomes.
type CompileResult struct {
	OK       bool
	ExitCode int
	TimeMs   int64
	MemoryKB int64
	Log      string
}
