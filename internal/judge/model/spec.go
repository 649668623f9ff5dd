package model

import (
	"arbiter/pkg/errors"
)

// LanguageProfile is the per-language execution recipe resolved once per
// submission. Command templates reference {src} and {bin} placeholders and
// are expanded into argument vectors without ever passing through a shell.
type LanguageProfile struct {
	LanguageID      int64
	Name            string
	SourceFileName  string
	BinaryFileName  string
	HasCompileStep  bool
	CompileTemplate string
	RunTemplate     string
}

// HasCompile reports whether a compile step must run before execution.
func (p LanguageProfile) HasCompile() bool {
	return p.HasCompileStep && p.CompileTemplate != ""
}

// JudgingSpec is the flattened, pre-joined snapshot the coordinator judges
// from. It is assembled once at claim time; the live relation graph is never
// traversed during the run.
type JudgingSpec struct {
	Submission *Submission
	Profile    LanguageProfile
	Limits     ResourceLimit
	Testcases  []*Testcase
	TotalPoint int
}

// Validate checks the snapshot before any sandbox work starts. A malformed
// spec fails the claim, it is never attempted against the sandbox.
func (s *JudgingSpec) Validate() error {
	if s.Submission == nil {
		return errors.ValidationError("submission", "is required")
	}
	if s.Submission.SourceCode == "" {
		return errors.ValidationError("sourceCode", "is empty")
	}
	if s.Profile.RunTemplate == "" {
		return errors.ValidationError("runTemplate", "is required")
	}
	if s.Profile.HasCompileStep && s.Profile.CompileTemplate == "" {
		return errors.ValidationError("compileTemplate", "is required for compiled language")
	}
	if len(s.Testcases) == 0 {
		return errors.ValidationError("testcases", "problem has no testcases")
	}
	return s.Limits.Validate()
}
