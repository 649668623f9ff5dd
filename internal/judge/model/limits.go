package model

import (
	"arbiter/pkg/errors"
)

// ResourceLimit is the set of ceilings applied to one sandboxed step.
type ResourceLimit struct {
	CPUTimeMs  int64 `yaml:"cpuTimeMs"`
	WallTimeMs int64 `yaml:"wallTimeMs"`
	MemoryMB   int64 `yaml:"memoryMB"`
	StackMB    int64 `yaml:"stackMB"`
	OutputMB   int64 `yaml:"outputMB"`
	PIDs       int64 `yaml:"pids"`
}

// MergeLimits merges override with defaults using non-zero fields.
func MergeLimits(override *ResourceLimit, defaults ResourceLimit) ResourceLimit {
	if override == nil {
		return defaults
	}
	out := defaults
	if override.CPUTimeMs > 0 {
		out.CPUTimeMs = override.CPUTimeMs
	}
	if override.WallTimeMs > 0 {
		out.WallTimeMs = override.WallTimeMs
	}
	if override.MemoryMB > 0 {
		out.MemoryMB = override.MemoryMB
	}
	if override.StackMB > 0 {
		out.StackMB = override.StackMB
	}
	if override.OutputMB > 0 {
		out.OutputMB = override.OutputMB
	}
	if override.PIDs > 0 {
		out.PIDs = override.PIDs
	}
	return out
}

// wallGraceMs pads the wall ceiling over the CPU ceiling so teardown does not
// race the limit itself.
const wallGraceMs = 1000

// EffectiveLimits resolves the ceilings for one (problem, language) pair:
// ProblemLanguage override if present, else Problem defaults, then the
// language's interpreter multipliers.
func EffectiveLimits(p *Problem, pl *ProblemLanguage, lang *Language) ResourceLimit {
	limits := ResourceLimit{
		CPUTimeMs: p.TimeLimitMs,
		MemoryMB:  p.MemoryLimitMB,
	}
	if pl != nil {
		limits = MergeLimits(&ResourceLimit{
			CPUTimeMs: pl.TimeLimitMs,
			MemoryMB:  pl.MemoryLimitMB,
		}, limits)
	}
	if lang != nil {
		if lang.TimeMultiplier > 1 {
			limits.CPUTimeMs = int64(float64(limits.CPUTimeMs) * lang.TimeMultiplier)
		}
		if lang.MemMultiplier > 1 {
			limits.MemoryMB = int64(float64(limits.MemoryMB) * lang.MemMultiplier)
		}
	}
	if limits.WallTimeMs == 0 {
		limits.WallTimeMs = limits.CPUTimeMs*2 + wallGraceMs
	}
	return limits
}

// Validate rejects ceilings a sandbox cannot honor.
func (l ResourceLimit) Validate() error {
	if l.CPUTimeMs <= 0 {
		return errors.ValidationError("cpuTimeMs", "must be positive")
	}
	if l.WallTimeMs < l.CPUTimeMs {
		return errors.ValidationError("wallTimeMs", "must be at least cpuTimeMs")
	}
	if l.MemoryMB <= 0 {
		return errors.ValidationError("memoryMB", "must be positive")
	}
	return nil
}
