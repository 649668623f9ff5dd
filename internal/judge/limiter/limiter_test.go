package limiter

import (
	"testing"

	"arbiter/internal/judge/model"
)

func TestMeasurementViolation(t *testing.T) {
	t.Parallel()
	limits := model.ResourceLimit{
		CPUTimeMs:  1000,
		WallTimeMs: 3000,
		MemoryMB:   256,
		OutputMB:   16,
	}

	tests := []struct {
		name string
		m    Measurement
		want Violation
	}{
		{
			name: "clean run",
			m:    Measurement{CPUTimeMs: 500, MemoryKB: 1024, OutputBytes: 100},
			want: ViolationNone,
		},
		{
			name: "wall timeout",
			m:    Measurement{TimedOut: true, CPUTimeMs: 100},
			want: ViolationTime,
		},
		{
			name: "cpu over limit",
			m:    Measurement{CPUTimeMs: 1001},
			want: ViolationTime,
		},
		{
			name: "cpu exactly at limit passes",
			m:    Measurement{CPUTimeMs: 1000},
			want: ViolationNone,
		},
		{
			name: "oom kill",
			m:    Measurement{OomKilled: true, MemoryKB: 1024},
			want: ViolationMemory,
		},
		{
			name: "memory over limit",
			m:    Measurement{MemoryKB: 256*1024 + 1},
			want: ViolationMemory,
		},
		{
			name: "output over limit",
			m:    Measurement{OutputBytes: 16*1024*1024 + 1},
			want: ViolationOutput,
		},
		{
			name: "timeout wins over memory and output",
			m:    Measurement{TimedOut: true, OomKilled: true, OutputBytes: 1 << 30},
			want: ViolationTime,
		},
		{
			name: "oom wins over output",
			m:    Measurement{OomKilled: true, OutputBytes: 1 << 30},
			want: ViolationMemory,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.m.Violation(limits); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMeasurementViolationZeroLimitsDisableChecks(t *testing.T) {
	m := Measurement{CPUTimeMs: 1 << 40, MemoryKB: 1 << 40, OutputBytes: 1 << 40}
	if got := m.Violation(model.ResourceLimit{}); got != ViolationNone {
		t.Fatalf("expected zero limits to disable ceilings, got %q", got)
	}
}
