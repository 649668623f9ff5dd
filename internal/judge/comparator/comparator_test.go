package comparator

import (
	"testing"
)

func TestCompareTrimTrailing(t *testing.T) {
	t.Parallel()
	policy := Policy{Kind: PolicyTrimTrailing}
	tests := []struct {
		name     string
		actual   string
		expected string
		want     bool
	}{
		{name: "identical", actual: "1 2 3\n", expected: "1 2 3\n", want: true},
		{name: "trailing-space", actual: "1 2 3   \n", expected: "1 2 3\n", want: true},
		{name: "trailing-tab", actual: "1 2 3\t\n", expected: "1 2 3\n", want: true},
		{name: "missing-final-newline", actual: "1 2 3", expected: "1 2 3\n", want: true},
		{name: "extra-blank-lines", actual: "1 2 3\n\n\n", expected: "1 2 3\n", want: true},
		{name: "crlf", actual: "1 2 3\r\n", expected: "1 2 3\n", want: true},
		{name: "leading-space-differs", actual: " 1 2 3\n", expected: "1 2 3\n", want: false},
		{name: "interior-space-differs", actual: "1  2 3\n", expected: "1 2 3\n", want: false},
		{name: "blank-line-in-middle", actual: "a\n\nb\n", expected: "a\nb\n", want: false},
		{name: "wrong-value", actual: "1 2 4\n", expected: "1 2 3\n", want: false},
		{name: "both-empty", actual: "", expected: "", want: true},
		{name: "empty-vs-newline", actual: "", expected: "\n", want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Compare(tt.actual, tt.expected, policy)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCompareExact(t *testing.T) {
	t.Parallel()
	policy := Policy{Kind: PolicyExact}
	tests := []struct {
		name     string
		actual   string
		expected string
		want     bool
	}{
		{name: "identical", actual: "abc\n", expected: "abc\n", want: true},
		{name: "trailing-space-differs", actual: "abc \n", expected: "abc\n", want: false},
		{name: "missing-newline-differs", actual: "abc", expected: "abc\n", want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Compare(tt.actual, tt.expected, policy)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCompareTokens(t *testing.T) {
	t.Parallel()
	policy := Policy{Kind: PolicyTokens}
	tests := []struct {
		name     string
		actual   string
		expected string
		want     bool
	}{
		{name: "whitespace-collapsed", actual: "1   2\n3", expected: "1 2 3", want: true},
		{name: "token-count-differs", actual: "1 2", expected: "1 2 3", want: false},
		{name: "token-differs", actual: "1 2 4", expected: "1 2 3", want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Compare(tt.actual, tt.expected, policy)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCompareFloats(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		actual   string
		expected string
		epsilon  float64
		want     bool
	}{
		{name: "within-abs-epsilon", actual: "1.0000004", expected: "1.0", epsilon: 1e-6, want: true},
		{name: "outside-epsilon", actual: "1.01", expected: "1.0", epsilon: 1e-6, want: false},
		{name: "relative-large-values", actual: "1000000.5", expected: "1000000.0", epsilon: 1e-6, want: true},
		{name: "default-epsilon", actual: "2.0000001", expected: "2.0", epsilon: 0, want: true},
		{name: "non-numeric-equal", actual: "YES 1.5", expected: "YES 1.5", epsilon: 1e-6, want: true},
		{name: "non-numeric-differs", actual: "YES", expected: "NO", epsilon: 1e-6, want: false},
		{name: "mixed-count-differs", actual: "1.0 2.0", expected: "1.0", epsilon: 1e-6, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Compare(tt.actual, tt.expected, Policy{Kind: PolicyFloatTolerance, Epsilon: tt.epsilon})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCompareUnknownPolicy(t *testing.T) {
	t.Parallel()
	if _, err := Compare("a", "a", Policy{Kind: "fuzzy"}); err == nil {
		t.Fatal("expected error for unknown policy kind")
	}
}

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()
	if DefaultPolicy().Kind != PolicyTrimTrailing {
		t.Fatalf("expected trim_trailing default, got %s", DefaultPolicy().Kind)
	}
}
