// Package comparator implements deterministic output comparison between a
// program's stdout and a testcase's expected output.
package comparator

import (
	"math"
	"strconv"
	"strings"

	appErr "arbiter/pkg/errors"
)

// PolicyKind selects the comparison rule applied to the two outputs.
type PolicyKind string

const (
	// PolicyExact compares byte for byte after newline normalization.
	PolicyExact PolicyKind = "exact"
	// PolicyTrimTrailing trims trailing whitespace per line and a trailing
	// newline difference, but is strict about interior whitespace and
	// ordering. This is the conventional judge default.
	PolicyTrimTrailing PolicyKind = "trim_trailing"
	// PolicyTokens compares whitespace-separated tokens in order.
	PolicyTokens PolicyKind = "tokens"
	// PolicyFloatTolerance compares tokens numerically within an absolute
	// or relative epsilon, falling back to string equality for non-numbers.
	PolicyFloatTolerance PolicyKind = "float_tolerance"
)

// Policy parameterizes one comparison.
type Policy struct {
	Kind PolicyKind `yaml:"kind"`
	// Epsilon applies to PolicyFloatTolerance only.
	Epsilon float64 `yaml:"epsilon"`
}

// DefaultPolicy returns the conventional trim-trailing-whitespace policy.
func DefaultPolicy() Policy {
	return Policy{Kind: PolicyTrimTrailing}
}

// Compare reports whether actual matches expected under the policy. It is
// pure: it never reads or writes anything beyond its two inputs.
func Compare(actual, expected string, policy Policy) (bool, error) {
	switch policy.Kind {
	case "", PolicyTrimTrailing:
		return compareTrimTrailing(actual, expected), nil
	case PolicyExact:
		return normalizeNewlines(actual) == normalizeNewlines(expected), nil
	case PolicyTokens:
		return compareTokens(actual, expected), nil
	case PolicyFloatTolerance:
		eps := policy.Epsilon
		if eps <= 0 {
			eps = 1e-6
		}
		return compareFloats(actual, expected, eps), nil
	default:
		return false, appErr.Newf(appErr.InvalidParams, "unknown comparison policy: %s", policy.Kind)
	}
}

func compareTrimTrailing(actual, expected string) bool {
	a := splitTrimmedLines(actual)
	e := splitTrimmedLines(expected)
	if len(a) != len(e) {
		return false
	}
	for i := range a {
		if a[i] != e[i] {
			return false
		}
	}
	return true
}

// splitTrimmedLines trims trailing whitespace per line and drops trailing
// empty lines so a single final-newline difference does not count.
func splitTrimmedLines(s string) []string {
	lines := strings.Split(normalizeNewlines(s), "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func compareTokens(actual, expected string) bool {
	a := strings.Fields(actual)
	e := strings.Fields(expected)
	if len(a) != len(e) {
		return false
	}
	for i := range a {
		if a[i] != e[i] {
			return false
		}
	}
	return true
}

func compareFloats(actual, expected string, eps float64) bool {
	a := strings.Fields(actual)
	e := strings.Fields(expected)
	if len(a) != len(e) {
		return false
	}
	for i := range a {
		av, aErr := strconv.ParseFloat(a[i], 64)
		ev, eErr := strconv.ParseFloat(e[i], 64)
		if aErr != nil || eErr != nil {
			if a[i] != e[i] {
				return false
			}
			continue
		}
		diff := math.Abs(av - ev)
		if diff <= eps {
			continue
		}
		if ev != 0 && diff/math.Abs(ev) <= eps {
			continue
		}
		return false
	}
	return true
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
