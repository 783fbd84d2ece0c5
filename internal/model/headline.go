package model

import "strings"

// Headline is one row of the source headline table
type Headline struct {
	Index int    `json:"index"`          // Row identity, stable across merges
	Text  string `json:"headline"`       // Headline text as stored in the table
	Real  *int   `json:"real,omitempty"` // Ground truth (1 real, 0 fake), nil when absent
}

// Verdict is the model's free-form classification of a headline
type Verdict string

const (
	VerdictReal Verdict = "real"
	VerdictFake Verdict = "fake"
)

// ParseVerdict reports whether s begins with "real" or "fake" (case-insensitive)
func ParseVerdict(s string) (Verdict, bool) {
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, string(VerdictReal)):
		return VerdictReal, true
	case strings.HasPrefix(lower, string(VerdictFake)):
		return VerdictFake, true
	}
	return "", false
}

// Class returns the numeric class stored in prediction columns: 1 real, 0 fake
func (v Verdict) Class() int {
	if v == VerdictReal {
		return 1
	}
	return 0
}

// VerdictFromClass maps a stored prediction back to a verdict.
// Anything other than 1 is treated as fake.
func VerdictFromClass(class int) Verdict {
	if class == 1 {
		return VerdictReal
	}
	return VerdictFake
}
