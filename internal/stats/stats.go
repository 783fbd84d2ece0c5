// Package stats aggregates repeated model trials into per-headline results.
package stats

import (
	"cmp"
	"math"
)

// MostCommon returns the most frequent value in values and its frequency
// (count / len(values)). Ties go to the lowest value so the outcome does not
// depend on trial order. ok is false for an empty slice.
func MostCommon[T cmp.Ordered](values []T) (value T, frequency float64, ok bool) {
	if len(values) == 0 {
		return value, 0, false
	}

	counts := make(map[T]int, len(values))
	for _, v := range values {
		counts[v]++
	}

	best := 0
	for v, n := range counts {
		if n > best || (n == best && v < value) {
			value, best = v, n
		}
	}

	return value, float64(best) / float64(len(values)), true
}

// NormalizeRating maps a 1-5 confidence rating onto [0, 1] via (rating-1)/4
func NormalizeRating(rating int) float64 {
	return float64(rating-1) / 4
}

// MeanStd returns the arithmetic mean and population standard deviation.
// Both are zero for an empty slice.
func MeanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std = math.Sqrt(sq / float64(len(values)))

	return mean, std
}
