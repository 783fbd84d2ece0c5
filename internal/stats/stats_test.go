package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMostCommon_Unanimous(t *testing.T) {
	value, freq, ok := MostCommon([]int{1, 1, 1})
	require.True(t, ok)
	assert.Equal(t, 1, value)
	assert.Equal(t, 1.0, freq)
}

func TestMostCommon_Majority(t *testing.T) {
	value, freq, ok := MostCommon([]int{0, 1, 0, 0, 1})
	require.True(t, ok)
	assert.Equal(t, 0, value)
	assert.InDelta(t, 0.6, freq, 1e-12)
}

func TestMostCommon_TieLowestWins(t *testing.T) {
	value, freq, ok := MostCommon([]int{1, 0, 1, 0})
	require.True(t, ok)
	assert.Equal(t, 0, value)
	assert.Equal(t, 0.5, freq)

	// Order must not matter
	value, _, _ = MostCommon([]int{0, 1, 0, 1})
	assert.Equal(t, 0, value)
}

func TestMostCommon_Strings(t *testing.T) {
	value, freq, ok := MostCommon([]string{"real", "fake", "real"})
	require.True(t, ok)
	assert.Equal(t, "real", value)
	assert.InDelta(t, 2.0/3.0, freq, 1e-12)
}

func TestMostCommon_Empty(t *testing.T) {
	_, freq, ok := MostCommon([]int{})
	assert.False(t, ok)
	assert.Zero(t, freq)
}

// The returned value is present in the input, frequency is in (0, 1] and
// frequency * len(values) recovers the exact count.
func TestMostCommon_Properties(t *testing.T) {
	inputs := [][]int{
		{3},
		{5, 4, 3, 2, 1},
		{2, 2, 3, 3, 3, 1},
		{0, 0, 0, 1, 1, 1, 1},
		{4, 4, 4, 4, 4, 4, 4, 4, 4, 1},
	}

	for _, values := range inputs {
		value, freq, ok := MostCommon(values)
		require.True(t, ok)

		count := 0
		for _, v := range values {
			if v == value {
				count++
			}
		}
		require.Positive(t, count, "value %d not in %v", value, values)
		assert.Greater(t, freq, 0.0)
		assert.LessOrEqual(t, freq, 1.0)
		assert.Equal(t, float64(count), math.Round(freq*float64(len(values))))
	}
}

func TestNormalizeRating(t *testing.T) {
	want := map[int]float64{1: 0, 2: 0.25, 3: 0.5, 4: 0.75, 5: 1.0}
	for rating, expected := range want {
		assert.Equal(t, expected, NormalizeRating(rating), "rating %d", rating)
	}
}

func TestMeanStd(t *testing.T) {
	ratings := []int{1, 5, 1, 3}
	normalized := make([]float64, len(ratings))
	for i, r := range ratings {
		normalized[i] = NormalizeRating(r)
	}

	mean, std := MeanStd(normalized)
	assert.Equal(t, 0.375, mean)

	// Population std over [0, 1, 0, 0.5]
	variance := (0.375*0.375 + 0.625*0.625 + 0.375*0.375 + 0.125*0.125) / 4
	assert.InDelta(t, math.Sqrt(variance), std, 1e-12)
}

func TestMeanStd_Constant(t *testing.T) {
	mean, std := MeanStd([]float64{0.5, 0.5, 0.5})
	assert.Equal(t, 0.5, mean)
	assert.Zero(t, std)
}

func TestMeanStd_Empty(t *testing.T) {
	mean, std := MeanStd(nil)
	assert.Zero(t, mean)
	assert.Zero(t, std)
}
