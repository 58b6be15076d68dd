// Package stats provides the small set of descriptive-statistics helpers
// shared by the pattern detectors: mean, sample standard deviation, and
// coefficient of variation over amount/time-gap series.
package stats

import "math"

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the sample standard deviation of xs given its mean.
// Returns 0 for fewer than 2 samples.
func StdDev(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

// CoefficientOfVariation returns StdDev/Mean over xs. Undefined (returns 0)
// when the mean is zero or fewer than 2 samples are present — callers that
// need to distinguish "undefined" from "perfectly uniform" should check
// len(xs) and Mean(xs) themselves before relying on a zero CV.
func CoefficientOfVariation(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	if m == 0 {
		return 0
	}
	return StdDev(xs, m) / m
}

// MinMaxNormalize rescales v from [lo, hi] into [0, scale]. Returns 0 when
// the input range is degenerate (hi <= lo).
func MinMaxNormalize(v, lo, hi, scale float64) float64 {
	if hi <= lo {
		return 0
	}
	n := (v - lo) / (hi - lo)
	if n < 0 {
		n = 0
	}
	if n > 1 {
		n = 1
	}
	return n * scale
}
