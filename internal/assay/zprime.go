// Package assay gates classification decisions on how well positive and
// negative controls separate.
package assay

import (
	"math"
)

// DefaultMinControls is the smallest sample per control group that yields a Z' value.
const DefaultMinControls = 3

// Quality classifies a Z' result.
type Quality string

const (
	QualityExcellent    Quality = "excellent"
	QualityMarginal     Quality = "marginal"
	QualityUnusable     Quality = "unusable"
	QualityInsufficient Quality = "insufficient"
)

// Result carries the Z' value and the statistics it was derived from.
// ZPrime is nil when the sample was insufficient.
type Result struct {
	ZPrime       *float64 `json:"z_prime"`
	Quality      Quality  `json:"quality"`
	PositiveMean float64  `json:"positive_mean"`
	NegativeMean float64  `json:"negative_mean"`
	PositiveStd  float64  `json:"positive_std"`
	NegativeStd  float64  `json:"negative_std"`
	PositiveN    int      `json:"positive_n"`
	NegativeN    int      `json:"negative_n"`
}

// Usable reports whether classification against these controls can be trusted.
func (r Result) Usable() bool {
	return r.Quality == QualityExcellent || r.Quality == QualityMarginal
}

// ZPrime computes Z' = 1 - (3σp + 3σn) / |μp - μn|. minControls <= 0 selects
// DefaultMinControls.
func ZPrime(positive, negative []float64, minControls int) Result {
	if minControls <= 0 {
		minControls = DefaultMinControls
	}
	res := Result{PositiveN: len(positive), NegativeN: len(negative)}
	if len(positive) < minControls || len(negative) < minControls {
		res.Quality = QualityInsufficient
		return res
	}
	res.PositiveMean, res.PositiveStd = meanStd(positive)
	res.NegativeMean, res.NegativeStd = meanStd(negative)

	z := 0.0
	if sep := math.Abs(res.PositiveMean - res.NegativeMean); sep != 0 {
		z = 1 - (3*res.PositiveStd+3*res.NegativeStd)/sep
	}
	res.ZPrime = &z
	res.Quality = Classify(z)
	return res
}

// Classify maps a Z' value onto a quality band.
func Classify(z float64) Quality {
	switch {
	case z >= 0.5:
		return QualityExcellent
	case z > 0:
		return QualityMarginal
	default:
		return QualityUnusable
	}
}

// meanStd returns the mean and sample standard deviation; a single value has σ = 0.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}
