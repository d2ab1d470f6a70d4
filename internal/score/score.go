// Package score turns raw analysis aggregates into normalized
// complexity metrics and unified per-frame scores.
package score

import "math"

// MaxPixelVariance is the variance scale of an 8-bit pixel, 255^2.
const MaxPixelVariance = 65025.0

// weightEpsilon bounds the accepted drift of the weight sum from one.
const weightEpsilon = 1e-6

// Weights combines the four normalized metrics into the v2 score.
type Weights struct {
	Spatial  float64 `mapstructure:"spatial" json:"spatial"`
	Motion   float64 `mapstructure:"motion" json:"motion"`
	Residual float64 `mapstructure:"residual" json:"residual"`
	Error    float64 `mapstructure:"error" json:"error"`
}

// DefaultWeights is the stock weighting of the unified v2 score.
var DefaultWeights = Weights{
	Spatial:  0.25,
	Motion:   0.30,
	Residual: 0.25,
	Error:    0.20,
}

// Sum returns the total of the four weights.
func (w Weights) Sum() float64 {
	return w.Spatial + w.Motion + w.Residual + w.Error
}

// Valid reports whether the weights sum to one within epsilon.
// Invalid weights are usable, callers decide whether to warn.
func (w Weights) Valid() bool {
	return math.Abs(w.Sum()-1.0) < weightEpsilon
}

// Negative reports whether any weight is below zero.
func (w Weights) Negative() bool {
	return w.Spatial < 0 || w.Motion < 0 || w.Residual < 0 || w.Error < 0
}

// Metrics holds the normalized complexity components of one frame and
// the unified scores derived from them. All values lie in [0,1].
type Metrics struct {
	Spatial      float64
	Motion       float64
	Residual     float64
	Error        float64
	BitsPerPixel float64
	V1           float64
	V2           float64
}

// Normalizer derives normalized metrics for one picture geometry.
type Normalizer struct {
	numPixels   float64
	motionScale float64
	weights     Weights
}

// NewNormalizer builds a normalizer for w x h pictures. The motion
// scale is a tenth of the picture diagonal, so a frame-average
// displacement that long normalizes to one.
func NewNormalizer(w, h int, weights Weights) *Normalizer {
	return &Normalizer{
		numPixels:   float64(w * h),
		motionScale: 0.1 * math.Sqrt(float64(w*w+h*h)),
		weights:     weights,
	}
}

// Weights returns the configured weight set.
func (n *Normalizer) Weights() Weights {
	return n.weights
}

// Normalize maps the frame aggregates to [0,1] metrics and scores.
// avgVariance and avgMagnitude are block averages, acEnergy and
// totalError frame sums, bits the weighted frame bit estimate.
func (n *Normalizer) Normalize(avgVariance, avgMagnitude float64, acEnergy, totalError, bits int64) Metrics {
	m := Metrics{
		Spatial:      clamp01(math.Sqrt(avgVariance / MaxPixelVariance)),
		Motion:       clamp01(avgMagnitude / n.motionScale),
		Residual:     clamp01(float64(acEnergy) / n.numPixels / 255.0),
		Error:        clamp01(math.Sqrt(float64(totalError) / MaxPixelVariance)),
		BitsPerPixel: float64(bits) / n.numPixels,
	}
	m.V1 = clamp01(m.BitsPerPixel * 2)
	m.V2 = clamp01(n.weights.Spatial*m.Spatial +
		n.weights.Motion*m.Motion +
		n.weights.Residual*m.Residual +
		n.weights.Error*m.Error)
	return m
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
