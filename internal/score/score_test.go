package score

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeightsValid(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		valid   bool
	}{
		{name: "defaults", weights: DefaultWeights, valid: true},
		{name: "uniform quarter", weights: Weights{0.25, 0.25, 0.25, 0.25}, valid: true},
		{name: "over one", weights: Weights{0.5, 0.5, 0.5, 0.5}, valid: false},
		{name: "under one", weights: Weights{0.1, 0.1, 0.1, 0.1}, valid: false},
		{name: "tiny drift", weights: Weights{0.25, 0.3, 0.25, 0.2000000001}, valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.weights.Valid())
		})
	}
}

func TestWeightsNegative(t *testing.T) {
	assert.False(t, DefaultWeights.Negative())
	assert.True(t, Weights{Spatial: -0.1, Motion: 0.5, Residual: 0.3, Error: 0.3}.Negative())
}

func TestNormalizeKnownValues(t *testing.T) {
	// 640x480 has an 800 pixel diagonal, so the motion scale is 80.
	n := NewNormalizer(640, 480, DefaultWeights)

	m := n.Normalize(MaxPixelVariance, 40, 0, 0, 0)
	assert.InDelta(t, 1.0, m.Spatial, 1e-9)
	assert.InDelta(t, 0.5, m.Motion, 1e-9)
	assert.Zero(t, m.Residual)
	assert.Zero(t, m.Error)

	// residual of 255 per pixel saturates
	m = n.Normalize(0, 0, int64(640*480)*255, 0, 0)
	assert.InDelta(t, 1.0, m.Residual, 1e-9)

	// half that is half
	m = n.Normalize(0, 0, int64(640*480)*255/2, 0, 0)
	assert.InDelta(t, 0.5, m.Residual, 1e-3)
}

func TestNormalizeBitsPerPixel(t *testing.T) {
	n := NewNormalizer(640, 480, DefaultWeights)
	pixels := int64(640 * 480)

	m := n.Normalize(0, 0, 0, 0, pixels/4)
	assert.InDelta(t, 0.25, m.BitsPerPixel, 1e-9)
	assert.InDelta(t, 0.5, m.V1, 1e-9)

	// two bits per pixel saturates v1 but not bpp itself
	m = n.Normalize(0, 0, 0, 0, 2*pixels)
	assert.InDelta(t, 2.0, m.BitsPerPixel, 1e-9)
	assert.InDelta(t, 1.0, m.V1, 1e-9)
}

func TestNormalizeV2Combination(t *testing.T) {
	n := NewNormalizer(640, 480, DefaultWeights)

	// all components at their ceiling combine to exactly one
	m := n.Normalize(MaxPixelVariance, 800, int64(640*480)*255, int64(MaxPixelVariance), 0)
	assert.InDelta(t, 1.0, m.Spatial, 1e-9)
	assert.InDelta(t, 1.0, m.Motion, 1e-9)
	assert.InDelta(t, 1.0, m.Residual, 1e-9)
	assert.InDelta(t, 1.0, m.Error, 1e-9)
	assert.InDelta(t, 1.0, m.V2, 1e-9)

	// a single active component contributes its weight
	m = n.Normalize(MaxPixelVariance, 0, 0, 0, 0)
	assert.InDelta(t, DefaultWeights.Spatial, m.V2, 1e-9)
}

func TestNormalizeRangeInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(12345))
	n := NewNormalizer(1920, 1080, DefaultWeights)

	for i := 0; i < 500; i++ {
		m := n.Normalize(
			rng.Float64()*1e6,
			rng.Float64()*1e4,
			rng.Int63n(1e12),
			rng.Int63n(1e12),
			rng.Int63n(1e9),
		)
		for _, v := range []float64{m.Spatial, m.Motion, m.Residual, m.Error, m.V1, m.V2} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}
