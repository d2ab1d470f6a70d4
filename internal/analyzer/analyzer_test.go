package analyzer

import (
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/frame"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/score"
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// memSource serves pre-rendered luma frames from memory.
type memSource struct {
	w, h   int
	frames [][]byte
	idx    int
}

func (m *memSource) Dimensions() (int, int) { return m.w, m.h }

func (m *memSource) Read(p *frame.Picture) error {
	if m.idx >= len(m.frames) {
		return io.EOF
	}
	data := m.frames[m.idx]
	org := p.LumaOrigin()
	for y := 0; y < m.h; y++ {
		copy(p.Y[org+y*p.Stride:org+y*p.Stride+m.w], data[y*m.w:(y+1)*m.w])
	}
	m.idx++
	return nil
}

func renderFrames(w, h, n int, pixel func(i, x, y int) byte) *memSource {
	src := &memSource{w: w, h: h}
	for i := 0; i < n; i++ {
		f := make([]byte, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				f[y*w+x] = pixel(i, x, y)
			}
		}
		src.frames = append(src.frames, f)
	}
	return src
}

func noiseSource(w, h, n int, seed int64) *memSource {
	rng := rand.New(rand.NewSource(seed))
	return renderFrames(w, h, n, func(i, x, y int) byte { return byte(rng.Intn(256)) })
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.GOPSize = 6
	cfg.BFrames = 2
	cfg.SearchRange = 16
	return cfg
}

func runAnalysis(t *testing.T, src FrameSource, cfg Config) []models.FrameRecord {
	t.Helper()
	a, err := New(src, cfg, nil)
	require.NoError(t, err)
	recs, err := a.Run()
	require.NoError(t, err)
	return recs
}

func TestConfigValidation(t *testing.T) {
	src := noiseSource(64, 64, 1, 1)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero gop", mutate: func(c *Config) { c.GOPSize = 0 }},
		{name: "negative bframes", mutate: func(c *Config) { c.BFrames = -1 }},
		{name: "negative frame limit", mutate: func(c *Config) { c.NumFrames = -1 }},
		{name: "zero search range", mutate: func(c *Config) { c.SearchRange = 0 }},
		{name: "range beyond padding", mutate: func(c *Config) { c.SearchRange = padX + 1 }},
		{name: "negative weight", mutate: func(c *Config) { c.Weights.Motion = -0.5 }},
		{name: "unknown trailing policy", mutate: func(c *Config) { c.Trailing = "truncate" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(src, cfg, nil)
			assert.Error(t, err)
		})
	}

	_, err := New(nil, testConfig(), nil)
	assert.Error(t, err)

	// a weight sum off one only warns
	cfg := testConfig()
	cfg.Weights = score.Weights{Spatial: 0.5, Motion: 0.5, Residual: 0.5, Error: 0.5}
	_, err = New(src, cfg, nil)
	assert.NoError(t, err)
}

func TestRunDisplayOrderAndGOPStructure(t *testing.T) {
	recs := runAnalysis(t, noiseSource(64, 64, 18, 42), testConfig())

	require.Len(t, recs, 18)
	for i, r := range recs {
		assert.Equal(t, i, r.FrameNum, "records must be in display order")
		if r.FrameNum%6 == 0 {
			assert.Equal(t, models.FrameTypeI, r.Type)
		} else {
			assert.NotEqual(t, models.FrameTypeI, r.Type)
		}
		assert.GreaterOrEqual(t, r.Error, int64(0))
		assert.Positive(t, r.EstimatedBits)
		for _, v := range []float64{r.NormSpatial, r.NormMotion, r.NormResidual, r.NormError, r.UnifiedV1, r.UnifiedV2} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}

	// gop 6 with two b frames lays out I B B P B P
	want := []models.FrameType{
		models.FrameTypeI, models.FrameTypeB, models.FrameTypeB,
		models.FrameTypeP, models.FrameTypeB, models.FrameTypeP,
	}
	for i, typ := range want {
		assert.Equal(t, typ, recs[i].Type, "frame %d", i)
		assert.Equal(t, typ, recs[i+6].Type, "frame %d", i+6)
	}
}

func TestRunWithoutBFrames(t *testing.T) {
	cfg := testConfig()
	cfg.BFrames = 0

	recs := runAnalysis(t, noiseSource(64, 64, 12, 7), cfg)

	require.Len(t, recs, 12)
	for _, r := range recs {
		assert.NotEqual(t, models.FrameTypeB, r.Type)
		assert.Zero(t, r.CountInterB)
	}
}

func TestRunTrailingPolicies(t *testing.T) {
	// 20 frames with gop 6: the stream ends one frame into the last
	// look-ahead batch, so frame 19 is in the partial batch.
	cfg := testConfig()
	cfg.Trailing = TrailingDrop
	recs := runAnalysis(t, noiseSource(64, 64, 20, 9), cfg)
	require.Len(t, recs, 19)
	for i, r := range recs {
		assert.Equal(t, i, r.FrameNum)
	}

	cfg.Trailing = TrailingShrink
	recs = runAnalysis(t, noiseSource(64, 64, 20, 9), cfg)
	require.Len(t, recs, 20)
	assert.Equal(t, models.FrameTypeP, recs[19].Type)
}

func TestRunFrameLimit(t *testing.T) {
	cfg := testConfig()
	cfg.BFrames = 0
	cfg.GOPSize = 5
	cfg.NumFrames = 10

	recs := runAnalysis(t, noiseSource(64, 64, 30, 3), cfg)

	require.Len(t, recs, 10)
	assert.Equal(t, 9, recs[9].FrameNum)
}

func TestRunStaticSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(12345))
	still := make([]byte, 64*64)
	rng.Read(still)
	src := &memSource{w: 64, h: 64}
	for i := 0; i < 12; i++ {
		src.frames = append(src.frames, still)
	}

	recs := runAnalysis(t, src, testConfig())

	require.Len(t, recs, 12)
	for _, r := range recs {
		if r.Type == models.FrameTypeI {
			assert.Positive(t, r.Error, "textured intra frames have variance")
			continue
		}
		assert.Zero(t, r.Error, "identical frames predict perfectly")
		assert.Zero(t, r.MVStats.MeanMagnitude)
		assert.Equal(t, r.MVStats.TotalMVCount, r.MVStats.ZeroMVCount)
		assert.Zero(t, r.NormMotion)
		assert.Zero(t, r.NormResidual)
	}
}

func TestRunMovingBox(t *testing.T) {
	src := renderFrames(64, 64, 8, func(i, x, y int) byte {
		bx := 8 + 2*i
		if x >= bx && x < bx+16 && y >= 24 && y < 40 {
			return 255
		}
		return 0
	})
	cfg := testConfig()
	cfg.BFrames = 0

	recs := runAnalysis(t, src, cfg)

	require.Len(t, recs, 8)
	for _, r := range recs {
		if r.Type == models.FrameTypeI {
			assert.Zero(t, r.MotionMagnitude)
			continue
		}
		assert.Positive(t, r.MotionMagnitude, "frame %d sees the box move", r.FrameNum)
		assert.Positive(t, r.MVStats.MaxMagnitude)
		assert.Less(t, r.MVStats.ZeroMVCount, r.MVStats.TotalMVCount)
	}
}

func TestReorderQueue(t *testing.T) {
	q := newReorderQueue()

	rec := func(n int) models.FrameRecord { return models.FrameRecord{FrameNum: n} }

	q.push(rec(0))
	out := q.drain()
	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].FrameNum)

	// coding order P3 B1 B2 drains as 1 2 3
	q.push(rec(3))
	assert.Empty(t, q.drain())
	q.push(rec(1))
	out = q.drain()
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].FrameNum)
	q.push(rec(2))
	out = q.drain()
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[0].FrameNum)
	assert.Equal(t, 3, out[1].FrameNum)

	// flush returns leftovers sorted
	q.push(rec(7))
	q.push(rec(5))
	out = q.flush()
	require.Len(t, out, 2)
	assert.Equal(t, 5, out[0].FrameNum)
	assert.Equal(t, 7, out[1].FrameNum)
	assert.Empty(t, q.flush())
}
