// Package analyzer drives the complexity analysis loop: it reads
// pictures through a small look-ahead ring, runs the spatial, temporal
// and bidirectional prediction passes, aggregates per-frame metrics
// and emits records in display order.
package analyzer

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/dsp"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/frame"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/logging"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/motion"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/score"
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// Block geometry and reference padding. The padding must cover the
// largest search range so displaced reads stay inside the planes.
const (
	blockWidth  = 16
	blockHeight = 16
	padX        = 64
	padY        = 64
)

// Per-type bit weights in Q8: intra estimates carry roughly 10%
// syntax overhead, predicted 5%, bidirectional none.
const (
	bitWeightI = 282
	bitWeightP = 269
	bitWeightB = 256
)

// TrailingPolicy selects what happens to frames already read when the
// stream ends in the middle of a look-ahead batch.
type TrailingPolicy string

// Trailing policies
const (
	// TrailingDrop discards the partial batch.
	TrailingDrop TrailingPolicy = "drop"
	// TrailingShrink analyzes the shortened trailing sub-GOP.
	TrailingShrink TrailingPolicy = "shrink"
)

// FrameSource delivers decoded pictures in display order. Read fills
// the visible region of the picture and returns io.EOF once the
// sequence is exhausted.
type FrameSource interface {
	Dimensions() (w, h int)
	Read(p *frame.Picture) error
}

// Config holds the analysis parameters.
type Config struct {
	// GOPSize is the distance between intra frames, at least 1.
	GOPSize int
	// BFrames is the number of bidirectional frames between anchors.
	BFrames int
	// NumFrames stops the read loop once that many frames were
	// consumed; 0 analyzes the whole stream.
	NumFrames int
	// SearchRange bounds motion displacement per axis, at most the
	// reference padding.
	SearchRange int
	// ACCompensation removes the DC term from residual energies.
	ACCompensation bool
	// Weights combines the normalized metrics into the v2 score.
	Weights score.Weights
	// Trailing selects the end-of-stream policy, default drop.
	Trailing TrailingPolicy
	// Kernels overrides the kernel set, mainly for tests. When nil
	// the optimized set is built honoring ACCompensation.
	Kernels *dsp.Kernels
}

// DefaultConfig returns the stock analysis parameters.
func DefaultConfig() Config {
	return Config{
		GOPSize:     150,
		BFrames:     0,
		SearchRange: 64,
		Weights:     score.DefaultWeights,
		Trailing:    TrailingDrop,
	}
}

func (c *Config) validate() error {
	if c.GOPSize < 1 {
		return fmt.Errorf("analyzer: gop size must be at least 1, got %d", c.GOPSize)
	}
	if c.BFrames < 0 {
		return fmt.Errorf("analyzer: bframes must not be negative, got %d", c.BFrames)
	}
	if c.NumFrames < 0 {
		return fmt.Errorf("analyzer: frame limit must not be negative, got %d", c.NumFrames)
	}
	if c.SearchRange < 1 || c.SearchRange > padX || c.SearchRange > padY {
		return fmt.Errorf("analyzer: search range must be in [1,%d], got %d", min(padX, padY), c.SearchRange)
	}
	if c.Weights.Negative() {
		return errors.New("analyzer: complexity weights must not be negative")
	}
	switch c.Trailing {
	case "", TrailingDrop, TrailingShrink:
	default:
		return fmt.Errorf("analyzer: unknown trailing policy %q", c.Trailing)
	}
	return nil
}

// arena owns the per-frame scratch grids, sized once from the field
// geometry and reused for every frame.
type arena struct {
	sads1 []int
	sads2 []int
	mses  []int
	modes []motion.Mode
}

func newArena(cells int) *arena {
	return &arena{
		sads1: make([]int, cells),
		sads2: make([]int, cells),
		mses:  make([]int, cells),
		modes: make([]motion.Mode, cells),
	}
}

// Analyzer runs the single-threaded analysis of one stream.
type Analyzer struct {
	cfg Config
	src FrameSource
	log *logging.Logger

	w, h     int
	searcher *motion.Searcher
	varFn    dsp.VarianceFunc
	norm     *score.Normalizer

	// pics[0] is the current anchor, the rest the look-ahead slots.
	pics   []*frame.Picture
	pfield *motion.Field
	bfwd   *motion.Field
	bback  *motion.Field
	ar     *arena

	reorder    *reorderQueue
	records    []models.FrameRecord
	framesRead int
}

// New validates the configuration and allocates the analysis state.
// All configuration errors surface here, before any frame is read.
func New(src FrameSource, cfg Config, log *logging.Logger) (*Analyzer, error) {
	if src == nil {
		return nil, errors.New("analyzer: nil frame source")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	if cfg.Trailing == "" {
		cfg.Trailing = TrailingDrop
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	w, h := src.Dimensions()
	if w < blockWidth || h < blockHeight || w%2 != 0 || h%2 != 0 {
		return nil, fmt.Errorf("analyzer: unusable picture size %dx%d", w, h)
	}

	k := cfg.Kernels
	if k == nil {
		k = dsp.New(dsp.WithACCompensation(cfg.ACCompensation))
	}
	searcher, err := motion.NewSearcher(k, blockWidth, blockHeight, cfg.SearchRange)
	if err != nil {
		return nil, err
	}

	if !cfg.Weights.Valid() {
		log.Warnf("complexity weights sum to %.6f, expected 1.0", cfg.Weights.Sum())
	}

	pics := make([]*frame.Picture, cfg.BFrames+2)
	for i := range pics {
		pics[i] = frame.NewPicture(w, h, padX, padY)
	}
	pfield := motion.NewField(w, h, blockWidth, blockHeight)

	return &Analyzer{
		cfg:      cfg,
		src:      src,
		log:      log,
		w:        w,
		h:        h,
		searcher: searcher,
		varFn:    k.Variance(blockWidth),
		norm:     score.NewNormalizer(w, h, cfg.Weights),
		pics:     pics,
		pfield:   pfield,
		bfwd:     motion.NewField(w, h, blockWidth, blockHeight),
		bback:    motion.NewField(w, h, blockWidth, blockHeight),
		ar:       newArena(pfield.Cells()),
		reorder:  newReorderQueue(),
	}, nil
}

// Run analyzes the stream and returns the per-frame records in
// display order, numbered from zero without gaps.
func (a *Analyzer) Run() ([]models.FrameRecord, error) {
	gop := a.cfg.GOPSize
	subGOP := a.cfg.BFrames + 1

	for {
		if a.limitReached() {
			break
		}

		if a.framesRead%gop == 0 {
			if err := a.readInto(a.pics[0]); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, err
			}
			a.processI(a.pics[0])
		} else {
			// The previous batch was full length, its anchor sits in
			// the last ring slot.
			a.pics[0].Swap(a.pics[subGOP])
		}

		tdRef := (a.framesRead - 1) % gop
		td := tdRef
		for td < gop-1 && td-tdRef < subGOP && !a.limitReached() {
			if err := a.readInto(a.pics[td+1-tdRef]); err != nil {
				if errors.Is(err, io.EOF) {
					if k := td - tdRef; a.cfg.Trailing == TrailingShrink && k > 0 {
						a.processBatch(k)
					}
					return a.finish(), nil
				}
				return nil, err
			}
			td++
		}
		if k := td - tdRef; k > 0 {
			a.processBatch(k)
		}
	}
	return a.finish(), nil
}

// processBatch analyzes one look-ahead batch: the anchor-distance-k
// frame as P, then every frame between as B.
func (a *Analyzer) processBatch(k int) {
	a.processP(a.pics[k], a.pics[0])
	for j := 1; j < k; j++ {
		a.processB(a.pics[j], a.pics[0], a.pics[k])
	}
}

// limitReached reports whether the configured frame budget is spent.
// The read-ahead loop treats the budget like a GOP boundary, so a
// batch cut short by it is still analyzed in full.
func (a *Analyzer) limitReached() bool {
	return a.cfg.NumFrames > 0 && a.framesRead >= a.cfg.NumFrames
}

func (a *Analyzer) readInto(p *frame.Picture) error {
	if err := a.src.Read(p); err != nil {
		return err
	}
	p.Pos = a.framesRead
	a.framesRead++
	return nil
}

func (a *Analyzer) processI(p *frame.Picture) {
	a.log.Debugf("gop boundary at frame %d", p.Pos)
	a.pfield.Reset()
	a.bfwd.Reset()
	a.bback.Reset()

	st := a.searcher.PredictSpatial(a.pfield, p, a.ar.mses, a.ar.modes)
	a.emit(a.buildRecord(p, models.FrameTypeI, st, nil))
	p.ExtendBorders()
}

func (a *Analyzer) processP(p, ref *frame.Picture) {
	st := a.searcher.PredictTemporal(a.pfield, p, ref, a.ar.sads1, a.ar.mses, a.ar.modes)
	a.emit(a.buildRecord(p, models.FrameTypeP, st, a.pfield))
	p.ExtendBorders()
}

func (a *Analyzer) processB(p, fwd, back *frame.Picture) {
	wt := dsp.BidirWeights(p.Pos-fwd.Pos, back.Pos-p.Pos)
	st := a.searcher.PredictBidirectional(a.bfwd, a.bback, a.pfield, p, fwd, back, wt,
		a.ar.sads1, a.ar.sads2, a.ar.mses, a.ar.modes)
	a.emit(a.buildRecord(p, models.FrameTypeB, st, a.bfwd))
}

func (a *Analyzer) emit(rec models.FrameRecord) {
	a.reorder.push(rec)
	a.records = append(a.records, a.reorder.drain()...)
}

func (a *Analyzer) finish() []models.FrameRecord {
	a.records = append(a.records, a.reorder.flush()...)
	return a.records
}

func (a *Analyzer) buildRecord(p *frame.Picture, typ models.FrameType, st motion.Stats, mvField *motion.Field) models.FrameRecord {
	avgVar := a.spatialVariance(p)

	var mv models.MVStats
	var avgMag float64
	if mvField != nil {
		mv = fieldStats(mvField)
		avgMag = mv.MeanMagnitude
	}

	bits := weightBits(typ, st.Bits)
	m := a.norm.Normalize(avgVar, avgMag, int64(st.Error), int64(st.Error), bits)

	return models.FrameRecord{
		FrameNum:        p.Pos,
		Type:            typ,
		CountIntra:      st.CountI,
		CountInterP:     st.CountP,
		CountInterB:     st.CountB,
		EstimatedBits:   bits,
		Error:           int64(st.Error),
		SpatialVariance: avgVar,
		MotionMagnitude: avgMag,
		ACEnergy:        int64(st.Error),
		BitsPerPixel:    m.BitsPerPixel,
		NormSpatial:     m.Spatial,
		NormMotion:      m.Motion,
		NormResidual:    m.Residual,
		NormError:       m.Error,
		UnifiedV1:       m.V1,
		UnifiedV2:       m.V2,
		MVStats:         mv,
	}
}

// spatialVariance averages the block variance over the visible grid,
// independent of the coding decisions.
func (a *Analyzer) spatialVariance(p *frame.Picture) float64 {
	org := p.LumaOrigin()
	sum := 0
	for by := 0; by < a.pfield.Rows(); by++ {
		for bx := 0; bx < a.pfield.Cols(); bx++ {
			off := org + by*blockHeight*p.Stride + bx*blockWidth
			sum += a.varFn(p.Y[off:], p.Stride, blockHeight)
		}
	}
	return float64(sum) / float64(a.pfield.Rows()*a.pfield.Cols())
}

// fieldStats summarizes the visible cells of a vector field.
func fieldStats(f *motion.Field) models.MVStats {
	var (
		sum, maxMag float64
		zero        int
	)
	total := f.Rows() * f.Cols()
	for by := 0; by < f.Rows(); by++ {
		for bx := 0; bx < f.Cols(); bx++ {
			v := f.At(bx, by)
			if v.IsZero() {
				zero++
				continue
			}
			m := math.Hypot(float64(v.X), float64(v.Y))
			sum += m
			if m > maxMag {
				maxMag = m
			}
		}
	}
	return models.MVStats{
		MeanMagnitude: sum / float64(total),
		MaxMagnitude:  maxMag,
		ZeroMVCount:   zero,
		TotalMVCount:  total,
	}
}

func weightBits(typ models.FrameType, bits int) int64 {
	w := bitWeightB
	switch typ {
	case models.FrameTypeI:
		w = bitWeightI
	case models.FrameTypeP:
		w = bitWeightP
	}
	return int64(w*bits+128) >> 8
}
