package motion

import (
	"errors"
	"fmt"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/dsp"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/frame"
)

// Mode is the coding decision for one block.
type Mode uint8

// Block mode constants
const (
	ModeIntra Mode = iota
	ModeForward
	ModeBackward
	ModeBidir
)

// Stats totals the outcome of one prediction pass over a frame.
type Stats struct {
	Bits   int
	CountI int
	CountP int
	CountB int
	Error  int
}

// candidate is one coding choice for a block. Costs are comparable
// only within a single pick.
type candidate struct {
	mode Mode
	mv1  Vector
	mv2  Vector
	sad1 int
	sad2 int
	cost int
}

// pickMode returns the lowest-cost choice; earlier entries win ties.
func pickMode(cands []candidate) candidate {
	best := cands[0]
	for _, c := range cands[1:] {
		if c.cost < best.cost {
			best = c
		}
	}
	return best
}

// Searcher runs the block prediction passes with an injected kernel
// set. Reference pictures must be border extended and padded by at
// least the search range on every side.
type Searcher struct {
	sad      dsp.SADFunc
	variance dsp.VarianceFunc
	mse      dsp.MSEFunc
	bidirMSE dsp.BidirMSEFunc

	blockW      int
	blockH      int
	searchRange int
}

// NewSearcher builds a searcher for one block geometry. The block
// width must have a kernel (16, 8 or 4).
func NewSearcher(k *dsp.Kernels, blockW, blockH, searchRange int) (*Searcher, error) {
	if k == nil {
		return nil, errors.New("motion: nil kernel set")
	}
	sad := k.SAD(blockW)
	if sad == nil {
		return nil, fmt.Errorf("motion: unsupported block width %d", blockW)
	}
	if blockH <= 0 {
		return nil, fmt.Errorf("motion: invalid block height %d", blockH)
	}
	if searchRange <= 0 {
		return nil, fmt.Errorf("motion: invalid search range %d", searchRange)
	}
	return &Searcher{
		sad:         sad,
		variance:    k.Variance(blockW),
		mse:         k.MSE(blockW),
		bidirMSE:    k.BidirMSE(blockW),
		blockW:      blockW,
		blockH:      blockH,
		searchRange: searchRange,
	}, nil
}

// BlockW returns the configured block width.
func (s *Searcher) BlockW() int { return s.blockW }

// BlockH returns the configured block height.
func (s *Searcher) BlockH() int { return s.blockH }

// PredictSpatial scores every block of an I frame by its variance and
// fills the result grids. Intra blocks carry no motion, the field only
// supplies the grid geometry.
func (s *Searcher) PredictSpatial(f *Field, pict *frame.Picture, mses []int, modes []Mode) Stats {
	var st Stats
	org := pict.LumaOrigin()
	for by := 0; by < f.rows; by++ {
		for bx := 0; bx < f.cols; bx++ {
			off := org + by*s.blockH*pict.Stride + bx*s.blockW
			v := s.variance(pict.Y[off:], pict.Stride, s.blockH)
			i := f.idx(bx, by)
			mses[i] = v
			modes[i] = ModeIntra
			st.CountI++
			st.Bits += intraBits(v)
			st.Error += v
		}
	}
	return st
}

// PredictTemporal runs the P-frame pass: motion search against one
// past reference with an intra fallback per block. On entry the field
// holds the previous anchor's vectors, which seed the collocated
// candidate; on return it holds the new ones.
func (s *Searcher) PredictTemporal(f *Field, pict, ref *frame.Picture, sads, mses []int, modes []Mode) Stats {
	var st Stats
	org := pict.LumaOrigin()
	n := s.blockW * s.blockH
	for by := 0; by < f.rows; by++ {
		y0 := by * s.blockH
		for bx := 0; bx < f.cols; bx++ {
			x0 := bx * s.blockW
			off := org + y0*pict.Stride + x0
			i := f.idx(bx, by)
			win := s.blockWindow(pict, x0, y0)

			cands := [...]Vector{
				{},                 // no motion
				f.spatialMedian(i), // neighbors updated this frame
				f.mvs[i],           // stale collocated vector
			}
			mv, sad := s.searchBlock(pict.Y, ref.Y, off, pict.Stride, win, cands[:])

			v := s.variance(pict.Y[off:], pict.Stride, s.blockH)
			choice := pickMode([]candidate{
				{mode: ModeForward, mv1: mv, sad1: sad, cost: sad * sad / n},
				{mode: ModeIntra, cost: v},
			})

			sads[i] = sad
			modes[i] = choice.mode
			if choice.mode == ModeForward {
				f.mvs[i] = mv
				refOff := off + int(mv.Y)*pict.Stride + int(mv.X)
				m := s.mse(pict.Y[off:], ref.Y[refOff:], pict.Stride, s.blockH)
				mses[i] = m
				st.Bits += mvBits(mv) + residualBits(sad)
				st.CountP++
				st.Error += m
			} else {
				f.mvs[i] = Vector{}
				mses[i] = v
				st.Bits += intraBits(v)
				st.CountI++
				st.Error += v
			}
		}
	}
	return st
}

// PredictBidirectional runs the B-frame pass against both anchors.
// pfield supplies collocated vectors from the anchor-to-anchor search;
// ffwd and fback receive the vectors toward the past and future
// reference. All candidate costs are squared-error so the four-way
// pick compares like with like.
func (s *Searcher) PredictBidirectional(ffwd, fback, pfield *Field, pict, fwd, back *frame.Picture, wt dsp.Weight, sads1, sads2, mses []int, modes []Mode) Stats {
	var st Stats
	org := pict.LumaOrigin()
	for by := 0; by < ffwd.rows; by++ {
		y0 := by * s.blockH
		for bx := 0; bx < ffwd.cols; bx++ {
			x0 := bx * s.blockW
			off := org + y0*pict.Stride + x0
			i := ffwd.idx(bx, by)
			win := s.blockWindow(pict, x0, y0)

			col := pfield.mvs[i]
			fc := [...]Vector{{}, ffwd.spatialMedian(i), col}
			mv1, sad1 := s.searchBlock(pict.Y, fwd.Y, off, pict.Stride, win, fc[:])

			bc := [...]Vector{{}, fback.spatialMedian(i), {X: -col.X, Y: -col.Y}}
			mv2, sad2 := s.searchBlock(pict.Y, back.Y, off, pict.Stride, win, bc[:])

			ffwd.mvs[i] = mv1
			fback.mvs[i] = mv2
			sads1[i] = sad1
			sads2[i] = sad2

			o1 := off + int(mv1.Y)*pict.Stride + int(mv1.X)
			o2 := off + int(mv2.Y)*pict.Stride + int(mv2.X)
			fm := s.mse(pict.Y[off:], fwd.Y[o1:], pict.Stride, s.blockH)
			bm := s.mse(pict.Y[off:], back.Y[o2:], pict.Stride, s.blockH)
			bi := s.bidirMSE(pict.Y[off:], fwd.Y[o1:], back.Y[o2:], pict.Stride, s.blockH, wt)
			v := s.variance(pict.Y[off:], pict.Stride, s.blockH)

			choice := pickMode([]candidate{
				{mode: ModeForward, mv1: mv1, sad1: sad1, cost: fm},
				{mode: ModeBackward, mv2: mv2, sad2: sad2, cost: bm},
				{mode: ModeBidir, mv1: mv1, mv2: mv2, sad1: sad1, sad2: sad2, cost: bi},
				{mode: ModeIntra, cost: v},
			})

			modes[i] = choice.mode
			mses[i] = choice.cost
			st.Error += choice.cost
			switch choice.mode {
			case ModeBidir:
				st.Bits += mvBits(mv1) + mvBits(mv2) + residualBits(min(sad1, sad2))
				st.CountB++
			case ModeForward:
				st.Bits += mvBits(mv1) + residualBits(sad1)
				st.CountP++
			case ModeBackward:
				st.Bits += mvBits(mv2) + residualBits(sad2)
				st.CountP++
			default:
				st.Bits += intraBits(v)
				st.CountI++
			}
		}
	}
	return st
}

// window bounds the displacement of one block so every read stays
// inside the padded plane.
type window struct {
	minX, maxX int
	minY, maxY int
}

func (s *Searcher) blockWindow(pict *frame.Picture, x0, y0 int) window {
	return window{
		minX: max(-s.searchRange, -(pict.PadX + x0)),
		maxX: min(s.searchRange, pict.W+pict.PadX-s.blockW-x0),
		minY: max(-s.searchRange, -(pict.PadY + y0)),
		maxY: min(s.searchRange, pict.H+pict.PadY-s.blockH-y0),
	}
}

func (w window) contains(x, y int) bool {
	return x >= w.minX && x <= w.maxX && y >= w.minY && y <= w.maxY
}

func (w window) clamp(v Vector) Vector {
	x, y := int(v.X), int(v.Y)
	if x < w.minX {
		x = w.minX
	} else if x > w.maxX {
		x = w.maxX
	}
	if y < w.minY {
		y = w.minY
	} else if y > w.maxY {
		y = w.maxY
	}
	return Vector{X: int16(x), Y: int16(y)}
}

var ringOffsets = [8]struct{ dx, dy int }{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// searchBlock finds the lowest-SAD displacement for the block at
// buffer offset off, seeded by the candidate vectors and refined by a
// ring that widens around the running best and recenters on every
// improvement.
func (s *Searcher) searchBlock(curr, ref []byte, off, stride int, win window, cands []Vector) (Vector, int) {
	best := win.clamp(cands[0])
	bestSAD := s.sad(curr[off:], ref[off+int(best.Y)*stride+int(best.X):], stride, s.blockH, dsp.MaxSAD)

	for _, c := range cands[1:] {
		c = win.clamp(c)
		if c == best {
			continue
		}
		sad := s.sad(curr[off:], ref[off+int(c.Y)*stride+int(c.X):], stride, s.blockH, bestSAD)
		if sad < bestSAD {
			best, bestSAD = c, sad
		}
	}

	for r := 1; r <= s.searchRange; {
		improved := false
		for _, d := range ringOffsets {
			x := int(best.X) + d.dx*r
			y := int(best.Y) + d.dy*r
			if !win.contains(x, y) {
				continue
			}
			sad := s.sad(curr[off:], ref[off+y*stride+x:], stride, s.blockH, bestSAD)
			if sad < bestSAD {
				best = Vector{X: int16(x), Y: int16(y)}
				bestSAD = sad
				improved = true
			}
		}
		if improved {
			r = 1
		} else {
			r++
		}
	}
	return best, bestSAD
}
