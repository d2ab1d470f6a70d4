// Package dsp provides the pixel kernels used by the motion search:
// sum of absolute differences, block variance, mean squared error and
// bidirectionally weighted MSE, each for block widths 16, 8 and 4.
//
// Kernel sets are built by constructors and passed around as values, so
// a reference (scalar) set and an optimized set can coexist and be
// compared against each other in tests.
package dsp

import "math"

// MaxSAD disables early termination when passed as the minSAD bound.
const MaxSAD = math.MaxInt32

// SADFunc computes the sum of absolute differences between two blocks.
// The slices start at the top-left pixel of each block and advance by
// stride per row. Once the running sum reaches minSAD the function may
// return early with any value >= minSAD.
type SADFunc func(curr, ref []byte, stride, h, minSAD int) int

// VarianceFunc computes the variance of a block, scaled by the pixel
// count: sum(x^2) - round(sum(x)^2 / n). The result is never negative.
type VarianceFunc func(blk []byte, stride, h int) int

// MSEFunc computes the sum of squared differences between two blocks,
// optionally compensated for the DC offset of the residual.
type MSEFunc func(curr, ref []byte, stride, h int) int

// BidirMSEFunc computes the sum of squared differences between a block
// and the weighted average of two reference blocks.
type BidirMSEFunc func(curr, ref1, ref2 []byte, stride, h int, w Weight) int

// Weight holds the Q15 interpolation pair for bidirectional prediction.
// Y scales the first (past) reference and X the second (future) one;
// the two always sum to 1<<15.
type Weight struct {
	Y int
	X int
}

// BidirWeights derives the Q15 weight pair from the display distances
// of a B frame to its past (d1) and future (d2) references. The nearer
// reference receives the larger weight. Equal or degenerate distances
// yield an equal split.
func BidirWeights(d1, d2 int) Weight {
	total := d1 + d2
	if total <= 0 {
		return Weight{Y: 1 << 14, X: 1 << 14}
	}
	y := (d2 << 15) / total
	return Weight{Y: y, X: 1<<15 - y}
}

// Kernels bundles one implementation of every block kernel. Callers
// hold a *Kernels and never dispatch through package globals.
type Kernels struct {
	SAD16 SADFunc
	SAD8  SADFunc
	SAD4  SADFunc

	Variance16 VarianceFunc
	Variance8  VarianceFunc
	Variance4  VarianceFunc

	MSE16 MSEFunc
	MSE8  MSEFunc
	MSE4  MSEFunc

	BidirMSE16 BidirMSEFunc
	BidirMSE8  BidirMSEFunc
	BidirMSE4  BidirMSEFunc
}

// Option configures kernel construction.
type Option func(*options)

type options struct {
	acCompensation bool
}

// WithACCompensation subtracts the DC term of the residual from MSE and
// bidirectional MSE results, leaving only the AC energy.
func WithACCompensation(on bool) Option {
	return func(o *options) {
		o.acCompensation = on
	}
}

// Scalar returns the reference kernel set: straightforward loops with
// no shortcuts beyond SAD early termination. It serves as the oracle
// the optimized set is verified against.
func Scalar(opts ...Option) *Kernels {
	o := applyOptions(opts)
	return &Kernels{
		SAD16: scalarSAD(16),
		SAD8:  scalarSAD(8),
		SAD4:  scalarSAD(4),

		Variance16: scalarVariance(16),
		Variance8:  scalarVariance(8),
		Variance4:  scalarVariance(4),

		MSE16: scalarMSE(16, o.acCompensation),
		MSE8:  scalarMSE(8, o.acCompensation),
		MSE4:  scalarMSE(4, o.acCompensation),

		BidirMSE16: scalarBidirMSE(16, o.acCompensation),
		BidirMSE8:  scalarBidirMSE(8, o.acCompensation),
		BidirMSE4:  scalarBidirMSE(4, o.acCompensation),
	}
}

// New returns the fastest kernel set available: SWAR absolute
// differences over packed 16-bit lanes and table-driven squares. Every
// function produces the same values as its Scalar counterpart.
func New(opts ...Option) *Kernels {
	o := applyOptions(opts)
	return &Kernels{
		SAD16: optSAD16,
		SAD8:  optSAD8,
		SAD4:  optSAD4,

		Variance16: optVariance(16),
		Variance8:  optVariance(8),
		Variance4:  optVariance(4),

		MSE16: optMSE(16, o.acCompensation),
		MSE8:  optMSE(8, o.acCompensation),
		MSE4:  optMSE(4, o.acCompensation),

		BidirMSE16: optBidirMSE(16, o.acCompensation),
		BidirMSE8:  optBidirMSE(8, o.acCompensation),
		BidirMSE4:  optBidirMSE(4, o.acCompensation),
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SAD selects the SAD kernel for a block width, or nil if unsupported.
func (k *Kernels) SAD(w int) SADFunc {
	switch w {
	case 16:
		return k.SAD16
	case 8:
		return k.SAD8
	case 4:
		return k.SAD4
	}
	return nil
}

// Variance selects the variance kernel for a block width.
func (k *Kernels) Variance(w int) VarianceFunc {
	switch w {
	case 16:
		return k.Variance16
	case 8:
		return k.Variance8
	case 4:
		return k.Variance4
	}
	return nil
}

// MSE selects the MSE kernel for a block width.
func (k *Kernels) MSE(w int) MSEFunc {
	switch w {
	case 16:
		return k.MSE16
	case 8:
		return k.MSE8
	case 4:
		return k.MSE4
	}
	return nil
}

// BidirMSE selects the bidirectional MSE kernel for a block width.
func (k *Kernels) BidirMSE(w int) BidirMSEFunc {
	switch w {
	case 16:
		return k.BidirMSE16
	case 8:
		return k.BidirMSE8
	case 4:
		return k.BidirMSE4
	}
	return nil
}

// acCorrection is the DC energy term round(sum^2 / n) removed from MSE
// results when AC compensation is enabled.
func acCorrection(sum, n int) int {
	return (sum*sum + n>>1) / n
}
