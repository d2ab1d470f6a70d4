package dsp

import "encoding/binary"

const (
	laneLow  = 0x00FF00FF00FF00FF
	laneOne  = 0x0001000100010001
	laneBias = 0x0100010001000100
)

// absDiffLanes returns per-lane |a-b| for four 16-bit lanes holding
// byte values. The bias keeps every intermediate non-negative so no
// borrow crosses a lane boundary.
func absDiffLanes(a, b uint64) uint64 {
	d := a + laneBias - b      // (a-b)+256 per lane, in [1,511]
	ge := (d >> 8) & laneOne   // 1 where a >= b
	m := (ge << 8) - ge        // 0x00FF where a >= b
	pos := d & m               // a-b on those lanes
	neg := laneBias - (d &^ m) // b-a on the rest, zero elsewhere
	return pos | neg
}

// sumLanes folds the four 16-bit lane accumulators into one integer.
// Valid while the true total stays below 1<<16.
func sumLanes(acc uint64) int {
	return int((acc + acc>>16 + acc>>32 + acc>>48) & 0xFFFF)
}

func sadRow16(curr, ref []byte) int {
	c0 := binary.LittleEndian.Uint64(curr)
	r0 := binary.LittleEndian.Uint64(ref)
	c1 := binary.LittleEndian.Uint64(curr[8:])
	r1 := binary.LittleEndian.Uint64(ref[8:])
	acc := absDiffLanes(c0&laneLow, r0&laneLow) +
		absDiffLanes(c0>>8&laneLow, r0>>8&laneLow) +
		absDiffLanes(c1&laneLow, r1&laneLow) +
		absDiffLanes(c1>>8&laneLow, r1>>8&laneLow)
	return sumLanes(acc)
}

func sadRow8(curr, ref []byte) int {
	c := binary.LittleEndian.Uint64(curr)
	r := binary.LittleEndian.Uint64(ref)
	acc := absDiffLanes(c&laneLow, r&laneLow) +
		absDiffLanes(c>>8&laneLow, r>>8&laneLow)
	return sumLanes(acc)
}

func sadRow4(curr, ref []byte) int {
	c := uint64(binary.LittleEndian.Uint32(curr))
	r := uint64(binary.LittleEndian.Uint32(ref))
	acc := absDiffLanes(c&laneLow, r&laneLow) +
		absDiffLanes(c>>8&laneLow, r>>8&laneLow)
	return sumLanes(acc)
}

func optSAD16(curr, ref []byte, stride, h, minSAD int) int {
	sad := 0
	co, ro := 0, 0
	for y := 0; y < h; y++ {
		sad += sadRow16(curr[co:co+16], ref[ro:ro+16])
		if sad >= minSAD {
			return sad
		}
		co += stride
		ro += stride
	}
	return sad
}

func optSAD8(curr, ref []byte, stride, h, minSAD int) int {
	sad := 0
	co, ro := 0, 0
	for y := 0; y < h; y++ {
		sad += sadRow8(curr[co:co+8], ref[ro:ro+8])
		if sad >= minSAD {
			return sad
		}
		co += stride
		ro += stride
	}
	return sad
}

func optSAD4(curr, ref []byte, stride, h, minSAD int) int {
	sad := 0
	co, ro := 0, 0
	for y := 0; y < h; y++ {
		sad += sadRow4(curr[co:co+4], ref[ro:ro+4])
		if sad >= minSAD {
			return sad
		}
		co += stride
		ro += stride
	}
	return sad
}

var (
	sqTab     [256]int
	sqDiffTab [511]int
)

func init() {
	for i := range sqTab {
		sqTab[i] = i * i
	}
	for i := range sqDiffTab {
		d := i - 255
		sqDiffTab[i] = d * d
	}
}

func optVariance(w int) VarianceFunc {
	return func(blk []byte, stride, h int) int {
		sum, sum2 := 0, 0
		o := 0
		for y := 0; y < h; y++ {
			for _, v := range blk[o : o+w] {
				sum += int(v)
				sum2 += sqTab[v]
			}
			o += stride
		}
		return sum2 - acCorrection(sum, w*h)
	}
}

func optMSE(w int, ac bool) MSEFunc {
	return func(curr, ref []byte, stride, h int) int {
		sum, sum2 := 0, 0
		co, ro := 0, 0
		for y := 0; y < h; y++ {
			r := ref[ro : ro+w]
			for x, v := range curr[co : co+w] {
				d := int(v) - int(r[x])
				sum += d
				sum2 += sqDiffTab[d+255]
			}
			co += stride
			ro += stride
		}
		if ac {
			sum2 -= acCorrection(sum, w*h)
		}
		return sum2
	}
}

func optBidirMSE(w int, ac bool) BidirMSEFunc {
	return func(curr, ref1, ref2 []byte, stride, h int, wt Weight) int {
		sum, sum2 := 0, 0
		co, r1o, r2o := 0, 0, 0
		for y := 0; y < h; y++ {
			a := ref1[r1o : r1o+w]
			b := ref2[r2o : r2o+w]
			for x, v := range curr[co : co+w] {
				p := (int(a[x])*wt.Y + int(b[x])*wt.X + 1<<14) >> 15
				d := int(v) - p
				sum += d
				sum2 += sqDiffTab[d+255]
			}
			co += stride
			r1o += stride
			r2o += stride
		}
		if ac {
			sum2 -= acCorrection(sum, w*h)
		}
		return sum2
	}
}
