package dsp

// scalarSAD builds the reference SAD for one block width. The running
// sum is checked once per row against minSAD.
func scalarSAD(w int) SADFunc {
	return func(curr, ref []byte, stride, h, minSAD int) int {
		sad := 0
		co, ro := 0, 0
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				d := int(curr[co+x]) - int(ref[ro+x])
				if d < 0 {
					d = -d
				}
				sad += d
			}
			if sad >= minSAD {
				return sad
			}
			co += stride
			ro += stride
		}
		return sad
	}
}

func scalarVariance(w int) VarianceFunc {
	return func(blk []byte, stride, h int) int {
		sum, sum2 := 0, 0
		o := 0
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := int(blk[o+x])
				sum += v
				sum2 += v * v
			}
			o += stride
		}
		return sum2 - acCorrection(sum, w*h)
	}
}

func scalarMSE(w int, ac bool) MSEFunc {
	return func(curr, ref []byte, stride, h int) int {
		sum, sum2 := 0, 0
		co, ro := 0, 0
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				d := int(curr[co+x]) - int(ref[ro+x])
				sum += d
				sum2 += d * d
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

func scalarBidirMSE(w int, ac bool) BidirMSEFunc {
	return func(curr, ref1, ref2 []byte, stride, h int, wt Weight) int {
		sum, sum2 := 0, 0
		co, r1o, r2o := 0, 0, 0
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p := (int(ref1[r1o+x])*wt.Y + int(ref2[r2o+x])*wt.X + 1<<14) >> 15
				d := int(curr[co+x]) - p
				sum += d
				sum2 += d * d
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
