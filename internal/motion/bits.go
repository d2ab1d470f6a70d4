package motion

import "math/bits"

// egBits returns the exp-Golomb code length of a signed value, the
// usual cost model for motion vector components.
func egBits(v int) int {
	var k uint
	if v > 0 {
		k = uint(2*v - 1)
	} else {
		k = uint(-2 * v)
	}
	return 2*(bits.Len(k+1)-1) + 1
}

// mvBits estimates the bits needed to code a motion vector.
func mvBits(mv Vector) int {
	return egBits(int(mv.X)) + egBits(int(mv.Y))
}

// residualBits estimates the bits needed to code an inter residual,
// monotonic in its SAD.
func residualBits(sad int) int {
	return 4 * bits.Len(uint(sad))
}

// intraBits estimates the bits needed to code an intra block,
// monotonic in its variance.
func intraBits(v int) int {
	return 8 + 6*bits.Len(uint(v))
}
