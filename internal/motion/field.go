// Package motion implements block motion estimation over padded
// pictures: bordered vector fields, candidate prediction, the
// widening ring search and the per-block mode decision for P and B
// frames.
package motion

// Vector is a block displacement in pixels.
type Vector struct {
	X int16
	Y int16
}

// IsZero reports whether the vector has no displacement.
func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// Field is the bordered motion vector grid of one picture: one cell
// per block plus a one-cell ring so predictors can read neighbors
// without bounds checks. Ring cells stay zero between resets.
type Field struct {
	cols     int
	rows     int
	strideMB int
	mvs      []Vector
}

// NewField sizes a grid for the visible picture area. The column count
// floors and the row count ceils, matching the analyzed block layout.
func NewField(w, h, blockW, blockH int) *Field {
	cols := w / blockW
	rows := (h + blockH - 1) / blockH
	f := &Field{
		cols:     cols,
		rows:     rows,
		strideMB: cols + 2,
	}
	f.mvs = make([]Vector, f.strideMB*(rows+2))
	return f
}

// Cols returns the visible grid width in blocks.
func (f *Field) Cols() int { return f.cols }

// Rows returns the visible grid height in blocks.
func (f *Field) Rows() int { return f.rows }

// StrideMB returns the bordered row stride in cells.
func (f *Field) StrideMB() int { return f.strideMB }

// Cells returns the total bordered cell count, the size result grids
// must match.
func (f *Field) Cells() int { return len(f.mvs) }

// FirstMB returns the index of the first visible cell.
func (f *Field) FirstMB() int { return f.strideMB + 1 }

// Reset zeroes every cell including the border ring.
func (f *Field) Reset() {
	for i := range f.mvs {
		f.mvs[i] = Vector{}
	}
}

// idx maps visible block coordinates to a bordered cell index.
func (f *Field) idx(bx, by int) int {
	return (by+1)*f.strideMB + bx + 1
}

// At returns the vector of a visible cell.
func (f *Field) At(bx, by int) Vector {
	return f.mvs[f.idx(bx, by)]
}

// spatialMedian predicts a cell from its left, top and top-right
// neighbors, component-wise. Ring cells act as zero candidates.
func (f *Field) spatialMedian(i int) Vector {
	l := f.mvs[i-1]
	t := f.mvs[i-f.strideMB]
	tr := f.mvs[i-f.strideMB+1]
	return Vector{
		X: med3(l.X, t.X, tr.X),
		Y: med3(l.Y, t.Y, tr.Y),
	}
}

// med3 is the component median, written as sum minus extremes.
func med3(a, b, c int16) int16 {
	mx, mn := a, a
	if b > mx {
		mx = b
	}
	if c > mx {
		mx = c
	}
	if b < mn {
		mn = b
	}
	if c < mn {
		mn = c
	}
	return a + b + c - mx - mn
}
