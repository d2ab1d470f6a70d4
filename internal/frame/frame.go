// Package frame holds padded YUV 4:2:0 pictures and the border
// extension used to keep motion search reads in bounds.
package frame

// Picture is one padded planar 4:2:0 picture. The luma plane is
// Stride wide and H+2*PadY tall with the visible region offset by
// (PadX, PadY); chroma planes carry half the padding in each
// direction. Pos is the display index assigned by the reader loop.
type Picture struct {
	W       int
	H       int
	Stride  int
	CStride int
	PadX    int
	PadY    int
	Pos     int

	Y []byte
	U []byte
	V []byte
}

// NewPicture allocates a zeroed picture for the given visible geometry.
// Width, height and paddings must be even.
func NewPicture(w, h, padX, padY int) *Picture {
	stride := w + 2*padX
	cstride := stride / 2
	return &Picture{
		W:       w,
		H:       h,
		Stride:  stride,
		CStride: cstride,
		PadX:    padX,
		PadY:    padY,
		Y:       make([]byte, stride*(h+2*padY)),
		U:       make([]byte, cstride*(h/2+padY)),
		V:       make([]byte, cstride*(h/2+padY)),
	}
}

// Luma returns the luma plane sliced to the top-left visible pixel.
// Rows advance by Stride; negative offsets into the padding are not
// reachable through this slice, use Y with LumaOrigin for those.
func (p *Picture) Luma() []byte {
	return p.Y[p.LumaOrigin():]
}

// LumaOrigin returns the index of the top-left visible pixel in Y.
func (p *Picture) LumaOrigin() int {
	return p.PadY*p.Stride + p.PadX
}

// ChromaOrigin returns the index of the top-left visible pixel in U/V.
func (p *Picture) ChromaOrigin() int {
	return p.PadY/2*p.CStride + p.PadX/2
}

// Swap exchanges the plane buffers and display position of two
// pictures of identical geometry, without copying pixels.
func (p *Picture) Swap(o *Picture) {
	p.Y, o.Y = o.Y, p.Y
	p.U, o.U = o.U, p.U
	p.V, o.V = o.V, p.V
	p.Pos, o.Pos = o.Pos, p.Pos
}

// ExtendBorders replicates the visible luma edges into the padding.
// Chroma is left untouched, the search reads luma only.
func (p *Picture) ExtendBorders() {
	Extend(p.Y, p.Stride, p.W, p.H, p.PadX, p.PadY)
}

// Extend replicates the edge pixels of the w x h visible region into
// the surrounding padding of a full padded plane. Horizontal padding
// repeats the row edge pixels, then whole extended rows are copied up
// and down, which leaves each corner filled with the nearest visible
// corner pixel. Calling it again is a no-op in effect.
func Extend(plane []byte, stride, w, h, padX, padY int) {
	org := padY*stride + padX

	for y := 0; y < h; y++ {
		ro := org + y*stride
		left := plane[ro]
		right := plane[ro+w-1]
		for x := 1; x <= padX; x++ {
			plane[ro-x] = left
			plane[ro+w-1+x] = right
		}
	}

	rowLen := w + 2*padX
	top := org - padX
	for y := 1; y <= padY; y++ {
		copy(plane[top-y*stride:top-y*stride+rowLen], plane[top:top+rowLen])
	}
	bot := org + (h-1)*stride - padX
	for y := 1; y <= padY; y++ {
		copy(plane[bot+y*stride:bot+y*stride+rowLen], plane[bot:bot+rowLen])
	}
}
