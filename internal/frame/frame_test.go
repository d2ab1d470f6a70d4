package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPictureGeometry(t *testing.T) {
	p := NewPicture(64, 48, 16, 8)

	assert.Equal(t, 96, p.Stride)
	assert.Equal(t, 48, p.CStride)
	assert.Len(t, p.Y, 96*64)
	assert.Len(t, p.U, 48*32)
	assert.Len(t, p.V, 48*32)
	assert.Equal(t, 8*96+16, p.LumaOrigin())
	assert.Equal(t, 4*48+8, p.ChromaOrigin())
}

func fillGradient(p *Picture) {
	org := p.LumaOrigin()
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			p.Y[org+y*p.Stride+x] = byte(1 + x + y*2)
		}
	}
}

func TestExtendConstantPicture(t *testing.T) {
	p := NewPicture(32, 16, 8, 8)
	org := p.LumaOrigin()
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			p.Y[org+y*p.Stride+x] = 77
		}
	}

	p.ExtendBorders()

	for i, v := range p.Y {
		require.Equal(t, byte(77), v, "luma byte %d", i)
	}
}

func TestExtendEdgesAndCorners(t *testing.T) {
	p := NewPicture(32, 16, 8, 8)
	fillGradient(p)
	p.ExtendBorders()

	org := p.LumaOrigin()

	// row padding repeats the row edge pixels
	for y := 0; y < p.H; y++ {
		ro := org + y*p.Stride
		for x := 1; x <= p.PadX; x++ {
			assert.Equal(t, p.Y[ro], p.Y[ro-x])
			assert.Equal(t, p.Y[ro+p.W-1], p.Y[ro+p.W-1+x])
		}
	}

	// column padding repeats the edge rows
	for x := 0; x < p.W; x++ {
		for y := 1; y <= p.PadY; y++ {
			assert.Equal(t, p.Y[org+x], p.Y[org+x-y*p.Stride])
			bo := org + (p.H-1)*p.Stride + x
			assert.Equal(t, p.Y[bo], p.Y[bo+y*p.Stride])
		}
	}

	// corners hold the nearest visible corner pixel
	assert.Equal(t, p.Y[org], p.Y[0])
	assert.Equal(t, p.Y[org+p.W-1], p.Y[p.Stride-1])
	assert.Equal(t, p.Y[org+(p.H-1)*p.Stride], p.Y[len(p.Y)-p.Stride])
	assert.Equal(t, p.Y[org+(p.H-1)*p.Stride+p.W-1], p.Y[len(p.Y)-1])
}

func TestExtendIdempotent(t *testing.T) {
	p := NewPicture(32, 16, 8, 8)
	fillGradient(p)

	p.ExtendBorders()
	first := make([]byte, len(p.Y))
	copy(first, p.Y)

	p.ExtendBorders()
	assert.Equal(t, first, p.Y)
}

func TestSwap(t *testing.T) {
	a := NewPicture(16, 16, 4, 4)
	b := NewPicture(16, 16, 4, 4)
	a.Y[a.LumaOrigin()] = 1
	b.Y[b.LumaOrigin()] = 2
	a.Pos = 10
	b.Pos = 20

	a.Swap(b)

	assert.Equal(t, byte(2), a.Y[a.LumaOrigin()])
	assert.Equal(t, byte(1), b.Y[b.LumaOrigin()])
	assert.Equal(t, 20, a.Pos)
	assert.Equal(t, 10, b.Pos)
}
