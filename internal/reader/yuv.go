package reader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/frame"
)

// YUVReader reads headerless planar 4:2:0 frames. The caller supplies
// the geometry, the frame count is derived from the file size.
type YUVReader struct {
	f      *os.File
	br     *bufio.Reader
	w, h   int
	frames int
}

// OpenYUV opens a raw 4:2:0 file with the given visible dimensions.
func OpenYUV(path string, w, h int) (*YUVReader, error) {
	if w <= 0 || h <= 0 || w%2 != 0 || h%2 != 0 {
		return nil, fmt.Errorf("invalid YUV dimensions %dx%d: must be positive and even", w, h)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open YUV input: %w", err)
	}

	r := &YUVReader{
		f:  f,
		br: bufio.NewReaderSize(f, 1<<16),
		w:  w,
		h:  h,
	}
	if fi, err := f.Stat(); err == nil && fi.Mode().IsRegular() {
		r.frames = int(fi.Size() / int64(frameSize(w, h)))
	}
	return r, nil
}

// Dimensions returns the configured frame size.
func (r *YUVReader) Dimensions() (int, int) { return r.w, r.h }

// FrameCount returns the number of whole frames in the file, or 0 for
// non-seekable input.
func (r *YUVReader) FrameCount() int { return r.frames }

// Read fills p with the next frame, returning io.EOF at end of file.
func (r *YUVReader) Read(p *frame.Picture) error {
	if _, err := r.br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return err
	}
	return fillPicture(r.br, p, r.w, r.h)
}

// Close releases the underlying file.
func (r *YUVReader) Close() error { return r.f.Close() }
