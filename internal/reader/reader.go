// Package reader provides frame sources that decode video input into
// planar 4:2:0 pictures for analysis.
package reader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/frame"
)

// Source supplies decoded 4:2:0 frames in display order.
type Source interface {
	// Dimensions returns the visible frame size in pixels.
	Dimensions() (width, height int)
	// FrameCount returns the number of frames in the stream, or 0 when
	// the count cannot be determined up front.
	FrameCount() int
	// Read fills the visible region of p with the next frame and
	// returns io.EOF once the stream is exhausted.
	Read(p *frame.Picture) error
	Close() error
}

// Options configure reader selection.
type Options struct {
	// Width and Height are required for raw .yuv input, which carries
	// no geometry of its own.
	Width  int
	Height int
	// UseFFmpeg forces FFmpeg decoding regardless of file extension.
	UseFFmpeg bool
	// FFmpegPath and FFprobePath override the binaries resolved from
	// PATH.
	FFmpegPath  string
	FFprobePath string
}

func (o Options) ffmpegPath() string {
	if o.FFmpegPath != "" {
		return o.FFmpegPath
	}
	return "ffmpeg"
}

func (o Options) ffprobePath() string {
	if o.FFprobePath != "" {
		return o.FFprobePath
	}
	return "ffprobe"
}

// Open selects a reader for path by extension: .y4m and .yuv open native
// parsers, anything else is handed to FFmpeg.
func Open(ctx context.Context, path string, opts Options) (Source, error) {
	if opts.UseFFmpeg {
		return NewFFmpegReader(ctx, path, opts)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".y4m":
		return OpenY4M(path)
	case ".yuv":
		if opts.Width <= 0 || opts.Height <= 0 {
			return nil, fmt.Errorf("raw YUV input %s requires explicit width and height", path)
		}
		return OpenYUV(path, opts.Width, opts.Height)
	default:
		return NewFFmpegReader(ctx, path, opts)
	}
}

// FormatForPath names the input format recorded in report metadata.
func FormatForPath(path string, opts Options) string {
	if opts.UseFFmpeg {
		return "ffmpeg"
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".y4m":
		return "y4m"
	case ".yuv":
		return "yuv"
	default:
		return "ffmpeg"
	}
}

// frameSize returns the byte size of one planar 4:2:0 frame.
func frameSize(w, h int) int {
	return w*h + 2*((w/2)*(h/2))
}

// fillPicture reads one planar 4:2:0 frame into the visible region of p.
// Any short read is an error; callers detect clean end of stream before
// committing to a frame.
func fillPicture(r *bufio.Reader, p *frame.Picture, w, h int) error {
	org := p.LumaOrigin()
	for y := 0; y < h; y++ {
		row := p.Y[org+y*p.Stride : org+y*p.Stride+w]
		if _, err := io.ReadFull(r, row); err != nil {
			return fmt.Errorf("truncated luma plane: %w", short(err))
		}
	}

	cw, ch := w/2, h/2
	corg := p.ChromaOrigin()
	for _, plane := range [][]byte{p.U, p.V} {
		for y := 0; y < ch; y++ {
			row := plane[corg+y*p.CStride : corg+y*p.CStride+cw]
			if _, err := io.ReadFull(r, row); err != nil {
				return fmt.Errorf("truncated chroma plane: %w", short(err))
			}
		}
	}
	return nil
}

// short normalizes a clean EOF mid-frame to ErrUnexpectedEOF so it is
// never mistaken for end of stream.
func short(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
