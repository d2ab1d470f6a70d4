package reader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/frame"
)

const y4mMagic = "YUV4MPEG2"

// y4mColorspaces lists the 4:2:0 subsampling variants the analyzer can
// consume. Other colorspaces would need a resampling pass.
var y4mColorspaces = map[string]bool{
	"420":      true,
	"420jpeg":  true,
	"420mpeg2": true,
	"420paldv": true,
}

// Y4MReader reads YUV4MPEG2 streams. The stream header carries the
// geometry, so no external configuration is needed.
type Y4MReader struct {
	f      *os.File
	br     *bufio.Reader
	w, h   int
	frames int

	// Stream header fields kept for report metadata.
	FPSNum, FPSDen       int
	AspectNum, AspectDen int
	Interlacing          string
	Colorspace           string
}

// OpenY4M opens a .y4m file and parses its stream header.
func OpenY4M(path string) (*Y4MReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Y4M input: %w", err)
	}

	br := bufio.NewReaderSize(f, 1<<16)
	header, err := br.ReadString('\n')
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read Y4M stream header: %w", err)
	}

	r := &Y4MReader{f: f, br: br, Colorspace: "420"}
	if err := r.parseHeader(strings.TrimSuffix(header, "\n")); err != nil {
		f.Close()
		return nil, err
	}

	if fi, err := f.Stat(); err == nil && fi.Mode().IsRegular() {
		payload := fi.Size() - int64(len(header))
		per := int64(len("FRAME\n") + frameSize(r.w, r.h))
		if payload > 0 {
			r.frames = int(payload / per)
		}
	}
	return r, nil
}

func (r *Y4MReader) parseHeader(header string) error {
	fields := strings.Fields(header)
	if len(fields) == 0 || fields[0] != y4mMagic {
		return fmt.Errorf("not a YUV4MPEG2 stream")
	}

	for _, tag := range fields[1:] {
		val := tag[1:]
		switch tag[0] {
		case 'W':
			w, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid Y4M width %q: %w", val, err)
			}
			r.w = w
		case 'H':
			h, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid Y4M height %q: %w", val, err)
			}
			r.h = h
		case 'F':
			if err := parseRatio(val, &r.FPSNum, &r.FPSDen); err != nil {
				return fmt.Errorf("invalid Y4M frame rate %q: %w", val, err)
			}
		case 'A':
			if err := parseRatio(val, &r.AspectNum, &r.AspectDen); err != nil {
				return fmt.Errorf("invalid Y4M aspect ratio %q: %w", val, err)
			}
		case 'I':
			r.Interlacing = val
		case 'C':
			if !y4mColorspaces[val] {
				return fmt.Errorf("unsupported Y4M colorspace C%s: only 4:2:0 input is supported", val)
			}
			r.Colorspace = val
		case 'X':
			// vendor extension, ignored
		default:
			// unknown tags are tolerated for forward compatibility
		}
	}

	if r.w <= 0 || r.h <= 0 {
		return fmt.Errorf("Y4M stream header missing frame dimensions")
	}
	if r.w%2 != 0 || r.h%2 != 0 {
		return fmt.Errorf("invalid Y4M dimensions %dx%d: 4:2:0 requires even sizes", r.w, r.h)
	}
	return nil
}

func parseRatio(s string, num, den *int) error {
	ns, ds, ok := strings.Cut(s, ":")
	if !ok {
		return fmt.Errorf("missing ':' separator")
	}
	n, err := strconv.Atoi(ns)
	if err != nil {
		return err
	}
	d, err := strconv.Atoi(ds)
	if err != nil {
		return err
	}
	*num, *den = n, d
	return nil
}

// Dimensions returns the frame size from the stream header.
func (r *Y4MReader) Dimensions() (int, int) { return r.w, r.h }

// FrameCount returns the frame count estimated from the file size, or 0
// for non-seekable input.
func (r *Y4MReader) FrameCount() int { return r.frames }

// Read consumes the next FRAME marker and fills p with its payload.
func (r *Y4MReader) Read(p *frame.Picture) error {
	line, err := r.br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line == "" {
			return io.EOF
		}
		return fmt.Errorf("failed to read Y4M frame header: %w", short(err))
	}

	marker := strings.TrimSuffix(line, "\n")
	if marker != "FRAME" && !strings.HasPrefix(marker, "FRAME ") {
		return fmt.Errorf("malformed Y4M frame header %q", marker)
	}

	if err := fillPicture(r.br, p, r.w, r.h); err != nil {
		return err
	}
	return nil
}

// Close releases the underlying file.
func (r *Y4MReader) Close() error { return r.f.Close() }
