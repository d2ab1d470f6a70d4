package reader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/frame"
)

// FFmpegReader decodes any FFmpeg-readable container by piping
// `ffmpeg -f rawvideo -pix_fmt yuv420p` output through the raw frame
// parser. Geometry comes from an ffprobe pass.
type FFmpegReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	br     *bufio.Reader
	w, h   int
	frames int
	eof    bool
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

// NewFFmpegReader probes path for geometry and starts a decode pipe.
func NewFFmpegReader(ctx context.Context, path string, opts Options) (*FFmpegReader, error) {
	stream, err := probeVideoStream(ctx, opts.ffprobePath(), path)
	if err != nil {
		return nil, err
	}
	if stream.Width <= 0 || stream.Height <= 0 {
		return nil, fmt.Errorf("ffprobe reported no video geometry for %s", path)
	}
	if stream.Width%2 != 0 || stream.Height%2 != 0 {
		return nil, fmt.Errorf("invalid video dimensions %dx%d: 4:2:0 requires even sizes", stream.Width, stream.Height)
	}

	r := &FFmpegReader{
		w:      stream.Width,
		h:      stream.Height,
		frames: estimateFrames(stream),
	}

	args := []string{
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-v", "error",
		"pipe:1",
	}
	r.cmd = exec.CommandContext(ctx, opts.ffmpegPath(), args...)
	r.cmd.Stderr = &r.stderr

	r.stdout, err = r.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := r.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	r.br = bufio.NewReaderSize(r.stdout, 1<<16)
	return r, nil
}

// probeVideoStream runs ffprobe and returns the first video stream.
func probeVideoStream(ctx context.Context, ffprobePath, path string) (*probeStream, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		path,
	}
	cmd := exec.CommandContext(ctx, ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}
	return parseProbeOutput(stdout.Bytes())
}

func parseProbeOutput(data []byte) (*probeStream, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	for i := range out.Streams {
		if out.Streams[i].CodecType == "video" {
			return &out.Streams[i], nil
		}
	}
	return nil, fmt.Errorf("no video stream found")
}

// estimateFrames derives a frame count from stream metadata: the exact
// nb_frames when the container records it, otherwise duration times the
// average frame rate, otherwise 0.
func estimateFrames(s *probeStream) int {
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		return n
	}

	duration, err := strconv.ParseFloat(s.Duration, 64)
	if err != nil || duration <= 0 {
		return 0
	}
	num, den, ok := splitRate(s.AvgFrameRate)
	if !ok || num <= 0 || den <= 0 {
		return 0
	}
	return int(duration * float64(num) / float64(den))
}

func splitRate(s string) (num, den int, ok bool) {
	ns, ds, found := strings.Cut(s, "/")
	if !found {
		return 0, 0, false
	}
	n, err := strconv.Atoi(ns)
	if err != nil {
		return 0, 0, false
	}
	d, err := strconv.Atoi(ds)
	if err != nil {
		return 0, 0, false
	}
	return n, d, true
}

// Dimensions returns the probed frame size.
func (r *FFmpegReader) Dimensions() (int, int) { return r.w, r.h }

// FrameCount returns the probed frame count, or 0 when the container
// does not record one.
func (r *FFmpegReader) FrameCount() int { return r.frames }

// Read fills p with the next decoded frame, returning io.EOF once the
// pipe drains.
func (r *FFmpegReader) Read(p *frame.Picture) error {
	if _, err := r.br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			r.eof = true
			return io.EOF
		}
		return err
	}
	return fillPicture(r.br, p, r.w, r.h)
}

// Close stops the decode process. Exit errors are surfaced only when the
// stream was read to the end; an abandoned pipe makes FFmpeg exit nonzero
// without any decode failure.
func (r *FFmpegReader) Close() error {
	if r.cmd == nil {
		return nil
	}
	r.stdout.Close()
	err := r.cmd.Wait()
	r.cmd = nil
	if err != nil && r.eof {
		return fmt.Errorf("ffmpeg exited with error: %w, stderr: %s", err, r.stderr.String())
	}
	return nil
}
