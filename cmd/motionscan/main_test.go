package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/analyzer"
)

func TestParseArgsDefaults(t *testing.T) {
	var stderr bytes.Buffer
	p, err := parseArgs([]string{"-input=clip.y4m", "-output=-"}, &stderr)
	require.NoError(t, err)

	assert.Equal(t, "clip.y4m", p.input)
	assert.Equal(t, "-", p.output)
	assert.Equal(t, 150, p.cfg.GOPSize)
	assert.Zero(t, p.cfg.BFrames)
	assert.Zero(t, p.cfg.NumFrames)
	assert.Equal(t, "csv", p.format)
	assert.Equal(t, "frame", p.detail)
	assert.Equal(t, "v2", p.scoreVersion)
	assert.Equal(t, analyzer.TrailingDrop, p.cfg.Trailing)
	assert.InDelta(t, 1.0, p.cfg.Weights.Sum(), 1e-9)
}

func TestParseArgsPositional(t *testing.T) {
	var stderr bytes.Buffer
	p, err := parseArgs([]string{"clip.y4m", "out.csv"}, &stderr)
	require.NoError(t, err)

	assert.Equal(t, "clip.y4m", p.input)
	assert.Equal(t, "out.csv", p.output)
}

func TestParseArgsExplicitFlagsBeatPositional(t *testing.T) {
	var stderr bytes.Buffer
	p, err := parseArgs([]string{"-input=real.y4m", "-output=real.csv", "ignored.y4m", "ignored.csv"}, &stderr)
	require.NoError(t, err)

	assert.Equal(t, "real.y4m", p.input)
	assert.Equal(t, "real.csv", p.output)
}

func TestParseArgsLegacyAliases(t *testing.T) {
	var stderr bytes.Buffer
	p, err := parseArgs([]string{"-W=640", "-H=480", "-n=10", "-g=60", "-b=2", "clip.yuv", "out.csv"}, &stderr)
	require.NoError(t, err)

	assert.Equal(t, 640, p.width)
	assert.Equal(t, 480, p.height)
	assert.Equal(t, 10, p.cfg.NumFrames)
	assert.Equal(t, 60, p.cfg.GOPSize)
	assert.Equal(t, 2, p.cfg.BFrames)
	assert.Empty(t, stderr.String())
}

func TestParseArgsLegacyConflictWarns(t *testing.T) {
	var stderr bytes.Buffer
	p, err := parseArgs([]string{"-width=1920", "-W=640", "clip.yuv", "out.csv"}, &stderr)
	require.NoError(t, err)

	assert.Equal(t, 1920, p.width)
	assert.Contains(t, stderr.String(), "using -width")
}

func TestParseArgsRequiresInputAndOutput(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseArgs(nil, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input file is required")

	_, err = parseArgs([]string{"-input=clip.y4m"}, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output file is required")
}

func TestParseArgsConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
analyzer:
  gopSize: 30
  bframes: 2
  searchRange: 32
  trailing: shrink
  scoreVersion: v1
  format: json
  detail: gop
  weights:
    spatial: 0.4
    motion: 0.3
    residual: 0.2
    error: 0.1
`), 0o644))

	var stderr bytes.Buffer
	p, err := parseArgs([]string{"-config=" + configPath, "-format=xml", "clip.y4m", "out.xml"}, &stderr)
	require.NoError(t, err)

	assert.Equal(t, 30, p.cfg.GOPSize)
	assert.Equal(t, 2, p.cfg.BFrames)
	assert.Equal(t, 32, p.cfg.SearchRange)
	assert.Equal(t, analyzer.TrailingShrink, p.cfg.Trailing)
	assert.Equal(t, "v1", p.scoreVersion)
	assert.Equal(t, "gop", p.detail)
	assert.Equal(t, 0.4, p.cfg.Weights.Spatial)
	// The explicit flag beats the file.
	assert.Equal(t, "xml", p.format)
}

func TestRunRejectsBadParameters(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "unknown format",
			args:    []string{"-format=yaml", "clip.y4m", "out.yaml"},
			wantErr: "unknown output format",
		},
		{
			name:    "unknown detail",
			args:    []string{"-detail=block", "clip.y4m", "out.csv"},
			wantErr: "unknown detail level",
		},
		{
			name:    "unknown score version",
			args:    []string{"-complexity_score=v3", "clip.y4m", "out.csv"},
			wantErr: "unknown score version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(tt.args, &stdout, &stderr)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// writeTestY4M renders a small Y4M sequence with a moving gradient so
// the analysis has real structure to chew on.
func writeTestY4M(t *testing.T, w, h, frames int) string {
	t.Helper()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "YUV4MPEG2 W%d H%d F25:1 Ip A1:1 C420\n", w, h)
	for i := 0; i < frames; i++ {
		buf.WriteString("FRAME\n")
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				buf.WriteByte(byte((x*3 + y*5 + i*7) & 0xff))
			}
		}
		chroma := (w / 2) * (h / 2)
		buf.Write(bytes.Repeat([]byte{128}, 2*chroma))
	}

	path := filepath.Join(t.TempDir(), "input.y4m")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestRunEndToEndCSV(t *testing.T) {
	input := writeTestY4M(t, 32, 32, 5)
	output := filepath.Join(t.TempDir(), "out.csv")

	var stdout, stderr bytes.Buffer
	err := run([]string{"-input=" + input, "-output=" + output, "-gop_size=4", "-bframes=1"}, &stdout, &stderr)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 6, "header plus five frame rows")
	assert.True(t, strings.HasPrefix(lines[0], "picNum,picType,"))
	assert.True(t, strings.HasPrefix(lines[1], "0,I,"))

	assert.Contains(t, stderr.String(), "width: 32")
	assert.Contains(t, stderr.String(), "Execution time:")
	assert.Empty(t, stdout.String())
}

func TestRunEndToEndStdout(t *testing.T) {
	input := writeTestY4M(t, 32, 32, 3)

	var stdout, stderr bytes.Buffer
	err := run([]string{"-input=" + input, "-output=-", "-format=json", "-detail=gop"}, &stdout, &stderr)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "\"metadata\"")
	assert.Contains(t, stdout.String(), "\"gops\"")
}
