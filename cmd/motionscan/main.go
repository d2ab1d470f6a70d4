// Command motionscan analyzes video complexity using motion estimation
// and spatial analysis. It simulates the I/P/B mode decisions of a
// block-based encoder over Y4M, raw YUV, or any FFmpeg-decodable input
// and writes per-frame or per-GOP complexity reports.
//
// Usage:
//
//	motionscan -input=<file> -output=<file> [options]
//	motionscan <input_file> <output_file>   (legacy syntax)
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/analyzer"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/config"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/logging"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/reader"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/report"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/score"
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintf(os.Stderr, "motionscan: %v\n", err)
		}
		os.Exit(1)
	}
}

// params holds the resolved run parameters after flag, legacy-alias and
// config-file merging.
type params struct {
	input        string
	output       string
	width        int
	height       int
	useFFmpeg    bool
	format       string
	detail       string
	scoreVersion string
	verbose      bool
	cfg          analyzer.Config
}

func parseArgs(args []string, stderr io.Writer) (*params, error) {
	fs := flag.NewFlagSet("motionscan", flag.ContinueOnError)
	fs.SetOutput(stderr)

	input := fs.String("input", "", "input video file path (required, or first positional argument)")
	output := fs.String("output", "", "output file path (required, '-' for stdout, or second positional argument)")
	width := fs.Int("width", 0, "video width in pixels (required for raw YUV input, ignored for Y4M)")
	height := fs.Int("height", 0, "video height in pixels (required for raw YUV input, ignored for Y4M)")
	frames := fs.Int("frames", 0, "number of frames to process (0 = all)")
	gopSize := fs.Int("gop_size", 150, "GOP size for the encoding simulation")
	bframes := fs.Int("bframes", 0, "number of consecutive B-frames")
	format := fs.String("format", report.FormatCSV, "output format: csv, json, xml")
	detail := fs.String("detail", report.DetailFrame, "detail level: frame, gop")
	useFFmpeg := fs.Bool("use_ffmpeg", false, "decode input with FFmpeg (MP4, MKV, AVI, WebM, ...)")
	scoreVersion := fs.String("complexity_score", models.ScoreVersionV2, "unified complexity score version: v1, v2")
	weightSpatial := fs.Float64("weight_spatial", score.DefaultWeights.Spatial, "spatial weight of the v2 score")
	weightMotion := fs.Float64("weight_motion", score.DefaultWeights.Motion, "motion weight of the v2 score")
	weightResidual := fs.Float64("weight_residual", score.DefaultWeights.Residual, "residual weight of the v2 score")
	weightError := fs.Float64("weight_error", score.DefaultWeights.Error, "error weight of the v2 score")
	acCompensation := fs.Bool("ac_compensation", false, "subtract the DC term from residual energies")
	trailing := fs.String("trailing", string(analyzer.TrailingDrop), "trailing sub-GOP policy at end of stream: drop, shrink")
	configPath := fs.String("config", "", "optional YAML config supplying analyzer defaults")
	verbose := fs.Bool("verbose", false, "log analysis progress to stderr")

	// Aliases kept from the classic tool syntax.
	legacyW := fs.Int("W", 0, "legacy alias for -width")
	legacyH := fs.Int("H", 0, "legacy alias for -height")
	legacyN := fs.Int("n", 0, "legacy alias for -frames")
	legacyG := fs.Int("g", 0, "legacy alias for -gop_size")
	legacyB := fs.Int("b", 0, "legacy alias for -bframes")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	mergeLegacy := func(dst *int, legacy int, primary, alias string) {
		if !set[alias] {
			return
		}
		if set[primary] && *dst != legacy {
			fmt.Fprintf(stderr, "Warning: both -%s and -%s specified, using -%s\n", alias, primary, primary)
			return
		}
		*dst = legacy
	}
	mergeLegacy(width, *legacyW, "width", "W")
	mergeLegacy(height, *legacyH, "height", "H")
	mergeLegacy(frames, *legacyN, "frames", "n")
	mergeLegacy(gopSize, *legacyG, "gop_size", "g")
	mergeLegacy(bframes, *legacyB, "bframes", "b")

	p := &params{
		input:        *input,
		output:       *output,
		width:        *width,
		height:       *height,
		useFFmpeg:    *useFFmpeg,
		format:       *format,
		detail:       *detail,
		scoreVersion: *scoreVersion,
		verbose:      *verbose,
		cfg: analyzer.Config{
			GOPSize:        *gopSize,
			BFrames:        *bframes,
			NumFrames:      *frames,
			SearchRange:    analyzer.DefaultConfig().SearchRange,
			ACCompensation: *acCompensation,
			Weights: score.Weights{
				Spatial:  *weightSpatial,
				Motion:   *weightMotion,
				Residual: *weightResidual,
				Error:    *weightError,
			},
			Trailing: analyzer.TrailingPolicy(*trailing),
		},
	}

	// Positional input/output keep working; explicit flags win.
	if fs.NArg() >= 1 && p.input == "" {
		p.input = fs.Arg(0)
	}
	if fs.NArg() >= 2 && p.output == "" {
		p.output = fs.Arg(1)
	}

	if *configPath != "" {
		if err := p.applyConfigFile(*configPath, set); err != nil {
			return nil, err
		}
	}

	if p.input == "" {
		return nil, fmt.Errorf("input file is required: use -input=<file> or the first positional argument")
	}
	if p.output == "" {
		return nil, fmt.Errorf("output file is required: use -output=<file> ('-' for stdout) or the second positional argument")
	}
	return p, nil
}

// applyConfigFile fills parameters from the analyzer section of a YAML
// config file. Flags given explicitly on the command line keep their
// value.
func (p *params) applyConfigFile(path string, set map[string]bool) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	a := cfg.Analyzer

	if !set["gop_size"] && !set["g"] && a.GOPSize > 0 {
		p.cfg.GOPSize = a.GOPSize
	}
	if !set["bframes"] && !set["b"] {
		p.cfg.BFrames = a.BFrames
	}
	if !set["frames"] && !set["n"] {
		p.cfg.NumFrames = a.NumFrames
	}
	if a.SearchRange > 0 {
		p.cfg.SearchRange = a.SearchRange
	}
	if !set["ac_compensation"] {
		p.cfg.ACCompensation = a.ACCompensation
	}
	if !set["trailing"] && a.Trailing != "" {
		p.cfg.Trailing = analyzer.TrailingPolicy(a.Trailing)
	}
	if !set["weight_spatial"] && !set["weight_motion"] && !set["weight_residual"] && !set["weight_error"] && a.Weights.Sum() > 0 {
		p.cfg.Weights = a.Weights
	}
	if !set["complexity_score"] && a.ScoreVersion != "" {
		p.scoreVersion = a.ScoreVersion
	}
	if !set["format"] && a.Format != "" {
		p.format = a.Format
	}
	if !set["detail"] && a.Detail != "" {
		p.detail = a.Detail
	}
	return nil
}

func run(args []string, stdout, stderr io.Writer) error {
	p, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}

	// Writer construction validates format, detail and score version
	// before any frame is touched.
	w, err := report.New(p.format, p.detail, p.scoreVersion)
	if err != nil {
		return err
	}

	level := "warn"
	if p.verbose {
		level = "debug"
	}
	log, err := logging.NewLogger(logging.Config{Level: level, Format: "console", Output: "stderr"})
	if err != nil {
		return err
	}

	ctx := context.Background()
	opts := reader.Options{Width: p.width, Height: p.height, UseFFmpeg: p.useFFmpeg}
	src, err := reader.Open(ctx, p.input, opts)
	if err != nil {
		return err
	}
	defer src.Close()

	a, err := analyzer.New(src, p.cfg, log)
	if err != nil {
		return err
	}

	begin := time.Now()
	records, err := a.Run()
	if err != nil {
		return err
	}
	elapsed := time.Since(begin)

	width, height := src.Dimensions()
	fmt.Fprintf(stderr, "Input file: '%s'\n", p.input)
	fmt.Fprintf(stderr, "width: %d\n", width)
	fmt.Fprintf(stderr, "height: %d\n", height)
	fmt.Fprintf(stderr, "Complexity score version: %s\n", p.scoreVersion)
	fmt.Fprintf(stderr, "Weights: spatial=%g, motion=%g, residual=%g, error=%g\n",
		p.cfg.Weights.Spatial, p.cfg.Weights.Motion, p.cfg.Weights.Residual, p.cfg.Weights.Error)

	meta := models.VideoMetadata{
		Width:         width,
		Height:        height,
		GOPSize:       p.cfg.GOPSize,
		BFrames:       p.cfg.BFrames,
		InputFormat:   reader.FormatForPath(p.input, opts),
		InputFilename: p.input,
		AnalysisTime:  time.Now().UTC(),
		Version:       models.AnalysisVersion,
	}
	results := report.Convert(records, meta, p.scoreVersion)

	out := stdout
	if p.output != "-" {
		f, err := os.Create(p.output)
		if err != nil {
			return fmt.Errorf("can't open output file %s: %w", p.output, err)
		}
		defer f.Close()
		out = f
	}
	if err := w.Write(out, results); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	fmt.Fprintf(stderr, "Execution time: %.2f msec\n", float64(elapsed.Microseconds())/1000.0)
	return nil
}
