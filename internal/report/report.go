// Package report converts frame records into analysis reports and
// renders them as CSV, JSON or XML.
package report

import (
	"fmt"
	"io"

	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// Output format names
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatXML  = "xml"
)

// Detail levels
const (
	DetailFrame = "frame"
	DetailGOP   = "gop"
)

// Writer renders analysis results in one output format.
type Writer interface {
	Write(w io.Writer, results *models.AnalysisResults) error
}

// New returns a writer for the given format and detail level.
func New(format, detail, scoreVersion string) (Writer, error) {
	if detail != DetailFrame && detail != DetailGOP {
		return nil, fmt.Errorf("unknown detail level: %s. Valid levels: frame, gop", detail)
	}
	if err := validateScoreVersion(scoreVersion); err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		return &CSVWriter{detail: detail, scoreVersion: scoreVersion}, nil
	case FormatJSON:
		return &JSONWriter{detail: detail, scoreVersion: scoreVersion}, nil
	case FormatXML:
		return &XMLWriter{detail: detail, scoreVersion: scoreVersion}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s. Valid formats: csv, json, xml", format)
	}
}

func validateScoreVersion(v string) error {
	if v != models.ScoreVersionV1 && v != models.ScoreVersionV2 {
		return fmt.Errorf("unknown score version: %s. Valid versions: v1, v2", v)
	}
	return nil
}

// unifiedScore selects the unified complexity for the configured score
// version.
func unifiedScore(f models.FrameRecord, version string) float64 {
	if version == models.ScoreVersionV1 {
		return f.UnifiedV1
	}
	return f.UnifiedV2
}

// errorMSE is the reconstruction error averaged over the frame pixels.
func errorMSE(f models.FrameRecord, meta models.VideoMetadata) float64 {
	pixels := meta.Width * meta.Height
	if pixels == 0 {
		return 0
	}
	return float64(f.Error) / float64(pixels)
}
