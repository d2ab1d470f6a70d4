package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// CSVWriter renders flat CSV rows: one per frame with the legacy column
// prefix plus normalized metric columns, or one per GOP.
type CSVWriter struct {
	detail       string
	scoreVersion string
}

var csvFrameHeader = []string{
	"picNum", "picType", "count_I", "count_P", "count_B", "error", "bits",
	"spatial", "motion", "residual", "error_mse", "unified",
}

var csvGOPHeader = []string{
	"gop", "frames", "total_bits", "avg_complexity", "i_frames", "p_frames", "b_frames",
}

// Write renders results as CSV.
func (cw *CSVWriter) Write(w io.Writer, results *models.AnalysisResults) error {
	out := csv.NewWriter(w)

	if cw.detail == DetailGOP {
		if err := out.Write(csvGOPHeader); err != nil {
			return err
		}
		for _, g := range results.GOPs {
			if err := out.Write(gopRow(g)); err != nil {
				return err
			}
		}
	} else {
		if err := out.Write(csvFrameHeader); err != nil {
			return err
		}
		for _, f := range results.Frames {
			if err := out.Write(cw.frameRow(f, results.Metadata)); err != nil {
				return err
			}
		}
	}

	out.Flush()
	return out.Error()
}

func (cw *CSVWriter) frameRow(f models.FrameRecord, meta models.VideoMetadata) []string {
	return []string{
		strconv.Itoa(f.FrameNum),
		string(f.Type),
		strconv.Itoa(f.CountIntra),
		strconv.Itoa(f.CountInterP),
		strconv.Itoa(f.CountInterB),
		strconv.FormatInt(f.Error, 10),
		strconv.FormatInt(f.EstimatedBits, 10),
		formatMetric(f.NormSpatial),
		formatMetric(f.NormMotion),
		formatMetric(f.NormResidual),
		formatMetric(errorMSE(f, meta)),
		formatMetric(unifiedScore(f, cw.scoreVersion)),
	}
}

func gopRow(g models.GOPRecord) []string {
	return []string{
		strconv.Itoa(g.GOPNum),
		strconv.Itoa(g.FrameCount()),
		strconv.FormatInt(g.TotalBits, 10),
		strconv.FormatFloat(g.AvgComplexity, 'f', 2, 64),
		strconv.Itoa(g.IFrameCount),
		strconv.Itoa(g.PFrameCount),
		strconv.Itoa(g.BFrameCount),
	}
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
