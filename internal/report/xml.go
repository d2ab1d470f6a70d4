package report

import (
	"encoding/xml"
	"io"

	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// XMLWriter renders a motion_analysis document mirroring the JSON
// hierarchy, with scalar values as attributes.
type XMLWriter struct {
	detail       string
	scoreVersion string
}

type xmlAnalysis struct {
	XMLName  xml.Name    `xml:"motion_analysis"`
	Version  string      `xml:"version,attr"`
	Metadata xmlMetadata `xml:"metadata"`
	GOPs     xmlGOPList  `xml:"gops"`
}

type xmlMetadata struct {
	Video     xmlVideo    `xml:"video"`
	Encoding  xmlEncoding `xml:"encoding"`
	Input     xmlInput    `xml:"input"`
	Timestamp string      `xml:"timestamp"`
}

type xmlVideo struct {
	Width  int `xml:"width,attr"`
	Height int `xml:"height,attr"`
	Frames int `xml:"frames,attr"`
}

type xmlEncoding struct {
	GOPSize int `xml:"gop_size,attr"`
	BFrames int `xml:"bframes,attr"`
}

type xmlInput struct {
	Format   string `xml:"format,attr"`
	Filename string `xml:"filename,attr"`
}

type xmlGOPList struct {
	GOPs []xmlGOP `xml:"gop"`
}

type xmlGOP struct {
	Num           int        `xml:"num,attr"`
	Start         int        `xml:"start,attr"`
	End           int        `xml:"end,attr"`
	TotalBits     int64      `xml:"total_bits,attr"`
	AvgComplexity float64    `xml:"avg_complexity,attr"`
	IFrames       int        `xml:"i_frames,attr"`
	PFrames       int        `xml:"p_frames,attr"`
	BFrames       int        `xml:"b_frames,attr"`
	Frames        []xmlFrame `xml:"frame"`
}

type xmlFrame struct {
	Num        int           `xml:"num,attr"`
	Type       string        `xml:"type,attr"`
	Complexity xmlComplexity `xml:"complexity"`
	BlockModes xmlBlockModes `xml:"block_modes"`
	Error      xmlError      `xml:"error"`
	Bits       xmlBits       `xml:"bits"`
	MVStats    xmlMVStats    `xml:"mv_stats"`
}

type xmlComplexity struct {
	Spatial  float64 `xml:"spatial,attr"`
	Motion   float64 `xml:"motion,attr"`
	Residual float64 `xml:"residual,attr"`
	ErrorMSE float64 `xml:"error_mse,attr"`
	Unified  float64 `xml:"unified,attr"`
}

type xmlBlockModes struct {
	Intra  int `xml:"intra,attr"`
	InterP int `xml:"inter_p,attr"`
	InterB int `xml:"inter_b,attr"`
}

type xmlError struct {
	Value int64 `xml:"value,attr"`
}

type xmlBits struct {
	Estimated int64 `xml:"estimated,attr"`
}

type xmlMVStats struct {
	MeanMagnitude float64 `xml:"mean_magnitude,attr"`
	MaxMagnitude  float64 `xml:"max_magnitude,attr"`
	ZeroCount     int     `xml:"zero_count,attr"`
	TotalCount    int     `xml:"total_count,attr"`
}

// Write renders results as indented XML with a standard declaration.
func (xw *XMLWriter) Write(w io.Writer, results *models.AnalysisResults) error {
	doc := xmlAnalysis{
		Version: results.Metadata.Version,
		Metadata: xmlMetadata{
			Video: xmlVideo{
				Width:  results.Metadata.Width,
				Height: results.Metadata.Height,
				Frames: results.Metadata.TotalFrames,
			},
			Encoding: xmlEncoding{
				GOPSize: results.Metadata.GOPSize,
				BFrames: results.Metadata.BFrames,
			},
			Input: xmlInput{
				Format:   results.Metadata.InputFormat,
				Filename: results.Metadata.InputFilename,
			},
			Timestamp: formatTimestamp(results.Metadata.AnalysisTime),
		},
	}

	for _, g := range results.GOPs {
		gop := xmlGOP{
			Num:           g.GOPNum,
			Start:         g.StartFrame,
			End:           g.EndFrame,
			TotalBits:     g.TotalBits,
			AvgComplexity: g.AvgComplexity,
			IFrames:       g.IFrameCount,
			PFrames:       g.PFrameCount,
			BFrames:       g.BFrameCount,
		}
		if xw.detail == DetailFrame {
			for _, f := range g.Frames {
				gop.Frames = append(gop.Frames, xw.xmlFrame(f, results.Metadata))
			}
		}
		doc.GOPs.GOPs = append(doc.GOPs.GOPs, gop)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func (xw *XMLWriter) xmlFrame(f models.FrameRecord, meta models.VideoMetadata) xmlFrame {
	return xmlFrame{
		Num:  f.FrameNum,
		Type: string(f.Type),
		Complexity: xmlComplexity{
			Spatial:  f.NormSpatial,
			Motion:   f.NormMotion,
			Residual: f.NormResidual,
			ErrorMSE: errorMSE(f, meta),
			Unified:  unifiedScore(f, xw.scoreVersion),
		},
		BlockModes: xmlBlockModes{
			Intra:  f.CountIntra,
			InterP: f.CountInterP,
			InterB: f.CountInterB,
		},
		Error:   xmlError{Value: f.Error},
		Bits:    xmlBits{Estimated: f.EstimatedBits},
		MVStats: xmlMVStats{
			MeanMagnitude: f.MVStats.MeanMagnitude,
			MaxMagnitude:  f.MVStats.MaxMagnitude,
			ZeroCount:     f.MVStats.ZeroMVCount,
			TotalCount:    f.MVStats.TotalMVCount,
		},
	}
}
