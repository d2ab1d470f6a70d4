package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// JSONWriter renders the metadata/gops hierarchy with two-space
// indentation. Frame entries are nested under their GOP when the detail
// level is frame.
type JSONWriter struct {
	detail       string
	scoreVersion string
}

type jsonReport struct {
	Metadata jsonMetadata `json:"metadata"`
	GOPs     []jsonGOP    `json:"gops"`
}

type jsonMetadata struct {
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	Frames            int    `json:"frames"`
	GOPSize           int    `json:"gop_size"`
	BFrames           int    `json:"bframes"`
	InputFormat       string `json:"input_format"`
	InputFilename     string `json:"input_filename"`
	AnalysisTimestamp string `json:"analysis_timestamp"`
	Version           string `json:"version"`
}

type jsonGOP struct {
	GOPNum        int         `json:"gop_num"`
	StartFrame    int         `json:"start_frame"`
	EndFrame      int         `json:"end_frame"`
	TotalBits     int64       `json:"total_bits"`
	AvgComplexity float64     `json:"avg_complexity"`
	IFrameCount   int         `json:"i_frame_count"`
	PFrameCount   int         `json:"p_frame_count"`
	BFrameCount   int         `json:"b_frame_count"`
	Frames        []jsonFrame `json:"frames,omitempty"`
}

type jsonFrame struct {
	FrameNum      int            `json:"frame_num"`
	Type          string         `json:"type"`
	Complexity    jsonComplexity `json:"complexity"`
	BlockModes    jsonBlockModes `json:"block_modes"`
	Error         int64          `json:"error"`
	EstimatedBits int64          `json:"estimated_bits"`
	MVStats       models.MVStats `json:"mv_stats"`
}

type jsonComplexity struct {
	Spatial  float64 `json:"spatial"`
	Motion   float64 `json:"motion"`
	Residual float64 `json:"residual"`
	ErrorMSE float64 `json:"error_mse"`
	Unified  float64 `json:"unified"`
}

type jsonBlockModes struct {
	Intra  int `json:"intra"`
	InterP int `json:"inter_p"`
	InterB int `json:"inter_b"`
}

// Write renders results as indented JSON.
func (jw *JSONWriter) Write(w io.Writer, results *models.AnalysisResults) error {
	doc := jsonReport{
		Metadata: jsonMetadata{
			Width:             results.Metadata.Width,
			Height:            results.Metadata.Height,
			Frames:            results.Metadata.TotalFrames,
			GOPSize:           results.Metadata.GOPSize,
			BFrames:           results.Metadata.BFrames,
			InputFormat:       results.Metadata.InputFormat,
			InputFilename:     results.Metadata.InputFilename,
			AnalysisTimestamp: formatTimestamp(results.Metadata.AnalysisTime),
			Version:           results.Metadata.Version,
		},
		GOPs: make([]jsonGOP, 0, len(results.GOPs)),
	}

	for _, g := range results.GOPs {
		gop := jsonGOP{
			GOPNum:        g.GOPNum,
			StartFrame:    g.StartFrame,
			EndFrame:      g.EndFrame,
			TotalBits:     g.TotalBits,
			AvgComplexity: g.AvgComplexity,
			IFrameCount:   g.IFrameCount,
			PFrameCount:   g.PFrameCount,
			BFrameCount:   g.BFrameCount,
		}
		if jw.detail == DetailFrame {
			for _, f := range g.Frames {
				gop.Frames = append(gop.Frames, jw.jsonFrame(f, results.Metadata))
			}
		}
		doc.GOPs = append(doc.GOPs, gop)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func (jw *JSONWriter) jsonFrame(f models.FrameRecord, meta models.VideoMetadata) jsonFrame {
	return jsonFrame{
		FrameNum: f.FrameNum,
		Type:     string(f.Type),
		Complexity: jsonComplexity{
			Spatial:  f.NormSpatial,
			Motion:   f.NormMotion,
			Residual: f.NormResidual,
			ErrorMSE: errorMSE(f, meta),
			Unified:  unifiedScore(f, jw.scoreVersion),
		},
		BlockModes: jsonBlockModes{
			Intra:  f.CountIntra,
			InterP: f.CountInterP,
			InterB: f.CountInterB,
		},
		Error:         f.Error,
		EstimatedBits: f.EstimatedBits,
		MVStats:       f.MVStats,
	}
}

// formatTimestamp renders an analysis time as UTC ISO-8601.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
