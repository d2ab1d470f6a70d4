package report

import (
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// Convert assembles complete analysis results from per-frame records:
// it fills in metadata, segments the frames into GOPs at I-frame
// boundaries and computes GOP aggregates. The GOP average complexity
// uses the unified score selected by scoreVersion.
func Convert(frames []models.FrameRecord, meta models.VideoMetadata, scoreVersion string) *models.AnalysisResults {
	meta.TotalFrames = len(frames)
	if meta.Version == "" {
		meta.Version = models.AnalysisVersion
	}

	return &models.AnalysisResults{
		Metadata: meta,
		GOPs:     segmentGOPs(frames, scoreVersion),
		Frames:   frames,
	}
}

// segmentGOPs splits display-ordered frames into GOPs. A GOP runs from
// one I-frame up to (not including) the next; leading non-I frames form
// a GOP of their own.
func segmentGOPs(frames []models.FrameRecord, scoreVersion string) []models.GOPRecord {
	if len(frames) == 0 {
		return nil
	}

	var gops []models.GOPRecord
	start := 0
	for i := 1; i <= len(frames); i++ {
		if i < len(frames) && frames[i].Type != models.FrameTypeI {
			continue
		}
		gops = append(gops, buildGOP(len(gops), frames[start:i], scoreVersion))
		start = i
	}
	return gops
}

func buildGOP(num int, frames []models.FrameRecord, scoreVersion string) models.GOPRecord {
	g := models.GOPRecord{
		GOPNum:     num,
		StartFrame: frames[0].FrameNum,
		EndFrame:   frames[len(frames)-1].FrameNum,
		Frames:     frames,
	}

	var sum float64
	for _, f := range frames {
		g.TotalBits += f.EstimatedBits
		sum += unifiedScore(f, scoreVersion)

		switch f.Type {
		case models.FrameTypeI:
			g.IFrameCount++
		case models.FrameTypeP:
			g.PFrameCount++
		case models.FrameTypeB:
			g.BFrameCount++
		}
	}
	g.AvgComplexity = sum / float64(len(frames))
	return g
}
