package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// AnalysisVersion is the report schema version emitted in metadata
const AnalysisVersion = "2.0.0"

// FrameType identifies the coding decision for a frame
type FrameType string

// Frame type constants
const (
	FrameTypeI FrameType = "I"
	FrameTypeP FrameType = "P"
	FrameTypeB FrameType = "B"
)

// FrameRecord holds the per-frame analysis output in display order
type FrameRecord struct {
	FrameNum        int       `json:"frame_num" db:"frame_num"`
	Type            FrameType `json:"type" db:"frame_type"`
	CountIntra      int       `json:"count_intra" db:"count_intra"`
	CountInterP     int       `json:"count_inter_p" db:"count_inter_p"`
	CountInterB     int       `json:"count_inter_b" db:"count_inter_b"`
	EstimatedBits   int64     `json:"estimated_bits" db:"estimated_bits"`
	Error           int64     `json:"error" db:"error"`
	SpatialVariance float64   `json:"spatial_variance" db:"spatial_variance"`
	MotionMagnitude float64   `json:"motion_magnitude" db:"motion_magnitude"`
	ACEnergy        int64     `json:"ac_energy" db:"ac_energy"`
	BitsPerPixel    float64   `json:"bits_per_pixel" db:"bits_per_pixel"`
	NormSpatial     float64   `json:"norm_spatial" db:"norm_spatial"`
	NormMotion      float64   `json:"norm_motion" db:"norm_motion"`
	NormResidual    float64   `json:"norm_residual" db:"norm_residual"`
	NormError       float64   `json:"norm_error" db:"norm_error"`
	UnifiedV1       float64   `json:"unified_v1" db:"unified_v1"`
	UnifiedV2       float64   `json:"unified_v2" db:"unified_v2"`
	MVStats         MVStats   `json:"mv_stats" db:"mv_stats"`
}

// MVStats summarizes the motion vector field of a frame
type MVStats struct {
	MeanMagnitude float64 `json:"mean_magnitude"`
	MaxMagnitude  float64 `json:"max_magnitude"`
	ZeroMVCount   int     `json:"zero_mv_count"`
	TotalMVCount  int     `json:"total_mv_count"`
}

// Value implements driver.Valuer for database storage
func (s MVStats) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for database retrieval
func (s *MVStats) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, s)
}

// GOPRecord aggregates the frames of one group of pictures
type GOPRecord struct {
	GOPNum        int           `json:"gop_num" db:"gop_num"`
	StartFrame    int           `json:"start_frame" db:"start_frame"`
	EndFrame      int           `json:"end_frame" db:"end_frame"`
	TotalBits     int64         `json:"total_bits" db:"total_bits"`
	AvgComplexity float64       `json:"avg_complexity" db:"avg_complexity"`
	IFrameCount   int           `json:"i_frame_count" db:"i_frame_count"`
	PFrameCount   int           `json:"p_frame_count" db:"p_frame_count"`
	BFrameCount   int           `json:"b_frame_count" db:"b_frame_count"`
	Frames        []FrameRecord `json:"frames,omitempty" db:"-"`
}

// FrameCount returns the number of display frames the GOP spans
func (g GOPRecord) FrameCount() int {
	return g.EndFrame - g.StartFrame + 1
}

// VideoMetadata describes the analyzed sequence and run parameters
type VideoMetadata struct {
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	TotalFrames   int       `json:"total_frames"`
	GOPSize       int       `json:"gop_size"`
	BFrames       int       `json:"bframes"`
	InputFormat   string    `json:"input_format"`
	InputFilename string    `json:"input_filename"`
	AnalysisTime  time.Time `json:"analysis_time"`
	Version       string    `json:"version"`
}

// AnalysisResults is the complete output of one analysis run
type AnalysisResults struct {
	Metadata VideoMetadata `json:"metadata"`
	GOPs     []GOPRecord   `json:"gops"`
	Frames   []FrameRecord `json:"frames"`
}

// ComplexityWeights configures the unified score combination
type ComplexityWeights struct {
	Spatial  float64 `json:"spatial"`
	Motion   float64 `json:"motion"`
	Residual float64 `json:"residual"`
	Error    float64 `json:"error"`
}

// AnalysisConfig holds the analysis parameters for a job
type AnalysisConfig struct {
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	NumFrames      int               `json:"num_frames"`
	GOPSize        int               `json:"gop_size"`
	BFrames        int               `json:"bframes"`
	Format         string            `json:"format"`
	Detail         string            `json:"detail"`
	ScoreVersion   string            `json:"score_version"`
	ACCompensation bool              `json:"ac_compensation"`
	Weights        ComplexityWeights `json:"weights"`
}

// Value implements driver.Valuer for database storage
func (c AnalysisConfig) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for database retrieval
func (c *AnalysisConfig) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, c)
}

// Analysis represents an analysis request tracked in the system
type Analysis struct {
	ID            string         `json:"id" db:"id"`
	SourceKey     string         `json:"source_key" db:"source_key"`
	Status        string         `json:"status" db:"status"`
	Config        AnalysisConfig `json:"config" db:"config"`
	TotalFrames   int            `json:"total_frames" db:"total_frames"`
	TotalBits     int64          `json:"total_bits" db:"total_bits"`
	AvgComplexity float64        `json:"avg_complexity" db:"avg_complexity"`
	ReportKey     string         `json:"report_key,omitempty" db:"report_key"`
	ErrorMsg      string         `json:"error_msg,omitempty" db:"error_msg"`
	WorkerID      string         `json:"worker_id,omitempty" db:"worker_id"`
	RetryCount    int            `json:"retry_count" db:"retry_count"`
	StartedAt     *time.Time     `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// AnalysisJob is the queue message dispatched to workers
type AnalysisJob struct {
	ID         string         `json:"id"`
	AnalysisID string         `json:"analysis_id"`
	SourceKey  string         `json:"source_key"`
	Config     AnalysisConfig `json:"config"`
	RetryCount int            `json:"retry_count"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AnalysisStatus constants
const (
	AnalysisStatusPending    = "pending"
	AnalysisStatusQueued     = "queued"
	AnalysisStatusProcessing = "processing"
	AnalysisStatusCompleted  = "completed"
	AnalysisStatusFailed     = "failed"
)

// Unified score version selectors
const (
	ScoreVersionV1 = "v1"
	ScoreVersionV2 = "v2"
)
