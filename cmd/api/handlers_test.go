package main

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// multipartBody builds a multipart form with the given fields and an
// optional video payload.
func multipartBody(t *testing.T, fields map[string]string, filename string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("video", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte("not a real video"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// submitRecorder runs the submit handler against a request body. The
// API has no live dependencies, so only paths that reject the request
// before touching them are exercised.
func submitRecorder(t *testing.T, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	api := &API{}
	router := gin.New()
	router.POST("/api/v1/analyses", api.submitAnalysis)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitAnalysisRequiresFile(t *testing.T) {
	body, contentType := multipartBody(t, nil, "")
	w := submitRecorder(t, body, contentType)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No video file provided")
}

func TestSubmitAnalysisRejectsBadParameters(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]string
		wantErr string
	}{
		{
			name:    "non-numeric gop size",
			fields:  map[string]string{"gop_size": "many"},
			wantErr: "invalid gop_size value",
		},
		{
			name:    "negative bframes",
			fields:  map[string]string{"bframes": "-1"},
			wantErr: "must not be negative",
		},
		{
			name:    "unknown format",
			fields:  map[string]string{"format": "yaml"},
			wantErr: "unknown output format",
		},
		{
			name:    "unknown detail",
			fields:  map[string]string{"detail": "block"},
			wantErr: "unknown detail level",
		},
		{
			name:    "unknown score version",
			fields:  map[string]string{"score_version": "v3"},
			wantErr: "unknown score version",
		},
		{
			name:    "bad ac_compensation",
			fields:  map[string]string{"ac_compensation": "maybe"},
			wantErr: "invalid ac_compensation value",
		},
		{
			name:    "negative weight",
			fields:  map[string]string{"weight_motion": "-0.5"},
			wantErr: "weights must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.fields, "clip.y4m")
			w := submitRecorder(t, body, contentType)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantErr)
		})
	}
}

func TestParseAnalysisFormDefaults(t *testing.T) {
	gin.SetMode(gin.TestMode)

	body, contentType := multipartBody(t, map[string]string{
		"gop_size":        "30",
		"bframes":         "2",
		"format":          "json",
		"detail":          "gop",
		"score_version":   "v1",
		"ac_compensation": "true",
		"weight_spatial":  "0.4",
	}, "clip.y4m")

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", body)
	c.Request.Header.Set("Content-Type", contentType)

	cfg, err := parseAnalysisForm(c)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.GOPSize)
	assert.Equal(t, 2, cfg.BFrames)
	assert.Zero(t, cfg.NumFrames)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "gop", cfg.Detail)
	assert.Equal(t, "v1", cfg.ScoreVersion)
	assert.True(t, cfg.ACCompensation)
	assert.Equal(t, 0.4, cfg.Weights.Spatial)
	assert.Zero(t, cfg.Weights.Motion)
}

func TestParsePagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{name: "defaults", query: "", wantLimit: 100, wantOffset: 0},
		{name: "explicit", query: "limit=10&offset=40", wantLimit: 10, wantOffset: 40},
		{name: "clamped to max", query: "limit=5000", wantLimit: 1000},
		{name: "zero limit", query: "limit=0", wantErr: true},
		{name: "negative offset", query: "offset=-1", wantErr: true},
		{name: "non-numeric", query: "limit=all", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)

			limit, offset, err := parsePagination(c, 100, 1000)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

func TestReportFormat(t *testing.T) {
	assert.Equal(t, "csv", reportFormat("abc-123.csv"))
	assert.Equal(t, "json", reportFormat("abc-123.json"))
	assert.Equal(t, "xml", reportFormat("abc-123.xml"))
	assert.Equal(t, "csv", reportFormat("no-extension"))
}
