package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/upload"
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// initiateUpload opens a chunked upload session for sources too large
// for a single multipart request. The response carries the part layout
// the client must follow.
func (api *API) initiateUpload(c *gin.Context) {
	var req struct {
		Filename  string `json:"filename" binding:"required"`
		TotalSize int64  `json:"total_size" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := api.uploads.Initiate(req.Filename, req.TotalSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, session)
}

// uploadPart receives one chunk. The body is the raw part bytes; the
// response etag lets the client verify what was stored.
func (api *API) uploadPart(c *gin.Context) {
	id := c.Param("id")
	partNumber, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid part number"})
		return
	}

	part, err := api.uploads.PutPart(id, partNumber, c.Request.Body)
	if err != nil {
		if errors.Is(err, upload.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Upload session not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, part)
}

// getUploadStatus reports a session and the parts received so far
func (api *API) getUploadStatus(c *gin.Context) {
	session, err := api.uploads.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Upload session not found"})
		return
	}

	c.JSON(http.StatusOK, session)
}

// completeUpload assembles the parts and submits the result for
// analysis. The optional JSON body carries the same parameters as the
// direct submission form.
func (api *API) completeUpload(c *gin.Context) {
	id := c.Param("id")

	var analysisConfig models.AnalysisConfig
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&analysisConfig); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := validateAnalysisConfig(analysisConfig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := api.uploads.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Upload session not found"})
		return
	}

	sourcePath, err := api.uploads.Complete(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// On failure the assembled file stays on disk until the client
	// aborts or the session expires.
	if api.startAnalysis(c, sourcePath, session.Filename, session.TotalSize, analysisConfig) {
		api.uploads.Remove(id)
	}
}

// abortUpload discards a session and its received parts
func (api *API) abortUpload(c *gin.Context) {
	if err := api.uploads.Abort(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Upload session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "aborted"})
}
