// Package upload manages chunked upload sessions for large video
// sources. Parts land on local disk and are assembled into a single
// file on completion; sources small enough for one request go through
// the direct submission endpoint instead.
package upload

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/logging"
)

const (
	// DefaultPartSize is the part size handed to clients at initiation
	DefaultPartSize = 5 * 1024 * 1024
	// MaxPartSize caps the configurable part size
	MaxPartSize = 100 * 1024 * 1024
	// SessionTTL is how long an idle session survives before the
	// reaper discards it
	SessionTTL = 24 * time.Hour
)

// Session status constants
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// ErrSessionNotFound is returned for unknown or already reaped sessions
var ErrSessionNotFound = errors.New("upload session not found")

// Session tracks one chunked upload in flight
type Session struct {
	ID          string       `json:"id"`
	Filename    string       `json:"filename"`
	TotalSize   int64        `json:"total_size"`
	PartSize    int64        `json:"part_size"`
	TotalParts  int          `json:"total_parts"`
	Parts       map[int]Part `json:"parts"`
	Status      string       `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Part records one received chunk
type Part struct {
	PartNumber int       `json:"part_number"`
	Size       int64     `json:"size"`
	ETag       string    `json:"etag"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Service owns the active upload sessions. Sessions are in-memory;
// a restart discards them and clients start over.
type Service struct {
	mu       sync.Mutex
	sessions map[string]*Session
	dir      string
	partSize int64
	log      *logging.Logger
}

// NewService creates an upload service rooted at dir
func NewService(dir string, partSize int64, log *logging.Logger) *Service {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	if partSize > MaxPartSize {
		partSize = MaxPartSize
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	return &Service{
		sessions: make(map[string]*Session),
		dir:      dir,
		partSize: partSize,
		log:      log,
	}
}

// Initiate opens a new session and returns the part layout the client
// must follow.
func (s *Service) Initiate(filename string, totalSize int64) (*Session, error) {
	if totalSize <= 0 {
		return nil, fmt.Errorf("total size must be positive, got %d", totalSize)
	}

	session := &Session{
		ID:         uuid.New().String(),
		Filename:   filepath.Base(filename),
		TotalSize:  totalSize,
		PartSize:   s.partSize,
		TotalParts: int((totalSize + s.partSize - 1) / s.partSize),
		Parts:      make(map[int]Part),
		Status:     StatusActive,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(SessionTTL),
	}

	if err := os.MkdirAll(s.sessionDir(session.ID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.log.WithFields(map[string]interface{}{
		"session_id":  session.ID,
		"filename":    session.Filename,
		"total_size":  totalSize,
		"total_parts": session.TotalParts,
	}).Info("Initiated chunked upload")

	return session.snapshot(), nil
}

// PutPart stores one chunk and returns its receipt. Parts are numbered
// from 1 and may arrive in any order; resending a part overwrites it.
func (s *Service) PutPart(id string, partNumber int, data io.Reader) (*Part, error) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if session.Status != StatusActive {
		status := session.Status
		s.mu.Unlock()
		return nil, fmt.Errorf("upload session is %s", status)
	}
	if time.Now().After(session.ExpiresAt) {
		s.mu.Unlock()
		return nil, errors.New("upload session has expired")
	}
	totalParts := session.TotalParts
	s.mu.Unlock()

	if partNumber < 1 || partNumber > totalParts {
		return nil, fmt.Errorf("part number %d out of range 1..%d", partNumber, totalParts)
	}

	partPath := filepath.Join(s.sessionDir(id), fmt.Sprintf("part_%d", partNumber))
	file, err := os.Create(partPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create part file: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	size, err := io.Copy(io.MultiWriter(file, hash), data)
	if err != nil {
		return nil, fmt.Errorf("failed to write part: %w", err)
	}

	part := Part{
		PartNumber: partNumber,
		Size:       size,
		ETag:       hex.EncodeToString(hash.Sum(nil)),
		UploadedAt: time.Now(),
	}

	s.mu.Lock()
	session.Parts[partNumber] = part
	received := len(session.Parts)
	s.mu.Unlock()

	s.log.WithFields(map[string]interface{}{
		"session_id": id,
		"part":       partNumber,
		"received":   received,
		"of":         totalParts,
		"bytes":      size,
	}).Debug("received upload part")

	return &part, nil
}

// Complete assembles the parts into one file and returns its path. The
// session stays registered until Remove so the caller can hand the
// file off and then clean up.
func (s *Service) Complete(id string) (string, error) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return "", ErrSessionNotFound
	}
	if session.Status != StatusActive {
		s.mu.Unlock()
		return "", fmt.Errorf("upload session is %s", session.Status)
	}

	var assembled int64
	for i := 1; i <= session.TotalParts; i++ {
		part, ok := session.Parts[i]
		if !ok {
			s.mu.Unlock()
			return "", fmt.Errorf("missing part %d", i)
		}
		assembled += part.Size
	}
	if assembled != session.TotalSize {
		s.mu.Unlock()
		return "", fmt.Errorf("assembled size %d does not match declared size %d", assembled, session.TotalSize)
	}
	totalParts := session.TotalParts
	ext := filepath.Ext(session.Filename)
	s.mu.Unlock()

	dir := s.sessionDir(id)
	finalPath := filepath.Join(dir, "source"+ext)
	finalFile, err := os.Create(finalPath)
	if err != nil {
		return "", fmt.Errorf("failed to create assembled file: %w", err)
	}
	defer finalFile.Close()

	for i := 1; i <= totalParts; i++ {
		partPath := filepath.Join(dir, fmt.Sprintf("part_%d", i))
		partFile, err := os.Open(partPath)
		if err != nil {
			return "", fmt.Errorf("failed to open part %d: %w", i, err)
		}

		_, err = io.Copy(finalFile, partFile)
		partFile.Close()
		if err != nil {
			return "", fmt.Errorf("failed to assemble part %d: %w", i, err)
		}

		os.Remove(partPath)
	}

	now := time.Now()
	s.mu.Lock()
	session.Status = StatusCompleted
	session.CompletedAt = &now
	s.mu.Unlock()

	s.log.WithField("session_id", id).Info("Completed chunked upload")

	return finalPath, nil
}

// Abort discards a session and its on-disk parts
func (s *Service) Abort(id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	if err := os.RemoveAll(s.sessionDir(id)); err != nil {
		s.log.WithError(err).WithField("session_id", id).Warn("failed to remove session directory")
	}

	s.log.WithField("session_id", id).Info("Aborted chunked upload")
	return nil
}

// Remove drops a completed session and its directory once the
// assembled file has been handed off.
func (s *Service) Remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	if err := os.RemoveAll(s.sessionDir(id)); err != nil {
		s.log.WithError(err).WithField("session_id", id).Warn("failed to remove session directory")
	}
}

// Get returns a point-in-time copy of a session
func (s *Service) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return session.snapshot(), nil
}

// CleanupExpired reaps expired sessions until the context ends
func (s *Service) CleanupExpired(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reapExpired()
		}
	}
}

func (s *Service) reapExpired() {
	now := time.Now()

	s.mu.Lock()
	var expired []string
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		if err := os.RemoveAll(s.sessionDir(id)); err != nil {
			s.log.WithError(err).WithField("session_id", id).Warn("failed to remove expired session directory")
		}
		s.log.WithField("session_id", id).Info("Reaped expired upload session")
	}
}

func (s *Service) sessionDir(id string) string {
	return filepath.Join(s.dir, id)
}

// snapshot copies the session so callers never share the live map.
// Callers must hold the service mutex.
func (sess *Session) snapshot() *Session {
	copied := *sess
	copied.Parts = make(map[int]Part, len(sess.Parts))
	for n, p := range sess.Parts {
		copied.Parts[n] = p
	}
	return &copied
}
