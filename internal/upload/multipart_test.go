package upload

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiateComputesPartLayout(t *testing.T) {
	svc := NewService(t.TempDir(), 5*1024*1024, nil)

	session, err := svc.Initiate("../nested/clip.y4m", 12*1024*1024)
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "clip.y4m", session.Filename)
	assert.Equal(t, int64(5*1024*1024), session.PartSize)
	assert.Equal(t, 3, session.TotalParts)
	assert.Equal(t, StatusActive, session.Status)
	assert.DirExists(t, svc.sessionDir(session.ID))
}

func TestInitiateRejectsEmptySize(t *testing.T) {
	svc := NewService(t.TempDir(), 0, nil)

	_, err := svc.Initiate("clip.y4m", 0)
	assert.Error(t, err)
}

func TestPutPartAndComplete(t *testing.T) {
	svc := NewService(t.TempDir(), 4, nil)

	payload := []byte("0123456789")
	session, err := svc.Initiate("clip.yuv", int64(len(payload)))
	require.NoError(t, err)
	require.Equal(t, 3, session.TotalParts)

	// Parts may arrive in any order
	for _, n := range []int{2, 1, 3} {
		lo := (n - 1) * 4
		hi := lo + 4
		if hi > len(payload) {
			hi = len(payload)
		}
		chunk := payload[lo:hi]

		part, err := svc.PutPart(session.ID, n, bytes.NewReader(chunk))
		require.NoError(t, err)
		assert.Equal(t, int64(len(chunk)), part.Size)

		sum := md5.Sum(chunk)
		assert.Equal(t, hex.EncodeToString(sum[:]), part.ETag)
	}

	path, err := svc.Complete(session.ID)
	require.NoError(t, err)

	assembled, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, assembled)

	status, err := svc.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status.Status)
	assert.NotNil(t, status.CompletedAt)
}

func TestCompleteReportsMissingPart(t *testing.T) {
	svc := NewService(t.TempDir(), 4, nil)

	session, err := svc.Initiate("clip.yuv", 10)
	require.NoError(t, err)

	_, err = svc.PutPart(session.ID, 1, bytes.NewReader([]byte("0123")))
	require.NoError(t, err)

	_, err = svc.Complete(session.ID)
	assert.ErrorContains(t, err, "missing part 2")
}

func TestCompleteReportsSizeMismatch(t *testing.T) {
	svc := NewService(t.TempDir(), 4, nil)

	session, err := svc.Initiate("clip.yuv", 10)
	require.NoError(t, err)

	for _, n := range []int{1, 2, 3} {
		_, err = svc.PutPart(session.ID, n, bytes.NewReader([]byte("01")))
		require.NoError(t, err)
	}

	_, err = svc.Complete(session.ID)
	assert.ErrorContains(t, err, "does not match declared size")
}

func TestPutPartValidation(t *testing.T) {
	svc := NewService(t.TempDir(), 4, nil)

	session, err := svc.Initiate("clip.yuv", 10)
	require.NoError(t, err)

	_, err = svc.PutPart(session.ID, 0, bytes.NewReader(nil))
	assert.ErrorContains(t, err, "out of range")

	_, err = svc.PutPart(session.ID, 4, bytes.NewReader(nil))
	assert.ErrorContains(t, err, "out of range")

	_, err = svc.PutPart("no-such-session", 1, bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAbortDiscardsSession(t *testing.T) {
	svc := NewService(t.TempDir(), 4, nil)

	session, err := svc.Initiate("clip.yuv", 10)
	require.NoError(t, err)
	dir := svc.sessionDir(session.ID)

	require.NoError(t, svc.Abort(session.ID))

	_, err = svc.Get(session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoDirExists(t, dir)

	assert.ErrorIs(t, svc.Abort(session.ID), ErrSessionNotFound)
}

func TestReapExpiredSessions(t *testing.T) {
	svc := NewService(t.TempDir(), 4, nil)

	session, err := svc.Initiate("clip.yuv", 10)
	require.NoError(t, err)
	dir := svc.sessionDir(session.ID)

	svc.mu.Lock()
	svc.sessions[session.ID].ExpiresAt = time.Now().Add(-time.Minute)
	svc.mu.Unlock()

	svc.reapExpired()

	_, err = svc.Get(session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoDirExists(t, dir)
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	svc := NewService(t.TempDir(), 4, nil)

	session, err := svc.Initiate("clip.yuv", 10)
	require.NoError(t, err)

	first, err := svc.Get(session.ID)
	require.NoError(t, err)
	first.Parts[1] = Part{PartNumber: 1, Size: 99}

	second, err := svc.Get(session.ID)
	require.NoError(t, err)
	assert.Empty(t, second.Parts)
}
