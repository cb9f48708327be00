package handlers

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basui01/reelscope/api"
	"github.com/basui01/reelscope/job"
	"github.com/basui01/reelscope/types"
)

type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]*types.Job
}

func newFakeStore() *fakeStore { return &fakeStore{jobs: map[string]*types.Job{}} }

func (s *fakeStore) Get(_ context.Context, videoID string) (*types.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[videoID]
	if !ok {
		return nil, false, nil
	}
	return j.Clone(), true, nil
}

func (s *fakeStore) Save(_ context.Context, j *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.VideoID] = j.Clone()
	return nil
}

type fakeEnqueuer struct{ calls int }

func (e *fakeEnqueuer) Enqueue(_ context.Context, _ *types.Job) error {
	e.calls++
	return nil
}

func newTestVideoHandler(t *testing.T) (*VideoHandler, *job.Manager) {
	t.Helper()
	manager := job.NewManager(newFakeStore(), &fakeEnqueuer{}, nil)
	artifacts := job.NewArtifactStore(t.TempDir())
	return NewVideoHandler(manager, artifacts, 10<<20, []string{"video/mp4"}, nil), manager
}

func TestVideoHandler_HandleAnalyzeQueuesNewJob(t *testing.T) {
	h, _ := newTestVideoHandler(t)

	body := strings.NewReader(`{"video_id":"v1"}`)
	r := httptest.NewRequest(http.MethodPost, "/analyze", body)
	w := httptest.NewRecorder()
	h.HandleAnalyze(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
}

func TestVideoHandler_HandleAnalyzeRejectsMissingVideoID(t *testing.T) {
	h, _ := newTestVideoHandler(t)

	r := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.HandleAnalyze(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVideoHandler_HandleStatusNotFound(t *testing.T) {
	h, _ := newTestVideoHandler(t)

	r := httptest.NewRequest(http.MethodGet, "/status/missing", nil)
	r.SetPathValue("video_id", "missing")
	w := httptest.NewRecorder()
	h.HandleStatus(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVideoHandler_HandleResultConflictWhileRunning(t *testing.T) {
	h, manager := newTestVideoHandler(t)
	ctx := context.Background()
	_, err := manager.Analyze(ctx, "v1", "src.mp4", types.Ablations{})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/result/v1", nil)
	r.SetPathValue("video_id", "v1")
	w := httptest.NewRecorder()
	h.HandleResult(w, r)

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(api.ErrStillRunning), resp.Error.Code)
}

func TestVideoHandler_HandleIngestStoresFileUnderVideoID(t *testing.T) {
	h, _ := newTestVideoHandler(t)

	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("video_id", "v1"))
	part, err := mw.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="clip.mp4"`},
		"Content-Type":        {"video/mp4"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("fake video bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(buf.String()))
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.HandleIngest(w, r)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
}

func TestVideoHandler_HandleIngestRejectsDisallowedMime(t *testing.T) {
	h, _ := newTestVideoHandler(t)

	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("video_id", "v1"))
	part, err := mw.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="clip.exe"`},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("not a video"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(buf.String()))
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.HandleIngest(w, r)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}
