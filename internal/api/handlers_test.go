package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bobarin/rendercast/internal/db"
	"github.com/bobarin/rendercast/internal/models"
	"github.com/bobarin/rendercast/internal/queue"
)

type memStore struct {
	jobs map[string]*models.Job
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]*models.Job{}}
}

func (s *memStore) CreateJob(ctx context.Context, job *models.Job) error {
	if _, ok := s.jobs[job.ID]; ok {
		return db.ErrDuplicateJob
	}
	job.Status = models.JobStatusQueued
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *memStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, db.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *memStore) RequeueFailed(ctx context.Context, id string) (bool, error) {
	job, ok := s.jobs[id]
	if !ok || job.Status != models.JobStatusFailed {
		return false, nil
	}
	job.Status = models.JobStatusQueued
	job.Error = nil
	return true, nil
}

func (s *memStore) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	n := 0
	for _, job := range s.jobs {
		if job.Status == status {
			n++
		}
	}
	return n, nil
}

type passthroughResolver struct{}

func (passthroughResolver) ResolveReadable(ctx context.Context, ref string, expiresIn int) (string, error) {
	return "https://signed.example.com/" + ref, nil
}

func newTestServer(t *testing.T, store *memStore, q *queue.Queue, apiKey string) *httptest.Server {
	t.Helper()
	h := NewHandler(store, q, passthroughResolver{}, 3)
	router := NewRouter(h, RouterConfig{BackendAPIKey: apiKey})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func postRender(t *testing.T, server *httptest.Server, apiKey string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest("POST", server.URL+"/v1/render", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func TestCreateRenderEnqueuesJob(t *testing.T) {
	store := newMemStore()
	q := queue.New()
	server := newTestServer(t, store, q, "")

	resp := postRender(t, server, "", map[string]any{
		"script":         "A script with enough words to pass validation easily.",
		"base_video_url": "https://example.com/base.mp4",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var out models.RenderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.JobID == "" {
		t.Fatal("job id missing")
	}
	if out.Status != models.JobStatusQueued {
		t.Errorf("status = %s", out.Status)
	}
	if q.Len() != 1 {
		t.Errorf("queue len = %d, want 1", q.Len())
	}

	job := store.jobs[out.JobID]
	if job == nil {
		t.Fatal("job not persisted")
	}
	if job.Payload.VideoMode != models.VideoModeBaseVideo {
		t.Errorf("default mode = %s", job.Payload.VideoMode)
	}
	if job.Payload.AspectRatio != "16:9" {
		t.Errorf("default aspect = %s", job.Payload.AspectRatio)
	}
}

func TestCreateRenderValidation(t *testing.T) {
	store := newMemStore()
	server := newTestServer(t, store, queue.New(), "")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"empty script", map[string]any{
			"script": "  ", "base_video_url": "https://example.com/b.mp4",
		}},
		{"missing base video", map[string]any{
			"script": "Some words here.",
		}},
		{"bad scheme", map[string]any{
			"script": "Some words here.", "base_video_url": "ftp://example.com/b.mp4",
		}},
		{"bad mode", map[string]any{
			"script": "Some words here.", "video_mode": "holograms",
		}},
		{"bad aspect", map[string]any{
			"script": "Some words here.", "base_video_url": "https://example.com/b.mp4",
			"aspect_ratio": "2:1",
		}},
		{"bad bgm", map[string]any{
			"script": "Some words here.", "base_video_url": "https://example.com/b.mp4",
			"bgm_url": "file:///etc/passwd",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postRender(t, server, "", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}

	if len(store.jobs) != 0 {
		t.Errorf("invalid requests created %d jobs", len(store.jobs))
	}
}

func TestCreateRenderDuplicateID(t *testing.T) {
	store := newMemStore()
	server := newTestServer(t, store, queue.New(), "")

	body := map[string]any{
		"job_id":         "fixed-id",
		"script":         "Some words here.",
		"base_video_url": "https://example.com/b.mp4",
	}

	resp := postRender(t, server, "", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create = %d", resp.StatusCode)
	}

	resp = postRender(t, server, "", body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", resp.StatusCode)
	}
}

func TestCreateRenderRetriesFailedJob(t *testing.T) {
	store := newMemStore()
	q := queue.New()
	server := newTestServer(t, store, q, "")

	// A job that failed mid-pipeline, with its checkpoint and the artifacts
	// produced before the failure.
	voice := "storage://media/voiceovers/retry-1/voice.wav"
	errMsg := "step render: ffmpeg exited"
	store.jobs["retry-1"] = &models.Job{
		ID:           "retry-1",
		Status:       models.JobStatusFailed,
		Step:         models.StepMix,
		VoiceLocator: &voice,
		Error:        &errMsg,
		Payload: models.RenderPayload{
			Script:       "Some words here.",
			BaseVideoURL: "https://example.com/b.mp4",
			VideoMode:    models.VideoModeBaseVideo,
			AspectRatio:  "16:9",
		},
	}

	resp := postRender(t, server, "", map[string]any{
		"job_id":         "retry-1",
		"script":         "Some words here.",
		"base_video_url": "https://example.com/b.mp4",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retry status = %d, want 200", resp.StatusCode)
	}
	if q.Len() != 1 {
		t.Errorf("queue len = %d, want 1", q.Len())
	}

	job := store.jobs["retry-1"]
	if job.Status != models.JobStatusQueued {
		t.Errorf("status = %s, want queued", job.Status)
	}
	if job.Step != models.StepMix {
		t.Errorf("step = %s, want %s (checkpoint must survive the retry)", job.Step, models.StepMix)
	}
	if job.VoiceLocator == nil || *job.VoiceLocator != voice {
		t.Errorf("voice locator = %v, want %s", job.VoiceLocator, voice)
	}
	if job.Error != nil {
		t.Errorf("error = %q, want cleared", *job.Error)
	}
}

func TestGetStatusExposesPartialArtifacts(t *testing.T) {
	store := newMemStore()
	server := newTestServer(t, store, queue.New(), "")

	voice := "storage://media/voiceovers/j1/voice.wav"
	store.jobs["j1"] = &models.Job{
		ID:           "j1",
		Status:       models.JobStatusProcessing,
		Step:         models.StepVoiceUploaded,
		VoiceLocator: &voice,
	}

	resp, err := http.Get(server.URL + "/v1/status/j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out models.RenderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != models.JobStatusProcessing {
		t.Errorf("job status = %s", out.Status)
	}
	if out.VoiceURL == nil || *out.VoiceURL != "https://signed.example.com/"+voice {
		t.Errorf("voice url = %v", out.VoiceURL)
	}
	if out.VideoURL != nil {
		t.Error("video url should be absent mid-run")
	}
}

func TestGetStatusNotFound(t *testing.T) {
	server := newTestServer(t, newMemStore(), queue.New(), "")

	resp, err := http.Get(server.URL + "/v1/status/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	store := newMemStore()
	server := newTestServer(t, store, queue.New(), "secret-key")

	// No key
	resp := postRender(t, server, "", map[string]any{
		"script": "words", "base_video_url": "https://example.com/b.mp4",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no key status = %d, want 401", resp.StatusCode)
	}

	// Wrong key
	resp = postRender(t, server, "wrong", map[string]any{
		"script": "words", "base_video_url": "https://example.com/b.mp4",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("wrong key status = %d, want 403", resp.StatusCode)
	}

	// Correct key
	resp = postRender(t, server, "secret-key", map[string]any{
		"script": "A script with enough words.", "base_video_url": "https://example.com/b.mp4",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("valid key status = %d, want 201", resp.StatusCode)
	}

	// Health stays public
	hresp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	hresp.Body.Close()
	if hresp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", hresp.StatusCode)
	}
}

func TestHealthReportsGauges(t *testing.T) {
	store := newMemStore()
	store.jobs["p1"] = &models.Job{ID: "p1", Status: models.JobStatusProcessing}
	q := queue.New()
	q.Enqueue("x")
	server := newTestServer(t, store, q, "")

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("status = %v", out["status"])
	}
	if out["queued"] != float64(1) {
		t.Errorf("queued = %v", out["queued"])
	}
	if out["processing"] != float64(1) {
		t.Errorf("processing = %v", out["processing"])
	}
	if out["max_concurrency"] != float64(3) {
		t.Errorf("max_concurrency = %v", out["max_concurrency"])
	}
}
