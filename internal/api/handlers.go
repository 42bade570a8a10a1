package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bobarin/rendercast/internal/db"
	"github.com/bobarin/rendercast/internal/models"
	"github.com/bobarin/rendercast/internal/queue"
	"github.com/bobarin/rendercast/internal/storage"
)

const (
	maxScriptChars = 50_000

	// Signed artifact URLs handed out by the status endpoint stay valid
	// for an hour.
	statusURLExpirySeconds = 3600
)

// JobStore is the slice of the db surface the handlers need.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	RequeueFailed(ctx context.Context, id string) (bool, error)
	CountByStatus(ctx context.Context, status models.JobStatus) (int, error)
}

// URLResolver turns stored artifact locators into fetchable URLs.
type URLResolver interface {
	ResolveReadable(ctx context.Context, ref string, expiresIn int) (string, error)
}

type Handler struct {
	store     JobStore
	queue     *queue.Queue
	resolver  URLResolver
	poolLimit int
}

func NewHandler(store JobStore, q *queue.Queue, resolver URLResolver, poolLimit int) *Handler {
	return &Handler{
		store:     store,
		queue:     q,
		resolver:  resolver,
		poolLimit: poolLimit,
	}
}

// CreateRender handles POST /v1/render
func (h *Handler) CreateRender(w http.ResponseWriter, r *http.Request) {
	var req models.RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Validate
	script := strings.TrimSpace(req.Script)
	if script == "" {
		respondError(w, http.StatusBadRequest, "Script is required")
		return
	}
	if len(script) > maxScriptChars {
		respondError(w, http.StatusBadRequest, "Script exceeds maximum length")
		return
	}

	mode := models.VideoModeBaseVideo
	if req.VideoMode != nil {
		mode = *req.VideoMode
		if mode != models.VideoModeBaseVideo && mode != models.VideoModeGeneratedImages {
			respondError(w, http.StatusBadRequest, "video_mode must be base_video or generated_images")
			return
		}
	}

	aspect := "16:9"
	if req.AspectRatio != nil && *req.AspectRatio != "" {
		aspect = *req.AspectRatio
		switch aspect {
		case "16:9", "9:16", "1:1":
		default:
			respondError(w, http.StatusBadRequest, "aspect_ratio must be 16:9, 9:16, or 1:1")
			return
		}
	}

	if mode == models.VideoModeBaseVideo {
		if req.BaseVideoURL == "" {
			respondError(w, http.StatusBadRequest, "base_video_url is required in base_video mode")
			return
		}
		if !validMediaRef(req.BaseVideoURL) {
			respondError(w, http.StatusBadRequest, "base_video_url must be an http(s) URL or storage locator")
			return
		}
	}
	if req.BGMURL != nil && *req.BGMURL != "" && !validMediaRef(*req.BGMURL) {
		respondError(w, http.StatusBadRequest, "bgm_url must be an http(s) URL or storage locator")
		return
	}

	jobID := uuid.New().String()
	if req.JobID != nil && *req.JobID != "" {
		jobID = *req.JobID
	}

	payload := models.RenderPayload{
		Script:          script,
		BaseVideoURL:    req.BaseVideoURL,
		BGMURL:          req.BGMURL,
		Title:           req.Title,
		DesiredDuration: req.DesiredDuration,
		VideoMode:       mode,
		AspectRatio:     aspect,
	}
	if req.Settings != nil {
		payload.SubtitleStyle = req.Settings.SubtitleStyle
		payload.Resolution = req.Settings.Resolution
	}

	job := &models.Job{ID: jobID, Payload: payload}
	if err := h.store.CreateJob(r.Context(), job); err != nil {
		if errors.Is(err, db.ErrDuplicateJob) {
			// Re-submitting a failed job's id retries it from its recorded
			// step; the job keeps its artifacts and checkpoint.
			requeued, rqErr := h.store.RequeueFailed(r.Context(), jobID)
			if rqErr == nil && requeued {
				h.queue.Enqueue(jobID)
				respondJSON(w, http.StatusOK, models.RenderResponse{
					JobID:  jobID,
					Status: models.JobStatusQueued,
				})
				return
			}
			respondError(w, http.StatusConflict, "Job with this ID already exists")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	h.queue.Enqueue(jobID)

	respondJSON(w, http.StatusCreated, models.RenderResponse{
		JobID:  jobID,
		Status: models.JobStatusQueued,
	})
}

// GetStatus handles GET /v1/status/{id}. Artifacts produced so far are
// exposed even while the job is still running, each resolved to a readable
// URL.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, db.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "Job not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	resp := models.RenderResponse{
		JobID:        job.ID,
		Status:       job.Status,
		Step:         job.Step,
		VoiceURL:     h.resolveLocator(r.Context(), job.VoiceLocator),
		SubtitlesURL: h.resolveLocator(r.Context(), job.SubtitleLocator),
		VideoURL:     h.resolveLocator(r.Context(), job.VideoLocator),
		ThumbnailURL: h.resolveLocator(r.Context(), job.ThumbnailLocator),
		Error:        job.Error,
	}

	respondJSON(w, http.StatusOK, resp)
}

// Health handles GET /health with queue and worker gauges.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	processing, err := h.store.CountByStatus(r.Context(), models.JobStatusProcessing)
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  "database unreachable",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"queued":          h.queue.Len(),
		"processing":      processing,
		"max_concurrency": h.poolLimit,
	})
}

// Info handles GET /
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"service": "rendercast",
		"status":  "running",
	})
}

// resolveLocator converts a stored locator to a signed URL; if resolution
// fails the raw locator is returned so the caller still sees the artifact
// exists.
func (h *Handler) resolveLocator(ctx context.Context, locator *string) *string {
	if locator == nil {
		return nil
	}
	resolved, err := h.resolver.ResolveReadable(ctx, *locator, statusURLExpirySeconds)
	if err != nil {
		return locator
	}
	return &resolved
}

// validMediaRef accepts http(s) URLs and storage:// locators.
func validMediaRef(ref string) bool {
	if storage.IsLocator(ref) {
		_, _, err := storage.ParseLocator(ref)
		return err == nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
