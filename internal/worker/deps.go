package worker

import (
	"context"

	"github.com/bobarin/rendercast/internal/models"
	"github.com/bobarin/rendercast/internal/planner"
)

// The pipeline consumes its collaborators through small interfaces so step
// behavior is testable against fakes. The production wiring in cmd/api
// passes *db.DB, *services.FFmpegService, *storage.Storage, and the
// service structs, all of which satisfy these.

// Store is the durable job record.
type Store interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
	AdvanceJob(ctx context.Context, id string, step models.Step, upd models.ArtifactUpdates) (bool, error)
	SetJobStatus(ctx context.Context, id string, status models.JobStatus) error
	SetJobFailed(ctx context.Context, id string, message string) error
}

// Media is the ffmpeg-backed probing and rendering surface.
type Media interface {
	JobDir(jobID string) (string, error)
	CleanupJob(jobID string)
	AudioDuration(ctx context.Context, path string) (float64, error)
	VideoDimensions(ctx context.Context, path string) (int, int, error)
	ConcatAudio(ctx context.Context, clipPaths []string, outputPath string) error
	AssembleTimedNarration(ctx context.Context, clipPaths []string, plan planner.Plan, outputPath string) error
	MixBackgroundMusic(ctx context.Context, narrationPath, musicPath, outputPath string) error
	RenderVideo(ctx context.Context, videoPath, audioPath, subtitlePath string, width, height int, outputPath string) error
	RenderSlideshow(ctx context.Context, imagePaths []string, plan planner.Plan, audioPath, subtitlePath string, width, height int, outputPath string) error
	ExtractThumbnail(ctx context.Context, videoPath, outputPath string) error
}

// Uploader moves artifacts between local disk and object storage.
type Uploader interface {
	UploadArtifact(ctx context.Context, localPath, prefix, jobID string) (string, error)
	FetchToFile(ctx context.Context, ref, localPath string, maxBytes int64) error
}

// Notifier delivers progress webhooks. Errors from these are logged and
// swallowed; a broken callback endpoint never fails a job.
type Notifier interface {
	NotifyVoiceoverUploaded(ctx context.Context, jobID string, voiceURL *string) error
	NotifyVideoCompleted(ctx context.Context, jobID string, voiceURL, subtitlesURL, videoURL, thumbnailURL *string) error
}

// PromptEnhancer rewrites narration sentences as image prompts.
type PromptEnhancer interface {
	EnhancePrompts(ctx context.Context, sentences []string, title string) ([]string, error)
}
