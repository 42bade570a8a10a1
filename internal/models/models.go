package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Enums

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

type VideoMode string

const (
	// VideoModeBaseVideo renders over a caller-supplied source video.
	VideoModeBaseVideo VideoMode = "base_video"
	// VideoModeGeneratedImages builds the visuals from AI-generated stills
	// stitched together with crossfade transitions.
	VideoModeGeneratedImages VideoMode = "generated_images"
)

// Step is a named checkpoint in the render pipeline. The persisted step
// records the last unit of work that completed durably; a resumed job
// continues from the step after it.
type Step string

const (
	StepNone             Step = ""
	StepScript           Step = "script"
	StepVoice            Step = "voice"
	StepVoiceUploaded    Step = "voice_uploaded"
	StepVoiceNotified    Step = "voice_notified"
	StepImages           Step = "images"
	StepDimensions       Step = "dimensions"
	StepSubtitles        Step = "subtitles"
	StepMix              Step = "mix"
	StepRender           Step = "render"
	StepAssetsUploaded   Step = "assets_uploaded"
	StepThumbnail        Step = "thumbnail"
	StepCompleteNotified Step = "complete_notified"
	StepCompleted        Step = "completed"
)

// allSteps is the canonical total ordering. Both render modes index into
// this list, so checkpoint comparisons are mode-independent; base_video
// jobs simply never visit StepImages.
var allSteps = []Step{
	StepScript,
	StepVoice,
	StepVoiceUploaded,
	StepVoiceNotified,
	StepImages,
	StepDimensions,
	StepSubtitles,
	StepMix,
	StepRender,
	StepAssetsUploaded,
	StepThumbnail,
	StepCompleteNotified,
	StepCompleted,
}

var stepIndex = func() map[Step]int {
	m := make(map[Step]int, len(allSteps))
	for i, s := range allSteps {
		m[s] = i + 1 // 0 is reserved for StepNone
	}
	return m
}()

// StepIndex returns the position of a step in the canonical ordering.
// StepNone maps to 0; unknown steps map to -1.
func StepIndex(s Step) int {
	if s == StepNone {
		return 0
	}
	if i, ok := stepIndex[s]; ok {
		return i
	}
	return -1
}

// StepsFor returns the ordered step sequence for a render mode.
func StepsFor(mode VideoMode) []Step {
	steps := make([]Step, 0, len(allSteps))
	for _, s := range allSteps {
		if s == StepImages && mode != VideoModeGeneratedImages {
			continue
		}
		steps = append(steps, s)
	}
	return steps
}

// RenderPayload is the job's input definition plus fields derived during
// earlier steps. Derived fields are persisted as soon as they are produced
// so a resumed job never regenerates them.
type RenderPayload struct {
	Script          string         `json:"script"`
	BaseVideoURL    string         `json:"base_video_url,omitempty"`
	BGMURL          *string        `json:"bgm_url,omitempty"`
	SubtitleStyle   map[string]any `json:"subtitle_style,omitempty"`
	Resolution      *string        `json:"resolution,omitempty"`
	Title           *string        `json:"title,omitempty"`
	DesiredDuration *float64       `json:"desired_duration,omitempty"`
	VideoMode       VideoMode      `json:"video_mode"`
	AspectRatio     string         `json:"aspect_ratio"`

	// Derived during processing, persisted at the step that produced them.
	Sentences   []string `json:"sentences,omitempty"`
	ImagePaths  []string `json:"image_paths,omitempty"`
	VideoWidth  int      `json:"video_width,omitempty"`
	VideoHeight int      `json:"video_height,omitempty"`
}

// Value implements driver.Valuer so the payload round-trips through a
// Postgres JSONB column.
func (p RenderPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *RenderPayload) Scan(value interface{}) error {
	if value == nil {
		*p = RenderPayload{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into RenderPayload", value)
	}
	return json.Unmarshal(bytes, p)
}

// Job is the durable record of one render request. It is owned by the job
// store; workers hold a transient copy and write back through the store
// after each step.
type Job struct {
	ID               string        `json:"job_id"`
	Status           JobStatus     `json:"status"`
	Step             Step          `json:"step,omitempty"`
	Payload          RenderPayload `json:"payload"`
	VoiceLocator     *string       `json:"voice_url,omitempty"`
	SubtitleLocator  *string       `json:"subtitles_url,omitempty"`
	VideoLocator     *string       `json:"video_url,omitempty"`
	ThumbnailLocator *string       `json:"thumbnail_url,omitempty"`
	Error            *string       `json:"error,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// ArtifactUpdates carries new artifact locators and derived payload state
// into a checkpoint write. Nil fields leave the stored value untouched.
type ArtifactUpdates struct {
	Status           *JobStatus
	VoiceLocator     *string
	SubtitleLocator  *string
	VideoLocator     *string
	ThumbnailLocator *string
	Payload          *RenderPayload
}

// DTOs for the API surface.

type RenderSettings struct {
	SubtitleStyle map[string]any `json:"subtitle_style,omitempty"`
	Resolution    *string        `json:"resolution,omitempty"`
}

type RenderRequest struct {
	// JobID lets callers supply their own idempotency key. Empty means the
	// service assigns one.
	JobID           *string         `json:"job_id,omitempty"`
	Script          string          `json:"script"`
	BaseVideoURL    string          `json:"base_video_url,omitempty"`
	BGMURL          *string         `json:"bgm_url,omitempty"`
	VideoMode       *VideoMode      `json:"video_mode,omitempty"`
	AspectRatio     *string         `json:"aspect_ratio,omitempty"`
	Title           *string         `json:"title,omitempty"`
	DesiredDuration *float64        `json:"desired_duration,omitempty"`
	Settings        *RenderSettings `json:"settings,omitempty"`
}

type RenderResponse struct {
	JobID        string    `json:"job_id"`
	Status       JobStatus `json:"status"`
	Step         Step      `json:"step,omitempty"`
	VoiceURL     *string   `json:"voice_url,omitempty"`
	SubtitlesURL *string   `json:"subtitles_url,omitempty"`
	VideoURL     *string   `json:"video_url,omitempty"`
	ThumbnailURL *string   `json:"thumbnail_url,omitempty"`
	Error        *string   `json:"error,omitempty"`
}
