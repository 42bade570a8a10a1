package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bobarin/rendercast/internal/models"
	"github.com/bobarin/rendercast/internal/planner"
)

const testScript = "This is the first sentence with enough words. " +
	"Here comes another sentence carrying seven words too."

func testTiming() planner.Config {
	return planner.Config{
		LeadTime: 0.25, LingerTime: 0.5, Crossfade: 0.5,
		ShortBuffer: 0.75, LongBuffer: 0.25, BufferThreshold: 3.0,
	}
}

type testRig struct {
	store    *fakeStore
	tts      *fakeTTS
	media    *fakeMedia
	uploader *fakeUploader
	notifier *fakeNotifier
	images   *fakeImages
	pipeline *Pipeline
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		store:    newFakeStore(),
		tts:      &fakeTTS{},
		media:    newFakeMedia(t.TempDir()),
		uploader: newFakeUploader(),
		notifier: &fakeNotifier{},
		images:   &fakeImages{},
	}
	rig.pipeline = NewPipeline(Deps{
		Store:    rig.store,
		Media:    rig.media,
		TTS:      rig.tts,
		Uploader: rig.uploader,
		Notifier: rig.notifier,
		Images:   rig.images,
		Enhancer: &fakeEnhancer{},
	}, PipelineConfig{Timing: testTiming()})
	return rig
}

func baseVideoJob(id string) *models.Job {
	return &models.Job{
		ID:     id,
		Status: models.JobStatusQueued,
		Payload: models.RenderPayload{
			Script:       testScript,
			BaseVideoURL: "https://example.com/base.mp4",
			VideoMode:    models.VideoModeBaseVideo,
			AspectRatio:  "16:9",
		},
	}
}

func imagesJob(id string) *models.Job {
	return &models.Job{
		ID:     id,
		Status: models.JobStatusQueued,
		Payload: models.RenderPayload{
			Script:      testScript,
			VideoMode:   models.VideoModeGeneratedImages,
			AspectRatio: "9:16",
		},
	}
}

func TestBaseVideoJobCompletesAllSteps(t *testing.T) {
	rig := newTestRig(t)
	job := baseVideoJob("job-1")
	rig.store.put(job)

	if err := rig.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("run: %v", err)
	}

	stored, _ := rig.store.GetJob(context.Background(), "job-1")
	if stored.Status != models.JobStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
	if stored.Step != models.StepCompleted {
		t.Errorf("step = %s, want completed", stored.Step)
	}
	if stored.VoiceLocator == nil || stored.SubtitleLocator == nil || stored.VideoLocator == nil {
		t.Errorf("missing artifact locators: %+v", stored)
	}
	if stored.ThumbnailLocator == nil {
		t.Error("thumbnail locator missing")
	}
	if len(stored.Payload.Sentences) != 2 {
		t.Errorf("sentences = %d, want 2", len(stored.Payload.Sentences))
	}
	if stored.Payload.VideoWidth != 1280 || stored.Payload.VideoHeight != 720 {
		t.Errorf("dimensions = %dx%d", stored.Payload.VideoWidth, stored.Payload.VideoHeight)
	}
	if rig.tts.callCount() != 2 {
		t.Errorf("synthesize calls = %d, want 2", rig.tts.callCount())
	}
	if rig.media.renders != 1 {
		t.Errorf("renders = %d, want 1", rig.media.renders)
	}
	if len(rig.notifier.events) != 2 ||
		rig.notifier.events[0] != "voiceover_uploaded" || rig.notifier.events[1] != "video_completed" {
		t.Errorf("events = %v", rig.notifier.events)
	}
}

func TestGeneratedImagesJobRendersSlideshow(t *testing.T) {
	rig := newTestRig(t)
	job := imagesJob("job-img")
	rig.store.put(job)

	if err := rig.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("run: %v", err)
	}

	stored, _ := rig.store.GetJob(context.Background(), "job-img")
	if stored.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s, error = %v", stored.Status, stored.Error)
	}
	if rig.images.calls != 2 {
		t.Errorf("image generations = %d, want 2", rig.images.calls)
	}
	if rig.media.slideshows != 1 {
		t.Errorf("slideshow renders = %d, want 1", rig.media.slideshows)
	}
	if len(stored.Payload.ImagePaths) != 2 {
		t.Errorf("persisted image paths = %d", len(stored.Payload.ImagePaths))
	}
	// Aspect-derived portrait dimensions, no base video involved.
	if stored.Payload.VideoWidth != 1080 || stored.Payload.VideoHeight != 1920 {
		t.Errorf("dimensions = %dx%d", stored.Payload.VideoWidth, stored.Payload.VideoHeight)
	}
}

func TestResumeSkipsSynthesisAndKeepsVoiceLocator(t *testing.T) {
	rig := newTestRig(t)
	job := baseVideoJob("job-resume")
	rig.store.put(job)

	// First attempt dies at the dimensions step: the base video fetch fails.
	rig.uploader.fetchErrs[job.Payload.BaseVideoURL] = errors.New("connection reset")

	err := rig.pipeline.Run(context.Background(), job)
	if err == nil {
		t.Fatal("first run should fail at dimensions")
	}
	if !strings.Contains(err.Error(), "step dimensions") {
		t.Fatalf("unexpected failure: %v", err)
	}

	mid, _ := rig.store.GetJob(context.Background(), "job-resume")
	if mid.Status != models.JobStatusFailed {
		t.Fatalf("status = %s, want failed", mid.Status)
	}
	if mid.Step != models.StepVoiceNotified {
		t.Errorf("checkpoint = %s, want voice_notified preserved", mid.Step)
	}
	if mid.VoiceLocator == nil {
		t.Fatal("voice locator should be recorded before the failure")
	}
	firstLocator := *mid.VoiceLocator
	synthCalls := rig.tts.callCount()

	// Operator requeues the job; fetch works this time.
	mid.Status = models.JobStatusQueued
	rig.store.put(mid)

	resumed, _ := rig.store.GetJob(context.Background(), "job-resume")
	if err := rig.pipeline.Run(context.Background(), resumed); err != nil {
		t.Fatalf("resume run: %v", err)
	}

	final, _ := rig.store.GetJob(context.Background(), "job-resume")
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s after resume", final.Status)
	}
	if rig.tts.callCount() != synthCalls {
		t.Errorf("resume re-synthesized: calls went %d -> %d", synthCalls, rig.tts.callCount())
	}
	if final.VoiceLocator == nil || *final.VoiceLocator != firstLocator {
		t.Errorf("voice locator changed on resume: %v", final.VoiceLocator)
	}
}

func TestWebhookFailureNeverFailsJob(t *testing.T) {
	rig := newTestRig(t)
	rig.notifier.err = errors.New("callback endpoint is down")

	job := baseVideoJob("job-webhook")
	rig.store.put(job)

	if err := rig.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("run should succeed despite webhook failures: %v", err)
	}

	stored, _ := rig.store.GetJob(context.Background(), "job-webhook")
	if stored.Status != models.JobStatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
	// Both notifications were still attempted.
	if len(rig.notifier.events) != 2 {
		t.Errorf("events = %v", rig.notifier.events)
	}
}

func TestStepCheckpointsAreMonotonic(t *testing.T) {
	rig := newTestRig(t)
	job := baseVideoJob("job-mono")
	rig.store.put(job)

	if err := rig.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("run: %v", err)
	}

	prev := 0
	for _, step := range rig.store.advanced {
		idx := models.StepIndex(step)
		if idx <= prev {
			t.Fatalf("checkpoint order not strictly increasing: %v", rig.store.advanced)
		}
		prev = idx
	}
	if rig.store.advanced[len(rig.store.advanced)-1] != models.StepCompleted {
		t.Errorf("last checkpoint = %s", rig.store.advanced[len(rig.store.advanced)-1])
	}
}

func TestRenderFailurePreservesCheckpoint(t *testing.T) {
	rig := newTestRig(t)
	rig.media.renderErr = errors.New("ffmpeg exited with code 1")

	job := baseVideoJob("job-renderfail")
	rig.store.put(job)

	err := rig.pipeline.Run(context.Background(), job)
	if err == nil {
		t.Fatal("run should fail at render")
	}
	if !strings.Contains(err.Error(), "step render") {
		t.Errorf("error should name the failing step: %v", err)
	}

	stored, _ := rig.store.GetJob(context.Background(), "job-renderfail")
	if stored.Status != models.JobStatusFailed {
		t.Errorf("status = %s", stored.Status)
	}
	if stored.Error == nil || !strings.Contains(*stored.Error, "ffmpeg") {
		t.Errorf("error message = %v", stored.Error)
	}
	if stored.Step != models.StepMix {
		t.Errorf("step = %s, want mix (last completed checkpoint)", stored.Step)
	}
	// Artifacts up to the failure survive for the retry.
	if stored.VoiceLocator == nil || stored.SubtitleLocator == nil {
		t.Error("pre-failure artifacts should be recorded")
	}
}

func TestResumeAfterVoiceCheckpointUploadsCachedVoice(t *testing.T) {
	rig := newTestRig(t)
	job := baseVideoJob("job-voicewin")
	dir, err := rig.media.JobDir(job.ID)
	if err != nil {
		t.Fatalf("job dir: %v", err)
	}

	// The process died between the voice checkpoint and the upload step:
	// the synthesized files sit in the job dir but no locator was recorded.
	job.Step = models.StepVoice
	job.Payload.Sentences = []string{"First sentence here now.", "Second sentence here now."}
	for i := range job.Payload.Sentences {
		clip := filepath.Join(dir, fmt.Sprintf("seg_%03d.wav", i))
		if err := os.WriteFile(clip, []byte("clip"), 0644); err != nil {
			t.Fatalf("seed clip: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "voice.wav"), []byte("voice"), 0644); err != nil {
		t.Fatalf("seed voice: %v", err)
	}
	rig.store.put(job)

	if err := rig.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("resume run: %v", err)
	}

	final, _ := rig.store.GetJob(context.Background(), "job-voicewin")
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s, error = %v", final.Status, final.Error)
	}
	if final.VoiceLocator == nil {
		t.Error("cached voiceover was not uploaded")
	}
	if rig.tts.callCount() != 0 {
		t.Errorf("synthesize calls = %d, cached voiceover must not be redone", rig.tts.callCount())
	}
}

func TestResumeAfterRenderCheckpointUploadsCachedRender(t *testing.T) {
	rig := newTestRig(t)
	job := baseVideoJob("job-renderwin")
	dir, err := rig.media.JobDir(job.ID)
	if err != nil {
		t.Fatalf("job dir: %v", err)
	}

	// Crash window between the render checkpoint and the upload step:
	// final.mp4 is on disk, earlier artifacts are already in storage.
	voice := "storage://media/voiceovers/job-renderwin/voice.wav"
	subs := "storage://media/subtitles/job-renderwin/subtitles.ass"
	job.Step = models.StepRender
	job.VoiceLocator = &voice
	job.SubtitleLocator = &subs
	job.Payload.Sentences = []string{"First sentence here now.", "Second sentence here now."}
	job.Payload.VideoWidth, job.Payload.VideoHeight = 1280, 720
	if err := os.WriteFile(filepath.Join(dir, "final.mp4"), []byte("video"), 0644); err != nil {
		t.Fatalf("seed render: %v", err)
	}
	rig.store.put(job)

	if err := rig.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("resume run: %v", err)
	}

	final, _ := rig.store.GetJob(context.Background(), "job-renderwin")
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s, error = %v", final.Status, final.Error)
	}
	if final.VideoLocator == nil {
		t.Error("cached render was not uploaded")
	}
	if final.ThumbnailLocator == nil {
		t.Error("thumbnail missing after resume")
	}
	if rig.media.renders != 0 {
		t.Errorf("renders = %d, cached final.mp4 must not be redone", rig.media.renders)
	}
	if rig.tts.callCount() != 0 {
		t.Errorf("synthesize calls = %d, want 0", rig.tts.callCount())
	}
}

func TestClipLossAfterMixCheckpointResynthesizesForTimedMix(t *testing.T) {
	rig := newTestRig(t)
	job := imagesJob("job-cliploss")
	dir, err := rig.media.JobDir(job.ID)
	if err != nil {
		t.Fatalf("job dir: %v", err)
	}

	// Scratch dir lost after the mix checkpoint: the per-sentence clips are
	// gone while the uploaded artifacts and generated images survive. The
	// paced timeline needs the clips, so they must be synthesized again
	// instead of substituting the continuous voiceover.
	imgs := []string{
		filepath.Join(dir, "img_000.png"),
		filepath.Join(dir, "img_001.png"),
	}
	for _, img := range imgs {
		if err := os.WriteFile(img, []byte("png-bytes"), 0644); err != nil {
			t.Fatalf("seed image: %v", err)
		}
	}
	voice := "storage://media/voiceovers/job-cliploss/voice.wav"
	subs := "storage://media/subtitles/job-cliploss/subtitles.ass"
	job.Step = models.StepMix
	job.VoiceLocator = &voice
	job.SubtitleLocator = &subs
	job.Payload.Sentences = []string{"First sentence here now.", "Second sentence here now."}
	job.Payload.ImagePaths = imgs
	job.Payload.VideoWidth, job.Payload.VideoHeight = 1080, 1920
	rig.store.put(job)

	if err := rig.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("resume run: %v", err)
	}

	final, _ := rig.store.GetJob(context.Background(), "job-cliploss")
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s, error = %v", final.Status, final.Error)
	}
	if rig.tts.callCount() != 2 {
		t.Errorf("synthesize calls = %d, want 2 (lost clips re-synthesized)", rig.tts.callCount())
	}
	if rig.media.assembles != 1 {
		t.Errorf("timed narration assemblies = %d, want 1 (audio must follow the plan windows)", rig.media.assembles)
	}
	if rig.media.slideshows != 1 {
		t.Errorf("slideshow renders = %d, want 1", rig.media.slideshows)
	}
}

func TestBaseVideoModeSkipsImages(t *testing.T) {
	rig := newTestRig(t)
	job := baseVideoJob("job-noimg")
	rig.store.put(job)

	if err := rig.pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("run: %v", err)
	}
	if rig.images.calls != 0 {
		t.Errorf("image generator called %d times in base_video mode", rig.images.calls)
	}
	for _, step := range rig.store.advanced {
		if step == models.StepImages {
			t.Error("images step checkpointed in base_video mode")
		}
	}
}
