package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bobarin/rendercast/internal/models"
	"github.com/bobarin/rendercast/internal/planner"
	"github.com/bobarin/rendercast/internal/services"
)

// fakeStore is an in-memory Store with the same advance-only checkpoint
// semantics as the Postgres implementation.
type fakeStore struct {
	mu       sync.Mutex
	jobs     map[string]*models.Job
	advanced []models.Step
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[string]*models.Job{}}
}

func (s *fakeStore) put(job *models.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
}

func (s *fakeStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found")
	}
	copied := *job
	return &copied, nil
}

func (s *fakeStore) AdvanceJob(ctx context.Context, id string, step models.Step, upd models.ArtifactUpdates) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, fmt.Errorf("job not found")
	}
	if models.StepIndex(job.Step) >= models.StepIndex(step) {
		return false, nil
	}
	job.Step = step
	if upd.Status != nil {
		job.Status = *upd.Status
	}
	if upd.VoiceLocator != nil {
		job.VoiceLocator = upd.VoiceLocator
	}
	if upd.SubtitleLocator != nil {
		job.SubtitleLocator = upd.SubtitleLocator
	}
	if upd.VideoLocator != nil {
		job.VideoLocator = upd.VideoLocator
	}
	if upd.ThumbnailLocator != nil {
		job.ThumbnailLocator = upd.ThumbnailLocator
	}
	if upd.Payload != nil {
		job.Payload = *upd.Payload
	}
	s.advanced = append(s.advanced, step)
	return true, nil
}

func (s *fakeStore) SetJobStatus(ctx context.Context, id string, status models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found")
	}
	job.Status = status
	return nil
}

func (s *fakeStore) SetJobFailed(ctx context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found")
	}
	job.Status = models.JobStatusFailed
	job.Error = &message
	return nil
}

// fakeTTS counts synthesis calls; the byte payload only needs to be
// non-empty so the pipeline's file cache sees it.
type fakeTTS struct {
	mu    sync.Mutex
	calls int
	gate  func() // optional hook for concurrency tests
}

func (t *fakeTTS) Synthesize(ctx context.Context, text string) (*services.TTSResponse, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if t.gate != nil {
		t.gate()
	}
	return &services.TTSResponse{AudioData: []byte("fake-audio"), Format: "wav"}, nil
}

func (t *fakeTTS) AudioExtension() string { return "wav" }

func (t *fakeTTS) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// fakeMedia produces real (dummy) files so the pipeline's disk-cache checks
// behave exactly as in production.
type fakeMedia struct {
	root       string
	renderErr  error
	renders    int
	slideshows int
	assembles  int
	mu         sync.Mutex
}

func newFakeMedia(root string) *fakeMedia { return &fakeMedia{root: root} }

func (m *fakeMedia) JobDir(jobID string) (string, error) {
	dir := filepath.Join(m.root, jobID)
	return dir, os.MkdirAll(dir, 0755)
}

func (m *fakeMedia) CleanupJob(jobID string) {}

func (m *fakeMedia) AudioDuration(ctx context.Context, path string) (float64, error) {
	return 2.0, nil
}

func (m *fakeMedia) VideoDimensions(ctx context.Context, path string) (int, int, error) {
	return 1280, 720, nil
}

func (m *fakeMedia) ConcatAudio(ctx context.Context, clipPaths []string, outputPath string) error {
	return os.WriteFile(outputPath, []byte("voice"), 0644)
}

func (m *fakeMedia) AssembleTimedNarration(ctx context.Context, clipPaths []string, plan planner.Plan, outputPath string) error {
	m.mu.Lock()
	m.assembles++
	m.mu.Unlock()
	return os.WriteFile(outputPath, []byte("timed"), 0644)
}

func (m *fakeMedia) MixBackgroundMusic(ctx context.Context, narrationPath, musicPath, outputPath string) error {
	return os.WriteFile(outputPath, []byte("mixed"), 0644)
}

func (m *fakeMedia) RenderVideo(ctx context.Context, videoPath, audioPath, subtitlePath string, width, height int, outputPath string) error {
	if m.renderErr != nil {
		return m.renderErr
	}
	m.mu.Lock()
	m.renders++
	m.mu.Unlock()
	return os.WriteFile(outputPath, []byte("video"), 0644)
}

func (m *fakeMedia) RenderSlideshow(ctx context.Context, imagePaths []string, plan planner.Plan, audioPath, subtitlePath string, width, height int, outputPath string) error {
	if m.renderErr != nil {
		return m.renderErr
	}
	m.mu.Lock()
	m.slideshows++
	m.mu.Unlock()
	return os.WriteFile(outputPath, []byte("slideshow"), 0644)
}

func (m *fakeMedia) ExtractThumbnail(ctx context.Context, videoPath, outputPath string) error {
	return os.WriteFile(outputPath, []byte("thumb"), 0644)
}

// fakeUploader hands out storage locators and serves fetches with dummy
// bytes. fetchErrs fails specific refs, once each, to simulate transient
// network trouble.
type fakeUploader struct {
	mu        sync.Mutex
	uploads   []string
	fetchErrs map[string]error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{fetchErrs: map[string]error{}}
}

func (u *fakeUploader) UploadArtifact(ctx context.Context, localPath, prefix, jobID string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	locator := fmt.Sprintf("storage://media/%s/%s/%s", prefix, jobID, filepath.Base(localPath))
	u.uploads = append(u.uploads, locator)
	return locator, nil
}

func (u *fakeUploader) FetchToFile(ctx context.Context, ref, localPath string, maxBytes int64) error {
	u.mu.Lock()
	if err, ok := u.fetchErrs[ref]; ok {
		delete(u.fetchErrs, ref)
		u.mu.Unlock()
		return err
	}
	u.mu.Unlock()
	return os.WriteFile(localPath, []byte("fetched:"+ref), 0644)
}

// fakeNotifier records events and optionally fails every delivery.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (n *fakeNotifier) NotifyVoiceoverUploaded(ctx context.Context, jobID string, voiceURL *string) error {
	n.mu.Lock()
	n.events = append(n.events, "voiceover_uploaded")
	n.mu.Unlock()
	return n.err
}

func (n *fakeNotifier) NotifyVideoCompleted(ctx context.Context, jobID string, voiceURL, subtitlesURL, videoURL, thumbnailURL *string) error {
	n.mu.Lock()
	n.events = append(n.events, "video_completed")
	n.mu.Unlock()
	return n.err
}

type fakeImages struct {
	mu    sync.Mutex
	calls int
}

func (g *fakeImages) GenerateImage(ctx context.Context, prompt, aspectRatio string) ([]byte, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return []byte("png-bytes"), nil
}

type fakeEnhancer struct{}

func (e *fakeEnhancer) EnhancePrompts(ctx context.Context, sentences []string, title string) ([]string, error) {
	prompts := make([]string, len(sentences))
	for i, s := range sentences {
		prompts[i] = "scene: " + s
	}
	return prompts, nil
}
