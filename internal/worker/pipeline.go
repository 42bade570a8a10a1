package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/bobarin/rendercast/internal/models"
	"github.com/bobarin/rendercast/internal/planner"
	"github.com/bobarin/rendercast/internal/script"
	"github.com/bobarin/rendercast/internal/services"
	"github.com/bobarin/rendercast/internal/storage"
)

// PipelineConfig carries the tunable pipeline constants. Defaults applies
// the values the service ships with; all of them come from config in
// production.
type PipelineConfig struct {
	Timing planner.Config

	// Download caps for caller-supplied media.
	MaxVideoBytes int64
	MaxAudioBytes int64

	// Parallelism and per-image retry budget for generated-images mode.
	ImageConcurrency int
	ImageAttempts    int
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.MaxVideoBytes == 0 {
		c.MaxVideoBytes = 500 * 1024 * 1024
	}
	if c.MaxAudioBytes == 0 {
		c.MaxAudioBytes = 100 * 1024 * 1024
	}
	if c.ImageConcurrency == 0 {
		c.ImageConcurrency = 4
	}
	if c.ImageAttempts == 0 {
		c.ImageAttempts = 2
	}
	return c
}

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Store    Store
	Media    Media
	TTS      services.TTSEngine
	Uploader Uploader
	Notifier Notifier
	Images   services.ImageGenerator // nil disables generated-images mode
	Enhancer PromptEnhancer          // nil falls back to raw sentences as prompts
}

// Pipeline executes the render step state machine for one job at a time.
// Every step checkpoints through the store before the next one starts, so
// a crashed process resumes from the last completed step instead of
// repeating work.
type Pipeline struct {
	store    Store
	media    Media
	tts      services.TTSEngine
	uploader Uploader
	notifier Notifier
	images   services.ImageGenerator
	enhancer PromptEnhancer
	proc     *script.Processor
	cfg      PipelineConfig
}

func NewPipeline(d Deps, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		store:    d.Store,
		media:    d.Media,
		tts:      d.TTS,
		uploader: d.Uploader,
		notifier: d.Notifier,
		images:   d.Images,
		enhancer: d.Enhancer,
		proc:     script.NewProcessor(),
		cfg:      cfg.withDefaults(),
	}
}

// jobRun is the transient per-job state threaded between steps. Everything
// here is reconstructible: from the payload, from cached files in the job
// dir, or from uploaded artifacts.
type jobRun struct {
	job *models.Job
	dir string

	clipPaths []string
	durations []float64
	voicePath string
	plan      planner.Plan
	planReady bool
	subPath   string
	audioPath string
	basePath  string
	videoPath string
	thumbPath string
}

// Run drives one job through every remaining step. The returned error is
// the failing step's error; the job has already been marked failed.
func (p *Pipeline) Run(ctx context.Context, job *models.Job) error {
	dir, err := p.media.JobDir(job.ID)
	if err != nil {
		p.fail(ctx, job.ID, err)
		return err
	}

	r := &jobRun{job: job, dir: dir}

	type stage struct {
		step models.Step
		fn   func(context.Context, *jobRun) (*models.ArtifactUpdates, error)
	}

	stages := []stage{
		{models.StepScript, p.stepScript},
		{models.StepVoice, p.stepVoice},
		{models.StepVoiceUploaded, p.stepVoiceUploaded},
		{models.StepVoiceNotified, p.stepVoiceNotified},
		{models.StepImages, p.stepImages},
		{models.StepDimensions, p.stepDimensions},
		{models.StepSubtitles, p.stepSubtitles},
		{models.StepMix, p.stepMix},
		{models.StepRender, p.stepRender},
		{models.StepAssetsUploaded, p.stepAssetsUploaded},
		{models.StepThumbnail, p.stepThumbnail},
		{models.StepCompleteNotified, p.stepCompleteNotified},
	}

	for _, st := range stages {
		if st.step == models.StepImages && job.Payload.VideoMode != models.VideoModeGeneratedImages {
			continue
		}
		if models.StepIndex(job.Step) >= models.StepIndex(st.step) {
			log.Printf("[%s] Step %s already done, skipping", job.ID, st.step)
			continue
		}

		log.Printf("[%s] Running step %s", job.ID, st.step)
		upd, err := st.fn(ctx, r)
		if err != nil {
			err = fmt.Errorf("step %s: %w", st.step, err)
			p.fail(ctx, job.ID, err)
			return err
		}

		if upd == nil {
			upd = &models.ArtifactUpdates{}
		}
		if _, err := p.store.AdvanceJob(ctx, job.ID, st.step, *upd); err != nil {
			err = fmt.Errorf("checkpoint %s: %w", st.step, err)
			p.fail(ctx, job.ID, err)
			return err
		}
		applyUpdates(job, st.step, upd)
	}

	done := models.JobStatusCompleted
	if _, err := p.store.AdvanceJob(ctx, job.ID, models.StepCompleted, models.ArtifactUpdates{Status: &done}); err != nil {
		err = fmt.Errorf("checkpoint %s: %w", models.StepCompleted, err)
		p.fail(ctx, job.ID, err)
		return err
	}
	job.Step = models.StepCompleted
	job.Status = done

	p.media.CleanupJob(job.ID)
	log.Printf("[%s] Job completed", job.ID)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, jobID string, cause error) {
	log.Printf("[%s] Job failed: %v", jobID, cause)
	if err := p.store.SetJobFailed(ctx, jobID, cause.Error()); err != nil {
		log.Printf("[%s] Could not record failure: %v", jobID, err)
	}
}

// applyUpdates mirrors the store's COALESCE merge on the in-memory job so
// later steps see what was just persisted.
func applyUpdates(job *models.Job, step models.Step, upd *models.ArtifactUpdates) {
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
}

// ---------------------------------------------------------------------------
// Steps
// ---------------------------------------------------------------------------

func (p *Pipeline) stepScript(ctx context.Context, r *jobRun) (*models.ArtifactUpdates, error) {
	if len(r.job.Payload.Sentences) > 0 {
		return nil, nil
	}

	sentences := p.proc.Process(r.job.Payload.Script)
	if len(sentences) == 0 {
		return nil, fmt.Errorf("script produced no sentences")
	}

	payload := r.job.Payload
	payload.Sentences = sentences
	log.Printf("[%s] Script split into %d sentences", r.job.ID, len(sentences))
	return &models.ArtifactUpdates{Payload: &payload}, nil
}

// stepVoice synthesizes each sentence to a cached per-sentence clip and
// concatenates them into the full voiceover. Existing non-empty clip files
// are reused, so a rerun after a crash only synthesizes what is missing.
// When the voiceover artifact is already in storage, synthesis is skipped
// entirely.
func (p *Pipeline) stepVoice(ctx context.Context, r *jobRun) (*models.ArtifactUpdates, error) {
	if r.job.VoiceLocator != nil {
		log.Printf("[%s] Voiceover already in storage, skipping synthesis", r.job.ID)
		return nil, nil
	}

	if err := p.synthesizeClips(ctx, r); err != nil {
		return nil, err
	}

	r.voicePath = filepath.Join(r.dir, "voice.wav")
	if err := p.media.ConcatAudio(ctx, r.clipPaths, r.voicePath); err != nil {
		return nil, err
	}

	return nil, nil
}

// synthesizeClips fills r.clipPaths and r.durations, synthesizing only the
// clips missing from the job dir. Cached clips are measured, not redone.
func (p *Pipeline) synthesizeClips(ctx context.Context, r *jobRun) error {
	ext := p.tts.AudioExtension()
	sentences := r.job.Payload.Sentences
	r.clipPaths = make([]string, len(sentences))
	r.durations = make([]float64, len(sentences))

	for i, sentence := range sentences {
		clipPath := filepath.Join(r.dir, fmt.Sprintf("seg_%03d.%s", i, ext))
		r.clipPaths[i] = clipPath

		if fileNonEmpty(clipPath) {
			log.Printf("[%s] Clip %d cached, skipping synthesis", r.job.ID, i)
		} else {
			audio, err := p.tts.Synthesize(ctx, sentence)
			if err != nil {
				return fmt.Errorf("synthesize sentence %d: %w", i, err)
			}
			if err := os.WriteFile(clipPath, audio.AudioData, 0644); err != nil {
				return fmt.Errorf("write clip %d: %w", i, err)
			}
		}

		d, err := p.media.AudioDuration(ctx, clipPath)
		if err != nil {
			return fmt.Errorf("measure clip %d: %w", i, err)
		}
		r.durations[i] = d
	}
	return nil
}

func (p *Pipeline) stepVoiceUploaded(ctx context.Context, r *jobRun) (*models.ArtifactUpdates, error) {
	if r.job.VoiceLocator != nil {
		return nil, nil
	}
	// A restart between the voice checkpoint and this step leaves the run
	// state empty; recover the file from the job dir instead of failing.
	if err := p.ensureVoiceLocal(ctx, r); err != nil {
		return nil, err
	}

	locator, err := p.uploader.UploadArtifact(ctx, r.voicePath, storage.PrefixVoiceovers, r.job.ID)
	if err != nil {
		return nil, fmt.Errorf("upload voiceover: %w", err)
	}
	return &models.ArtifactUpdates{VoiceLocator: &locator}, nil
}

func (p *Pipeline) stepVoiceNotified(ctx context.Context, r *jobRun) (*models.ArtifactUpdates, error) {
	if err := p.notifier.NotifyVoiceoverUploaded(ctx, r.job.ID, r.job.VoiceLocator); err != nil {
		log.Printf("[%s] Voiceover webhook failed (ignored): %v", r.job.ID, err)
	}
	return nil, nil
}

// stepImages enhances each sentence into an image prompt and generates the
// stills in parallel. Images are cached on disk and their paths persisted
// in the payload, so a resumed job only regenerates missing files.
func (p *Pipeline) stepImages(ctx context.Context, r *jobRun) (*models.ArtifactUpdates, error) {
	if p.images == nil {
		return nil, fmt.Errorf("generated_images mode requested but no image provider configured")
	}

	sentences := r.job.Payload.Sentences
	prompts := sentences
	if p.enhancer != nil {
		title := ""
		if r.job.Payload.Title != nil {
			title = *r.job.Payload.Title
		}
		enhanced, err := p.enhancer.EnhancePrompts(ctx, sentences, title)
		if err != nil {
			log.Printf("[%s] Prompt enhancement failed, using raw sentences: %v", r.job.ID, err)
		} else {
			prompts = enhanced
		}
	}

	paths := make([]string, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ImageConcurrency)

	for i, prompt := range prompts {
		imgPath := filepath.Join(r.dir, fmt.Sprintf("img_%03d.png", i))
		paths[i] = imgPath
		if fileNonEmpty(imgPath) {
			log.Printf("[%s] Image %d cached, skipping generation", r.job.ID, i)
			continue
		}

		g.Go(func() error {
			var lastErr error
			for attempt := 1; attempt <= p.cfg.ImageAttempts; attempt++ {
				data, err := p.images.GenerateImage(gctx, prompt, r.job.Payload.AspectRatio)
				if err == nil {
					return os.WriteFile(imgPath, data, 0644)
				}
				lastErr = err
				log.Printf("[%s] Image %d attempt %d failed: %v", r.job.ID, i, attempt, err)
			}
			return fmt.Errorf("generate image %d: %w", i, lastErr)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	payload := r.job.Payload
	payload.ImagePaths = paths
	return &models.ArtifactUpdates{Payload: &payload}, nil
}

// stepDimensions establishes the output frame size. Base-video mode probes
// the caller's video; generated-images mode derives it from the aspect
// ratio.
func (p *Pipeline) stepDimensions(ctx context.Context, r *jobRun) (*models.ArtifactUpdates, error) {
	if r.job.Payload.VideoWidth > 0 && r.job.Payload.VideoHeight > 0 {
		return nil, nil
	}

	payload := r.job.Payload
	if payload.VideoMode == models.VideoModeGeneratedImages {
		payload.VideoWidth, payload.VideoHeight = dimensionsForAspect(payload.AspectRatio)
		return &models.ArtifactUpdates{Payload: &payload}, nil
	}

	basePath, err := p.ensureBaseVideo(ctx, r)
	if err != nil {
		return nil, err
	}
	w, h, err := p.media.VideoDimensions(ctx, basePath)
	if err != nil {
		return nil, fmt.Errorf("probe base video: %w", err)
	}
	payload.VideoWidth, payload.VideoHeight = w, h
	log.Printf("[%s] Base video is %dx%d", r.job.ID, w, h)
	return &models.ArtifactUpdates{Payload: &payload}, nil
}

func (p *Pipeline) stepSubtitles(ctx context.Context, r *jobRun) (*models.ArtifactUpdates, error) {
	if err := p.ensurePlan(ctx, r); err != nil {
		return nil, err
	}

	payload := r.job.Payload
	style := services.DefaultSubtitleStyle(payload.VideoWidth, payload.VideoHeight, payload.Script)
	style = services.MergeSubtitleStyle(style, payload.SubtitleStyle)

	r.subPath = filepath.Join(r.dir, "subtitles.ass")
	if err := services.WriteASS(payload.Sentences, r.plan, payload.VideoWidth, payload.VideoHeight, style, r.subPath); err != nil {
		return nil, err
	}

	locator, err := p.uploader.UploadArtifact(ctx, r.subPath, storage.PrefixSubtitles, r.job.ID)
	if err != nil {
		return nil, fmt.Errorf("upload subtitles: %w", err)
	}
	return &models.ArtifactUpdates{SubtitleLocator: &locator}, nil
}

// stepMix prepares the final audio track: narration placed on the plan's
// timeline (generated-images mode), plus optional background music.
func (p *Pipeline) stepMix(ctx context.Context, r *jobRun) (*models.ArtifactUpdates, error) {
	if r.job.Payload.VideoMode == models.VideoModeGeneratedImages {
		// The paced timeline places each clip inside its plan window, so
		// the per-sentence clips are required here. Re-synthesize any that
		// are gone rather than substitute the continuous track, which would
		// drift against the slideshow and subtitle windows.
		if err := p.synthesizeClips(ctx, r); err != nil {
			return nil, err
		}
		if err := p.ensurePlan(ctx, r); err != nil {
			return nil, err
		}
		timed := filepath.Join(r.dir, "narration_timed.wav")
		if err := p.media.AssembleTimedNarration(ctx, r.clipPaths, r.plan, timed); err != nil {
			return nil, err
		}
		r.audioPath = timed
	} else {
		if err := p.ensurePlan(ctx, r); err != nil {
			return nil, err
		}
		if err := p.ensureVoiceLocal(ctx, r); err != nil {
			return nil, err
		}
		r.audioPath = r.voicePath
	}

	if r.job.Payload.BGMURL != nil && *r.job.Payload.BGMURL != "" {
		bgmPath := filepath.Join(r.dir, "bgm.audio")
		if err := p.uploader.FetchToFile(ctx, *r.job.Payload.BGMURL, bgmPath, p.cfg.MaxAudioBytes); err != nil {
			return nil, fmt.Errorf("fetch background music: %w", err)
		}
		mixed := filepath.Join(r.dir, "audio_mixed.wav")
		if err := p.media.MixBackgroundMusic(ctx, r.audioPath, bgmPath, mixed); err != nil {
			return nil, err
		}
		r.audioPath = mixed
	}

	return nil, nil
}

func (p *Pipeline) stepRender(ctx context.Context, r *jobRun) (*models.ArtifactUpdates, error) {
	if r.audioPath == "" {
		// Mix was checkpointed before a restart; rebuild its local product
		// first so the plan is computed from measured clip durations.
		if _, err := p.stepMix(ctx, r); err != nil {
			return nil, err
		}
	}
	if err := p.ensurePlan(ctx, r); err != nil {
		return nil, err
	}
	if err := p.ensureSubtitlesLocal(ctx, r); err != nil {
		return nil, err
	}

	payload := r.job.Payload
	r.videoPath = filepath.Join(r.dir, "final.mp4")

	if payload.VideoMode == models.VideoModeGeneratedImages {
		if !allFilesNonEmpty(payload.ImagePaths) {
			upd, err := p.stepImages(ctx, r)
			if err != nil {
				return nil, err
			}
			if upd != nil && upd.Payload != nil {
				r.job.Payload = *upd.Payload
			}
			payload = r.job.Payload
		}
		err := p.media.RenderSlideshow(ctx, payload.ImagePaths, r.plan, r.audioPath, r.subPath,
			payload.VideoWidth, payload.VideoHeight, r.videoPath)
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	basePath, err := p.ensureBaseVideo(ctx, r)
	if err != nil {
		return nil, err
	}
	err = p.media.RenderVideo(ctx, basePath, r.audioPath, r.subPath,
		payload.VideoWidth, payload.VideoHeight, r.videoPath)
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func (p *Pipeline) stepAssetsUploaded(ctx context.Context, r *jobRun) (*models.ArtifactUpdates, error) {
	if r.job.VideoLocator != nil {
		return nil, nil
	}
	// A restart between the render checkpoint and this step leaves the run
	// state empty; pick the file up from the job dir, or re-render if the
	// scratch dir is gone too.
	if r.videoPath == "" {
		local := filepath.Join(r.dir, "final.mp4")
		if fileNonEmpty(local) {
			r.videoPath = local
		} else if _, err := p.stepRender(ctx, r); err != nil {
			return nil, fmt.Errorf("rebuild render: %w", err)
		}
	}

	locator, err := p.uploader.UploadArtifact(ctx, r.videoPath, storage.PrefixRenders, r.job.ID)
	if err != nil {
		return nil, fmt.Errorf("upload video: %w", err)
	}
	return &models.ArtifactUpdates{VideoLocator: &locator}, nil
}

// stepThumbnail grabs and uploads a preview frame. Thumbnail failures are
// logged and the job carries on without one.
func (p *Pipeline) stepThumbnail(ctx context.Context, r *jobRun) (*models.ArtifactUpdates, error) {
	if r.job.ThumbnailLocator != nil {
		return nil, nil
	}
	if r.videoPath == "" {
		local := filepath.Join(r.dir, "final.mp4")
		if !fileNonEmpty(local) && r.job.VideoLocator != nil {
			if err := p.uploader.FetchToFile(ctx, *r.job.VideoLocator, local, p.cfg.MaxVideoBytes); err != nil {
				log.Printf("[%s] Could not fetch render for thumbnail (ignored): %v", r.job.ID, err)
			}
		}
		if fileNonEmpty(local) {
			r.videoPath = local
		}
	}
	if r.videoPath == "" {
		log.Printf("[%s] No local render for thumbnail, skipping", r.job.ID)
		return nil, nil
	}

	r.thumbPath = filepath.Join(r.dir, "thumbnail.jpg")
	if err := p.media.ExtractThumbnail(ctx, r.videoPath, r.thumbPath); err != nil {
		log.Printf("[%s] Thumbnail extraction failed (ignored): %v", r.job.ID, err)
		return nil, nil
	}

	locator, err := p.uploader.UploadArtifact(ctx, r.thumbPath, storage.PrefixThumbnails, r.job.ID)
	if err != nil {
		log.Printf("[%s] Thumbnail upload failed (ignored): %v", r.job.ID, err)
		return nil, nil
	}
	return &models.ArtifactUpdates{ThumbnailLocator: &locator}, nil
}

func (p *Pipeline) stepCompleteNotified(ctx context.Context, r *jobRun) (*models.ArtifactUpdates, error) {
	err := p.notifier.NotifyVideoCompleted(ctx, r.job.ID,
		r.job.VoiceLocator, r.job.SubtitleLocator, r.job.VideoLocator, r.job.ThumbnailLocator)
	if err != nil {
		log.Printf("[%s] Completion webhook failed (ignored): %v", r.job.ID, err)
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Lazy reconstruction helpers
//
// A checkpointed step is skipped on resume, but its local products may be
// needed by later steps. These helpers rebuild that state from cached
// files, uploaded artifacts, or the payload — never by redoing paid work.
// ---------------------------------------------------------------------------

// ensureVoiceLocal guarantees r.voicePath points at the voiceover file,
// fetching the uploaded artifact when the scratch dir does not have it.
// It also fills r.clipPaths with whatever per-sentence clips survive.
func (p *Pipeline) ensureVoiceLocal(ctx context.Context, r *jobRun) error {
	if r.voicePath != "" && fileNonEmpty(r.voicePath) {
		return nil
	}

	if len(r.clipPaths) == 0 {
		r.clipPaths = p.cachedClipPaths(r)
	}

	local := filepath.Join(r.dir, "voice.wav")
	if fileNonEmpty(local) {
		r.voicePath = local
		return nil
	}
	if allFilesNonEmpty(r.clipPaths) && len(r.clipPaths) > 0 {
		if err := p.media.ConcatAudio(ctx, r.clipPaths, local); err != nil {
			return err
		}
		r.voicePath = local
		return nil
	}
	if r.job.VoiceLocator == nil {
		// Nothing survives on disk and nothing was uploaded; redo the voice
		// step's work into the same cached paths.
		if err := p.synthesizeClips(ctx, r); err != nil {
			return fmt.Errorf("re-synthesize voiceover: %w", err)
		}
		if err := p.media.ConcatAudio(ctx, r.clipPaths, local); err != nil {
			return err
		}
		r.voicePath = local
		return nil
	}

	if err := p.uploader.FetchToFile(ctx, *r.job.VoiceLocator, local, p.cfg.MaxAudioBytes); err != nil {
		return fmt.Errorf("fetch voiceover: %w", err)
	}
	r.voicePath = local
	return nil
}

// cachedClipPaths returns the expected per-sentence clip paths for this job.
func (p *Pipeline) cachedClipPaths(r *jobRun) []string {
	ext := p.tts.AudioExtension()
	paths := make([]string, len(r.job.Payload.Sentences))
	for i := range paths {
		paths[i] = filepath.Join(r.dir, fmt.Sprintf("seg_%03d.%s", i, ext))
	}
	return paths
}

// ensureDurations recovers per-sentence narration durations. Preference
// order: measurements from this run, cached clip files, and finally the
// word-count split of the whole voiceover's length.
func (p *Pipeline) ensureDurations(ctx context.Context, r *jobRun) error {
	if len(r.durations) == len(r.job.Payload.Sentences) && len(r.durations) > 0 {
		return nil
	}

	sentences := r.job.Payload.Sentences
	if len(r.clipPaths) == 0 {
		r.clipPaths = p.cachedClipPaths(r)
	}

	segments := make([]planner.Segment, len(sentences))
	measuredAll := true
	for i, text := range sentences {
		segments[i] = planner.Segment{Text: text}
		if fileNonEmpty(r.clipPaths[i]) {
			d, err := p.media.AudioDuration(ctx, r.clipPaths[i])
			if err == nil {
				segments[i].Duration = d
				segments[i].Measured = true
				continue
			}
			log.Printf("[%s] Could not measure cached clip %d: %v", r.job.ID, i, err)
		}
		measuredAll = false
	}

	voiceTotal := 0.0
	if !measuredAll {
		if err := p.ensureVoiceLocal(ctx, r); err != nil {
			log.Printf("[%s] No voiceover for duration estimation: %v", r.job.ID, err)
		} else if d, err := p.media.AudioDuration(ctx, r.voicePath); err == nil {
			voiceTotal = d
		} else {
			log.Printf("[%s] Could not measure voiceover: %v", r.job.ID, err)
		}
	}

	r.durations = planner.ResolveDurations(segments, voiceTotal)
	return nil
}

// ensurePlan computes the timing plan. Base-video renders follow the raw
// narration timeline; generated-images renders get the paced plan with
// lead, linger, buffer, and crossfades.
func (p *Pipeline) ensurePlan(ctx context.Context, r *jobRun) error {
	if r.planReady {
		return nil
	}
	if err := p.ensureDurations(ctx, r); err != nil {
		return err
	}

	cfg := planner.Config{}
	if r.job.Payload.VideoMode == models.VideoModeGeneratedImages {
		cfg = p.cfg.Timing
	}
	r.plan = planner.Build(r.durations, cfg)
	r.planReady = true
	return nil
}

// ensureSubtitlesLocal rebuilds the local .ass path, fetching the uploaded
// artifact if the subtitles step was checkpointed before a restart.
func (p *Pipeline) ensureSubtitlesLocal(ctx context.Context, r *jobRun) error {
	if r.subPath != "" && fileNonEmpty(r.subPath) {
		return nil
	}

	local := filepath.Join(r.dir, "subtitles.ass")
	if fileNonEmpty(local) {
		r.subPath = local
		return nil
	}
	if r.job.SubtitleLocator == nil {
		// Render without burned-in subtitles rather than failing the job.
		r.subPath = ""
		return nil
	}
	if err := p.uploader.FetchToFile(ctx, *r.job.SubtitleLocator, local, p.cfg.MaxAudioBytes); err != nil {
		return fmt.Errorf("fetch subtitles: %w", err)
	}
	r.subPath = local
	return nil
}

// ensureBaseVideo downloads the caller's base video once per run.
func (p *Pipeline) ensureBaseVideo(ctx context.Context, r *jobRun) (string, error) {
	if r.basePath != "" && fileNonEmpty(r.basePath) {
		return r.basePath, nil
	}

	local := filepath.Join(r.dir, "base_video.mp4")
	if !fileNonEmpty(local) {
		if r.job.Payload.BaseVideoURL == "" {
			return "", fmt.Errorf("base video URL missing")
		}
		if err := p.uploader.FetchToFile(ctx, r.job.Payload.BaseVideoURL, local, p.cfg.MaxVideoBytes); err != nil {
			return "", fmt.Errorf("fetch base video: %w", err)
		}
	}
	r.basePath = local
	return local, nil
}

func dimensionsForAspect(aspect string) (int, int) {
	switch aspect {
	case "16:9":
		return 1920, 1080
	case "1:1":
		return 1080, 1080
	default: // 9:16
		return 1080, 1920
	}
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func allFilesNonEmpty(paths []string) bool {
	if len(paths) == 0 {
		return false
	}
	for _, p := range paths {
		if !fileNonEmpty(p) {
			return false
		}
	}
	return true
}
