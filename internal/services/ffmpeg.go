package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bobarin/rendercast/internal/planner"
)

// ---------------------------------------------------------------------------
// FFmpegService
// All media probing, assembly, and rendering goes through ffmpeg/ffprobe
// subprocesses. Every method takes a context so a dying job cancels its
// render mid-flight.
// ---------------------------------------------------------------------------

const videoFPS = 30

type FFmpegService struct {
	tempDir string
}

func NewFFmpegService(tempDir string) (*FFmpegService, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &FFmpegService{tempDir: tempDir}, nil
}

// JobDir returns (and creates) the per-job scratch directory. Per-sentence
// audio and generated images are cached here so a resumed job finds them.
func (s *FFmpegService) JobDir(jobID string) (string, error) {
	dir := filepath.Join(s.tempDir, jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create job dir: %w", err)
	}
	return dir, nil
}

// CleanupJob removes a job's scratch directory.
func (s *FFmpegService) CleanupJob(jobID string) {
	os.RemoveAll(filepath.Join(s.tempDir, jobID))
}

// AudioDuration returns the duration of an audio file in seconds.
func (s *FFmpegService) AudioDuration(ctx context.Context, audioPath string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", audioPath, err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return durationSec, nil
}

// VideoDimensions returns the pixel width and height of the first video
// stream in a file.
func (s *FFmpegService) VideoDimensions(ctx context.Context, videoPath string) (int, int, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		videoPath,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe dimensions failed for %s: %w", videoPath, err)
	}

	var probe struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0, 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 || probe.Streams[0].Width == 0 || probe.Streams[0].Height == 0 {
		return 0, 0, fmt.Errorf("no video stream with dimensions in %s", videoPath)
	}

	return probe.Streams[0].Width, probe.Streams[0].Height, nil
}

// ConcatAudio joins per-sentence audio clips into one file using the concat
// demuxer, re-encoding to 44.1kHz PCM so downstream filters see a uniform
// stream regardless of the TTS provider's native format.
func (s *FFmpegService) ConcatAudio(ctx context.Context, clipPaths []string, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no audio clips to concatenate")
	}

	listPath := outputPath + ".list.txt"
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	for _, path := range clipPaths {
		fmt.Fprintf(f, "file '%s'\n", path)
	}
	f.Close()
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-ar", "44100",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concat audio failed: %w", err)
	}

	return nil
}

// AssembleTimedNarration places per-sentence clips onto the plan's timeline:
// each clip is delayed to its window start plus the narration offset, then
// all clips are mixed and padded out to the plan total.
func (s *FFmpegService) AssembleTimedNarration(ctx context.Context, clipPaths []string, plan planner.Plan, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no narration clips to assemble")
	}
	if len(clipPaths) != len(plan.Windows) {
		return fmt.Errorf("clip count %d does not match plan segments %d", len(clipPaths), len(plan.Windows))
	}

	var filter strings.Builder
	var labels []string
	args := []string{}

	for i, path := range clipPaths {
		args = append(args, "-i", path)
		delayMs := int((plan.Windows[i].Start + plan.NarrationOffset) * 1000)
		label := fmt.Sprintf("n%d", i)
		fmt.Fprintf(&filter, "[%d:a]adelay=%d|%d[%s];", i, delayMs, delayMs, label)
		labels = append(labels, "["+label+"]")
	}

	// normalize=0 keeps each clip at its original level; the clips never
	// overlap so amix is only layering silence.
	fmt.Fprintf(&filter, "%samix=inputs=%d:normalize=0,apad=whole_dur=%.3f[aout]",
		strings.Join(labels, ""), len(clipPaths), plan.Total)

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[aout]",
		"-ar", "44100",
		"-c:a", "pcm_s16le",
		"-y",
		outputPath,
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg timed narration failed: %w", err)
	}

	return nil
}

// MixBackgroundMusic mixes looping background music underneath the narration
// track. Music volume is set low so narration stays dominant, and the mix
// ends when the narration ends.
func (s *FFmpegService) MixBackgroundMusic(ctx context.Context, narrationPath, musicPath, outputPath string) error {
	log.Printf("[FFmpeg] Mixing background music from %s", musicPath)

	// [0:a] = narration (full volume)
	// [1:a] = music at 12% — subtle, won't overpower narration
	// amix duration=first ends with the narration; dropout_transition gives
	// a smooth tail instead of a hard cut.
	filterComplex := "[0:a]volume=1.0[narration];" +
		"[1:a]volume=0.12[music];" +
		"[narration][music]amix=inputs=2:duration=first:dropout_transition=3[aout]"

	args := []string{
		"-i", narrationPath,
		"-stream_loop", "-1", // Loop the music if shorter than narration
		"-i", musicPath,
		"-filter_complex", filterComplex,
		"-map", "[aout]",
		"-ar", "44100",
		"-c:a", "pcm_s16le",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg mix background music failed: %w", err)
	}

	return nil
}

// RenderVideo burns subtitles onto a base video, scales to the target
// dimensions, and replaces the video's audio with the prepared track.
// subtitlePath may be empty.
func (s *FFmpegService) RenderVideo(ctx context.Context, videoPath, audioPath, subtitlePath string, width, height int, outputPath string) error {
	vf := fmt.Sprintf("scale=%d:%d", evenDim(width), evenDim(height))
	if subtitlePath != "" {
		vf += fmt.Sprintf(",ass='%s'", escapeFFmpegFilterPath(subtitlePath))
		log.Printf("[FFmpeg] Burning in subtitles from %s", subtitlePath)
	}

	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-vf", vf,
		"-map", "0:v",
		"-map", "1:a", // Narration track only; base video audio is discarded
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-shortest",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg render video failed: %w", err)
	}

	return nil
}

// RenderSlideshow builds the visual track from still images using the timing
// plan: each image is looped for its extended duration and neighbors are
// joined with crossfades at the plan's transition points, then subtitles are
// burned in and the audio track attached.
func (s *FFmpegService) RenderSlideshow(ctx context.Context, imagePaths []string, plan planner.Plan, audioPath, subtitlePath string, width, height int, outputPath string) error {
	n := len(imagePaths)
	if n == 0 {
		return fmt.Errorf("no images to render")
	}
	if n != len(plan.Windows) {
		return fmt.Errorf("image count %d does not match plan segments %d", n, len(plan.Windows))
	}

	w, h := evenDim(width), evenDim(height)

	var args []string
	for i, path := range imagePaths {
		args = append(args,
			"-loop", "1",
			"-t", fmt.Sprintf("%.3f", plan.Extended[i]),
			"-framerate", fmt.Sprintf("%d", videoFPS),
			"-i", path,
		)
	}
	args = append(args, "-i", audioPath)

	var filter strings.Builder
	for i := 0; i < n; i++ {
		// Scale then pad so any aspect-ratio mismatch letterboxes instead
		// of distorting; setsar keeps xfade happy across inputs.
		fmt.Fprintf(&filter,
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,format=yuv420p[v%d];",
			i, w, h, w, h, i)
	}

	prev := "[v0]"
	for i := 1; i < n; i++ {
		out := fmt.Sprintf("[x%d]", i)
		if i == n-1 {
			out = "[vout]"
		}
		// The xfade offset is where the outgoing segment's window ends on
		// the accumulated timeline.
		fmt.Fprintf(&filter, "%s[v%d]xfade=transition=fade:duration=%.3f:offset=%.3f%s;",
			prev, i, plan.Crossfade, plan.Windows[i-1].End, out)
		prev = out
	}

	final := prev
	if subtitlePath != "" {
		fmt.Fprintf(&filter, "%sass='%s'[vsub];", prev, escapeFFmpegFilterPath(subtitlePath))
		final = "[vsub]"
		log.Printf("[FFmpeg] Burning in subtitles from %s", subtitlePath)
	}

	filterStr := strings.TrimSuffix(filter.String(), ";")

	args = append(args,
		"-filter_complex", filterStr,
		"-map", final,
		"-map", fmt.Sprintf("%d:a", n),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-t", fmt.Sprintf("%.3f", plan.Total),
		"-y",
		outputPath,
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg render slideshow failed: %w", err)
	}

	return nil
}

// ExtractThumbnail grabs a single frame one second into the video.
func (s *FFmpegService) ExtractThumbnail(ctx context.Context, videoPath, outputPath string) error {
	args := []string{
		"-ss", "1",
		"-i", videoPath,
		"-vframes", "1",
		"-q:v", "3",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg extract thumbnail failed: %w", err)
	}

	return nil
}

// escapeFFmpegFilterPath escapes special characters in file paths for FFmpeg
// filter syntax. Filter strings treat colons, backslashes, and single quotes
// specially.
func escapeFFmpegFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

// evenDim rounds a dimension down to the nearest even number; libx264 with
// yuv420p rejects odd frame sizes.
func evenDim(d int) int {
	if d < 2 {
		return 2
	}
	return d - d%2
}
