package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ---------------------------------------------------------------------------
// Piper Text-to-Speech Service
// Runs the piper binary locally, one invocation per sentence. Piper writes
// WAV to a file; we read it back and return the bytes so the engine looks
// like any other provider.
// ---------------------------------------------------------------------------

type PiperService struct {
	binaryPath string
	modelPath  string
}

var _ TTSEngine = (*PiperService)(nil)

func NewPiperService(binaryPath, modelPath string) *PiperService {
	if binaryPath == "" {
		binaryPath = "piper"
	}
	return &PiperService{
		binaryPath: binaryPath,
		modelPath:  modelPath,
	}
}

func (s *PiperService) AudioExtension() string { return "wav" }

// Synthesize runs piper for one sentence. The process is pinned to a single
// thread; multiple jobs synthesize concurrently and unbounded BLAS threading
// oversubscribes the CPU badly on small hosts.
func (s *PiperService) Synthesize(ctx context.Context, text string) (*TTSResponse, error) {
	tmp, err := os.CreateTemp("", "piper-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create piper temp file: %w", err)
	}
	outPath := tmp.Name()
	tmp.Close()
	defer os.Remove(outPath)

	args := []string{
		"--model", s.modelPath,
		"--output_file", outPath,
	}

	cmd := exec.CommandContext(ctx, s.binaryPath, args...)
	cmd.Stdin = strings.NewReader(text)
	cmd.Env = append(os.Environ(),
		"OMP_NUM_THREADS=1",
		"OPENBLAS_NUM_THREADS=1",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("piper failed (model=%s): %w: %s",
			filepath.Base(s.modelPath), err, truncateLog(stderr.String(), 300))
	}

	audioData, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read piper output: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("piper produced empty audio")
	}

	log.Printf("[Piper] Synthesized %d chars -> %d bytes", len(text), len(audioData))

	return &TTSResponse{
		AudioData: audioData,
		Format:    "wav",
	}, nil
}

// truncateLog limits a string to maxLen characters for log and error output.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
