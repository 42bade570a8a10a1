package services

import (
	"context"
	"fmt"
)

// ---------------------------------------------------------------------------
// TTSEngine — common interface for text-to-speech providers
// Both Piper and ElevenLabs implement this interface so the worker can use
// whichever is configured without knowing the underlying provider.
// ---------------------------------------------------------------------------

// TTSResponse is the common response type from any TTS provider.
type TTSResponse struct {
	AudioData []byte
	Format    string // "wav", "mp3", etc.
}

// TTSEngine is the interface that any TTS provider must implement.
type TTSEngine interface {
	// Synthesize converts one sentence of text into audio.
	Synthesize(ctx context.Context, text string) (*TTSResponse, error)

	// AudioExtension returns the file extension (without dot) of the audio
	// this engine produces, used for per-sentence cache filenames.
	AudioExtension() string
}

// TTSOptions carries provider selection and credentials from config.
type TTSOptions struct {
	Provider string // "piper" or "elevenlabs"

	// Piper
	PiperBinary string
	PiperModel  string

	// ElevenLabs
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
}

// NewTTSEngine resolves the configured provider. The provider set is closed:
// anything other than piper or elevenlabs is a configuration error, not a
// silent fallback.
func NewTTSEngine(opts TTSOptions) (TTSEngine, error) {
	switch opts.Provider {
	case "piper":
		return NewPiperService(opts.PiperBinary, opts.PiperModel), nil
	case "elevenlabs":
		if opts.ElevenLabsAPIKey == "" {
			return nil, fmt.Errorf("elevenlabs provider selected but ELEVENLABS_API_KEY is empty")
		}
		return NewElevenLabsService(opts.ElevenLabsAPIKey, opts.ElevenLabsVoiceID), nil
	default:
		return nil, fmt.Errorf("unknown TTS provider %q (expected piper or elevenlabs)", opts.Provider)
	}
}
