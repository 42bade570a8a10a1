package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/bobarin/rendercast/internal/planner"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Object storage
	StorageURL        string
	StorageServiceKey string
	StorageBucket     string

	// Webhooks (empty = notifications disabled)
	WebhookURL string

	// TTS
	TTSProvider       string // "piper" or "elevenlabs"
	PiperBinary       string
	PiperModel        string
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	// OpenAI (image prompt enhancement, optional)
	OpenAIKey string

	// Image generation (required only for generated_images mode)
	ImageProvider       string // "gemini" or "cloudflare"
	GeminiKey           string
	CloudflareAccountID string
	CloudflareAPIToken  string

	// Worker
	MaxConcurrentJobs int
	TempDir           string

	// Timing constants for the sync planner
	Timing planner.Config
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:             getEnv("API_PORT", "8080"),
		WorkerEnabled:       getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:       getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		StorageURL:          getEnv("STORAGE_URL", ""),
		StorageServiceKey:   getEnv("STORAGE_SERVICE_KEY", ""),
		StorageBucket:       getEnv("STORAGE_BUCKET", "rendercast-media"),
		WebhookURL:          getEnv("WEBHOOK_URL", ""),
		TTSProvider:         getEnv("TTS_PROVIDER", "piper"),
		PiperBinary:         getEnv("PIPER_BINARY", "piper"),
		PiperModel:          getEnv("PIPER_MODEL", "models/en_US-lessac-medium.onnx"),
		ElevenLabsKey:       getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:   getEnv("ELEVENLABS_VOICE_ID", ""),
		OpenAIKey:           getEnv("OPENAI_API_KEY", ""),
		ImageProvider:       getEnv("IMAGE_PROVIDER", "gemini"),
		GeminiKey:           getEnv("GEMINI_API_KEY", ""),
		CloudflareAccountID: getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
		CloudflareAPIToken:  getEnv("CLOUDFLARE_API_TOKEN", ""),
		MaxConcurrentJobs:   getEnvInt("MAX_CONCURRENT_JOBS", 3),
		TempDir:             getEnv("TEMP_DIR", os.TempDir()),
		Timing: planner.Config{
			LeadTime:        getEnvFloat("TIMING_LEAD_TIME", 0.25),
			LingerTime:      getEnvFloat("TIMING_LINGER_TIME", 0.5),
			Crossfade:       getEnvFloat("TIMING_CROSSFADE", 0.5),
			ShortBuffer:     getEnvFloat("TIMING_SHORT_BUFFER", 0.75),
			LongBuffer:      getEnvFloat("TIMING_LONG_BUFFER", 0.25),
			BufferThreshold: getEnvFloat("TIMING_BUFFER_THRESHOLD", 3.0),
		},
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.StorageURL == "" || cfg.StorageServiceKey == "" {
		return nil, fmt.Errorf("STORAGE_URL and STORAGE_SERVICE_KEY are required")
	}

	if cfg.TTSProvider == "elevenlabs" && cfg.ElevenLabsKey == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY is required when TTS_PROVIDER=elevenlabs")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
