package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bobarin/rendercast/internal/api"
	"github.com/bobarin/rendercast/internal/config"
	"github.com/bobarin/rendercast/internal/db"
	"github.com/bobarin/rendercast/internal/queue"
	"github.com/bobarin/rendercast/internal/services"
	"github.com/bobarin/rendercast/internal/storage"
	"github.com/bobarin/rendercast/internal/worker"
)

func main() {
	log.Println("Starting Rendercast API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	if err := database.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	// The work queue is in-process; the database is the durable record.
	q := queue.New()

	// Initialize storage
	stor := storage.New(cfg.StorageURL, cfg.StorageServiceKey, cfg.StorageBucket)
	log.Printf("Initialized object storage (bucket: %s)", cfg.StorageBucket)

	pool := buildWorkerPool(cfg, database, q, stor)

	// Create API handler
	handler := api.NewHandler(database, q, stor, pool.Limit())
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	var workerCtx context.Context
	var workerCancel context.CancelFunc
	workerDone := make(chan struct{})
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		// Re-queue jobs interrupted by the last shutdown before accepting
		// new ones, oldest first. Their checkpoints are in the database, so
		// each resumes from its last completed step.
		resumable, err := database.ListResumable(context.Background())
		if err != nil {
			log.Fatalf("Failed to list resumable jobs: %v", err)
		}
		for _, job := range resumable {
			q.Enqueue(job.ID)
		}
		if len(resumable) > 0 {
			log.Printf("Re-queued %d interrupted job(s)", len(resumable))
		}

		workerCtx, workerCancel = context.WithCancel(context.Background())
		go func() {
			defer close(workerDone)
			pool.Start(workerCtx)
		}()
		log.Printf("Worker pool started (concurrency: %d)", pool.Limit())
	} else {
		close(workerDone)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker and wait for in-flight jobs to checkpoint
	if workerCancel != nil {
		workerCancel()
	}
	<-workerDone

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func buildWorkerPool(cfg *config.Config, database *db.DB, q *queue.Queue, stor *storage.Storage) *worker.Pool {
	ffmpegSvc, err := services.NewFFmpegService(filepath.Join(cfg.TempDir, "rendercast"))
	if err != nil {
		log.Fatalf("Failed to initialize ffmpeg workspace: %v", err)
	}

	ttsSvc, err := services.NewTTSEngine(services.TTSOptions{
		Provider:          cfg.TTSProvider,
		PiperBinary:       cfg.PiperBinary,
		PiperModel:        cfg.PiperModel,
		ElevenLabsAPIKey:  cfg.ElevenLabsKey,
		ElevenLabsVoiceID: cfg.ElevenLabsVoiceID,
	})
	if err != nil {
		log.Fatalf("Failed to initialize TTS: %v", err)
	}
	log.Printf("TTS provider: %s", cfg.TTSProvider)

	// Image generation is optional. Without a provider, generated_images
	// jobs fail at the images step; base_video jobs are unaffected.
	var imageSvc services.ImageGenerator
	if cfg.GeminiKey != "" || cfg.CloudflareAPIToken != "" {
		imageSvc, err = services.NewImageGenerator(services.ImageOptions{
			Provider:            cfg.ImageProvider,
			GeminiAPIKey:        cfg.GeminiKey,
			CloudflareAccountID: cfg.CloudflareAccountID,
			CloudflareAPIToken:  cfg.CloudflareAPIToken,
		})
		if err != nil {
			log.Fatalf("Failed to initialize image generation: %v", err)
		}
		log.Printf("Image provider: %s", cfg.ImageProvider)
	} else {
		log.Println("Image generation disabled (no provider credentials)")
	}

	var enhancer worker.PromptEnhancer
	if cfg.OpenAIKey != "" {
		enhancer = services.NewOpenAIService(cfg.OpenAIKey)
		log.Println("Image prompt enhancement enabled")
	}

	webhookSvc := services.NewWebhookService(cfg.WebhookURL)
	if cfg.WebhookURL != "" {
		log.Printf("Webhook notifications enabled: %s", cfg.WebhookURL)
	}

	pipeline := worker.NewPipeline(worker.Deps{
		Store:    database,
		Media:    ffmpegSvc,
		TTS:      ttsSvc,
		Uploader: stor,
		Notifier: webhookSvc,
		Images:   imageSvc,
		Enhancer: enhancer,
	}, worker.PipelineConfig{
		Timing: cfg.Timing,
	})

	return worker.NewPool(database, q, pipeline, cfg.MaxConcurrentJobs)
}
