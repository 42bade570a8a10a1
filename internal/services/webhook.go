package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// Webhook Notifier
// Posts progress events to the configured callback URL. Delivery is best
// effort: the pipeline logs failures and moves on, a dead callback endpoint
// must never fail a render.
// ---------------------------------------------------------------------------

const (
	webhookTimeout    = 5 * time.Second
	webhookAttempts   = 3
	webhookRetryDelay = 2 * time.Second

	EventVoiceoverUploaded = "voiceover_uploaded"
	EventVideoCompleted    = "video_completed"
)

type WebhookService struct {
	url        string
	client     *http.Client
	retryDelay time.Duration
}

// NewWebhookService creates a notifier. An empty URL disables delivery; all
// notify calls become no-ops.
func NewWebhookService(url string) *WebhookService {
	return &WebhookService{
		url:        url,
		client:     &http.Client{Timeout: webhookTimeout},
		retryDelay: webhookRetryDelay,
	}
}

type webhookEvent struct {
	Event        string  `json:"event"`
	JobID        string  `json:"job_id"`
	VoiceURL     *string `json:"voice_url,omitempty"`
	SubtitlesURL *string `json:"subtitles_url,omitempty"`
	VideoURL     *string `json:"video_url,omitempty"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	Timestamp    string  `json:"timestamp"`
}

// NotifyVoiceoverUploaded reports that a job's voiceover is in storage.
func (s *WebhookService) NotifyVoiceoverUploaded(ctx context.Context, jobID string, voiceURL *string) error {
	return s.deliver(ctx, webhookEvent{
		Event:    EventVoiceoverUploaded,
		JobID:    jobID,
		VoiceURL: voiceURL,
	})
}

// NotifyVideoCompleted reports a finished render with all artifact URLs.
func (s *WebhookService) NotifyVideoCompleted(ctx context.Context, jobID string, voiceURL, subtitlesURL, videoURL, thumbnailURL *string) error {
	return s.deliver(ctx, webhookEvent{
		Event:        EventVideoCompleted,
		JobID:        jobID,
		VoiceURL:     voiceURL,
		SubtitlesURL: subtitlesURL,
		VideoURL:     videoURL,
		ThumbnailURL: thumbnailURL,
	})
}

func (s *WebhookService) deliver(ctx context.Context, event webhookEvent) error {
	if s.url == "" {
		return nil
	}

	event.Timestamp = time.Now().UTC().Format(time.RFC3339)

	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook delivery cancelled: %w", ctx.Err())
			case <-time.After(s.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", s.url, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("webhook request failed: %w", err)
			log.Printf("[Webhook] %s delivery attempt %d/%d failed: %v", event.Event, attempt, webhookAttempts, err)
			continue
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			log.Printf("[Webhook] Delivered %s for job %s (attempt %d)", event.Event, event.JobID, attempt)
			return nil
		}

		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
		log.Printf("[Webhook] %s delivery attempt %d/%d returned status %d", event.Event, attempt, webhookAttempts, resp.StatusCode)
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", webhookAttempts, lastErr)
}
