package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Upload timeout per attempt — generous for large rendered videos
	uploadTimeout = 300 * time.Second

	// Download timeout
	downloadTimeout = 180 * time.Second

	// Retry configuration
	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second

	// locatorScheme prefixes bucket-relative artifact references. Locators
	// are what gets persisted on the job; they resolve to signed URLs only
	// when someone needs to read the object.
	locatorScheme = "storage://"
)

// Artifact classification prefixes inside the bucket.
const (
	PrefixVoiceovers = "voiceovers"
	PrefixSubtitles  = "subtitles"
	PrefixRenders    = "renders"
	PrefixThumbnails = "thumbnails"
)

type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
}

func New(url, serviceKey, bucket string) *Storage {
	return &Storage{
		url:        url,
		serviceKey: serviceKey,
		Bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Locator builds the persisted reference for an object key.
func (s *Storage) Locator(key string) string {
	return locatorScheme + s.Bucket + "/" + key
}

// ParseLocator splits a storage:// locator into bucket and key.
func ParseLocator(locator string) (bucket, key string, err error) {
	if !strings.HasPrefix(locator, locatorScheme) {
		return "", "", fmt.Errorf("not a storage locator: %s", locator)
	}
	rest := strings.TrimPrefix(locator, locatorScheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed storage locator: %s", locator)
	}
	return parts[0], parts[1], nil
}

// IsLocator reports whether a reference uses the storage:// scheme.
func IsLocator(ref string) bool {
	return strings.HasPrefix(ref, locatorScheme)
}

// ArtifactKey builds the object key for a job artifact: prefix/jobID/filename.
func ArtifactKey(prefix, jobID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", prefix, jobID, filename)
}

// UploadArtifact uploads a local file under a classification prefix and
// returns its locator.
func (s *Storage) UploadArtifact(ctx context.Context, localPath, prefix, jobID string) (string, error) {
	key := ArtifactKey(prefix, jobID, filepath.Base(localPath))
	if err := s.UploadFile(ctx, key, localPath, contentTypeFor(localPath)); err != nil {
		return "", err
	}
	return s.Locator(key), nil
}

// Upload uploads bytes to object storage with retries and exponential
// backoff. Uses PUT with Content-Length and x-upsert for reliable large
// file uploads.
func (s *Storage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, key)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			log.Printf("[Storage] Upload retry %d/%d for %s (waiting %v)...", attempt, maxRetries, key, delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		// Each attempt gets its own generous timeout, independent of caller's ctx
		uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)

		req, err := http.NewRequestWithContext(uploadCtx, "PUT", url, bytes.NewReader(data))
		if err != nil {
			cancel()
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Content-Length", fmt.Sprintf("%d", len(data)))
		req.Header.Set("x-upsert", "true")

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("failed to upload: %w", err)
			if isRetryableError(err) {
				log.Printf("[Storage] Upload attempt %d failed (retryable): %v", attempt+1, err)
				continue
			}
			return lastErr
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			if attempt > 0 {
				log.Printf("[Storage] Upload succeeded on attempt %d for %s", attempt+1, key)
			}
			return nil
		}

		lastErr = fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))

		if isRetryableStatus(resp.StatusCode) {
			log.Printf("[Storage] Upload attempt %d returned status %d (retryable): %s", attempt+1, resp.StatusCode, truncate(string(body), 200))
			continue
		}

		// Non-retryable status (400, 401, 403, 404, 413, etc.)
		return lastErr
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxRetries+1, lastErr)
}

// UploadFile uploads a file from a local path.
func (s *Storage) UploadFile(ctx context.Context, key, localPath, contentType string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", localPath, err)
	}

	return s.Upload(ctx, key, data, contentType)
}

// ResolveReadable turns an artifact reference into a URL that can be
// fetched. Locators become signed URLs; plain http(s) URLs pass through.
func (s *Storage) ResolveReadable(ctx context.Context, ref string, expiresIn int) (string, error) {
	if !IsLocator(ref) {
		return ref, nil
	}
	_, key, err := ParseLocator(ref)
	if err != nil {
		return "", err
	}
	return s.GetSignedURL(ctx, key, expiresIn)
}

// FetchToFile downloads a reference (locator or URL) to a local path,
// enforcing maxBytes while streaming so an oversized object is cut off
// instead of filling the disk.
func (s *Storage) FetchToFile(ctx context.Context, ref, localPath string, maxBytes int64) error {
	url, err := s.ResolveReadable(ctx, ref, 3600)
	if err != nil {
		return err
	}

	dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dlCtx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("fetch returned status %d: %s", resp.StatusCode, string(body))
	}

	if resp.ContentLength > 0 && resp.ContentLength > maxBytes {
		return fmt.Errorf("object is %d bytes, exceeds limit of %d", resp.ContentLength, maxBytes)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	defer f.Close()

	written, err := io.Copy(f, io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		os.Remove(localPath)
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	if written > maxBytes {
		os.Remove(localPath)
		return fmt.Errorf("download exceeded limit of %d bytes", maxBytes)
	}

	return nil
}

// Download downloads an object from storage with retries.
func (s *Storage) Download(ctx context.Context, key string) ([]byte, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, key)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			log.Printf("[Storage] Download retry %d/%d for %s (waiting %v)...", attempt, maxRetries, key, delay)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("download cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)

		req, err := http.NewRequestWithContext(dlCtx, "GET", url, nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+s.serviceKey)

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("failed to download: %w", err)
			if isRetryableError(err) {
				log.Printf("[Storage] Download attempt %d failed (retryable): %v", attempt+1, err)
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode == http.StatusOK {
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			cancel()
			if err != nil {
				lastErr = fmt.Errorf("failed to read download body: %w", err)
				log.Printf("[Storage] Download attempt %d read failed: %v", attempt+1, err)
				continue
			}
			return data, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		lastErr = fmt.Errorf("download failed with status %d: %s", resp.StatusCode, string(body))

		if isRetryableStatus(resp.StatusCode) {
			log.Printf("[Storage] Download attempt %d returned status %d (retryable)", attempt+1, resp.StatusCode)
			continue
		}

		return nil, lastErr
	}

	return nil, fmt.Errorf("download failed after %d attempts: %w", maxRetries+1, lastErr)
}

// GetSignedURL creates a signed URL for temporary access.
func (s *Storage) GetSignedURL(ctx context.Context, key string, expiresIn int) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.url, s.Bucket, key)

	body := fmt.Sprintf(`{"expiresIn": %d}`, expiresIn)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBufferString(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get signed URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse signed URL response: %w", err)
	}

	return s.url + result.SignedURL, nil
}

// NewObjectID returns a fresh unique component for object keys.
func NewObjectID() string {
	return uuid.New().String()
}

// contentTypeFor maps artifact file extensions to MIME types.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".mp4":
		return "video/mp4"
	case ".ass":
		return "text/plain; charset=utf-8"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	// Add 0–25% jitter to avoid thundering herd
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
