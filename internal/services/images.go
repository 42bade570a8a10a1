package services

import (
	"context"
	"fmt"
)

// ---------------------------------------------------------------------------
// ImageGenerator — common interface for still-image providers used by the
// generated-images render mode. Gemini and Cloudflare Flux both implement
// it; the worker only picks the configured one.
// ---------------------------------------------------------------------------

// ImageGenerator produces a single still image from a text prompt.
type ImageGenerator interface {
	// GenerateImage returns the raw image bytes (PNG or JPEG) for a prompt.
	// aspectRatio is "9:16", "16:9", or "1:1"; providers that cannot honor
	// it generate their native shape and the renderer letterboxes.
	GenerateImage(ctx context.Context, prompt, aspectRatio string) ([]byte, error)
}

// ImageOptions carries provider selection and credentials from config.
type ImageOptions struct {
	Provider string // "gemini" or "cloudflare"

	GeminiAPIKey string

	CloudflareAccountID string
	CloudflareAPIToken  string
}

// NewImageGenerator resolves the configured provider. The provider set is
// closed: anything else is a configuration error.
func NewImageGenerator(opts ImageOptions) (ImageGenerator, error) {
	switch opts.Provider {
	case "gemini":
		if opts.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini provider selected but GEMINI_API_KEY is empty")
		}
		return NewGeminiImageService(opts.GeminiAPIKey), nil
	case "cloudflare":
		if opts.CloudflareAccountID == "" || opts.CloudflareAPIToken == "" {
			return nil, fmt.Errorf("cloudflare provider selected but account ID or API token is empty")
		}
		return NewCloudflareImageService(opts.CloudflareAccountID, opts.CloudflareAPIToken), nil
	default:
		return nil, fmt.Errorf("unknown image provider %q (expected gemini or cloudflare)", opts.Provider)
	}
}
