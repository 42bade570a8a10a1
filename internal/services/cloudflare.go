package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// Cloudflare Workers AI Image Generation Service
// Runs the Flux schnell model via the Workers AI REST API. The API returns
// base64 image data in a JSON envelope.
// ---------------------------------------------------------------------------

const cloudflareFluxModel = "@cf/black-forest-labs/flux-1-schnell"

type CloudflareImageService struct {
	accountID string
	apiToken  string
	client    *http.Client
}

var _ ImageGenerator = (*CloudflareImageService)(nil)

func NewCloudflareImageService(accountID, apiToken string) *CloudflareImageService {
	return &CloudflareImageService{
		accountID: accountID,
		apiToken:  apiToken,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

type cloudflareImageRequest struct {
	Prompt string `json:"prompt"`
	Steps  int    `json:"steps,omitempty"`
}

type cloudflareImageResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result struct {
		Image string `json:"image"` // base64-encoded
	} `json:"result"`
}

// GenerateImage generates a single image via Workers AI. Flux schnell has no
// aspect-ratio parameter; the orientation hint goes into the prompt and the
// renderer letterboxes whatever comes back.
func (s *CloudflareImageService) GenerateImage(ctx context.Context, prompt, aspectRatio string) ([]byte, error) {
	reqBody := cloudflareImageRequest{
		Prompt: composeImagePrompt(prompt, aspectRatio),
		Steps:  8,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cloudflare request: %w", err)
	}

	url := fmt.Sprintf("https://api.cloudflare.com/client/v4/accounts/%s/ai/run/%s",
		s.accountID, cloudflareFluxModel)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudflare request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiToken)

	log.Printf("[Cloudflare] Generating image (model=%s, promptLen=%d)", cloudflareFluxModel, len(prompt))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudflare request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read cloudflare response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cloudflare returned status %d: %s", resp.StatusCode, truncateLog(string(bodyBytes), 300))
	}

	var cfResp cloudflareImageResponse
	if err := json.Unmarshal(bodyBytes, &cfResp); err != nil {
		return nil, fmt.Errorf("failed to decode cloudflare response: %w", err)
	}

	if !cfResp.Success {
		if len(cfResp.Errors) > 0 {
			return nil, fmt.Errorf("cloudflare error %d: %s", cfResp.Errors[0].Code, cfResp.Errors[0].Message)
		}
		return nil, fmt.Errorf("cloudflare reported failure with no error detail")
	}

	imageData, err := base64.StdEncoding.DecodeString(cfResp.Result.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	if len(imageData) == 0 {
		return nil, fmt.Errorf("cloudflare returned empty image")
	}

	log.Printf("[Cloudflare] Image generated (%d bytes)", len(imageData))
	return imageData, nil
}
