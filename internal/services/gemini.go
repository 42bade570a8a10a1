package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Gemini Image Generation Service
// Uses the Google Gen AI SDK to generate still images from text prompts.
// ---------------------------------------------------------------------------

const geminiImageModel = "gemini-2.5-flash-image-preview"

type GeminiImageService struct {
	apiKey string
	model  string
}

var _ ImageGenerator = (*GeminiImageService)(nil)

func NewGeminiImageService(apiKey string) *GeminiImageService {
	return &GeminiImageService{
		apiKey: apiKey,
		model:  geminiImageModel,
	}
}

// GenerateImage generates a single image. Each call is independent — safe
// for parallel execution across segments.
func (s *GeminiImageService) GenerateImage(ctx context.Context, prompt, aspectRatio string) ([]byte, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	fullPrompt := composeImagePrompt(prompt, aspectRatio)

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	log.Printf("[Gemini] Generating image (model=%s, promptLen=%d, aspect=%s)",
		s.model, len(fullPrompt), aspectRatio)

	resp, err := client.Models.GenerateContent(ctx, s.model, genai.Text(fullPrompt), config)
	if err != nil {
		return nil, fmt.Errorf("gemini image generation failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates in gemini response")
	}

	var textParts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			log.Printf("[Gemini] Image generated (%d bytes)", len(part.InlineData.Data))
			return part.InlineData.Data, nil
		}
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}

	if len(textParts) > 0 {
		return nil, fmt.Errorf("gemini returned text instead of image: %s", truncateLog(strings.Join(textParts, " "), 200))
	}
	return nil, fmt.Errorf("no image data found in gemini response (%d parts)", len(resp.Candidates[0].Content.Parts))
}

// composeImagePrompt appends orientation guidance; the models follow
// aspect-ratio hints in the text far more reliably than config knobs.
func composeImagePrompt(prompt, aspectRatio string) string {
	orientation := "Portrait"
	switch aspectRatio {
	case "16:9":
		orientation = "Landscape"
	case "1:1":
		orientation = "Square"
	}
	return fmt.Sprintf("%s\n\nOutput: %s %s image, high quality, no text or watermarks.",
		prompt, orientation, aspectRatio)
}
