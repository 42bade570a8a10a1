package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIService turns plain narration sentences into visual image prompts
// for the generated-images render mode.
type OpenAIService struct {
	client *openai.Client
	model  string
}

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
		model:  "gpt-5-mini",
	}
}

type promptBatch struct {
	Prompts []string `json:"prompts"`
}

const enhanceSystemPrompt = `You turn narration sentences into image generation prompts.
For each input sentence, write one vivid, concrete visual description of a scene that
illustrates it: subject, setting, lighting, mood. No text overlays, no camera jargon,
no people's real names. Keep each prompt under 60 words.

Respond with a JSON object: {"prompts": ["...", "..."]} with exactly one prompt per
input sentence, in the same order.`

// EnhancePrompts generates one image prompt per sentence in a single call.
// The title, when present, anchors every prompt to the video's overall topic.
func (s *OpenAIService) EnhancePrompts(ctx context.Context, sentences []string, title string) ([]string, error) {
	if len(sentences) == 0 {
		return nil, fmt.Errorf("no sentences to enhance")
	}

	input, err := json.Marshal(sentences)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sentences: %w", err)
	}

	userPrompt := fmt.Sprintf("Sentences (JSON array):\n%s", string(input))
	if title != "" {
		userPrompt = fmt.Sprintf("Video topic: %s\n\n%s", title, userPrompt)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: enhanceSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	rawContent := resp.Choices[0].Message.Content

	var batch promptBatch
	if err := json.Unmarshal([]byte(rawContent), &batch); err != nil {
		log.Printf("[OpenAI] prompt parse failed: %v, raw: %s", err, truncateLog(rawContent, 500))
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}

	if len(batch.Prompts) != len(sentences) {
		return nil, fmt.Errorf("prompt count mismatch: got %d, want %d", len(batch.Prompts), len(sentences))
	}

	for i, p := range batch.Prompts {
		if p == "" {
			return nil, fmt.Errorf("empty prompt at index %d", i)
		}
	}

	return batch.Prompts, nil
}
