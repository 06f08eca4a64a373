// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package recognize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/pdiddy/docflow/internal/task"
	"github.com/pdiddy/docflow/pkg/types"
)

// ErrBlocked reports a page the model refused for safety reasons.
var ErrBlocked = errors.New("content blocked by safety filters")

// geminiModels is the slice of genai.Models the backend calls.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiBackend calls the Gemini API with the page as inline data.
type GeminiBackend struct {
	models  geminiModels
	model   string
	prompts Prompts
}

// NewGemini creates a Gemini API client. An API key is required.
func NewGemini(ctx context.Context, cfg types.ModelConfig, prompts Prompts) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini backend needs an API key", task.ErrInvalidInput)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiBackend{models: client.Models, model: cfg.Name, prompts: prompts}, nil
}

func (b *GeminiBackend) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: b.prompts.User},
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
		},
	}}
	var config *genai.GenerateContentConfig
	if b.prompts.System != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: b.prompts.System}}},
		}
	}

	resp, err := b.models.GenerateContent(ctx, b.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("calling gemini: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", ErrBlocked
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
