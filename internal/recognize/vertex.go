// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package recognize

import (
	"context"
	"fmt"
	"strings"

	vertex "cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pdiddy/docflow/internal/task"
	"github.com/pdiddy/docflow/pkg/types"
)

type vertexModel interface {
	GenerateContent(ctx context.Context, parts ...vertex.Part) (*vertex.GenerateContentResponse, error)
}

// VertexBackend calls Gemini through Vertex AI using application default
// credentials.
type VertexBackend struct {
	model  vertexModel
	prompt string
	close  func() error
}

// NewVertex configures a generative model on a Vertex AI client.
func NewVertex(ctx context.Context, cfg types.ModelConfig, prompts Prompts) (*VertexBackend, error) {
	if cfg.Project == "" || cfg.Region == "" {
		return nil, fmt.Errorf("%w: vertex backend needs model.project and model.region", task.ErrInvalidInput)
	}
	client, err := vertex.NewClient(ctx, cfg.Project, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("creating vertex client: %w", err)
	}
	model := client.GenerativeModel(cfg.Name)
	if prompts.System != "" {
		model.SystemInstruction = &vertex.Content{Parts: []vertex.Part{vertex.Text(prompts.System)}}
	}
	return &VertexBackend{model: model, prompt: prompts.User, close: client.Close}, nil
}

// Close releases the underlying client.
func (b *VertexBackend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Recognize sends the user prompt and the page. Permission errors are fatal.
func (b *VertexBackend) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	format := strings.TrimPrefix(mimeType, "image/")
	resp, err := b.model.GenerateContent(ctx, vertex.Text(b.prompt), vertex.ImageData(format, image))
	if err != nil {
		switch status.Code(err) {
		case codes.Unauthenticated, codes.PermissionDenied:
			return "", fmt.Errorf("%w: vertex rejected credentials: %v", task.ErrFatal, err)
		}
		return "", fmt.Errorf("calling vertex: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == vertex.FinishReasonSafety {
		return "", ErrBlocked
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if txt, ok := part.(vertex.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
