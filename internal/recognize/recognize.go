// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package recognize turns page images into Markdown with a vision model.
// A Backend handles one image; a Converter walks a folder of page images,
// joins the recognized pages and writes one Markdown file per folder.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/docflow/internal/task"
	"github.com/pdiddy/docflow/pkg/types"
)

// DefaultUserPrompt is sent with every page when prompts.yaml has none.
const DefaultUserPrompt = "请将图像内容转换为规范的格式纯文本，如果是空白页请输出“(空白页)”，不要包含任何解释或额外说明。"

// ErrEmptyResponse reports a model reply without any text.
var ErrEmptyResponse = errors.New("model returned no text")

// Backend recognizes the text of one image.
type Backend interface {
	Recognize(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Prompts pairs the system instruction with the per-page user prompt.
type Prompts struct {
	System string
	User   string
}

// PromptsFrom converts loaded prompts, filling in the default user prompt.
func PromptsFrom(p types.PromptPair) Prompts {
	user := strings.TrimSpace(p.UserPrompt)
	if user == "" {
		user = DefaultUserPrompt
	}
	return Prompts{System: strings.TrimSpace(p.System), User: user}
}

// New builds the backend selected by cfg.Backend. The returned func
// releases client resources.
func New(ctx context.Context, cfg types.ModelConfig, prompts Prompts) (Backend, func() error, error) {
	noop := func() error { return nil }
	if cfg.Name == "" {
		return nil, nil, fmt.Errorf("%w: model.name is required", task.ErrInvalidInput)
	}

	switch cfg.Backend {
	case types.BackendOpenAI, "":
		if cfg.URL == "" {
			return nil, nil, fmt.Errorf("%w: model.url is required for the openai backend", task.ErrInvalidInput)
		}
		return &OpenAIBackend{
			BaseURL:    cfg.URL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Name,
			Prompts:    prompts,
			MaxRetries: cfg.MaxRetries,
			Client:     &http.Client{Timeout: cfg.Timeout},
		}, noop, nil
	case types.BackendGemini:
		b, err := NewGemini(ctx, cfg, prompts)
		if err != nil {
			return nil, nil, err
		}
		return b, noop, nil
	case types.BackendVertex:
		b, err := NewVertex(ctx, cfg, prompts)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown model backend %q", task.ErrInvalidInput, cfg.Backend)
	}
}
