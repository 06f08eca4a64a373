// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package recognize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/pdiddy/docflow/internal/task"
	"github.com/pdiddy/docflow/pkg/types"
)

type fakeGemini struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeGemini) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	return f.resp, f.err
}

func geminiText(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func TestGeminiBackend_Recognize(t *testing.T) {
	fake := &fakeGemini{resp: geminiText("# Heading\n", "text ")}
	b := &GeminiBackend{models: fake, model: "gemini-2.0-flash", prompts: Prompts{System: "sys", User: "usr"}}

	text, err := b.Recognize(context.Background(), []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "# Heading\ntext", text)

	assert.Equal(t, "gemini-2.0-flash", fake.model)
	require.Len(t, fake.contents, 1)
	parts := fake.contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "usr", parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/jpeg", parts[1].InlineData.MIMEType)
	assert.Equal(t, []byte("img"), parts[1].InlineData.Data)
	require.NotNil(t, fake.config)
	assert.Equal(t, "sys", fake.config.SystemInstruction.Parts[0].Text)
}

func TestGeminiBackend_Failures(t *testing.T) {
	blocked := geminiText("partial")
	blocked.Candidates[0].FinishReason = genai.FinishReasonSafety

	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		err     error
		wantErr error
	}{
		{"api error", nil, errors.New("quota"), nil},
		{"no candidates", &genai.GenerateContentResponse{}, nil, ErrEmptyResponse},
		{"blank text", geminiText("  "), nil, ErrEmptyResponse},
		{"safety block", blocked, nil, ErrBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &GeminiBackend{models: &fakeGemini{resp: tt.resp, err: tt.err}, model: "m", prompts: Prompts{User: "u"}}
			_, err := b.Recognize(context.Background(), []byte("img"), "image/jpeg")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), types.ModelConfig{Backend: types.BackendGemini, Name: "m"}, Prompts{})
	assert.ErrorIs(t, err, task.ErrInvalidInput)
}
