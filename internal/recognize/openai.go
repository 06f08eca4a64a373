// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/docflow/internal/httputil"
	"github.com/pdiddy/docflow/internal/task"
)

// OpenAIBackend calls an OpenAI-compatible chat/completions endpoint with
// the page inlined as a base64 data URL.
type OpenAIBackend struct {
	BaseURL    string
	APIKey     string
	Model      string
	Prompts    Prompts
	MaxRetries int
	Client     *http.Client
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// chatMessage content is a string for the system turn and a list of parts
// for the user turn.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (b *OpenAIBackend) endpoint() string {
	base := strings.TrimRight(b.BaseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

// Recognize sends one image. Throttling and gateway errors are retried;
// rejected credentials are fatal since every later page would fail too.
func (b *OpenAIBackend) Recognize(ctx context.Context, image []byte, mimeType string) (string, error) {
	var messages []chatMessage
	if b.Prompts.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: b.Prompts.System})
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	messages = append(messages, chatMessage{Role: "user", Content: []chatPart{
		{Type: "text", Text: b.Prompts.User},
		{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL}},
	}})

	body, err := json.Marshal(chatRequest{Model: b.Model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.APIKey)
	}

	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, b.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("calling model API: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: model API rejected credentials (%d): %s", task.ErrFatal, resp.StatusCode, strings.TrimSpace(string(msg)))
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("model API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decoding model response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(cr.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
