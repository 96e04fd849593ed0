package provider

import (
	"context"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/transcript"
)

const (
	claudeVersion   = "2023-06-01"
	claudeMaxTokens = 4096
)

type claude struct {
	http    httpDoer
	baseURL string
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
	System    string          `json:"system,omitempty"`
}

type claudeResponse struct {
	Content []struct {
		Text *string `json:"text"`
	} `json:"content"`
}

func (p *claude) Name() string         { return Claude }
func (p *claude) DefaultModel() string { return "claude-sonnet-4-20250514" }

func (p *claude) Send(ctx context.Context, apiKey, model string, messages transcript.Transcript) (string, error) {
	system, _, chat := splitSystem(messages)

	req := claudeRequest{
		Model:     model,
		MaxTokens: claudeMaxTokens,
		Messages:  make([]claudeMessage, 0, len(chat)),
		System:    system,
	}
	for _, m := range chat {
		req.Messages = append(req.Messages, claudeMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := p.http.postJSON(ctx, "Claude", p.baseURL+"/v1/messages", map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": claudeVersion,
	}, req)
	if err != nil {
		return "", err
	}

	var resp claudeResponse
	if err := decode("Claude", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return text("Claude", nil)
	}
	return text("Claude", resp.Content[0].Text)
}
