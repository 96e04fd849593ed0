package provider

import (
	"context"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/transcript"
)

type openAI struct {
	http    httpDoer
	baseURL string
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *openAI) Name() string         { return OpenAI }
func (p *openAI) DefaultModel() string { return "gpt-4o-mini" }

// Send keeps the system message inline; OpenAI understands all three roles.
func (p *openAI) Send(ctx context.Context, apiKey, model string, messages transcript.Transcript) (string, error) {
	req := openAIRequest{
		Model:    model,
		Messages: make([]openAIMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := p.http.postJSON(ctx, "OpenAI", p.baseURL+"/v1/chat/completions", map[string]string{
		"Authorization": "Bearer " + apiKey,
	}, req)
	if err != nil {
		return "", err
	}

	var resp openAIResponse
	if err := decode("OpenAI", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return text("OpenAI", nil)
	}
	return text("OpenAI", resp.Choices[0].Message.Content)
}
