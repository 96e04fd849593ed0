package provider

import (
	"context"
	"net/url"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/transcript"
)

type gemini struct {
	http    httpDoer
	baseURL string
}

type geminiPart struct {
	Text *string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content *geminiContent `json:"content"`
	} `json:"candidates"`
}

func (p *gemini) Name() string         { return Gemini }
func (p *gemini) DefaultModel() string { return "gemini-2.5-flash" }

// Send maps assistant turns to the "model" role and moves the system message
// into system_instruction. The key travels in a header, never in the URL.
func (p *gemini) Send(ctx context.Context, apiKey, model string, messages transcript.Transcript) (string, error) {
	system, hasSystem, chat := splitSystem(messages)

	req := geminiRequest{Contents: make([]geminiContent, 0, len(chat))}
	for _, m := range chat {
		role := "user"
		if m.Role == transcript.RoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: ptr(m.Content)}},
		})
	}
	if hasSystem {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: ptr(system)}}}
	}

	endpoint := p.baseURL + "/v1beta/models/" + url.PathEscape(model) + ":generateContent"
	body, err := p.http.postJSON(ctx, "Gemini", endpoint, map[string]string{
		"x-goog-api-key": apiKey,
	}, req)
	if err != nil {
		return "", err
	}

	var resp geminiResponse
	if err := decode("Gemini", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return text("Gemini", nil)
	}
	return text("Gemini", resp.Candidates[0].Content.Parts[0].Text)
}

func ptr(s string) *string {
	return &s
}
