package provider

import (
	"context"
	"net/url"
	"strings"
)

type googleBackend struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
		Temperature     float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (b *googleBackend) name() string { return "google" }

func (b *googleBackend) complete(ctx context.Context, req Request) (completion, error) {
	if strings.TrimSpace(b.apiKey) == "" {
		return completion{}, errMissingCredentials
	}
	var payload geminiRequest
	if req.System != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	payload.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.User}}}}
	payload.GenerationConfig.MaxOutputTokens = req.MaxTokens
	payload.GenerationConfig.Temperature = req.Temperature

	model := strings.TrimPrefix(strings.TrimSpace(req.Model), "models/")
	endpoint := strings.TrimRight(b.baseURL, "/") + "/v1beta/models/" + url.PathEscape(model) + ":generateContent?" +
		url.Values{"key": {b.apiKey}}.Encode()

	var resp geminiResponse
	if err := postJSON(ctx, b.client, b.name(), endpoint, nil, payload, &resp); err != nil {
		return completion{}, err
	}
	if len(resp.Candidates) == 0 {
		detail := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			detail += " (blocked: " + resp.PromptFeedback.BlockReason + ")"
		}
		return completion{}, malformed(b.name(), detail)
	}
	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text := strings.TrimSpace(part.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return completion{
		Text: strings.Join(parts, " "),
		Usage: Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}
