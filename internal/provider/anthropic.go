package provider

import (
	"context"
	"strings"
)

const anthropicVersion = "2023-06-01"

type anthropicBackend struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (b *anthropicBackend) name() string { return "anthropic" }

func (b *anthropicBackend) complete(ctx context.Context, req Request) (completion, error) {
	if strings.TrimSpace(b.apiKey) == "" {
		return completion{}, errMissingCredentials
	}
	payload := anthropicRequest{
		Model:       req.Model,
		System:      req.System,
		Messages:    []chatMessage{{Role: "user", Content: req.User}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	headers := map[string]string{
		"x-api-key":         b.apiKey,
		"anthropic-version": anthropicVersion,
	}
	var resp anthropicResponse
	if err := postJSON(ctx, b.client, b.name(), strings.TrimRight(b.baseURL, "/")+"/v1/messages", headers, payload, &resp); err != nil {
		return completion{}, err
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, strings.TrimSpace(block.Text))
		}
	}
	if len(parts) == 0 {
		return completion{}, malformed(b.name(), "no text content (stop_reason="+resp.StopReason+")")
	}
	return completion{
		Text: strings.Join(parts, " "),
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
