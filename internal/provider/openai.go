package provider

import (
	"context"
	"strings"
)

// openAIBackend speaks the chat completions API. OpenRouter and other
// compatible gateways work through base_url.
type openAIBackend struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (b *openAIBackend) name() string { return "openai" }

func (b *openAIBackend) complete(ctx context.Context, req Request) (completion, error) {
	if strings.TrimSpace(b.apiKey) == "" {
		return completion{}, errMissingCredentials
	}
	payload := openAIRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	var resp openAIResponse
	headers := map[string]string{"Authorization": "Bearer " + b.apiKey}
	if err := postJSON(ctx, b.client, b.name(), strings.TrimRight(b.baseURL, "/")+"/chat/completions", headers, payload, &resp); err != nil {
		return completion{}, err
	}
	if resp.Error != nil {
		return completion{}, malformed(b.name(), "api error: "+strings.TrimSpace(resp.Error.Message))
	}
	if len(resp.Choices) == 0 {
		return completion{}, malformed(b.name(), "empty choices")
	}
	return completion{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}
