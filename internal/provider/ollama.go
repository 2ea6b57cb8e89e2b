package provider

import (
	"context"
	"strings"
)

// ollamaBackend talks to a locally served model. It needs no credentials.
type ollamaBackend struct {
	baseURL string
	client  HTTPDoer
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	Error           string `json:"error"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (b *ollamaBackend) name() string { return "local" }

func (b *ollamaBackend) complete(ctx context.Context, req Request) (completion, error) {
	payload := ollamaRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}
	payload.Options.Temperature = req.Temperature
	payload.Options.NumPredict = req.MaxTokens

	var resp ollamaResponse
	if err := postJSON(ctx, b.client, b.name(), strings.TrimRight(b.baseURL, "/")+"/api/chat", nil, payload, &resp); err != nil {
		return completion{}, err
	}
	if resp.Error != "" {
		return completion{}, malformed(b.name(), "api error: "+resp.Error)
	}
	return completion{
		Text: resp.Message.Content,
		Usage: Usage{
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
		},
	}, nil
}
