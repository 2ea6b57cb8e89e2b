package provider

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"metamender/internal/config"
	"metamender/internal/media"
)

var album = media.Item{
	ID:             "a1",
	Name:           "Blue Train",
	Kind:           media.KindAlbum,
	AlbumArtist:    "John Coltrane",
	ProductionYear: 1957,
}

func testConfig(t *testing.T, provider, baseURL, apiKey string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Provider.Name = provider
	cfg.Provider.Model = config.DefaultModel(provider)
	backend := config.Backend{BaseURL: baseURL, APIKey: apiKey}
	switch provider {
	case config.ProviderOpenAI:
		cfg.OpenAI = backend
	case config.ProviderAnthropic:
		cfg.Anthropic = backend
	case config.ProviderGoogle:
		cfg.Google = backend
	case config.ProviderLocal:
		cfg.Local = backend
	}
	return &cfg
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return body
}

func TestOpenAIGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Fatalf("unexpected auth header %q", auth)
		}
		body := decodeBody(t, r)
		if body["model"] != "gpt-4.1-mini" || body["max_tokens"].(float64) != 120 || body["temperature"].(float64) != 0.4 {
			t.Fatalf("unexpected body %v", body)
		}
		messages := body["messages"].([]any)
		user := messages[1].(map[string]any)["content"].(string)
		if !strings.Contains(user, `"Blue Train" (1957) by John Coltrane`) {
			t.Fatalf("unexpected user prompt %q", user)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"  A hard-bop landmark.  "}}],"usage":{"prompt_tokens":30,"completion_tokens":10,"total_tokens":40}}`)
	}))
	defer server.Close()

	gen := New(testConfig(t, config.ProviderOpenAI, server.URL+"/v1", "sk-test"), nil)
	result := gen.Generate(context.Background(), album)
	if !result.OK {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Text != "A hard-bop landmark." || result.Tokens != 40 {
		t.Fatalf("unexpected result %+v", result)
	}
	want := (30*0.40 + 10*1.60) / 1_000_000
	if math.Abs(result.Cost-want) > 1e-12 {
		t.Fatalf("cost = %v, want %v", result.Cost, want)
	}
	if gen.Name() != "openai" || gen.Model() != "gpt-4.1-mini" {
		t.Fatalf("unexpected identity %s/%s", gen.Name(), gen.Model())
	}
}

func TestAnthropicGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "ak" || r.Header.Get("anthropic-version") == "" {
			t.Fatalf("missing anthropic headers: %v", r.Header)
		}
		body := decodeBody(t, r)
		if body["system"] == "" || len(body["messages"].([]any)) != 1 {
			t.Fatalf("unexpected body %v", body)
		}
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"Spiritual jazz."}],"usage":{"input_tokens":25,"output_tokens":7}}`)
	}))
	defer server.Close()

	result := New(testConfig(t, config.ProviderAnthropic, server.URL, "ak"), nil).Generate(context.Background(), album)
	if !result.OK || result.Text != "Spiritual jazz." || result.Tokens != 32 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestGoogleGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-1.5-flash:generateContent" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "gk" {
			t.Fatalf("missing key param")
		}
		body := decodeBody(t, r)
		if _, ok := body["systemInstruction"]; !ok {
			t.Fatalf("expected system instruction in %v", body)
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Cool and modal."}]}}],"usageMetadata":{"promptTokenCount":20,"candidatesTokenCount":5,"totalTokenCount":25}}`)
	}))
	defer server.Close()

	result := New(testConfig(t, config.ProviderGoogle, server.URL, "gk"), nil).Generate(context.Background(), album)
	if !result.OK || result.Text != "Cool and modal." || result.Tokens != 25 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestOllamaGenerateIsFree(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		body := decodeBody(t, r)
		if body["stream"] != false {
			t.Fatalf("expected non-streaming request, got %v", body["stream"])
		}
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"Local words."},"done":true,"prompt_eval_count":50,"eval_count":12}`)
	}))
	defer server.Close()

	result := New(testConfig(t, config.ProviderLocal, server.URL, ""), nil).Generate(context.Background(), album)
	if !result.OK || result.Tokens != 62 || result.Cost != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestGenerateErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    ErrorKind
		headers map[string]string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":{"message":"bad key"}}`, want: AuthError},
		{name: "forbidden", status: http.StatusForbidden, want: AuthError},
		{name: "rate limited", status: http.StatusTooManyRequests, want: RateLimited, headers: map[string]string{"Retry-After": "7"}},
		{name: "unknown model", status: http.StatusNotFound, want: Unsupported},
		{name: "server error", status: http.StatusBadGateway, want: Transport},
		{name: "garbage body", status: http.StatusOK, body: `<html>`, want: MalformedResponse},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, want: MalformedResponse},
		{name: "blank text", status: http.StatusOK, body: `{"choices":[{"message":{"content":"   "}}]}`, want: MalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			result := New(testConfig(t, config.ProviderOpenAI, server.URL, "sk"), nil).Generate(context.Background(), album)
			if result.OK || result.Kind != tt.want {
				t.Fatalf("expected %s failure, got %+v", tt.want, result)
			}
			if result.Message == "" {
				t.Fatal("expected failure message")
			}
		})
	}
}

func TestRateLimitMessageCarriesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	result := New(testConfig(t, config.ProviderAnthropic, server.URL, "ak"), nil).Generate(context.Background(), album)
	if result.Kind != RateLimited || !strings.Contains(result.Message, "retry after 7s") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	result := New(testConfig(t, config.ProviderLocal, url, ""), nil).Generate(context.Background(), album)
	if result.OK || result.Kind != Transport {
		t.Fatalf("expected Transport failure, got %+v", result)
	}
}

func TestMissingCredentialsSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	for _, name := range []string{config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderGoogle} {
		result := New(testConfig(t, name, server.URL, ""), nil).Generate(context.Background(), album)
		if result.Kind != AuthError {
			t.Fatalf("%s: expected AuthError, got %+v", name, result)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no network calls, got %d", calls.Load())
	}
}

func TestUnknownProviderIsUnsupported(t *testing.T) {
	cfg := config.Default()
	cfg.Provider.Name = "mistral"
	gen := New(&cfg, nil)
	result := gen.Generate(context.Background(), album)
	if result.Kind != Unsupported {
		t.Fatalf("expected Unsupported, got %+v", result)
	}
	if gen.Name() != "mistral" {
		t.Fatalf("unexpected name %q", gen.Name())
	}
}

func TestPricing(t *testing.T) {
	pricing := NewPricing(map[string]config.Price{
		"My-Finetune":  {InputPerMillion: 1, OutputPerMillion: 2},
		"gpt-4.1-mini": {InputPerMillion: 100, OutputPerMillion: 100},
	})
	tests := []struct {
		name     string
		provider string
		model    string
		usage    Usage
		want     float64
	}{
		{name: "override", provider: "openai", model: "gpt-4.1-mini", usage: Usage{InputTokens: 10, OutputTokens: 10}, want: 2000.0 / 1_000_000},
		{name: "custom model", provider: "openai", model: "my-finetune", usage: Usage{InputTokens: 1000, OutputTokens: 1000}, want: 3000.0 / 1_000_000},
		{name: "dated model prefix", provider: "anthropic", model: "claude-3-5-haiku-latest", usage: Usage{InputTokens: 1_000_000}, want: 0.80},
		{name: "routed name", provider: "openai", model: "openai/gpt-4o-mini", usage: Usage{OutputTokens: 1_000_000}, want: 0.60},
		{name: "unknown model fallback", provider: "google", model: "gemini-9-ultra", usage: Usage{TotalTokens: 100}, want: 0.001},
		{name: "local is free", provider: "local", model: "llama3.1", usage: Usage{InputTokens: 5000, OutputTokens: 5000}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pricing.Cost(tt.provider, tt.model, tt.usage); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Cost() = %v, want %v", got, tt.want)
			}
		})
	}
}
