package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"metamender/internal/config"
	"metamender/internal/logging"
	"metamender/internal/media"
	"metamender/internal/prompt"
)

// ErrorKind classifies a failed generation.
type ErrorKind string

const (
	AuthError         ErrorKind = "AuthError"
	RateLimited       ErrorKind = "RateLimited"
	Transport         ErrorKind = "Transport"
	MalformedResponse ErrorKind = "MalformedResponse"
	Unsupported       ErrorKind = "Unsupported"
)

// Request is the backend-neutral generation request.
type Request struct {
	ItemID      string
	System      string
	User        string
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Usage is the token accounting reported by a backend.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Total returns TotalTokens, or the sum of input and output when the backend
// did not report a total.
func (u Usage) Total() int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.InputTokens + u.OutputTokens
}

// Result is Success(text, tokens, cost) or Failure(kind, message).
type Result struct {
	OK      bool
	Text    string
	Tokens  int
	Cost    float64
	Kind    ErrorKind
	Message string
}

// Success builds a successful result.
func Success(text string, tokens int, cost float64) Result {
	return Result{OK: true, Text: text, Tokens: tokens, Cost: cost}
}

// Failure builds a failed result.
func Failure(kind ErrorKind, message string) Result {
	return Result{Kind: kind, Message: message}
}

// Generator produces replacement descriptions.
type Generator interface {
	Generate(ctx context.Context, item media.Item) Result
	Name() string
	Model() string
}

// HTTPDoer describes the HTTP client used by the backends.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type completion struct {
	Text  string
	Usage Usage
}

type backend interface {
	name() string
	complete(ctx context.Context, req Request) (completion, error)
}

// Option customizes the generator built by New.
type Option func(*options)

type options struct {
	client HTTPDoer
	logger *slog.Logger
	now    func() time.Time
}

// WithHTTPClient overrides the HTTP client used by every backend.
func WithHTTPClient(client HTTPDoer) Option {
	return func(o *options) {
		if client != nil {
			o.client = client
		}
	}
}

// WithLogger sets the logger used for per-call debug records.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New resolves the configured provider. Unknown provider names produce a
// generator that fails every call with Unsupported.
func New(cfg *config.Config, composer *prompt.Composer, opts ...Option) Generator {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}
	if composer == nil {
		composer = prompt.Default()
	}
	if o.client == nil {
		timeout := time.Duration(cfg.Provider.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = time.Minute
		}
		o.client = &http.Client{Timeout: timeout}
	}

	name := config.CanonicalProvider(cfg.Provider.Name)
	creds := cfg.Credentials()
	var b backend
	switch name {
	case config.ProviderOpenAI:
		b = &openAIBackend{baseURL: creds.BaseURL, apiKey: creds.APIKey, client: o.client}
	case config.ProviderAnthropic:
		b = &anthropicBackend{baseURL: creds.BaseURL, apiKey: creds.APIKey, client: o.client}
	case config.ProviderGoogle:
		b = &googleBackend{baseURL: creds.BaseURL, apiKey: creds.APIKey, client: o.client}
	case config.ProviderLocal:
		b = &ollamaBackend{baseURL: creds.BaseURL, client: o.client}
	default:
		return unsupportedGenerator{name: name, model: cfg.Provider.Model}
	}

	return &adapter{
		backend:     b,
		composer:    composer,
		pricing:     NewPricing(cfg.Pricing),
		provider:    name,
		model:       strings.TrimSpace(cfg.Provider.Model),
		maxTokens:   cfg.Provider.MaxTokens,
		temperature: cfg.Provider.Temperature,
		logger:      logging.NewComponentLogger(o.logger, "provider"),
		now:         o.now,
	}
}

type adapter struct {
	backend     backend
	composer    *prompt.Composer
	pricing     Pricing
	provider    string
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
	now         func() time.Time
}

func (a *adapter) Name() string  { return a.provider }
func (a *adapter) Model() string { return a.model }

// Generate composes the prompt for item and sends it to the backend.
func (a *adapter) Generate(ctx context.Context, item media.Item) Result {
	p, err := a.composer.Compose(item)
	if err != nil {
		return Failure(Unsupported, err.Error())
	}
	req := Request{
		ItemID:      item.ID,
		System:      p.System,
		User:        p.User,
		Provider:    a.provider,
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	}

	started := a.now()
	out, err := a.backend.complete(ctx, req)
	logger := logging.WithContext(ctx, a.logger)
	if err != nil {
		kind := classify(err)
		logger.Debug("generation failed",
			logging.String(logging.FieldEventType, "generation_failed"),
			logging.String("kind", string(kind)),
			logging.Duration("elapsed", a.now().Sub(started)),
			logging.Error(err),
		)
		return Failure(kind, err.Error())
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return Failure(MalformedResponse, fmt.Sprintf("%s: empty completion", a.backend.name()))
	}
	cost := a.pricing.Cost(a.provider, a.model, out.Usage)
	logger.Debug("generation completed",
		logging.String(logging.FieldEventType, "generation_completed"),
		logging.Int("tokens", out.Usage.Total()),
		logging.Float64("cost", cost),
		logging.Duration("elapsed", a.now().Sub(started)),
	)
	return Success(text, out.Usage.Total(), cost)
}

type unsupportedGenerator struct {
	name  string
	model string
}

func (u unsupportedGenerator) Name() string  { return u.name }
func (u unsupportedGenerator) Model() string { return u.model }

func (u unsupportedGenerator) Generate(context.Context, media.Item) Result {
	return Failure(Unsupported, fmt.Sprintf("provider %q is not supported", u.name))
}
