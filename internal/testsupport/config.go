// Package testsupport builds configurations and stores for tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"metamender/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a valid config seeded with unique temp directories per
// test. It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Jellyfin.URL = "http://127.0.0.1:8096"
	cfgVal.Jellyfin.APIKey = "test-key"
	cfgVal.Jellyfin.UserID = "test-user"
	cfgVal.OpenAI.APIKey = "test-openai"
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithJellyfin points the config at a test server.
func WithJellyfin(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Jellyfin.URL = url
	}
}

// WithProvider selects a provider and endpoint.
func WithProvider(name, baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Provider.Name = name
		b.cfg.Provider.Model = config.DefaultModel(name)
		switch name {
		case config.ProviderOpenAI:
			b.cfg.OpenAI.BaseURL = baseURL
		case config.ProviderAnthropic:
			b.cfg.Anthropic.BaseURL = baseURL
		case config.ProviderGoogle:
			b.cfg.Google.BaseURL = baseURL
		case config.ProviderLocal:
			b.cfg.Local.BaseURL = baseURL
		}
	}
}

// WithMinLength overrides the candidate threshold.
func WithMinLength(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Catalog.MinLength = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
