package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeJellyfin()
	c.normalizeCatalog()
	c.normalizeProvider()
	c.normalizeBackends()
	c.normalizePrompt()
	c.normalizePricing()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeJellyfin() {
	if c.Jellyfin.APIKey == "" {
		if value, ok := os.LookupEnv("JELLYFIN_API_KEY"); ok {
			c.Jellyfin.APIKey = value
		}
	}
	if c.Jellyfin.URL == "" {
		if value, ok := os.LookupEnv("JELLYFIN_URL"); ok {
			c.Jellyfin.URL = value
		}
	}
	c.Jellyfin.URL = strings.TrimRight(strings.TrimSpace(c.Jellyfin.URL), "/")
	c.Jellyfin.APIKey = strings.TrimSpace(c.Jellyfin.APIKey)
	c.Jellyfin.UserID = strings.TrimSpace(c.Jellyfin.UserID)
	c.Jellyfin.LibraryID = strings.TrimSpace(c.Jellyfin.LibraryID)
	if c.Jellyfin.TimeoutSeconds <= 0 {
		c.Jellyfin.TimeoutSeconds = defaultJellyfinTimeout
	}
}

func (c *Config) normalizeCatalog() {
	c.Catalog.ItemTypes = dedupeNonEmpty(c.Catalog.ItemTypes)
	if len(c.Catalog.ItemTypes) == 0 {
		c.Catalog.ItemTypes = []string{defaultItemTypeAlbum, defaultItemTypeArtist}
	}
	c.Catalog.ExcludeTypes = dedupeNonEmpty(c.Catalog.ExcludeTypes)
}

func (c *Config) normalizeProvider() {
	c.Provider.Name = CanonicalProvider(c.Provider.Name)
	if c.Provider.Name == "" {
		c.Provider.Name = defaultProvider
	}
	c.Provider.Model = strings.TrimSpace(c.Provider.Model)
	if c.Provider.Model == "" {
		c.Provider.Model = DefaultModel(c.Provider.Name)
	}
	if c.Provider.MaxTokens <= 0 {
		c.Provider.MaxTokens = defaultMaxTokens
	}
	if c.Provider.TimeoutSeconds <= 0 {
		c.Provider.TimeoutSeconds = defaultProviderTimeout
	}
}

func (c *Config) normalizeBackends() {
	c.OpenAI = normalizeBackend(c.OpenAI, defaultOpenAIBaseURL, "OPENAI_API_KEY")
	c.Anthropic = normalizeBackend(c.Anthropic, defaultAnthropicBaseURL, "ANTHROPIC_API_KEY")
	c.Google = normalizeBackend(c.Google, defaultGoogleBaseURL, "GOOGLE_API_KEY", "GEMINI_API_KEY")
	c.Local = normalizeBackend(c.Local, defaultLocalBaseURL)
	if c.Local.BaseURL == defaultLocalBaseURL {
		if value, ok := os.LookupEnv("OLLAMA_HOST"); ok && strings.TrimSpace(value) != "" {
			c.Local.BaseURL = normalizeOllamaHost(value)
		}
	}
}

func normalizeBackend(b Backend, defaultBaseURL string, envKeys ...string) Backend {
	b.APIKey = strings.TrimSpace(b.APIKey)
	if b.APIKey == "" {
		for _, key := range envKeys {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				b.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	b.BaseURL = strings.TrimRight(strings.TrimSpace(b.BaseURL), "/")
	if b.BaseURL == "" {
		b.BaseURL = defaultBaseURL
	}
	return b
}

// OLLAMA_HOST is commonly set without a scheme (e.g. "0.0.0.0:11434").
func normalizeOllamaHost(value string) string {
	value = strings.TrimRight(strings.TrimSpace(value), "/")
	if !strings.Contains(value, "://") {
		value = "http://" + value
	}
	return value
}

func (c *Config) normalizePrompt() {
	c.Prompt.System = strings.TrimSpace(c.Prompt.System)
	c.Prompt.Album = strings.TrimSpace(c.Prompt.Album)
	c.Prompt.Artist = strings.TrimSpace(c.Prompt.Artist)
	c.Prompt.Fallback = strings.TrimSpace(c.Prompt.Fallback)
	if c.Prompt.MaxContextChars <= 0 {
		c.Prompt.MaxContextChars = defaultMaxContextChars
	}
}

func (c *Config) normalizePricing() {
	if len(c.Pricing) == 0 {
		return
	}
	normalized := make(map[string]Price, len(c.Pricing))
	for model, price := range c.Pricing {
		key := strings.ToLower(strings.TrimSpace(model))
		if key == "" {
			continue
		}
		normalized[key] = price
	}
	c.Pricing = normalized
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// CanonicalProvider maps provider aliases onto the selectors the provider
// package understands. Unknown names are returned lower-cased and trimmed.
func CanonicalProvider(name string) string {
	switch normalized := strings.ToLower(strings.TrimSpace(name)); normalized {
	case "openai", "openrouter", "chatgpt":
		return ProviderOpenAI
	case "anthropic", "claude":
		return ProviderAnthropic
	case "google", "gemini":
		return ProviderGoogle
	case "local", "ollama":
		return ProviderLocal
	default:
		return normalized
	}
}

func dedupeNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
