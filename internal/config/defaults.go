package config

// Provider selectors understood by the provider package.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderLocal     = "local"
)

const (
	defaultLogDir            = "~/.local/share/metamender/logs"
	defaultStateDir          = "~/.local/share/metamender"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
	defaultJellyfinTimeout   = 30
	defaultMinLength         = 50
	defaultProvider          = ProviderOpenAI
	defaultOpenAIModel       = "gpt-4.1-mini"
	defaultAnthropicModel    = "claude-3-5-haiku-latest"
	defaultGoogleModel       = "gemini-1.5-flash"
	defaultLocalModel        = "llama3.1"
	defaultMaxTokens         = 120
	defaultTemperature       = 0.4
	defaultProviderTimeout   = 60
	defaultMaxContextChars   = 600
	defaultNotifyTimeout     = 10
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultAnthropicBaseURL  = "https://api.anthropic.com"
	defaultGoogleBaseURL     = "https://generativelanguage.googleapis.com"
	defaultLocalBaseURL      = "http://localhost:11434"
	defaultItemTypeAlbum     = "MusicAlbum"
	defaultItemTypeArtist    = "MusicArtist"
	defaultExcludedTrackType = "Audio"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
		},
		Jellyfin: Jellyfin{
			TimeoutSeconds: defaultJellyfinTimeout,
		},
		Catalog: Catalog{
			ItemTypes:    []string{defaultItemTypeAlbum, defaultItemTypeArtist},
			ExcludeTypes: []string{defaultExcludedTrackType},
			MinLength:    defaultMinLength,
		},
		Provider: Provider{
			Name:           defaultProvider,
			MaxTokens:      defaultMaxTokens,
			Temperature:    defaultTemperature,
			TimeoutSeconds: defaultProviderTimeout,
		},
		OpenAI:    Backend{BaseURL: defaultOpenAIBaseURL},
		Anthropic: Backend{BaseURL: defaultAnthropicBaseURL},
		Google:    Backend{BaseURL: defaultGoogleBaseURL},
		Local:     Backend{BaseURL: defaultLocalBaseURL},
		Prompt: Prompt{
			MaxContextChars: defaultMaxContextChars,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

// DefaultModel returns the model used when provider.model is left empty.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return defaultOpenAIModel
	case ProviderAnthropic:
		return defaultAnthropicModel
	case ProviderGoogle:
		return defaultGoogleModel
	case ProviderLocal:
		return defaultLocalModel
	default:
		return ""
	}
}
