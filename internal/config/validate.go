package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateJellyfin(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validatePricing(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateJellyfin() error {
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/metamender/config.toml"
	}
	if strings.TrimSpace(c.Jellyfin.URL) == "" {
		return fmt.Errorf("jellyfin.url is required. Set JELLYFIN_URL or edit %s (create with 'metamender config init')", defaultPath)
	}
	if strings.TrimSpace(c.Jellyfin.APIKey) == "" {
		return fmt.Errorf("jellyfin.api_key is required. Set JELLYFIN_API_KEY or edit %s", defaultPath)
	}
	if strings.TrimSpace(c.Jellyfin.UserID) == "" {
		return errors.New("jellyfin.user_id must be set")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if len(c.Catalog.ItemTypes) == 0 {
		return errors.New("catalog.item_types must include at least one item type")
	}
	if c.Catalog.MinLength < 0 {
		return errors.New("catalog.min_length must be >= 0")
	}
	for _, excluded := range c.Catalog.ExcludeTypes {
		for _, included := range c.Catalog.ItemTypes {
			if strings.EqualFold(excluded, included) {
				return fmt.Errorf("catalog.exclude_types contains %q which is also listed in catalog.item_types", excluded)
			}
		}
	}
	return nil
}

func (c *Config) validateProvider() error {
	switch c.Provider.Name {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderLocal:
	default:
		return fmt.Errorf("provider.name %q is not supported (use openai, anthropic, google, or local)", c.Provider.Name)
	}
	if strings.TrimSpace(c.Provider.Model) == "" {
		return errors.New("provider.model must be set")
	}
	if c.Provider.MaxTokens <= 0 {
		return errors.New("provider.max_tokens must be positive")
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		return errors.New("provider.temperature must be between 0 and 2")
	}
	return nil
}

func (c *Config) validatePricing() error {
	for model, price := range c.Pricing {
		if price.InputPerMillion < 0 || price.OutputPerMillion < 0 {
			return fmt.Errorf("pricing.%s must not be negative", model)
		}
	}
	return nil
}
