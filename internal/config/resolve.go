package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// ClientConfig contains resolved API client settings.
type ClientConfig struct {
	BaseURL      string
	Username     string
	RefreshToken string
}

// envOverrides are environment settings that take precedence over the
// stored account.
type envOverrides struct {
	BaseURL string `env:"LUNAR_BASE_URL"`
	Profile string `env:"LUNAR_PROFILE"`
}

func parseEnvOverrides() (envOverrides, error) {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return envOverrides{}, fmt.Errorf("parse env: %w", err)
	}
	return overrides, nil
}

// ResolveClientConfig resolves client settings from the stored account,
// environment variables, and an optional --base-url flag, in increasing
// order of precedence.
func ResolveClientConfig(baseURLOverride string) (ClientConfig, error) {
	overrides, err := parseEnvOverrides()
	if err != nil {
		return ClientConfig{}, err
	}

	var cfg ClientConfig
	if account, loadErr := LoadAccount(); loadErr == nil {
		cfg.BaseURL = account.BaseURL
		cfg.Username = account.Username
		cfg.RefreshToken = account.RefreshToken
	}

	if envURL := strings.TrimSpace(overrides.BaseURL); envURL != "" {
		cfg.BaseURL = strings.TrimSuffix(envURL, "/")
	}
	if baseURLOverride != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURLOverride, "/")
	}

	if cfg.BaseURL == "" {
		return ClientConfig{}, fmt.Errorf("base URL not configured (set LUNAR_BASE_URL, run 'lunar auth login', or pass --base-url)")
	}

	return cfg, nil
}
