// Package config resolves the effective engine configuration.
package config

import (
	"context"
	"fmt"

	"github.com/asimihsan/advisory_engine/internal/config"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
	"github.com/asimihsan/advisory_engine/pkg/config/loader"
)

// DefaultID identifies the built-in configuration.
const DefaultID = "default"

// Evaluate loads the Pkl file at path, or the built-in defaults when path
// is empty, and returns it with an id for audit records.
func Evaluate(ctx context.Context, path string) (*config.AppConfig, string, error) {
	if path == "" {
		return config.Default(), DefaultID, nil
	}
	cfg, sha, err := loader.LoadFromPathWithSHA(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, sha, nil
}

// Validate fills absent blocks with defaults and checks that the selected
// backend is configured. cfg is modified in place.
func Validate(cfg *config.AppConfig) error {
	def := config.Default()
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = def.DefaultLanguage
	}
	if cfg.Providers == nil {
		cfg.Providers = def.Providers
	}
	if cfg.Disease == nil {
		cfg.Disease = def.Disease
	}
	if cfg.Fusion == nil {
		cfg.Fusion = def.Fusion
	}

	switch cfg.Providers.Backend {
	case "mock", "keyword":
	case "httpmodel":
		if cfg.Providers.HttpModel == nil || cfg.Providers.HttpModel.BaseUrl == "" {
			return fmt.Errorf("%w: httpmodel backend needs providers.httpModel.baseUrl", advisory.ErrConfigLoad)
		}
	case "gemini":
		if cfg.Providers.Gemini == nil {
			cfg.Providers.Gemini = config.DefaultGemini()
		}
	default:
		return fmt.Errorf("%w: unknown provider backend %q", advisory.ErrConfigLoad, cfg.Providers.Backend)
	}
	return nil
}
