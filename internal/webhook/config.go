package webhook

import (
	"fmt"

	"github.com/mattjoyce/hookrelay/internal/config"
)

// FromGlobalConfig converts the HTTP section of config.Config to webhook.Config.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}
	if cfg.HTTP.Listen == "" {
		return Config{}, fmt.Errorf("webhook listen address is empty")
	}

	maxBody := cfg.HTTP.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}

	return Config{
		Listen:      cfg.HTTP.Listen,
		MaxBodySize: maxBody,
	}, nil
}
