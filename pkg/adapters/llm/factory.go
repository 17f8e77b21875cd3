package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/metahuman-os/cortex/pkg/adapters/llm/anthropic"
	"github.com/metahuman-os/cortex/pkg/ports"
)

// Config holds model client configuration.
type Config struct {
	Provider string
	APIKey   string
	Model    string
}

// NewClient creates a model client for the configured provider.
func NewClient(cfg Config, logger *zap.Logger) (ports.ModelClient, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewClient(cfg.APIKey, cfg.Model, logger)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}
}
