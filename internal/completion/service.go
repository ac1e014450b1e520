// Package completion provides the generative text-completion capability
// behind a single interface, with mock and remote provider implementations
// selected at configuration time.
package completion

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// Options control a single completion call.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Service is a generative text-completion capability. Implementations must
// be safe for concurrent use. Provider/network failures surface as
// models.ErrCompletionUnavailable; content-policy refusals as
// models.ErrCompletionRejected.
type Service interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
	Close() error
}

// NewService creates the completion service selected by cfg.Provider.
// Unknown providers are a configuration error.
func NewService(cfg *config.CompletionConfig) (Service, error) {
	switch cfg.Provider {
	case "mock":
		return NewMockService(nil), nil
	case "openai":
		return NewOpenAIService(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown completion provider %q", models.ErrConfiguration, cfg.Provider)
	}
}
