// Package textgen is the text-generation service boundary: one-shot
// completions and streams of incremental text fragments.
package textgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/cnap-oss/gridion/internal/common"
	"go.uber.org/zap"
)

var (
	// ErrRateLimited marks provider responses that asked the caller to slow down.
	ErrRateLimited = errors.New("textgen: rate limited")
	// ErrEmptyResponse is returned when a completion carried no text block.
	ErrEmptyResponse = errors.New("textgen: no text in response")
)

// Request is a single-turn prompt.
type Request struct {
	// System is optional; providers without a system slot prepend it.
	System    string
	Prompt    string
	MaxTokens int64
	// Model overrides the client default when set.
	Model string
}

// Generator is implemented by every provider client.
type Generator interface {
	Complete(ctx context.Context, req Request) (string, error)
	Stream(ctx context.Context, req Request) (FragmentStream, error)
}

// FragmentStream yields text deltas in arrival order. Callers must Close it.
type FragmentStream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

const defaultMaxTokens = 1024

func maxTokens(req Request) int64 {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}

// NewFromConfig builds the configured provider client wrapped with rate
// limiting and retry on rate-limit responses.
func NewFromConfig(cfg *common.Config, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		gen Generator
		err error
	)
	switch cfg.TextGen.Provider {
	case "", ProviderAnthropic:
		gen, err = NewAnthropicFromAPIKey(cfg.APIKeys.Anthropic, cfg.TextGen.Model)
	case ProviderOpenAI:
		gen, err = NewOpenAIFromAPIKey(cfg.APIKeys.OpenAI, cfg.TextGen.Model)
	default:
		return nil, fmt.Errorf("textgen: unknown provider %q", cfg.TextGen.Provider)
	}
	if err != nil {
		return nil, err
	}

	gen = WithRateLimit(gen, cfg.TextGen.RequestsPerMinute)
	return WithRetry(gen, logger.Named("textgen")), nil
}
