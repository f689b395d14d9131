package factory

import (
	"context"
	"fmt"

	"github.com/mikey/applytrack/internal/adapters/bedrock"
	"github.com/mikey/applytrack/internal/adapters/gemini"
	"github.com/mikey/applytrack/internal/adapters/openai"
	"github.com/mikey/applytrack/internal/completion"
	"github.com/mikey/applytrack/internal/config"
	"github.com/mikey/applytrack/internal/core"
	"go.uber.org/zap"
)

// LLMFactory creates completion providers
type LLMFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateProvider creates the configured provider without retries
func (f *LLMFactory) CreateProvider(ctx context.Context) (core.CompletionProvider, error) {
	llmConfig := f.cfg.GetLLM()

	switch llmConfig.Provider {
	case "", "openai":
		return openai.NewFactory(f.cfg, f.logger).CreateProvider()
	case "gemini":
		return gemini.NewFactory(f.cfg, f.logger).CreateProvider(ctx)
	case "bedrock":
		return bedrock.NewFactory(f.cfg, f.logger).CreateProvider(ctx)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
}

// CreateCompletionClient wraps the configured provider in the retrying client
func (f *LLMFactory) CreateCompletionClient(ctx context.Context) (*completion.Client, error) {
	provider, err := f.CreateProvider(ctx)
	if err != nil {
		return nil, err
	}
	completionCfg, err := f.cfg.GetCompletion()
	if err != nil {
		return nil, err
	}
	f.logger.Info("Completion provider ready",
		zap.String("provider", provider.Name()),
		zap.Duration("timeout", completionCfg.Timeout),
		zap.Int("max_attempts", completionCfg.MaxAttempts))
	return completion.NewClient(provider, completionCfg, f.logger), nil
}
