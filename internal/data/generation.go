package data

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
	"github.com/hobojuki/feishu-hobojuki/internal/conf"
)

// chatRole maps a turn role to the OpenAI/Ollama wire role
func chatRole(r domain.Role) string {
	switch r {
	case domain.RoleSystem:
		return "system"
	case domain.RoleAI:
		return "assistant"
	default:
		return "user"
	}
}

// NewGenerationRepo builds the backend selected by cfg.Provider
func NewGenerationRepo(ctx context.Context, cfg conf.LLMConfig, logger *zap.Logger) (repo.GenerationRepo, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaRepo(cfg.OllamaURL, cfg.OllamaAPIKey, cfg.OllamaModel, cfg.Temperature, logger), nil
	case "openai":
		return NewOpenAIRepo(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.Temperature, logger), nil
	case "gemini":
		g, err := NewGeminiRepo(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.Temperature, logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
