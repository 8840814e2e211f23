package data

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
)

const geminiProvider = "gemini"

// GeminiRepo is a chat backend on the Gemini API
type GeminiRepo struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

var _ repo.GenerationRepo = (*GeminiRepo)(nil)

// NewGeminiRepo creates a Gemini backend
func NewGeminiRepo(ctx context.Context, apiKey, model string, temperature float32, logger *zap.Logger) (*GeminiRepo, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGeminiRepo(client, model, temperature, logger), nil
}

func newGeminiRepo(client *genai.Client, model string, temperature float32, logger *zap.Logger) *GeminiRepo {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiRepo{
		client:      client,
		model:       model,
		temperature: temperature,
		logger:      logger.Named(geminiProvider),
	}
}

// toGeminiContents moves system turns into the system instruction
func (r *GeminiRepo) toGeminiContents(turns []domain.Turn) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []string
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case domain.RoleSystem:
			system = append(system, t.Content)
		case domain.RoleAI:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleUser))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(r.temperature),
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, cfg
}

// Chat generates one reply
func (r *GeminiRepo) Chat(ctx context.Context, turns []domain.Turn) (string, error) {
	contents, cfg := r.toGeminiContents(turns)
	resp, err := r.client.Models.GenerateContent(ctx, r.model, contents, cfg)
	if err != nil {
		return "", &domain.BackendError{Provider: geminiProvider, Err: err}
	}
	text := resp.Text()
	if text == "" {
		return "", &domain.BackendError{Provider: geminiProvider, Err: emptyResponseError(resp)}
	}
	r.logger.Debug("completion", zap.String("model", r.model), zap.Int("chars", len(text)))
	return text, nil
}

// emptyResponseError explains a response without text, e.g. a safety block
func emptyResponseError(resp *genai.GenerateContentResponse) error {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		return fmt.Errorf("empty response (finish reason %s)", resp.Candidates[0].FinishReason)
	}
	return errors.New("empty response")
}

// StreamChat streams reply text
func (r *GeminiRepo) StreamChat(ctx context.Context, turns []domain.Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		contents, cfg := r.toGeminiContents(turns)
		for resp, err := range r.client.Models.GenerateContentStream(ctx, r.model, contents, cfg) {
			if err != nil {
				yield("", &domain.BackendError{Provider: geminiProvider, Err: err})
				return
			}
			if text := resp.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}
