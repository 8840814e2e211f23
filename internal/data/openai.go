package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
)

const openAIProvider = "openai"

// OpenAIRepo is a chat backend for any OpenAI-compatible endpoint (OpenAI, Groq, local gateways)
type OpenAIRepo struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

var _ repo.GenerationRepo = (*OpenAIRepo)(nil)

// NewOpenAIRepo creates an OpenAI-compatible backend. An empty baseURL uses api.openai.com.
func NewOpenAIRepo(apiKey, baseURL, model string, temperature float32, logger *zap.Logger) *OpenAIRepo {
	if model == "" {
		model = openai.GPT4oMini
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIRepo{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		temperature: temperature,
		logger:      logger.Named(openAIProvider),
	}
}

func (r *OpenAIRepo) request(turns []domain.Turn, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: chatRole(t.Role), Content: t.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    msgs,
		Temperature: r.temperature,
		Stream:      stream,
	}
}

// Chat sends the turns and returns the first choice
func (r *OpenAIRepo) Chat(ctx context.Context, turns []domain.Turn) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, r.request(turns, false))
	if err != nil {
		return "", openAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &domain.BackendError{Provider: openAIProvider, Err: fmt.Errorf("no response choices")}
	}

	r.logger.Debug("completion",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// StreamChat streams delta content
func (r *OpenAIRepo) StreamChat(ctx context.Context, turns []domain.Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream, err := r.client.CreateChatCompletionStream(ctx, r.request(turns, true))
		if err != nil {
			yield("", openAIError(err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", openAIError(err))
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(resp.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}

// openAIError keeps the HTTP status of API failures
func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &domain.BackendError{Provider: openAIProvider, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &domain.BackendError{Provider: openAIProvider, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return &domain.BackendError{Provider: openAIProvider, Err: err}
}
