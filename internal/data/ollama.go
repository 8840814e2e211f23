package data

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
)

const ollamaProvider = "ollama"

// OllamaRepo talks the Ollama HTTP protocol (/chat and /generate), optionally
// behind a bearer-token proxy
type OllamaRepo struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float32
	httpClient  *http.Client
	logger      *zap.Logger
}

var _ repo.GenerationRepo = (*OllamaRepo)(nil)

// NewOllamaRepo creates an Ollama-protocol backend. baseURL is the API root, e.g. http://host:11434/api
func NewOllamaRepo(baseURL, apiKey, model string, temperature float32, logger *zap.Logger) *OllamaRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaRepo{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		httpClient:  &http.Client{},
		logger:      logger.Named(ollamaProvider),
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

// ollamaChunk covers both /chat and /generate bodies and stream lines
type ollamaChunk struct {
	Message  *ollamaMessage `json:"message,omitempty"`
	Response string         `json:"response,omitempty"`
	Done     bool           `json:"done"`
	Error    string         `json:"error,omitempty"`
}

func (c ollamaChunk) text() string {
	if c.Message != nil {
		return c.Message.Content
	}
	return c.Response
}

func toOllamaMessages(turns []domain.Turn) []ollamaMessage {
	msgs := make([]ollamaMessage, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, ollamaMessage{Role: chatRole(t.Role), Content: t.Content})
	}
	return msgs
}

// Chat sends the turns to /chat and returns the reply
func (r *OllamaRepo) Chat(ctx context.Context, turns []domain.Turn) (string, error) {
	return r.complete(ctx, "/chat", ollamaChatRequest{
		Model:    r.model,
		Messages: toOllamaMessages(turns),
		Options:  ollamaOptions{Temperature: r.temperature},
	})
}

// StreamChat streams the reply from /chat
func (r *OllamaRepo) StreamChat(ctx context.Context, turns []domain.Turn) iter.Seq2[string, error] {
	return r.stream(ctx, "/chat", ollamaChatRequest{
		Model:    r.model,
		Messages: toOllamaMessages(turns),
		Stream:   true,
		Options:  ollamaOptions{Temperature: r.temperature},
	})
}

// Generate completes a bare prompt with /generate
func (r *OllamaRepo) Generate(ctx context.Context, prompt string) (string, error) {
	return r.complete(ctx, "/generate", ollamaGenerateRequest{
		Model:   r.model,
		Prompt:  prompt,
		Options: ollamaOptions{Temperature: r.temperature},
	})
}

// StreamGenerate streams a bare prompt completion from /generate
func (r *OllamaRepo) StreamGenerate(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return r.stream(ctx, "/generate", ollamaGenerateRequest{
		Model:   r.model,
		Prompt:  prompt,
		Stream:  true,
		Options: ollamaOptions{Temperature: r.temperature},
	})
}

func (r *OllamaRepo) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.BackendError{Provider: ollamaProvider, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &domain.BackendError{Provider: ollamaProvider, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &domain.BackendError{Provider: ollamaProvider, StatusCode: resp.StatusCode, Body: string(b)}
	}
	return resp, nil
}

func (r *OllamaRepo) complete(ctx context.Context, path string, body any) (string, error) {
	resp, err := r.post(ctx, path, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.BackendError{Provider: ollamaProvider, StatusCode: resp.StatusCode, Err: err}
	}
	var chunk ollamaChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return "", &domain.BackendError{Provider: ollamaProvider, StatusCode: resp.StatusCode, Body: string(raw), Err: err}
	}
	if chunk.Error != "" {
		return "", &domain.BackendError{Provider: ollamaProvider, StatusCode: resp.StatusCode, Body: chunk.Error}
	}

	r.logger.Debug("completion", zap.String("path", path), zap.Int("chars", len(chunk.text())))
	return chunk.text(), nil
}

func (r *OllamaRepo) stream(ctx context.Context, path string, body any) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := r.post(ctx, path, body)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk ollamaChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				yield("", &domain.BackendError{Provider: ollamaProvider, StatusCode: resp.StatusCode, Body: string(line), Err: err})
				return
			}
			if chunk.Error != "" {
				yield("", &domain.BackendError{Provider: ollamaProvider, StatusCode: resp.StatusCode, Body: chunk.Error})
				return
			}
			if text := chunk.text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", &domain.BackendError{Provider: ollamaProvider, Err: err})
		}
	}
}
