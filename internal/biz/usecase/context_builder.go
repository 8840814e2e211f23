package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
)

// ContextConfig contains context assembly configuration
type ContextConfig struct {
	SystemPrompt         string        // Static system prompt
	SystemPromptProvider func() string // Consulted on every assembly when set
}

// ContextBuilderUsecase turns channel history into a prompt turn sequence
type ContextBuilderUsecase struct {
	chatRepo repo.ChatRepo
	cfg      ContextConfig
}

// NewContextBuilderUsecase creates a new context builder usecase
func NewContextBuilderUsecase(chatRepo repo.ChatRepo, cfg ContextConfig) *ContextBuilderUsecase {
	return &ContextBuilderUsecase{chatRepo: chatRepo, cfg: cfg}
}

// SystemPrompt returns the current system prompt, provider first
func (uc *ContextBuilderUsecase) SystemPrompt() string {
	if uc.cfg.SystemPromptProvider != nil {
		if p := uc.cfg.SystemPromptProvider(); p != "" {
			return p
		}
	}
	return uc.cfg.SystemPrompt
}

// Assemble reads up to limit recent messages of a chat and builds the turn sequence
func (uc *ContextBuilderUsecase) Assemble(ctx context.Context, chatID string, limit int) ([]domain.Turn, error) {
	history, err := uc.chatRepo.History(ctx, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("get chat history: %w", err)
	}
	return uc.AssembleFrom(history, limit), nil
}

// AssembleFrom builds the turn sequence from newest-first history.
// The result is chronological, with the system turn (if any) first.
func (uc *ContextBuilderUsecase) AssembleFrom(history []domain.ChatMessage, limit int) []domain.Turn {
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}

	turns := make([]domain.Turn, 0, len(history)+1)
	for i := range history {
		m := &history[i]
		content := SanitizeMentions(m.Content, m.Mentions)
		if m.Author.Bot {
			turns = append(turns, domain.AITurn(content))
		} else {
			turns = append(turns, domain.HumanTurn(fmt.Sprintf("%s: %s", m.Author.Label(), content)))
		}
	}

	if prompt := uc.SystemPrompt(); prompt != "" {
		turns = append(turns, domain.SystemTurn(prompt))
	}

	// newest-first -> oldest-first; the system turn lands at the front
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns
}

// SanitizeMentions replaces both mention encodings of every known participant with "@{label}"
func SanitizeMentions(content string, mentions []domain.Participant) string {
	if len(mentions) == 0 {
		return content
	}
	pairs := make([]string, 0, len(mentions)*4)
	for _, p := range mentions {
		if p.ID == "" {
			continue
		}
		readable := p.Readable()
		pairs = append(pairs, p.RoleMentionToken(), readable, p.MentionToken(), readable)
	}
	return strings.NewReplacer(pairs...).Replace(content)
}
