package repo

import (
	"context"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
)

// ChatRepo is the chat transport repository interface
// Responsible for reading history and delivering replies through Feishu
type ChatRepo interface {
	// Self returns the agent's own participant identity
	// Returns domain.ErrTransportNotReady until the transport has connected
	Self(ctx context.Context) (domain.Participant, error)

	// History returns up to limit most-recent messages of a chat, newest first
	History(ctx context.Context, chatID string, limit int) ([]domain.ChatMessage, error)

	// Reply replies to a specific message
	Reply(ctx context.Context, msgID, text string) error

	// Send sends a message to a chat without a source message
	Send(ctx context.Context, chatID, text string) error

	// StartTyping shows a typing indicator on a message until the returned func is called
	StartTyping(ctx context.Context, msgID string) (stop func())
}
