package data

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
	"github.com/hobojuki/feishu-hobojuki/internal/infra/feishu"
)

// TypingReaction is the emoji shown on a message while a reply is being prepared
const TypingReaction = "OnIt"

const memberCacheTTL = 10 * time.Minute

// feishuAPI is the subset of the Feishu client the repository uses
type feishuAPI interface {
	BotIdentity() (openID, name string, ok bool)
	GetChatHistory(ctx context.Context, chatID string, pageSize int) ([]*feishu.HistoryMessage, error)
	GetChatMembers(ctx context.Context, chatID string) ([]*feishu.ChatMember, error)
	Reply(ctx context.Context, messageID, text string) error
	SendText(ctx context.Context, chatID, text string) error
	AddReaction(ctx context.Context, messageID, emojiType string) (string, error)
	RemoveReaction(ctx context.Context, messageID, reactionID string) error
}

type memberNames struct {
	names   map[string]string
	fetched time.Time
}

// FeishuRepo implements repo.ChatRepo on the Feishu client
type FeishuRepo struct {
	client feishuAPI
	logger *zap.Logger

	mu      sync.Mutex
	members map[string]memberNames
}

var _ repo.ChatRepo = (*FeishuRepo)(nil)

// NewFeishuRepo creates a new Feishu repository
func NewFeishuRepo(client feishuAPI, logger *zap.Logger) *FeishuRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeishuRepo{
		client:  client,
		logger:  logger.Named("feishu_repo"),
		members: make(map[string]memberNames),
	}
}

// Self returns the bot participant
func (r *FeishuRepo) Self(ctx context.Context) (domain.Participant, error) {
	openID, name, ok := r.client.BotIdentity()
	if !ok {
		return domain.Participant{}, domain.ErrTransportNotReady
	}
	return domain.Participant{ID: openID, Name: name, Bot: true}, nil
}

// History returns recent messages, newest first
func (r *FeishuRepo) History(ctx context.Context, chatID string, limit int) ([]domain.ChatMessage, error) {
	msgs, err := r.client.GetChatHistory(ctx, chatID, limit)
	if err != nil {
		return nil, &domain.TransportError{Op: "history", Err: err}
	}

	names := r.memberNames(ctx, chatID)
	_, botName, _ := r.client.BotIdentity()

	result := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		author := domain.Participant{}
		if m.Sender != nil {
			author.ID = m.Sender.SenderID
			author.Name = names[m.Sender.SenderID]
			author.Bot = m.Sender.IsApp()
			if author.Bot && author.Name == "" {
				author.Name = botName
			}
		}
		result = append(result, domain.ChatMessage{
			ID:        m.MsgID,
			ChatID:    chatID,
			Author:    author,
			Content:   m.Content,
			Mentions:  toParticipants(m.Mentions, m.Content),
			CreatedAt: time.UnixMilli(m.CreateTime),
		})
	}
	return result, nil
}

// FromEvent converts an inbound event message into the domain view
func (r *FeishuRepo) FromEvent(ctx context.Context, msg *feishu.Message) domain.ChatMessage {
	author := domain.Participant{}
	if msg.Sender != nil {
		author.ID = msg.Sender.SenderID
		author.Bot = msg.Sender.IsApp()
		if !author.Bot {
			author.Name = r.memberNames(ctx, msg.ChatID)[author.ID]
		}
	}
	created := time.Now()
	if msg.CreateTime > 0 {
		created = time.UnixMilli(msg.CreateTime)
	}
	return domain.ChatMessage{
		ID:        msg.MsgID,
		ChatID:    msg.ChatID,
		Author:    author,
		Content:   msg.Content,
		Mentions:  toParticipants(msg.Mentions, msg.Content),
		CreatedAt: created,
	}
}

func toParticipants(mentions []feishu.Mention, content string) []domain.Participant {
	var out []domain.Participant
	for _, m := range mentions {
		if m.OpenID == "" {
			continue
		}
		out = append(out, domain.Participant{ID: m.OpenID, Name: m.Name})
	}
	if strings.Contains(content, "<@&"+feishu.AllMentionID+">") {
		out = append(out, domain.Participant{ID: feishu.AllMentionID, Name: "all"})
	}
	return out
}

// memberNames returns open_id → name for a chat, cached; failures yield an empty map
func (r *FeishuRepo) memberNames(ctx context.Context, chatID string) map[string]string {
	r.mu.Lock()
	cached, ok := r.members[chatID]
	r.mu.Unlock()
	if ok && time.Since(cached.fetched) < memberCacheTTL {
		return cached.names
	}

	members, err := r.client.GetChatMembers(ctx, chatID)
	if err != nil {
		r.logger.Warn("get chat members", zap.String("chat_id", chatID), zap.Error(err))
		if ok {
			return cached.names
		}
		return map[string]string{}
	}

	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.MemberID] = m.Name
	}
	r.mu.Lock()
	r.members[chatID] = memberNames{names: names, fetched: time.Now()}
	r.mu.Unlock()
	return names
}

// Reply replies to a message
func (r *FeishuRepo) Reply(ctx context.Context, msgID, text string) error {
	if err := r.client.Reply(ctx, msgID, text); err != nil {
		return &domain.TransportError{Op: "reply", Err: err}
	}
	return nil
}

// Send sends a message to a chat
func (r *FeishuRepo) Send(ctx context.Context, chatID, text string) error {
	if err := r.client.SendText(ctx, chatID, text); err != nil {
		return &domain.TransportError{Op: "send", Err: err}
	}
	return nil
}

// StartTyping adds the typing reaction; the returned func removes it (once)
func (r *FeishuRepo) StartTyping(ctx context.Context, msgID string) func() {
	reactionID, err := r.client.AddReaction(ctx, msgID, TypingReaction)
	if err != nil {
		r.logger.Warn("add typing reaction", zap.String("msg_id", msgID), zap.Error(err))
		return func() {}
	}
	if reactionID == "" {
		return func() {}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The request context may already be done when the reply finishes
			rctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := r.client.RemoveReaction(rctx, msgID, reactionID); err != nil {
				r.logger.Warn("remove typing reaction", zap.String("msg_id", msgID), zap.Error(err))
			}
		})
	}
}
