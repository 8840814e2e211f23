package data

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/infra/feishu"
)

type fakeFeishu struct {
	mu sync.Mutex

	openID, name string
	history      []*feishu.HistoryMessage
	members      []*feishu.ChatMember
	memberCalls  int
	sendErr      error

	replies   []string
	sent      []string
	reactions []string
	removed   []string
}

func (f *fakeFeishu) BotIdentity() (string, string, bool) {
	return f.openID, f.name, f.openID != ""
}

func (f *fakeFeishu) GetChatHistory(ctx context.Context, chatID string, pageSize int) ([]*feishu.HistoryMessage, error) {
	return f.history, nil
}

func (f *fakeFeishu) GetChatMembers(ctx context.Context, chatID string) ([]*feishu.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberCalls++
	return f.members, nil
}

func (f *fakeFeishu) Reply(ctx context.Context, messageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, messageID+":"+text)
	return f.sendErr
}

func (f *fakeFeishu) SendText(ctx context.Context, chatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, chatID+":"+text)
	return f.sendErr
}

func (f *fakeFeishu) AddReaction(ctx context.Context, messageID, emojiType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, messageID+":"+emojiType)
	return "r_" + messageID, nil
}

func (f *fakeFeishu) RemoveReaction(ctx context.Context, messageID, reactionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, reactionID)
	return nil
}

func TestFeishuRepo_SelfNotReady(t *testing.T) {
	r := NewFeishuRepo(&fakeFeishu{}, nil)
	if _, err := r.Self(context.Background()); !errors.Is(err, domain.ErrTransportNotReady) {
		t.Errorf("Expected ErrTransportNotReady, got %v", err)
	}

	r = NewFeishuRepo(&fakeFeishu{openID: "ou_bot", name: "hobo"}, nil)
	self, err := r.Self(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if self.ID != "ou_bot" || !self.Bot || self.Label() != "hobo" {
		t.Errorf("Unexpected self: %+v", self)
	}
}

func TestFeishuRepo_History(t *testing.T) {
	fake := &fakeFeishu{
		openID: "ou_bot",
		name:   "hobo",
		members: []*feishu.ChatMember{
			{MemberID: "ou_alice", Name: "Alice"},
		},
		history: []*feishu.HistoryMessage{
			{
				MsgID:      "om_2",
				Content:    "うん",
				CreateTime: 2000,
				Sender:     &feishu.Sender{SenderID: "cli_app", SenderType: "app"},
			},
			{
				MsgID:      "om_1",
				Content:    "<@ou_bot> hi <@&all>",
				CreateTime: 1000,
				Sender:     &feishu.Sender{SenderID: "ou_alice", SenderType: "user"},
				Mentions:   []feishu.Mention{{Key: "@_user_1", OpenID: "ou_bot", Name: "hobo"}},
			},
		},
	}
	r := NewFeishuRepo(fake, nil)

	got, err := r.History(context.Background(), "oc_1", 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []domain.ChatMessage{
		{
			ID:        "om_2",
			ChatID:    "oc_1",
			Author:    domain.Participant{ID: "cli_app", Name: "hobo", Bot: true},
			Content:   "うん",
			CreatedAt: time.UnixMilli(2000),
		},
		{
			ID:      "om_1",
			ChatID:  "oc_1",
			Author:  domain.Participant{ID: "ou_alice", Name: "Alice"},
			Content: "<@ou_bot> hi <@&all>",
			Mentions: []domain.Participant{
				{ID: "ou_bot", Name: "hobo"},
				{ID: "all", Name: "all"},
			},
			CreatedAt: time.UnixMilli(1000),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("History mismatch (-want +got):\n%s", diff)
	}

	r.History(context.Background(), "oc_1", 10)
	if fake.memberCalls != 1 {
		t.Errorf("Expected member list to be cached, got %d calls", fake.memberCalls)
	}
}

func TestFeishuRepo_SendErrorsAreTransportErrors(t *testing.T) {
	r := NewFeishuRepo(&fakeFeishu{sendErr: errors.New("rate limited")}, nil)

	var te *domain.TransportError
	if err := r.Reply(context.Background(), "om_1", "x"); !errors.As(err, &te) || te.Op != "reply" {
		t.Errorf("Expected reply TransportError, got %v", err)
	}
	if err := r.Send(context.Background(), "oc_1", "x"); !errors.As(err, &te) || te.Op != "send" {
		t.Errorf("Expected send TransportError, got %v", err)
	}
}

func TestFeishuRepo_StartTyping(t *testing.T) {
	fake := &fakeFeishu{}
	r := NewFeishuRepo(fake, nil)

	stop := r.StartTyping(context.Background(), "om_9")
	stop()
	stop()

	if diff := cmp.Diff([]string{"om_9:" + TypingReaction}, fake.reactions); diff != "" {
		t.Errorf("Reactions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"r_om_9"}, fake.removed); diff != "" {
		t.Errorf("Removed mismatch (-want +got):\n%s", diff)
	}
}
