package usecase

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
)

// Mock implementations

type mockChatRepo struct {
	self    domain.Participant
	history []domain.ChatMessage // newest first
	err     error
}

func (m *mockChatRepo) Self(ctx context.Context) (domain.Participant, error) {
	return m.self, nil
}

func (m *mockChatRepo) History(ctx context.Context, chatID string, limit int) ([]domain.ChatMessage, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit > len(m.history) {
		limit = len(m.history)
	}
	return m.history[:limit], nil
}

func (m *mockChatRepo) Reply(ctx context.Context, msgID, text string) error { return nil }

func (m *mockChatRepo) Send(ctx context.Context, chatID, text string) error { return nil }

func (m *mockChatRepo) StartTyping(ctx context.Context, msgID string) func() { return func() {} }

// mockGenerationRepo answers with respond(turns), recording every call
type mockGenerationRepo struct {
	respond func(turns []domain.Turn) (string, error)

	mu    sync.Mutex
	calls [][]domain.Turn
}

func (m *mockGenerationRepo) Chat(ctx context.Context, turns []domain.Turn) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, turns)
	m.mu.Unlock()
	return m.respond(turns)
}

func (m *mockGenerationRepo) StreamChat(ctx context.Context, turns []domain.Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text, err := m.Chat(ctx, turns)
		yield(text, err)
	}
}

func (m *mockGenerationRepo) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockPageRepo struct {
	text string
	err  error
}

func (m *mockPageRepo) Fetch(ctx context.Context, url string) (string, error) {
	return m.text, m.err
}

type mockSearchRepo struct {
	results []domain.SearchResult
	err     error
	got     repo.SearchQuery
}

func (m *mockSearchRepo) Search(ctx context.Context, q repo.SearchQuery) ([]domain.SearchResult, error) {
	m.got = q
	return m.results, m.err
}

var errBackendDown = errors.New("backend down")
