package service

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/hobojuki/feishu-hobojuki/internal/biz"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/usecase"
	"github.com/hobojuki/feishu-hobojuki/internal/conf"
)

var errBackendDown = errors.New("connection refused")

type sentMessage struct {
	To   string // message ID for replies, chat ID for sends
	Text string
}

type mockChatRepo struct {
	self    domain.Participant
	selfErr error
	history []domain.ChatMessage
	sendErr error

	mu       sync.Mutex
	replies  []sentMessage
	sends    []sentMessage
	typing   []string
	stopped  int
	notifyCh chan struct{}
}

func (m *mockChatRepo) Self(ctx context.Context) (domain.Participant, error) {
	return m.self, m.selfErr
}

func (m *mockChatRepo) History(ctx context.Context, chatID string, limit int) ([]domain.ChatMessage, error) {
	if limit > len(m.history) {
		limit = len(m.history)
	}
	return m.history[:limit], nil
}

func (m *mockChatRepo) Reply(ctx context.Context, msgID, text string) error {
	m.mu.Lock()
	m.replies = append(m.replies, sentMessage{To: msgID, Text: text})
	m.mu.Unlock()
	m.notify()
	return m.sendErr
}

func (m *mockChatRepo) Send(ctx context.Context, chatID, text string) error {
	m.mu.Lock()
	m.sends = append(m.sends, sentMessage{To: chatID, Text: text})
	m.mu.Unlock()
	m.notify()
	return m.sendErr
}

func (m *mockChatRepo) StartTyping(ctx context.Context, msgID string) func() {
	m.mu.Lock()
	m.typing = append(m.typing, msgID)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.stopped++
		m.mu.Unlock()
	}
}

func (m *mockChatRepo) notify() {
	if m.notifyCh != nil {
		select {
		case m.notifyCh <- struct{}{}:
		default:
		}
	}
}

func (m *mockChatRepo) sentReplies() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.replies...)
}

// mockGenerationRepo answers classifier, summarize and reply prompts differently
type mockGenerationRepo struct {
	classify string // raw classifier answer
	reply    string
	err      error

	mu    sync.Mutex
	calls [][]domain.Turn
}

func (m *mockGenerationRepo) Chat(ctx context.Context, turns []domain.Turn) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, turns)
	m.mu.Unlock()

	if len(turns) == 1 && strings.HasPrefix(turns[0].Content, "Analyze the following question") {
		return m.classify, nil
	}
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func (m *mockGenerationRepo) StreamChat(ctx context.Context, turns []domain.Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield(m.Chat(ctx, turns))
	}
}

func (m *mockGenerationRepo) lastCall() []domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
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

	mu      sync.Mutex
	queries []string
}

func (m *mockSearchRepo) Search(ctx context.Context, q repo.SearchQuery) ([]domain.SearchResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q.Query)
	m.mu.Unlock()
	return m.results, nil
}

// memoryLedger is an in-memory repo.LedgerRepo
type memoryLedger struct {
	mu         sync.Mutex
	claimed    map[string]bool
	deliveries []*repo.Delivery
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{claimed: make(map[string]bool)}
}

func (l *memoryLedger) Claim(ctx context.Context, msgID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimed[msgID] {
		return false, nil
	}
	l.claimed[msgID] = true
	return true, nil
}

func (l *memoryLedger) Record(ctx context.Context, d *repo.Delivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	d.ID = int64(len(l.deliveries) + 1)
	l.deliveries = append(l.deliveries, d)
	return nil
}

func (l *memoryLedger) Recent(ctx context.Context, limit int) ([]*repo.Delivery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*repo.Delivery, 0, len(l.deliveries))
	for i := len(l.deliveries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.deliveries[i])
	}
	return out, nil
}

func (l *memoryLedger) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (l *memoryLedger) Close() error { return nil }

func (l *memoryLedger) paths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, d := range l.deliveries {
		out = append(out, d.Path)
	}
	return out
}

// routerFixture wires a Router over mocks with the default prompts
type routerFixture struct {
	chat   *mockChatRepo
	gen    *mockGenerationRepo
	page   *mockPageRepo
	search *mockSearchRepo
	ledger *memoryLedger
	queue  *usecase.ScheduleQueue
	router *Router
}

var bot = domain.Participant{ID: "ou_bot", Name: "hobo", Bot: true}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		chat:   &mockChatRepo{self: bot},
		gen:    &mockGenerationRepo{reply: "うん", classify: "NEEDS_SEARCH: false\nHAS_URL: false\nSEARCH_QUERY: none"},
		page:   &mockPageRepo{text: "岡崎市は愛知県の市です。"},
		search: &mockSearchRepo{results: []domain.SearchResult{{Title: "天気", URL: "https://weather.example", Snippet: "晴れ"}}},
		ledger: newMemoryLedger(),
		queue:  usecase.NewScheduleQueue(),
	}

	prompts := conf.DefaultPromptsConfig()
	uc := &biz.Usecases{
		Context: usecase.NewContextBuilderUsecase(f.chat, usecase.ContextConfig{SystemPrompt: "persona"}),
		Gatherer: usecase.NewGathererUsecase(f.page, f.search, f.gen, usecase.GathererConfig{
			SummarizePrompt: prompts.Summary.ChunkPrompt,
			TruncatedNote:   prompts.Summary.TruncatedNote,
		}, nil),
		Classifier: usecase.NewClassifierUsecase(f.gen, prompts.Classifier.Prompt, nil),
		Sanitizer:  usecase.NewSanitizer(nil),
		Schedule:   f.queue,
	}

	f.router = NewRouter(f.chat, f.gen, f.ledger, uc, BotConfig{
		HistoryLimit:      10,
		GenerationTimeout: 5 * time.Second,
		ClassifierEnabled: true,
		Summary:           usecase.DefaultSummarizeOptions,
		Search:            usecase.SearchRequest{MaxResults: 3, Region: "jp-jp"},
		Reply:             prompts.Reply,
		Schedule:          prompts.Schedule,
	}, nil)
	f.router.now = func() time.Time { return time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC) }
	return f
}

// addressed builds a message from Alice that mentions the bot
func addressed(id, text string) *domain.ChatMessage {
	return &domain.ChatMessage{
		ID:       id,
		ChatID:   "oc_1",
		Author:   domain.Participant{ID: "ou_alice", Name: "Alice"},
		Content:  bot.MentionToken() + " " + text,
		Mentions: []domain.Participant{{ID: bot.ID, Name: bot.Name}},
	}
}
