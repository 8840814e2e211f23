package mcp

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hobojuki/feishu-hobojuki/internal/api"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/usecase"
)

type stubGeneration struct{}

func (stubGeneration) Chat(ctx context.Context, turns []domain.Turn) (string, error) {
	return "NEEDS_SEARCH: true\nHAS_URL: false\nSEARCH_QUERY: 岡崎 天気", nil
}

func (stubGeneration) StreamChat(ctx context.Context, turns []domain.Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {}
}

type stubPage struct{}

func (stubPage) Fetch(ctx context.Context, url string) (string, error) {
	return "岡崎市は愛知県の市です。 https://okazaki.example", nil
}

type stubSearch struct{}

func (stubSearch) Search(ctx context.Context, q repo.SearchQuery) ([]domain.SearchResult, error) {
	return []domain.SearchResult{{Title: "天気", URL: "https://weather.example", Snippet: "晴れ"}}, nil
}

// newAPIBackend serves the real admin API over stub repositories
func newAPIBackend(t *testing.T) (*httptest.Server, *usecase.ScheduleQueue) {
	t.Helper()
	queue := usecase.NewScheduleQueue()
	gen := stubGeneration{}
	gatherer := usecase.NewGathererUsecase(stubPage{}, stubSearch{}, gen, usecase.GathererConfig{}, nil)
	srv := api.NewServer(queue, gatherer, usecase.NewClassifierUsecase(gen, "", nil), nil, api.Options{
		Summary: usecase.DefaultSummarizeOptions,
		Search:  usecase.SearchRequest{MaxResults: 3},
	}, 0, nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, queue
}

func TestHandler_Summarize(t *testing.T) {
	ts, _ := newAPIBackend(t)
	h := NewHandler(NewClient(ts.URL))

	out := h.Summarize(context.Background(), SummarizeInput{URL: "https://okazaki.example"})
	if out.Error != "" {
		t.Fatalf("Unexpected error: %s", out.Error)
	}
	if out.Summary != "岡崎市は愛知県の市です。" {
		t.Errorf("Expected reduced page text, got %q", out.Summary)
	}

	out = h.Summarize(context.Background(), SummarizeInput{URL: "okazaki.example"})
	if out.Error == "" {
		t.Error("Expected an error for a URL without scheme")
	}
}

func TestHandler_Search(t *testing.T) {
	ts, _ := newAPIBackend(t)
	h := NewHandler(NewClient(ts.URL))

	out := h.Search(context.Background(), SearchInput{Query: "岡崎 天気"})
	if out.Error != "" {
		t.Fatalf("Unexpected error: %s", out.Error)
	}
	if len(out.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(out.Results))
	}
	if want := "1. 天気\nhttps://weather.example\n晴れ\n"; out.Formatted != want {
		t.Errorf("Expected %q, got %q", want, out.Formatted)
	}

	if out := h.Search(context.Background(), SearchInput{Query: "  "}); out.Error == "" {
		t.Error("Expected an error for an empty query")
	}
}

func TestHandler_Classify(t *testing.T) {
	ts, _ := newAPIBackend(t)
	h := NewHandler(NewClient(ts.URL))

	got := h.Classify(context.Background(), ClassifyInput{Question: "明日の天気は？"})
	want := ClassifyOutput{NeedsSearch: true, SearchQuery: "岡崎 天気"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Classify mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler_ScheduleLifecycle(t *testing.T) {
	ts, queue := newAPIBackend(t)
	h := NewHandler(NewClient(ts.URL))
	ctx := context.Background()

	created := h.Schedule(ctx, ScheduleInput{Time: "09:30", Message: "https://example.com", ChatID: "oc_1"})
	if created.Error != "" {
		t.Fatalf("Unexpected error: %s", created.Error)
	}
	if created.ID == "" {
		t.Fatal("Expected an entry ID")
	}
	if queue.Len() != 1 {
		t.Errorf("Expected 1 queued entry, got %d", queue.Len())
	}

	list := h.ListSchedules(ctx, ListSchedulesInput{})
	if len(list.Entries) != 1 || list.Entries[0].ID != created.ID || list.Entries[0].ChatID != "oc_1" {
		t.Errorf("Unexpected entries: %+v", list.Entries)
	}

	if out := h.CancelSchedule(ctx, CancelScheduleInput{ID: created.ID}); !out.Success {
		t.Errorf("Expected cancel to succeed, got %+v", out)
	}
	if out := h.CancelSchedule(ctx, CancelScheduleInput{ID: created.ID}); out.Success || !strings.Contains(out.Error, "404") {
		t.Errorf("Expected a 404 on second cancel, got %+v", out)
	}
}

func TestHandler_ScheduleRejectsBadTime(t *testing.T) {
	ts, queue := newAPIBackend(t)
	h := NewHandler(NewClient(ts.URL))

	out := h.Schedule(context.Background(), ScheduleInput{Time: "9時", Message: "hi", ChatID: "oc_1"})
	if !strings.Contains(out.Error, "400") {
		t.Errorf("Expected a 400 error, got %+v", out)
	}
	if queue.Len() != 0 {
		t.Errorf("Expected empty queue, got %d", queue.Len())
	}
}

func TestHandler_Deliveries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/deliveries" || r.URL.Query().Get("limit") != "5" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"deliveries": []*repo.Delivery{{
				ChatID:    "oc_1",
				Path:      "scheduled",
				OK:        false,
				Error:     "boom",
				CreatedAt: time.Date(2024, 5, 11, 9, 30, 0, 0, time.UTC),
			}},
		})
	}))
	defer ts.Close()

	h := NewHandler(NewClient(ts.URL))
	out := h.Deliveries(context.Background(), DeliveriesInput{Limit: 5})

	want := []DeliveryView{{At: "2024-05-11 09:30", ChatID: "oc_1", Path: "scheduled", Error: "boom"}}
	if diff := cmp.Diff(want, out.Deliveries); diff != "" {
		t.Errorf("Deliveries mismatch (-want +got):\n%s", diff)
	}
}

func TestNewServer_ListsTools(t *testing.T) {
	ts, _ := newAPIBackend(t)
	server := NewServer(NewHandler(NewClient(ts.URL)), "test")

	ctx := context.Background()
	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("Server connect failed: %v", err)
	}
	defer serverSession.Close()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Client connect failed: %v", err)
	}
	defer session.Close()

	result, err := session.ListTools(ctx, &mcpsdk.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	want := []string{
		ToolCancelSchedule,
		ToolClassify,
		ToolListSchedules,
		ToolRecentDeliveries,
		ToolScheduleMessage,
		ToolSearch,
		ToolSummarizeURL,
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("Tools mismatch (-want +got):\n%s", diff)
	}
}
