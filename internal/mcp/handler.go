package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/usecase"
)

const timeLayout = "2006-01-02 15:04"

// Handler implements the MCP tools on top of the admin API client.
// Tool failures are reported in the output's Error field, not as protocol errors.
type Handler struct {
	client *Client
}

// NewHandler creates a new MCP handler
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// ============ Summarize / Search ============

// SummarizeInput is the input for hobo_summarize_url
type SummarizeInput struct {
	URL      string `json:"url" jsonschema:"The http(s) URL of the page to summarize"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"Target maximum summary length in characters (default 2000)"`
}

// SummarizeOutput is the output for hobo_summarize_url
type SummarizeOutput struct {
	Summary string   `json:"summary"`
	Notes   []string `json:"notes,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Summarize summarizes a web page
func (h *Handler) Summarize(ctx context.Context, in SummarizeInput) SummarizeOutput {
	if !usecase.URLPattern.MatchString(in.URL) {
		return SummarizeOutput{Error: "url must start with http:// or https://"}
	}
	result, err := h.client.Summarize(ctx, in.URL, in.MaxChars)
	if err != nil {
		return SummarizeOutput{Error: err.Error()}
	}
	return SummarizeOutput{Summary: result.Text, Notes: result.Notes}
}

// SearchInput is the input for hobo_search
type SearchInput struct {
	Query      string `json:"query" jsonschema:"The web search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Maximum number of results"`
}

// SearchOutput is the output for hobo_search
type SearchOutput struct {
	Results   []domain.SearchResult `json:"results"`
	Formatted string                `json:"formatted"`
	Error     string                `json:"error,omitempty"`
}

// Search runs a web search
func (h *Handler) Search(ctx context.Context, in SearchInput) SearchOutput {
	if strings.TrimSpace(in.Query) == "" {
		return SearchOutput{Error: "query is required"}
	}
	results, err := h.client.Search(ctx, in.Query, in.MaxResults)
	if err != nil {
		return SearchOutput{Error: err.Error()}
	}
	return SearchOutput{Results: results, Formatted: usecase.FormatSearchResults(results)}
}

// ClassifyInput is the input for hobo_classify
type ClassifyInput struct {
	Question string `json:"question" jsonschema:"The question to classify"`
}

// ClassifyOutput is the output for hobo_classify
type ClassifyOutput struct {
	NeedsSearch bool   `json:"needs_search"`
	HasURL      bool   `json:"has_url"`
	SearchQuery string `json:"search_query,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Classify runs the intent classifier
func (h *Handler) Classify(ctx context.Context, in ClassifyInput) ClassifyOutput {
	if strings.TrimSpace(in.Question) == "" {
		return ClassifyOutput{Error: "question is required"}
	}
	j, err := h.client.Classify(ctx, in.Question)
	if err != nil {
		return ClassifyOutput{Error: err.Error()}
	}
	return ClassifyOutput{NeedsSearch: j.NeedsSearch, HasURL: j.HasURL, SearchQuery: j.SearchQuery}
}

// ============ Schedules ============

// ListSchedulesInput is empty - no input needed
type ListSchedulesInput struct{}

// ScheduleView is a queued entry as shown to tools
type ScheduleView struct {
	ID        string `json:"id"`
	FireAt    string `json:"fire_at"`
	Message   string `json:"message"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id,omitempty"`
}

// ListSchedulesOutput contains the queued entries
type ListSchedulesOutput struct {
	Entries []ScheduleView `json:"entries"`
	Error   string         `json:"error,omitempty"`
}

// ListSchedules lists queued entries
func (h *Handler) ListSchedules(ctx context.Context, _ ListSchedulesInput) ListSchedulesOutput {
	entries, err := h.client.ListSchedules(ctx)
	if err != nil {
		return ListSchedulesOutput{Error: err.Error()}
	}
	views := make([]ScheduleView, 0, len(entries))
	for _, e := range entries {
		views = append(views, ScheduleView{
			ID:        e.ID,
			FireAt:    e.FireAt.Format(timeLayout),
			Message:   e.Payload,
			ChatID:    e.Target.ChatID,
			MessageID: e.Target.MessageID,
		})
	}
	return ListSchedulesOutput{Entries: views}
}

// ScheduleInput is the input for hobo_schedule_message
type ScheduleInput struct {
	Time      string `json:"time" jsonschema:"Local time of day as HH:MM; rolls over to tomorrow if already past"`
	Message   string `json:"message" jsonschema:"A URL to summarize or a question to search for"`
	ChatID    string `json:"chat_id" jsonschema:"The Feishu chat to post to"`
	MessageID string `json:"message_id,omitempty" jsonschema:"Optional message to reply to instead of posting to the chat"`
}

// ScheduleOutput is the output for hobo_schedule_message
type ScheduleOutput struct {
	ID     string `json:"id,omitempty"`
	FireAt string `json:"fire_at,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Schedule queues a deferred reply
func (h *Handler) Schedule(ctx context.Context, in ScheduleInput) ScheduleOutput {
	if in.ChatID == "" {
		return ScheduleOutput{Error: "chat_id is required"}
	}
	entry, err := h.client.Schedule(ctx, in.Time, in.Message, domain.ReplyTarget{ChatID: in.ChatID, MessageID: in.MessageID})
	if err != nil {
		return ScheduleOutput{Error: err.Error()}
	}
	return ScheduleOutput{ID: entry.ID, FireAt: entry.FireAt.Format(timeLayout)}
}

// CancelScheduleInput is the input for hobo_cancel_schedule
type CancelScheduleInput struct {
	ID string `json:"id" jsonschema:"The schedule entry ID"`
}

// CancelScheduleOutput is the output for hobo_cancel_schedule
type CancelScheduleOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CancelSchedule removes a queued entry
func (h *Handler) CancelSchedule(ctx context.Context, in CancelScheduleInput) CancelScheduleOutput {
	if in.ID == "" {
		return CancelScheduleOutput{Error: "id is required"}
	}
	if err := h.client.CancelSchedule(ctx, in.ID); err != nil {
		return CancelScheduleOutput{Error: err.Error()}
	}
	return CancelScheduleOutput{Success: true, Message: fmt.Sprintf("Schedule %s cancelled", in.ID)}
}

// ============ Ledger ============

// DeliveriesInput is the input for hobo_recent_deliveries
type DeliveriesInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of records (default 20)"`
}

// DeliveryView is one delivery outcome as shown to tools
type DeliveryView struct {
	At        string `json:"at"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id,omitempty"`
	Path      string `json:"path"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// DeliveriesOutput contains recent delivery outcomes
type DeliveriesOutput struct {
	Deliveries []DeliveryView `json:"deliveries"`
	Error      string         `json:"error,omitempty"`
}

// Deliveries lists recent delivery outcomes
func (h *Handler) Deliveries(ctx context.Context, in DeliveriesInput) DeliveriesOutput {
	deliveries, err := h.client.Deliveries(ctx, in.Limit)
	if err != nil {
		return DeliveriesOutput{Error: err.Error()}
	}
	views := make([]DeliveryView, 0, len(deliveries))
	for _, d := range deliveries {
		views = append(views, toDeliveryView(d))
	}
	return DeliveriesOutput{Deliveries: views}
}

func toDeliveryView(d *repo.Delivery) DeliveryView {
	return DeliveryView{
		At:        d.CreatedAt.Format(timeLayout),
		ChatID:    d.ChatID,
		MessageID: d.MessageID,
		Path:      d.Path,
		OK:        d.OK,
		Error:     d.Error,
	}
}
