package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
)

// Client is the HTTP client for the hobojuki admin API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new admin API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// summaries of long pages take several backend rounds
			Timeout: 5 * time.Minute,
		},
	}
}

// ============ Schedules ============

// ListSchedules returns queued entries, soonest first
func (c *Client) ListSchedules(ctx context.Context) ([]domain.ScheduledEntry, error) {
	var result struct {
		Entries []domain.ScheduledEntry `json:"entries"`
	}
	if err := c.get(ctx, "/api/schedules", &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// Schedule queues a message for the next occurrence of timeOfDay
func (c *Client) Schedule(ctx context.Context, timeOfDay, message string, target domain.ReplyTarget) (*domain.ScheduledEntry, error) {
	body := map[string]string{
		"time":       timeOfDay,
		"message":    message,
		"chat_id":    target.ChatID,
		"message_id": target.MessageID,
	}
	var entry domain.ScheduledEntry
	if err := c.post(ctx, "/api/schedules", body, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// CancelSchedule removes a queued entry
func (c *Client) CancelSchedule(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/schedules/"+url.PathEscape(id))
}

// ============ Gatherer ============

// Summarize summarizes a web page
func (c *Client) Summarize(ctx context.Context, pageURL string, maxChars int) (*domain.SummaryResult, error) {
	body := map[string]interface{}{"url": pageURL}
	if maxChars > 0 {
		body["max_chars"] = maxChars
	}
	var result domain.SummaryResult
	if err := c.post(ctx, "/api/summarize", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Search runs a web search
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.SearchResult, error) {
	body := map[string]interface{}{"query": query}
	if maxResults > 0 {
		body["max_results"] = maxResults
	}
	var result struct {
		Results []domain.SearchResult `json:"results"`
	}
	if err := c.post(ctx, "/api/search", body, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// Classify asks the intent classifier about a question
func (c *Client) Classify(ctx context.Context, question string) (*domain.IntentJudgment, error) {
	var judgment domain.IntentJudgment
	if err := c.post(ctx, "/api/classify", map[string]string{"question": question}, &judgment); err != nil {
		return nil, err
	}
	return &judgment, nil
}

// ============ Ledger ============

// Deliveries returns the most recent delivery outcomes
func (c *Client) Deliveries(ctx context.Context, limit int) ([]*repo.Delivery, error) {
	var result struct {
		Deliveries []*repo.Delivery `json:"deliveries"`
	}
	path := "/api/deliveries"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result.Deliveries, nil
}

// ============ HTTP Helpers ============

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *Client) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP %s failed: %w", req.Method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
