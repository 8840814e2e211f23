package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
)

const (
	braveSearchURL = "https://api.search.brave.com/res/v1/web/search"
	ddgSearchURL   = "https://html.duckduckgo.com/html/"
)

// searchRepo queries Brave Search when an API key is configured and
// DuckDuckGo's HTML endpoint otherwise
type searchRepo struct {
	braveKey   string
	braveURL   string
	ddgURL     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSearchRepo creates the web search repository
func NewSearchRepo(braveKey string, logger *zap.Logger) repo.SearchRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &searchRepo{
		braveKey:   braveKey,
		braveURL:   braveSearchURL,
		ddgURL:     ddgSearchURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     logger.Named("search"),
	}
}

// Search runs the query against the configured engine
func (r *searchRepo) Search(ctx context.Context, q repo.SearchQuery) ([]domain.SearchResult, error) {
	var (
		results []domain.SearchResult
		err     error
		engine  = "duckduckgo"
	)
	if r.braveKey != "" {
		engine = "brave"
		results, err = r.brave(ctx, q)
	} else {
		results, err = r.duckduckgo(ctx, q)
	}
	if err != nil {
		return nil, &domain.FetchError{Source: engine, Target: q.Query, Err: err}
	}
	if q.MaxResults > 0 && len(results) > q.MaxResults {
		results = results[:q.MaxResults]
	}
	r.logger.Debug("search done", zap.String("engine", engine), zap.String("query", q.Query), zap.Int("results", len(results)))
	return results, nil
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// braveFreshness maps d/w/m/y to Brave's pd/pw/pm/py
func braveFreshness(recency string) string {
	switch recency {
	case "d", "w", "m", "y":
		return "p" + recency
	}
	return ""
}

func (r *searchRepo) brave(ctx context.Context, q repo.SearchQuery) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Set("q", q.Query)
	if q.MaxResults > 0 {
		params.Set("count", strconv.Itoa(q.MaxResults))
	}
	if country, _, ok := strings.Cut(q.Region, "-"); ok && country != "wt" {
		params.Set("country", strings.ToUpper(country))
	}
	if f := braveFreshness(q.Recency); f != "" {
		params.Set("freshness", f)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.braveURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", r.braveKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("brave status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var body braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode brave response: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(body.Web.Results))
	for _, item := range body.Web.Results {
		results = append(results, domain.SearchResult{
			Title:   item.Title,
			URL:     item.URL,
			Snippet: stripTags(item.Description),
		})
	}
	return results, nil
}

func (r *searchRepo) duckduckgo(ctx context.Context, q repo.SearchQuery) ([]domain.SearchResult, error) {
	form := url.Values{}
	form.Set("q", q.Query)
	if q.Region != "" {
		form.Set("kl", q.Region)
	}
	if q.Recency != "" {
		form.Set("df", q.Recency)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.ddgURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; hobojuki/1.0)")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo status %d", resp.StatusCode)
	}
	return parseDuckDuckGo(io.LimitReader(resp.Body, maxPageBytes))
}

// parseDuckDuckGo reads result__a links and their result__snippet blocks
func parseDuckDuckGo(r io.Reader) ([]domain.SearchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo html: %w", err)
	}

	var results []domain.SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.A && hasClass(n, "result__a"):
				results = append(results, domain.SearchResult{
					Title: textContent(n),
					URL:   unwrapDDGLink(attr(n, "href")),
				})
				return
			case hasClass(n, "result__snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = textContent(n)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

// unwrapDDGLink resolves //duckduckgo.com/l/?uddg=<target> redirects
func unwrapDDGLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, field := range strings.Fields(attr(n, "class")) {
		if field == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	rawText(n, &sb)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func rawText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rawText(c, sb)
	}
}

// stripTags removes the <strong> highlighting Brave puts in descriptions
func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	nodes, err := html.ParseFragment(strings.NewReader(s), &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body})
	if err != nil {
		return s
	}
	var sb strings.Builder
	for _, n := range nodes {
		rawText(n, &sb)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
