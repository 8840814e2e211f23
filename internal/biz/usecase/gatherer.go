package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
)

var (
	// URLPattern matches literal http(s) URLs
	URLPattern       = regexp.MustCompile(`https?://\S+`)
	percentEncodedRe = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)
)

// SummarizeOptions bounds the summarization loop (all lengths in characters)
type SummarizeOptions struct {
	ReadMaxChars int
	ChunkSize    int
	MaxChars     int
}

// DefaultSummarizeOptions matches the limits the bot has always used
var DefaultSummarizeOptions = SummarizeOptions{
	ReadMaxChars: 20000,
	ChunkSize:    2000,
	MaxChars:     2000,
}

// GathererConfig contains gatherer configuration
type GathererConfig struct {
	SummarizePrompt string // supports {{content}}
	TruncatedNote   string // supports {{limit}}
	Concurrency     int    // parallel chunk summaries per round
}

// SearchRequest is a web search request from the router
type SearchRequest struct {
	Query      string
	MaxResults int
	Region     string
	Recency    string
}

// Splitter splits text into overlapping chunks of about chunkSize characters
type Splitter func(text string, chunkSize, overlap int) ([]string, error)

// GathererUsecase fetches, reduces and summarizes external content
type GathererUsecase struct {
	pageRepo   repo.PageRepo
	searchRepo repo.SearchRepo
	genRepo    repo.GenerationRepo
	split      Splitter
	cfg        GathererConfig
	logger     *zap.Logger
}

// NewGathererUsecase creates a new gatherer usecase
func NewGathererUsecase(
	pageRepo repo.PageRepo,
	searchRepo repo.SearchRepo,
	genRepo repo.GenerationRepo,
	cfg GathererConfig,
	logger *zap.Logger,
) *GathererUsecase {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GathererUsecase{
		pageRepo:   pageRepo,
		searchRepo: searchRepo,
		genRepo:    genRepo,
		split:      RecursiveSplit,
		cfg:        cfg,
		logger:     logger,
	}
}

// FetchAndReducePage returns the page text with URLs and percent-encoded
// sequences removed. It never fails: errors become a diagnostic string.
func (uc *GathererUsecase) FetchAndReducePage(ctx context.Context, url string) string {
	text, err := uc.fetch(ctx, url)
	if err != nil {
		uc.logger.Warn("fetch page failed", zap.String("url", url), zap.Error(err))
		return fmt.Sprintf("Error fetching webpage: %v", err)
	}
	return text
}

func (uc *GathererUsecase) fetch(ctx context.Context, url string) (string, error) {
	if uc.pageRepo == nil {
		return "", &domain.FetchError{Source: "page", Target: url, Err: fmt.Errorf("no page renderer configured")}
	}
	raw, err := uc.pageRepo.Fetch(ctx, url)
	if err != nil {
		return "", &domain.FetchError{Source: "page", Target: url, Err: err}
	}
	return ReducePageText(raw), nil
}

// ReducePageText strips literal URLs and percent-encoded triplets
func ReducePageText(text string) string {
	text = URLPattern.ReplaceAllString(text, "")
	text = percentEncodedRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Summarize loads a page and shrinks it below opts.MaxChars.
// A page that cannot be fetched yields its diagnostic string as the summary.
func (uc *GathererUsecase) Summarize(ctx context.Context, url string, opts SummarizeOptions) (domain.SummaryResult, error) {
	text, err := uc.fetch(ctx, url)
	if err != nil {
		uc.logger.Warn("summarize: fetch failed", zap.String("url", url), zap.Error(err))
		return domain.SummaryResult{Text: fmt.Sprintf("Error fetching webpage: %v", err)}, nil
	}
	return uc.SummarizeText(ctx, text, opts)
}

// SummarizeText runs the truncate-then-reduce loop over text.
// The loop stops once the text fits or a round fails to strictly shrink it.
func (uc *GathererUsecase) SummarizeText(ctx context.Context, text string, opts SummarizeOptions) (domain.SummaryResult, error) {
	opts = withDefaults(opts)
	var result domain.SummaryResult

	if utf8.RuneCountInString(text) > opts.ReadMaxChars {
		text = string([]rune(text)[:opts.ReadMaxChars])
		note := strings.ReplaceAll(uc.cfg.TruncatedNote, "{{limit}}", fmt.Sprint(opts.ReadMaxChars))
		result.Notes = append(result.Notes, note)
	}

	prevLen := utf8.RuneCountInString(text)
	round := 0
	for prevLen > opts.MaxChars {
		round++
		chunks, err := uc.split(text, opts.ChunkSize, opts.ChunkSize/10)
		if err != nil {
			return result, fmt.Errorf("split text: %w", err)
		}

		summaries, err := uc.summarizeChunks(ctx, chunks)
		if err != nil {
			return result, err
		}

		text = strings.Join(summaries, "\n\n")
		newLen := utf8.RuneCountInString(text)
		uc.logger.Debug("summarize round",
			zap.Int("round", round),
			zap.Int("chunks", len(chunks)),
			zap.Int("before", prevLen),
			zap.Int("after", newLen))
		if newLen >= prevLen {
			break
		}
		prevLen = newLen
	}

	result.Text = text
	return result, nil
}

// summarizeChunks summarizes each chunk independently, preserving order
func (uc *GathererUsecase) summarizeChunks(ctx context.Context, chunks []string) ([]string, error) {
	summaries := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.Concurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			prompt := strings.ReplaceAll(uc.cfg.SummarizePrompt, "{{content}}", chunk)
			out, err := uc.genRepo.Chat(gctx, []domain.Turn{domain.HumanTurn(prompt)})
			if err != nil {
				return fmt.Errorf("summarize chunk %d: %w", i, err)
			}
			summaries[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Search runs a web search. Failures become one diagnostic result.
func (uc *GathererUsecase) Search(ctx context.Context, req SearchRequest) []domain.SearchResult {
	if uc.searchRepo == nil {
		return []domain.SearchResult{{Snippet: "Error searching the web: no search service configured"}}
	}
	results, err := uc.searchRepo.Search(ctx, repo.SearchQuery{
		Query:      req.Query,
		MaxResults: req.MaxResults,
		Region:     req.Region,
		Recency:    req.Recency,
	})
	if err != nil {
		ferr := &domain.FetchError{Source: "search", Target: req.Query, Err: err}
		uc.logger.Warn("search failed", zap.Error(ferr))
		return []domain.SearchResult{{Snippet: fmt.Sprintf("Error searching the web: %v", err)}}
	}
	if req.MaxResults > 0 && len(results) > req.MaxResults {
		results = results[:req.MaxResults]
	}
	return results
}

// FormatSearchResults renders results as numbered blocks for a prompt
func FormatSearchResults(results []domain.SearchResult) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%d. ", i+1))
		if r.Title != "" {
			sb.WriteString(r.Title)
			sb.WriteString("\n")
		}
		if r.URL != "" {
			sb.WriteString(r.URL)
			sb.WriteString("\n")
		}
		sb.WriteString(r.Snippet)
		sb.WriteString("\n")
	}
	return sb.String()
}

func withDefaults(opts SummarizeOptions) SummarizeOptions {
	if opts.ReadMaxChars <= 0 {
		opts.ReadMaxChars = DefaultSummarizeOptions.ReadMaxChars
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultSummarizeOptions.ChunkSize
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultSummarizeOptions.MaxChars
	}
	return opts
}
