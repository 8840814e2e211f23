package usecase

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
)

// DefaultClassifierPrompt asks for the three labeled lines; supports {{question}}
const DefaultClassifierPrompt = `Analyze the following question and answer with exactly three lines:
NEEDS_SEARCH: true or false (does answering require up-to-date information from the web?)
HAS_URL: true or false (does the question contain a URL?)
SEARCH_QUERY: the best web search query for the question, or none

Question: {{question}}`

var searchQueryRe = regexp.MustCompile(`(?m)SEARCH_QUERY:[ \t]*(.+)$`)

// ClassifierUsecase decides whether a question needs search or contains a URL
type ClassifierUsecase struct {
	genRepo repo.GenerationRepo
	prompt  string
	logger  *zap.Logger
}

// NewClassifierUsecase creates a new classifier usecase
func NewClassifierUsecase(genRepo repo.GenerationRepo, prompt string, logger *zap.Logger) *ClassifierUsecase {
	if prompt == "" {
		prompt = DefaultClassifierPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassifierUsecase{genRepo: genRepo, prompt: prompt, logger: logger}
}

// Classify asks the backend for a judgment. It never fails: backend errors
// and unrecognised output degrade to the zero judgment.
func (uc *ClassifierUsecase) Classify(ctx context.Context, question string) domain.IntentJudgment {
	prompt := strings.ReplaceAll(uc.prompt, "{{question}}", question)
	raw, err := uc.genRepo.Chat(ctx, []domain.Turn{domain.HumanTurn(prompt)})
	if err != nil {
		uc.logger.Warn("classify: backend failed", zap.Error(err))
		return domain.IntentJudgment{}
	}

	judgment, ok := ParseJudgment(raw)
	if !ok {
		uc.logger.Warn("classify: unparsed response", zap.String("raw", raw))
	}
	return judgment
}

// ParseJudgment extracts a judgment from free text by substring matching.
// ok is false when none of the three labels was found.
func ParseJudgment(raw string) (judgment domain.IntentJudgment, ok bool) {
	judgment.NeedsSearch = strings.Contains(raw, "NEEDS_SEARCH: true")
	judgment.HasURL = strings.Contains(raw, "HAS_URL: true")

	if m := searchQueryRe.FindStringSubmatch(raw); m != nil {
		judgment.SearchQuery = normalizeQuery(m[1])
	}

	ok = strings.Contains(raw, "NEEDS_SEARCH:") ||
		strings.Contains(raw, "HAS_URL:") ||
		strings.Contains(raw, "SEARCH_QUERY:")
	return judgment, ok
}

func normalizeQuery(q string) string {
	q = strings.TrimSpace(q)
	q = strings.Trim(q, `"'`+"`")
	switch strings.ToLower(q) {
	case "", "none", "null", "n/a", "nil":
		return ""
	}
	return q
}
