package repo

import (
	"context"
	"iter"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
)

// GenerationRepo is the generation backend interface
type GenerationRepo interface {
	// Chat sends a chronological turn list and returns the reply text
	Chat(ctx context.Context, turns []domain.Turn) (string, error)

	// StreamChat yields reply fragments in order. The sequence is finite and single-use.
	StreamChat(ctx context.Context, turns []domain.Turn) iter.Seq2[string, error]
}

// PageRepo renders a URL and returns its reduced text
type PageRepo interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// SearchQuery is a web search request
type SearchQuery struct {
	Query      string
	MaxResults int
	Region     string // e.g. "jp-jp"
	Recency    string // "d", "w", "m", "y" or empty
}

// SearchRepo queries a web search service
type SearchRepo interface {
	Search(ctx context.Context, q SearchQuery) ([]domain.SearchResult, error)
}
