package data

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
	"github.com/hobojuki/feishu-hobojuki/internal/conf"
	"github.com/hobojuki/feishu-hobojuki/internal/infra/feishu"
)

// Repositories contains all repositories
type Repositories struct {
	Chat       *FeishuRepo // nil when no Feishu client is given
	Generation repo.GenerationRepo
	Page       *PageRepo
	Search     repo.SearchRepo
	Ledger     repo.LedgerRepo // nil when no ledger path is configured
}

// NewRepositories creates all repositories
func NewRepositories(ctx context.Context, cfg *conf.Config, feishuClient *feishu.Client, logger *zap.Logger) (*Repositories, error) {
	gen, err := NewGenerationRepo(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	repos := &Repositories{
		Generation: gen,
		Page:       NewPageRepo(cfg.Page, logger),
		Search:     NewSearchRepo(cfg.Search.BraveAPIKey, logger),
	}

	if feishuClient != nil {
		repos.Chat = NewFeishuRepo(feishuClient, logger)
	}

	if cfg.LedgerDBPath != "" {
		ledger, err := NewLedgerRepo(cfg.LedgerDBPath)
		if err != nil {
			return nil, err
		}
		repos.Ledger = ledger
	}

	return repos, nil
}

// Close releases the browser and the ledger database
func (r *Repositories) Close() error {
	var errs []error
	if r.Page != nil {
		errs = append(errs, r.Page.Close())
	}
	if r.Ledger != nil {
		errs = append(errs, r.Ledger.Close())
	}
	return errors.Join(errs...)
}
