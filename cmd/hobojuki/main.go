package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hobojuki/feishu-hobojuki/internal/biz"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/usecase"
	"github.com/hobojuki/feishu-hobojuki/internal/conf"
	"github.com/hobojuki/feishu-hobojuki/internal/data"
)

var (
	// Global flags
	verbose bool

	cfg    *conf.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hobojuki",
	Short: "hobojuki - a Feishu chat agent with URL summaries, web search and scheduled replies",
	Long: `hobojuki answers messages that mention it in Feishu group chats.

A message containing a URL gets a summary-based reply, questions that need fresh
information are answered from a web search, and "/schedule HH:MM <message>"
defers a reply to a later time of day.

Configuration comes from the environment (and .env); prompt texts from
configs/prompts.yaml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = conf.Load()

		config := zap.NewProductionConfig()
		if verbose || cfg.Debug {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if cfg.Prompts.Source != "" {
			logger.Debug("prompts loaded", zap.String("path", cfg.Prompts.Source))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(classifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// promptFiles are the hot-reloaded system prompt and leak keyword list
type promptFiles struct {
	systemPrompt *conf.WatchedFile
	keywords     *conf.WatchedFile
}

func newPromptFiles() *promptFiles {
	return &promptFiles{
		systemPrompt: conf.NewWatchedFile(cfg.Prompt.SystemPromptPath, logger),
		keywords:     conf.NewWatchedFile(cfg.Prompt.KeywordsPath, logger),
	}
}

// watch starts hot reload; failures leave the files in read-through mode
func (p *promptFiles) watch() {
	for _, f := range []*conf.WatchedFile{p.systemPrompt, p.keywords} {
		if err := f.Start(); err != nil {
			logger.Warn("prompt file not watched", zap.String("path", f.Path()), zap.Error(err))
		}
	}
}

func (p *promptFiles) stop() {
	p.systemPrompt.Stop()
	p.keywords.Stop()
}

// currentSystemPrompt returns the prompt file text, falling back to the configured persona
func (p *promptFiles) currentSystemPrompt() string {
	if text := p.systemPrompt.Text(); text != "" {
		return text
	}
	return cfg.Prompts.Persona.SystemPrompt
}

// buildUsecases wires the usecase layer over the repositories
func buildUsecases(repos *data.Repositories, files *promptFiles) *biz.Usecases {
	var chatRepo repo.ChatRepo
	if repos.Chat != nil {
		chatRepo = repos.Chat
	}

	prompts := cfg.Prompts
	leak := usecase.NewLeakFilter(files.keywords.Lines, prompts.Reply.CensorNotice, logger.Named("leak_filter"))

	return &biz.Usecases{
		Context: usecase.NewContextBuilderUsecase(chatRepo, usecase.ContextConfig{
			SystemPrompt:         prompts.Persona.SystemPrompt,
			SystemPromptProvider: files.systemPrompt.Text,
		}),
		Gatherer: usecase.NewGathererUsecase(repos.Page, repos.Search, repos.Generation, usecase.GathererConfig{
			SummarizePrompt: prompts.Summary.ChunkPrompt,
			TruncatedNote:   prompts.Summary.TruncatedNote,
		}, logger.Named("gatherer")),
		Classifier: usecase.NewClassifierUsecase(repos.Generation, prompts.Classifier.Prompt, logger.Named("classifier")),
		Sanitizer:  usecase.NewSanitizer(leak),
		Schedule:   usecase.NewScheduleQueue(),
	}
}

// searchRequest returns the configured search defaults
func searchRequest() usecase.SearchRequest {
	return usecase.SearchRequest{
		MaxResults: cfg.Search.MaxResults,
		Region:     cfg.Search.Region,
		Recency:    cfg.Search.Recency,
	}
}

// newToolRepositories creates repositories for one-shot commands (no transport, no ledger)
func newToolRepositories(ctx context.Context) (*data.Repositories, error) {
	if err := cfg.ValidateBackend(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	toolCfg := *cfg
	toolCfg.LedgerDBPath = ""
	return data.NewRepositories(ctx, &toolCfg, nil, logger)
}
