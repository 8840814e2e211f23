package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hobojuki/feishu-hobojuki/internal/api"
	"github.com/hobojuki/feishu-hobojuki/internal/data"
	"github.com/hobojuki/feishu-hobojuki/internal/infra/feishu"
	"github.com/hobojuki/feishu-hobojuki/internal/server"
	"github.com/hobojuki/feishu-hobojuki/internal/service"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to Feishu and answer messages",
	Long: `Connects to Feishu over the event websocket, answers messages that mention
the bot, fires scheduled replies and serves the admin API on 127.0.0.1:API_PORT.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	files := newPromptFiles()
	files.watch()
	defer files.stop()

	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)

	repos, err := data.NewRepositories(ctx, cfg, feishuClient, logger)
	if err != nil {
		return fmt.Errorf("create repositories: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			logger.Warn("close repositories", zap.Error(err))
		}
	}()
	logger.Info("reply ledger", zap.String("path", cfg.LedgerDBPath))

	uc := buildUsecases(repos, files)

	router := service.NewRouter(repos.Chat, repos.Generation, repos.Ledger, uc, service.BotConfig{
		HistoryLimit:      cfg.Bot.HistoryLimit,
		GenerationTimeout: cfg.Bot.GenerationTimeout,
		ClassifierEnabled: cfg.Bot.ClassifierEnabled,
		Summary:           cfg.Summary,
		Search:            searchRequest(),
		Reply:             cfg.Prompts.Reply,
		Schedule:          cfg.Prompts.Schedule,
	}, logger)

	scheduler := service.NewDeliveryScheduler(uc.Schedule, router, cfg.Bot.PollInterval, logger).
		WithLedger(repos.Ledger)

	apiServer := api.NewServer(uc.Schedule, uc.Gatherer, uc.Classifier, repos.Ledger, api.Options{
		Summary: cfg.Summary,
		Search:  searchRequest(),
	}, cfg.APIPort, logger)

	srv := server.NewFeishuServer(feishuClient, repos.Chat, router, scheduler, logger)

	// The websocket client never returns once connected, so it runs outside the group
	feishuErr := make(chan error, 1)
	go func() { feishuErr <- srv.Start(ctx) }()

	logger.Info("hobojuki started",
		zap.String("llm", cfg.LLM.Provider),
		zap.String("page_renderer", cfg.Page.Renderer),
		zap.Int("api_port", cfg.APIPort))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(apiServer.Start)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-feishuErr:
			return fmt.Errorf("feishu: %w", err)
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Stop()
		return apiServer.Stop(sctx)
	})
	return g.Wait()
}
