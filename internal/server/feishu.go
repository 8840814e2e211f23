package server

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/data"
	"github.com/hobojuki/feishu-hobojuki/internal/infra/feishu"
	"github.com/hobojuki/feishu-hobojuki/internal/service"
)

// handlerTimeout bounds a single inbound message end to end
const handlerTimeout = 5 * time.Minute

// FeishuServer connects the Feishu event stream to the router
type FeishuServer struct {
	feishuClient *feishu.Client
	chatRepo     *data.FeishuRepo
	router       *service.Router
	scheduler    *service.DeliveryScheduler
	logger       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewFeishuServer creates a new Feishu server. scheduler may be nil.
func NewFeishuServer(
	feishuClient *feishu.Client,
	chatRepo *data.FeishuRepo,
	router *service.Router,
	scheduler *service.DeliveryScheduler,
	logger *zap.Logger,
) *FeishuServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeishuServer{
		feishuClient: feishuClient,
		chatRepo:     chatRepo,
		router:       router,
		scheduler:    scheduler,
		logger:       logger.Named("server"),
	}
}

// Start starts the scheduler and blocks on the Feishu connection
func (s *FeishuServer) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.scheduler != nil {
		s.scheduler.WaitFor(s.feishuClient.Ready()).Start(s.ctx)
	}

	s.feishuClient.OnMessage(s.handleMessage)
	return s.feishuClient.Start(s.ctx)
}

// Stop stops the scheduler and disconnects
func (s *FeishuServer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.feishuClient.Stop()
}

// handleMessage runs on its own goroutine per event
func (s *FeishuServer) handleMessage(msg *feishu.Message) {
	parent := s.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, handlerTimeout)
	defer cancel()

	chatMsg := s.chatRepo.FromEvent(ctx, msg)
	route, err := s.router.HandleMessage(ctx, &chatMsg)
	switch {
	case errors.Is(err, domain.ErrTransportNotReady):
		s.logger.Warn("message dropped before ready", zap.String("msg_id", msg.MsgID))
	case err != nil:
		s.logger.Error("handle message",
			zap.String("msg_id", msg.MsgID),
			zap.String("route", string(route)),
			zap.Error(err))
	default:
		s.logger.Debug("message handled",
			zap.String("msg_id", msg.MsgID),
			zap.String("route", string(route)))
	}
}
