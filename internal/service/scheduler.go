package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/usecase"
)

// Deliverer runs one fired schedule entry
type Deliverer interface {
	Deliver(ctx context.Context, entry domain.ScheduledEntry) error
}

// claimRetention is how long reply claims are kept in the ledger
const claimRetention = 7 * 24 * time.Hour

// DeliveryScheduler fires due schedule entries and prunes the reply ledger
type DeliveryScheduler struct {
	queue     *usecase.ScheduleQueue
	deliverer Deliverer
	ledger    repo.LedgerRepo // optional
	ready     <-chan struct{} // optional; ticking starts once closed

	interval        time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	logger          *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDeliveryScheduler creates a scheduler polling the queue every interval
func NewDeliveryScheduler(
	queue *usecase.ScheduleQueue,
	deliverer Deliverer,
	interval time.Duration,
	logger *zap.Logger,
) *DeliveryScheduler {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliveryScheduler{
		queue:           queue,
		deliverer:       deliverer,
		interval:        interval,
		cleanupInterval: 6 * time.Hour,
		now:             time.Now,
		logger:          logger.Named("scheduler"),
	}
}

// WithLedger enables periodic cleanup of old reply claims
func (s *DeliveryScheduler) WithLedger(ledger repo.LedgerRepo) *DeliveryScheduler {
	s.ledger = ledger
	return s
}

// WaitFor delays the first tick until ready is closed
func (s *DeliveryScheduler) WaitFor(ready <-chan struct{}) *DeliveryScheduler {
	s.ready = ready
	return s
}

// Start starts the scheduler
func (s *DeliveryScheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.deliveryLoop()
	if s.ledger != nil {
		s.wg.Add(1)
		go s.cleanupLoop()
	}

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
}

// Stop stops the scheduler and waits for an in-flight delivery
func (s *DeliveryScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *DeliveryScheduler) deliveryLoop() {
	defer s.wg.Done()

	if s.ready != nil {
		select {
		case <-s.ctx.Done():
			return
		case <-s.ready:
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.fireDue()
		}
	}
}

// fireDue drains due entries and delivers them in fire-time order
func (s *DeliveryScheduler) fireDue() {
	due := s.queue.DrainDue(s.now())
	if len(due) == 0 {
		return
	}
	s.logger.Info("firing scheduled entries", zap.Int("count", len(due)))

	for _, entry := range due {
		if s.ctx.Err() != nil {
			s.logger.Warn("scheduler stopping, entries dropped", zap.Int("count", len(due)))
			return
		}
		// Deliver logs and notifies the chat itself
		_ = s.deliverer.Deliver(s.ctx, entry)
	}
}

func (s *DeliveryScheduler) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *DeliveryScheduler) cleanup() {
	count, err := s.ledger.Cleanup(s.ctx, s.now().Add(-claimRetention))
	if err != nil {
		s.logger.Warn("ledger cleanup failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.logger.Info("ledger cleaned up", zap.Int64("claims", count))
	}
}
