package services

import (
	"context"
	"sync"
	"time"

	"github.com/yashrajoria/inventory-reservation-service/events"
	awspkg "github.com/yashrajoria/inventory-reservation-service/pkg/aws"
	"github.com/yashrajoria/inventory-reservation-service/repository"
	"go.uber.org/zap"
)

const (
	DefaultSweepInterval  = 60 * time.Second
	DefaultSweepBatchSize = 500
)

// ExpirySweeper periodically moves overdue ACTIVE reservations to EXPIRED.
// Several instances may sweep at once; the store skips rows another sweeper
// has locked.
type ExpirySweeper struct {
	repo      repository.InventoryRepository
	status    *StockStatusService
	bus       *events.Bus
	metrics   awspkg.MetricsRecorder
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewExpirySweeper(repo repository.InventoryRepository, status *StockStatusService, bus *events.Bus, metrics awspkg.MetricsRecorder, interval time.Duration, batchSize int, logger *zap.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &ExpirySweeper{
		repo:      repo,
		status:    status,
		bus:       bus,
		metrics:   metrics,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (s *ExpirySweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Start launches the sweep loop. Calling Start on a running sweeper is a
// no-op.
func (s *ExpirySweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.logger.Info("Expiry sweeper started",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batchSize),
	)
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Expiry sweeper stopped")
}

func (s *ExpirySweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Expiry sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce expires every overdue reservation, batch by batch, and returns how
// many it released. Side effects for a batch are applied as soon as that
// batch commits.
func (s *ExpirySweeper) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	now := s.now().UTC()
	total := 0

	for {
		expired, err := s.repo.ExpireDue(ctx, now, s.batchSize)
		if err != nil {
			return total, err
		}
		total += len(expired)

		byProduct := make(map[string][]string)
		released := make(map[string]int)
		var order []string
		for _, e := range expired {
			if _, seen := byProduct[e.ProductID]; !seen {
				order = append(order, e.ProductID)
			}
			byProduct[e.ProductID] = append(byProduct[e.ProductID], e.ID.String())
			released[e.ProductID] += e.Quantity
		}
		for _, productID := range order {
			s.status.Invalidate(ctx, productID)
			s.bus.Publish(ctx, events.NewExpiryEvent(productID, byProduct[productID], released[productID]))
			recordValue(s.metrics, awspkg.MetricInventoryExpired, released[productID], serviceDims())
		}

		if len(expired) < s.batchSize {
			break
		}
	}

	recordLatency(s.metrics, awspkg.MetricSweepLatency, time.Since(start), serviceDims())
	if total > 0 {
		s.logger.Info("Expired reservations released", zap.Int("count", total), zap.Duration("took", time.Since(start)))
	}
	return total, nil
}
