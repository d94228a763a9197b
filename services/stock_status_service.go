package services

import (
	"context"
	"time"

	"github.com/yashrajoria/inventory-reservation-service/cache"
	"github.com/yashrajoria/inventory-reservation-service/models"
	awspkg "github.com/yashrajoria/inventory-reservation-service/pkg/aws"
	"github.com/yashrajoria/inventory-reservation-service/repository"
	"go.uber.org/zap"
)

// StockStatusService is the read path for derived stock status. It serves
// from the cache and falls back to the ledger on a miss.
type StockStatusService struct {
	repo             repository.InventoryRepository
	cache            cache.StockCache
	metrics          awspkg.MetricsRecorder
	defaultThreshold int
	logger           *zap.Logger
	now              func() time.Time
}

func NewStockStatusService(repo repository.InventoryRepository, c cache.StockCache, metrics awspkg.MetricsRecorder, defaultThreshold int, logger *zap.Logger) *StockStatusService {
	return &StockStatusService{
		repo:             repo,
		cache:            c,
		metrics:          metrics,
		defaultThreshold: defaultThreshold,
		logger:           logger,
		now:              time.Now,
	}
}

// Get returns the status for productID, populating the cache on a miss.
func (s *StockStatusService) Get(ctx context.Context, productID string) (*models.StockStatus, error) {
	status, gen, hit := s.cache.Lookup(ctx, productID)
	if hit {
		recordValue(s.metrics, awspkg.MetricCacheHits, 1, serviceDims())
		return status, nil
	}
	recordValue(s.metrics, awspkg.MetricCacheMisses, 1, serviceDims())

	status, err := s.Compute(ctx, productID)
	if err != nil {
		return nil, err
	}
	if gen >= 0 {
		s.cache.Store(ctx, gen, status)
	}
	return status, nil
}

// Compute derives the status straight from the ledger.
func (s *StockStatusService) Compute(ctx context.Context, productID string) (*models.StockStatus, error) {
	rec, reserved, err := s.repo.StockLevel(ctx, productID)
	if err != nil {
		return nil, err
	}
	return models.NewStockStatus(rec, reserved, s.defaultThreshold, s.now().UTC()), nil
}

// Invalidate drops the cached status after a committed mutation.
func (s *StockStatusService) Invalidate(ctx context.Context, productID string) {
	s.cache.Invalidate(context.WithoutCancel(ctx), productID)
}
