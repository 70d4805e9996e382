package staleness

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/metrics"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
	"github.com/xfn3t/smart-warehouse-sub000/internal/repository"
)

// Publisher 原始事件通道
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// Sweeper 定时对每个仓库的全部货位重新分级，逐个发布 location_update
type Sweeper struct {
	repos      repository.Repositories
	classifier *Classifier
	publisher  Publisher
	interval   time.Duration
	logger     *zap.Logger
}

func NewSweeper(repos repository.Repositories, classifier *Classifier, publisher Publisher, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		repos:      repos,
		classifier: classifier,
		publisher:  publisher,
		interval:   interval,
		logger:     logger,
	}
}

// Start 阻塞直到 ctx 取消
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("Staleness sweeper started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Staleness sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepAll(ctx)
		}
	}
}

// SweepAll 单个货位失败只记录并跳过
func (s *Sweeper) SweepAll(ctx context.Context) int {
	metrics.IncSweep("staleness")

	warehouses, err := s.repos.Warehouses.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list warehouses for sweep", zap.Error(err))
		return 0
	}

	published := 0
	for _, wh := range warehouses {
		published += s.sweepWarehouse(ctx, wh)
	}
	s.logger.Debug("Staleness sweep finished",
		zap.Int("warehouses", len(warehouses)),
		zap.Int("published", published),
	)
	return published
}

func (s *Sweeper) sweepWarehouse(ctx context.Context, wh *models.Warehouse) int {
	locations, err := s.repos.Locations.ListByWarehouse(ctx, wh.ID)
	if err != nil {
		metrics.IncSwallowed("staleness")
		s.logger.Error("Failed to list locations",
			zap.String("warehouse_code", wh.Code),
			zap.Error(err),
		)
		return 0
	}

	published := 0
	for _, loc := range locations {
		status, err := s.classifier.ComputeFor(ctx, s.repos.History, wh.Code, loc)
		if err != nil {
			metrics.IncSwallowed("staleness")
			s.logger.Warn("Failed to classify location",
				zap.String("warehouse_code", wh.Code),
				zap.Int64("location_id", loc.ID),
				zap.Error(err),
			)
			continue
		}
		if err := s.publisher.Publish(ctx, models.LocationUpdate{LocationStatus: status}); err != nil {
			metrics.IncSwallowed("staleness")
			s.logger.Warn("Failed to publish location update",
				zap.String("warehouse_code", wh.Code),
				zap.Int64("location_id", loc.ID),
				zap.Error(err),
			)
			continue
		}
		published++
	}
	return published
}
