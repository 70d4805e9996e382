// Package snapshot 定时把每个仓库的看板聚合数据推到 {prefix}/{warehouse}/dashboard
package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/eventbus"
	"github.com/xfn3t/smart-warehouse-sub000/internal/metrics"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
	"github.com/xfn3t/smart-warehouse-sub000/internal/topics"
)

// WarehouseLister 仓库列表
type WarehouseLister interface {
	List(ctx context.Context) ([]*models.Warehouse, error)
}

// StatsReader 聚合读取（尽力而为，不返回错误）
type StatsReader interface {
	GetStats(ctx context.Context, warehouseCode string) models.WarehouseStats
}

type Publisher struct {
	warehouses WarehouseLister
	stats      StatsReader
	transport  eventbus.TopicPublisher
	tree       topics.Tree
	interval   time.Duration
	logger     *zap.Logger
}

func NewPublisher(warehouses WarehouseLister, stats StatsReader, tp eventbus.TopicPublisher, tree topics.Tree, interval time.Duration, logger *zap.Logger) *Publisher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Publisher{
		warehouses: warehouses,
		stats:      stats,
		transport:  tp,
		tree:       tree,
		interval:   interval,
		logger:     logger,
	}
}

// Start 阻塞直到 ctx 取消
func (p *Publisher) Start(ctx context.Context) error {
	p.logger.Info("Dashboard snapshot publisher started", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Dashboard snapshot publisher stopped")
			return nil
		case <-ticker.C:
			p.PublishAll(ctx)
		}
	}
}

// PublishAll 返回成功推送的仓库数
func (p *Publisher) PublishAll(ctx context.Context) int {
	metrics.IncSweep("snapshot")

	warehouses, err := p.warehouses.List(ctx)
	if err != nil {
		p.logger.Error("Failed to list warehouses for snapshot", zap.Error(err))
		return 0
	}

	published := 0
	for _, wh := range warehouses {
		topic, err := p.tree.Name(topics.WarehouseDashboard, wh.Code)
		if err != nil {
			metrics.IncSwallowed("snapshot")
			p.logger.Warn("Skipping warehouse snapshot", zap.String("warehouse_code", wh.Code), zap.Error(err))
			continue
		}
		payload, err := json.Marshal(p.stats.GetStats(ctx, wh.Code))
		if err != nil {
			metrics.IncSwallowed("snapshot")
			p.logger.Warn("Failed to encode snapshot", zap.String("warehouse_code", wh.Code), zap.Error(err))
			continue
		}
		if err := p.transport.PublishTopic(ctx, topic, payload); err != nil {
			metrics.IncSwallowed("snapshot")
			p.logger.Warn("Failed to publish snapshot",
				zap.String("warehouse_code", wh.Code),
				zap.String("topic", topic),
				zap.Error(err),
			)
			continue
		}
		published++
	}
	return published
}
