// Package heartbeat 定时把每台机器人的当前状态重新发到原始通道
package heartbeat

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/metrics"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

// RobotLister 未删除且已分配仓库的机器人
type RobotLister interface {
	ListAssigned(ctx context.Context) ([]*models.Robot, error)
}

// RecentReader 最近盘点（按时间正序）
type RecentReader interface {
	Chronological(ctx context.Context, robotCode string) ([]models.ScanSummary, error)
}

// EventPublisher 原始事件通道
type EventPublisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

type Publisher struct {
	robots    RobotLister
	recent    RecentReader
	publisher EventPublisher
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewPublisher(robots RobotLister, recent RecentReader, publisher EventPublisher, interval time.Duration, logger *zap.Logger) *Publisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Publisher{
		robots:    robots,
		recent:    recent,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start 阻塞直到 ctx 取消
func (p *Publisher) Start(ctx context.Context) error {
	p.logger.Info("Heartbeat publisher started", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Heartbeat publisher stopped")
			return nil
		case <-ticker.C:
			p.PublishAll(ctx)
		}
	}
}

// PublishAll 返回成功发布的机器人数；单台失败只记录并跳过
func (p *Publisher) PublishAll(ctx context.Context) int {
	metrics.IncSweep("heartbeat")

	robots, err := p.robots.ListAssigned(ctx)
	if err != nil {
		p.logger.Error("Failed to list robots for heartbeat", zap.Error(err))
		return 0
	}

	published := 0
	for _, robot := range robots {
		if err := p.publishOne(ctx, robot); err != nil {
			metrics.IncSwallowed("heartbeat")
			p.logger.Warn("Skipping robot heartbeat",
				zap.String("robot_code", robot.Code),
				zap.Error(err),
			)
			continue
		}
		published++
	}
	return published
}

var errNoWarehouse = errors.New("robot has no assigned warehouse")

func (p *Publisher) publishOne(ctx context.Context, robot *models.Robot) error {
	if robot.Deleted || !robot.HasWarehouse() {
		return errNoWarehouse
	}

	scans, err := p.recent.Chronological(ctx, robot.Code)
	if err != nil {
		return err
	}

	ts := p.now()
	if robot.LastUpdate != nil {
		ts = robot.LastUpdate.UTC()
	}
	return p.publisher.Publish(ctx, models.RobotUpdate{
		RobotCode:    robot.Code,
		Warehouse:    robot.WarehouseCode,
		BatteryLevel: robot.BatteryLevel,
		Location:     robot.Location,
		Timestamp:    ts,
		RecentScans:  scans,
	})
}
