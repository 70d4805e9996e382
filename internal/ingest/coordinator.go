// Package ingest 处理机器人上报的盘点批次
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
	"github.com/xfn3t/smart-warehouse-sub000/internal/metrics"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
	"github.com/xfn3t/smart-warehouse-sub000/internal/repository"
	"github.com/xfn3t/smart-warehouse-sub000/internal/staleness"
)

// CounterSink 聚合计数写入口
type CounterSink interface {
	OnHistoryCreated(ctx context.Context, rec *models.InventoryHistoryRecord)
	OnRobotSnapshot(ctx context.Context, robot *models.Robot)
}

// RecentScans 每台机器人的最近盘点列表
type RecentScans interface {
	Push(ctx context.Context, robotCode string, batch []models.ScanSummary) error
}

// EventPublisher 原始事件通道
type EventPublisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// DirectDeliverer 原始通道不可用时直接发到全局和单机器人主题
type DirectDeliverer interface {
	DeliverDirect(ctx context.Context, ev models.Event) error
}

// Coordinator 一份报告在一个事务内完成：全部盘点结果一起成功，或整份拒绝
// 计数器、最近盘点列表和事件发布都在提交之后执行，被拒绝的报告不会留下任何副作用
type Coordinator struct {
	uow        repository.UnitOfWork
	classifier *staleness.Classifier
	counters   CounterSink
	recent     RecentScans
	publisher  EventPublisher
	direct     DirectDeliverer
	logger     *zap.Logger

	newID func() string
	now   func() time.Time
}

func NewCoordinator(
	uow repository.UnitOfWork,
	classifier *staleness.Classifier,
	counters CounterSink,
	recent RecentScans,
	publisher EventPublisher,
	direct DirectDeliverer,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		uow:        uow,
		classifier: classifier,
		counters:   counters,
		recent:     recent,
		publisher:  publisher,
		direct:     direct,
		logger:     logger,
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock 测试用
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// outcome 事务提交后才使用的数据
type outcome struct {
	robot     *models.Robot
	warehouse *models.Warehouse
	records   []*models.InventoryHistoryRecord
	locations []models.LocationStatus
	summaries []models.ScanSummary
}

// Ingest 返回与盘点结果一一对应的 correlation id
func (c *Coordinator) Ingest(ctx context.Context, report *models.TelemetryReport) (*models.IngestResult, error) {
	start := time.Now()
	res, err := c.ingest(ctx, report)
	metrics.ObserveIngest(resultLabel(err), time.Since(start))
	return res, err
}

func (c *Coordinator) ingest(ctx context.Context, report *models.TelemetryReport) (*models.IngestResult, error) {
	if err := report.Validate(); err != nil {
		return nil, err
	}

	var out outcome
	err := c.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		out = outcome{}
		return c.apply(ctx, repos, report, &out)
	})
	if err != nil {
		c.logger.Info("Telemetry report rejected",
			zap.String("robot_code", report.RobotCode),
			zap.String("kind", apperr.KindOf(err).String()),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.AddHistoryRecords(len(out.records))
	c.afterCommit(ctx, report, &out)

	ids := make([]string, 0, len(out.records))
	for _, rec := range out.records {
		ids = append(ids, rec.CorrelationID)
	}
	return &models.IngestResult{Status: "received", CorrelationIDs: ids}, nil
}

func (c *Coordinator) apply(ctx context.Context, repos repository.Repositories, report *models.TelemetryReport, out *outcome) error {
	// 1. 机器人
	robot, err := repos.Robots.GetByCode(ctx, report.RobotCode)
	if err != nil {
		return err
	}

	// 2. 所属仓库
	if robot.WarehouseID == nil {
		return apperr.InvalidArgument("robot %s has no assigned warehouse", robot.Code)
	}
	wh, err := repos.Warehouses.GetByID(ctx, *robot.WarehouseID)
	if err != nil {
		return err
	}

	// 3. 坐标上限（闭区间）
	if !wh.Contains(report.Location) {
		return apperr.InvalidArgument("location (%d,%d,%d) outside warehouse %s bounds (%d,%d,%d)",
			report.Location.Zone, report.Location.Row, report.Location.Shelf,
			wh.Code, wh.ZoneMax, wh.RowMax, wh.ShelfMax)
	}

	// 4. 机器人状态
	now := c.now()
	robot.WarehouseCode = wh.Code
	robot.BatteryLevel = report.BatteryLevel
	robot.Location = report.Location
	robot.Status = models.RobotStatusWorking
	robot.LastUpdate = &now
	if err := repos.Robots.UpdateState(ctx, robot); err != nil {
		return err
	}

	loc, err := repos.Locations.GetOrCreate(ctx, wh.ID, report.Location)
	if err != nil {
		return err
	}

	// 5. 按报告顺序逐条写历史
	for i := range report.ScanResults {
		scan := &report.ScanResults[i]

		product, err := resolveProduct(ctx, repos.Products, scan.ProductCode, wh.ID)
		if err != nil {
			return err
		}

		expected := 0
		prev, err := repos.History.LatestFor(ctx, product.ID, loc.ID, wh.ID)
		switch {
		case err == nil:
			expected = prev.ActualQuantity
		case errors.Is(err, apperr.ErrNotFound):
		default:
			return err
		}

		rec := &models.InventoryHistoryRecord{
			CorrelationID:    c.newID(),
			WarehouseID:      wh.ID,
			WarehouseCode:    wh.Code,
			RobotID:          robot.ID,
			RobotCode:        robot.Code,
			ProductID:        product.ID,
			ProductCode:      product.Code,
			LocationID:       loc.ID,
			ExpectedQuantity: expected,
			ActualQuantity:   scan.Quantity,
			Difference:       scan.Quantity - expected,
			Status:           scan.StatusCode,
			ScannedAt:        report.Timestamp.UTC(),
		}
		if err := repos.History.Create(ctx, rec); err != nil {
			return err
		}

		status, err := c.classifier.ComputeFor(ctx, repos.History, wh.Code, loc)
		if err != nil {
			return fmt.Errorf("classify location %d: %w", loc.ID, err)
		}

		name := scan.ProductName
		if name == "" {
			name = product.Name
		}
		out.records = append(out.records, rec)
		out.locations = append(out.locations, status)
		out.summaries = append(out.summaries, models.ScanSummary{
			ProductCode: product.Code,
			ProductName: name,
			Quantity:    scan.Quantity,
			Status:      scan.StatusCode,
			Difference:  rec.Difference,
			ScannedAt:   rec.ScannedAt,
		})
	}

	out.robot = robot
	out.warehouse = wh
	return nil
}

// resolveProduct 先按仓库查，查不到再不限仓库
func resolveProduct(ctx context.Context, products repository.ProductsRepository, code string, warehouseID int64) (*models.Product, error) {
	p, err := products.GetByCodeInWarehouse(ctx, code, warehouseID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	return products.GetByCode(ctx, code)
}

// afterCommit 只记日志，不影响返回值
func (c *Coordinator) afterCommit(ctx context.Context, report *models.TelemetryReport, out *outcome) {
	c.counters.OnRobotSnapshot(ctx, out.robot)
	for _, rec := range out.records {
		c.counters.OnHistoryCreated(ctx, rec)
	}

	for _, status := range out.locations {
		ev := models.LocationUpdate{LocationStatus: status, RobotCode: out.robot.Code}
		if err := c.publisher.Publish(ctx, ev); err != nil {
			metrics.IncSwallowed("ingest")
			c.logger.Warn("Failed to publish location update",
				zap.String("robot_code", out.robot.Code),
				zap.Int64("location_id", status.LocationID),
				zap.Error(err),
			)
		}
	}

	// 6. 最近盘点列表
	if err := c.recent.Push(ctx, out.robot.Code, out.summaries); err != nil {
		metrics.IncSwallowed("ingest")
		c.logger.Warn("Failed to push recent scans",
			zap.String("robot_code", out.robot.Code),
			zap.Error(err),
		)
	}

	// 7. robot_update
	ev := models.RobotUpdate{
		RobotCode:      out.robot.Code,
		Warehouse:      out.warehouse.Code,
		BatteryLevel:   report.BatteryLevel,
		Location:       report.Location,
		NextCheckpoint: report.NextCheckpoint,
		Timestamp:      report.Timestamp.UTC(),
		RecentScans:    out.summaries,
	}
	c.publishOrDeliver(ctx, ev)
}

// IngestStatus 状态心跳原样转发，不落库
func (c *Coordinator) IngestStatus(ctx context.Context, hb *models.StatusHeartbeat) error {
	if err := hb.Validate(); err != nil {
		return err
	}
	c.publishOrDeliver(ctx, models.RobotStatus{StatusHeartbeat: *hb})
	return nil
}

func (c *Coordinator) publishOrDeliver(ctx context.Context, ev models.Event) {
	err := c.publisher.Publish(ctx, ev)
	if err == nil {
		return
	}
	metrics.IncSwallowed("ingest")
	c.logger.Warn("Raw channel publish failed, delivering directly",
		zap.String("event_type", string(ev.Type())),
		zap.String("robot_code", ev.RobotID()),
		zap.Error(err),
	)
	if c.direct == nil {
		return
	}
	if err := c.direct.DeliverDirect(ctx, ev); err != nil {
		c.logger.Error("Direct delivery failed",
			zap.String("event_type", string(ev.Type())),
			zap.String("robot_code", ev.RobotID()),
			zap.Error(err),
		)
	}
}

func resultLabel(err error) string {
	if err == nil {
		return metrics.ResultSuccess
	}
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return metrics.ResultNotFound
	case apperr.KindInvalidArgument:
		return metrics.ResultInvalidArgument
	default:
		return metrics.ResultError
	}
}
