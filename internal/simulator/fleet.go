package simulator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

// Reporter Client 的上报能力
type Reporter interface {
	PostTelemetry(report *models.TelemetryReport) (*models.IngestResult, error)
	PostStatus(hb *models.StatusHeartbeat) error
}

type FleetConfig struct {
	Robots   int
	Products []string
	// 坐标上限（含）
	ZoneMax, RowMax, ShelfMax int
	ScansPerReport            int
	Interval                  time.Duration
	Seed                      uint64
}

type robotState struct {
	code     string
	battery  int
	location models.Coordinate
	lastSent *time.Time
}

// Fleet 每个周期每台机器人发一份报告和一次心跳
type Fleet struct {
	cfg      FleetConfig
	reporter Reporter
	rng      *rand.Rand
	robots   []*robotState
	logger   *zap.Logger
	now      func() time.Time
}

func NewFleet(cfg FleetConfig, reporter Reporter, logger *zap.Logger) *Fleet {
	if cfg.Robots <= 0 {
		cfg.Robots = 1
	}
	if cfg.ScansPerReport <= 0 {
		cfg.ScansPerReport = 3
	}
	if len(cfg.Products) == 0 {
		cfg.Products = []string{"TEL-0001", "TEL-0002", "TEL-0003"}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5bd1e995))
	robots := make([]*robotState, cfg.Robots)
	for i := range robots {
		robots[i] = &robotState{
			code:    fmt.Sprintf("RB-%04d", i+1),
			battery: 60 + rng.IntN(41),
		}
	}
	return &Fleet{
		cfg:      cfg,
		reporter: reporter,
		rng:      rng,
		robots:   robots,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run 阻塞直到 ctx 取消
func (f *Fleet) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	f.Step()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.Step()
		}
	}
}

// Step 返回本轮成功上报的报告数
func (f *Fleet) Step() int {
	sent := 0
	for _, r := range f.robots {
		f.move(r)
		report := f.report(r)
		res, err := f.reporter.PostTelemetry(report)
		if err != nil {
			f.logger.Warn("Telemetry post failed", zap.String("robot_code", r.code), zap.Error(err))
		} else {
			sent++
			ts := report.Timestamp
			r.lastSent = &ts
			f.logger.Debug("Telemetry accepted",
				zap.String("robot_code", r.code),
				zap.Int("records", len(res.CorrelationIDs)),
			)
		}

		hb := &models.StatusHeartbeat{
			RobotID:        r.code,
			Timestamp:      f.now(),
			Status:         models.RobotStatusWorking,
			BatteryLevel:   float64(r.battery),
			LastDataSentAt: r.lastSent,
		}
		if err := f.reporter.PostStatus(hb); err != nil {
			f.logger.Warn("Status post failed", zap.String("robot_code", r.code), zap.Error(err))
		}
	}
	return sent
}

func (f *Fleet) move(r *robotState) {
	r.location = models.Coordinate{
		Zone:  f.rng.IntN(f.cfg.ZoneMax + 1),
		Row:   f.rng.IntN(f.cfg.RowMax + 1),
		Shelf: f.rng.IntN(f.cfg.ShelfMax + 1),
	}
	r.battery -= f.rng.IntN(3)
	if r.battery < 15 {
		r.battery = 100
	}
}

func (f *Fleet) report(r *robotState) *models.TelemetryReport {
	scans := make([]models.ScanResult, f.cfg.ScansPerReport)
	for i := range scans {
		code := f.cfg.Products[f.rng.IntN(len(f.cfg.Products))]
		qty := f.rng.IntN(60)
		scans[i] = models.ScanResult{
			ProductCode: code,
			ProductName: "Product " + code,
			Quantity:    qty,
			StatusCode:  statusFor(qty),
		}
	}
	return &models.TelemetryReport{
		RobotCode:      r.code,
		Timestamp:      f.now(),
		Location:       r.location,
		BatteryLevel:   r.battery,
		NextCheckpoint: fmt.Sprintf("Z%d-R%d", r.location.Zone, (r.location.Row+1)%(f.cfg.RowMax+1)),
		ScanResults:    scans,
	}
}

// statusFor 0 为缺货，低于 10 为低库存
func statusFor(qty int) models.ScanStatus {
	switch {
	case qty == 0:
		return models.ScanStatusCritical
	case qty < 10:
		return models.ScanStatusLowStock
	default:
		return models.ScanStatusOK
	}
}
