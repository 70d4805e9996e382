// Package staleness 根据盘点历史计算货位新鲜度（RECENT / MEDIUM / OLD）
package staleness

import (
	"context"
	"fmt"
	"time"

	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

// HistoryReader 分级只需要的两个历史查询
type HistoryReader interface {
	RecentScanTimes(ctx context.Context, locationID, warehouseID int64, limit int) ([]time.Time, error)
	CountSince(ctx context.Context, locationID, warehouseID int64, since time.Time) (int, error)
}

// Options 分级阈值
type Options struct {
	RecentThreshold time.Duration
	MediumThreshold time.Duration
	// Window 计算平均间隔使用的最近记录数
	Window int
}

func (o *Options) withDefaults() {
	if o.RecentThreshold <= 0 {
		o.RecentThreshold = 15 * time.Minute
	}
	if o.MediumThreshold <= 0 {
		o.MediumThreshold = 120 * time.Minute
	}
	if o.Window < 2 {
		o.Window = 5
	}
}

// Classifier 同步路径（每次盘点后）和定时全量扫描共用同一个实例
type Classifier struct {
	opts Options
	now  func() time.Time
}

func NewClassifier(opts Options) *Classifier {
	opts.withDefaults()
	return &Classifier{
		opts: opts,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock 测试用
func (c *Classifier) SetClock(now func() time.Time) { c.now = now }

// ComputeFor 计算一个货位的新鲜度
// history 可以是事务内的仓储，这样能看到本次报告刚写入的记录
func (c *Classifier) ComputeFor(ctx context.Context, history HistoryReader, warehouseCode string, loc *models.Location) (models.LocationStatus, error) {
	out := models.LocationStatus{
		LocationID:    loc.ID,
		WarehouseCode: warehouseCode,
		Zone:          loc.Zone,
		Row:           loc.Row,
		Shelf:         loc.Shelf,
		Status:        models.LocationOld,
	}

	times, err := history.RecentScanTimes(ctx, loc.ID, loc.WarehouseID, c.opts.Window)
	if err != nil {
		return out, fmt.Errorf("recent scans for location %d: %w", loc.ID, err)
	}
	if len(times) == 0 {
		return out, nil
	}

	now := c.now().UTC()
	last := times[0].UTC()
	minutes := int64(now.Sub(last) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	out.LastScannedAt = &last
	out.MinutesSinceLastScan = &minutes

	count, err := history.CountSince(ctx, loc.ID, loc.WarehouseID, now.Add(-24*time.Hour))
	if err != nil {
		return out, fmt.Errorf("24h scan count for location %d: %w", loc.ID, err)
	}
	out.ScansCount24h = count

	if len(times) >= 2 {
		var total time.Duration
		for i := 0; i+1 < len(times); i++ {
			d := times[i].Sub(times[i+1])
			if d < 0 {
				d = -d
			}
			total += d
		}
		avg := total.Minutes() / float64(len(times)-1)
		out.AvgIntervalMinutes = &avg
	}

	out.Status = c.classify(time.Duration(minutes) * time.Minute)
	return out, nil
}

func (c *Classifier) classify(since time.Duration) string {
	switch {
	case since <= c.opts.RecentThreshold:
		return models.LocationRecent
	case since <= c.opts.MediumThreshold:
		return models.LocationMedium
	default:
		return models.LocationOld
	}
}
