// Package counters 看板聚合计数（Redis 侧缓存）
// 所有状态都可以由盘点历史和机器人状态重放得到，写入和读取都是尽力而为：
// Redis 出错只记日志，按 0 / 空 / null 处理，不向调用方抛错。
package counters

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/metrics"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

const component = "counters"

// batteryScript 维护 (hash, sum, count)，KEYS = last hash, sum, count；ARGV = robot, battery
// 首次出现：写入 hash，count+1，sum+battery；已存在且不同：覆盖并按差值调整 sum
var batteryScript = redis.NewScript(`
local old = redis.call('HGET', KEYS[1], ARGV[1])
if not old then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
  redis.call('INCR', KEYS[3])
  redis.call('INCRBY', KEYS[2], ARGV[2])
  return 1
end
local delta = tonumber(ARGV[2]) - tonumber(old)
if delta ~= 0 then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
  redis.call('INCRBY', KEYS[2], tostring(delta))
end
return 0
`)

// Options 计数器参数
type Options struct {
	ActivityTTL     time.Duration
	CheckedTodayTTL time.Duration
	// Timezone 当日盘点数按此时区切日
	Timezone *time.Location
	// SeriesMinutes 活跃度序列长度（含当前分钟）
	SeriesMinutes int
}

func (o *Options) withDefaults() {
	if o.ActivityTTL <= 0 {
		o.ActivityTTL = time.Hour
	}
	if o.CheckedTodayTTL <= 0 {
		o.CheckedTodayTTL = 72 * time.Hour
	}
	if o.Timezone == nil {
		o.Timezone = time.UTC
	}
	if o.SeriesMinutes <= 0 {
		o.SeriesMinutes = 60
	}
}

// Store 聚合计数
type Store struct {
	client *redis.Client
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(client *redis.Client, opts Options, logger *zap.Logger) *Store {
	opts.withDefaults()
	return &Store{
		client: client,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock 测试用
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) warn(msg string, err error, fields ...zap.Field) {
	metrics.IncSwallowed(component)
	s.logger.Warn(msg, append(fields, zap.Error(err))...)
}

// OnHistoryCreated 每条盘点历史提交后调用
func (s *Store) OnHistoryCreated(ctx context.Context, rec *models.InventoryHistoryRecord) {
	if rec == nil || rec.WarehouseCode == "" {
		return
	}
	s.applyHistory(ctx, rec, true, true)
}

func (s *Store) applyHistory(ctx context.Context, rec *models.InventoryHistoryRecord, checked, activity bool) {
	wh := rec.WarehouseCode
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if checked {
			key := checkedKey(wh, rec.ScannedAt, s.opts.Timezone)
			pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, s.opts.CheckedTodayTTL)
		}
		if activity {
			key := activityKey(wh, rec.ScannedAt)
			pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, s.opts.ActivityTTL)
		}
		if rec.ProductCode != "" {
			if rec.Status == models.ScanStatusCritical {
				pipe.SAdd(ctx, criticalSkusKey(wh), rec.ProductCode)
			} else {
				pipe.SRem(ctx, criticalSkusKey(wh), rec.ProductCode)
			}
		}
		return nil
	})
	if err != nil {
		s.warn("Failed to update history counters", err,
			zap.String("warehouse_code", wh),
			zap.String("correlation_id", rec.CorrelationID),
		)
	}
}

// OnRobotSnapshot 机器人状态落库后调用
func (s *Store) OnRobotSnapshot(ctx context.Context, robot *models.Robot) {
	if robot == nil || robot.WarehouseCode == "" {
		return
	}
	wh := robot.WarehouseCode

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, allRobotsKey(wh), robot.Code)
		if robot.Active() {
			pipe.SAdd(ctx, activeRobotsKey(wh), robot.Code)
		} else {
			pipe.SRem(ctx, activeRobotsKey(wh), robot.Code)
		}
		return nil
	})
	if err != nil {
		s.warn("Failed to update robot sets", err,
			zap.String("warehouse_code", wh),
			zap.String("robot_code", robot.Code),
		)
	}

	keys := []string{batteryLastKey(wh), batterySumKey(wh), batteryCountKey(wh)}
	if err := batteryScript.Run(ctx, s.client, keys, robot.Code, robot.BatteryLevel).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.warn("Failed to update battery average", err,
			zap.String("warehouse_code", wh),
			zap.String("robot_code", robot.Code),
		)
	}
}

// GetStats 由若干独立读取拼成，不是原子快照
func (s *Store) GetStats(ctx context.Context, wh string) models.WarehouseStats {
	now := s.now()
	stats := models.WarehouseStats{
		WarehouseCode:  wh,
		ActiveRobots:   s.scard(ctx, activeRobotsKey(wh)),
		TotalRobots:    s.scard(ctx, allRobotsKey(wh)),
		CheckedToday:   s.getInt(ctx, checkedKey(wh, now, s.opts.Timezone)),
		CriticalSkus:   s.scard(ctx, criticalSkusKey(wh)),
		ActivitySeries: s.activitySeries(ctx, wh, now),
	}

	if count := s.getInt(ctx, batteryCountKey(wh)); count > 0 {
		avg := float64(s.getInt(ctx, batterySumKey(wh))) / float64(count)
		stats.AvgBatteryPercent = &avg
	}

	stats.ServerTime = s.now()
	return stats
}

func (s *Store) scard(ctx context.Context, key string) int64 {
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		s.warn("Failed to read set size", err, zap.String("key", key))
		return 0
	}
	return n
}

func (s *Store) getInt(ctx context.Context, key string) int64 {
	v, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.warn("Failed to read counter", err, zap.String("key", key))
		}
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		s.warn("Counter is not an integer", err, zap.String("key", key))
		return 0
	}
	return n
}

// activitySeries 从最早的分钟到当前分钟
func (s *Store) activitySeries(ctx context.Context, wh string, now time.Time) []models.ActivityPoint {
	current := now.UTC().Truncate(time.Minute)
	points := make([]models.ActivityPoint, s.opts.SeriesMinutes)
	for i := range points {
		minute := current.Add(-time.Duration(s.opts.SeriesMinutes-1-i) * time.Minute)
		points[i] = models.ActivityPoint{
			MinuteStart: minute,
			Count:       s.getInt(ctx, activityKey(wh, minute)),
		}
	}
	return points
}

// Invalidate 删除仓库下的全部聚合键
func (s *Store) Invalidate(ctx context.Context, wh string) error {
	keys := fixedKeys(wh)
	for _, pattern := range patternKeys(wh) {
		iter := s.client.Scan(ctx, 0, pattern, 200).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
	}
	return s.client.Del(ctx, keys...).Err()
}

// Rebuild 清空后按创建顺序重放历史和机器人状态
// 超出 TTL 窗口的历史只参与关键 SKU 集合的重建
func (s *Store) Rebuild(ctx context.Context, wh string, history []*models.InventoryHistoryRecord, robots []*models.Robot) error {
	if err := s.Invalidate(ctx, wh); err != nil {
		return err
	}

	now := s.now()
	for _, rec := range history {
		r := *rec
		r.WarehouseCode = wh
		age := now.Sub(r.ScannedAt)
		s.applyHistory(ctx, &r, age < s.opts.CheckedTodayTTL, age < s.opts.ActivityTTL)
	}
	for _, robot := range robots {
		r := *robot
		r.WarehouseCode = wh
		s.OnRobotSnapshot(ctx, &r)
	}

	s.logger.Info("Rebuilt warehouse counters",
		zap.String("warehouse_code", wh),
		zap.Int("history_records", len(history)),
		zap.Int("robots", len(robots)),
	)
	return nil
}
