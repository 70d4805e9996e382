// Package resolver 机器人编码 -> 仓库编码 的读穿缓存
// 缓存只是软状态：未命中总是回源查询并回填，机器人换仓后最多在 TTL 内路由到旧仓库
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/metrics"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

// RobotLookup 权威查询
type RobotLookup interface {
	GetByCode(ctx context.Context, code string) (*models.Robot, error)
}

type Resolver struct {
	kv     KVStore
	robots RobotLookup
	ttl    time.Duration
	logger *zap.Logger
}

func NewResolver(kv KVStore, robots RobotLookup, ttl time.Duration, logger *zap.Logger) *Resolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Resolver{kv: kv, robots: robots, ttl: ttl, logger: logger}
}

func cacheKey(robotCode string) string {
	return fmt.Sprintf("robot:%s:warehouse", robotCode)
}

// Resolve 返回机器人所属仓库；查不到时 ok=false
func (r *Resolver) Resolve(ctx context.Context, robotCode string) (string, bool) {
	if robotCode == "" {
		return "", false
	}

	cached, err := r.kv.Get(ctx, cacheKey(robotCode))
	if err == nil && cached != "" {
		return cached, true
	}
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		metrics.IncSwallowed("resolver")
		r.logger.Warn("Warehouse cache read failed, falling back to lookup",
			zap.String("robot_code", robotCode),
			zap.Error(err),
		)
	}

	robot, err := r.robots.GetByCode(ctx, robotCode)
	if err != nil {
		r.logger.Debug("Robot not resolvable",
			zap.String("robot_code", robotCode),
			zap.Error(err),
		)
		return "", false
	}
	if !robot.HasWarehouse() {
		return "", false
	}

	if err := r.kv.Set(ctx, cacheKey(robotCode), robot.WarehouseCode, r.ttl); err != nil {
		metrics.IncSwallowed("resolver")
		r.logger.Warn("Failed to cache robot warehouse",
			zap.String("robot_code", robotCode),
			zap.Error(err),
		)
	}
	return robot.WarehouseCode, true
}

// Invalidate 删除某台机器人的缓存
func (r *Resolver) Invalidate(ctx context.Context, robotCode string) error {
	return r.kv.Del(ctx, cacheKey(robotCode))
}

// Rebuild 用权威数据覆盖缓存；未分配仓库的机器人清掉缓存
func (r *Resolver) Rebuild(ctx context.Context, robots []*models.Robot) error {
	for _, robot := range robots {
		var err error
		if robot.HasWarehouse() && !robot.Deleted {
			err = r.kv.Set(ctx, cacheKey(robot.Code), robot.WarehouseCode, r.ttl)
		} else {
			err = r.kv.Del(ctx, cacheKey(robot.Code))
		}
		if err != nil {
			return fmt.Errorf("rebuild warehouse cache for %s: %w", robot.Code, err)
		}
	}
	return nil
}
