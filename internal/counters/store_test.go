package counters

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

var fixedNow = time.Date(2024, 5, 1, 10, 30, 15, 0, time.UTC)

func setupStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	s := NewStore(client, Options{}, zap.NewNop())
	s.SetClock(func() time.Time { return fixedNow })
	return mr, s
}

func robot(code string, status string, battery int) *models.Robot {
	return &models.Robot{Code: code, WarehouseCode: "WH-1", Status: status, BatteryLevel: battery}
}

func TestGetStats_EmptyWarehouse(t *testing.T) {
	_, s := setupStore(t)

	stats := s.GetStats(context.Background(), "WH-1")
	assert.Zero(t, stats.ActiveRobots)
	assert.Zero(t, stats.TotalRobots)
	assert.Zero(t, stats.CheckedToday)
	assert.Zero(t, stats.CriticalSkus)
	assert.Nil(t, stats.AvgBatteryPercent)
	require.Len(t, stats.ActivitySeries, 60)
	assert.Equal(t, fixedNow.Truncate(time.Minute), stats.ActivitySeries[59].MinuteStart)
	assert.Equal(t, fixedNow.Truncate(time.Minute).Add(-59*time.Minute), stats.ActivitySeries[0].MinuteStart)
	assert.Equal(t, fixedNow, stats.ServerTime)
}

func TestGetStats_ActiveAndTotalRobots(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	s.OnRobotSnapshot(ctx, robot("r1", models.RobotStatusWorking, 80))
	s.OnRobotSnapshot(ctx, robot("r2", models.RobotStatusWorking, 60))
	s.OnRobotSnapshot(ctx, robot("r3", models.RobotStatusCharging, 10))

	stats := s.GetStats(ctx, "WH-1")
	assert.Equal(t, int64(2), stats.ActiveRobots)
	assert.Equal(t, int64(3), stats.TotalRobots)

	// r1 退出作业后只从 active 集合移除
	s.OnRobotSnapshot(ctx, robot("r1", models.RobotStatusIdle, 80))
	stats = s.GetStats(ctx, "WH-1")
	assert.Equal(t, int64(1), stats.ActiveRobots)
	assert.Equal(t, int64(3), stats.TotalRobots)
}

func TestOnRobotSnapshot_BatteryAverage(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	s.OnRobotSnapshot(ctx, robot("r1", models.RobotStatusWorking, 80))
	s.OnRobotSnapshot(ctx, robot("r2", models.RobotStatusWorking, 60))
	stats := s.GetStats(ctx, "WH-1")
	require.NotNil(t, stats.AvgBatteryPercent)
	assert.InDelta(t, 70.0, *stats.AvgBatteryPercent, 0.0001)

	s.OnRobotSnapshot(ctx, robot("r1", models.RobotStatusWorking, 40))
	s.OnRobotSnapshot(ctx, robot("r1", models.RobotStatusWorking, 40))
	stats = s.GetStats(ctx, "WH-1")
	require.NotNil(t, stats.AvgBatteryPercent)
	assert.InDelta(t, 50.0, *stats.AvgBatteryPercent, 0.0001)
}

func TestOnRobotSnapshot_BatteryInvariantUnderAnyOrder(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(42))
	latest := map[string]int{}
	codes := []string{"r1", "r2", "r3", "r4", "r5"}
	for i := 0; i < 200; i++ {
		code := codes[rng.Intn(len(codes))]
		battery := rng.Intn(101)
		latest[code] = battery
		s.OnRobotSnapshot(ctx, robot(code, models.RobotStatusWorking, battery))
	}

	sum := 0
	for _, b := range latest {
		sum += b
	}
	want := float64(sum) / float64(len(latest))

	stats := s.GetStats(ctx, "WH-1")
	require.NotNil(t, stats.AvgBatteryPercent)
	assert.InDelta(t, want, *stats.AvgBatteryPercent, 0.0001)
	assert.Equal(t, int64(len(latest)), stats.TotalRobots)
}

func TestOnHistoryCreated_CountersAndCriticalSet(t *testing.T) {
	mr, s := setupStore(t)
	ctx := context.Background()

	rec := &models.InventoryHistoryRecord{
		WarehouseCode: "WH-1",
		ProductCode:   "TEL-4567",
		Status:        models.ScanStatusCritical,
		ScannedAt:     fixedNow.Add(-2 * time.Minute),
	}
	s.OnHistoryCreated(ctx, rec)
	s.OnHistoryCreated(ctx, &models.InventoryHistoryRecord{
		WarehouseCode: "WH-1",
		ProductCode:   "TEL-0001",
		Status:        models.ScanStatusOK,
		ScannedAt:     fixedNow,
	})

	stats := s.GetStats(ctx, "WH-1")
	assert.Equal(t, int64(2), stats.CheckedToday)
	assert.Equal(t, int64(1), stats.CriticalSkus)
	assert.Equal(t, int64(1), stats.ActivitySeries[57].Count)
	assert.Equal(t, int64(1), stats.ActivitySeries[59].Count)
	assert.Equal(t, int64(0), stats.ActivitySeries[58].Count)

	assert.Equal(t, time.Hour, mr.TTL(activityKey("WH-1", fixedNow)))
	assert.Equal(t, 72*time.Hour, mr.TTL(checkedKey("WH-1", fixedNow, time.UTC)))

	// 最新一次观测不再是 CRITICAL 时移出集合
	rec.Status = models.ScanStatusLowStock
	s.OnHistoryCreated(ctx, rec)
	stats = s.GetStats(ctx, "WH-1")
	assert.Equal(t, int64(0), stats.CriticalSkus)
	assert.Equal(t, int64(3), stats.CheckedToday)
}

func TestCheckedKey_UsesConfiguredTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	late := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "wh:WH-1:checked:2024-05-02:UTC+8", checkedKey("WH-1", late, loc))
	assert.Equal(t, "wh:WH-1:checked:2024-05-01:UTC", checkedKey("WH-1", late, time.UTC))
}

func TestStore_RedisDownIsSwallowed(t *testing.T) {
	mr, s := setupStore(t)
	ctx := context.Background()
	mr.Close()

	assert.NotPanics(t, func() {
		s.OnRobotSnapshot(ctx, robot("r1", models.RobotStatusWorking, 80))
		s.OnHistoryCreated(ctx, &models.InventoryHistoryRecord{WarehouseCode: "WH-1", ScannedAt: fixedNow})
	})
	stats := s.GetStats(ctx, "WH-1")
	assert.Zero(t, stats.TotalRobots)
	assert.Nil(t, stats.AvgBatteryPercent)
	assert.Len(t, stats.ActivitySeries, 60)
}

func TestRebuild_MatchesIncrementalState(t *testing.T) {
	_, s := setupStore(t)
	ctx := context.Background()

	history := []*models.InventoryHistoryRecord{
		{ProductCode: "A", Status: models.ScanStatusCritical, ScannedAt: fixedNow.Add(-5 * time.Minute)},
		{ProductCode: "B", Status: models.ScanStatusCritical, ScannedAt: fixedNow.Add(-4 * time.Minute)},
		{ProductCode: "A", Status: models.ScanStatusOK, ScannedAt: fixedNow.Add(-3 * time.Minute)},
		{ProductCode: "C", Status: models.ScanStatusCritical, ScannedAt: fixedNow.Add(-30 * 24 * time.Hour)},
	}
	robots := []*models.Robot{
		{Code: "r1", Status: models.RobotStatusWorking, BatteryLevel: 90},
		{Code: "r2", Status: models.RobotStatusIdle, BatteryLevel: 30},
	}

	// 先写入一些脏数据
	s.OnRobotSnapshot(ctx, robot("ghost", models.RobotStatusWorking, 5))

	require.NoError(t, s.Rebuild(ctx, "WH-1", history, robots))

	stats := s.GetStats(ctx, "WH-1")
	assert.Equal(t, int64(1), stats.ActiveRobots)
	assert.Equal(t, int64(2), stats.TotalRobots)
	assert.Equal(t, int64(2), stats.CriticalSkus)
	assert.Equal(t, int64(3), stats.CheckedToday)
	require.NotNil(t, stats.AvgBatteryPercent)
	assert.InDelta(t, 60.0, *stats.AvgBatteryPercent, 0.0001)
}

func TestInvalidate_RemovesWarehouseKeysOnly(t *testing.T) {
	mr, s := setupStore(t)
	ctx := context.Background()

	s.OnRobotSnapshot(ctx, robot("r1", models.RobotStatusWorking, 80))
	s.OnHistoryCreated(ctx, &models.InventoryHistoryRecord{WarehouseCode: "WH-1", ProductCode: "A", ScannedAt: fixedNow})
	other := robot("r9", models.RobotStatusWorking, 50)
	other.WarehouseCode = "WH-2"
	s.OnRobotSnapshot(ctx, other)

	require.NoError(t, s.Invalidate(ctx, "WH-1"))

	for _, k := range mr.Keys() {
		assert.NotContains(t, k, "wh:WH-1:")
	}
	assert.Equal(t, int64(1), s.GetStats(ctx, "WH-2").TotalRobots)
}
