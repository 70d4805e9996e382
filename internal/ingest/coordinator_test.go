package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
	"github.com/xfn3t/smart-warehouse-sub000/internal/repository"
	"github.com/xfn3t/smart-warehouse-sub000/internal/staleness"
)

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeCounters struct {
	mu      sync.Mutex
	history []*models.InventoryHistoryRecord
	robots  []models.Robot
}

func (f *fakeCounters) OnHistoryCreated(_ context.Context, rec *models.InventoryHistoryRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, rec)
}

func (f *fakeCounters) OnRobotSnapshot(_ context.Context, robot *models.Robot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.robots = append(f.robots, *robot)
}

type fakeRecent struct {
	mu     sync.Mutex
	pushed map[string][]models.ScanSummary
	err    error
}

func (f *fakeRecent) Push(_ context.Context, robot string, batch []models.ScanSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pushed[robot] = append(f.pushed[robot], batch...)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.Event
	fail   bool
}

func (f *fakePublisher) Publish(_ context.Context, ev models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return apperr.Transient(errors.New("connection refused"), "publish to scan:events:stream")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) ofType(t models.EventType) []models.Event {
	out := []models.Event{}
	for _, ev := range f.events {
		if ev.Type() == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeDirect struct {
	events []models.Event
}

func (f *fakeDirect) DeliverDirect(_ context.Context, ev models.Event) error {
	f.events = append(f.events, ev)
	return nil
}

type fixture struct {
	store     *repository.MemoryStore
	warehouse *models.Warehouse
	robot     *models.Robot
	counters  *fakeCounters
	recent    *fakeRecent
	publisher *fakePublisher
	direct    *fakeDirect
	coord     *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	store.SetClock(func() time.Time { return testNow })
	wh := store.AddWarehouse(models.Warehouse{Code: "WH-1", Name: "Main", ZoneMax: 3, RowMax: 10, ShelfMax: 5})
	robot := store.AddRobot(models.Robot{Code: "RB-0001", WarehouseID: &wh.ID, Status: models.RobotStatusIdle, BatteryLevel: 100})
	store.AddProduct(models.Product{Code: "TEL-4567", Name: "Router", WarehouseID: &wh.ID})
	store.AddProduct(models.Product{Code: "TEL-0002", Name: "Switch", WarehouseID: &wh.ID})

	classifier := staleness.NewClassifier(staleness.Options{})
	classifier.SetClock(func() time.Time { return testNow })

	f := &fixture{
		store:     store,
		warehouse: wh,
		robot:     robot,
		counters:  &fakeCounters{},
		recent:    &fakeRecent{pushed: map[string][]models.ScanSummary{}},
		publisher: &fakePublisher{},
		direct:    &fakeDirect{},
	}
	f.coord = NewCoordinator(store, classifier, f.counters, f.recent, f.publisher, f.direct, zap.NewNop())
	f.coord.SetClock(func() time.Time { return testNow })

	seq := 0
	f.coord.newID = func() string {
		seq++
		return fmt.Sprintf("corr-%d", seq)
	}
	return f
}

func report(loc models.Coordinate, scans ...models.ScanResult) *models.TelemetryReport {
	return &models.TelemetryReport{
		RobotCode:      "RB-0001",
		Timestamp:      testNow,
		Location:       loc,
		BatteryLevel:   76,
		NextCheckpoint: "C-7",
		ScanResults:    scans,
	}
}

func scan(code string, qty int) models.ScanResult {
	return models.ScanResult{ProductCode: code, ProductName: code + " name", Quantity: qty, StatusCode: models.ScanStatusOK}
}

var slot = models.Coordinate{Zone: 1, Row: 1, Shelf: 1}

func TestIngest_FirstScanHasZeroBaseline(t *testing.T) {
	f := newFixture(t)

	res, err := f.coord.Ingest(context.Background(), report(slot, scan("TEL-4567", 10)))
	require.NoError(t, err)
	assert.Equal(t, "received", res.Status)
	assert.Equal(t, []string{"corr-1"}, res.CorrelationIDs)

	history := f.store.History()
	require.Len(t, history, 1)
	assert.Equal(t, 0, history[0].ExpectedQuantity)
	assert.Equal(t, 10, history[0].ActualQuantity)
	assert.Equal(t, 10, history[0].Difference)
	assert.Equal(t, "corr-1", history[0].CorrelationID)
}

func TestIngest_SecondScanUsesPreviousQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.Ingest(ctx, report(slot, scan("TEL-4567", 10)))
	require.NoError(t, err)
	_, err = f.coord.Ingest(ctx, report(slot, scan("TEL-4567", 7)))
	require.NoError(t, err)

	history := f.store.History()
	require.Len(t, history, 2)
	assert.Equal(t, 10, history[1].ExpectedQuantity)
	assert.Equal(t, -3, history[1].Difference)
}

func TestIngest_NScanResultsCreateNRecordsInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.Ingest(ctx, report(slot, scan("TEL-4567", 4)))
	require.NoError(t, err)

	res, err := f.coord.Ingest(ctx, report(slot,
		scan("TEL-4567", 6),
		scan("TEL-0002", 3),
		scan("TEL-4567", 1),
	))
	require.NoError(t, err)
	require.Len(t, res.CorrelationIDs, 3)

	history := f.store.History()
	require.Len(t, history, 4)
	// 同一批次内的重复商品以前一条为基线
	assert.Equal(t, []int{4, 0, 6}, []int{history[1].ExpectedQuantity, history[2].ExpectedQuantity, history[3].ExpectedQuantity})
	for _, h := range history {
		assert.Equal(t, h.ActualQuantity-h.ExpectedQuantity, h.Difference)
	}
}

func TestIngest_UpdatesRobotStateAndSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.Ingest(ctx, report(models.Coordinate{Zone: 2, Row: 3, Shelf: 4}, scan("TEL-4567", 10), scan("TEL-0002", 2)))
	require.NoError(t, err)

	robot, err := f.store.Repositories().Robots.GetByCode(ctx, "RB-0001")
	require.NoError(t, err)
	assert.Equal(t, 76, robot.BatteryLevel)
	assert.Equal(t, models.Coordinate{Zone: 2, Row: 3, Shelf: 4}, robot.Location)
	assert.Equal(t, models.RobotStatusWorking, robot.Status)
	require.NotNil(t, robot.LastUpdate)
	assert.True(t, robot.LastUpdate.Equal(testNow))

	require.Len(t, f.counters.robots, 1)
	assert.Equal(t, "WH-1", f.counters.robots[0].WarehouseCode)
	require.Len(t, f.counters.history, 2)
	assert.Equal(t, "TEL-0002", f.counters.history[1].ProductCode)

	assert.Len(t, f.recent.pushed["RB-0001"], 2)

	locs := f.publisher.ofType(models.EventLocationUpdate)
	require.Len(t, locs, 2)
	lu := locs[1].(models.LocationUpdate)
	assert.Equal(t, "WH-1", lu.WarehouseCode())
	assert.Equal(t, models.LocationRecent, lu.Status)
	assert.Equal(t, 2, lu.ScansCount24h)

	updates := f.publisher.ofType(models.EventRobotUpdate)
	require.Len(t, updates, 1)
	ru := updates[0].(models.RobotUpdate)
	assert.Equal(t, "RB-0001", ru.RobotCode)
	assert.Equal(t, "WH-1", ru.Warehouse)
	assert.Equal(t, "C-7", ru.NextCheckpoint)
	require.Len(t, ru.RecentScans, 2)
	assert.Equal(t, 10, ru.RecentScans[0].Difference)
	assert.Empty(t, f.direct.events)
}

func TestIngest_BoundsAreInclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.Ingest(ctx, report(models.Coordinate{Zone: 3, Row: 10, Shelf: 5}, scan("TEL-4567", 1)))
	require.NoError(t, err)

	for _, loc := range []models.Coordinate{
		{Zone: 4, Row: 10, Shelf: 5},
		{Zone: 3, Row: 11, Shelf: 5},
		{Zone: 3, Row: 10, Shelf: 6},
	} {
		_, err := f.coord.Ingest(ctx, report(loc, scan("TEL-4567", 1)))
		assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err), "loc %+v", loc)
	}
	assert.Len(t, f.store.History(), 1)
}

func TestIngest_RejectedReportLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 第二条商品不存在：第一条已写入的历史和机器人状态都要回滚
	_, err := f.coord.Ingest(ctx, report(slot, scan("TEL-4567", 10), scan("NOPE-1", 1)))
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	assert.Empty(t, f.store.History())
	robot, err := f.store.Repositories().Robots.GetByCode(ctx, "RB-0001")
	require.NoError(t, err)
	assert.Equal(t, 100, robot.BatteryLevel)
	assert.Equal(t, models.RobotStatusIdle, robot.Status)

	assert.Empty(t, f.counters.history)
	assert.Empty(t, f.counters.robots)
	assert.Empty(t, f.publisher.events)
	assert.Empty(t, f.recent.pushed)
}

func TestIngest_UnknownRobotAndUnassignedRobot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := report(slot, scan("TEL-4567", 1))
	r.RobotCode = "RB-9999"
	_, err := f.coord.Ingest(ctx, r)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	f.store.AddRobot(models.Robot{Code: "RB-0002"})
	r.RobotCode = "RB-0002"
	_, err = f.coord.Ingest(ctx, r)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestIngest_InvalidReport(t *testing.T) {
	f := newFixture(t)
	r := report(slot)
	_, err := f.coord.Ingest(context.Background(), r)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestIngest_ProductFallsBackToUnscopedLookup(t *testing.T) {
	f := newFixture(t)
	f.store.AddProduct(models.Product{Code: "GLB-0001", Name: "Global cable"})

	_, err := f.coord.Ingest(context.Background(), report(slot, models.ScanResult{ProductCode: "GLB-0001", Quantity: 5, StatusCode: models.ScanStatusCritical}))
	require.NoError(t, err)

	history := f.store.History()
	require.Len(t, history, 1)
	assert.Equal(t, "GLB-0001", history[0].ProductCode)
	assert.Equal(t, models.ScanStatusCritical, history[0].Status)
	ru := f.publisher.ofType(models.EventRobotUpdate)[0].(models.RobotUpdate)
	assert.Equal(t, "Global cable", ru.RecentScans[0].ProductName)
}

func TestIngest_DegradedPublishIsNotSurfaced(t *testing.T) {
	f := newFixture(t)
	f.publisher.fail = true
	f.recent.err = errors.New("redis down")

	res, err := f.coord.Ingest(context.Background(), report(slot, scan("TEL-4567", 10)))
	require.NoError(t, err)
	assert.Len(t, res.CorrelationIDs, 1)

	require.Len(t, f.direct.events, 1)
	assert.Equal(t, models.EventRobotUpdate, f.direct.events[0].Type())
	assert.Len(t, f.store.History(), 1)
}

func TestIngestStatus_ForwardsVerbatim(t *testing.T) {
	f := newFixture(t)
	sent := testNow.Add(-time.Minute)
	hb := &models.StatusHeartbeat{RobotID: "RB-0001", Timestamp: testNow, Status: "CHARGING", BatteryLevel: 12.5, LastDataSentAt: &sent}

	require.NoError(t, f.coord.IngestStatus(context.Background(), hb))
	require.Len(t, f.publisher.events, 1)
	st := f.publisher.events[0].(models.RobotStatus)
	assert.Equal(t, *hb, st.StatusHeartbeat)
	assert.Empty(t, f.store.History())

	err := f.coord.IngestStatus(context.Background(), &models.StatusHeartbeat{RobotID: "RB-0001"})
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestIngest_ConcurrentReportsForDifferentSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(shelf int) {
			defer wg.Done()
			_, err := f.coord.Ingest(ctx, report(models.Coordinate{Zone: 1, Row: 1, Shelf: shelf}, scan("TEL-4567", shelf)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history := f.store.History()
	require.Len(t, history, 5)
	for _, h := range history {
		assert.Equal(t, 0, h.ExpectedQuantity)
	}
}
