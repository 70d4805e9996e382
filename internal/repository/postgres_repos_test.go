package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var robotRowColumns = []string{
	"id", "robot_code", "warehouse_id", "code", "status", "battery_level",
	"current_zone", "current_row", "current_shelf", "last_update",
}

// ============================================
// Robots
// ============================================

func TestRobotsGetByCode_Success(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresRobotsRepository(db)

	last := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(robotRowColumns).
		AddRow(int64(7), "RB-0001", int64(3), "WH-1", "IDLE", 88, 1, 2, 3, last)
	mock.ExpectQuery(`SELECT\s+r.id`).WithArgs("RB-0001").WillReturnRows(rows)

	robot, err := repo.GetByCode(context.Background(), "RB-0001")
	require.NoError(t, err)
	assert.Equal(t, int64(7), robot.ID)
	require.NotNil(t, robot.WarehouseID)
	assert.Equal(t, int64(3), *robot.WarehouseID)
	assert.Equal(t, "WH-1", robot.WarehouseCode)
	assert.Equal(t, models.Coordinate{Zone: 1, Row: 2, Shelf: 3}, robot.Location)
	require.NotNil(t, robot.LastUpdate)
	assert.True(t, robot.LastUpdate.Equal(last))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRobotsGetByCode_Unassigned(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresRobotsRepository(db)

	rows := sqlmock.NewRows(robotRowColumns).
		AddRow(int64(8), "RB-0002", nil, "", "IDLE", 50, 0, 0, 0, nil)
	mock.ExpectQuery(`SELECT\s+r.id`).WithArgs("RB-0002").WillReturnRows(rows)

	robot, err := repo.GetByCode(context.Background(), "RB-0002")
	require.NoError(t, err)
	assert.Nil(t, robot.WarehouseID)
	assert.False(t, robot.HasWarehouse())
	assert.Nil(t, robot.LastUpdate)
}

func TestRobotsGetByCode_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresRobotsRepository(db)

	mock.ExpectQuery(`SELECT\s+r.id`).WithArgs("RB-9999").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByCode(context.Background(), "RB-9999")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRobotsUpdateState(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresRobotsRepository(db)

	now := time.Now().UTC()
	robot := &models.Robot{
		ID:           7,
		Code:         "RB-0001",
		Status:       models.RobotStatusWorking,
		BatteryLevel: 77,
		Location:     models.Coordinate{Zone: 1, Row: 1, Shelf: 1},
		LastUpdate:   &now,
	}
	mock.ExpectExec(`UPDATE robots`).
		WithArgs(int64(7), 77, 1, 1, 1, "WORKING", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateState(context.Background(), robot))

	mock.ExpectExec(`UPDATE robots`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateState(context.Background(), robot)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRobotsListAssigned(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresRobotsRepository(db)

	rows := sqlmock.NewRows(robotRowColumns).
		AddRow(int64(1), "RB-0001", int64(3), "WH-1", "WORKING", 90, 1, 1, 1, nil).
		AddRow(int64(2), "RB-0002", int64(3), "WH-1", "CHARGING", 20, 0, 0, 0, nil)
	mock.ExpectQuery(`warehouse_id IS NOT NULL`).WillReturnRows(rows)

	robots, err := repo.ListAssigned(context.Background())
	require.NoError(t, err)
	require.Len(t, robots, 2)
	assert.Equal(t, "RB-0002", robots[1].Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// Warehouses / Products / Locations
// ============================================

func TestWarehousesGetByCode(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresWarehousesRepository(db)

	rows := sqlmock.NewRows([]string{"id", "code", "name", "zone_max", "row_max", "shelf_max"}).
		AddRow(int64(3), "WH-1", "Main", 5, 20, 10)
	mock.ExpectQuery(`FROM warehouses\s+WHERE code = \$1`).WithArgs("WH-1").WillReturnRows(rows)

	w, err := repo.GetByCode(context.Background(), "WH-1")
	require.NoError(t, err)
	assert.Equal(t, 20, w.RowMax)

	mock.ExpectQuery(`FROM warehouses\s+WHERE id = \$1`).WithArgs(int64(99)).WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByID(context.Background(), 99)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProductsGetByCodeInWarehouse(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresProductsRepository(db)

	mock.ExpectQuery(`FROM products`).WithArgs("TEL-4567", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "warehouse_id"}).
			AddRow(int64(11), "TEL-4567", "Router", int64(3)))

	p, err := repo.GetByCodeInWarehouse(context.Background(), "TEL-4567", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(11), p.ID)
	require.NotNil(t, p.WarehouseID)

	mock.ExpectQuery(`FROM products`).WithArgs("NOPE").WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByCode(context.Background(), "NOPE")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationsGetOrCreate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresLocationsRepository(db)

	mock.ExpectQuery(`INSERT INTO locations`).WithArgs(int64(3), 1, 2, 3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	loc, err := repo.GetOrCreate(context.Background(), 3, models.Coordinate{Zone: 1, Row: 2, Shelf: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(42), loc.ID)
	assert.Equal(t, 2, loc.Row)
	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// History
// ============================================

func TestHistoryLatestFor(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresHistoryRepository(db)

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`ORDER BY created_at DESC, id DESC`).WithArgs(int64(11), int64(42), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "correlation_id", "expected_quantity", "actual_quantity", "difference", "status", "scanned_at", "created_at",
		}).AddRow(int64(100), "c-1", 0, 10, 10, "OK", ts, ts))

	rec, err := repo.LatestFor(context.Background(), 11, 42, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.ActualQuantity)
	assert.Equal(t, models.ScanStatusOK, rec.Status)

	mock.ExpectQuery(`ORDER BY created_at DESC, id DESC`).WillReturnError(sql.ErrNoRows)
	_, err = repo.LatestFor(context.Background(), 11, 43, 3)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryCreate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresHistoryRepository(db)

	scanned := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	created := scanned.Add(time.Second)
	rec := &models.InventoryHistoryRecord{
		CorrelationID:    "c-2",
		WarehouseID:      3,
		RobotID:          7,
		ProductID:        11,
		LocationID:       42,
		ExpectedQuantity: 10,
		ActualQuantity:   7,
		Difference:       -3,
		Status:           models.ScanStatusLowStock,
		ScannedAt:        scanned,
	}
	mock.ExpectQuery(`INSERT INTO inventory_history`).
		WithArgs("c-2", int64(3), int64(7), int64(11), int64(42), 10, 7, -3, "LOW_STOCK", scanned).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(101), created))

	require.NoError(t, repo.Create(context.Background(), rec))
	assert.Equal(t, int64(101), rec.ID)
	assert.True(t, rec.CreatedAt.Equal(created))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRecentScanTimesAndCount(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresHistoryRepository(db)

	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t0 := t1.Add(-10 * time.Minute)
	mock.ExpectQuery(`SELECT scanned_at`).WithArgs(int64(42), int64(3), 5).
		WillReturnRows(sqlmock.NewRows([]string{"scanned_at"}).AddRow(t1).AddRow(t0))

	times, err := repo.RecentScanTimes(context.Background(), 42, 3, 5)
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.True(t, times[0].Equal(t1))

	since := t1.Add(-24 * time.Hour)
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).WithArgs(int64(42), int64(3), since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	n, err := repo.CountSince(context.Background(), 42, 3, since)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// UnitOfWork
// ============================================

func TestPostgresUnitOfWork_Commit(t *testing.T) {
	db, mock := setupMockDB(t)
	uow := NewPostgresUnitOfWork(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO locations`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit()

	err := uow.Do(context.Background(), func(ctx context.Context, repos Repositories) error {
		_, err := repos.Locations.GetOrCreate(ctx, 3, models.Coordinate{Zone: 1, Row: 1, Shelf: 1})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUnitOfWork_RollbackOnError(t *testing.T) {
	db, mock := setupMockDB(t)
	uow := NewPostgresUnitOfWork(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := apperr.InvalidArgument("zone out of range")
	err := uow.Do(context.Background(), func(ctx context.Context, repos Repositories) error {
		return boom
	})
	assert.Equal(t, boom, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
