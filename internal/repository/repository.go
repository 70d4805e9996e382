package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

// DBTX *sql.DB 与 *sql.Tx 的公共子集，同一套 SQL 可在事务内外复用
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RobotsRepository 机器人
type RobotsRepository interface {
	// GetByCode 按编码查询（不含已删除），不存在返回 NotFound
	GetByCode(ctx context.Context, code string) (*models.Robot, error)
	// ListAssigned 所有未删除且已分配仓库的机器人
	ListAssigned(ctx context.Context) ([]*models.Robot, error)
	// ListByWarehouse 某仓库下未删除的机器人
	ListByWarehouse(ctx context.Context, warehouseID int64) ([]*models.Robot, error)
	// UpdateState 覆盖电量、位置、状态、最后上报时间
	UpdateState(ctx context.Context, robot *models.Robot) error
}

// WarehousesRepository 仓库
type WarehousesRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Warehouse, error)
	GetByCode(ctx context.Context, code string) (*models.Warehouse, error)
	List(ctx context.Context) ([]*models.Warehouse, error)
}

// ProductsRepository 商品
type ProductsRepository interface {
	// GetByCodeInWarehouse 仓库内商品
	GetByCodeInWarehouse(ctx context.Context, code string, warehouseID int64) (*models.Product, error)
	// GetByCode 不限仓库，取 id 最小的一条
	GetByCode(ctx context.Context, code string) (*models.Product, error)
}

// LocationsRepository 货位
type LocationsRepository interface {
	Get(ctx context.Context, warehouseID int64, c models.Coordinate) (*models.Location, error)
	// GetOrCreate 货位不存在时创建
	GetOrCreate(ctx context.Context, warehouseID int64, c models.Coordinate) (*models.Location, error)
	ListByWarehouse(ctx context.Context, warehouseID int64) ([]*models.Location, error)
}

// HistoryRepository 盘点历史（只追加）
type HistoryRepository interface {
	// LatestFor (product, location, warehouse) 最近创建的一条，没有返回 NotFound
	LatestFor(ctx context.Context, productID, locationID, warehouseID int64) (*models.InventoryHistoryRecord, error)
	// Create 写入记录，回填 ID / CreatedAt
	Create(ctx context.Context, rec *models.InventoryHistoryRecord) error
	// RecentScanTimes 货位最近 limit 次盘点时间，按 scanned_at 倒序
	RecentScanTimes(ctx context.Context, locationID, warehouseID int64, limit int) ([]time.Time, error)
	// CountSince since 之后（含）的盘点次数
	CountSince(ctx context.Context, locationID, warehouseID int64, since time.Time) (int, error)
	// ListByWarehouse 仓库全部历史，按创建顺序，用于重建聚合计数
	ListByWarehouse(ctx context.Context, warehouseID int64) ([]*models.InventoryHistoryRecord, error)
}

// Repositories 一组共享同一连接（或同一事务）的仓储
type Repositories struct {
	Robots     RobotsRepository
	Warehouses WarehousesRepository
	Products   ProductsRepository
	Locations  LocationsRepository
	History    HistoryRepository
}

// UnitOfWork 在一个事务里执行 fn；fn 返回错误则整体回滚
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
