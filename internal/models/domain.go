package models

import "time"

// 机器人状态
const (
	RobotStatusWorking     = "WORKING"
	RobotStatusIdle        = "IDLE"
	RobotStatusCharging    = "CHARGING"
	RobotStatusMaintenance = "MAINTENANCE"
	RobotStatusOffline     = "OFFLINE"
)

// Warehouse 仓库（坐标上限均为闭区间）
type Warehouse struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	ZoneMax  int    `json:"zoneMax"`
	RowMax   int    `json:"rowMax"`
	ShelfMax int    `json:"shelfMax"`
}

// Contains 坐标是否在仓库配置的上限以内
func (w *Warehouse) Contains(c Coordinate) bool {
	return c.Zone >= 0 && c.Zone <= w.ZoneMax &&
		c.Row >= 0 && c.Row <= w.RowMax &&
		c.Shelf >= 0 && c.Shelf <= w.ShelfMax
}

// Robot 机器人状态（每台一行，每次上报覆盖）
type Robot struct {
	ID            int64      `json:"id"`
	Code          string     `json:"code"`
	WarehouseID   *int64     `json:"warehouseId,omitempty"`
	WarehouseCode string     `json:"warehouseCode,omitempty"`
	Status        string     `json:"status"`
	BatteryLevel  int        `json:"batteryLevel"`
	Location      Coordinate `json:"location"`
	LastUpdate    *time.Time `json:"lastUpdate,omitempty"`
	Deleted       bool       `json:"-"`
}

// HasWarehouse 是否已分配仓库
func (r *Robot) HasWarehouse() bool {
	return r.WarehouseID != nil && r.WarehouseCode != ""
}

// Active 是否处于作业状态
func (r *Robot) Active() bool {
	return r.Status == RobotStatusWorking
}

// Product 商品；WarehouseID 为空表示全局商品
type Product struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	WarehouseID *int64 `json:"warehouseId,omitempty"`
}

// Location 货位
type Location struct {
	ID          int64 `json:"id"`
	WarehouseID int64 `json:"warehouseId"`
	Coordinate
}

// InventoryHistoryRecord 盘点历史（只追加，写入后不再修改）
type InventoryHistoryRecord struct {
	ID               int64      `json:"id"`
	CorrelationID    string     `json:"correlationId"`
	WarehouseID      int64      `json:"warehouseId"`
	WarehouseCode    string     `json:"warehouseCode"`
	RobotID          int64      `json:"robotId"`
	RobotCode        string     `json:"robotCode"`
	ProductID        int64      `json:"productId"`
	ProductCode      string     `json:"productCode"`
	LocationID       int64      `json:"locationId"`
	ExpectedQuantity int        `json:"expectedQuantity"`
	ActualQuantity   int        `json:"actualQuantity"`
	Difference       int        `json:"difference"`
	Status           ScanStatus `json:"status"`
	ScannedAt        time.Time  `json:"scannedAt"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// ScanSummary 最近盘点列表里的一条摘要
type ScanSummary struct {
	ProductCode string     `json:"productCode"`
	ProductName string     `json:"productName"`
	Quantity    int        `json:"quantity"`
	Status      ScanStatus `json:"status"`
	Difference  int        `json:"difference"`
	ScannedAt   time.Time  `json:"scannedAt"`
}
