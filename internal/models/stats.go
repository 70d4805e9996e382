package models

import "time"

// 货位新鲜度
const (
	LocationRecent = "RECENT"
	LocationMedium = "MEDIUM"
	LocationOld    = "OLD"
)

// LocationStatus 货位新鲜度分级结果
type LocationStatus struct {
	LocationID           int64      `json:"locationId"`
	WarehouseCode        string     `json:"warehouseCode"`
	Zone                 int        `json:"zone"`
	Row                  int        `json:"row"`
	Shelf                int        `json:"shelf"`
	Status               string     `json:"status"`
	LastScannedAt        *time.Time `json:"lastScannedAt"`
	MinutesSinceLastScan *int64     `json:"minutesSinceLastScan"`
	ScansCount24h        int        `json:"scansCount24h"`
	AvgIntervalMinutes   *float64   `json:"avgIntervalMinutes"`
}

// ActivityPoint 每分钟盘点次数
type ActivityPoint struct {
	MinuteStart time.Time `json:"minuteStart"`
	Count       int64     `json:"count"`
}

// WarehouseStats 看板聚合数据
type WarehouseStats struct {
	WarehouseCode     string          `json:"warehouseCode"`
	ActiveRobots      int64           `json:"activeRobots"`
	TotalRobots       int64           `json:"totalRobots"`
	CheckedToday      int64           `json:"checkedToday"`
	CriticalSkus      int64           `json:"criticalSkus"`
	AvgBatteryPercent *float64        `json:"avgBatteryPercent"`
	ActivitySeries    []ActivityPoint `json:"activitySeries"`
	ServerTime        time.Time       `json:"serverTime"`
}
