package models

import (
	"regexp"
	"time"

	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
)

// ScanStatus 库存状态（盘点结果的粗粒度分级）
type ScanStatus string

const (
	ScanStatusOK       ScanStatus = "OK"
	ScanStatusLowStock ScanStatus = "LOW_STOCK"
	ScanStatusCritical ScanStatus = "CRITICAL"
)

// Valid 是否为已知状态
func (s ScanStatus) Valid() bool {
	switch s {
	case ScanStatusOK, ScanStatusLowStock, ScanStatusCritical:
		return true
	}
	return false
}

var robotCodePattern = regexp.MustCompile(`^RB-\d{4}$`)

// Coordinate 货位坐标（zone/row/shelf 均为非负整数）
type Coordinate struct {
	Zone  int `json:"zone"`
	Row   int `json:"row"`
	Shelf int `json:"shelf"`
}

// ScanResult 单条盘点结果
type ScanResult struct {
	ProductCode string     `json:"productCode"`
	ProductName string     `json:"productName"`
	Quantity    int        `json:"quantity"`
	StatusCode  ScanStatus `json:"statusCode"`
}

// TelemetryReport 机器人一次上报的盘点批次（只作为输入，不直接落库）
type TelemetryReport struct {
	RobotCode      string       `json:"robotCode"`
	Timestamp      time.Time    `json:"timestamp"`
	Location       Coordinate   `json:"location"`
	BatteryLevel   int          `json:"batteryLevel"`
	NextCheckpoint string       `json:"nextCheckpoint"`
	ScanResults    []ScanResult `json:"scanResults"`
}

// Validate 校验报告格式，失败返回 InvalidArgument
// 仓库坐标上限在入库时按仓库配置另行校验
func (r *TelemetryReport) Validate() error {
	if !robotCodePattern.MatchString(r.RobotCode) {
		return apperr.InvalidArgument("robotCode %q must match RB-####", r.RobotCode)
	}
	if r.Timestamp.IsZero() {
		return apperr.InvalidArgument("timestamp is required")
	}
	if r.Location.Zone < 0 || r.Location.Row < 0 || r.Location.Shelf < 0 {
		return apperr.InvalidArgument("location coordinates must be non-negative")
	}
	if r.BatteryLevel < 0 || r.BatteryLevel > 100 {
		return apperr.InvalidArgument("batteryLevel %d out of range 0-100", r.BatteryLevel)
	}
	if len(r.ScanResults) == 0 {
		return apperr.InvalidArgument("scanResults must contain at least one entry")
	}
	for i, s := range r.ScanResults {
		if s.ProductCode == "" {
			return apperr.InvalidArgument("scanResults[%d].productCode is required", i)
		}
		if s.Quantity < 0 {
			return apperr.InvalidArgument("scanResults[%d].quantity must be >= 0", i)
		}
		if !s.StatusCode.Valid() {
			return apperr.InvalidArgument("scanResults[%d].statusCode %q is not one of OK, LOW_STOCK, CRITICAL", i, s.StatusCode)
		}
	}
	return nil
}

// IngestResult 入库成功的返回体
type IngestResult struct {
	Status         string   `json:"status"`
	CorrelationIDs []string `json:"correlationIds"`
}

// StatusHeartbeat 机器人状态心跳（原样转发为 robot_status 事件，不落库）
type StatusHeartbeat struct {
	RobotID        string     `json:"robotId"`
	Timestamp      time.Time  `json:"timestamp"`
	Status         string     `json:"status"`
	BatteryLevel   float64    `json:"batteryLevel"`
	LastDataSentAt *time.Time `json:"lastDataSentAt,omitempty"`
}

// Validate 校验心跳
func (h *StatusHeartbeat) Validate() error {
	if h.RobotID == "" {
		return apperr.InvalidArgument("robotId is required")
	}
	if h.Timestamp.IsZero() {
		return apperr.InvalidArgument("timestamp is required")
	}
	if h.Status == "" {
		return apperr.InvalidArgument("status is required")
	}
	if h.BatteryLevel < 0 || h.BatteryLevel > 100 {
		return apperr.InvalidArgument("batteryLevel %.1f out of range 0-100", h.BatteryLevel)
	}
	return nil
}
