package models

import (
	"encoding/json"
	"time"
)

// EventType 事件类型（信封中的 type 字段）
type EventType string

const (
	EventRobotUpdate    EventType = "robot_update"
	EventRobotStatus    EventType = "robot_status"
	EventLocationUpdate EventType = "location_update"
	// EventRaw 无法解析的负载，原样转发
	EventRaw EventType = "raw"
)

// Event 扇出事件
// 已知类型固定为 RobotUpdate / RobotStatus / LocationUpdate，其余一律为 Raw
type Event interface {
	Type() EventType
	// RobotID 负载中携带的机器人编码，没有则为空
	RobotID() string
	// WarehouseCode 负载中携带的仓库编码，没有则为空
	WarehouseCode() string
	isEvent()
}

// RobotUpdate 机器人位置 / 电量 / 最近盘点
type RobotUpdate struct {
	RobotCode      string        `json:"robotId"`
	Warehouse      string        `json:"warehouseCode,omitempty"`
	BatteryLevel   int           `json:"batteryLevel"`
	Location       Coordinate    `json:"location"`
	NextCheckpoint string        `json:"nextCheckpoint"`
	Timestamp      time.Time     `json:"timestamp"`
	RecentScans    []ScanSummary `json:"recentScans"`
}

func (RobotUpdate) Type() EventType         { return EventRobotUpdate }
func (e RobotUpdate) RobotID() string       { return e.RobotCode }
func (e RobotUpdate) WarehouseCode() string { return e.Warehouse }
func (RobotUpdate) isEvent()                {}

// RobotStatus 状态心跳，原样转发
type RobotStatus struct {
	StatusHeartbeat
}

func (RobotStatus) Type() EventType       { return EventRobotStatus }
func (e RobotStatus) RobotID() string     { return e.StatusHeartbeat.RobotID }
func (RobotStatus) WarehouseCode() string { return "" }
func (RobotStatus) isEvent()              {}

// LocationUpdate 货位新鲜度变化
type LocationUpdate struct {
	LocationStatus
	RobotCode string `json:"robotId,omitempty"`
}

func (LocationUpdate) Type() EventType         { return EventLocationUpdate }
func (e LocationUpdate) RobotID() string       { return e.RobotCode }
func (e LocationUpdate) WarehouseCode() string { return e.LocationStatus.WarehouseCode }
func (LocationUpdate) isEvent()                {}

// Raw 无法识别的负载
type Raw struct {
	Payload []byte
}

func (Raw) Type() EventType       { return EventRaw }
func (Raw) RobotID() string       { return "" }
func (Raw) WarehouseCode() string { return "" }
func (Raw) isEvent()              {}

type envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeEvent 序列化为 {type, data} 信封；Raw 原样返回负载
func EncodeEvent(e Event) ([]byte, error) {
	if raw, ok := e.(Raw); ok {
		return raw.Payload, nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: e.Type(), Data: data})
}

// DecodeEvent 解析信封，只在边界处做一次
// 任何解析失败或未知类型都返回 Raw，不会报错
func DecodeEvent(payload []byte) Event {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil || len(env.Data) == 0 {
		return Raw{Payload: payload}
	}

	var (
		ev  Event
		err error
	)
	switch env.Type {
	case EventRobotUpdate:
		var v RobotUpdate
		err = json.Unmarshal(env.Data, &v)
		ev = v
	case EventRobotStatus:
		var v RobotStatus
		err = json.Unmarshal(env.Data, &v)
		ev = v
	case EventLocationUpdate:
		var v LocationUpdate
		err = json.Unmarshal(env.Data, &v)
		ev = v
	default:
		return Raw{Payload: payload}
	}
	if err != nil {
		return Raw{Payload: payload}
	}
	return ev
}
