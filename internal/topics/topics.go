// Package topics 把主题种类和标识符映射成规范的主题名
package topics

import (
	"fmt"
	"strings"
)

// DefaultPrefix 主题树根
const DefaultPrefix = "warehouse"

// Kind 主题种类
type Kind int

const (
	// Global 全局机器人事件流
	Global Kind = iota
	// GlobalLocations 全局货位事件流
	GlobalLocations
	// Robot 单个机器人
	Robot
	// Warehouse 单个仓库
	Warehouse
	// WarehouseLocations 单个仓库的货位
	WarehouseLocations
	// WarehouseDashboard 单个仓库的看板快照
	WarehouseDashboard
)

func (k Kind) String() string {
	switch k {
	case Global:
		return "global"
	case GlobalLocations:
		return "global_locations"
	case Robot:
		return "robot"
	case Warehouse:
		return "warehouse"
	case WarehouseLocations:
		return "warehouse_locations"
	case WarehouseDashboard:
		return "warehouse_dashboard"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Tree 生成某个前缀下的主题名
type Tree struct {
	prefix string
}

// NewTree 前缀为空时使用 DefaultPrefix
func NewTree(prefix string) Tree {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Tree{prefix: prefix}
}

// Prefix 返回前缀
func (t Tree) Prefix() string { return t.prefix }

// Name 返回主题名
// Robot 需要机器人编码，Warehouse* 需要仓库编码，全局主题不接受标识符
func (t Tree) Name(kind Kind, id string) (string, error) {
	switch kind {
	case Global:
		return t.prefix + "/robots", nil
	case GlobalLocations:
		return t.prefix + "/locations", nil
	}

	if err := validID(id); err != nil {
		return "", fmt.Errorf("topic %s: %w", kind, err)
	}
	switch kind {
	case Robot:
		return t.prefix + "/robots/" + id, nil
	case Warehouse:
		return t.prefix + "/" + id + "/robots", nil
	case WarehouseLocations:
		return t.prefix + "/" + id + "/locations", nil
	case WarehouseDashboard:
		return t.prefix + "/" + id + "/dashboard", nil
	}
	return "", fmt.Errorf("unknown topic kind %s", kind)
}

// MustName 同 Name，用于全局主题
func (t Tree) MustName(kind Kind, id string) string {
	name, err := t.Name(kind, id)
	if err != nil {
		panic(err)
	}
	return name
}

func validID(id string) error {
	if id == "" {
		return fmt.Errorf("empty identifier")
	}
	if strings.ContainsAny(id, "/+#") {
		return fmt.Errorf("identifier %q contains topic separator or wildcard", id)
	}
	return nil
}
