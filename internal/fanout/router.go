// Package fanout 原始通道的唯一消费者：解析信封，解析仓库，按主题树转发
package fanout

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/eventbus"
	"github.com/xfn3t/smart-warehouse-sub000/internal/metrics"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
	"github.com/xfn3t/smart-warehouse-sub000/internal/topics"
)

// WarehouseResolver 机器人 -> 仓库
type WarehouseResolver interface {
	Resolve(ctx context.Context, robotCode string) (string, bool)
}

// Router 至少一次、不去重、跨主题不保证原子
type Router struct {
	publisher eventbus.TopicPublisher
	tree      topics.Tree
	resolver  WarehouseResolver
	logger    *zap.Logger
}

func NewRouter(publisher eventbus.TopicPublisher, tree topics.Tree, resolver WarehouseResolver, logger *zap.Logger) *Router {
	return &Router{publisher: publisher, tree: tree, resolver: resolver, logger: logger}
}

// Handle 处理一条原始负载，内部错误只记录，始终返回 nil
func (r *Router) Handle(ctx context.Context, payload []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			metrics.IncSwallowed("router")
			r.logger.Error("Recovered while routing message",
				zap.Any("panic", p),
				zap.ByteString("payload", truncate(payload)),
			)
			err = nil
		}
	}()

	ev := models.DecodeEvent(payload)
	r.Route(ctx, ev, payload)
	return nil
}

// Route 转发原始字节；负载保持不变
func (r *Router) Route(ctx context.Context, ev models.Event, payload []byte) {
	r.publish(ctx, topics.Global, "", payload)

	switch e := ev.(type) {
	case models.Raw:
		return
	case models.LocationUpdate:
		r.publish(ctx, topics.GlobalLocations, "", payload)
		if wh, ok := r.warehouseOf(ctx, e); ok {
			r.publish(ctx, topics.WarehouseLocations, wh, payload)
		}
	default:
		if robot := ev.RobotID(); robot != "" {
			r.publish(ctx, topics.Robot, robot, payload)
		}
		if wh, ok := r.warehouseOf(ctx, ev); ok {
			r.publish(ctx, topics.Warehouse, wh, payload)
		}
	}
}

// DeliverDirect 原始通道不可用时的降级路径：只发全局和单机器人主题
func (r *Router) DeliverDirect(ctx context.Context, ev models.Event) error {
	payload, err := models.EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type(), err)
	}
	r.publish(ctx, topics.Global, "", payload)
	if robot := ev.RobotID(); robot != "" {
		r.publish(ctx, topics.Robot, robot, payload)
	}
	return nil
}

func (r *Router) warehouseOf(ctx context.Context, ev models.Event) (string, bool) {
	if wh := ev.WarehouseCode(); wh != "" {
		return wh, true
	}
	if robot := ev.RobotID(); robot != "" && r.resolver != nil {
		return r.resolver.Resolve(ctx, robot)
	}
	return "", false
}

func (r *Router) publish(ctx context.Context, kind topics.Kind, id string, payload []byte) {
	topic, err := r.tree.Name(kind, id)
	if err != nil {
		metrics.IncSwallowed("router")
		r.logger.Warn("Skipping malformed topic", zap.Error(err))
		return
	}
	if err := r.publisher.PublishTopic(ctx, topic, payload); err != nil {
		metrics.IncSwallowed("router")
		r.logger.Warn("Failed to publish to topic",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}
	metrics.IncFanout(kind.String())
}

func truncate(b []byte) []byte {
	const maxLogged = 512
	if len(b) > maxLogged {
		return b[:maxLogged]
	}
	return b
}
