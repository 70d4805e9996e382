// Package eventbus 原始事件通道（Redis Streams）和主题树发布
// 入库协调器和心跳任务是同一通道上的两个独立生产者，扇出路由器是唯一的消费者
package eventbus

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "github.com/xfn3t/smart-warehouse-sub000/common/redis"
	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

// StreamProducer 向原始通道写入事件信封
type StreamProducer struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

func NewStreamProducer(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamProducer {
	return &StreamProducer{client: client, stream: stream, maxLen: maxLen, logger: logger}
}

// Publish 失败时返回 TransientInfra
func (p *StreamProducer) Publish(ctx context.Context, ev models.Event) error {
	payload, err := models.EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type(), err)
	}
	id, err := rediscommon.PublishBytesToStream(ctx, p.client, p.stream, payload, p.maxLen)
	if err != nil {
		return apperr.Transient(err, "publish to %s", p.stream)
	}
	p.logger.Debug("Published event to stream",
		zap.String("stream", p.stream),
		zap.String("message_id", id),
		zap.String("event_type", string(ev.Type())),
		zap.String("robot_code", ev.RobotID()),
	)
	return nil
}
