package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "github.com/xfn3t/smart-warehouse-sub000/common/redis"
)

// Handler 处理一条原始负载；返回错误时消息不确认，留在 pending 列表
type Handler func(ctx context.Context, payload []byte) error

// StreamConsumer 以消费者组方式读取原始通道
type StreamConsumer struct {
	client       *redis.Client
	stream       string
	groupName    string
	consumerName string
	batchSize    int64
	block        time.Duration
	logger       *zap.Logger
}

func NewStreamConsumer(client *redis.Client, stream, groupName, consumerName string, batchSize int64, block time.Duration, logger *zap.Logger) *StreamConsumer {
	if batchSize <= 0 {
		batchSize = 50
	}
	if block <= 0 {
		block = 2 * time.Second
	}
	return &StreamConsumer{
		client:       client,
		stream:       stream,
		groupName:    groupName,
		consumerName: consumerName,
		batchSize:    batchSize,
		block:        block,
		logger:       logger,
	}
}

// EnsureGroup 创建消费者组；组从当前末尾开始读，需要在生产者写入前调用
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	return rediscommon.CreateConsumerGroup(ctx, c.client, c.stream, c.groupName)
}

// Start 阻塞直到 ctx 取消
func (c *StreamConsumer) Start(ctx context.Context, handle Handler) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", c.stream),
		zap.String("consumer_group", c.groupName),
		zap.String("consumer_name", c.consumerName),
	)

	// 读取失败时指数退避
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stream consumer stopped")
			return nil
		default:
		}

		if _, err := c.ConsumeOnce(ctx, handle); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume stream",
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = time.Second
	}
}

// ConsumeOnce 读一批并逐条处理，返回成功确认的条数
func (c *StreamConsumer) ConsumeOnce(ctx context.Context, handle Handler) (int, error) {
	messages, err := rediscommon.ReadFromStream(ctx, c.client, c.stream, c.groupName, c.consumerName, c.batchSize, c.block)
	if err != nil {
		return 0, fmt.Errorf("read from stream: %w", err)
	}

	acked := 0
	for _, msg := range messages {
		payload, ok := msg.Data()
		if !ok {
			c.logger.Warn("Stream message without data field, acking",
				zap.String("message_id", msg.ID),
			)
			c.ack(ctx, msg.ID)
			continue
		}
		if err := handle(ctx, payload); err != nil {
			c.logger.Error("Failed to handle stream message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		if c.ack(ctx, msg.ID) {
			acked++
		}
	}
	return acked, nil
}

func (c *StreamConsumer) ack(ctx context.Context, id string) bool {
	if err := rediscommon.Ack(ctx, c.client, c.stream, c.groupName, id); err != nil {
		c.logger.Warn("Failed to ack message",
			zap.String("message_id", id),
			zap.Error(err),
		)
		return false
	}
	return true
}
