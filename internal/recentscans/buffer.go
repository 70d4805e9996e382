// Package recentscans 每台机器人最近盘点摘要的有界列表（Redis List）
package recentscans

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

// Buffer 新的在左侧；超出 MaxLen 的旧条目被裁掉，每次写入刷新 TTL
type Buffer struct {
	client *redis.Client
	maxLen int64
	ttl    time.Duration
	logger *zap.Logger
}

func NewBuffer(client *redis.Client, maxLen int, ttl time.Duration, logger *zap.Logger) *Buffer {
	if maxLen <= 0 {
		maxLen = 20
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Buffer{client: client, maxLen: int64(maxLen), ttl: ttl, logger: logger}
}

func key(robotCode string) string {
	return fmt.Sprintf("robot:%s:recent_scans", robotCode)
}

// Push 按报告顺序写入一批摘要
func (b *Buffer) Push(ctx context.Context, robotCode string, batch []models.ScanSummary) error {
	if len(batch) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(batch))
	for _, s := range batch {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal scan summary: %w", err)
		}
		values = append(values, string(data))
	}

	k := key(robotCode)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, k, values...)
		pipe.LTrim(ctx, k, 0, b.maxLen-1)
		pipe.Expire(ctx, k, b.ttl)
		return nil
	})
	return err
}

// Chronological 最旧的在前
func (b *Buffer) Chronological(ctx context.Context, robotCode string) ([]models.ScanSummary, error) {
	raw, err := b.client.LRange(ctx, key(robotCode), 0, b.maxLen-1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]models.ScanSummary, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var s models.ScanSummary
		if err := json.Unmarshal([]byte(raw[i]), &s); err != nil {
			b.logger.Warn("Skipping malformed recent scan entry",
				zap.String("robot_code", robotCode),
				zap.Error(err),
			)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
