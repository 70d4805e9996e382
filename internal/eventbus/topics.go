package eventbus

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/xfn3t/smart-warehouse-sub000/common/mqtt"
)

// TopicPublisher 主题树传输
type TopicPublisher interface {
	PublishTopic(ctx context.Context, topic string, payload []byte) error
}

// MQTTTopicPublisher 经 MQTT Broker 发布
type MQTTTopicPublisher struct {
	client *mqtt.Client
}

func NewMQTTTopicPublisher(client *mqtt.Client) *MQTTTopicPublisher {
	return &MQTTTopicPublisher{client: client}
}

func (p *MQTTTopicPublisher) PublishTopic(_ context.Context, topic string, payload []byte) error {
	return p.client.Publish(topic, p.client.QoS(), false, payload)
}

// RedisTopicPublisher 经 Redis Pub/Sub 发布，频道名与 MQTT 主题名相同
type RedisTopicPublisher struct {
	client *redis.Client
}

func NewRedisTopicPublisher(client *redis.Client) *RedisTopicPublisher {
	return &RedisTopicPublisher{client: client}
}

func (p *RedisTopicPublisher) PublishTopic(ctx context.Context, topic string, payload []byte) error {
	return p.client.Publish(ctx, topic, payload).Err()
}
