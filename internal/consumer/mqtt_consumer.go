package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	mqttcommon "github.com/xfn3t/smart-warehouse-sub000/common/mqtt"
	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

// 机器人上行主题
const (
	TelemetryTopic = "robots/+/telemetry"
	StatusTopic    = "robots/+/status"
)

// Subscriber MQTT 订阅端（*mqttcommon.Client）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// Ingestor 入库协调器
type Ingestor interface {
	Ingest(ctx context.Context, report *models.TelemetryReport) (*models.IngestResult, error)
	IngestStatus(ctx context.Context, hb *models.StatusHeartbeat) error
}

// MQTTConsumer 机器人经 MQTT 上报时的入口，和 HTTP 入口走同一个协调器
type MQTTConsumer struct {
	sub      Subscriber
	ingestor Ingestor
	qos      byte
	timeout  time.Duration
	logger   *zap.Logger
}

func NewMQTTConsumer(sub Subscriber, ingestor Ingestor, qos byte, logger *zap.Logger) *MQTTConsumer {
	return &MQTTConsumer{
		sub:      sub,
		ingestor: ingestor,
		qos:      qos,
		timeout:  10 * time.Second,
		logger:   logger,
	}
}

// Start 订阅后阻塞直到 ctx 取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.sub.Subscribe(TelemetryTopic, c.qos, c.handleTelemetry); err != nil {
		return fmt.Errorf("failed to subscribe to telemetry topic: %w", err)
	}
	if err := c.sub.Subscribe(StatusTopic, c.qos, c.handleStatus); err != nil {
		return fmt.Errorf("failed to subscribe to status topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("telemetry_topic", TelemetryTopic),
		zap.String("status_topic", StatusTopic),
	)

	<-ctx.Done()
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop(_ context.Context) error {
	if err := c.sub.Unsubscribe(TelemetryTopic, StatusTopic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
		return err
	}
	c.logger.Info("MQTT consumer stopped")
	return nil
}

// robotFromTopic 主题格式: robots/{robot_code}/{kind}
func robotFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[1] == "" {
		return "", apperr.InvalidArgument("invalid topic format: %s", topic)
	}
	return parts[1], nil
}

func (c *MQTTConsumer) handleTelemetry(topic string, payload []byte) error {
	robot, err := robotFromTopic(topic)
	if err != nil {
		return err
	}

	var report models.TelemetryReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return apperr.InvalidArgument("failed to unmarshal telemetry from %s: %v", topic, err)
	}
	if report.RobotCode == "" {
		report.RobotCode = robot
	}
	if report.RobotCode != robot {
		return apperr.InvalidArgument("robotCode %s does not match topic %s", report.RobotCode, topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	res, err := c.ingestor.Ingest(ctx, &report)
	if err != nil {
		return err
	}
	c.logger.Debug("Ingested telemetry from MQTT",
		zap.String("robot_code", robot),
		zap.Strings("correlation_ids", res.CorrelationIDs),
	)
	return nil
}

func (c *MQTTConsumer) handleStatus(topic string, payload []byte) error {
	robot, err := robotFromTopic(topic)
	if err != nil {
		return err
	}

	var hb models.StatusHeartbeat
	if err := json.Unmarshal(payload, &hb); err != nil {
		return apperr.InvalidArgument("failed to unmarshal status from %s: %v", topic, err)
	}
	if hb.RobotID == "" {
		hb.RobotID = robot
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.ingestor.IngestStatus(ctx, &hb)
}
