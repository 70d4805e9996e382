package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xfn3t/smart-warehouse-sub000/common/config"
)

// Config 盘点遥测服务配置
// 加载顺序：默认值 -> SCAN_CONFIG 指向的 YAML 文件 -> 环境变量
type Config struct {
	Database config.DatabaseConfig `yaml:"database"`
	Redis    config.RedisConfig    `yaml:"redis"`
	MQTT     config.MQTTConfig     `yaml:"mqtt"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	// Storage postgres / memory（memory 仅用于本地联调）
	Storage string `yaml:"storage"`

	Pipeline PipelineConfig `yaml:"pipeline"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// PipelineConfig 入库链路可调参数
type PipelineConfig struct {
	RecentThreshold time.Duration `yaml:"recent_threshold"`
	MediumThreshold time.Duration `yaml:"medium_threshold"`
	StalenessWindow int           `yaml:"staleness_window"`

	RecentScansMax int           `yaml:"recent_scans_max"`
	RecentScansTTL time.Duration `yaml:"recent_scans_ttl"`

	ResolutionTTL   time.Duration `yaml:"resolution_ttl"`
	ActivityTTL     time.Duration `yaml:"activity_ttl"`
	CheckedTodayTTL time.Duration `yaml:"checked_today_ttl"`
	Timezone        string        `yaml:"timezone"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`

	Stream        string `yaml:"stream"`
	StreamMaxLen  int64  `yaml:"stream_max_len"`
	ConsumerGroup string `yaml:"consumer_group"`
	ConsumerName  string `yaml:"consumer_name"`

	// FanoutTransport mqtt / redis
	FanoutTransport string `yaml:"fanout_transport"`
	TopicPrefix     string `yaml:"topic_prefix"`
	// InboundMQTT 是否订阅 robots/+/telemetry 和 robots/+/status
	InboundMQTT bool `yaml:"inbound_mqtt"`
}

// Location 解析时区
func (p *PipelineConfig) Location() (*time.Location, error) {
	return time.LoadLocation(p.Timezone)
}

func defaults() *Config {
	cfg := &Config{}

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "warehouse"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 20
	cfg.Database.MaxIdle = 5

	cfg.Redis.Addr = "localhost:6379"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "scan-telemetry"
	cfg.MQTT.QoS = 1
	cfg.MQTT.ConnectTimeout = 10 * time.Second

	cfg.HTTP.Addr = ":8080"
	cfg.Storage = "postgres"

	cfg.Pipeline = PipelineConfig{
		RecentThreshold:   15 * time.Minute,
		MediumThreshold:   120 * time.Minute,
		StalenessWindow:   5,
		RecentScansMax:    20,
		RecentScansTTL:    24 * time.Hour,
		ResolutionTTL:     time.Hour,
		ActivityTTL:       time.Hour,
		CheckedTodayTTL:   72 * time.Hour,
		Timezone:          "UTC",
		HeartbeatInterval: 5 * time.Second,
		SweepInterval:     60 * time.Second,
		SnapshotInterval:  2 * time.Second,
		Stream:            "scan:events:stream",
		StreamMaxLen:      100000,
		ConsumerGroup:     "fanout-router",
		ConsumerName:      "fanout-1",
		FanoutTransport:   "mqtt",
		TopicPrefix:       "warehouse",
		InboundMQTT:       true,
	}

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("SCAN_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// 环境变量覆盖
	cfg.Database.LoadFromEnv("DB")
	cfg.Redis.LoadFromEnv("REDIS")
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.HTTP.Addr = getEnv("SCAN_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Storage = getEnv("SCAN_STORAGE", cfg.Storage)

	p := &cfg.Pipeline
	p.RecentThreshold = getDuration("SCAN_RECENT_THRESHOLD", p.RecentThreshold)
	p.MediumThreshold = getDuration("SCAN_MEDIUM_THRESHOLD", p.MediumThreshold)
	p.StalenessWindow = getInt("SCAN_STALENESS_WINDOW", p.StalenessWindow)
	p.RecentScansMax = getInt("SCAN_RECENT_SCANS_MAX", p.RecentScansMax)
	p.RecentScansTTL = getDuration("SCAN_RECENT_SCANS_TTL", p.RecentScansTTL)
	p.ResolutionTTL = getDuration("SCAN_RESOLUTION_TTL", p.ResolutionTTL)
	p.ActivityTTL = getDuration("SCAN_ACTIVITY_TTL", p.ActivityTTL)
	p.CheckedTodayTTL = getDuration("SCAN_CHECKED_TODAY_TTL", p.CheckedTodayTTL)
	p.Timezone = getEnv("SCAN_TIMEZONE", p.Timezone)
	p.HeartbeatInterval = getDuration("SCAN_HEARTBEAT_INTERVAL", p.HeartbeatInterval)
	p.SweepInterval = getDuration("SCAN_SWEEP_INTERVAL", p.SweepInterval)
	p.SnapshotInterval = getDuration("SCAN_SNAPSHOT_INTERVAL", p.SnapshotInterval)
	p.Stream = getEnv("SCAN_STREAM", p.Stream)
	p.ConsumerGroup = getEnv("SCAN_CONSUMER_GROUP", p.ConsumerGroup)
	p.ConsumerName = getEnv("SCAN_CONSUMER_NAME", p.ConsumerName)
	p.FanoutTransport = getEnv("SCAN_FANOUT_TRANSPORT", p.FanoutTransport)
	p.TopicPrefix = getEnv("SCAN_TOPIC_PREFIX", p.TopicPrefix)
	if v := os.Getenv("SCAN_INBOUND_MQTT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			p.InboundMQTT = b
		}
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查互相依赖的参数
func (c *Config) Validate() error {
	switch c.Storage {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage must be postgres or memory, got %q", c.Storage)
	}
	switch c.Pipeline.FanoutTransport {
	case "mqtt", "redis":
	default:
		return fmt.Errorf("fanout_transport must be mqtt or redis, got %q", c.Pipeline.FanoutTransport)
	}
	if c.Pipeline.RecentThreshold > c.Pipeline.MediumThreshold {
		return fmt.Errorf("recent_threshold %s exceeds medium_threshold %s", c.Pipeline.RecentThreshold, c.Pipeline.MediumThreshold)
	}
	if _, err := c.Pipeline.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Pipeline.Timezone, err)
	}
	if c.Pipeline.Stream == "" {
		return fmt.Errorf("stream name is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
