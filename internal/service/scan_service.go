package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/common/database"
	mqttcommon "github.com/xfn3t/smart-warehouse-sub000/common/mqtt"
	rediscommon "github.com/xfn3t/smart-warehouse-sub000/common/redis"
	"github.com/xfn3t/smart-warehouse-sub000/internal/config"
	"github.com/xfn3t/smart-warehouse-sub000/internal/consumer"
	"github.com/xfn3t/smart-warehouse-sub000/internal/counters"
	"github.com/xfn3t/smart-warehouse-sub000/internal/eventbus"
	"github.com/xfn3t/smart-warehouse-sub000/internal/fanout"
	"github.com/xfn3t/smart-warehouse-sub000/internal/heartbeat"
	"github.com/xfn3t/smart-warehouse-sub000/internal/httpapi"
	"github.com/xfn3t/smart-warehouse-sub000/internal/ingest"
	"github.com/xfn3t/smart-warehouse-sub000/internal/metrics"
	"github.com/xfn3t/smart-warehouse-sub000/internal/recentscans"
	"github.com/xfn3t/smart-warehouse-sub000/internal/repository"
	"github.com/xfn3t/smart-warehouse-sub000/internal/resolver"
	"github.com/xfn3t/smart-warehouse-sub000/internal/snapshot"
	"github.com/xfn3t/smart-warehouse-sub000/internal/staleness"
	"github.com/xfn3t/smart-warehouse-sub000/internal/topics"
)

// ScanService 盘点遥测服务：HTTP/MQTT 入口、原始通道路由、心跳、货位巡检、看板快照
type ScanService struct {
	config *config.Config
	logger *zap.Logger

	db         *sql.DB
	memory     *repository.MemoryStore
	redis      *redis.Client
	mqttClient *mqttcommon.Client

	handler        http.Handler
	server         *Server
	coordinator    *ingest.Coordinator
	streamConsumer *eventbus.StreamConsumer
	router         *fanout.Router
	heartbeat      *heartbeat.Publisher
	sweeper        *staleness.Sweeper
	snapshot       *snapshot.Publisher
	mqttConsumer   *consumer.MQTTConsumer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScanService 建立连接并装配组件，不启动任何循环
func NewScanService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ScanService, error) {
	metrics.Init()

	s := &ScanService{config: cfg, logger: logger}
	p := cfg.Pipeline

	// 存储
	var (
		repos repository.Repositories
		uow   repository.UnitOfWork
	)
	switch cfg.Storage {
	case "memory":
		logger.Warn("Using in-memory storage, data is lost on restart")
		s.memory = repository.NewMemoryStore()
		repos, uow = s.memory.Repositories(), s.memory
	default:
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		repos = repository.NewPostgresRepositories(db)
		uow = repository.NewPostgresUnitOfWork(db, logger)
	}

	// Redis
	s.redis = rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(ctx, s.redis); err != nil {
		s.closeConnections()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// MQTT（主题发布或入站订阅需要时才连接）
	if p.FanoutTransport == "mqtt" || p.InboundMQTT {
		client, err := mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			s.closeConnections()
			return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
		}
		s.mqttClient = client
	}

	var transport eventbus.TopicPublisher
	if p.FanoutTransport == "mqtt" {
		transport = eventbus.NewMQTTTopicPublisher(s.mqttClient)
	} else {
		transport = eventbus.NewRedisTopicPublisher(s.redis)
	}

	loc, err := p.Location()
	if err != nil {
		s.closeConnections()
		return nil, err
	}

	tree := topics.NewTree(p.TopicPrefix)
	classifier := staleness.NewClassifier(staleness.Options{
		RecentThreshold: p.RecentThreshold,
		MediumThreshold: p.MediumThreshold,
		Window:          p.StalenessWindow,
	})
	counterStore := counters.NewStore(s.redis, counters.Options{
		ActivityTTL:     p.ActivityTTL,
		CheckedTodayTTL: p.CheckedTodayTTL,
		Timezone:        loc,
	}, logger)
	recent := recentscans.NewBuffer(s.redis, p.RecentScansMax, p.RecentScansTTL, logger)
	warehouseCache := resolver.NewResolver(resolver.NewRedisKVStore(s.redis), repos.Robots, p.ResolutionTTL, logger)
	producer := eventbus.NewStreamProducer(s.redis, p.Stream, p.StreamMaxLen, logger)

	s.router = fanout.NewRouter(transport, tree, warehouseCache, logger)
	s.streamConsumer = eventbus.NewStreamConsumer(s.redis, p.Stream, p.ConsumerGroup, p.ConsumerName, 50, 2*time.Second, logger)
	s.coordinator = ingest.NewCoordinator(uow, classifier, counterStore, recent, producer, s.router, logger)
	s.heartbeat = heartbeat.NewPublisher(repos.Robots, recent, producer, p.HeartbeatInterval, logger)
	s.sweeper = staleness.NewSweeper(repos, classifier, producer, p.SweepInterval, logger)
	s.snapshot = snapshot.NewPublisher(repos.Warehouses, counterStore, transport, tree, p.SnapshotInterval, logger)
	if p.InboundMQTT {
		s.mqttConsumer = consumer.NewMQTTConsumer(s.mqttClient, s.coordinator, cfg.MQTT.QoS, logger)
	}

	// HTTP
	r := httpapi.NewRouter(logger)
	r.RegisterIngestRoutes(httpapi.NewIngestHandler(s.coordinator, logger))
	r.RegisterDashboardRoutes(httpapi.NewDashboardHandler(httpapi.DashboardDeps{
		Repos:      repos,
		Stats:      counterStore,
		Counters:   counterStore,
		Resolver:   warehouseCache,
		Classifier: classifier,
		Recent:     recent,
	}, logger))
	r.RegisterOpsRoutes()
	s.handler = r
	s.server = NewServer(cfg.HTTP.Addr, r, logger)

	return s, nil
}

// Handler HTTP 路由
func (s *ScanService) Handler() http.Handler { return s.handler }

// Memory 仅 memory 存储模式下非 nil，用于联调时预置数据
func (s *ScanService) Memory() *repository.MemoryStore { return s.memory }

// Start 启动各后台循环和 HTTP 服务，立即返回
func (s *ScanService) Start(ctx context.Context) error {
	s.logger.Info("Starting scan service components")

	// 消费组必须先于第一条事件建立
	if err := s.streamConsumer.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.run("fanout-router", func() error { return s.streamConsumer.Start(runCtx, s.router.Handle) })
	s.run("heartbeat", func() error { return s.heartbeat.Start(runCtx) })
	s.run("staleness-sweeper", func() error { return s.sweeper.Start(runCtx) })
	s.run("dashboard-snapshot", func() error { return s.snapshot.Start(runCtx) })
	if s.mqttConsumer != nil {
		s.run("mqtt-consumer", func() error { return s.mqttConsumer.Start(runCtx) })
	}
	s.run("http", func() error {
		if err := s.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	s.logger.Info("Scan service started successfully")
	return nil
}

func (s *ScanService) run(name string, fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(); err != nil {
			s.logger.Error("Component exited with error", zap.String("component", name), zap.Error(err))
		}
	}()
}

// Stop 停止服务
func (s *ScanService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scan service")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.server.Stop(shutdownCtx); err != nil {
		s.logger.Error("Error stopping HTTP server", zap.Error(err))
	}
	if s.mqttConsumer != nil {
		if err := s.mqttConsumer.Stop(shutdownCtx); err != nil {
			s.logger.Error("Error stopping MQTT consumer", zap.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.closeConnections()
	s.logger.Info("Scan service stopped")
	return nil
}

func (s *ScanService) closeConnections() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redis != nil {
		_ = rediscommon.Close(s.redis)
	}
	if s.db != nil {
		_ = database.Close(s.db)
	}
}
