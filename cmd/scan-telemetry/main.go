package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/common/logger"
	"github.com/xfn3t/smart-warehouse-sub000/internal/config"
	"github.com/xfn3t/smart-warehouse-sub000/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zl, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "scan-telemetry")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	zl.Info("Starting scan-telemetry service",
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("storage", cfg.Storage),
		zap.String("fanout_transport", cfg.Pipeline.FanoutTransport),
		zap.String("mqtt_broker", cfg.MQTT.Broker),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 创建服务
	scanService, err := service.NewScanService(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to create scan service", zap.Error(err))
	}

	// 启动服务
	if err := scanService.Start(ctx); err != nil {
		zl.Fatal("Failed to start scan service", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zl.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	if err := scanService.Stop(context.Background()); err != nil {
		zl.Error("Error during shutdown", zap.Error(err))
	}

	zl.Info("Service stopped")
}
