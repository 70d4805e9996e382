package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/common/logger"
	"github.com/xfn3t/smart-warehouse-sub000/internal/simulator"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "scan-telemetry base URL")
		robots   = flag.Int("robots", 5, "number of robots (RB-0001..)")
		products = flag.String("products", "TEL-0001,TEL-0002,TEL-0003,TEL-0004", "comma separated product codes")
		zoneMax  = flag.Int("zone-max", 5, "max zone (inclusive)")
		rowMax   = flag.Int("row-max", 10, "max row (inclusive)")
		shelfMax = flag.Int("shelf-max", 8, "max shelf (inclusive)")
		scans    = flag.Int("scans", 3, "scan results per report")
		interval = flag.Duration("interval", 5*time.Second, "report interval")
		seed     = flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
		level    = flag.String("log-level", "info", "log level")
		once     = flag.Bool("once", false, "send a single round and exit")
	)
	flag.Parse()

	zl, err := logger.NewLogger(*level, "console", "robot-simulator")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	fleet := simulator.NewFleet(simulator.FleetConfig{
		Robots:         *robots,
		Products:       strings.Split(*products, ","),
		ZoneMax:        *zoneMax,
		RowMax:         *rowMax,
		ShelfMax:       *shelfMax,
		ScansPerReport: *scans,
		Interval:       *interval,
		Seed:           *seed,
	}, simulator.NewClient(*baseURL, zl), zl)

	if *once {
		sent := fleet.Step()
		zl.Info("Round finished", zap.Int("sent", sent), zap.Int("robots", *robots))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zl.Info("Robot simulator started", zap.String("url", *baseURL), zap.Int("robots", *robots), zap.Duration("interval", *interval))
	if err := fleet.Run(ctx); err != nil {
		zl.Error("Simulator stopped with error", zap.Error(err))
	}
	zl.Info("Robot simulator stopped")
}
