package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
	"github.com/xfn3t/smart-warehouse-sub000/internal/repository"
	"github.com/xfn3t/smart-warehouse-sub000/internal/staleness"
)

type StatsReader interface {
	GetStats(ctx context.Context, warehouseCode string) models.WarehouseStats
}

// CounterRebuilder Rebuild 先清空再重放
type CounterRebuilder interface {
	Rebuild(ctx context.Context, warehouseCode string, history []*models.InventoryHistoryRecord, robots []*models.Robot) error
}

type ResolverRebuilder interface {
	Rebuild(ctx context.Context, robots []*models.Robot) error
}

type LocationClassifier interface {
	ComputeFor(ctx context.Context, history staleness.HistoryReader, warehouseCode string, loc *models.Location) (models.LocationStatus, error)
}

type RecentScansReader interface {
	Chronological(ctx context.Context, robotCode string) ([]models.ScanSummary, error)
}

// DashboardDeps 看板依赖
type DashboardDeps struct {
	Repos      repository.Repositories
	Stats      StatsReader
	Counters   CounterRebuilder
	Resolver   ResolverRebuilder
	Classifier LocationClassifier
	Recent     RecentScansReader
}

// DashboardHandler 看板只读接口 + 计数重建
type DashboardHandler struct {
	deps   DashboardDeps
	logger *zap.Logger
}

func NewDashboardHandler(deps DashboardDeps, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{deps: deps, logger: logger}
}

// GetStats GET /api/v1/warehouses/{code}/stats
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	code, err := requirePath(r, "code")
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.deps.Repos.Warehouses.GetByCode(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.deps.Stats.GetStats(r.Context(), code)))
}

// GetLocationStatus 按需计算单个货位的新鲜度
func (h *DashboardHandler) GetLocationStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code, err := requirePath(r, "code")
	if err != nil {
		writeError(w, err)
		return
	}
	var c models.Coordinate
	for _, p := range []struct {
		name string
		dst  *int
	}{{"zone", &c.Zone}, {"row", &c.Row}, {"shelf", &c.Shelf}} {
		if *p.dst, err = pathInt(r, p.name); err != nil {
			writeError(w, err)
			return
		}
	}

	wh, err := h.deps.Repos.Warehouses.GetByCode(ctx, code)
	if err != nil {
		writeError(w, err)
		return
	}
	loc, err := h.deps.Repos.Locations.Get(ctx, wh.ID, c)
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := h.deps.Classifier.ComputeFor(ctx, h.deps.Repos.History, wh.Code, loc)
	if err != nil {
		h.logger.Error("Compute location status failed",
			zap.String("warehouse_code", wh.Code), zap.Int64("location_id", loc.ID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(status))
}

// GetRecentScans GET /api/v1/robots/{code}/recent-scans，按时间正序
func (h *DashboardHandler) GetRecentScans(w http.ResponseWriter, r *http.Request) {
	code, err := requirePath(r, "code")
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.deps.Repos.Robots.GetByCode(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}
	scans, err := h.deps.Recent.Chronological(r.Context(), code)
	if err != nil {
		h.logger.Warn("Read recent scans failed", zap.String("robot_code", code), zap.Error(err))
		scans = nil
	}
	if scans == nil {
		scans = []models.ScanSummary{}
	}
	writeJSON(w, http.StatusOK, Ok(scans))
}

type rebuildResult struct {
	WarehouseCode   string `json:"warehouseCode"`
	HistoryReplayed int    `json:"historyReplayed"`
	Robots          int    `json:"robots"`
}

// RebuildCounters 从数据库重放计数和机器人仓库缓存
func (h *DashboardHandler) RebuildCounters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code, err := requirePath(r, "code")
	if err != nil {
		writeError(w, err)
		return
	}
	wh, err := h.deps.Repos.Warehouses.GetByCode(ctx, code)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := h.deps.Repos.History.ListByWarehouse(ctx, wh.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	robots, err := h.deps.Repos.Robots.ListByWarehouse(ctx, wh.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.deps.Counters.Rebuild(ctx, wh.Code, history, robots); err != nil {
		h.logger.Error("Rebuild counters failed", zap.String("warehouse_code", wh.Code), zap.Error(err))
		writeError(w, apperr.Transient(err, "rebuild counters for %s", wh.Code))
		return
	}
	if h.deps.Resolver != nil {
		if err := h.deps.Resolver.Rebuild(ctx, robots); err != nil {
			h.logger.Warn("Rebuild warehouse cache failed", zap.String("warehouse_code", wh.Code), zap.Error(err))
		}
	}

	h.logger.Info("Counters rebuilt",
		zap.String("warehouse_code", wh.Code), zap.Int("history", len(history)), zap.Int("robots", len(robots)))
	writeJSON(w, http.StatusOK, Ok(rebuildResult{WarehouseCode: wh.Code, HistoryReplayed: len(history), Robots: len(robots)}))
}
