package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（method + 路径通配）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 /metrics 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterIngestRoutes 机器人上报
func (r *Router) RegisterIngestRoutes(h *IngestHandler) {
	r.Handle("POST /api/v1/robots/telemetry", h.PostTelemetry)
	r.Handle("POST /api/v1/robots/status", h.PostStatus)
}

// RegisterDashboardRoutes 看板查询与重建
func (r *Router) RegisterDashboardRoutes(h *DashboardHandler) {
	r.Handle("GET /api/v1/warehouses/{code}/stats", h.GetStats)
	r.Handle("GET /api/v1/warehouses/{code}/locations/{zone}/{row}/{shelf}/status", h.GetLocationStatus)
	r.Handle("GET /api/v1/robots/{code}/recent-scans", h.GetRecentScans)
	r.Handle("POST /api/v1/warehouses/{code}/counters/rebuild", h.RebuildCounters)
}

// RegisterOpsRoutes 健康检查与指标
func (r *Router) RegisterOpsRoutes() {
	r.Handle("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok("ok"))
	})
	r.HandleHandler("GET /metrics", promhttp.Handler())
}
