package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/apperr"
	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

// Ingestor 入库协调器
type Ingestor interface {
	Ingest(ctx context.Context, report *models.TelemetryReport) (*models.IngestResult, error)
	IngestStatus(ctx context.Context, hb *models.StatusHeartbeat) error
}

// IngestHandler 遥测与心跳上报
type IngestHandler struct {
	ingestor Ingestor
	logger   *zap.Logger
}

func NewIngestHandler(ingestor Ingestor, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{ingestor: ingestor, logger: logger}
}

// PostTelemetry POST /api/v1/robots/telemetry
func (h *IngestHandler) PostTelemetry(w http.ResponseWriter, r *http.Request) {
	var report models.TelemetryReport
	if err := readBodyJSON(r, &report); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.ingestor.Ingest(r.Context(), &report)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal || apperr.KindOf(err) == apperr.KindTransientInfra {
			h.logger.Error("Ingest telemetry failed", zap.String("robot_code", report.RobotCode), zap.Error(err))
		} else {
			h.logger.Info("Telemetry rejected", zap.String("robot_code", report.RobotCode), zap.Error(err))
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

// PostStatus POST /api/v1/robots/status
func (h *IngestHandler) PostStatus(w http.ResponseWriter, r *http.Request) {
	var hb models.StatusHeartbeat
	if err := readBodyJSON(r, &hb); err != nil {
		writeError(w, err)
		return
	}

	if err := h.ingestor.IngestStatus(r.Context(), &hb); err != nil {
		h.logger.Info("Status heartbeat rejected", zap.String("robot_code", hb.RobotID), zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "received"}))
}
