// Package simulator 本地联调用的机器人车队模拟器
package simulator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/xfn3t/smart-warehouse-sub000/internal/models"
)

type apiResult struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Client 盘点遥测服务 HTTP 客户端
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{httpClient: client, logger: logger}
}

// PostTelemetry 上报一批盘点结果
func (c *Client) PostTelemetry(report *models.TelemetryReport) (*models.IngestResult, error) {
	var res apiResult
	resp, err := c.httpClient.R().
		SetBody(report).
		SetResult(&res).
		SetError(&res).
		Post("/api/v1/robots/telemetry")
	if err != nil {
		return nil, fmt.Errorf("post telemetry: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("telemetry rejected: %s (http %d)", res.Message, resp.StatusCode())
	}

	var out models.IngestResult
	if err := json.Unmarshal(res.Result, &out); err != nil {
		return nil, fmt.Errorf("decode ingest result: %w", err)
	}
	return &out, nil
}

// PostStatus 上报状态心跳
func (c *Client) PostStatus(hb *models.StatusHeartbeat) error {
	var res apiResult
	resp, err := c.httpClient.R().
		SetBody(hb).
		SetResult(&res).
		SetError(&res).
		Post("/api/v1/robots/status")
	if err != nil {
		return fmt.Errorf("post status: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("status rejected: %s (http %d)", res.Message, resp.StatusCode())
	}
	return nil
}
