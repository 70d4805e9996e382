package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "scan_telemetry_"

	ResultSuccess         = "success"
	ResultNotFound        = "not_found"
	ResultInvalidArgument = "invalid_argument"
	ResultError           = "error"
)

var (
	registerOnce sync.Once

	ingestReports  *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec
	historyWritten prometheus.Counter

	fanoutMessages *prometheus.CounterVec
	sweeps         *prometheus.CounterVec
	swallowed      *prometheus.CounterVec
)

// Init 注册指标（多次调用只注册一次）
func Init() {
	registerOnce.Do(func() {
		ingestReports = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_reports_total",
				Help: "Total telemetry reports by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Telemetry ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		historyWritten = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "history_records_total",
				Help: "Total inventory history records committed",
			},
		)
		fanoutMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fanout_messages_total",
				Help: "Total fan-out publishes by route",
			},
			[]string{"route"},
		)
		sweeps = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweeps_total",
				Help: "Total periodic sweeps by job",
			},
			[]string{"job"},
		)
		swallowed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "swallowed_failures_total",
				Help: "Failures logged and skipped, by component",
			},
			[]string{"component"},
		)

		prometheus.MustRegister(
			ingestReports,
			ingestLatency,
			historyWritten,
			fanoutMessages,
			sweeps,
			swallowed,
		)
	})
}

// ObserveIngest 记录一次入库结果和耗时
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if ingestReports != nil {
		ingestReports.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

func AddHistoryRecords(n int) {
	if historyWritten != nil && n > 0 {
		historyWritten.Add(float64(n))
	}
}

// IncFanout route 取主题种类，如 global / robot / warehouse_locations
func IncFanout(route string) {
	if fanoutMessages != nil {
		fanoutMessages.WithLabelValues(route).Inc()
	}
}

func IncSweep(job string) {
	if sweeps != nil {
		sweeps.WithLabelValues(job).Inc()
	}
}

// IncSwallowed 被记录并跳过的失败
func IncSwallowed(component string) {
	if swallowed != nil {
		swallowed.WithLabelValues(component).Inc()
	}
}
