// Package metrics – 批处理周期的 Prometheus 指标
//
// 暴露的主要指标：
//   - trader_signals_total{stage}          各阶段信号数 (generated|deduped|filtered)
//   - trader_positions_opened_total{side}  成功开仓数
//   - trader_positions_closed_total{reason} 平仓数 (signal|stale)
//   - trader_failures_total{reason}        单信号失败数 (按错误类别)
//   - trader_free_balance                  周期开始时的可用保证金快照
//
// 指标在 init() 注册，由 main 按配置启动 /metrics HTTP 端点。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Signals seen per pipeline stage",
		},
		[]string{"stage"},
	)

	PositionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_positions_opened_total",
			Help: "Positions opened from signals",
		},
		[]string{"side"},
	)

	PositionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_positions_closed_total",
			Help: "Positions closed, split by reason",
		},
		[]string{"reason"},
	)

	Failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_failures_total",
			Help: "Per-signal execution failures by error class",
		},
		[]string{"reason"},
	)

	FreeBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_free_balance",
			Help: "Free margin balance at cycle start",
		},
	)
)

func init() {
	prometheus.MustRegister(Signals, PositionsOpened, PositionsClosed, Failures, FreeBalance)
}

// Serve 启动 /metrics 端点，阻塞运行，应放在独立 Goroutine
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
