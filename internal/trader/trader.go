// Package trader – 批处理周期编排
//
// 一轮周期的固定顺序：
//  1. 拉取持仓快照，先执行超龄强平
//  2. 从信号源取走本周期信号
//  3. 去重 → 过滤同向持仓 → 归类开仓/平仓
//  4. 平仓集逐个市价平掉
//  5. 开仓集按剩余槽位顺序执行，单信号失败跳过不中断
//  6. 汇总结构化报告并推送通知
package trader

import (
	"context"
	"errors"
	"fmt"

	"signal-futures-trader/internal/exchange"
	"signal-futures-trader/internal/execution"
	"signal-futures-trader/internal/metrics"
	"signal-futures-trader/internal/model"
	"signal-futures-trader/internal/notify"
	"signal-futures-trader/internal/portfolio"
	"signal-futures-trader/internal/signal"
	"signal-futures-trader/pkg/sizing"

	"go.uber.org/zap"
)

// Trader 把信号源、组合规则、执行器和通知渠道接成一条批处理流水线
type Trader struct {
	ex           exchange.Exchange
	source       signal.Source
	executor     *execution.TradeExecutor
	stale        *portfolio.StalePolicy
	notifier     notify.Notifier
	leverage     int
	maxPositions int
	marginAsset  string
	logger       *zap.Logger
}

// New 组装批处理流水线
func New(ex exchange.Exchange, source signal.Source, executor *execution.TradeExecutor,
	stale *portfolio.StalePolicy, notifier notify.Notifier,
	leverage, maxPositions int, marginAsset string, logger *zap.Logger) *Trader {
	return &Trader{
		ex:           ex,
		source:       source,
		executor:     executor,
		stale:        stale,
		notifier:     notifier,
		leverage:     leverage,
		maxPositions: maxPositions,
		marginAsset:  marginAsset,
		logger:       logger.With(zap.String("component", "trader")),
	}
}

// RunCycle 执行一轮完整周期并返回结构化报告
// 只有持仓快照/信号源不可用才算周期失败；单信号层面的错误都吸收进报告
func (t *Trader) RunCycle(ctx context.Context) (*model.CycleReport, error) {
	report := &model.CycleReport{}

	if free, err := t.ex.GetFreeBalance(ctx, t.marginAsset); err == nil {
		metrics.FreeBalance.Set(free)
		t.logger.Info("Cycle start", zap.Float64("FreeBalance", free), zap.String("Asset", t.marginAsset))
	}

	positions, err := t.ex.FetchPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}

	// 1. 超龄强平先行，释放的槽位本周期就能用上
	report.StaleClosed = t.stale.CloseStale(ctx, positions)
	if report.StaleClosed > 0 {
		metrics.PositionsClosed.WithLabelValues("stale").Add(float64(report.StaleClosed))
		if positions, err = t.ex.FetchPositions(ctx); err != nil {
			return nil, fmt.Errorf("refreshing positions after stale close: %w", err)
		}
	}

	// 2. 取信号
	signals, err := t.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching signals: %w", err)
	}
	report.Generated = len(signals)
	metrics.Signals.WithLabelValues("generated").Add(float64(len(signals)))

	// 3. 去重 → 过滤 → 归类
	deduped := portfolio.Dedup(signals, t.logger)
	report.AfterDedup = len(deduped)
	metrics.Signals.WithLabelValues("deduped").Add(float64(len(deduped)))

	filtered := portfolio.FilterAgainstPositions(deduped, positions, t.logger)
	report.AfterFilter = len(filtered)
	metrics.Signals.WithLabelValues("filtered").Add(float64(len(filtered)))

	toOpen, toClose := portfolio.Categorize(filtered, positions)
	report.ToOpen = len(toOpen)
	report.ToClose = len(toClose)
	t.logger.Info("Signals categorized",
		zap.Int("Generated", report.Generated),
		zap.Int("AfterDedup", report.AfterDedup),
		zap.Int("AfterFilter", report.AfterFilter),
		zap.Int("ToOpen", report.ToOpen),
		zap.Int("ToClose", report.ToClose))

	// 4. 反向信号平仓，失败只记录
	for _, sig := range toClose {
		if err := t.ex.ClosePosition(ctx, sig.Symbol); err != nil {
			t.logger.Error("Failed to close position on opposite signal",
				zap.String("Symbol", sig.Symbol), zap.Error(err))
			continue
		}
		report.Closed++
		metrics.PositionsClosed.WithLabelValues("signal").Inc()
		t.logger.Info("Closed position on opposite signal", zap.String("Symbol", sig.Symbol))
	}

	// 5. 槽位按平仓后的真实持仓数算一次：本周期释放的仓位立刻可用，
	// 超出槽位的信号直接跳过，失败的尝试也占用槽位
	remaining, err := t.ex.FetchPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("refreshing positions before opening: %w", err)
	}
	slots := t.maxPositions - len(remaining)
	if slots < 0 {
		slots = 0
	}

	attempts := toOpen
	if len(attempts) > slots {
		attempts = toOpen[:slots]
	}

	for _, sig := range attempts {
		outcome := model.SignalOutcome{Symbol: sig.Symbol, Side: sig.Side}

		if _, err := t.executor.Execute(ctx, sig, t.leverage); err != nil {
			outcome.Err = err.Error()
			metrics.Failures.WithLabelValues(failureReason(err)).Inc()
			t.logger.Error("Signal execution failed",
				zap.String("Symbol", sig.Symbol), zap.Error(err))
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}

		outcome.Opened = true
		report.Opened++
		metrics.PositionsOpened.WithLabelValues(string(sig.Side)).Inc()
		report.Outcomes = append(report.Outcomes, outcome)
	}

	for _, sig := range toOpen[len(attempts):] {
		t.logger.Warn("Skipping signal, position slots exhausted",
			zap.String("Symbol", sig.Symbol), zap.Int("MaxPositions", t.maxPositions))
		report.Outcomes = append(report.Outcomes, model.SignalOutcome{
			Symbol: sig.Symbol, Side: sig.Side, Err: "no position slots available"})
	}

	// 6. 通知失败绝不影响周期结果
	if err := t.notifier.Notify(ctx, report.Summary()); err != nil {
		t.logger.Error("Failed to send cycle notification", zap.Error(err))
	}

	t.logger.Info("Cycle done",
		zap.Int("Opened", report.Opened),
		zap.Int("Closed", report.Closed),
		zap.Int("StaleClosed", report.StaleClosed))
	return report, nil
}

// failureReason 把执行错误折叠成指标标签，避免标签基数失控
func failureReason(err error) string {
	var vErr *sizing.ValidationError
	var naErr *execution.MarketNotActiveError
	var tkErr *execution.TickerFetchError
	var miErr *execution.MarketInfoError
	var ibErr *execution.InsufficientBalanceError
	var doErr *execution.DependentOrderError
	switch {
	case errors.As(err, &vErr):
		return "validation"
	case errors.As(err, &naErr):
		return "market_inactive"
	case errors.As(err, &tkErr):
		return "ticker"
	case errors.As(err, &miErr):
		return "market_info"
	case errors.As(err, &ibErr):
		return "balance"
	case errors.As(err, &doErr):
		return "dependent_orders"
	default:
		return "exchange"
	}
}
