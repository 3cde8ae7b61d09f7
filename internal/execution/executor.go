package execution

import (
	"context"
	"fmt"

	"signal-futures-trader/internal/exchange"
	"signal-futures-trader/internal/model"
	"signal-futures-trader/pkg/sizing"

	"go.uber.org/zap"
)

// 编排步骤常量，写进日志和错误上下文
// 顺序即状态机：validating → sizing → balance_check → leverage_set
// → main_order → dependent_orders → done
const (
	stepValidating = "validating"
	stepSizing     = "sizing"
	stepBalance    = "balance_check"
	stepLeverage   = "leverage_set"
	stepMainOrder  = "main_order"
	stepDependents = "dependent_orders"
)

// TradeExecutor 是单信号交易编排器：主单 + 可选 TP/SL 附属单
// 短生命周期，每次 Execute 都重新拉取行情与合约规则
type TradeExecutor struct {
	ex          exchange.Exchange
	marginAsset string
	logger      *zap.Logger
}

// NewTradeExecutor 初始化编排器
func NewTradeExecutor(ex exchange.Exchange, marginAsset string, logger *zap.Logger) *TradeExecutor {
	return &TradeExecutor{
		ex:          ex,
		marginAsset: marginAsset,
		logger:      logger.With(zap.String("component", "executor")),
	}
}

// Execute 对一条已归一化的信号执行完整编排
// 任何一步失败都返回类型化错误；附属单双失败会回滚主单
func (t *TradeExecutor) Execute(ctx context.Context, sig model.Signal, leverage int) (*model.TradeResult, error) {
	logger := t.logger.With(zap.String("Symbol", sig.Symbol), zap.String("Side", string(sig.Side)))
	logger.Info("Executing trade", zap.String("Signal", sig.String()))

	// 1. 合约可交易检查
	active, err := t.ex.IsMarketActive(ctx, sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%s for %s: %w", stepValidating, sig.Symbol, err)
	}
	if !active {
		return nil, &MarketNotActiveError{Symbol: sig.Symbol}
	}

	// 2. 行情快照，本次编排内只取这一次
	ticker, err := t.ex.GetTicker(ctx, sig.Symbol)
	if err != nil {
		return nil, &TickerFetchError{Symbol: sig.Symbol, Reason: err.Error()}
	}
	currentPrice := ticker.CurrentPrice()
	if currentPrice <= 0 {
		return nil, &TickerFetchError{
			Symbol: sig.Symbol,
			Reason: fmt.Sprintf("no positive price (last=%v ask=%v)", ticker.Last, ticker.Ask),
		}
	}

	// 3. TP/SL 必须在当前价的正确一侧，下单前拦截
	if err := validateProtectivePrices(sig, currentPrice); err != nil {
		return nil, err
	}

	// 4. 合约规则 + 数量推导
	info, err := t.ex.GetMarketInfo(ctx, sig.Symbol)
	if err != nil {
		return nil, &MarketInfoError{Symbol: sig.Symbol, Err: err}
	}

	minViable, err := sizing.MinOrderAmount(sig.Symbol, currentPrice, info, leverage, logger)
	if err != nil {
		return nil, err
	}

	var amount float64
	if sig.TargetNotional > 0 {
		amount = sizing.ToBaseAmount(sig.TargetNotional, currentPrice, info.PrecisionAmount, minViable, sig.Symbol, logger)
	} else {
		logger.Info("No target notional, using minimum viable amount", zap.Float64("MinViable", minViable))
		amount = minViable
	}

	// 5. 滑点与成本估算
	slippage := sizing.EstimateSlippage(ticker.Bid, ticker.Ask, currentPrice)
	notionalCost := amount * currentPrice * (1 + slippage)
	requiredMargin := notionalCost / float64(leverage)
	logger.Info("Cost estimate",
		zap.String("Step", stepSizing),
		zap.Float64("Amount", amount),
		zap.Float64("Price", currentPrice),
		zap.Float64("Slippage", slippage),
		zap.Float64("NotionalCost", notionalCost),
		zap.Float64("RequiredMargin", requiredMargin))

	// 6. 保证金余额检查
	free, err := t.ex.GetFreeBalance(ctx, t.marginAsset)
	if err != nil {
		return nil, fmt.Errorf("%s for %s: %w", stepBalance, sig.Symbol, err)
	}
	if free < requiredMargin {
		return nil, &InsufficientBalanceError{Asset: t.marginAsset, Free: free, Required: requiredMargin}
	}
	logger.Info("Balance check passed", zap.Float64("Free", free), zap.Float64("Required", requiredMargin))

	// 7. 设置杠杆
	if err := t.ex.SetLeverage(ctx, sig.Symbol, leverage); err != nil {
		return nil, fmt.Errorf("%s for %s: %w", stepLeverage, sig.Symbol, err)
	}

	// 8. 主单：市价单也带价格 (部分交易所要求)
	orderType := sig.OrderType
	if orderType == "" {
		orderType = model.OrderTypeMarket
	}
	mainRef, err := t.ex.CreateOrder(ctx, sig.Symbol, orderType, sig.Side, amount, currentPrice, exchange.OrderParams{
		Slippage: slippage,
		Leverage: leverage,
	})
	if err != nil {
		return nil, fmt.Errorf("%s for %s: %w", stepMainOrder, sig.Symbol, err)
	}
	logger.Info("Main order placed", zap.String("OrderID", mainRef.ID), zap.Float64("Amount", amount))

	result := &model.TradeResult{MainOrder: mainRef}
	if mainRef.ID == "" {
		// 没有订单号就无从挂附属单，照原样返回
		logger.Warn("Main order accepted without an identifier, skipping dependent orders")
		return result, nil
	}

	// 9. 附属单互相独立，各自失败只记录不中断
	if err := t.placeDependents(ctx, sig, amount, mainRef, result, logger); err != nil {
		return nil, err
	}

	logger.Info("Trade execution done",
		zap.String("MainOrderID", mainRef.ID),
		zap.Bool("HasStopLoss", result.StopLossOrder != nil),
		zap.Bool("HasTakeProfit", result.TakeProfitOrder != nil))
	return result, nil
}

// validateProtectivePrices 校验 TP/SL 与当前价的相对位置
func validateProtectivePrices(sig model.Signal, currentPrice float64) error {
	if sig.Side == model.SideBuy {
		if sig.TakeProfitPrice > 0 && sig.TakeProfitPrice <= currentPrice {
			return &sizing.ValidationError{Reason: fmt.Sprintf(
				"buy take profit %v must exceed current price %v", sig.TakeProfitPrice, currentPrice)}
		}
		if sig.StopLossPrice > 0 && sig.StopLossPrice >= currentPrice {
			return &sizing.ValidationError{Reason: fmt.Sprintf(
				"buy stop loss %v must be below current price %v", sig.StopLossPrice, currentPrice)}
		}
		return nil
	}
	if sig.TakeProfitPrice > 0 && sig.TakeProfitPrice >= currentPrice {
		return &sizing.ValidationError{Reason: fmt.Sprintf(
			"sell take profit %v must be below current price %v", sig.TakeProfitPrice, currentPrice)}
	}
	if sig.StopLossPrice > 0 && sig.StopLossPrice <= currentPrice {
		return &sizing.ValidationError{Reason: fmt.Sprintf(
			"sell stop loss %v must exceed current price %v", sig.StopLossPrice, currentPrice)}
	}
	return nil
}

// placeDependents 挂 TP/SL 并按失败组合决定是否回滚主单：
// 双请求双失败 → 撤主单后报错 (不留裸仓)；
// 单边失败 → 报错但主单保留 (方向正确的已知风险状态，不自动撤)
func (t *TradeExecutor) placeDependents(ctx context.Context, sig model.Signal, amount float64, mainRef *model.OrderRef, result *model.TradeResult, logger *zap.Logger) error {
	slRequested := sig.StopLossPrice > 0
	tpRequested := sig.TakeProfitPrice > 0
	if !slRequested && !tpRequested {
		return nil
	}

	opposite := sig.Side.Opposite()
	var slErr, tpErr error

	if slRequested {
		// 触发式止损：反向、只减仓、数量 0 (交易所按持仓全量触发的约定)
		var slRef *model.OrderRef
		slRef, slErr = t.ex.CreateOrder(ctx, sig.Symbol, model.OrderTypeStopMarket, opposite, 0, sig.StopLossPrice, exchange.OrderParams{
			ReduceOnly:   true,
			TriggerPrice: sig.StopLossPrice,
		})
		if slErr != nil {
			logger.Error("Stop loss placement failed", zap.String("Step", stepDependents), zap.Error(slErr))
		} else {
			result.StopLossOrder = slRef
			logger.Info("Stop loss placed", zap.String("OrderID", slRef.ID), zap.Float64("Trigger", sig.StopLossPrice))
		}
	}

	if tpRequested {
		// 止盈限价单：反向、只减仓、数量与主单一致
		var tpRef *model.OrderRef
		tpRef, tpErr = t.ex.CreateOrder(ctx, sig.Symbol, model.OrderTypeLimit, opposite, amount, sig.TakeProfitPrice, exchange.OrderParams{
			ReduceOnly: true,
		})
		if tpErr != nil {
			logger.Error("Take profit placement failed", zap.String("Step", stepDependents), zap.Error(tpErr))
		} else {
			result.TakeProfitOrder = tpRef
			logger.Info("Take profit placed", zap.String("OrderID", tpRef.ID), zap.Float64("Price", sig.TakeProfitPrice))
		}
	}

	if slRequested && tpRequested && slErr != nil && tpErr != nil {
		logger.Warn("Both dependent orders failed, cancelling main order", zap.String("MainOrderID", mainRef.ID))
		if cancelErr := t.ex.CancelOrder(ctx, mainRef.ID, sig.Symbol); cancelErr != nil {
			logger.Error("Main order cancellation failed", zap.Error(cancelErr))
			return &DependentOrderError{
				Symbol:      sig.Symbol,
				MainOrderID: mainRef.ID,
				Cancelled:   false,
				Reason:      fmt.Sprintf("both TP and SL failed and cancellation also failed: %v", cancelErr),
			}
		}
		return &DependentOrderError{
			Symbol:      sig.Symbol,
			MainOrderID: mainRef.ID,
			Cancelled:   true,
			Reason:      "both take profit and stop loss placements failed",
		}
	}

	if slErr != nil {
		return &DependentOrderError{Symbol: sig.Symbol, MainOrderID: mainRef.ID, Reason: fmt.Sprintf("stop loss placement failed: %v", slErr)}
	}
	if tpErr != nil {
		return &DependentOrderError{Symbol: sig.Symbol, MainOrderID: mainRef.ID, Reason: fmt.Sprintf("take profit placement failed: %v", tpErr)}
	}
	return nil
}
