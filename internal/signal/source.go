package signal

import (
	"context"

	"signal-futures-trader/internal/model"
)

// Source 是信号来源的通用接口
// 返回的信号已经过边界归一化 (side 为 buy/sell)，每条只消费一次
type Source interface {
	Fetch(ctx context.Context) ([]model.Signal, error)
}

// Defaults 是信号落地前补齐的交易参数
type Defaults struct {
	TargetNotional float64 // 上游未指定名义价值时的默认值
	UseTPSL        bool    // false 时剥掉上游给的 TP/SL 价格
}

// applyDefaults 在信号离开来源层之前补齐/裁剪字段
func applyDefaults(sig model.Signal, d Defaults) model.Signal {
	if sig.TargetNotional <= 0 {
		sig.TargetNotional = d.TargetNotional
	}
	if !d.UseTPSL {
		sig.TakeProfitPrice = 0
		sig.StopLossPrice = 0
	}
	if sig.OrderType == "" {
		sig.OrderType = model.OrderTypeMarket
	}
	return sig
}
