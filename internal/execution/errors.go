package execution

import "fmt"

// 错误分类 (均为单信号致命，批处理跳过后继续)：
//   - sizing.ValidationError    输入不合法，永不重试
//   - MarketNotActiveError      合约停牌
//   - TickerFetchError          拿不到有效价格
//   - MarketInfoError           拿不到合约规则
//   - InsufficientBalanceError  保证金不足
//   - DependentOrderError       主单已活，附属单失败，见 Cancelled 字段
// 其余交易所/网络错误不再细分，按基础设施故障向上透传

type MarketNotActiveError struct {
	Symbol string
}

func (e *MarketNotActiveError) Error() string {
	return fmt.Sprintf("market %s is not active", e.Symbol)
}

type TickerFetchError struct {
	Symbol string
	Reason string
}

func (e *TickerFetchError) Error() string {
	return fmt.Sprintf("ticker for %s: %s", e.Symbol, e.Reason)
}

type MarketInfoError struct {
	Symbol string
	Err    error
}

func (e *MarketInfoError) Error() string {
	return fmt.Sprintf("market info for %s: %v", e.Symbol, e.Err)
}

func (e *MarketInfoError) Unwrap() error { return e.Err }

type InsufficientBalanceError struct {
	Asset    string
	Free     float64
	Required float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: %.2f %s free, %.2f required", e.Free, e.Asset, e.Required)
}

// DependentOrderError 表示主单成交后 TP/SL 附属单失败
// Cancelled=true 表示主单已按双失败策略回滚撤销；
// Cancelled=false 表示主单仍然存活 (单边失败的已知风险状态，或撤单本身失败)
type DependentOrderError struct {
	Symbol      string
	MainOrderID string
	Cancelled   bool
	Reason      string
}

func (e *DependentOrderError) Error() string {
	state := "main order remains active"
	if e.Cancelled {
		state = "main order has been cancelled"
	}
	return fmt.Sprintf("dependent orders for %s (main %s): %s; %s", e.Symbol, e.MainOrderID, e.Reason, state)
}
