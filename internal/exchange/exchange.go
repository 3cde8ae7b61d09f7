package exchange

import (
	"context"

	"signal-futures-trader/internal/model"
)

// OrderParams 是随订单传递的交易所附加参数
type OrderParams struct {
	ReduceOnly    bool    // 只减仓，用于 TP/SL 和平仓单
	TriggerPrice  float64 // 触发价，仅触发式订单使用
	Slippage      float64 // 允许滑点比例
	Leverage      int     // 本单杠杆
	ClientOrderID string  // 幂等的客户端订单号
}

// Exchange 是交易所能力的通用接口，核心只依赖它，不关心具体实现
// 所有调用都可能阻塞或瞬时失败；重试/限速由实现方负责
type Exchange interface {
	// 查询合约下单规则 (每次执行前重新拉取，不缓存)
	GetMarketInfo(ctx context.Context, symbol string) (model.MarketInfo, error)

	// 查询即时行情
	GetTicker(ctx context.Context, symbol string) (model.Ticker, error)

	// 合约是否可交易
	IsMarketActive(ctx context.Context, symbol string) (bool, error)

	// 查询保证金资产的可用余额
	GetFreeBalance(ctx context.Context, asset string) (float64, error)

	// 为合约设置杠杆
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// 下单，返回订单引用
	CreateOrder(ctx context.Context, symbol, ordType string, side model.Side, amount, price float64, params OrderParams) (*model.OrderRef, error)

	// 撤单
	CancelOrder(ctx context.Context, id, symbol string) error

	// 查询全部持仓快照
	FetchPositions(ctx context.Context) ([]model.Position, error)

	// 市价平掉某合约的持仓
	ClosePosition(ctx context.Context, symbol string) error
}
