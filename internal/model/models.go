package model

import "time"

// Ticker 代表某个合约的即时行情快照
// 每次编排只允许取一次，不可跨步骤重复拉取（价格会漂移）
type Ticker struct {
	Symbol string
	Last   float64 // 最新成交价 (0 表示交易所未返回)
	Bid    float64 // 买一价
	Ask    float64 // 卖一价
}

// CurrentPrice 返回可用的当前价：优先 last，其次 ask
// 两者都无效时返回 0，由调用方判定失败
func (t Ticker) CurrentPrice() float64 {
	if t.Last > 0 {
		return t.Last
	}
	if t.Ask > 0 {
		return t.Ask
	}
	return 0
}

// MarketInfo 描述交易所公布的合约下单规则
// 每次执行前重新拉取，禁止跨周期缓存（合约规则可能变更）
type MarketInfo struct {
	Symbol          string
	Active          bool
	PrecisionAmount float64 // 数量精度步长，例如 0.001 或 1
	MinCost         float64 // 最小下单名义价值 (0 表示交易所未公布)
	MinAmount       float64 // 最小下单数量 (0 表示无限制)
}

// Position 是交易所侧持仓的只读快照
type Position struct {
	Symbol     string
	Side       PositionSide
	Size       float64
	EntryPrice float64
	OpenedAt   time.Time // 零值表示无法确定开仓时间
}

// HasOpenedAt 报告该持仓是否有可用的开仓时间
func (p Position) HasOpenedAt() bool {
	return !p.OpenedAt.IsZero()
}
