package model

import (
	"fmt"
	"strings"
)

// Side 定义了订单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite 返回相反方向 (用于止盈/止损/平仓单)
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) String() string {
	return string(s)
}

// PositionSide 定义了持仓方向 (交易所侧词汇)
type PositionSide string

const (
	PosLong  PositionSide = "long"
	PosShort PositionSide = "short"
)

// AsOrderSide 把持仓方向换算成等价的订单方向 (long→buy, short→sell)
func (p PositionSide) AsOrderSide() Side {
	if p == PosShort {
		return SideSell
	}
	return SideBuy
}

// NormalizeSide 在边界处统一上游词汇：long/short 翻译为 buy/sell
// 无法识别的输入返回 ok=false
func NormalizeSide(raw string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "long":
		return SideBuy, true
	case "sell", "short":
		return SideSell, true
	default:
		return "", false
	}
}

// 订单类型常量
const (
	OrderTypeMarket     = "market"
	OrderTypeLimit      = "limit"
	OrderTypeStopMarket = "stop_market" // 触发式止损单
)

// Signal 是一条抽象交易意图，由信号源产出后不可变
// 进入执行层之前 Side 一定已归一化为 buy/sell
type Signal struct {
	Symbol          string
	Side            Side
	OrderType       string  // market 或 limit
	TargetNotional  float64 // 目标名义价值 (USD)；<=0 表示未指定，用最小可交易量
	TakeProfitPrice float64 // 0 表示不挂止盈
	StopLossPrice   float64 // 0 表示不挂止损
}

func (s Signal) String() string {
	return fmt.Sprintf("SIGNAL [%s %s %s] Notional: %.2f | TP: %.4f | SL: %.4f",
		s.Side, s.OrderType, s.Symbol, s.TargetNotional, s.TakeProfitPrice, s.StopLossPrice)
}

// OrderRef 是交易所接受订单后的引用
type OrderRef struct {
	ID            string
	ClientOrderID string
	Status        string
	Type          string
	Side          Side
	Amount        float64
	Price         float64
}

// TradeResult 是一次完整编排的产物，本系统不持久化它
type TradeResult struct {
	MainOrder       *OrderRef
	StopLossOrder   *OrderRef
	TakeProfitOrder *OrderRef
}

// SignalOutcome 记录单条开仓信号的最终结果
type SignalOutcome struct {
	Symbol string
	Side   Side
	Opened bool
	Err    string // 失败原因，成功时为空
}

// CycleReport 是一轮批处理的结构化结果，直接返回给调用方
// 而不是打印成固定的控制台格式
type CycleReport struct {
	Generated   int // 信号源产出的原始信号数
	AfterDedup  int // 去重后剩余
	AfterFilter int // 过滤同向持仓后剩余
	ToOpen      int // 归类为开仓的信号数
	ToClose     int // 归类为平仓的信号数
	StaleClosed int // 因超龄被强平的持仓数
	Opened      int // 实际成功开仓数
	Closed      int // 因反向信号实际平仓数
	Outcomes    []SignalOutcome
}

// Summary 生成用于通知渠道的人类可读摘要
func (r *CycleReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cycle done: %d signals -> %d after dedup -> %d after filter | opened %d/%d, closed %d, stale-closed %d",
		r.Generated, r.AfterDedup, r.AfterFilter, r.Opened, r.ToOpen, r.Closed, r.StaleClosed)
	for _, o := range r.Outcomes {
		if o.Opened {
			fmt.Fprintf(&b, "\n  OK   %s %s", o.Side, o.Symbol)
		} else {
			fmt.Fprintf(&b, "\n  FAIL %s %s: %s", o.Side, o.Symbol, o.Err)
		}
	}
	return b.String()
}
