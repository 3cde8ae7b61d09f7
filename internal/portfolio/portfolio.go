package portfolio

import (
	"signal-futures-trader/internal/model"

	"go.uber.org/zap"
)

// 纯函数集合：对内存里的信号/持仓做去重、过滤和归类
// 不直接触达交易所，持仓快照由调用方提前拉好

// Dedup 按符号去重：
//   - 同一符号方向一致 → 保留第一条
//   - 方向分歧但有严格多数 → 保留多数方向的第一条
//   - 票数打平 → 整个符号丢弃 (意图不明时宁可不做，绝不随机选边)
func Dedup(signals []model.Signal, logger *zap.Logger) []model.Signal {
	if len(signals) == 0 {
		return nil
	}

	// 保持首次出现的符号顺序，map 迭代顺序不可依赖
	var order []string
	grouped := make(map[string][]model.Signal)
	for _, sig := range signals {
		if _, seen := grouped[sig.Symbol]; !seen {
			order = append(order, sig.Symbol)
		}
		grouped[sig.Symbol] = append(grouped[sig.Symbol], sig)
	}

	var out []model.Signal
	for _, symbol := range order {
		group := grouped[symbol]

		var buys, sells int
		for _, sig := range group {
			if sig.Side == model.SideBuy {
				buys++
			} else {
				sells++
			}
		}

		if buys == sells {
			if buys > 0 {
				logger.Warn("Dropping symbol with tied signal sides", zap.String("Symbol", symbol), zap.Int("Count", len(group)))
			}
			continue
		}

		majority := model.SideBuy
		if sells > buys {
			majority = model.SideSell
		}
		for _, sig := range group {
			if sig.Side == majority {
				out = append(out, sig)
				break
			}
		}
	}
	return out
}

// FilterAgainstPositions 丢弃与现有持仓同向的信号 (禁止同方向加仓)
// 持仓方向词汇在这里归一化：long→buy, short→sell
func FilterAgainstPositions(signals []model.Signal, positions []model.Position, logger *zap.Logger) []model.Signal {
	held := make(map[[2]string]bool, len(positions))
	for _, pos := range positions {
		held[[2]string{pos.Symbol, string(pos.Side.AsOrderSide())}] = true
	}

	var out []model.Signal
	for _, sig := range signals {
		if held[[2]string{sig.Symbol, string(sig.Side)}] {
			logger.Info("Filtering signal matching an open position",
				zap.String("Symbol", sig.Symbol), zap.String("Side", string(sig.Side)))
			continue
		}
		out = append(out, sig)
	}
	return out
}

// Categorize 把信号分成开仓集与平仓集：
// 同符号存在反向持仓 (buy↔short / sell↔long) 的信号是平仓信号，
// 其余是开仓信号。每条信号最多进入一个集合。
func Categorize(signals []model.Signal, positions []model.Position) (toOpen, toClose []model.Signal) {
	for _, sig := range signals {
		closing := false
		for _, pos := range positions {
			if sig.Symbol != pos.Symbol {
				continue
			}
			if (sig.Side == model.SideBuy && pos.Side == model.PosShort) ||
				(sig.Side == model.SideSell && pos.Side == model.PosLong) {
				closing = true
				break
			}
		}
		if closing {
			toClose = append(toClose, sig)
		} else {
			toOpen = append(toOpen, sig)
		}
	}
	return toOpen, toClose
}
