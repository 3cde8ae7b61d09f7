package sizing

// 滑点边界：盘口数据缺失或异常时退回 1% 的保守默认值
const (
	defaultSlippage = 0.01
	minSlippage     = 0.005
	maxSlippage     = 0.05
)

// EstimateSlippage 根据买卖价差估算滑点，返回 [0.005, 0.05] 内的比例
// 假定实际冲击是可见价差的两倍，上下限用于流动性极差或数据缺失的场景
func EstimateSlippage(bid, ask, currentPrice float64) float64 {
	if bid <= 0 || ask <= 0 || ask < bid || currentPrice <= 0 {
		return defaultSlippage
	}

	spreadPct := (ask - bid) / currentPrice
	slippage := spreadPct * 2
	if slippage < minSlippage {
		return minSlippage
	}
	if slippage > maxSlippage {
		return maxSlippage
	}
	return slippage
}
