package sizing

import (
	"fmt"
	"math"

	"signal-futures-trader/internal/model"

	"go.uber.org/zap"
)

// ValidationError 表示输入本身不合法 (非正价格/杠杆等)
// 对单条信号是致命错误，永远不重试
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// 兜底买卖数量精度：交易所没有给出有效精度时按两位小数处理
const fallbackDecimals = 2

// 保证金缓冲的固定下限 (USD)：略高于常见的 $10 交易所最小值，留出余量
const minOrderValueBuffer = 11.0

// gridEpsilon 吸收 0.1*1000 = 100.00000000000001 这类二进制浮点误差
// 没有它，恰好落在网格上的数量会被取整到相邻一步
const gridEpsilon = 1e-9

// floorToPrecision 把数量向下对齐到精度网格 (开仓数量用，宁小勿大)
// 向下取整后塌缩为 0 时返回最小可表示的一步，避免产生废单
func floorToPrecision(amount, precision float64) float64 {
	var adjusted float64
	if precision > 0 && !math.IsInf(precision, 0) {
		if precision < 1 {
			// 小数步长，例如 0.01
			decimals := int(math.Abs(math.Floor(math.Log10(precision))))
			scale := math.Pow(10, float64(decimals))
			adjusted = math.Floor(amount*scale+gridEpsilon) / scale
			if adjusted == 0 && amount > 0 {
				adjusted = math.Pow(10, -float64(decimals))
			}
		} else {
			// 整数步长，例如 1 或 10
			adjusted = math.Floor(amount/precision+gridEpsilon) * precision
			if adjusted == 0 && amount > 0 {
				adjusted = precision
			}
		}
		return adjusted
	}

	scale := math.Pow(10, fallbackDecimals)
	adjusted = math.Floor(amount*scale+gridEpsilon) / scale
	if adjusted == 0 && amount > 0 {
		adjusted = math.Pow(10, -fallbackDecimals)
	}
	return adjusted
}

// CeilToPrecision 把数量向上对齐到精度网格 (最小量下限用，方向与开仓相反)
func CeilToPrecision(amount, precision float64) float64 {
	if precision > 0 && !math.IsInf(precision, 0) {
		if precision < 1 {
			decimals := int(math.Abs(math.Floor(math.Log10(precision))))
			scale := math.Pow(10, float64(decimals))
			return math.Ceil(amount*scale-gridEpsilon) / scale
		}
		return math.Ceil(amount/precision-gridEpsilon) * precision
	}
	scale := math.Pow(10, fallbackDecimals)
	return math.Ceil(amount*scale-gridEpsilon) / scale
}

// ToBaseAmount 把目标名义价值 (USD) 换算成符合精度网格的币本位数量
// 结果永远 >= minViable：可交易性优先于名义价值的精确性
// 对正的有限输入不会失败
func ToBaseAmount(targetNotional, currentPrice, precisionAmount, minViable float64, symbol string, logger *zap.Logger) float64 {
	desired := targetNotional / currentPrice
	adjusted := floorToPrecision(desired, precisionAmount)

	logger.Info("Sizing: notional to base amount",
		zap.String("Symbol", symbol),
		zap.Float64("TargetNotional", targetNotional),
		zap.Float64("Desired", desired),
		zap.Float64("Adjusted", adjusted))

	if adjusted < minViable {
		logger.Warn("Sizing: adjusted amount below minimum viable, forcing up",
			zap.String("Symbol", symbol),
			zap.Float64("Adjusted", adjusted),
			zap.Float64("MinViable", minViable))
		return minViable
	}
	return adjusted
}

// MinOrderAmount 推导某合约的最小可交易数量：
//  1. min_cost / price 向上对齐到精度网格
//  2. 不低于交易所公布的最小数量限制
//  3. 名义价值不低于 11/leverage 的保证金缓冲，必要时抬高数量
//  4. 抬高后再次对最小数量限制取上界
func MinOrderAmount(symbol string, price float64, info model.MarketInfo, leverage int, logger *zap.Logger) (float64, error) {
	if price <= 0 {
		return 0, &ValidationError{Reason: fmt.Sprintf("price must be positive for min amount of %s, got %v", symbol, price)}
	}
	if leverage <= 0 {
		return 0, &ValidationError{Reason: fmt.Sprintf("leverage must be positive for min amount of %s, got %d", symbol, leverage)}
	}

	var rawMin float64
	if info.MinCost > 0 {
		rawMin = info.MinCost / price
	}
	minAmount := CeilToPrecision(rawMin, info.PrecisionAmount)

	if info.MinAmount > 0 && minAmount < info.MinAmount {
		minAmount = info.MinAmount
	}

	// 保证金缓冲：11 USD 下限按杠杆折算
	buffer := minOrderValueBuffer / float64(leverage)
	if minAmount*price < buffer {
		minAmount = CeilToPrecision(buffer/price, info.PrecisionAmount)
	}

	// 抬高之后可能仍低于交易所限制，再夹一次
	if info.MinAmount > 0 && minAmount < info.MinAmount {
		minAmount = info.MinAmount
	}

	logger.Info("Sizing: minimum order amount",
		zap.String("Symbol", symbol),
		zap.Float64("RawMin", rawMin),
		zap.Float64("MinAmount", minAmount),
		zap.Float64("OrderValue", minAmount*price),
		zap.Float64("MarginBuffer", buffer))

	return minAmount, nil
}
