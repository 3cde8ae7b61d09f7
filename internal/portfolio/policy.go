package portfolio

import (
	"context"
	"time"

	"signal-futures-trader/internal/exchange"
	"signal-futures-trader/internal/model"

	"go.uber.org/zap"
)

// StalePolicy 负责按持仓年龄强平：开仓超过 MaxAge 的仓位直接市价平掉
// 缺少开仓时间的持仓绝不强平，只记日志
type StalePolicy struct {
	ex     exchange.Exchange
	maxAge time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewStalePolicy 初始化超龄平仓策略
func NewStalePolicy(ex exchange.Exchange, maxAge time.Duration, logger *zap.Logger) *StalePolicy {
	return &StalePolicy{
		ex:     ex,
		maxAge: maxAge,
		now:    time.Now,
		logger: logger.With(zap.String("component", "stale_policy")),
	}
}

// CloseStale 对快照里的每个超龄持仓发出平仓指令，返回实际平掉的数量
// 单个平仓失败只记录，继续处理其余持仓
func (p *StalePolicy) CloseStale(ctx context.Context, positions []model.Position) int {
	closed := 0
	now := p.now()
	for _, pos := range positions {
		if !pos.HasOpenedAt() {
			p.logger.Info("Position has no open timestamp, leaving untouched", zap.String("Symbol", pos.Symbol))
			continue
		}

		age := now.Sub(pos.OpenedAt)
		if age <= p.maxAge {
			p.logger.Info("Position within age limit",
				zap.String("Symbol", pos.Symbol), zap.Duration("Age", age))
			continue
		}

		if err := p.ex.ClosePosition(ctx, pos.Symbol); err != nil {
			p.logger.Error("Failed to close stale position",
				zap.String("Symbol", pos.Symbol), zap.Duration("Age", age), zap.Error(err))
			continue
		}
		closed++
		p.logger.Info("Closed stale position",
			zap.String("Symbol", pos.Symbol), zap.Duration("Age", age))
	}
	return closed
}
