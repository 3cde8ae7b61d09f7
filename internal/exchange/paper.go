package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signal-futures-trader/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaperExchange 是内存撮合的 Exchange 实现，用于 DryRun 模式
// 账户状态在锁内维护，订单全部乐观成交
type PaperExchange struct {
	mu sync.Mutex

	logger  *zap.Logger
	balance map[string]float64 // 资产 -> 可用余额
	markets map[string]model.MarketInfo
	tickers map[string]model.Ticker

	positions map[string]model.Position // symbol -> 持仓
	orders    map[string]model.OrderRef // id -> 订单
	cancelled []string                  // 撤单记录

	seq int
}

// NewPaperExchange 构造干跑交易所，初始资金记在 marginAsset 上
func NewPaperExchange(marginAsset string, initialBalance float64, logger *zap.Logger) *PaperExchange {
	return &PaperExchange{
		logger:    logger.With(zap.String("exchange", "paper")),
		balance:   map[string]float64{marginAsset: initialBalance},
		markets:   make(map[string]model.MarketInfo),
		tickers:   make(map[string]model.Ticker),
		positions: make(map[string]model.Position),
		orders:    make(map[string]model.OrderRef),
	}
}

// SeedMarket 注入合约规则 (干跑模式没有真实行情来源)
func (e *PaperExchange) SeedMarket(info model.MarketInfo, ticker model.Ticker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.markets[info.Symbol] = info
	e.tickers[ticker.Symbol] = ticker
}

func (e *PaperExchange) GetMarketInfo(ctx context.Context, symbol string) (model.MarketInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	info, ok := e.markets[symbol]
	if !ok {
		return model.MarketInfo{}, fmt.Errorf("paper: market %s not seeded", symbol)
	}
	return info, nil
}

func (e *PaperExchange) GetTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ticker, ok := e.tickers[symbol]
	if !ok {
		return model.Ticker{}, fmt.Errorf("paper: ticker %s not seeded", symbol)
	}
	return ticker, nil
}

func (e *PaperExchange) IsMarketActive(ctx context.Context, symbol string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	info, ok := e.markets[symbol]
	if !ok {
		return false, fmt.Errorf("paper: market %s not seeded", symbol)
	}
	return info.Active, nil
}

func (e *PaperExchange) GetFreeBalance(ctx context.Context, asset string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance[asset], nil
}

func (e *PaperExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	e.logger.Info("Paper leverage set", zap.String("Symbol", symbol), zap.Int("Leverage", leverage))
	return nil
}

func (e *PaperExchange) CreateOrder(ctx context.Context, symbol, ordType string, side model.Side, amount, price float64, params OrderParams) (*model.OrderRef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	ref := model.OrderRef{
		ID:            fmt.Sprintf("paper-%d", e.seq),
		ClientOrderID: uuid.NewString(),
		Status:        "filled",
		Type:          ordType,
		Side:          side,
		Amount:        amount,
		Price:         price,
	}
	e.orders[ref.ID] = ref

	// 只有主单改变持仓；reduceOnly 订单在干跑里只挂账不成交
	if !params.ReduceOnly {
		posSide := model.PosLong
		if side == model.SideSell {
			posSide = model.PosShort
		}
		e.positions[symbol] = model.Position{
			Symbol:     symbol,
			Side:       posSide,
			Size:       amount,
			EntryPrice: price,
			OpenedAt:   time.Now().UTC(),
		}
	}

	e.logger.Info("Paper order filled",
		zap.String("Symbol", symbol),
		zap.String("OrderID", ref.ID),
		zap.String("Type", ordType),
		zap.String("Side", string(side)),
		zap.Float64("Amount", amount))
	return &ref, nil
}

func (e *PaperExchange) CancelOrder(ctx context.Context, id, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.orders[id]; !ok {
		return fmt.Errorf("paper: unknown order %s", id)
	}
	delete(e.orders, id)
	e.cancelled = append(e.cancelled, id)
	e.logger.Info("Paper order cancelled", zap.String("OrderID", id), zap.String("Symbol", symbol))
	return nil
}

func (e *PaperExchange) FetchPositions(ctx context.Context) ([]model.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, p)
	}
	return out, nil
}

func (e *PaperExchange) ClosePosition(ctx context.Context, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.positions[symbol]; !ok {
		e.logger.Info("Paper close: no position", zap.String("Symbol", symbol))
		return nil
	}
	delete(e.positions, symbol)
	e.logger.Info("Paper position closed", zap.String("Symbol", symbol))
	return nil
}

// CancelledOrders 返回撤单记录 (测试与审计用)
func (e *PaperExchange) CancelledOrders() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.cancelled...)
}

var _ Exchange = (*PaperExchange)(nil)
