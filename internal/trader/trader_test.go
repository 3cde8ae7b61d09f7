package trader

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"signal-futures-trader/internal/exchange"
	"signal-futures-trader/internal/execution"
	"signal-futures-trader/internal/model"
	"signal-futures-trader/internal/notify"
	"signal-futures-trader/internal/portfolio"

	"go.uber.org/zap"
)

// stubExchange 提供固定行情与可注入的停牌合约
type stubExchange struct {
	positions []model.Position
	balance   float64
	inactive  map[string]bool

	closed     []string
	mainOrders []string
	seq        int
}

func (s *stubExchange) GetMarketInfo(ctx context.Context, symbol string) (model.MarketInfo, error) {
	return model.MarketInfo{
		Symbol:          symbol,
		Active:          !s.inactive[symbol],
		PrecisionAmount: 0.001,
		MinCost:         5,
		MinAmount:       0.001,
	}, nil
}

func (s *stubExchange) GetTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	return model.Ticker{Symbol: symbol, Last: 100, Bid: 99.9, Ask: 100.1}, nil
}

func (s *stubExchange) IsMarketActive(ctx context.Context, symbol string) (bool, error) {
	return !s.inactive[symbol], nil
}

func (s *stubExchange) GetFreeBalance(ctx context.Context, asset string) (float64, error) {
	return s.balance, nil
}

func (s *stubExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

func (s *stubExchange) CreateOrder(ctx context.Context, symbol, ordType string, side model.Side, amount, price float64, params exchange.OrderParams) (*model.OrderRef, error) {
	s.seq++
	if !params.ReduceOnly {
		s.mainOrders = append(s.mainOrders, symbol)
	}
	return &model.OrderRef{ID: fmt.Sprintf("ord-%d", s.seq), Type: ordType, Side: side, Amount: amount, Price: price}, nil
}

func (s *stubExchange) CancelOrder(ctx context.Context, id, symbol string) error { return nil }

func (s *stubExchange) FetchPositions(ctx context.Context) ([]model.Position, error) {
	out := make([]model.Position, len(s.positions))
	copy(out, s.positions)
	return out, nil
}

func (s *stubExchange) ClosePosition(ctx context.Context, symbol string) error {
	s.closed = append(s.closed, symbol)
	var kept []model.Position
	for _, pos := range s.positions {
		if pos.Symbol != symbol {
			kept = append(kept, pos)
		}
	}
	s.positions = kept
	return nil
}

var _ exchange.Exchange = (*stubExchange)(nil)

type stubSource struct {
	signals []model.Signal
}

func (s *stubSource) Fetch(ctx context.Context) ([]model.Signal, error) {
	return s.signals, nil
}

type stubNotifier struct {
	messages []string
}

func (n *stubNotifier) Notify(ctx context.Context, message string) error {
	n.messages = append(n.messages, message)
	return nil
}

func newTestTrader(ex *stubExchange, src *stubSource, maxPositions int) (*Trader, *stubNotifier) {
	logger := zap.NewNop()
	notifier := &stubNotifier{}
	t := New(ex, src,
		execution.NewTradeExecutor(ex, "USDC", logger),
		portfolio.NewStalePolicy(ex, 72*time.Hour, logger),
		notifier, 2, maxPositions, "USDC", logger)
	return t, notifier
}

func TestRunCycleFullPipeline(t *testing.T) {
	ex := &stubExchange{
		balance: 1000,
		positions: []model.Position{
			// 73 小时前开的仓，先于一切信号处理被强平
			{Symbol: "ETH/USDC:USDC", Side: model.PosLong, Size: 1, OpenedAt: time.Now().Add(-73 * time.Hour)},
			{Symbol: "SOL/USDC:USDC", Side: model.PosShort, Size: 2, OpenedAt: time.Now().Add(-time.Hour)},
		},
	}
	src := &stubSource{signals: []model.Signal{
		{Symbol: "BTC/USDC:USDC", Side: model.SideBuy, TargetNotional: 50},
		{Symbol: "BTC/USDC:USDC", Side: model.SideBuy, TargetNotional: 50}, // 重复，去重后只剩一条
		{Symbol: "SOL/USDC:USDC", Side: model.SideBuy, TargetNotional: 50}, // 与空头持仓反向 → 平仓信号
		{Symbol: "DOGE/USDC:USDC", Side: model.SideBuy, TargetNotional: 50},
		{Symbol: "DOGE/USDC:USDC", Side: model.SideSell, TargetNotional: 50}, // 与上一条打平 → 整个符号丢弃
	}}
	tr, notifier := newTestTrader(ex, src, 3)

	report, err := tr.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if report.Generated != 5 || report.AfterDedup != 2 || report.AfterFilter != 2 {
		t.Fatalf("pipeline counts wrong: %+v", report)
	}
	if report.ToOpen != 1 || report.ToClose != 1 {
		t.Fatalf("categorize counts wrong: %+v", report)
	}
	if report.StaleClosed != 1 || report.Closed != 1 || report.Opened != 1 {
		t.Fatalf("action counts wrong: %+v", report)
	}

	// 强平 + 反向信号平仓，各一次
	if len(ex.closed) != 2 || ex.closed[0] != "ETH/USDC:USDC" || ex.closed[1] != "SOL/USDC:USDC" {
		t.Fatalf("closed positions = %v", ex.closed)
	}
	if len(ex.mainOrders) != 1 || ex.mainOrders[0] != "BTC/USDC:USDC" {
		t.Fatalf("main orders = %v", ex.mainOrders)
	}

	if len(notifier.messages) != 1 || !strings.Contains(notifier.messages[0], "opened 1/1") {
		t.Fatalf("notification = %v", notifier.messages)
	}
}

func TestRunCycleSlotCapAndFailureIsolation(t *testing.T) {
	ex := &stubExchange{
		balance:  1000,
		inactive: map[string]bool{"BTC/USDC:USDC": true},
		positions: []model.Position{
			{Symbol: "AAA/USDC:USDC", Side: model.PosLong, Size: 1, OpenedAt: time.Now().Add(-time.Hour)},
		},
	}
	src := &stubSource{signals: []model.Signal{
		{Symbol: "BTC/USDC:USDC", Side: model.SideBuy, TargetNotional: 50}, // 停牌 → 失败但不中断
		{Symbol: "ETH/USDC:USDC", Side: model.SideBuy, TargetNotional: 50},
		{Symbol: "SOL/USDC:USDC", Side: model.SideBuy, TargetNotional: 50}, // 超出槽位 → 不尝试
	}}
	tr, _ := newTestTrader(ex, src, 3) // 3 个槽位 - 1 个持仓 = 尝试前 2 条

	report, err := tr.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if report.Opened != 1 {
		t.Fatalf("opened = %d, want 1", report.Opened)
	}
	if len(report.Outcomes) != 3 {
		t.Fatalf("outcomes = %+v", report.Outcomes)
	}
	if report.Outcomes[0].Opened || !strings.Contains(report.Outcomes[0].Err, "not active") {
		t.Fatalf("first outcome = %+v", report.Outcomes[0])
	}
	if !report.Outcomes[1].Opened {
		t.Fatalf("second outcome = %+v", report.Outcomes[1])
	}
	if report.Outcomes[2].Opened || report.Outcomes[2].Err != "no position slots available" {
		t.Fatalf("third outcome = %+v", report.Outcomes[2])
	}
	if len(ex.mainOrders) != 1 || ex.mainOrders[0] != "ETH/USDC:USDC" {
		t.Fatalf("main orders = %v", ex.mainOrders)
	}
}

func TestRunCycleFailedAttemptStillConsumesSlot(t *testing.T) {
	// 槽位限制的是尝试次数而不是成功次数：
	// 唯一的槽位被失败的第一条信号占掉后，第二条不得再被尝试
	ex := &stubExchange{
		balance:  1000,
		inactive: map[string]bool{"BTC/USDC:USDC": true},
		positions: []model.Position{
			{Symbol: "AAA/USDC:USDC", Side: model.PosLong, Size: 1, OpenedAt: time.Now().Add(-time.Hour)},
		},
	}
	src := &stubSource{signals: []model.Signal{
		{Symbol: "BTC/USDC:USDC", Side: model.SideBuy, TargetNotional: 50},
		{Symbol: "ETH/USDC:USDC", Side: model.SideBuy, TargetNotional: 50},
	}}
	tr, _ := newTestTrader(ex, src, 2) // 2 个槽位 - 1 个持仓 = 只尝试第一条

	report, err := tr.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if report.Opened != 0 {
		t.Fatalf("opened = %d, want 0", report.Opened)
	}
	if len(ex.mainOrders) != 0 {
		t.Fatalf("attempted orders beyond the slot limit: %v", ex.mainOrders)
	}
	if len(report.Outcomes) != 2 {
		t.Fatalf("outcomes = %+v", report.Outcomes)
	}
	if !strings.Contains(report.Outcomes[0].Err, "not active") {
		t.Fatalf("first outcome = %+v", report.Outcomes[0])
	}
	if report.Outcomes[1].Err != "no position slots available" {
		t.Fatalf("second outcome = %+v", report.Outcomes[1])
	}
}

func TestRunCycleSignalCloseFreesSlot(t *testing.T) {
	// 本周期被反向信号平掉的仓位立刻释放槽位
	ex := &stubExchange{
		balance: 1000,
		positions: []model.Position{
			{Symbol: "SOL/USDC:USDC", Side: model.PosShort, Size: 2, OpenedAt: time.Now().Add(-time.Hour)},
		},
	}
	src := &stubSource{signals: []model.Signal{
		{Symbol: "SOL/USDC:USDC", Side: model.SideBuy, TargetNotional: 50}, // 平掉空头
		{Symbol: "BTC/USDC:USDC", Side: model.SideBuy, TargetNotional: 50}, // 用释放的槽位开仓
	}}
	tr, _ := newTestTrader(ex, src, 1)

	report, err := tr.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if report.Closed != 1 || report.Opened != 1 {
		t.Fatalf("closed=%d opened=%d, want 1/1", report.Closed, report.Opened)
	}
	if len(ex.mainOrders) != 1 || ex.mainOrders[0] != "BTC/USDC:USDC" {
		t.Fatalf("main orders = %v", ex.mainOrders)
	}
}

func TestFailureReasonLabels(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&execution.MarketNotActiveError{Symbol: "X"}, "market_inactive"},
		{&execution.InsufficientBalanceError{Asset: "USDC"}, "balance"},
		{&execution.DependentOrderError{Symbol: "X"}, "dependent_orders"},
		{fmt.Errorf("dial tcp: connection refused"), "exchange"},
	}
	for _, c := range cases {
		if got := failureReason(c.err); got != c.want {
			t.Errorf("failureReason(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

var _ notify.Notifier = (*stubNotifier)(nil)
