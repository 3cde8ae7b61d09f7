package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"signal-futures-trader/internal/exchange"
	"signal-futures-trader/internal/model"

	"go.uber.org/zap"
)

var testLogger = zap.NewNop()

func sig(symbol string, side model.Side) model.Signal {
	return model.Signal{Symbol: symbol, Side: side, OrderType: model.OrderTypeMarket}
}

func TestDedupUnanimousKeepsFirst(t *testing.T) {
	in := []model.Signal{
		{Symbol: "BTC/USDC:USDC", Side: model.SideBuy, TargetNotional: 15},
		{Symbol: "BTC/USDC:USDC", Side: model.SideBuy, TargetNotional: 30},
	}
	out := Dedup(in, testLogger)
	if len(out) != 1 {
		t.Fatalf("got %d signals, want 1", len(out))
	}
	if out[0].TargetNotional != 15 {
		t.Fatal("must keep the first signal of the group")
	}
}

func TestDedupMajorityWins(t *testing.T) {
	in := []model.Signal{
		sig("BTC/USDC:USDC", model.SideBuy),
		sig("BTC/USDC:USDC", model.SideBuy),
		sig("BTC/USDC:USDC", model.SideSell),
	}
	out := Dedup(in, testLogger)
	if len(out) != 1 || out[0].Side != model.SideBuy {
		t.Fatalf("got %+v, want single BTC buy (2-vs-1 majority)", out)
	}
}

func TestDedupTieDropsSymbol(t *testing.T) {
	in := []model.Signal{
		sig("ETH/USDC:USDC", model.SideBuy),
		sig("ETH/USDC:USDC", model.SideSell),
	}
	if out := Dedup(in, testLogger); len(out) != 0 {
		t.Fatalf("got %+v, want empty result for tied symbol", out)
	}
}

func TestDedupPreservesInputOrderAcrossSymbols(t *testing.T) {
	in := []model.Signal{
		sig("SOL/USDC:USDC", model.SideSell),
		sig("BTC/USDC:USDC", model.SideBuy),
		sig("SOL/USDC:USDC", model.SideSell),
	}
	out := Dedup(in, testLogger)
	if len(out) != 2 || out[0].Symbol != "SOL/USDC:USDC" || out[1].Symbol != "BTC/USDC:USDC" {
		t.Fatalf("got %+v, want SOL then BTC", out)
	}
}

func TestFilterAgainstPositions(t *testing.T) {
	positions := []model.Position{
		{Symbol: "BTC/USDC:USDC", Side: model.PosLong, Size: 1},
		{Symbol: "ETH/USDC:USDC", Side: model.PosShort, Size: 2},
	}
	in := []model.Signal{
		sig("BTC/USDC:USDC", model.SideBuy),   // 与 long 同向，过滤
		sig("BTC/USDC:USDC", model.SideSell),  // 反向，保留
		sig("ETH/USDC:USDC", model.SideSell),  // 与 short 同向，过滤
		sig("DOGE/USDC:USDC", model.SideBuy),  // 无持仓，保留
	}
	out := FilterAgainstPositions(in, positions, testLogger)
	if len(out) != 2 {
		t.Fatalf("got %d signals, want 2", len(out))
	}
	if out[0].Side != model.SideSell || out[0].Symbol != "BTC/USDC:USDC" {
		t.Fatalf("got %+v", out[0])
	}
	if out[1].Symbol != "DOGE/USDC:USDC" {
		t.Fatalf("got %+v", out[1])
	}
}

func TestCategorizeOppositePositionIsClose(t *testing.T) {
	positions := []model.Position{{Symbol: "BTC/USDC:USDC", Side: model.PosLong, Size: 1}}

	toOpen, toClose := Categorize([]model.Signal{sig("BTC/USDC:USDC", model.SideSell)}, positions)
	if len(toClose) != 1 || len(toOpen) != 0 {
		t.Fatalf("sell against long: open=%v close=%v, want close-set only", toOpen, toClose)
	}

	toOpen, toClose = Categorize([]model.Signal{sig("DOGE/USDC:USDC", model.SideBuy)}, positions)
	if len(toOpen) != 1 || len(toClose) != 0 {
		t.Fatalf("no position: open=%v close=%v, want open-set only", toOpen, toClose)
	}
}

// closeRecorder 只实现策略需要的 ClosePosition，其余方法不会被调用
type closeRecorder struct {
	exchange.Exchange
	closed  []string
	failFor map[string]error
}

func (c *closeRecorder) ClosePosition(ctx context.Context, symbol string) error {
	if err, ok := c.failFor[symbol]; ok {
		return err
	}
	c.closed = append(c.closed, symbol)
	return nil
}

func TestStalePolicyClosesOnlyAgedPositions(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	positions := []model.Position{
		{Symbol: "OLD/USDC:USDC", Side: model.PosLong, Size: 1, OpenedAt: now.Add(-73 * time.Hour)},
		{Symbol: "NEW/USDC:USDC", Side: model.PosLong, Size: 1, OpenedAt: now.Add(-71 * time.Hour)},
		{Symbol: "UNKNOWN/USDC:USDC", Side: model.PosShort, Size: 1}, // 没有开仓时间
	}

	rec := &closeRecorder{}
	policy := NewStalePolicy(rec, 72*time.Hour, testLogger)
	policy.now = func() time.Time { return now }

	closed := policy.CloseStale(context.Background(), positions)
	if closed != 1 {
		t.Fatalf("closed %d positions, want 1", closed)
	}
	if len(rec.closed) != 1 || rec.closed[0] != "OLD/USDC:USDC" {
		t.Fatalf("close calls = %v, want only the 73h position", rec.closed)
	}
}

func TestStalePolicyContinuesAfterCloseFailure(t *testing.T) {
	now := time.Now().UTC()
	positions := []model.Position{
		{Symbol: "A/USDC:USDC", Side: model.PosLong, Size: 1, OpenedAt: now.Add(-100 * time.Hour)},
		{Symbol: "B/USDC:USDC", Side: model.PosLong, Size: 1, OpenedAt: now.Add(-100 * time.Hour)},
	}

	rec := &closeRecorder{failFor: map[string]error{"A/USDC:USDC": errors.New("boom")}}
	policy := NewStalePolicy(rec, 72*time.Hour, testLogger)

	closed := policy.CloseStale(context.Background(), positions)
	if closed != 1 || len(rec.closed) != 1 || rec.closed[0] != "B/USDC:USDC" {
		t.Fatalf("closed=%d calls=%v, want B closed despite A failing", closed, rec.closed)
	}
}
