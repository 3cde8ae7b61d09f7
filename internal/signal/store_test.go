package signal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"signal-futures-trader/internal/model"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "signals.db"), Defaults{TargetNotional: 15}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreFetchNormalizesAndConsumes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insert := `INSERT INTO signals (symbol, side, order_type, target_notional, tp_price, sl_price)
	           VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := store.db.Exec(insert, "BTC/USDC:USDC", "buy", "market", 25.0, nil, nil); err != nil {
		t.Fatal(err)
	}
	// 上游词汇 long/short 在边界归一化
	if _, err := store.db.Exec(insert, "ETH/USDC:USDC", "short", "market", nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	// 不可识别的方向被跳过，但同样被标记消费
	if _, err := store.db.Exec(insert, "DOGE/USDC:USDC", "hodl", "market", nil, nil, nil); err != nil {
		t.Fatal(err)
	}

	signals, err := store.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) != 2 {
		t.Fatalf("got %d signals, want 2", len(signals))
	}
	if signals[0].Symbol != "BTC/USDC:USDC" || signals[0].Side != model.SideBuy || signals[0].TargetNotional != 25 {
		t.Fatalf("first signal = %+v", signals[0])
	}
	if signals[1].Side != model.SideSell {
		t.Fatalf("short must normalize to sell, got %+v", signals[1])
	}
	// 上游没给名义价值时用默认值补齐
	if signals[1].TargetNotional != 15 {
		t.Fatalf("default notional not applied: %+v", signals[1])
	}

	// 恰好消费一次：第二次取必须为空
	again, err := store.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("signals consumed twice: %+v", again)
	}
}

func TestSQLiteStoreStripsTPSLWhenDisabled(t *testing.T) {
	store := newTestStore(t) // UseTPSL 默认 false
	ctx := context.Background()

	if _, err := store.db.Exec(
		`INSERT INTO signals (symbol, side, order_type, target_notional, tp_price, sl_price)
		 VALUES ('BTC/USDC:USDC', 'buy', 'market', 20, 110, 90)`); err != nil {
		t.Fatal(err)
	}

	signals, err := store.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	if signals[0].TakeProfitPrice != 0 || signals[0].StopLossPrice != 0 {
		t.Fatalf("TP/SL must be stripped when disabled: %+v", signals[0])
	}
}

func TestFeedFetchDrainsBufferedSignals(t *testing.T) {
	feed := NewFeed("ws://unused", 50*time.Millisecond, Defaults{TargetNotional: 15}, zap.NewNop())
	feed.signalChan <- model.Signal{Symbol: "BTC/USDC:USDC", Side: model.SideBuy}
	feed.signalChan <- model.Signal{Symbol: "ETH/USDC:USDC", Side: model.SideSell}

	signals, err := feed.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) != 2 {
		t.Fatalf("got %d signals, want 2", len(signals))
	}

	// 通道已空：等满 drain 窗口后返回空批
	signals, err = feed.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) != 0 {
		t.Fatalf("got %+v, want empty batch", signals)
	}
}
