package signal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"signal-futures-trader/internal/model"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore 从爬虫落库的 sqlite 读取未消费的信号
// 一行 = 一条信号；读取后在同一事务里标记 consumed，保证恰好消费一次
type SQLiteStore struct {
	db       *sql.DB
	defaults Defaults
	logger   *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS signals (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol          TEXT NOT NULL,
    side            TEXT NOT NULL,
    order_type      TEXT NOT NULL DEFAULT 'market',
    target_notional REAL,
    tp_price        REAL,
    sl_price        REAL,
    consumed        INTEGER NOT NULL DEFAULT 0,
    created_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

// OpenSQLiteStore 打开 (必要时初始化) 信号库
func OpenSQLiteStore(path string, defaults Defaults, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open signal store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init signal store schema: %w", err)
	}
	return &SQLiteStore{
		db:       db,
		defaults: defaults,
		logger:   logger.With(zap.String("component", "signal_store")),
	}, nil
}

// Fetch 取出当前全部未消费的信号并标记消费
func (s *SQLiteStore) Fetch(ctx context.Context) ([]model.Signal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin signal read tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, symbol, side, order_type, target_notional, tp_price, sl_price
		 FROM signals WHERE consumed = 0 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var signals []model.Signal
	var ids []int64
	for rows.Next() {
		var (
			id        int64
			symbol    string
			rawSide   string
			orderType string
			notional  sql.NullFloat64
			tpPrice   sql.NullFloat64
			slPrice   sql.NullFloat64
		)
		if err := rows.Scan(&id, &symbol, &rawSide, &orderType, &notional, &tpPrice, &slPrice); err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		ids = append(ids, id)

		side, ok := model.NormalizeSide(rawSide)
		if !ok {
			s.logger.Warn("Skipping signal with unknown side",
				zap.Int64("ID", id), zap.String("Symbol", symbol), zap.String("Side", rawSide))
			continue
		}

		sig := model.Signal{
			Symbol:          symbol,
			Side:            side,
			OrderType:       orderType,
			TargetNotional:  notional.Float64,
			TakeProfitPrice: tpPrice.Float64,
			StopLossPrice:   slPrice.Float64,
		}
		signals = append(signals, applyDefaults(sig, s.defaults))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal rows: %w", err)
	}

	if len(ids) > 0 {
		placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE signals SET consumed = 1 WHERE id IN ("+placeholders+")", args...); err != nil {
			return nil, fmt.Errorf("mark signals consumed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit signal read tx: %w", err)
	}

	s.logger.Info("Fetched signals from store", zap.Int("Rows", len(ids)), zap.Int("Usable", len(signals)))
	return signals, nil
}

// Close 释放底层连接
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Source = (*SQLiteStore)(nil)
