package signal

import (
	"context"
	"encoding/json"
	"time"

	"signal-futures-trader/internal/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wireSignal 是爬虫服务通过 WebSocket 推送的信号线格式
type wireSignal struct {
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"` // buy/sell 或上游的 long/short
	OrderType      string  `json:"order_type"`
	TargetNotional float64 `json:"target_notional"`
	TpPrice        float64 `json:"tp_price"`
	SlPrice        float64 `json:"sl_price"`
}

// Feed 通过 WebSocket 被动接收信号推送，批处理周期到来时一次性取走
// 连接常驻后台 Goroutine；通道满时丢弃并告警，绝不阻塞读循环
type Feed struct {
	wsURL      string
	drainWait  time.Duration
	defaults   Defaults
	signalChan chan model.Signal
	logger     *zap.Logger
}

// NewFeed 初始化信号推送通道
func NewFeed(wsURL string, drainWait time.Duration, defaults Defaults, logger *zap.Logger) *Feed {
	return &Feed{
		wsURL:      wsURL,
		drainWait:  drainWait,
		defaults:   defaults,
		signalChan: make(chan model.Signal, 256),
		logger:     logger.With(zap.String("component", "signal_feed")),
	}
}

// Start 建立连接并进入读循环，应在独立 Goroutine 中运行
// 读失败后固定间隔重连
func (f *Feed) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.runOnce(ctx); err != nil {
			f.logger.Error("Signal feed disconnected, reconnecting...", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (f *Feed) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	subscribe := map[string]any{"op": "subscribe", "args": []string{"signals"}}
	if err := conn.WriteJSON(subscribe); err != nil {
		return err
	}
	f.logger.Info("Subscribed to signal stream", zap.String("URL", f.wsURL))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var wire wireSignal
		if err := json.Unmarshal(message, &wire); err != nil {
			continue
		}
		if wire.Symbol == "" {
			continue // 订阅回执等非信号帧
		}

		side, ok := model.NormalizeSide(wire.Side)
		if !ok {
			f.logger.Warn("Dropping pushed signal with unknown side",
				zap.String("Symbol", wire.Symbol), zap.String("Side", wire.Side))
			continue
		}

		sig := applyDefaults(model.Signal{
			Symbol:          wire.Symbol,
			Side:            side,
			OrderType:       wire.OrderType,
			TargetNotional:  wire.TargetNotional,
			TakeProfitPrice: wire.TpPrice,
			StopLossPrice:   wire.SlPrice,
		}, f.defaults)

		// 满了就丢，读循环不能被下游拖住
		select {
		case f.signalChan <- sig:
		default:
			f.logger.Warn("Signal channel full, dropping signal", zap.String("Symbol", wire.Symbol))
		}
	}
}

// Fetch 取走本周期累积的信号：第一条最多等 drainWait，其余立即取空
func (f *Feed) Fetch(ctx context.Context) ([]model.Signal, error) {
	var signals []model.Signal

	select {
	case sig := <-f.signalChan:
		signals = append(signals, sig)
	case <-time.After(f.drainWait):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		select {
		case sig := <-f.signalChan:
			signals = append(signals, sig)
		default:
			return signals, nil
		}
	}
}

var _ Source = (*Feed)(nil)
