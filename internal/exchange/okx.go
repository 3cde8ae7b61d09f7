package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"signal-futures-trader/internal/model"
	"signal-futures-trader/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OkxConfig 定义 Okx 适配器所需的全部配置
type OkxConfig struct {
	APIKey     string
	SecretKey  string
	Passphrase string
	RESTURL    string // 例如 https://www.okx.com
}

// OkxExchange 通过 Okx V5 REST API 实现 Exchange 接口
type OkxExchange struct {
	cfg    *OkxConfig
	client *http.Client
	logger *zap.Logger
}

// NewOkxExchange 初始化 Okx 适配器
func NewOkxExchange(cfg *OkxConfig, logger *zap.Logger) *OkxExchange {
	return &OkxExchange{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger.With(zap.String("exchange", "okx")),
	}
}

// okxResponse 是 Okx V5 的统一响应外壳
type okxResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// sign 生成 Okx V5 要求的签名头：Base64(HMAC-SHA256(ts+method+path+body))
func (e *OkxExchange) sign(timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(e.cfg.SecretKey))
	mac.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// doRequest 发送已签名的请求并解出 data 段
func (e *OkxExchange) doRequest(ctx context.Context, method, path string, reqBody any, out any) error {
	var bodyStr string
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("okx: marshal request for %s: %w", path, err)
		}
		bodyStr = string(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.cfg.RESTURL+path, bytes.NewBufferString(bodyStr))
	if err != nil {
		return fmt.Errorf("okx: build request for %s: %w", path, err)
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("OK-ACCESS-KEY", e.cfg.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", e.sign(timestamp, method, path, bodyStr))
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", e.cfg.Passphrase)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("okx: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("okx: read response of %s: %w", path, err)
	}

	var wrapper okxResponse
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return fmt.Errorf("okx: decode response of %s: %w", path, err)
	}
	if wrapper.Code != "0" {
		return fmt.Errorf("okx: %s returned code %s: %s", path, wrapper.Code, wrapper.Msg)
	}
	if out != nil {
		if err := json.Unmarshal(wrapper.Data, out); err != nil {
			return fmt.Errorf("okx: decode data of %s: %w", path, err)
		}
	}
	return nil
}

// toInstID 把统一符号 (BTC/USDC:USDC) 映射为 Okx 的 instId (BTC-USDC-SWAP)
func toInstID(symbol string) string {
	pair := symbol
	if i := strings.Index(pair, ":"); i >= 0 {
		pair = pair[:i]
	}
	return strings.ReplaceAll(pair, "/", "-") + "-SWAP"
}

// fromInstID 反向映射：BTC-USDC-SWAP -> BTC/USDC:USDC
func fromInstID(instID string) string {
	parts := strings.Split(instID, "-")
	if len(parts) < 2 {
		return instID
	}
	return parts[0] + "/" + parts[1] + ":" + parts[1]
}

type okxInstrument struct {
	InstID string `json:"instId"`
	State  string `json:"state"`
	LotSz  string `json:"lotSz"`
	MinSz  string `json:"minSz"`
}

func (e *OkxExchange) GetMarketInfo(ctx context.Context, symbol string) (model.MarketInfo, error) {
	path := "/api/v5/public/instruments?instType=SWAP&instId=" + toInstID(symbol)
	var instruments []okxInstrument
	if err := e.doRequest(ctx, http.MethodGet, path, nil, &instruments); err != nil {
		return model.MarketInfo{}, err
	}
	if len(instruments) == 0 {
		return model.MarketInfo{}, fmt.Errorf("okx: instrument %s not found", symbol)
	}

	inst := instruments[0]
	lotSz, err := service.StringToFloat(inst.LotSz)
	if err != nil {
		return model.MarketInfo{}, fmt.Errorf("okx: bad lotSz %q for %s: %w", inst.LotSz, symbol, err)
	}
	minSz, _ := service.StringToFloat(inst.MinSz)

	// Okx 不公布最小名义价值，MinCost 留空，由 sizing 层的保证金缓冲兜底
	return model.MarketInfo{
		Symbol:          symbol,
		Active:          inst.State == "live",
		PrecisionAmount: lotSz,
		MinAmount:       minSz,
	}, nil
}

func (e *OkxExchange) IsMarketActive(ctx context.Context, symbol string) (bool, error) {
	info, err := e.GetMarketInfo(ctx, symbol)
	if err != nil {
		return false, err
	}
	return info.Active, nil
}

type okxTicker struct {
	Last  string `json:"last"`
	BidPx string `json:"bidPx"`
	AskPx string `json:"askPx"`
}

func (e *OkxExchange) GetTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	path := "/api/v5/market/ticker?instId=" + toInstID(symbol)
	var tickers []okxTicker
	if err := e.doRequest(ctx, http.MethodGet, path, nil, &tickers); err != nil {
		return model.Ticker{}, err
	}
	if len(tickers) == 0 {
		return model.Ticker{}, fmt.Errorf("okx: ticker %s not found", symbol)
	}

	// 字段可能缺失，解析失败按 0 处理，由上层判定价格有效性
	last, _ := service.StringToFloat(tickers[0].Last)
	bid, _ := service.StringToFloat(tickers[0].BidPx)
	ask, _ := service.StringToFloat(tickers[0].AskPx)
	return model.Ticker{Symbol: symbol, Last: last, Bid: bid, Ask: ask}, nil
}

type okxBalanceDetail struct {
	Ccy      string `json:"ccy"`
	AvailBal string `json:"availBal"`
}

type okxBalance struct {
	Details []okxBalanceDetail `json:"details"`
}

func (e *OkxExchange) GetFreeBalance(ctx context.Context, asset string) (float64, error) {
	path := "/api/v5/account/balance?ccy=" + asset
	var balances []okxBalance
	if err := e.doRequest(ctx, http.MethodGet, path, nil, &balances); err != nil {
		return 0, err
	}
	for _, bal := range balances {
		for _, d := range bal.Details {
			if d.Ccy == asset {
				free, err := service.StringToFloat(d.AvailBal)
				if err != nil {
					return 0, fmt.Errorf("okx: bad availBal %q for %s: %w", d.AvailBal, asset, err)
				}
				return free, nil
			}
		}
	}
	return 0, fmt.Errorf("okx: no balance entry for asset %s", asset)
}

func (e *OkxExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	body := map[string]string{
		"instId":  toInstID(symbol),
		"lever":   fmt.Sprintf("%d", leverage),
		"mgnMode": "cross",
	}
	if err := e.doRequest(ctx, http.MethodPost, "/api/v5/account/set-leverage", body, nil); err != nil {
		return err
	}
	e.logger.Info("Leverage set", zap.String("Symbol", symbol), zap.Int("Leverage", leverage))
	return nil
}

type okxOrderAck struct {
	OrdID   string `json:"ordId"`
	AlgoID  string `json:"algoId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

// newClientOrderID 生成 Okx 允许的 clOrdId (字母数字，<=32 位)
func newClientOrderID() string {
	return "sft" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func (e *OkxExchange) CreateOrder(ctx context.Context, symbol, ordType string, side model.Side, amount, price float64, params OrderParams) (*model.OrderRef, error) {
	clOrdID := params.ClientOrderID
	if clOrdID == "" {
		clOrdID = newClientOrderID()
	}

	var path string
	body := map[string]string{
		"instId":  toInstID(symbol),
		"tdMode":  "cross",
		"side":    string(side),
		"clOrdId": clOrdID,
	}
	if params.ReduceOnly {
		body["reduceOnly"] = "true"
	}

	switch ordType {
	case model.OrderTypeStopMarket:
		// 触发式止损走 algo 下单通道；数量为 0 时让交易所按持仓全量触发
		path = "/api/v5/trade/order-algo"
		body["ordType"] = "conditional"
		body["slTriggerPx"] = fmt.Sprintf("%v", params.TriggerPrice)
		body["slOrdPx"] = "-1" // 触发后按市价成交
		if amount > 0 {
			body["sz"] = fmt.Sprintf("%v", amount)
		} else {
			body["closeFraction"] = "1"
		}
	case model.OrderTypeLimit:
		path = "/api/v5/trade/order"
		body["ordType"] = "limit"
		body["sz"] = fmt.Sprintf("%v", amount)
		body["px"] = fmt.Sprintf("%v", price)
	default: // market
		path = "/api/v5/trade/order"
		body["ordType"] = "market"
		body["sz"] = fmt.Sprintf("%v", amount)
	}

	var acks []okxOrderAck
	if err := e.doRequest(ctx, http.MethodPost, path, body, &acks); err != nil {
		return nil, err
	}
	if len(acks) == 0 {
		return nil, fmt.Errorf("okx: empty order ack for %s", symbol)
	}
	ack := acks[0]
	if ack.SCode != "" && ack.SCode != "0" {
		return nil, fmt.Errorf("okx: order rejected for %s: code %s: %s", symbol, ack.SCode, ack.SMsg)
	}

	orderID := ack.OrdID
	if orderID == "" {
		orderID = ack.AlgoID
	}
	e.logger.Info("Order accepted",
		zap.String("Symbol", symbol),
		zap.String("OrderID", orderID),
		zap.String("Type", ordType),
		zap.String("Side", string(side)),
		zap.Float64("Amount", amount),
		zap.Float64("Price", price))

	return &model.OrderRef{
		ID:            orderID,
		ClientOrderID: clOrdID,
		Status:        "accepted",
		Type:          ordType,
		Side:          side,
		Amount:        amount,
		Price:         price,
	}, nil
}

func (e *OkxExchange) CancelOrder(ctx context.Context, id, symbol string) error {
	body := map[string]string{
		"instId": toInstID(symbol),
		"ordId":  id,
	}
	if err := e.doRequest(ctx, http.MethodPost, "/api/v5/trade/cancel-order", body, nil); err != nil {
		return err
	}
	e.logger.Info("Order cancelled", zap.String("Symbol", symbol), zap.String("OrderID", id))
	return nil
}

type okxPosition struct {
	InstID  string `json:"instId"`
	PosSide string `json:"posSide"`
	Pos     string `json:"pos"`
	AvgPx   string `json:"avgPx"`
	CTime   string `json:"cTime"`
}

func (e *OkxExchange) FetchPositions(ctx context.Context) ([]model.Position, error) {
	var raw []okxPosition
	if err := e.doRequest(ctx, http.MethodGet, "/api/v5/account/positions?instType=SWAP", nil, &raw); err != nil {
		return nil, err
	}

	positions := make([]model.Position, 0, len(raw))
	for _, p := range raw {
		size, err := service.StringToFloat(p.Pos)
		if err != nil || size == 0 {
			continue
		}

		side := model.PosLong
		// 净持仓模式下 posSide 为 net，方向由数量符号决定
		if p.PosSide == "short" || (p.PosSide == "net" && size < 0) {
			side = model.PosShort
		}
		if size < 0 {
			size = -size
		}

		entry, _ := service.StringToFloat(p.AvgPx)
		positions = append(positions, model.Position{
			Symbol:     fromInstID(p.InstID),
			Side:       side,
			Size:       size,
			EntryPrice: entry,
			OpenedAt:   service.MillisToTime(p.CTime),
		})
	}
	e.logger.Info("Fetched positions", zap.Int("Count", len(positions)))
	return positions, nil
}

func (e *OkxExchange) ClosePosition(ctx context.Context, symbol string) error {
	body := map[string]string{
		"instId":  toInstID(symbol),
		"mgnMode": "cross",
	}
	if err := e.doRequest(ctx, http.MethodPost, "/api/v5/trade/close-position", body, nil); err != nil {
		return err
	}
	e.logger.Info("Position closed", zap.String("Symbol", symbol))
	return nil
}

var _ Exchange = (*OkxExchange)(nil)
