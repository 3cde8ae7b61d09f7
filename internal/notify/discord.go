package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier 在批处理结束后接收人类可读的摘要
// 通知失败只影响告警，不影响已提交的交易结果
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// DiscordNotifier 通过 webhook 把摘要发到 Discord 频道
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewDiscordNotifier 初始化 webhook 通知器
func NewDiscordNotifier(webhookURL string, logger *zap.Logger) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With(zap.String("component", "notifier")),
	}
}

func (n *DiscordNotifier) Notify(ctx context.Context, message string) error {
	payload, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	n.logger.Info("Notification sent", zap.Int("Bytes", len(payload)))
	return nil
}

// NopNotifier 在未配置通知渠道时使用
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, message string) error { return nil }

var (
	_ Notifier = (*DiscordNotifier)(nil)
	_ Notifier = NopNotifier{}
)
