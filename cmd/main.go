package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-futures-trader/internal/exchange"
	"signal-futures-trader/internal/execution"
	"signal-futures-trader/internal/metrics"
	"signal-futures-trader/internal/notify"
	"signal-futures-trader/internal/portfolio"
	sigsource "signal-futures-trader/internal/signal"
	"signal-futures-trader/internal/service"
	"signal-futures-trader/internal/trader"

	"go.uber.org/zap"
)

func main() {
	service.InitLogger("")
	defer service.Logger.Sync()

	configPath := "config"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		service.Logger.Fatal("Configuration directory 'config/' not found. Please create it.")
	}
	cfg, err := service.LoadConfig(configPath)
	if err != nil {
		service.Logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.LogLevel != "" {
		service.InitLogger(cfg.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. 可选的 /metrics 端点
	if cfg.Metrics.ListenAddr != "" {
		go func() {
			service.Logger.Info("Starting metrics endpoint", zap.String("Addr", cfg.Metrics.ListenAddr))
			if err := metrics.Serve(cfg.Metrics.ListenAddr); err != nil {
				service.Logger.Error("Metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	// 2. 交易所：DryRun 走内存撮合，其余走 Okx
	var ex exchange.Exchange
	if cfg.Exchange.DryRun {
		service.Logger.Warn("Dry run enabled, using in-memory paper exchange")
		ex = exchange.NewPaperExchange(cfg.Trading.MarginAsset, 10000, service.Logger)
	} else {
		ex = exchange.NewOkxExchange(&exchange.OkxConfig{
			APIKey:     cfg.Exchange.APIKey,
			SecretKey:  cfg.Exchange.SecretKey,
			Passphrase: cfg.Exchange.Passphrase,
			RESTURL:    cfg.Exchange.RESTURL,
		}, service.Logger)
	}

	// 3. 信号源：sqlite 落库轮询或 WebSocket 推送
	defaults := sigsource.Defaults{
		TargetNotional: cfg.Trading.TargetNotionalUSD,
		UseTPSL:        cfg.Trading.UseTakeProfitStop,
	}
	var source sigsource.Source
	switch cfg.Signals.Kind {
	case "ws":
		feed := sigsource.NewFeed(cfg.Signals.WSURL, time.Duration(cfg.Signals.WSDrainMS)*time.Millisecond, defaults, service.Logger)
		go feed.Start(ctx)
		source = feed
	default:
		store, err := sigsource.OpenSQLiteStore(cfg.Signals.SQLitePath, defaults, service.Logger)
		if err != nil {
			service.Logger.Fatal("Failed to open signal store", zap.Error(err))
		}
		defer store.Close()
		source = store
	}

	// 4. 通知渠道
	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notify.DiscordWebhookURL != "" {
		notifier = notify.NewDiscordNotifier(cfg.Notify.DiscordWebhookURL, service.Logger)
	}

	// 5. 组装流水线，跑一轮周期 (调度交给 cron/systemd timer)
	tr := trader.New(ex, source,
		execution.NewTradeExecutor(ex, cfg.Trading.MarginAsset, service.Logger),
		portfolio.NewStalePolicy(ex, time.Duration(cfg.Trading.MaxPositionAgeHrs)*time.Hour, service.Logger),
		notifier, cfg.Trading.Leverage, cfg.Trading.MaxPositions, cfg.Trading.MarginAsset, service.Logger)

	report, err := tr.RunCycle(ctx)
	if err != nil {
		service.Logger.Fatal("Trading cycle failed", zap.Error(err))
	}
	service.Logger.Info("Trading cycle finished", zap.String("Report", report.Summary()))
}
