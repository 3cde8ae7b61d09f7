// internal/service/config.go
package service

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ExchangeConfig 定义了交易所的连接信息
type ExchangeConfig struct {
	Name       string
	APIKey     string
	SecretKey  string
	Passphrase string // Okx 独有
	RESTURL    string
	DryRun     bool // true 时使用内存撮合，不触达真实交易所
}

// TradingConfig 定义了批处理周期的交易参数
type TradingConfig struct {
	Leverage          int     // 固定杠杆倍数
	MaxPositions      int     // 持仓槽位上限
	TargetNotionalUSD float64 // 每笔开仓的目标名义价值；<=0 表示用最小可交易量
	MarginAsset       string  // 保证金资产，例如 USDC / USDT
	MaxPositionAgeHrs int     // 超过该小时数的持仓会被强平
	UseTakeProfitStop bool    // 是否保留信号携带的 TP/SL 价格
}

// SignalSourceConfig 定义了信号来源
type SignalSourceConfig struct {
	Kind       string // "sqlite" 或 "ws"
	SQLitePath string
	WSURL      string
	WSDrainMS  int // ws 模式下单周期最多等待的毫秒数
}

// NotifyConfig 定义了通知渠道
type NotifyConfig struct {
	DiscordWebhookURL string
}

// MetricsConfig 定义了指标暴露端口
type MetricsConfig struct {
	ListenAddr string // 为空则不启动 /metrics
}

type Config struct {
	LogLevel string             `mapstructure:"LogLevel"`
	Exchange ExchangeConfig     `mapstructure:"Exchange"`
	Trading  TradingConfig      `mapstructure:"Trading"`
	Signals  SignalSourceConfig `mapstructure:"Signals"`
	Notify   NotifyConfig       `mapstructure:"Notify"`
	Metrics  MetricsConfig      `mapstructure:"Metrics"`
}

// GlobalConfig 存储加载后的全局配置
var GlobalConfig Config

// LoadConfig 读取并解析配置文件
// API 密钥优先从环境变量 (.env) 读取，避免写进 yaml
func LoadConfig(configPath string) (*Config, error) {
	// .env 不存在不算错误，线上环境通常直接注入环境变量
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)

	viper.SetDefault("Trading.Leverage", 2)
	viper.SetDefault("Trading.MaxPositions", 10)
	viper.SetDefault("Trading.MarginAsset", "USDC")
	viper.SetDefault("Trading.MaxPositionAgeHrs", 72)
	viper.SetDefault("Signals.SQLitePath", "signals.db")
	viper.SetDefault("Signals.WSDrainMS", 3000)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		return nil, fmt.Errorf("decoding config into struct: %w", err)
	}

	// 密钥只接受环境变量注入
	viper.AutomaticEnv()
	if v := viper.GetString("EXCHANGE_API_KEY"); v != "" {
		GlobalConfig.Exchange.APIKey = v
	}
	if v := viper.GetString("EXCHANGE_SECRET_KEY"); v != "" {
		GlobalConfig.Exchange.SecretKey = v
	}
	if v := viper.GetString("EXCHANGE_PASSPHRASE"); v != "" {
		GlobalConfig.Exchange.Passphrase = v
	}

	if err := GlobalConfig.validate(); err != nil {
		return nil, err
	}
	return &GlobalConfig, nil
}

func (c *Config) validate() error {
	if c.Trading.Leverage <= 0 {
		return fmt.Errorf("Trading.Leverage must be positive, got %d", c.Trading.Leverage)
	}
	if c.Trading.MaxPositions <= 0 {
		return fmt.Errorf("Trading.MaxPositions must be positive, got %d", c.Trading.MaxPositions)
	}
	if c.Trading.MarginAsset == "" {
		return fmt.Errorf("Trading.MarginAsset must not be empty")
	}
	switch c.Signals.Kind {
	case "sqlite", "ws", "":
	default:
		return fmt.Errorf("Signals.Kind must be sqlite or ws, got %q", c.Signals.Kind)
	}
	return nil
}
