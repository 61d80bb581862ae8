package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"trailskim/market"
)

// Config 运行时配置，全部来自环境变量（支持 .env 文件）
type Config struct {
	BinanceAPIKey    string
	BinanceSecretKey string

	TelegramToken  string
	TelegramChatID int64

	// StatePath SQLite 状态库路径
	StatePath string
	// TickerPath 每个币种的分批止盈配置文件（JSON）
	TickerPath string

	// CandleInterval 指标使用的K线周期
	CandleInterval string
	// CandleLookback 每轮拉取的K线数量
	CandleLookback int

	// PollInterval watch 模式的轮询间隔
	PollInterval time.Duration
	// UseKlineCache watch 模式是否启用 WebSocket K线缓存
	UseKlineCache bool
}

// TickerConfig 单个币种的静态配置：分批止盈价位（有序）与最终目标价。
// 运行期间不可变。
type TickerConfig struct {
	SkimLevels []float64 `json:"skim_levels"`
	Target     float64   `json:"target"`
}

// Load 读取 .env（存在时）并组装配置
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("加载环境文件 %s 失败: %w", envPath, err)
		}
	} else {
		// 当前目录的 .env 可选
		_ = godotenv.Load()
	}

	cfg := &Config{
		BinanceAPIKey:    getEnv("BINANCE_API_KEY", ""),
		BinanceSecretKey: getEnv("BINANCE_SECRET_KEY", ""),
		TelegramToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		StatePath:        getEnv("STATE_DB_PATH", "trailskim_state.db"),
		TickerPath:       getEnv("TICKER_CONFIG_PATH", "tickers.json"),
		CandleInterval:   getEnv("CANDLE_INTERVAL", "15m"),
		CandleLookback:   getEnvInt("CANDLE_LOOKBACK", 120),
		PollInterval:     time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 60)) * time.Second,
		UseKlineCache:    getEnvBool("USE_KLINE_CACHE", true),
	}

	if chatID := getEnv("TELEGRAM_CHAT_ID", ""); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID 无效: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.CandleLookback < market.ATRPeriod+1 {
		return nil, fmt.Errorf("CANDLE_LOOKBACK=%d 过小，ATR%d 至少需要 %d 根K线",
			cfg.CandleLookback, market.ATRPeriod, market.ATRPeriod+1)
	}
	if cfg.PollInterval < time.Second {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS 必须 ≥ 1")
	}

	return cfg, nil
}

// LoadTickers 读取币种配置文件，键为交易对（自动标准化为USDT对）
func LoadTickers(path string) (map[string]TickerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取币种配置 %s 失败: %w", path, err)
	}

	var raw map[string]TickerConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("解析币种配置 %s 失败: %w", path, err)
	}

	tickers := make(map[string]TickerConfig, len(raw))
	for symbol, tc := range raw {
		normalized := market.Normalize(symbol)
		for _, level := range tc.SkimLevels {
			if level <= 0 {
				return nil, fmt.Errorf("%s 存在非法止盈价位 %v", normalized, level)
			}
		}
		if tc.Target <= 0 {
			return nil, fmt.Errorf("%s 缺少目标价", normalized)
		}
		tickers[normalized] = tc
	}
	return tickers, nil
}

// --------- Env helpers ---------

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		return def
	}
}
