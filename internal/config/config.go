package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kjannette/microtrend-backend/internal/models"
	"github.com/kjannette/microtrend-backend/internal/precision"
)

const (
	mainnetURL = "https://fapi.binance.com"
	testnetURL = "https://testnet.binancefuture.com"
)

type Config struct {
	// App
	BotName         string `yaml:"bot_name"`
	APIPort         int    `yaml:"api_port"`
	APIKey          string `yaml:"-"`
	CORSAllowOrigin string `yaml:"cors_allow_origin"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"` // json or console
	AutoStart       bool   `yaml:"auto_start"`

	// Exchange
	BinanceAPIKey    string `yaml:"-"`
	BinanceAPISecret string `yaml:"-"`
	BinanceTestnet   bool   `yaml:"binance_testnet"`

	// Trading
	Mode              models.Mode `yaml:"mode"`
	Symbol            string      `yaml:"symbol"`
	ScanSymbols       []string    `yaml:"scan_symbols"`
	Leverage          int         `yaml:"leverage"`
	RiskPerTrade      float64     `yaml:"risk_per_trade"`
	CandleInterval    string      `yaml:"candle_interval"`
	CandleLimit       int         `yaml:"candle_limit"`
	PricePrecision    int         `yaml:"price_precision"`
	QuantityPrecision int         `yaml:"quantity_precision"`

	// Paper Trading
	PaperTrading bool    `yaml:"paper_trading"`
	PaperBalance float64 `yaml:"paper_balance"`

	// Scalping
	StopATRMultiplier   float64 `yaml:"sl_atr_multiplier"`
	TargetATRMultiplier float64 `yaml:"tp_atr_multiplier"`
	RSILongMin          float64 `yaml:"rsi_long_min"`
	RSILongMax          float64 `yaml:"rsi_long_max"`
	RSIShortMin         float64 `yaml:"rsi_short_min"`
	RSIShortMax         float64 `yaml:"rsi_short_max"`
	FearGreedEnabled    bool    `yaml:"fear_greed_enabled"`

	// Grid
	GridUpper      float64 `yaml:"grid_upper"`
	GridLower      float64 `yaml:"grid_lower"`
	GridCount      int     `yaml:"grid_count"`
	GridInvestment float64 `yaml:"grid_investment"`

	// DCA
	DCAIntervalSeconds int     `yaml:"dca_interval_seconds"`
	DCAAmount          float64 `yaml:"dca_amount"`
	DCADropPct         float64 `yaml:"dca_drop_pct"`

	// Trailing take-profit
	TrailingEnabled       bool    `yaml:"trailing_tp"`
	TrailingActivationPct float64 `yaml:"trailing_tp_activation"`
	TrailingCallbackPct   float64 `yaml:"trailing_tp_callback"`

	// Risk Management
	MaxTradesPerDay      int     `yaml:"max_trades_per_day"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	MaxDailyDrawdownPct  float64 `yaml:"max_daily_drawdown_pct"`
	MaxFundingRate       float64 `yaml:"max_funding_rate"`

	// Notifications
	WebhookURL       string `yaml:"-"`
	TelegramBotToken string `yaml:"-"`
	TelegramChatID   string `yaml:"telegram_chat_id"`

	// Storage
	StorageDriver string `yaml:"storage_driver"` // none, sqlite, postgres
	SQLitePath    string `yaml:"sqlite_path"`
	DBHost        string `yaml:"db_host"`
	DBPort        int    `yaml:"db_port"`
	DBName        string `yaml:"db_name"`
	DBUser        string `yaml:"db_user"`
	DBPassword    string `yaml:"-"`

	// Cache
	RedisAddr             string `yaml:"redis_addr"`
	RedisPassword         string `yaml:"-"`
	RedisDB               int    `yaml:"redis_db"`
	CandleCacheTTLSeconds int    `yaml:"candle_cache_ttl_seconds"`

	// Timing
	CycleIntervalSeconds int `yaml:"cycle_interval_seconds"`
	CycleOffsetSeconds   int `yaml:"cycle_offset_seconds"`
	ErrorCooldownSeconds int `yaml:"error_cooldown_seconds"`
}

func Defaults() *Config {
	return &Config{
		BotName:         "MicroTrend",
		APIPort:         3001,
		CORSAllowOrigin: "*",
		LogLevel:        "info",
		LogFormat:       "json",

		BinanceTestnet: true,

		Mode:              models.ModeScalping,
		Symbol:            "BTCUSDT",
		ScanSymbols:       []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT"},
		Leverage:          5,
		RiskPerTrade:      0.003,
		CandleInterval:    "5m",
		CandleLimit:       100,
		PricePrecision:    2,
		QuantityPrecision: 3,

		PaperTrading: true,
		PaperBalance: 100,

		StopATRMultiplier:   1.5,
		TargetATRMultiplier: 0.8,
		RSILongMin:          40,
		RSILongMax:          50,
		RSIShortMin:         50,
		RSIShortMax:         60,

		GridCount:      10,
		GridInvestment: 50,

		DCAIntervalSeconds: 3600,
		DCAAmount:          10,
		DCADropPct:         2,

		TrailingEnabled:       true,
		TrailingActivationPct: 0.3,
		TrailingCallbackPct:   0.1,

		MaxTradesPerDay:      3,
		MaxConsecutiveLosses: 1,
		MaxDailyDrawdownPct:  1.0,
		MaxFundingRate:       0.0003,

		StorageDriver: "none",
		SQLitePath:    "microtrend.db",
		DBHost:        "localhost",
		DBPort:        5432,
		DBName:        "microtrend",

		CandleCacheTTLSeconds: 30,

		CycleIntervalSeconds: 300,
		CycleOffsetSeconds:   5,
		ErrorCooldownSeconds: 60,
	}
}

// Load builds the config from defaults, then the optional YAML file at
// path, then .env and the process environment. Later sources win.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	// App
	c.BotName = envStr("BOT_NAME", c.BotName)
	c.APIPort = envInt("API_PORT", c.APIPort)
	c.APIKey = envStr("API_KEY", c.APIKey)
	c.CORSAllowOrigin = envStr("CORS_ALLOW_ORIGIN", c.CORSAllowOrigin)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("LOG_FORMAT", c.LogFormat)
	c.AutoStart = envBool("AUTO_START", c.AutoStart)

	// Exchange
	c.BinanceAPIKey = envStr("BINANCE_API_KEY", c.BinanceAPIKey)
	c.BinanceAPISecret = envStr("BINANCE_API_SECRET", c.BinanceAPISecret)
	c.BinanceTestnet = envBool("BINANCE_TESTNET", c.BinanceTestnet)

	// Trading
	c.Mode = models.ParseMode(envStr("TRADING_MODE", string(c.Mode)))
	c.Symbol = strings.ToUpper(envStr("TRADING_SYMBOL", c.Symbol))
	c.ScanSymbols = envList("SCAN_SYMBOLS", c.ScanSymbols)
	c.Leverage = envInt("LEVERAGE", c.Leverage)
	c.RiskPerTrade = envFloat("RISK_PER_TRADE", c.RiskPerTrade)
	c.CandleInterval = envStr("CANDLE_INTERVAL", c.CandleInterval)
	c.CandleLimit = envInt("CANDLE_LIMIT", c.CandleLimit)
	c.PricePrecision = envInt("PRICE_PRECISION", c.PricePrecision)
	c.QuantityPrecision = envInt("QUANTITY_PRECISION", c.QuantityPrecision)

	// Paper Trading
	c.PaperTrading = envBool("PAPER_TRADING", c.PaperTrading)
	c.PaperBalance = envFloat("PAPER_BALANCE", c.PaperBalance)

	// Scalping
	c.StopATRMultiplier = envFloat("SL_ATR_MULTIPLIER", c.StopATRMultiplier)
	c.TargetATRMultiplier = envFloat("TP_ATR_MULTIPLIER", c.TargetATRMultiplier)
	c.RSILongMin = envFloat("RSI_LONG_MIN", c.RSILongMin)
	c.RSILongMax = envFloat("RSI_LONG_MAX", c.RSILongMax)
	c.RSIShortMin = envFloat("RSI_SHORT_MIN", c.RSIShortMin)
	c.RSIShortMax = envFloat("RSI_SHORT_MAX", c.RSIShortMax)
	c.FearGreedEnabled = envBool("FEAR_GREED_ENABLED", c.FearGreedEnabled)

	// Grid
	c.GridUpper = envFloat("GRID_UPPER", c.GridUpper)
	c.GridLower = envFloat("GRID_LOWER", c.GridLower)
	c.GridCount = envInt("GRID_COUNT", c.GridCount)
	c.GridInvestment = envFloat("GRID_INVESTMENT", c.GridInvestment)

	// DCA
	c.DCAIntervalSeconds = envInt("DCA_INTERVAL", c.DCAIntervalSeconds)
	c.DCAAmount = envFloat("DCA_AMOUNT", c.DCAAmount)
	c.DCADropPct = envFloat("DCA_DROP_PCT", c.DCADropPct)

	// Trailing
	c.TrailingEnabled = envBool("TRAILING_TP", c.TrailingEnabled)
	c.TrailingActivationPct = envFloat("TRAILING_TP_ACTIVATION", c.TrailingActivationPct)
	c.TrailingCallbackPct = envFloat("TRAILING_TP_CALLBACK", c.TrailingCallbackPct)

	// Risk
	c.MaxTradesPerDay = envInt("MAX_TRADES_PER_DAY", c.MaxTradesPerDay)
	c.MaxConsecutiveLosses = envInt("MAX_CONSECUTIVE_LOSSES", c.MaxConsecutiveLosses)
	c.MaxDailyDrawdownPct = envFloat("MAX_DAILY_DRAWDOWN_PCT", c.MaxDailyDrawdownPct)
	c.MaxFundingRate = envFloat("MAX_FUNDING_RATE", c.MaxFundingRate)

	// Notifications
	c.WebhookURL = envStr("WEBHOOK_URL", c.WebhookURL)
	c.TelegramBotToken = envStr("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.TelegramChatID = envStr("TELEGRAM_CHAT_ID", c.TelegramChatID)

	// Storage
	c.StorageDriver = strings.ToLower(envStr("STORAGE_DRIVER", c.StorageDriver))
	c.SQLitePath = envStr("SQLITE_PATH", c.SQLitePath)
	c.DBHost = envStr("DB_HOST", c.DBHost)
	c.DBPort = envInt("DB_PORT", c.DBPort)
	c.DBName = envStr("DB_NAME", c.DBName)
	c.DBUser = envStr("DB_USER", c.DBUser)
	c.DBPassword = envStr("DB_PASSWORD", c.DBPassword)

	// Cache
	c.RedisAddr = envStr("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envStr("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = envInt("REDIS_DB", c.RedisDB)
	c.CandleCacheTTLSeconds = envInt("CANDLE_CACHE_TTL_SECONDS", c.CandleCacheTTLSeconds)

	// Timing
	c.CycleIntervalSeconds = envInt("CYCLE_INTERVAL_SECONDS", c.CycleIntervalSeconds)
	c.CycleOffsetSeconds = envInt("CYCLE_OFFSET_SECONDS", c.CycleOffsetSeconds)
	c.ErrorCooldownSeconds = envInt("ERROR_COOLDOWN_SECONDS", c.ErrorCooldownSeconds)
}

func (c *Config) Validate() error {
	var errs []string

	if c.Symbol == "" {
		errs = append(errs, "TRADING_SYMBOL is required")
	}
	if c.Leverage < 1 || c.Leverage > 125 {
		errs = append(errs, fmt.Sprintf("LEVERAGE must be 1..125, got %d", c.Leverage))
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade > 0.1 {
		errs = append(errs, fmt.Sprintf("RISK_PER_TRADE must be in (0, 0.1], got %g", c.RiskPerTrade))
	}
	if c.CandleLimit < 51 {
		errs = append(errs, fmt.Sprintf("CANDLE_LIMIT must be at least 51 for EMA50, got %d", c.CandleLimit))
	}
	if c.RSILongMin > c.RSILongMax || c.RSIShortMin > c.RSIShortMax {
		errs = append(errs, "RSI band minimums must not exceed maximums")
	}
	if c.StopATRMultiplier <= 0 || c.TargetATRMultiplier <= 0 {
		errs = append(errs, "SL_ATR_MULTIPLIER and TP_ATR_MULTIPLIER must be positive")
	}
	if c.GridCount < 1 {
		errs = append(errs, "GRID_COUNT must be at least 1")
	}
	if c.GridUpper != 0 && c.GridLower != 0 && c.GridUpper <= c.GridLower {
		errs = append(errs, "GRID_UPPER must be above GRID_LOWER")
	}
	if c.PaperTrading && c.PaperBalance <= 0 {
		errs = append(errs, "PAPER_BALANCE must be positive in paper mode")
	}
	if !c.PaperTrading && (c.BinanceAPIKey == "" || c.BinanceAPISecret == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET are required for live trading")
	}
	if c.CycleIntervalSeconds <= 0 {
		errs = append(errs, "CYCLE_INTERVAL_SECONDS must be positive")
	}
	if c.PricePrecision < 0 || c.QuantityPrecision < 0 {
		errs = append(errs, "PRICE_PRECISION and QUANTITY_PRECISION must not be negative")
	}
	switch c.StorageDriver {
	case "none", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER must be none, sqlite or postgres, got %q", c.StorageDriver))
	}
	if c.StorageDriver == "postgres" && c.DBUser == "" {
		errs = append(errs, "DB_USER is required for postgres storage")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Warnings lists settings that are legal but probably unintended.
func (c *Config) Warnings() []string {
	var w []string
	if c.APIKey == "" {
		w = append(w, "API_KEY not set, REST API has no authentication")
	}
	if c.MaxTradesPerDay == 0 && c.MaxConsecutiveLosses == 0 && c.MaxDailyDrawdownPct == 0 {
		w = append(w, "all daily risk limits are 0, no trade gating active")
	}
	if c.WebhookURL == "" && c.TelegramBotToken == "" {
		w = append(w, "no WEBHOOK_URL or TELEGRAM_BOT_TOKEN, notifications go to the log only")
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == "" {
		w = append(w, "TELEGRAM_BOT_TOKEN set without TELEGRAM_CHAT_ID, Telegram disabled")
	}
	if !c.PaperTrading && c.BinanceTestnet {
		w = append(w, "live trading against the Binance testnet")
	}
	if c.StorageDriver == "none" {
		w = append(w, "STORAGE_DRIVER=none, state is lost on restart")
	}
	return w
}

// SizingWarnings flags DCA_AMOUNT and the per-level grid allocation when
// either rounds to zero lots of QUANTITY_PRECISION at price. Paper fills
// are sized exactly, so only live trading is checked.
func (c *Config) SizingWarnings(price float64) []string {
	if c.PaperTrading || price <= 0 {
		return nil
	}
	prec := int32(c.QuantityPrecision)
	lot := math.Pow10(-c.QuantityPrecision)
	lotUSD := lot * price

	var w []string
	if precision.Round(c.DCAAmount/price, prec) <= 0 {
		w = append(w, fmt.Sprintf("DCA_AMOUNT $%.2f is below one %g lot of %s at $%.2f, DCA buys need about $%.2f",
			c.DCAAmount, lot, c.Symbol, price, lotUSD))
	}
	if c.GridCount > 0 && c.Leverage > 0 {
		perLevel := c.GridInvestment / float64(c.GridCount) * float64(c.Leverage) / price
		if precision.Round(perLevel, prec) <= 0 {
			w = append(w, fmt.Sprintf("GRID_INVESTMENT $%.2f over %d levels at %dx is below one %g lot of %s per level at $%.2f, grid orders need about $%.2f",
				c.GridInvestment, c.GridCount, c.Leverage, lot, c.Symbol, price, lotUSD*float64(c.GridCount)/float64(c.Leverage)))
		}
	}
	return w
}

// LogSummary writes the effective configuration, minus secrets.
func (c *Config) LogSummary(log *zap.Logger) {
	log.Info("configuration",
		zap.String("bot", c.BotName),
		zap.String("mode", string(c.Mode)),
		zap.String("symbol", c.Symbol),
		zap.Int("leverage", c.Leverage),
		zap.Float64("riskPerTrade", c.RiskPerTrade),
		zap.Bool("paperTrading", c.PaperTrading),
		zap.Float64("paperBalance", c.PaperBalance),
		zap.String("exchange", c.BinanceBaseURL()),
		zap.String("interval", c.CandleInterval),
		zap.Duration("cycle", c.CycleInterval()),
		zap.Int("maxTradesPerDay", c.MaxTradesPerDay),
		zap.Int("maxConsecutiveLosses", c.MaxConsecutiveLosses),
		zap.Float64("maxDailyDrawdownPct", c.MaxDailyDrawdownPct),
		zap.Bool("trailing", c.TrailingEnabled),
		zap.String("storage", c.StorageDriver),
		zap.Bool("redis", c.RedisAddr != ""),
		zap.String("webhook", boolLabel(c.WebhookURL != "", "configured", "not set")),
		zap.String("telegram", boolLabel(c.TelegramBotToken != "" && c.TelegramChatID != "", "configured", "not set")),
	)
}

func (c *Config) BinanceBaseURL() string {
	if c.BinanceTestnet {
		return testnetURL
	}
	return mainnetURL
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.CycleIntervalSeconds) * time.Second
}

func (c *Config) CycleOffset() time.Duration {
	return time.Duration(c.CycleOffsetSeconds) * time.Second
}

func (c *Config) ErrorCooldown() time.Duration {
	return time.Duration(c.ErrorCooldownSeconds) * time.Second
}

func (c *Config) DCAInterval() time.Duration {
	return time.Duration(c.DCAIntervalSeconds) * time.Second
}

func (c *Config) CandleCacheTTL() time.Duration {
	return time.Duration(c.CandleCacheTTLSeconds) * time.Second
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
