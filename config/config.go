package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the root configuration for the trading engine
type Config struct {
	Server       ServerConfig       `json:"server"`
	KIS          KISConfig          `json:"kis"`
	AI           AIConfig           `json:"ai"`
	Database     DatabaseConfig     `json:"database"`
	Redis        RedisConfig        `json:"redis"`
	Vault        VaultConfig        `json:"vault"`
	Trading      TradingConfig      `json:"trading"`
	Notification NotificationConfig `json:"notification"`
	Logging      LoggingConfig      `json:"logging"`
}

// ServerConfig holds the HTTP control API settings
type ServerConfig struct {
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// KISConfig holds broker API credentials and endpoints.
// AppKey/AppSecret may be left empty when Vault is enabled.
type KISConfig struct {
	BaseURL            string        `json:"base_url"`
	AppKey             string        `json:"app_key"`
	AppSecret          string        `json:"app_secret"`
	AccountNo          string        `json:"account_no"`
	AccountProductCode string        `json:"account_product_code"`
	Timeout            time.Duration `json:"timeout"`
}

// AIConfig holds the decision-oracle settings
type AIConfig struct {
	Provider    string        `json:"provider"` // "claude", "openai", "deepseek", "local"
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	BaseURL     string        `json:"base_url"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
	MaxConns int32  `json:"max_conns"`
}

// RedisConfig holds cache settings. Disabled falls back to in-memory caching.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// VaultConfig holds secret-storage settings for broker credentials
type VaultConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
	Token   string `json:"token"`
	Path    string `json:"path"`
}

// TradingConfig holds scan and position-management tunables
type TradingConfig struct {
	CycleInterval       time.Duration `json:"cycle_interval"`
	BatchSize           int           `json:"batch_size"`
	BatchDelay          time.Duration `json:"batch_delay"`
	WorkerCount         int           `json:"worker_count"`
	BuyScoreThreshold   int           `json:"buy_score_threshold"`
	MaxTargetsPerMarket int           `json:"max_targets_per_market"`
	CandidateTick       time.Duration `json:"candidate_tick"`
	HoldingsTick        time.Duration `json:"holdings_tick"`
	ReaperInterval      time.Duration `json:"reaper_interval"`
	OrderTimeout        time.Duration `json:"order_timeout"`
	HardStopPct         float64       `json:"hard_stop_pct"`
	TrailingActivatePct float64       `json:"trailing_activate_pct"`
	TrailingOffsetPct   float64       `json:"trailing_offset_pct"`
	PriceDeviationLimit float64       `json:"price_deviation_limit"`
	SwingAllocation     float64       `json:"swing_allocation"`
	DayAllocation       float64       `json:"day_allocation"`
	Watchlist           []string      `json:"watchlist"`
}

// NotificationConfig holds alert channel settings
type NotificationConfig struct {
	Enabled           bool   `json:"enabled"`
	DiscordWebhookURL string `json:"discord_webhook_url"`
	TelegramBotToken  string `json:"telegram_bot_token"`
	TelegramChatID    string `json:"telegram_chat_id"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"`
	JSONFormat bool   `json:"json_format"`
}

// Load builds the configuration from defaults, an optional config.json,
// and environment variable overrides, in that order.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if err := cfg.loadFromFile("config.json"); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		KIS: KISConfig{
			BaseURL:            "https://openapi.koreainvestment.com:9443",
			AccountProductCode: "01",
			Timeout:            10 * time.Second,
		},
		AI: AIConfig{
			Provider:    "claude",
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   2048,
			Temperature: 0.2,
			Timeout:     120 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			DBName:   "kis_trading",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Vault: VaultConfig{
			Path: "secret/data/kis",
		},
		Trading: TradingConfig{
			CycleInterval:       300 * time.Second,
			BatchSize:           5,
			BatchDelay:          3 * time.Second,
			WorkerCount:         6,
			BuyScoreThreshold:   75,
			MaxTargetsPerMarket: 50,
			CandidateTick:       5 * time.Second,
			HoldingsTick:        10 * time.Second,
			ReaperInterval:      20 * time.Second,
			OrderTimeout:        60 * time.Second,
			HardStopPct:         -5.0,
			TrailingActivatePct: 3.0,
			TrailingOffsetPct:   1.5,
			PriceDeviationLimit: 15.0,
			SwingAllocation:     0.5,
			DayAllocation:       0.5,
		},
		Notification: NotificationConfig{},
		Logging: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnvIntOrDefault("SERVER_PORT", c.Server.Port)

	c.KIS.BaseURL = getEnvOrDefault("KIS_BASE_URL", c.KIS.BaseURL)
	c.KIS.AppKey = getEnvOrDefault("KIS_APP_KEY", c.KIS.AppKey)
	c.KIS.AppSecret = getEnvOrDefault("KIS_APP_SECRET", c.KIS.AppSecret)
	c.KIS.AccountNo = getEnvOrDefault("KIS_ACCOUNT_NO", c.KIS.AccountNo)
	c.KIS.AccountProductCode = getEnvOrDefault("KIS_ACCOUNT_PRODUCT_CODE", c.KIS.AccountProductCode)
	c.KIS.Timeout = getEnvDurationOrDefault("KIS_TIMEOUT", c.KIS.Timeout)

	c.AI.Provider = getEnvOrDefault("AI_PROVIDER", c.AI.Provider)
	c.AI.APIKey = getEnvOrDefault("AI_API_KEY", c.AI.APIKey)
	c.AI.Model = getEnvOrDefault("AI_MODEL", c.AI.Model)
	c.AI.BaseURL = getEnvOrDefault("AI_BASE_URL", c.AI.BaseURL)
	c.AI.MaxTokens = getEnvIntOrDefault("AI_MAX_TOKENS", c.AI.MaxTokens)
	c.AI.Temperature = getEnvFloatOrDefault("AI_TEMPERATURE", c.AI.Temperature)
	c.AI.Timeout = getEnvDurationOrDefault("AI_TIMEOUT", c.AI.Timeout)

	c.Database.Host = getEnvOrDefault("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvIntOrDefault("DB_PORT", c.Database.Port)
	c.Database.User = getEnvOrDefault("DB_USER", c.Database.User)
	c.Database.Password = getEnvOrDefault("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnvOrDefault("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnvOrDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvIntOrDefault("REDIS_DB", c.Redis.DB)

	c.Vault.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", c.Vault.Enabled)
	c.Vault.Address = getEnvOrDefault("VAULT_ADDR", c.Vault.Address)
	c.Vault.Token = getEnvOrDefault("VAULT_TOKEN", c.Vault.Token)
	c.Vault.Path = getEnvOrDefault("VAULT_KIS_PATH", c.Vault.Path)

	c.Trading.CycleInterval = getEnvDurationOrDefault("SCAN_CYCLE_INTERVAL", c.Trading.CycleInterval)
	c.Trading.BatchSize = getEnvIntOrDefault("SCAN_BATCH_SIZE", c.Trading.BatchSize)
	c.Trading.BatchDelay = getEnvDurationOrDefault("SCAN_BATCH_DELAY", c.Trading.BatchDelay)
	c.Trading.WorkerCount = getEnvIntOrDefault("SCAN_WORKER_COUNT", c.Trading.WorkerCount)
	c.Trading.BuyScoreThreshold = getEnvIntOrDefault("BUY_SCORE_THRESHOLD", c.Trading.BuyScoreThreshold)
	c.Trading.MaxTargetsPerMarket = getEnvIntOrDefault("MAX_TARGETS_PER_MARKET", c.Trading.MaxTargetsPerMarket)
	c.Trading.OrderTimeout = getEnvDurationOrDefault("ORDER_TIMEOUT", c.Trading.OrderTimeout)
	c.Trading.HardStopPct = getEnvFloatOrDefault("HARD_STOP_PCT", c.Trading.HardStopPct)
	c.Trading.TrailingActivatePct = getEnvFloatOrDefault("TRAILING_ACTIVATE_PCT", c.Trading.TrailingActivatePct)
	c.Trading.TrailingOffsetPct = getEnvFloatOrDefault("TRAILING_OFFSET_PCT", c.Trading.TrailingOffsetPct)

	c.Notification.Enabled = getEnvBoolOrDefault("NOTIFY_ENABLED", c.Notification.Enabled)
	c.Notification.DiscordWebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", c.Notification.DiscordWebhookURL)
	c.Notification.TelegramBotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", c.Notification.TelegramBotToken)
	c.Notification.TelegramChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", c.Notification.TelegramChatID)

	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Output = getEnvOrDefault("LOG_OUTPUT", c.Logging.Output)
	c.Logging.JSONFormat = getEnvBoolOrDefault("LOG_JSON", c.Logging.JSONFormat)
}

// Validate checks settings the engine cannot run without
func (c *Config) Validate() error {
	if !c.Vault.Enabled {
		if c.KIS.AppKey == "" || c.KIS.AppSecret == "" {
			return fmt.Errorf("KIS credentials missing: set KIS_APP_KEY/KIS_APP_SECRET or enable Vault")
		}
	}
	if c.KIS.AccountNo == "" {
		return fmt.Errorf("KIS_ACCOUNT_NO is required")
	}
	if c.Trading.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Trading.BatchSize)
	}
	if c.Trading.SwingAllocation+c.Trading.DayAllocation > 1.0001 {
		return fmt.Errorf("style allocations exceed total budget: swing=%.2f day=%.2f",
			c.Trading.SwingAllocation, c.Trading.DayAllocation)
	}
	if c.Trading.HardStopPct >= 0 {
		return fmt.Errorf("hard stop must be negative, got %.2f", c.Trading.HardStopPct)
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBoolOrDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDurationOrDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Plain numbers are read as seconds
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
