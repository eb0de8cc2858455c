package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BinanceConfig   BinanceConfig   `json:"binance" yaml:"binance"`
	EngineConfig    EngineConfig    `json:"engine" yaml:"engine"`
	ScannerConfig   ScannerConfig   `json:"scanner" yaml:"scanner"`
	LifecycleConfig LifecycleConfig `json:"lifecycle" yaml:"lifecycle"`
	LoggingConfig   LoggingConfig   `json:"logging" yaml:"logging"`
	ServerConfig    ServerConfig    `json:"server" yaml:"server"`
	DatabaseConfig  DatabaseConfig  `json:"database" yaml:"database"`
	RedisConfig     RedisConfig     `json:"redis" yaml:"redis"`
	VaultConfig     VaultConfig     `json:"vault" yaml:"vault"`

	NotificationConfig NotificationConfig `json:"notifications" yaml:"notifications"`
}

type BinanceConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url"`
	StreamURL      string `json:"stream_url" yaml:"stream_url"`
	MockMode       bool   `json:"mock_mode" yaml:"mock_mode"`             // Use simulated data when Binance API is unavailable
	StreamEnabled  bool   `json:"stream_enabled" yaml:"stream_enabled"`   // Push mini-ticker prices into the price cache
	RequestTimeout int    `json:"request_timeout" yaml:"request_timeout"` // Seconds
}

// EngineConfig holds signal generation settings
type EngineConfig struct {
	DefaultMinConfidence int       `json:"default_min_confidence" yaml:"default_min_confidence"`
	CandleLimit          int       `json:"candle_limit" yaml:"candle_limit"`
	PriceTTLMs           int       `json:"price_ttl_ms" yaml:"price_ttl_ms"`
	FetchTimeout         int       `json:"fetch_timeout" yaml:"fetch_timeout"` // Seconds
	TakeProfitMultiples  []float64 `json:"take_profit_multiples" yaml:"take_profit_multiples"`
	MinRiskReward        float64   `json:"min_risk_reward" yaml:"min_risk_reward"`
	UseLivePrice         bool      `json:"use_live_price" yaml:"use_live_price"` // Price from the ticker instead of the last close
}

// WatchItem is one scanner target
type WatchItem struct {
	Symbol    string `json:"symbol" yaml:"symbol"`
	Timeframe string `json:"timeframe" yaml:"timeframe"`
}

type ScannerConfig struct {
	Enabled       bool        `json:"enabled" yaml:"enabled"`
	Schedule      string      `json:"schedule" yaml:"schedule"` // Cron spec with seconds field
	Watchlist     []WatchItem `json:"watchlist" yaml:"watchlist"`
	WorkerCount   int         `json:"worker_count" yaml:"worker_count"`
	MinConfidence int         `json:"min_confidence" yaml:"min_confidence"`
	OrderType     string      `json:"order_type" yaml:"order_type"`
	CooldownMin   int         `json:"cooldown_minutes" yaml:"cooldown_minutes"` // Skip a target this long after it produced a signal
}

// LifecycleConfig holds active signal monitoring settings
type LifecycleConfig struct {
	Enabled     bool `json:"enabled" yaml:"enabled"`
	IntervalSec int  `json:"interval_sec" yaml:"interval_sec"`
	ExpiryHours int  `json:"expiry_hours" yaml:"expiry_hours"`
}

type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`               // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output" yaml:"output"`             // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format" yaml:"json_format"`   // Output as JSON
	IncludeFile bool   `json:"include_file" yaml:"include_file"` // Include file and line number
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               int    `json:"port" yaml:"port"`
	Host               string `json:"host" yaml:"host"`
	AllowedOrigins     string `json:"allowed_origins" yaml:"allowed_origins"` // CORS allowed origins
	ReadTimeout        int    `json:"read_timeout" yaml:"read_timeout"`       // Seconds
	WriteTimeout       int    `json:"write_timeout" yaml:"write_timeout"`     // Seconds
	ShutdownTimeout    int    `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
}

// DatabaseConfig selects and configures the signal store
type DatabaseConfig struct {
	Driver     string `json:"driver" yaml:"driver"` // postgres or sqlite
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	User       string `json:"user" yaml:"user"`
	Password   string `json:"password" yaml:"password"`
	Name       string `json:"name" yaml:"name"`
	SSLMode    string `json:"ssl_mode" yaml:"ssl_mode"`
	MaxConns   int    `json:"max_conns" yaml:"max_conns"`
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
}

// RedisConfig holds Redis configuration for the shared price and signal cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
}

// NotificationConfig holds signal notification settings
type NotificationConfig struct {
	Enabled       bool           `json:"enabled" yaml:"enabled"`
	MinConfidence int            `json:"min_confidence" yaml:"min_confidence"` // Only announce signals at or above this score
	Telegram      TelegramConfig `json:"telegram" yaml:"telegram"`
	Discord       DiscordConfig  `json:"discord" yaml:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	BotToken string `json:"bot_token" yaml:"bot_token"`
	ChatID   string `json:"chat_id" yaml:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Address    string `json:"address" yaml:"address"`
	Token      string `json:"token" yaml:"token"`
	MountPath  string `json:"mount_path" yaml:"mount_path"`   // KV secrets engine mount path
	SecretPath string `json:"secret_path" yaml:"secret_path"` // Path of the infrastructure secret
}

// Load reads config.json/config.yaml (missing file means defaults), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := loadFromFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var config Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, &config)
	default:
		err = json.Unmarshal(file, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BinanceConfig.BaseURL == "" {
		cfg.BinanceConfig.BaseURL = "https://api.binance.com"
	}
	if cfg.BinanceConfig.StreamURL == "" {
		cfg.BinanceConfig.StreamURL = "wss://stream.binance.com:9443"
	}
	if cfg.BinanceConfig.RequestTimeout == 0 {
		cfg.BinanceConfig.RequestTimeout = 10
	}

	e := &cfg.EngineConfig
	if e.DefaultMinConfidence == 0 {
		e.DefaultMinConfidence = 35
	}
	if e.CandleLimit == 0 {
		e.CandleLimit = 200
	}
	if e.PriceTTLMs == 0 {
		e.PriceTTLMs = 2000
	}
	if e.FetchTimeout == 0 {
		e.FetchTimeout = 15
	}
	if len(e.TakeProfitMultiples) == 0 {
		e.TakeProfitMultiples = []float64{2, 3, 5}
	}
	if e.MinRiskReward == 0 {
		e.MinRiskReward = 1.2
	}

	s := &cfg.ScannerConfig
	if s.Schedule == "" {
		s.Schedule = "0 */15 * * * *"
	}
	if s.WorkerCount == 0 {
		s.WorkerCount = 4
	}
	if s.MinConfidence == 0 {
		s.MinConfidence = e.DefaultMinConfidence
	}
	if s.OrderType == "" {
		s.OrderType = "market"
	}
	if len(s.Watchlist) == 0 {
		s.Watchlist = []WatchItem{
			{Symbol: "BTCUSDT", Timeframe: "1h"},
			{Symbol: "ETHUSDT", Timeframe: "1h"},
		}
	}

	if cfg.LifecycleConfig.IntervalSec == 0 {
		cfg.LifecycleConfig.IntervalSec = 15
	}
	if cfg.LifecycleConfig.ExpiryHours == 0 {
		cfg.LifecycleConfig.ExpiryHours = 72
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "INFO"
	}
	if cfg.LoggingConfig.Output == "" {
		cfg.LoggingConfig.Output = "stdout"
	}

	srv := &cfg.ServerConfig
	if srv.Port == 0 {
		srv.Port = 8080
	}
	if srv.Host == "" {
		srv.Host = "0.0.0.0"
	}
	if srv.AllowedOrigins == "" {
		srv.AllowedOrigins = "*"
	}
	if srv.ReadTimeout == 0 {
		srv.ReadTimeout = 30
	}
	if srv.WriteTimeout == 0 {
		srv.WriteTimeout = 30
	}
	if srv.ShutdownTimeout == 0 {
		srv.ShutdownTimeout = 10
	}
	if srv.RateLimitPerMinute == 0 {
		srv.RateLimitPerMinute = 120
	}

	db := &cfg.DatabaseConfig
	if db.Driver == "" {
		db.Driver = "sqlite"
	}
	if db.Host == "" {
		db.Host = "localhost"
	}
	if db.Port == 0 {
		db.Port = 5432
	}
	if db.User == "" {
		db.User = "signals"
	}
	if db.Name == "" {
		db.Name = "signals"
	}
	if db.SSLMode == "" {
		db.SSLMode = "disable"
	}
	if db.MaxConns == 0 {
		db.MaxConns = 10
	}
	if db.SQLitePath == "" {
		db.SQLitePath = "data/signals.db"
	}

	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}

	if cfg.VaultConfig.Address == "" {
		cfg.VaultConfig.Address = "http://localhost:8200"
	}
	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}
	if cfg.VaultConfig.SecretPath == "" {
		cfg.VaultConfig.SecretPath = "signal-engine/infra"
	}
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Binance config
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.StreamURL = getEnvOrDefault("BINANCE_STREAM_URL", cfg.BinanceConfig.StreamURL)
	cfg.BinanceConfig.MockMode = getEnvBoolOrDefault("MOCK_MODE", cfg.BinanceConfig.MockMode)
	cfg.BinanceConfig.StreamEnabled = getEnvBoolOrDefault("BINANCE_STREAM_ENABLED", cfg.BinanceConfig.StreamEnabled)
	cfg.BinanceConfig.RequestTimeout = getEnvIntOrDefault("BINANCE_REQUEST_TIMEOUT", cfg.BinanceConfig.RequestTimeout)

	// Engine config
	cfg.EngineConfig.DefaultMinConfidence = getEnvIntOrDefault("ENGINE_MIN_CONFIDENCE", cfg.EngineConfig.DefaultMinConfidence)
	cfg.EngineConfig.CandleLimit = getEnvIntOrDefault("ENGINE_CANDLE_LIMIT", cfg.EngineConfig.CandleLimit)
	cfg.EngineConfig.PriceTTLMs = getEnvIntOrDefault("ENGINE_PRICE_TTL_MS", cfg.EngineConfig.PriceTTLMs)
	cfg.EngineConfig.FetchTimeout = getEnvIntOrDefault("ENGINE_FETCH_TIMEOUT", cfg.EngineConfig.FetchTimeout)
	cfg.EngineConfig.MinRiskReward = getEnvFloatOrDefault("ENGINE_MIN_RISK_REWARD", cfg.EngineConfig.MinRiskReward)
	cfg.EngineConfig.UseLivePrice = getEnvBoolOrDefault("ENGINE_USE_LIVE_PRICE", cfg.EngineConfig.UseLivePrice)

	// Scanner config
	cfg.ScannerConfig.Enabled = getEnvBoolOrDefault("SCANNER_ENABLED", cfg.ScannerConfig.Enabled)
	cfg.ScannerConfig.Schedule = getEnvOrDefault("SCANNER_SCHEDULE", cfg.ScannerConfig.Schedule)
	cfg.ScannerConfig.WorkerCount = getEnvIntOrDefault("SCANNER_WORKERS", cfg.ScannerConfig.WorkerCount)
	cfg.ScannerConfig.MinConfidence = getEnvIntOrDefault("SCANNER_MIN_CONFIDENCE", cfg.ScannerConfig.MinConfidence)
	cfg.ScannerConfig.CooldownMin = getEnvIntOrDefault("SCANNER_COOLDOWN_MINUTES", cfg.ScannerConfig.CooldownMin)

	// Lifecycle config
	cfg.LifecycleConfig.Enabled = getEnvBoolOrDefault("LIFECYCLE_ENABLED", cfg.LifecycleConfig.Enabled)
	cfg.LifecycleConfig.IntervalSec = getEnvIntOrDefault("LIFECYCLE_INTERVAL_SEC", cfg.LifecycleConfig.IntervalSec)
	cfg.LifecycleConfig.ExpiryHours = getEnvIntOrDefault("LIFECYCLE_EXPIRY_HOURS", cfg.LifecycleConfig.ExpiryHours)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", cfg.ServerConfig.ReadTimeout)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", cfg.ServerConfig.WriteTimeout)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", cfg.ServerConfig.ShutdownTimeout)
	cfg.ServerConfig.RateLimitPerMinute = getEnvIntOrDefault("SERVER_RATE_LIMIT", cfg.ServerConfig.RateLimitPerMinute)

	// Database config
	cfg.DatabaseConfig.Driver = getEnvOrDefault("DB_DRIVER", cfg.DatabaseConfig.Driver)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Name = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Name)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)
	cfg.DatabaseConfig.SQLitePath = getEnvOrDefault("SQLITE_PATH", cfg.DatabaseConfig.SQLitePath)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvBoolOrDefault("NOTIFICATIONS_ENABLED", cfg.NotificationConfig.Enabled)
	cfg.NotificationConfig.MinConfidence = getEnvIntOrDefault("NOTIFICATIONS_MIN_CONFIDENCE", cfg.NotificationConfig.MinConfidence)
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)
}

// Validate checks the values the services cannot start without
func (c *Config) Validate() error {
	e := c.EngineConfig
	if e.DefaultMinConfidence < 0 || e.DefaultMinConfidence > 100 {
		return fmt.Errorf("engine.default_min_confidence must be within 0-100")
	}
	if e.CandleLimit < 50 || e.CandleLimit > 1000 {
		return fmt.Errorf("engine.candle_limit must be within 50-1000")
	}
	if e.PriceTTLMs <= 0 {
		return fmt.Errorf("engine.price_ttl_ms must be positive")
	}
	if len(e.TakeProfitMultiples) != 3 {
		return fmt.Errorf("engine.take_profit_multiples needs exactly 3 values")
	}
	for i, m := range e.TakeProfitMultiples {
		if m <= 0 || (i > 0 && m <= e.TakeProfitMultiples[i-1]) {
			return fmt.Errorf("engine.take_profit_multiples must be positive and increasing")
		}
	}

	switch c.DatabaseConfig.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.DatabaseConfig.Driver)
	}

	if c.ScannerConfig.Enabled {
		if c.ScannerConfig.WorkerCount <= 0 {
			return fmt.Errorf("scanner.worker_count must be positive")
		}
		switch c.ScannerConfig.OrderType {
		case "market", "limit":
		default:
			return fmt.Errorf("scanner.order_type must be market or limit")
		}
	}

	if c.VaultConfig.Enabled && c.VaultConfig.Token == "" {
		return fmt.Errorf("vault.token is required when vault is enabled")
	}
	return nil
}

// PriceTTL returns the price cache TTL
func (e EngineConfig) PriceTTL() time.Duration {
	return time.Duration(e.PriceTTLMs) * time.Millisecond
}

// FetchTimeoutDuration returns the market data fetch timeout
func (e EngineConfig) FetchTimeoutDuration() time.Duration {
	return time.Duration(e.FetchTimeout) * time.Second
}

// DSN builds the Postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// GenerateSampleConfig creates a sample configuration file (YAML when the name ends in .yaml/.yml)
func GenerateSampleConfig(filename string) error {
	config := Config{}
	applyDefaults(&config)
	config.ScannerConfig.Enabled = true
	config.LifecycleConfig.Enabled = true
	config.LoggingConfig.JSONFormat = true

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	default:
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
