package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"perpdepth/internal/exchange"
	"perpdepth/internal/factory"
	"perpdepth/internal/types"
)

// Config holds all application configuration
type Config struct {
	Exchanges []ExchangeConfig `yaml:"exchanges"`
	Analytics AnalyticsConfig  `yaml:"analytics"`
	Display   DisplayConfig    `yaml:"display"`
	Server    ServerConfig     `yaml:"server"`
	App       AppConfig        `yaml:"app"`
	Logging   LoggingConfig    `yaml:"logging"`
	Redis     RedisConfig      `yaml:"redis"`
}

// ExchangeConfig holds exchange-specific configuration
type ExchangeConfig struct {
	Name    exchange.ExchangeName `yaml:"name"`
	Enabled bool                  `yaml:"enabled"`
	URL     string                `yaml:"url"`      // empty uses the venue default
	FeeRate float64               `yaml:"fee_rate"` // taker fee as a fraction of notional
	Markets map[string]string     `yaml:"markets"`  // coin -> venue market id; empty uses the venue default
}

// AnalyticsConfig holds what is measured and how much history is kept
type AnalyticsConfig struct {
	Coins           []string      `yaml:"coins"`
	BpLevels        []int         `yaml:"bp_levels"`
	TradeSizes      []float64     `yaml:"trade_sizes"`
	HistoryLength   int           `yaml:"history_length"`
	HistoryInterval time.Duration `yaml:"history_interval"`
}

// DisplayConfig holds console table configuration
type DisplayConfig struct {
	Enabled        bool          `yaml:"enabled"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// ServerConfig holds HTTP and push server configuration
type ServerConfig struct {
	Port              string          `yaml:"port"`
	BroadcastInterval time.Duration   `yaml:"broadcast_interval"`
	DefaultTickLevel  types.TickLevel `yaml:"default_tick_level"`
	MaxBookLevels     int             `yaml:"max_book_levels"`
}

// AppConfig holds connection and channel settings
type AppConfig struct {
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	SubscribeRate     float64       `yaml:"subscribe_rate"`
	UpdateChannelSize int           `yaml:"update_channel_size"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`  // stdout, stderr or a file path
	MaxAge int    `yaml:"max_age"` // days to keep rotated files
}

// RedisConfig holds the optional snapshot push feed
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	Channel  string        `yaml:"channel"`
	TTL      time.Duration `yaml:"ttl"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns the default configuration: five exchanges, BTC/ETH/SOL
func Default() Config {
	return Config{
		Exchanges: []ExchangeConfig{
			{Name: exchange.Hyperliquid, Enabled: true, FeeRate: 0.00045},
			{Name: exchange.Lighter, Enabled: true, FeeRate: 0},
			{Name: exchange.EdgeX, Enabled: true, FeeRate: 0.00038},
			{Name: exchange.Paradex, Enabled: true, FeeRate: 0},
			{Name: exchange.Aster, Enabled: true, FeeRate: 0.0004},
		},
		Analytics: AnalyticsConfig{
			Coins:           []string{"BTC", "ETH", "SOL"},
			BpLevels:        []int{1, 2, 3},
			TradeSizes:      []float64{100, 10000, 1000000},
			HistoryLength:   30,
			HistoryInterval: time.Second,
		},
		Display: DisplayConfig{
			Enabled:        true,
			UpdateInterval: 10 * time.Second,
		},
		Server: ServerConfig{
			Port:              "3000",
			BroadcastInterval: 500 * time.Millisecond,
			DefaultTickLevel:  types.Tick1,
			MaxBookLevels:     100,
		},
		App: AppConfig{
			ReconnectDelay:    5 * time.Second,
			HandshakeTimeout:  10 * time.Second,
			SubscribeRate:     5,
			UpdateChannelSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Key:      "perpdepth:snapshot",
			Channel:  "perpdepth:snapshots",
			TTL:      time.Minute,
			Interval: time.Second,
		},
	}
}

// Load overlays the YAML file at path on the defaults, applies environment
// overrides and validates the result. An empty path or a missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides settings from PORT, LOG_LEVEL and REDIS_ADDR
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		c.Server.Port = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		c.Redis.Addr = v
	}
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if len(c.Analytics.Coins) == 0 {
		return fmt.Errorf("analytics.coins must not be empty")
	}
	if len(c.Analytics.BpLevels) == 0 {
		return fmt.Errorf("analytics.bp_levels must not be empty")
	}
	for _, bp := range c.Analytics.BpLevels {
		if bp <= 0 {
			return fmt.Errorf("analytics.bp_levels must be greater than 0, got %d", bp)
		}
	}
	for _, size := range c.Analytics.TradeSizes {
		if size <= 0 {
			return fmt.Errorf("analytics.trade_sizes must be greater than 0, got %v", size)
		}
	}
	if c.Analytics.HistoryLength <= 0 {
		return fmt.Errorf("analytics.history_length must be greater than 0")
	}
	if c.Analytics.HistoryInterval <= 0 {
		return fmt.Errorf("analytics.history_interval must be greater than 0")
	}
	if c.Server.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be greater than 0")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if !types.ValidTickLevel(c.Server.DefaultTickLevel) {
		return fmt.Errorf("server.default_tick_level %v is not supported", c.Server.DefaultTickLevel)
	}
	if c.App.ReconnectDelay <= 0 {
		return fmt.Errorf("app.reconnect_delay must be greater than 0")
	}
	if c.Display.Enabled && c.Display.UpdateInterval <= 0 {
		return fmt.Errorf("display.update_interval must be greater than 0")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	seen := make(map[exchange.ExchangeName]bool, len(c.Exchanges))
	for _, ex := range c.Exchanges {
		if !factory.ValidateExchangeName(string(ex.Name)) {
			return fmt.Errorf("unknown exchange: %q", ex.Name)
		}
		if seen[ex.Name] {
			return fmt.Errorf("exchange %s configured twice", ex.Name)
		}
		seen[ex.Name] = true
		if ex.FeeRate < 0 {
			return fmt.Errorf("exchange %s: fee_rate must not be negative", ex.Name)
		}
	}
	if len(c.EnabledExchanges()) == 0 {
		return fmt.Errorf("at least one exchange must be enabled")
	}
	return nil
}

// EnabledExchanges returns the enabled exchanges in configuration order
func (c *Config) EnabledExchanges() []ExchangeConfig {
	enabled := make([]ExchangeConfig, 0, len(c.Exchanges))
	for _, ex := range c.Exchanges {
		if ex.Enabled {
			enabled = append(enabled, ex)
		}
	}
	return enabled
}

// ExchangeNames returns the names of the enabled exchanges
func (c *Config) ExchangeNames() []string {
	enabled := c.EnabledExchanges()
	names := make([]string, len(enabled))
	for i, ex := range enabled {
		names[i] = string(ex.Name)
	}
	return names
}

// FeeRates returns the taker fee of every enabled exchange
func (c *Config) FeeRates() map[string]float64 {
	rates := make(map[string]float64, len(c.Exchanges))
	for _, ex := range c.EnabledExchanges() {
		rates[string(ex.Name)] = ex.FeeRate
	}
	return rates
}
