// Package config provides configuration management for the arbitrage
// detector.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tradewatch/cyclarb/pkg/engine"
)

// Config holds the complete detector configuration. Fields are populated from
// defaults, then a TOML file, then environment variable overrides.
type Config struct {
	LogLevel string `toml:"log_level"`

	Arbitrage ArbitrageSettings  `toml:"arbitrage"`
	Threading ThreadingSettings  `toml:"threading"`
	Detection DetectionSettings  `toml:"detection"`
	Exchanges []ExchangeSettings `toml:"exchanges"`
	Pairs     []PairSettings     `toml:"pairs"`
	Server    ServerSettings     `toml:"server"`
	Redis     RedisSettings      `toml:"redis"`
	Recorder  RecorderSettings   `toml:"recorder"`
	Slack     SlackSettings      `toml:"slack"`
}

// ArbitrageSettings holds the detection core tunables.
type ArbitrageSettings struct {
	MinProfitThreshold        float64 `toml:"min_profit_threshold"`
	MaxPositionSize           float64 `toml:"max_position_size"`
	MaxOpportunitiesPerSecond int     `toml:"max_opportunities_per_second"`
}

// ThreadingSettings holds channel sizing plus advisory worker/affinity hints
// for the surrounding process. The core always runs exactly two workers.
type ThreadingSettings struct {
	QueueCapacity       int   `toml:"queue_capacity"`
	NumProcessorThreads int   `toml:"num_processor_threads"`
	NumExchangeThreads  int   `toml:"num_exchange_threads"`
	PinThreads          bool  `toml:"pin_threads"`
	CPUAffinity         []int `toml:"cpu_affinity"`
}

// DetectionSettings holds the sweep pacing and history sizing.
type DetectionSettings struct {
	IntervalMs     int `toml:"interval_ms"`
	PollIntervalUs int `toml:"poll_interval_us"`
	HistoryCap     int `toml:"history_cap"`
}

// ExchangeSettings holds configuration for a single exchange feed.
type ExchangeSettings struct {
	ID      string `toml:"id"`
	Name    string `toml:"name"`
	Enabled bool   `toml:"enabled"`
}

// PairSettings holds configuration for a trading pair to track.
type PairSettings struct {
	Pair      string   `toml:"pair"`
	Exchanges []string `toml:"exchanges"`
	Enabled   bool     `toml:"enabled"`
}

// ServerSettings holds the HTTP telemetry surface parameters.
type ServerSettings struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// RedisSettings holds the opportunity publisher parameters.
type RedisSettings struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Channel  string `toml:"channel"`
}

// RecorderSettings holds the SQLite opportunity recorder parameters.
type RecorderSettings struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// SlackSettings holds Slack notification credentials.
type SlackSettings struct {
	Enabled  bool   `toml:"enabled"`
	APIToken string `toml:"api_token"`
	Channel  string `toml:"channel"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",

		Arbitrage: ArbitrageSettings{
			MinProfitThreshold:        0.001, // 0.1%
			MaxPositionSize:           1000.0,
			MaxOpportunitiesPerSecond: 100,
		},

		Threading: ThreadingSettings{
			QueueCapacity:       65536,
			NumProcessorThreads: 4,
			NumExchangeThreads:  3,
			PinThreads:          false,
			CPUAffinity:         []int{0, 1, 2, 3},
		},

		Detection: DetectionSettings{
			IntervalMs:     10,
			PollIntervalUs: 100,
			HistoryCap:     1000,
		},

		Exchanges: []ExchangeSettings{
			{ID: "binance", Name: "Binance", Enabled: true},
			{ID: "coinbase", Name: "Coinbase", Enabled: true},
			{ID: "kraken", Name: "Kraken", Enabled: true},
		},

		Pairs: []PairSettings{
			{Pair: "BTC/USDT", Exchanges: []string{"binance", "coinbase", "kraken"}, Enabled: true},
			{Pair: "ETH/USDT", Exchanges: []string{"binance", "coinbase", "kraken"}, Enabled: true},
			{Pair: "ETH/BTC", Exchanges: []string{"binance", "coinbase", "kraken"}, Enabled: true},
			{Pair: "SOL/USDT", Exchanges: []string{"binance", "coinbase", "kraken"}, Enabled: true},
		},

		Server: ServerSettings{
			Enabled: true,
			Port:    8080,
		},

		Redis: RedisSettings{
			Enabled: false,
			Addr:    "localhost:6379",
			Channel: "opportunities",
		},

		Recorder: RecorderSettings{
			Enabled: false,
			Path:    "data/opportunities.db",
		},
	}
}

// LoadFromFile loads configuration from a TOML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadFromEnv loads configuration from defaults and environment variables.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	return cfg
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}

	if v := os.Getenv("ARB_MIN_PROFIT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Arbitrage.MinProfitThreshold = f
		}
	}
	if v := os.Getenv("ARB_MAX_POSITION_SIZE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Arbitrage.MaxPositionSize = f
		}
	}
	if v := os.Getenv("ARB_MAX_OPPORTUNITIES_PER_SECOND"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.Arbitrage.MaxOpportunitiesPerSecond = i
		}
	}
	if v := os.Getenv("QUEUE_CAPACITY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.Threading.QueueCapacity = i
		}
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.Server.Port = i
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("SLACK_API_TOKEN"); v != "" {
		c.Slack.APIToken = v
	}
	if v := os.Getenv("SLACK_CHANNEL"); v != "" {
		c.Slack.Channel = v
	}
}

// ToEngineConfig maps the file-level settings onto the detection core
// configuration.
func (c *Config) ToEngineConfig() engine.Config {
	return engine.Config{
		MinProfitThreshold:        c.Arbitrage.MinProfitThreshold,
		MaxPositionSize:           c.Arbitrage.MaxPositionSize,
		MaxOpportunitiesPerSecond: c.Arbitrage.MaxOpportunitiesPerSecond,
		QueueCapacity:             c.Threading.QueueCapacity,
		DetectionInterval:         time.Duration(c.Detection.IntervalMs) * time.Millisecond,
		PollInterval:              time.Duration(c.Detection.PollIntervalUs) * time.Microsecond,
		HistoryCap:                c.Detection.HistoryCap,
	}
}

// GetEnabledExchanges returns only enabled exchanges.
func (c *Config) GetEnabledExchanges() []ExchangeSettings {
	var enabled []ExchangeSettings
	for _, ex := range c.Exchanges {
		if ex.Enabled {
			enabled = append(enabled, ex)
		}
	}
	return enabled
}

// GetEnabledPairs returns only enabled pairs.
func (c *Config) GetEnabledPairs() []PairSettings {
	var enabled []PairSettings
	for _, p := range c.Pairs {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Arbitrage.MinProfitThreshold < 0 {
		return fmt.Errorf("min_profit_threshold cannot be negative")
	}
	if c.Arbitrage.MaxPositionSize <= 0 {
		return fmt.Errorf("max_position_size must be positive")
	}
	if c.Threading.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1")
	}
	if c.Detection.IntervalMs < 1 {
		return fmt.Errorf("detection interval_ms must be at least 1")
	}
	if len(c.GetEnabledExchanges()) == 0 {
		return fmt.Errorf("at least 1 exchange must be enabled")
	}
	if len(c.GetEnabledPairs()) == 0 {
		return fmt.Errorf("at least 1 pair must be enabled")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	return nil
}
