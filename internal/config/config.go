package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Feeds      FeedsConfig      `mapstructure:"feeds"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Interrupt  InterruptConfig  `mapstructure:"interrupt"`
	Generation GenerationConfig `mapstructure:"generation"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP/WebSocket server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// FeedConfig holds one upstream feed connection's configuration
type FeedConfig struct {
	URL               string        `mapstructure:"url"`
	FailureBudget     int           `mapstructure:"failure_budget"`
	ReconnectMin      time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	SyntheticInterval time.Duration `mapstructure:"synthetic_interval"`
}

// FeedsConfig holds all upstream feed configurations
type FeedsConfig struct {
	Exchange         FeedConfig `mapstructure:"exchange"`
	PredictionMarket FeedConfig `mapstructure:"prediction_market"`
	Sentiment        FeedConfig `mapstructure:"sentiment"`
}

// RiskConfig holds normalization and scoring configuration
type RiskConfig struct {
	WindowSize             int     `mapstructure:"window_size"`
	ExchangeWeight         float64 `mapstructure:"exchange_weight"`
	PredictionMarketWeight float64 `mapstructure:"prediction_market_weight"`
	SentimentWeight        float64 `mapstructure:"sentiment_weight"`
	ExtremeHigh            float64 `mapstructure:"extreme_high"`
	ExtremeLow             float64 `mapstructure:"extreme_low"`
	Amplification          float64 `mapstructure:"amplification"`
	HistorySize            int     `mapstructure:"history_size"`
}

// InterruptConfig holds the interrupt controller configuration
type InterruptConfig struct {
	Threshold float64       `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// GenerationConfig holds the text/speech collaborator configuration.
// Missing API keys are not an error: the gateway falls back to canned
// content so the scoring core stays usable without collaborators.
type GenerationConfig struct {
	OpenAIAPIKey      string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL     string        `mapstructure:"openai_base_url"`
	OpenAIModel       string        `mapstructure:"openai_model"`
	ElevenLabsAPIKey  string        `mapstructure:"elevenlabs_api_key"`
	ElevenLabsBaseURL string        `mapstructure:"elevenlabs_base_url"`
	VoiceID           string        `mapstructure:"voice_id"`
	Timeout           time.Duration `mapstructure:"timeout"`
	AudioDir          string        `mapstructure:"audio_dir"`
	SynthesisPerMin   int           `mapstructure:"synthesis_per_min"`
}

// TelegramConfig holds the optional ops notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath        string `mapstructure:"db_path"`
	MaxPoints     int    `mapstructure:"max_points"`
	MaxInterrupts int    `mapstructure:"max_interrupts"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("VIBETRADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "60s")

	// Feed defaults
	v.SetDefault("feeds.exchange.url", "wss://stream.binance.com:9443/ws/btcusdt@trade")
	v.SetDefault("feeds.prediction_market.url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("feeds.sentiment.url", "")
	for _, feed := range []string{"exchange", "prediction_market", "sentiment"} {
		v.SetDefault("feeds."+feed+".failure_budget", 5)
		v.SetDefault("feeds."+feed+".reconnect_min", "1s")
		v.SetDefault("feeds."+feed+".reconnect_max", "30s")
		v.SetDefault("feeds."+feed+".read_timeout", "30s")
	}
	v.SetDefault("feeds.exchange.synthetic_interval", "2s")
	v.SetDefault("feeds.prediction_market.synthetic_interval", "3s")
	v.SetDefault("feeds.sentiment.synthetic_interval", "5s")

	// Risk defaults: weights biased toward exchange volatility
	v.SetDefault("risk.window_size", 100)
	v.SetDefault("risk.exchange_weight", 0.4)
	v.SetDefault("risk.prediction_market_weight", 0.3)
	v.SetDefault("risk.sentiment_weight", 0.3)
	v.SetDefault("risk.extreme_high", 80.0)
	v.SetDefault("risk.extreme_low", 20.0)
	v.SetDefault("risk.amplification", 1.25)
	v.SetDefault("risk.history_size", 300)

	// Interrupt defaults
	v.SetDefault("interrupt.threshold", 75.0)
	v.SetDefault("interrupt.cooldown", "60s")

	// Generation defaults. The credential keys default empty so they stay
	// known to viper and env overrides reach Unmarshal.
	v.SetDefault("generation.openai_api_key", "")
	v.SetDefault("generation.elevenlabs_api_key", "")
	v.SetDefault("generation.openai_base_url", "https://api.openai.com")
	v.SetDefault("generation.openai_model", "gpt-4o")
	v.SetDefault("generation.elevenlabs_base_url", "https://api.elevenlabs.io")
	v.SetDefault("generation.voice_id", "21m00Tcm4TlvDq8ikWAM")
	v.SetDefault("generation.timeout", "10s")
	v.SetDefault("generation.audio_dir", "./static/audio")
	v.SetDefault("generation.synthesis_per_min", 10)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/riskconsole.db")
	v.SetDefault("storage.max_points", 10000)
	v.SetDefault("storage.max_interrupts", 100)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Validate Feed configs
	feeds := map[string]FeedConfig{
		"exchange":          c.Feeds.Exchange,
		"prediction_market": c.Feeds.PredictionMarket,
		"sentiment":         c.Feeds.Sentiment,
	}
	for name, feed := range feeds {
		if feed.FailureBudget < 1 {
			return fmt.Errorf("feeds.%s.failure_budget must be at least 1", name)
		}
		if feed.ReconnectMin < time.Second {
			return fmt.Errorf("feeds.%s.reconnect_min must be at least 1 second", name)
		}
		if feed.ReconnectMax < feed.ReconnectMin {
			return fmt.Errorf("feeds.%s.reconnect_max must be >= reconnect_min", name)
		}
		if feed.SyntheticInterval < 100*time.Millisecond {
			return fmt.Errorf("feeds.%s.synthetic_interval must be at least 100ms", name)
		}
	}

	// Validate Risk config
	if c.Risk.WindowSize < 2 {
		return fmt.Errorf("risk.window_size must be at least 2")
	}
	weightSum := c.Risk.ExchangeWeight + c.Risk.PredictionMarketWeight + c.Risk.SentimentWeight
	if math.Abs(weightSum-1.0) > 0.001 {
		return fmt.Errorf("risk weights must sum to 1.0, got %.3f", weightSum)
	}
	if c.Risk.ExchangeWeight < 0 || c.Risk.PredictionMarketWeight < 0 || c.Risk.SentimentWeight < 0 {
		return fmt.Errorf("risk weights must not be negative")
	}
	if c.Risk.ExtremeLow < 0 || c.Risk.ExtremeHigh > 100 || c.Risk.ExtremeLow >= c.Risk.ExtremeHigh {
		return fmt.Errorf("risk extreme band must satisfy 0 <= extreme_low < extreme_high <= 100")
	}
	if c.Risk.Amplification < 1.0 {
		return fmt.Errorf("risk.amplification must be at least 1.0")
	}
	if c.Risk.HistorySize < 1 {
		return fmt.Errorf("risk.history_size must be at least 1")
	}

	// Validate Interrupt config
	if c.Interrupt.Threshold < 0 || c.Interrupt.Threshold > 100 {
		return fmt.Errorf("interrupt.threshold must be between 0 and 100")
	}
	if c.Interrupt.Cooldown < time.Second {
		return fmt.Errorf("interrupt.cooldown must be at least 1 second")
	}

	// Validate Generation config
	if c.Generation.Timeout < time.Second {
		return fmt.Errorf("generation.timeout must be at least 1 second")
	}
	if c.Generation.AudioDir == "" {
		return fmt.Errorf("generation.audio_dir is required")
	}
	if c.Generation.SynthesisPerMin < 1 {
		return fmt.Errorf("generation.synthesis_per_min must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxPoints < 100 {
		return fmt.Errorf("storage.max_points must be at least 100")
	}
	if c.Storage.MaxInterrupts < 1 {
		return fmt.Errorf("storage.max_interrupts must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
