package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the exchange and the trader simulator.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Trader   TraderConfig   `mapstructure:"trader"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"` // "local" or "prod"
	HTTPAddr string `mapstructure:"http_addr"`
	// MarketDuration closes the market after this long. Zero runs until signalled.
	MarketDuration time.Duration `mapstructure:"market_duration"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ExchangeConfig struct {
	RandomWalkInterval time.Duration `mapstructure:"random_walk_interval"`
	EventIntervalMin   time.Duration `mapstructure:"event_interval_min"`
	EventIntervalMax   time.Duration `mapstructure:"event_interval_max"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	CommandBuffer      int           `mapstructure:"command_buffer"`
	FeedBuffer         int           `mapstructure:"feed_buffer"`
}

type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	OrderTopic  string   `mapstructure:"order_topic"`
	QuoteTopic  string   `mapstructure:"quote_topic"`
	FillTopic   string   `mapstructure:"fill_topic"`
	RejectTopic string   `mapstructure:"reject_topic"`
	EventTopic  string   `mapstructure:"event_topic"`
	GroupID     string   `mapstructure:"group_id"`
}

type RedisConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Addr        string `mapstructure:"addr"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	HistorySize int64  `mapstructure:"history_size"`
}

type TraderConfig struct {
	Brokers     int           `mapstructure:"brokers"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	ExchangeURL string        `mapstructure:"exchange_url"`
}

var defaults = map[string]any{
	"app.env":             "local",
	"app.http_addr":       ":8080",
	"app.market_duration": 60 * time.Second,

	"log.level": "info",

	"exchange.random_walk_interval": 5 * time.Second,
	"exchange.event_interval_min":   20 * time.Second,
	"exchange.event_interval_max":   25 * time.Second,
	"exchange.poll_interval":        2 * time.Second,
	"exchange.command_buffer":       32768,
	"exchange.feed_buffer":          4096,

	"kafka.enabled":      false,
	"kafka.brokers":      []string{"localhost:9092"},
	"kafka.order_topic":  "exchange.orders",
	"kafka.quote_topic":  "exchange.quotes",
	"kafka.fill_topic":   "exchange.fills",
	"kafka.reject_topic": "exchange.rejects",
	"kafka.event_topic":  "exchange.events",
	"kafka.group_id":     "stock-exchange",

	"redis.enabled":      false,
	"redis.addr":         "localhost:6379",
	"redis.password":     "",
	"redis.db":           0,
	"redis.history_size": 100,

	"trader.brokers":      3,
	"trader.min_delay":    5 * time.Second,
	"trader.max_delay":    10 * time.Second,
	"trader.exchange_url": "http://localhost:8080",
}

// Load reads configuration from defaults, the given .env files (".env" when
// none are named) and environment variables, in increasing precedence.
// Keys map to variables by upper-casing and replacing dots, so
// exchange.poll_interval is read from EXCHANGE_POLL_INTERVAL.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key := range defaults {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	ex := c.Exchange
	if ex.RandomWalkInterval <= 0 || ex.PollInterval <= 0 || ex.EventIntervalMin <= 0 {
		errs = append(errs, errors.New("exchange intervals must be positive"))
	}
	if ex.EventIntervalMax < ex.EventIntervalMin {
		errs = append(errs, fmt.Errorf("exchange.event_interval_max %s is below event_interval_min %s", ex.EventIntervalMax, ex.EventIntervalMin))
	}
	if ex.CommandBuffer <= 0 {
		errs = append(errs, errors.New("exchange.command_buffer must be positive"))
	}
	if ex.FeedBuffer <= 0 || ex.FeedBuffer&(ex.FeedBuffer-1) != 0 {
		errs = append(errs, fmt.Errorf("exchange.feed_buffer %d must be a power of 2", ex.FeedBuffer))
	}
	if c.App.MarketDuration < 0 {
		errs = append(errs, errors.New("app.market_duration cannot be negative"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka brokers cannot be empty"))
	}
	if c.Redis.Enabled && c.Redis.HistorySize <= 0 {
		errs = append(errs, errors.New("redis.history_size must be positive"))
	}
	if c.Trader.Brokers <= 0 {
		errs = append(errs, errors.New("trader.brokers must be positive"))
	}
	if c.Trader.MinDelay <= 0 || c.Trader.MaxDelay < c.Trader.MinDelay {
		errs = append(errs, fmt.Errorf("trader delay range [%s, %s] is invalid", c.Trader.MinDelay, c.Trader.MaxDelay))
	}

	return errors.Join(errs...)
}
