package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Dispatcher DispatcherConfig
	Schedule   ScheduleConfig
	Notifiers  NotifiersConfig
}

type ServerConfig struct {
	Port      int     `mapstructure:"port"`
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type DispatcherConfig struct {
	CycleInterval  time.Duration `mapstructure:"cycle_interval"`
	LookaheadSlack time.Duration `mapstructure:"lookahead_slack"`
	BatchSize      int           `mapstructure:"batch_size"`
	WorkerCount    int           `mapstructure:"worker_count"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
	MissedPeriod   time.Duration `mapstructure:"missed_period"`
}

type ScheduleConfig struct {
	// DefaultWindowSeconds applies when a create request omits the
	// delivery window. Negative means no upper bound.
	DefaultWindowSeconds int `mapstructure:"default_window_seconds"`
}

type NotifiersConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	Email    EmailConfig    `mapstructure:"email"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

type WhatsAppConfig struct {
	AccessToken   string `mapstructure:"access_token"`
	PhoneNumberID string `mapstructure:"phone_number_id"`
}

type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	Subject  string `mapstructure:"subject"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.rate_limit", 100)
	viper.SetDefault("server.rate_burst", 200)
	viper.SetDefault("dispatcher.cycle_interval", 15*time.Second)
	viper.SetDefault("dispatcher.lookahead_slack", 0)
	viper.SetDefault("dispatcher.batch_size", 100)
	viper.SetDefault("dispatcher.worker_count", 4)
	viper.SetDefault("dispatcher.max_attempts", 3)
	viper.SetDefault("dispatcher.send_timeout", 10*time.Second)
	viper.SetDefault("dispatcher.missed_period", time.Hour)
	viper.SetDefault("schedule.default_window_seconds", 3600)
}

// DispatcherEnv overrides dispatcher knobs from the environment for the
// standalone worker binary, which deploys without a config file mount.
type DispatcherEnv struct {
	CycleInterval time.Duration `envconfig:"DISPATCHER_CYCLE_INTERVAL"`
	WorkerCount   int           `envconfig:"DISPATCHER_WORKER_COUNT"`
	MaxAttempts   int           `envconfig:"DISPATCHER_MAX_ATTEMPTS"`
	SendTimeout   time.Duration `envconfig:"DISPATCHER_SEND_TIMEOUT"`
}

// ApplyEnvOverrides merges environment overrides into the dispatcher
// section of an already loaded config.
func (c *Config) ApplyEnvOverrides() error {
	var env DispatcherEnv
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to process env overrides: %w", err)
	}

	if env.CycleInterval > 0 {
		c.Dispatcher.CycleInterval = env.CycleInterval
	}
	if env.WorkerCount > 0 {
		c.Dispatcher.WorkerCount = env.WorkerCount
	}
	if env.MaxAttempts > 0 {
		c.Dispatcher.MaxAttempts = env.MaxAttempts
	}
	if env.SendTimeout > 0 {
		c.Dispatcher.SendTimeout = env.SendTimeout
	}
	return nil
}
