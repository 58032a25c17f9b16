// Package config loads application configuration from defaults, an
// optional config file, and environment variables, in increasing order
// of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	API      APIConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Log      LogConfig
	Metrics  MetricsConfig
	Transfer TransferConfig
	Accounts AccountsConfig
	Wallet   WalletConfig
}

// AccountsConfig holds the account directory bootstrap configuration.
type AccountsConfig struct {
	// File is an optional JSON file of accounts to register at startup.
	File string
}

// WalletConfig holds the signing wallet configuration.
type WalletConfig struct {
	// SigningKey is the hex private key of the service signing wallet.
	// Empty generates an ephemeral key.
	SigningKey string
}

// APIConfig holds API-related configuration.
type APIConfig struct {
	Port         string
	Version      string
	RateLimit    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisConfig holds Redis-related configuration.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// KafkaConfig holds Kafka-related configuration.
type KafkaConfig struct {
	Brokers       string
	ConsumerGroup string
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	JWTSecret   string
	TokenExpiry int64
}

// LogConfig holds logging-related configuration.
type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig holds metrics-related configuration.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// TransferConfig holds transfer pipeline configuration.
type TransferConfig struct {
	MaxOpenOrders    int
	QuoteTTL         time.Duration
	BankReferenceMax int
	FeeCollector     string
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigFile is the path to a config file. Empty means no file.
	ConfigFile string
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix string
}

// DefaultLoadOptions returns the standard load options.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		EnvPrefix: "TRAVERSE",
	}
}

// Load loads configuration using the default options.
func Load() (*Config, error) {
	return LoadWithOptions(DefaultLoadOptions())
}

// LoadWithOptions loads configuration from defaults, then the config
// file if one is given, then environment variables.
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	}

	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", "8080")
	v.SetDefault("api.version", "v1")
	v.SetDefault("api.ratelimit", 100)
	v.SetDefault("api.readtimeout", 10*time.Second)
	v.SetDefault("api.writetimeout", 30*time.Second)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.consumergroup", "traverse")

	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenexpiry", int64(86400))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "traverse")

	v.SetDefault("transfer.maxopenorders", 10)
	v.SetDefault("transfer.quotettl", 30*time.Second)
	v.SetDefault("transfer.bankreferencemax", 35)
	v.SetDefault("transfer.feecollector", "fee_collector")

	v.SetDefault("accounts.file", "")
	v.SetDefault("wallet.signingkey", "")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}

	if c.Redis.Address == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.Kafka.Brokers == "" {
		return fmt.Errorf("kafka brokers are required")
	}
	if c.Transfer.MaxOpenOrders <= 0 {
		return fmt.Errorf("transfer.maxopenorders must be positive")
	}
	if c.Transfer.QuoteTTL <= 0 {
		return fmt.Errorf("transfer.quotettl must be positive")
	}

	return nil
}
