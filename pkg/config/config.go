package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Ledger node and contract configuration
	Ledger LedgerConfig `mapstructure:"ledger"`

	// Wallet configuration
	Wallet WalletConfig `mapstructure:"wallet"`

	// Off-chain metadata configuration
	Metadata MetadataConfig `mapstructure:"metadata"`

	// Transaction tracking configuration
	Transactions TransactionConfig `mapstructure:"transactions"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`

	// Per-account request throttle for the API
	RatePerSec    float64 `mapstructure:"rate_per_sec"`
	RateBurst     int     `mapstructure:"rate_burst"`
	AllowedOrigin string  `mapstructure:"allowed_origin"`
}

// LedgerConfig holds the JSON-RPC endpoint and contract address
type LedgerConfig struct {
	RPCURL          string `mapstructure:"rpc_url"`
	ContractAddress string `mapstructure:"contract_address"`
	ChainID         int64  `mapstructure:"chain_id"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
}

// WalletConfig holds the signing account used by node-managed wallets
type WalletConfig struct {
	Mode     string `mapstructure:"mode"`
	Gas      uint64 `mapstructure:"gas"`
	GasPrice string `mapstructure:"gas_price"`
}

// MetadataConfig holds content store configuration
type MetadataConfig struct {
	GatewayURL   string  `mapstructure:"gateway_url"`
	FetchTimeout int     `mapstructure:"fetch_timeout"`
	RatePerSec   float64 `mapstructure:"rate_per_sec"`
	Burst        int     `mapstructure:"burst"`
	Concurrency  int     `mapstructure:"concurrency"`
	MirrorPath   string  `mapstructure:"mirror_path"`
}

// TransactionConfig holds receipt polling configuration
type TransactionConfig struct {
	PollInterval   int `mapstructure:"poll_interval_ms"`
	ConfirmTimeout int `mapstructure:"confirm_timeout"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	MetricsPath    string  `mapstructure:"metrics_path"`
	HealthPath     string  `mapstructure:"health_path"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
	Environment    string  `mapstructure:"environment"`
}

// RequestTimeoutDuration returns the per-call ledger timeout
func (c LedgerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// FetchTimeoutDuration returns the per-document fetch timeout
func (c MetadataConfig) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// PollIntervalDuration returns the receipt polling interval
func (c TransactionConfig) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Millisecond
}

// ConfirmTimeoutDuration returns the optional upper bound on pending transactions, zero meaning none
func (c TransactionConfig) ConfirmTimeoutDuration() time.Duration {
	return time.Duration(c.ConfirmTimeout) * time.Second
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/medledger")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8085)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 120)
	viper.SetDefault("server.idle_timeout", 120)
	viper.SetDefault("server.rate_per_sec", 5.0)
	viper.SetDefault("server.rate_burst", 10)
	viper.SetDefault("server.allowed_origin", "*")

	// Ledger defaults
	viper.SetDefault("ledger.rpc_url", "http://127.0.0.1:8545")
	viper.SetDefault("ledger.chain_id", 1337)
	viper.SetDefault("ledger.request_timeout", 15)

	// Wallet defaults
	viper.SetDefault("wallet.mode", "node")
	viper.SetDefault("wallet.gas", 3000000)

	// Metadata defaults
	viper.SetDefault("metadata.gateway_url", "https://ipfs.io")
	viper.SetDefault("metadata.fetch_timeout", 10)
	viper.SetDefault("metadata.rate_per_sec", 5.0)
	viper.SetDefault("metadata.burst", 10)
	viper.SetDefault("metadata.concurrency", 8)

	// Transaction defaults
	viper.SetDefault("transactions.poll_interval_ms", 1500)
	viper.SetDefault("transactions.confirm_timeout", 0)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")
	viper.SetDefault("monitoring.health_path", "/health")
	viper.SetDefault("monitoring.tracing_enabled", false)
	viper.SetDefault("monitoring.sampling_rate", 0.1)
	viper.SetDefault("monitoring.environment", "development")

	// Logging defaults
	viper.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if rpcURL := os.Getenv("LEDGER_RPC_URL"); rpcURL != "" {
		config.Ledger.RPCURL = rpcURL
	}

	if contract := os.Getenv("CONTRACT_ADDRESS"); contract != "" {
		config.Ledger.ContractAddress = contract
	}

	if gateway := os.Getenv("IPFS_GATEWAY"); gateway != "" {
		config.Metadata.GatewayURL = gateway
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Ledger.RPCURL == "" {
		return fmt.Errorf("ledger RPC URL is required")
	}

	if config.Ledger.ContractAddress == "" {
		return fmt.Errorf("contract address is required")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Transactions.PollInterval <= 0 {
		return fmt.Errorf("invalid transaction poll interval: %d", config.Transactions.PollInterval)
	}

	if config.Metadata.Concurrency <= 0 {
		return fmt.Errorf("invalid metadata concurrency: %d", config.Metadata.Concurrency)
	}

	return nil
}
