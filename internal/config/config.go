// Package config provides configuration management for the auto-trading service.
// It covers the HTTP server, persistence, the Solana RPC endpoint, both trading
// engines, the safety evaluator, the swap executor and the ambient stack.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	// Environment settings
	Environment string `mapstructure:"environment" validate:"required,oneof=development staging production"`
	Debug       bool   `mapstructure:"debug"`

	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Solana    SolanaConfig    `mapstructure:"solana"`
	Sniper    SniperConfig    `mapstructure:"sniper"`
	CopyTrade CopyTradeConfig `mapstructure:"copy_trade"`
	Safety    SafetyConfig    `mapstructure:"safety"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
}

// DatabaseConfig holds PostgreSQL configuration. When disabled, policies and
// logs live in memory only.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host" validate:"required_if=Enabled true"`
	Port            int           `mapstructure:"port" validate:"min=0,max=65535"`
	Name            string        `mapstructure:"name" validate:"required_if=Enabled true"`
	User            string        `mapstructure:"user" validate:"required_if=Enabled true"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode" validate:"oneof=disable require verify-ca verify-full"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SolanaConfig holds Solana RPC configuration
type SolanaConfig struct {
	RPCEndpoint    string        `mapstructure:"rpc_endpoint" validate:"required,url"`
	Commitment     string        `mapstructure:"commitment" validate:"oneof=processed confirmed finalized"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// ReferenceMint is the asset spent on buys and received on sells (wrapped SOL).
	ReferenceMint string `mapstructure:"reference_mint" validate:"required,solana_address"`

	// LockerAddresses are owners (lockers, burn address) that count as locked liquidity.
	LockerAddresses []string `mapstructure:"locker_addresses" validate:"dive,solana_address"`
}

// SniperConfig holds sniper engine configuration
type SniperConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	ScanInterval     time.Duration `mapstructure:"scan_interval" validate:"required"`
	CandidateFeedURL string        `mapstructure:"candidate_feed_url" validate:"omitempty,url"`
	Workers          int           `mapstructure:"workers" validate:"min=1,max=256"`
}

// CopyTradeConfig holds copy-trade engine configuration
type CopyTradeConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	ScanInterval  time.Duration `mapstructure:"scan_interval" validate:"required"`
	ActivityLimit int           `mapstructure:"activity_limit" validate:"min=1,max=1000"`
	LeadersFile   string        `mapstructure:"leaders_file"`
	Workers       int           `mapstructure:"workers" validate:"min=1,max=256"`
}

// SafetyConfig holds safety evaluator configuration
type SafetyConfig struct {
	CacheTTL        time.Duration `mapstructure:"cache_ttl" validate:"required"`
	CheckTimeout    time.Duration `mapstructure:"check_timeout"`
	HighTaxPercent  float64       `mapstructure:"high_tax_percent" validate:"gte=0,lte=100"`
	BadActorWallets []string      `mapstructure:"bad_actor_wallets"`

	// VerifiedMinScore is the score a token needs to count as verified for
	// copy-trade policies with only_verified_tokens.
	VerifiedMinScore int `mapstructure:"verified_min_score" validate:"gte=0,lte=100"`

	// QuoteURL is the swap quote API used for honeypot and tax simulation.
	QuoteURL    string  `mapstructure:"quote_url" validate:"omitempty,url"`
	ProbeAmount float64 `mapstructure:"probe_amount" validate:"gt=0"`
}

// ExecutorConfig holds swap executor configuration
type ExecutorConfig struct {
	Mode      string        `mapstructure:"mode" validate:"required,oneof=dry-run http"`
	Endpoint  string        `mapstructure:"endpoint" validate:"omitempty,url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" validate:"gte=0"`
	Burst     int           `mapstructure:"burst" validate:"gte=0"`
	// UserWallets maps user IDs to the wallet the executor trades from.
	UserWallets map[string]string `mapstructure:"user_wallets"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BotToken      string `mapstructure:"bot_token"`
	DefaultChatID int64  `mapstructure:"default_chat_id"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// SecurityConfig holds API authentication configuration
type SecurityConfig struct {
	AuthEnabled bool          `mapstructure:"auth_enabled"`
	JWTSecret   string        `mapstructure:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
	// AdminUsers may edit the shared bad-actor list.
	AdminUsers []string `mapstructure:"admin_users"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

// WrappedSOLMint is the default reference asset.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// GetDefault returns the default configuration
func GetDefault() *Config {
	return &Config{
		Environment: "development",
		Debug:       true,

		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1 MB
		},

		Database: DatabaseConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			Name:            "autotrader",
			User:            "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			AutoMigrate:     true,
		},

		Solana: SolanaConfig{
			RPCEndpoint:    "https://api.mainnet-beta.solana.com",
			Commitment:     "confirmed",
			RequestTimeout: 10 * time.Second,
			ReferenceMint:  WrappedSOLMint,
			LockerAddresses: []string{
				"1nc1nerator11111111111111111111111111111111",
			},
		},

		Sniper: SniperConfig{
			Enabled:      true,
			ScanInterval: 5 * time.Second,
			Workers:      16,
		},

		CopyTrade: CopyTradeConfig{
			Enabled:       true,
			ScanInterval:  10 * time.Second,
			ActivityLimit: 10,
			Workers:       16,
		},

		Safety: SafetyConfig{
			CacheTTL:         5 * time.Minute,
			CheckTimeout:     10 * time.Second,
			HighTaxPercent:   5,
			VerifiedMinScore: 70,
			QuoteURL:         "https://quote-api.jup.ag/v6/quote",
			ProbeAmount:      0.01,
		},

		Executor: ExecutorConfig{
			Mode:      "dry-run",
			Timeout:   30 * time.Second,
			RateLimit: 10,
			Burst:     20,
		},

		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},

		Security: SecurityConfig{
			AuthEnabled: false,
			JWTIssuer:   "autotrader",
			JWTTTL:      24 * time.Hour,
			CORSOrigins: []string{"*"},
		},

		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "autotrader",
		},

		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "autotrader",
			SampleRatio: 1,
		},
	}
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DSN builds the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}
