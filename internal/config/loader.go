// Package config provides configuration loading and validation functionality
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/solana-sniper-bot/autotrader/internal/address"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "AUTOTRADER"

// Loader handles configuration loading from various sources
type Loader struct {
	validator *validator.Validate
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := validator.New()
	if err := address.RegisterValidation(v); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", address.Tag, err))
	}
	return &Loader{validator: v}
}

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (a .env file in the working directory is read first)
// 2. Configuration file (YAML)
// 3. Default values
func Load() (*Config, error) {
	return NewLoader().LoadFrom("")
}

// LoadFrom loads configuration using path as the config file. An empty path
// searches the usual locations; a missing file is not an error.
func (l *Loader) LoadFrom(path string) (*Config, error) {
	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	l.setupViper(v)

	if err := l.loadFromFile(v, path); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	l.loadFromEnv(v)

	config := GetDefault()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	l.postProcessConfig(config)

	if err := l.validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// setupViper configures Viper settings
func (l *Loader) setupViper(v *viper.Viper) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath("./configs/")
	v.AddConfigPath("/etc/autotrader/")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadFromFile loads configuration from file
func (l *Loader) loadFromFile(v *viper.Viper, path string) error {
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG_FILE")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		env := os.Getenv(EnvPrefix + "_ENVIRONMENT")
		if env == "" {
			env = "development"
		}

		candidates := []string{
			fmt.Sprintf("config.%s.yaml", env),
			fmt.Sprintf("configs/config.%s.yaml", env),
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				v.SetConfigFile(candidate)
				break
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// No config file, continue with defaults and env vars
			return nil
		}
		return err
	}

	return nil
}

// loadFromEnv binds every key so AutomaticEnv picks it up during Unmarshal.
// Keys only known from defaults are invisible to viper otherwise.
func (l *Loader) loadFromEnv(v *viper.Viper) {
	envBindings := []string{
		"environment",
		"debug",
		"server.port",
		"server.host",
		"database.enabled",
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"solana.rpc_endpoint",
		"solana.commitment",
		"sniper.enabled",
		"sniper.scan_interval",
		"sniper.candidate_feed_url",
		"copy_trade.enabled",
		"copy_trade.scan_interval",
		"copy_trade.activity_limit",
		"copy_trade.leaders_file",
		"safety.cache_ttl",
		"safety.quote_url",
		"safety.verified_min_score",
		"executor.mode",
		"executor.endpoint",
		"executor.api_key",
		"telegram.enabled",
		"telegram.bot_token",
		"telegram.default_chat_id",
		"log.level",
		"log.format",
		"security.auth_enabled",
		"security.jwt_secret",
		"security.admin_users",
		"metrics.enabled",
		"tracing.enabled",
		"tracing.endpoint",
	}

	for _, key := range envBindings {
		_ = v.BindEnv(key)
	}
}

// validateConfig validates the loaded configuration
func (l *Loader) validateConfig(config *Config) error {
	if err := l.validator.Struct(config); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errorMessages := make([]string, 0, len(validationErrors))
			for _, validationError := range validationErrors {
				errorMessages = append(errorMessages, l.formatValidationError(validationError))
			}
			return fmt.Errorf("validation errors: %s", strings.Join(errorMessages, "; "))
		}
		return err
	}

	return l.customValidation(config)
}

// formatValidationError formats validation errors into human-readable messages
func (l *Loader) formatValidationError(err validator.FieldError) string {
	field := err.Namespace()
	tag := err.Tag()
	param := err.Param()

	switch tag {
	case "required", "required_if":
		return fmt.Sprintf("field '%s' is required", field)
	case "min", "gte":
		return fmt.Sprintf("field '%s' must be at least %s", field, param)
	case "max", "lte":
		return fmt.Sprintf("field '%s' must be at most %s", field, param)
	case "gt":
		return fmt.Sprintf("field '%s' must be greater than %s", field, param)
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, param)
	case "url":
		return fmt.Sprintf("field '%s' must be a valid URL", field)
	case address.Tag:
		return fmt.Sprintf("field '%s' must be a valid Solana address", field)
	default:
		return fmt.Sprintf("field '%s' failed validation '%s'", field, tag)
	}
}

// customValidation performs cross-field validation
func (l *Loader) customValidation(config *Config) error {
	if err := l.validateExecutorConfig(&config.Executor); err != nil {
		return fmt.Errorf("executor config validation failed: %w", err)
	}

	if err := l.validateSecurityConfig(&config.Security); err != nil {
		return fmt.Errorf("security config validation failed: %w", err)
	}

	if err := l.validateTelegramConfig(&config.Telegram); err != nil {
		return fmt.Errorf("telegram config validation failed: %w", err)
	}

	if config.Tracing.Enabled && config.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}

	return nil
}

// validateExecutorConfig validates swap executor configuration
func (l *Loader) validateExecutorConfig(config *ExecutorConfig) error {
	if config.Mode == "http" && config.Endpoint == "" {
		return fmt.Errorf("endpoint is required when mode is http")
	}

	for user, wallet := range config.UserWallets {
		if err := address.Validate(wallet); err != nil {
			return fmt.Errorf("wallet for user %q: %w", user, err)
		}
	}

	return nil
}

// validateSecurityConfig validates security configuration
func (l *Loader) validateSecurityConfig(config *SecurityConfig) error {
	if config.AuthEnabled && len(config.JWTSecret) < 32 {
		return fmt.Errorf("jwt_secret must be at least 32 characters long")
	}

	return nil
}

// validateTelegramConfig validates Telegram configuration
func (l *Loader) validateTelegramConfig(config *TelegramConfig) error {
	if config.Enabled && config.BotToken == "" {
		return fmt.Errorf("bot_token is required when telegram is enabled")
	}

	return nil
}

// postProcessConfig fills derived values and applies environment adjustments
func (l *Loader) postProcessConfig(config *Config) {
	if config.Tracing.ServiceName == "" {
		config.Tracing.ServiceName = "autotrader"
	}
	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}
	if config.Safety.CheckTimeout <= 0 {
		config.Safety.CheckTimeout = config.Solana.RequestTimeout
	}

	l.applyEnvironmentAdjustments(config)
}

// applyEnvironmentAdjustments applies environment-specific configuration adjustments
func (l *Loader) applyEnvironmentAdjustments(config *Config) {
	switch config.Environment {
	case "production":
		config.Debug = false
		config.Security.AuthEnabled = true
		config.Database.MaxOpenConns = maxInt(config.Database.MaxOpenConns, 20)

	case "development":
		config.Log.Format = "text"
	}
}

// maxInt returns the maximum of two integers
func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ValidateConfigFile validates a configuration file without starting anything
func ValidateConfigFile(path string) error {
	_, err := NewLoader().LoadFrom(path)
	return err
}
