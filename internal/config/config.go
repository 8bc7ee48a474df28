package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Telegram   TelegramConfig
	PostgreSQL PostgreSQLConfig
	Admin      AdminConfig
	App        AppConfig
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Token          string
	WebhookEnabled bool
	WebhookDomain  string
	WebhookPath    string
	ListenAddr     string
}

// PostgreSQLConfig holds database configuration
type PostgreSQLConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	Schema       string
	PoolMaxConns int
}

// AdminConfig holds the admin statistics server configuration
type AdminConfig struct {
	Enabled  bool
	Port     string
	APIToken string
}

// AppConfig holds product-level settings
type AppConfig struct {
	Currency string
	PageSize int
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("PostgreSQL.Host", "localhost")
	viper.SetDefault("PostgreSQL.Port", 5432)
	viper.SetDefault("PostgreSQL.User", "postgres")
	viper.SetDefault("PostgreSQL.DBName", "collect-db")
	viper.SetDefault("PostgreSQL.Schema", "public")
	viper.SetDefault("PostgreSQL.PoolMaxConns", 10)

	viper.SetDefault("Telegram.WebhookEnabled", false)
	viper.SetDefault("Telegram.ListenAddr", ":3000")

	viper.SetDefault("Admin.Enabled", false)
	viper.SetDefault("Admin.Port", "8080")

	viper.SetDefault("App.Currency", "RUB")
	viper.SetDefault("App.PageSize", 5)
}

func (cfg *Config) validate() error {
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	if cfg.PostgreSQL.Host == "" || cfg.PostgreSQL.DBName == "" {
		return fmt.Errorf("database configuration is incomplete")
	}
	if cfg.Telegram.WebhookEnabled && cfg.Telegram.WebhookDomain == "" {
		return fmt.Errorf("webhook domain is required when webhook mode is enabled")
	}
	if cfg.Admin.Enabled && cfg.Admin.APIToken == "" {
		return fmt.Errorf("admin API token is required when the admin server is enabled")
	}
	if cfg.App.PageSize <= 0 {
		cfg.App.PageSize = 5
	}
	return nil
}

// WebhookPathOrDefault returns the configured webhook path, deriving one from
// the bot token when unset so the endpoint stays unguessable
func (cfg *Config) WebhookPathOrDefault() string {
	if cfg.Telegram.WebhookPath != "" {
		return cfg.Telegram.WebhookPath
	}
	return "/webhook/" + cfg.Telegram.Token
}
