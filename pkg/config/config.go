package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/tb0hdan/polyprompt-mcp/pkg/gateway"
	"github.com/tb0hdan/polyprompt-mcp/pkg/registry"
	"github.com/tb0hdan/polyprompt-mcp/pkg/storage"
)

const (
	// EnvPrefix namespaces environment overrides, e.g. POLYPROMPT_SERVER_LISTEN.
	EnvPrefix = "POLYPROMPT"

	DefaultListen          = "localhost:8989"
	DefaultSQLitePath      = "build/polyprompt.db"
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultAppTitle        = "Poly Prompt"
)

type Config struct {
	Server   ServerConfig           `mapstructure:"server"`
	Database DatabaseConfig         `mapstructure:"database"`
	Gateway  GatewayConfig          `mapstructure:"gateway"`
	Log      LogConfig              `mapstructure:"log"`
	Models   []registry.ModelConfig `mapstructure:"models" validate:"dive"`
}

type ServerConfig struct {
	Listen          string        `mapstructure:"listen" validate:"required,hostname_port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	Debug    bool           `mapstructure:"debug"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"min=0,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

type GatewayConfig struct {
	BaseURL     string        `mapstructure:"base_url" validate:"required,url"`
	APIKey      string        `mapstructure:"api_key"`
	Referer     string        `mapstructure:"referer"`
	Title       string        `mapstructure:"title"`
	CallTimeout time.Duration `mapstructure:"call_timeout" validate:"gte=0"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
}

// defaults also registers every key with viper so env overrides apply to
// keys missing from the config file.
var defaults = map[string]any{
	"server.listen":              DefaultListen,
	"server.cors_origins":        []string{"*"},
	"server.shutdown_timeout":    DefaultShutdownTimeout,
	"database.driver":            storage.DriverSQLite,
	"database.debug":             false,
	"database.sqlite.path":       DefaultSQLitePath,
	"database.postgres.host":     "localhost",
	"database.postgres.port":     5432,
	"database.postgres.user":     "",
	"database.postgres.password": "",
	"database.postgres.database": "polyprompt",
	"database.postgres.sslmode":  "disable",
	"gateway.base_url":           gateway.DefaultBaseURL,
	"gateway.api_key":            "",
	"gateway.referer":            "",
	"gateway.title":              DefaultAppTitle,
	"gateway.call_timeout":       time.Duration(0),
	"log.level":                  DefaultLogLevel,
}

// Load reads configuration from path (optional), applies POLYPROMPT_*
// environment overrides and validates the result. OPENROUTER_API_KEY is
// honoured when no gateway key is configured.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("gateway.api_key", EnvPrefix+"_GATEWAY_API_KEY", "OPENROUTER_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding api key env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Database.Driver {
	case storage.DriverSQLite:
		if c.Database.SQLite.Path == "" {
			return errors.New("invalid config: database.sqlite.path is required for sqlite")
		}
	case storage.DriverPostgres:
		if c.Database.Postgres.Host == "" || c.Database.Postgres.Database == "" {
			return errors.New("invalid config: database.postgres.host and database.postgres.database are required for postgres")
		}
	}

	seen := make(map[string]struct{}, len(c.Models))
	for i, m := range c.Models {
		if _, ok := seen[m.ID]; ok {
			return fmt.Errorf("invalid config: models[%d]: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = struct{}{}
	}

	return nil
}

// Storage converts the database section into a storage config.
func (c *Config) Storage() storage.Config {
	return storage.Config{
		Driver:       c.Database.Driver,
		DatabasePath: c.Database.SQLite.Path,
		Debug:        c.Database.Debug,
		Postgres: storage.PostgresConfig{
			Host:     c.Database.Postgres.Host,
			Port:     c.Database.Postgres.Port,
			User:     c.Database.Postgres.User,
			Password: c.Database.Postgres.Password,
			Database: c.Database.Postgres.Database,
			SSLMode:  c.Database.Postgres.SSLMode,
		},
	}
}

// GatewayClient converts the gateway section into a client config.
func (c *Config) GatewayClient() gateway.Config {
	return gateway.Config{
		BaseURL:     c.Gateway.BaseURL,
		APIKey:      c.Gateway.APIKey,
		CallTimeout: c.Gateway.CallTimeout,
		Referer:     c.Gateway.Referer,
		Title:       c.Gateway.Title,
	}
}

// Registry builds the model catalog with configured overrides applied.
func (c *Config) Registry() *registry.Registry {
	return registry.New(c.Models...)
}
