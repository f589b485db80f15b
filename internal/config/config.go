package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// IMAGE_PICKER_SERVER_ADDR overrides server.addr.
const EnvPrefix = "IMAGE_PICKER"

// Event transports understood by Events.Driver.
const (
	DriverSSE  = "sse"
	DriverAMQP = "amqp"
)

// Config is the full service configuration.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Auth     Auth     `mapstructure:"auth"`
	Database Database `mapstructure:"database"`
	Redis    Redis    `mapstructure:"redis"`
	Events   Events   `mapstructure:"events"`
	Platform Platform `mapstructure:"platform"`
	Picker   Picker   `mapstructure:"picker"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Auth configures bearer token verification.
type Auth struct {
	Secret   string `mapstructure:"secret"`
	Audience string `mapstructure:"audience"`
}

// Database is optional; an empty DSN disables the audit log.
type Database struct {
	DSN          string `mapstructure:"dsn"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// Redis is optional; an empty Addr disables the status cache.
type Redis struct {
	Addr      string        `mapstructure:"addr"`
	StatusTTL time.Duration `mapstructure:"status_ttl"`
}

// Events selects how launch events reach the host.
type Events struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
	Queue  string `mapstructure:"queue"`
}

// Platform describes the host's permission model.
type Platform struct {
	RuntimePermissions   bool `mapstructure:"runtime_permissions"`
	ExternalStorageGated bool `mapstructure:"external_storage_gated"`
}

// Picker tunes request handling.
type Picker struct {
	ReplyTimeout time.Duration `mapstructure:"reply_timeout"`
	MaxPixels    int           `mapstructure:"max_pixels"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("auth.secret", "dev-secret")
	v.SetDefault("auth.audience", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.status_ttl", 10*time.Minute)
	v.SetDefault("events.driver", DriverSSE)
	v.SetDefault("events.url", "")
	v.SetDefault("events.queue", "image_picker.events")
	v.SetDefault("platform.runtime_permissions", true)
	v.SetDefault("platform.external_storage_gated", true)
	v.SetDefault("picker.reply_timeout", 30*time.Second)
	v.SetDefault("picker.max_pixels", 64<<20)
}

// Load reads the YAML file at path, if any, applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("auth.secret is required")
	}
	if c.Picker.ReplyTimeout <= 0 {
		return errors.New("picker.reply_timeout must be positive")
	}
	if c.Picker.MaxPixels <= 0 {
		return errors.New("picker.max_pixels must be positive")
	}
	if c.Redis.Addr != "" && c.Redis.StatusTTL <= 0 {
		return errors.New("redis.status_ttl must be positive")
	}
	switch c.Events.Driver {
	case DriverSSE:
	case DriverAMQP:
		if c.Events.URL == "" || c.Events.Queue == "" {
			return errors.New("events.url and events.queue are required for the amqp driver")
		}
	default:
		return fmt.Errorf("unknown events.driver %q", c.Events.Driver)
	}
	return nil
}
