/*
Package configs is responsible for loading and parsing the application's configuration settings.

Settings are read from environment variables first. The chat listener's host and port can
then be overridden with the -host and -port command line flags, which are the only flags
the server accepts.
*/
package configs

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Server Settings
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Chat Listener Settings
	Host         string        `env:"CHAT_HOST" envDefault:"127.0.0.1"`
	Port         int           `env:"CHAT_PORT" envDefault:"9999"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`

	// Ops HTTP Settings
	HTTPEnabled    bool     `env:"HTTP_ENABLED" envDefault:"true"`
	HTTPAddr       string   `env:"HTTP_ADDR" envDefault:"127.0.0.1:8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// Audit Settings
	DatabaseDSN string `env:"DATABASE_URL"`

	// Shutdown
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// ChatAddr returns the host:port the chat listener binds to.
func (c *AppConfig) ChatAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadConfig reads the configuration from environment variables, applies the -host and
// -port flag overrides found in args, and validates the result.
func LoadConfig(fs *flag.FlagSet, args []string) (*AppConfig, error) {
	cfg := &AppConfig{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Host, "host", cfg.Host, "chat listener host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "chat listener port")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Host == "" {
		return errors.New("chat host must not be empty")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port number %d is outside the valid range (1-65535)", c.Port)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("invalid WRITE_TIMEOUT %s: must be positive", c.WriteTimeout)
	}

	if c.HTTPEnabled && c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR is required when HTTP_ENABLED is true")
	}

	if c.HTTPEnabled && c.HTTPAddr == c.ChatAddr() {
		return fmt.Errorf("HTTP_ADDR %s collides with the chat listener", c.HTTPAddr)
	}

	return nil
}
