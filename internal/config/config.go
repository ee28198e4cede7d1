// Package config loads the relay configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config is the relay configuration. Every field maps to one environment variable.
type Config struct {
	Addr   string `envDefault:":8080" env:"RELAY_ADDR"`
	WSPath string `envDefault:"/ws"   env:"RELAY_WS_PATH"`

	// AllowedOrigins lists the origins allowed to open a connection. "*" allows any.
	AllowedOrigins []string `envDefault:"*" env:"ALLOWED_ORIGINS" envSeparator:","`

	HeartbeatInterval time.Duration `envDefault:"15s" env:"HEARTBEAT_INTERVAL"`
	HeartbeatTimeout  time.Duration `envDefault:"30s" env:"HEARTBEAT_TIMEOUT"`
	TypingTimeout     time.Duration `envDefault:"3s"  env:"TYPING_TIMEOUT"`

	GameCleanupDelay  time.Duration `envDefault:"60s" env:"GAME_CLEANUP_DELAY"`
	GameIdleTimeout   time.Duration `envDefault:"30m" env:"GAME_IDLE_TIMEOUT"`
	GameSweepInterval time.Duration `envDefault:"1m"  env:"GAME_SWEEP_INTERVAL"`

	PresenceWindow      time.Duration `envDefault:"5m" env:"PRESENCE_WINDOW"`
	CollaboratorTimeout time.Duration `envDefault:"5s" env:"COLLABORATOR_TIMEOUT"`

	RateLimitEnabled   bool    `envDefault:"true" env:"RATE_LIMIT_ENABLED"`
	RateLimitPerSecond float64 `envDefault:"100"  env:"RATE_LIMIT_PER_SECOND"`
	RateLimitBurst     int     `envDefault:"200"  env:"RATE_LIMIT_BURST"`
	MaxMessageSize     int64   `envDefault:"65536" env:"MAX_MESSAGE_SIZE"`

	// DatabaseURI selects the relationship and message backend: postgres:// or mem://.
	DatabaseURI string `envDefault:"mem://" env:"DATABASE_URI"`
	// ActivityURI optionally moves last-active timestamps to redis://. Empty keeps
	// them in the database backend.
	ActivityURI string `envDefault:"" env:"ACTIVITY_URI"`

	LogLevel  string `envDefault:"info" env:"LOG_LEVEL"`
	LogFormat string `envDefault:"json" env:"LOG_FORMAT"`
}

// Load reads an optional .env file and then the environment.
func Load(dotenvFiles ...string) (Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse(env.Options{})
}

// Parse builds a Config from the process environment, or from opts.Environment
// when set.
func Parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
// Returns an error if any validation fails.
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("RELAY_ADDR cannot be empty"))
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		errs = append(errs, fmt.Errorf("RELAY_WS_PATH must start with /, got %q", c.WSPath))
	}
	if len(c.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("ALLOWED_ORIGINS cannot be empty"))
	}

	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("HEARTBEAT_INTERVAL must be > 0"))
	}
	if c.HeartbeatTimeout <= c.HeartbeatInterval {
		errs = append(errs, fmt.Errorf("HEARTBEAT_TIMEOUT (%s) must be > HEARTBEAT_INTERVAL (%s)",
			c.HeartbeatTimeout, c.HeartbeatInterval))
	}
	if c.TypingTimeout <= 0 {
		errs = append(errs, errors.New("TYPING_TIMEOUT must be > 0"))
	}
	if c.GameCleanupDelay < 0 {
		errs = append(errs, errors.New("GAME_CLEANUP_DELAY must be >= 0"))
	}
	if c.GameIdleTimeout > 0 && c.GameSweepInterval <= 0 {
		errs = append(errs, errors.New("GAME_SWEEP_INTERVAL must be > 0 when GAME_IDLE_TIMEOUT is set"))
	}
	if c.PresenceWindow < 0 {
		errs = append(errs, errors.New("PRESENCE_WINDOW must be >= 0"))
	}
	if c.CollaboratorTimeout <= 0 {
		errs = append(errs, errors.New("COLLABORATOR_TIMEOUT must be > 0"))
	}

	if c.RateLimitEnabled {
		if c.RateLimitPerSecond <= 0 {
			errs = append(errs, errors.New("RATE_LIMIT_PER_SECOND must be > 0"))
		}
		if c.RateLimitBurst < 1 {
			errs = append(errs, errors.New("RATE_LIMIT_BURST must be >= 1"))
		}
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_SIZE must be > 0"))
	}

	if c.DatabaseURI == "" {
		errs = append(errs, errors.New("DATABASE_URI cannot be empty"))
	}

	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// CheckOrigin returns the origin policy for the WebSocket upgrader. Requests
// without an Origin header come from non-browser clients and are allowed.
func (c *Config) CheckOrigin() func(r *http.Request) bool {
	if slices.Contains(c.AllowedOrigins, "*") {
		return func(*http.Request) bool { return true }
	}

	allowed := make(map[string]struct{}, len(c.AllowedOrigins))
	for _, origin := range c.AllowedOrigins {
		allowed[strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// NewLogger builds the process logger for LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if c.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
