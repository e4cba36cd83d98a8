package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/susu3304/dailytap/internal/game"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// DevJWTSecret is the JWT_SECRET default. It is only accepted with DEV_MODE
// on, since the token is a player's only identity.
const DevJWTSecret = "dev-only-change-me"

type Config struct {
	// Web Server
	WebBind     string   `env:"WEB_BIND" envDefault:"0.0.0.0:3000"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	// Session
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-only-change-me"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Game
	LocationsFile    string        `env:"LOCATIONS_FILE" envDefault:"locations.yaml"`
	Timezone         string        `env:"GAME_TIMEZONE" envDefault:"America/New_York"`
	DevMode          bool          `env:"DEV_MODE" envDefault:"false"`
	MaxDistance      float64       `env:"MAX_DISTANCE_METERS" envDefault:"8000"`
	ScoreExponent    float64       `env:"SCORE_EXPONENT" envDefault:"2.3"`
	Multipliers      string        `env:"SCORE_MULTIPLIERS" envDefault:"3:2,4:3,5:3"`
	AdvanceDelay     time.Duration `env:"ADVANCE_DELAY" envDefault:"500ms"`
	RevealDelay      time.Duration `env:"REVEAL_DELAY" envDefault:"2100ms"`
	RolloverInterval time.Duration `env:"ROLLOVER_INTERVAL" envDefault:"1m"`
	ShareSite        string        `env:"SHARE_SITE" envDefault:"dailytap.app"`

	// Storage
	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"data/dailytap.db"`
	DatabaseURL  string `env:"DATABASE_URL"`
	RedisURL     string `env:"REDIS_URL"`

	// Discord
	DiscordWebhookURL string `env:"DISCORD_WEBHOOK_URL"`
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required")
		}
	default:
		return fmt.Errorf("STORE_BACKEND %q is not one of memory, sqlite, postgres, redis", c.StoreBackend)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MaxDistance <= 0 {
		return fmt.Errorf("MAX_DISTANCE_METERS must be positive")
	}
	if c.ScoreExponent <= 0 {
		return fmt.Errorf("SCORE_EXPONENT must be positive")
	}
	if c.AdvanceDelay < 0 || c.RevealDelay < 0 {
		return fmt.Errorf("ADVANCE_DELAY and REVEAL_DELAY must not be negative")
	}
	if c.RolloverInterval <= 0 {
		return fmt.Errorf("ROLLOVER_INTERVAL must be positive")
	}
	if _, err := game.ParseMultipliers(c.Multipliers); err != nil {
		return fmt.Errorf("SCORE_MULTIPLIERS: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("GAME_TIMEZONE: %w", err)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.JWTSecret == DevJWTSecret && !c.DevMode {
		return fmt.Errorf("JWT_SECRET must be set unless DEV_MODE is on")
	}
	return nil
}

// Location is the zone whose midnight starts a new game.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Level is the parsed LOG_LEVEL.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Game returns the engine tuning.
func (c *Config) Game() game.Config {
	m, err := game.ParseMultipliers(c.Multipliers)
	if err != nil {
		m = game.DefaultMultipliers()
	}
	return game.Config{
		MaxDistance:  c.MaxDistance,
		Exponent:     c.ScoreExponent,
		Multipliers:  m,
		AdvanceDelay: c.AdvanceDelay,
		RevealDelay:  c.RevealDelay,
	}
}
