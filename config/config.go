// Package config loads bot settings from the environment, with an optional
// .env file, applying defaults and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"wysibot/dal"
)

// Config holds all configuration values for the bot.
type Config struct {
	// Discord
	Token   string // DISCORD_TOKEN
	GuildID string // GUILD_ID; empty registers commands globally

	// Storage
	DBDriver string // sqlite|sqlite-purego
	DBPath   string

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool

	// Reminders
	PollInterval  time.Duration
	SendTimeout   time.Duration
	DMConcurrency int
	DMRate        float64 // DMs per second
	DMBurst       int

	// Self-roles
	SelfRoleCooldown      time.Duration
	CooldownPurgeInterval time.Duration

	// Observability
	MetricsAddr string // empty disables the /metrics listener
}

// Load reads an optional .env file from the working directory, then the
// environment, applies defaults and validates the result. Variables already
// set in the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	cfg := Config{
		Token:   getenv("DISCORD_TOKEN", ""),
		GuildID: getenv("GUILD_ID", ""),

		DBDriver: strings.ToLower(getenv("DB_DRIVER", dal.DriverSQLite)),
		DBPath:   getenv("DB_PATH", "wysibot.db"),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		PollInterval:  getdur("POLL_INTERVAL", time.Minute),
		SendTimeout:   getdur("SEND_TIMEOUT", 10*time.Second),
		DMConcurrency: getint("DM_CONCURRENCY", 4),
		DMRate:        getfloat("DM_RATE", 5),
		DMBurst:       getint("DM_BURST", 5),

		SelfRoleCooldown:      getdur("SELFROLE_COOLDOWN", 5*time.Second),
		CooldownPurgeInterval: getdur("COOLDOWN_PURGE_INTERVAL", 10*time.Minute),

		MetricsAddr: getenv("METRICS_ADDR", ""),
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	switch cfg.DBDriver {
	case dal.DriverSQLite, dal.DriverPureSQLite:
	default:
		return cfg, fmt.Errorf("DB_DRIVER must be %q or %q", dal.DriverSQLite, dal.DriverPureSQLite)
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.PollInterval <= 0 || cfg.SendTimeout <= 0 || cfg.CooldownPurgeInterval <= 0 {
		return cfg, errors.New("intervals and timeouts must be positive durations")
	}
	if cfg.SelfRoleCooldown < 0 {
		return cfg, errors.New("SELFROLE_COOLDOWN must be >= 0")
	}
	if cfg.DMConcurrency < 1 {
		return cfg, errors.New("DM_CONCURRENCY must be >= 1")
	}
	if cfg.DMRate <= 0 {
		return cfg, errors.New("DM_RATE must be > 0")
	}
	if cfg.DMBurst < 1 {
		return cfg, errors.New("DM_BURST must be >= 1")
	}

	return cfg, nil
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
