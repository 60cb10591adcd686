package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies NOTIF_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known NOTIF_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setStr(&cfg.Server.Addr, "NOTIF_SERVER_ADDR")
	setStringSlice(&cfg.Server.CORSOrigins, "NOTIF_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.ReadTimeout, "NOTIF_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "NOTIF_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.IdleTimeout, "NOTIF_SERVER_IDLE_TIMEOUT")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "NOTIF_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "NOTIF_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "NOTIF_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "NOTIF_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "NOTIF_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "NOTIF_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "NOTIF_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "NOTIF_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "NOTIF_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "NOTIF_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "NOTIF_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "NOTIF_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "NOTIF_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.MaxConns, "NOTIF_POSTGRES_MAX_CONNS")
	setInt(&cfg.Postgres.MinConns, "NOTIF_POSTGRES_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "NOTIF_POSTGRES_RUN_MIGRATIONS")

	// ── Notif ──
	setStr(&cfg.Notif.AppKey, "NOTIF_APP_KEY")
	setStr(&cfg.Notif.AppSecret, "NOTIF_APP_SECRET")
	setStr(&cfg.Notif.JWTSecret, "NOTIF_JWT_SECRET")

	// ── Top-level ──
	setStr(&cfg.Mode, "NOTIF_MODE")
	setStr(&cfg.LogLevel, "NOTIF_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
