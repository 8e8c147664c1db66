// Package config loads invocca API configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultListenAddr      = ":8080"
	defaultNATSStream      = "INVOCCA"
	defaultJWTIssuer       = "invocca"
	defaultShutdownTimeout = 15 * time.Second
	defaultDBMaxOpenConns  = 20
	defaultEnvFile         = ".env"
)

// Config holds service configuration values.
type Config struct {
	ListenAddr string
	// DBDSN selects PostgreSQL. Empty runs on the in-memory store.
	DBDSN          string
	DBMaxOpenConns int
	LogLevel       string

	JWTSecret string
	JWTIssuer string

	// NATSURL enables JetStream change events. Empty disables them.
	NATSURL    string
	NATSStream string

	DevMode        bool
	MetricsEnabled bool
	TracesEnabled  bool

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, after merging an
// optional dotenv file (INVOCCA_ENV_FILE, default .env). Variables already
// set in the environment win over the file.
func Load() (Config, error) {
	if err := loadEnvFile(envOrDefault("INVOCCA_ENV_FILE", defaultEnvFile)); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:      envOrDefault("INVOCCA_LISTEN_ADDR", defaultListenAddr),
		DBDSN:           strings.TrimSpace(os.Getenv("INVOCCA_DB_DSN")),
		DBMaxOpenConns:  envPositiveInt("INVOCCA_DB_MAX_OPEN_CONNS", defaultDBMaxOpenConns),
		LogLevel:        strings.ToLower(envOrDefault("INVOCCA_LOG_LEVEL", "info")),
		JWTSecret:       os.Getenv("INVOCCA_JWT_SECRET"),
		JWTIssuer:       envOrDefault("INVOCCA_JWT_ISSUER", defaultJWTIssuer),
		NATSURL:         strings.TrimSpace(os.Getenv("INVOCCA_NATS_URL")),
		NATSStream:      envOrDefault("INVOCCA_NATS_STREAM", defaultNATSStream),
		DevMode:         envBool("INVOCCA_DEV_MODE", false),
		MetricsEnabled:  envBool("INVOCCA_METRICS_ENABLED", true),
		TracesEnabled:   envBool("INVOCCA_TRACES_ENABLED", false),
		ShutdownTimeout: envPositiveDuration("INVOCCA_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
	}

	if cfg.JWTSecret == "" && !cfg.DevMode {
		return Config{}, errors.New("INVOCCA_JWT_SECRET is required unless INVOCCA_DEV_MODE is set")
	}
	if cfg.DBDSN == "" && !cfg.DevMode {
		return Config{}, errors.New("INVOCCA_DB_DSN is required unless INVOCCA_DEV_MODE is set")
	}

	return cfg, nil
}

func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		switch strings.ToLower(v) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		default:
			return defaultVal
		}
	}
	return b
}

func envPositiveInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return defaultVal
	}
	return parsed
}

func envPositiveDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return defaultVal
	}
	return parsed
}
