package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the client.
type Config struct {
	APIURL string // Base URL of the Nexu backend, e.g. http://localhost:5000
	WSURL  string // Websocket endpoint; derived from APIURL when unset
	Env    string

	ConfigDir string // Credentials and local message cache live here

	// Optional prometheus listener, e.g. "127.0.0.1:9190". Empty disables it.
	MetricsAddr string

	HandshakeTimeout time.Duration
	HistoryTimeout   time.Duration
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:           strings.TrimRight(getEnv("NEXU_API_URL", "http://localhost:5000"), "/"),
		WSURL:            os.Getenv("NEXU_WS_URL"),
		Env:              getEnv("NEXU_ENV", "development"),
		ConfigDir:        os.Getenv("NEXU_CONFIG"),
		MetricsAddr:      os.Getenv("NEXU_METRICS_ADDR"),
		HandshakeTimeout: getDuration("NEXU_HANDSHAKE_TIMEOUT", 10*time.Second),
		HistoryTimeout:   getDuration("NEXU_HISTORY_TIMEOUT", 15*time.Second),
	}

	if cfg.WSURL == "" {
		cfg.WSURL = deriveWSURL(cfg.APIURL)
	}

	if cfg.ConfigDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ConfigDir = filepath.Join(home, ".nexu")
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// deriveWSURL maps an http(s) base URL to the backend's websocket endpoint.
func deriveWSURL(apiURL string) string {
	ws := apiURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return ws + "/ws"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
