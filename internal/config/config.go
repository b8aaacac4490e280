package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Backend  BackendConfig
	Dispatch DispatchConfig
	Journal  JournalConfig
}

type AppConfig struct {
	Env string
}

type ServerConfig struct {
	Port        string
	CORSOrigins []string
	// JWTSecret verifies session tokens when set; otherwise claims are decoded unverified.
	JWTSecret string
}

type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

type DispatchConfig struct {
	PublicAppURL  string
	PollInterval  time.Duration
	MaxPhotoBytes int
}

type JournalConfig struct {
	DatabaseURL string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Env: getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Port:        getEnv("PORT", "8081"),
			CORSOrigins: splitAndTrim(getEnv("CORS_ORIGINS", "http://localhost:3000")),
			JWTSecret:   getEnv("JWT_SECRET", ""),
		},
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(getEnv("API_BACKEND_URL", "http://localhost:5000"), "/"),
			Timeout: getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),
		},
		Dispatch: DispatchConfig{
			PublicAppURL:  strings.TrimRight(getEnv("PUBLIC_APP_URL", "http://localhost:3000"), "/"),
			PollInterval:  getEnvAsDuration("QR_POLL_INTERVAL", 3*time.Second),
			MaxPhotoBytes: getEnvAsInt("MAX_PHOTO_BYTES", 3*1024*1024),
		},
		Journal: JournalConfig{
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
	}

	return cfg, cfg.validate()
}

// IsProduction reports whether the app runs with production logging.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production" || a.Env == "prod"
}

// --- Helpers ---

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is empty")
	}
	if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		return fmt.Errorf("API_BACKEND_URL is invalid: %w", err)
	}
	if c.App.IsProduction() && c.Server.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.Dispatch.PollInterval <= 0 {
		return fmt.Errorf("QR_POLL_INTERVAL must be positive")
	}
	if c.Dispatch.MaxPhotoBytes <= 0 {
		return fmt.Errorf("MAX_PHOTO_BYTES must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if val := strings.TrimSpace(p); val != "" {
			out = append(out, val)
		}
	}
	return out
}
