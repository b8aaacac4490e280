package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("API_BACKEND_URL", "")
	t.Setenv("QR_POLL_INTERVAL", "")
	t.Setenv("MAX_PHOTO_BYTES", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.Backend.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Dispatch.PollInterval)
	assert.Equal(t, 3*1024*1024, cfg.Dispatch.MaxPhotoBytes)
	assert.Empty(t, cfg.Journal.DatabaseURL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("API_BACKEND_URL", "https://api.example.com/")
	t.Setenv("PUBLIC_APP_URL", "https://app/")
	t.Setenv("QR_POLL_INTERVAL", "500ms")
	t.Setenv("MAX_PHOTO_BYTES", "1024")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, "https://app", cfg.Dispatch.PublicAppURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.PollInterval)
	assert.Equal(t, 1024, cfg.Dispatch.MaxPhotoBytes)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoad_InvalidPollInterval(t *testing.T) {
	t.Setenv("QR_POLL_INTERVAL", "-1s")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_ProductionNeedsJWTSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Server.JWTSecret)
}

func TestAppConfig_IsProduction(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"production", true},
		{"prod", true},
		{"development", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			assert.Equal(t, tt.want, AppConfig{Env: tt.env}.IsProduction())
		})
	}
}
