package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// t.Setenv to "" hides anything set in the developer's shell.
	for _, k := range []string{"PORT", "DB_PATH", "LOG_LEVEL", "JWT_ISSUER", "ACCESS_TOKEN_TTL",
		"REFRESH_TOKEN_TTL", "OAUTH_TIMEOUT", "METRICS_ENABLED", "GITHUB_CLIENT_ID", "S3_BUCKET", "CHAT_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "data/clans.db", cfg.DBPath)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "code-of-clans", cfg.JWTIssuer)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 15*time.Second, cfg.OAuthTimeout)
	assert.True(t, cfg.MetricsEnabled)
	assert.False(t, cfg.GitHub.Enabled())
	assert.False(t, cfg.S3.Enabled())
	assert.Empty(t, cfg.ChatOrigins)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("DISCORD_CLIENT_ID", "d-id")
	t.Setenv("DISCORD_CLIENT_SECRET", "d-secret")
	t.Setenv("DISCORD_REDIRECT_URI", "http://localhost/cb")
	t.Setenv("S3_BUCKET", "avatars")
	t.Setenv("S3_PUBLIC_URL", "https://cdn.example.com/avatars/")
	t.Setenv("CHAT_ALLOWED_ORIGINS", "localhost:5173, ,*.clans.dev")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.False(t, cfg.MetricsEnabled)
	assert.True(t, cfg.Discord.Enabled())
	assert.Equal(t, Provider{ClientID: "d-id", ClientSecret: "d-secret", RedirectURI: "http://localhost/cb"}, cfg.Discord)
	assert.Equal(t, "https://cdn.example.com/avatars", cfg.S3.PublicURL)
	assert.Equal(t, []string{"localhost:5173", "*.clans.dev"}, cfg.ChatOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("ACCESS_TOKEN_TTL", "15 minutes")
	t.Setenv("OAUTH_TIMEOUT", "")
	t.Setenv("LOG_LEVEL", "loud")

	cfg := Load()

	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)

	err := cfg.Validate()
	require.Error(t, err, "unparsable values must not start the server on defaults")
	assert.Contains(t, err.Error(), `ACCESS_TOKEN_TTL: "15 minutes"`)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
	assert.NotContains(t, err.Error(), "OAUTH_TIMEOUT")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWTSecret:       "0123456789abcdef",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: time.Hour,
			OAuthTimeout:    time.Second,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, "JWT_SECRET"},
		{"zero access ttl", func(c *Config) { c.AccessTokenTTL = 0 }, "ACCESS_TOKEN_TTL"},
		{"negative refresh ttl", func(c *Config) { c.RefreshTokenTTL = -time.Second }, "REFRESH_TOKEN_TTL"},
		{"zero timeout", func(c *Config) { c.OAuthTimeout = 0 }, "OAUTH_TIMEOUT"},
		{"bucket without public url", func(c *Config) { c.S3.Bucket = "b" }, "S3_PUBLIC_URL"},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
