// Package config loads runtime settings from the environment.
//
// A .env file in the working directory is read first when present; real
// environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider holds one OAuth provider's client registration. A provider with
// an empty ClientID is not offered.
type Provider struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Enabled reports whether the provider has been configured.
func (p Provider) Enabled() bool { return p.ClientID != "" }

// S3 configures avatar and banner uploads. Uploads are disabled when Bucket
// is empty.
type S3 struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PublicURL string // prefix for object URLs returned to clients
}

// Enabled reports whether uploads are configured.
func (s S3) Enabled() bool { return s.Bucket != "" }

// Config is the full application configuration.
type Config struct {
	Port     string
	DBPath   string
	LogLevel slog.Level

	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	GitHub       Provider
	Google       Provider
	Discord      Provider
	OAuthTimeout time.Duration

	S3 S3

	// ChatOrigins are host patterns (path.Match syntax) allowed to open the
	// chat WebSocket from a browser. Same-host requests are always allowed.
	ChatOrigins []string

	MetricsEnabled bool

	// loadErrs holds values Load could not parse. The defaults stand in for
	// them until Validate reports them.
	loadErrs []error
}

// Load reads the configuration. It never fails: unparsable values fall back
// to their defaults and are reported by Validate, so call it before use.
func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	var errs []error
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		DBPath:   getEnv("DB_PATH", "data/clans.db"),
		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info"), &errs),

		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTIssuer:       getEnv("JWT_ISSUER", "code-of-clans"),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", time.Hour, &errs),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour, &errs),

		GitHub:       loadProvider("GITHUB"),
		Google:       loadProvider("GOOGLE"),
		Discord:      loadProvider("DISCORD"),
		OAuthTimeout: getEnvDuration("OAUTH_TIMEOUT", 15*time.Second, &errs),

		S3: S3{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Bucket:    os.Getenv("S3_BUCKET"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			PublicURL: strings.TrimRight(os.Getenv("S3_PUBLIC_URL"), "/"),
		},

		ChatOrigins: getEnvList("CHAT_ALLOWED_ORIGINS"),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}
	cfg.loadErrs = errs
	return cfg
}

// Validate reports every setting that would prevent the server from starting.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.loadErrs...)
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_TTL must be positive, got %s", c.AccessTokenTTL))
	}
	if c.RefreshTokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("REFRESH_TOKEN_TTL must be positive, got %s", c.RefreshTokenTTL))
	}
	if c.OAuthTimeout <= 0 {
		errs = append(errs, fmt.Errorf("OAUTH_TIMEOUT must be positive, got %s", c.OAuthTimeout))
	}
	if c.S3.Enabled() && c.S3.PublicURL == "" {
		errs = append(errs, errors.New("S3_PUBLIC_URL is required when S3_BUCKET is set"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func loadProvider(prefix string) Provider {
	return Provider{
		ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
		ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
		RedirectURI:  os.Getenv(prefix + "_REDIRECT_URI"),
	}
}

func parseLevel(s string, errs *[]error) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		*errs = append(*errs, fmt.Errorf("LOG_LEVEL: %q is not a level", s))
		return slog.LevelInfo
	}
	return lvl
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a duration (e.g. 15m, 1h)", key, value))
		return defaultValue
	}
	return d
}
