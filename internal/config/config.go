package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultProjectName  = "Untitled Project"
	DefaultSystemPrompt = "You are a helpful assistant."

	// MaxProjectNameLength matches the VARCHAR(255) column.
	MaxProjectNameLength = 255
)

type Config struct {
	Addr        string `env:"ADDR" envDefault:":5000"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`

	SecretKey     string        `env:"SECRET_KEY" envDefault:"change-me"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"false"`
	BcryptCost    int           `env:"BCRYPT_COST" envDefault:"10"`

	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite:///app.db"`

	// LLM
	OpenRouterAPIKey  string        `env:"OPENROUTER_API_KEY"`
	OpenRouterModel   string        `env:"OPENROUTER_MODEL" envDefault:"openrouter/auto"`
	OpenRouterBaseURL string        `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1/"`
	LLMTimeout        time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	AppURL            string        `env:"APP_URL"`
	AppTitle          string        `env:"APP_TITLE"`

	// Uploads
	UploadDir         string   `env:"UPLOAD_DIR" envDefault:"uploads"`
	MaxUploadBytes    int64    `env:"MAX_UPLOAD_BYTES" envDefault:"16777216"`
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS" envSeparator:"," envDefault:"txt,md,pdf,png,jpg,jpeg,gif,csv,json"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", cfg.MaxUploadBytes)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "prod"
}

// Database splits DATABASE_URL into a database/sql driver name and DSN.
// SQLite URLs follow the sqlite:///relative and sqlite:////absolute form.
func (c *Config) Database() (driver, dsn string, err error) {
	u := strings.TrimSpace(c.DatabaseURL)
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return "", "", fmt.Errorf("invalid DATABASE_URL %q", u)
	}

	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3":
		path := strings.TrimPrefix(rest, "/")
		if path == "" {
			return "", "", fmt.Errorf("invalid DATABASE_URL %q: missing path", u)
		}
		return "sqlite3", path, nil
	case "postgres", "postgresql":
		return "postgres", u, nil
	default:
		return "", "", fmt.Errorf("unsupported database scheme %q", scheme)
	}
}
