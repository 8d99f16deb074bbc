package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Addr)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
	assert.Equal(t, int64(16<<20), cfg.MaxUploadBytes)
	assert.Equal(t, "openrouter/auto", cfg.OpenRouterModel)
	assert.ElementsMatch(t,
		[]string{"txt", "md", "pdf", "png", "jpg", "jpeg", "gif", "csv", "json"},
		cfg.AllowedExtensions)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("ALLOWED_EXTENSIONS", "txt,md")
	t.Setenv("SESSION_TTL", "1h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenRouterAPIKey)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"txt", "md"}, cfg.AllowedExtensions)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
}

func TestLoadRejectsNonPositiveUploadLimit(t *testing.T) {
	t.Setenv("MAX_UPLOAD_BYTES", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabase(t *testing.T) {
	tests := []struct {
		url        string
		wantDriver string
		wantDSN    string
		wantErr    bool
	}{
		{url: "sqlite:///app.db", wantDriver: "sqlite3", wantDSN: "app.db"},
		{url: "sqlite:////var/lib/app.db", wantDriver: "sqlite3", wantDSN: "/var/lib/app.db"},
		{url: "sqlite3://:memory:", wantDriver: "sqlite3", wantDSN: ":memory:"},
		{url: "postgres://u:p@localhost/db?sslmode=disable", wantDriver: "postgres", wantDSN: "postgres://u:p@localhost/db?sslmode=disable"},
		{url: "postgresql://localhost/db", wantDriver: "postgres", wantDSN: "postgresql://localhost/db"},
		{url: "mysql://localhost/db", wantErr: true},
		{url: "app.db", wantErr: true},
		{url: "sqlite:///", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			cfg := &Config{DatabaseURL: tt.url}
			driver, dsn, err := cfg.Database()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantDSN, dsn)
		})
	}
}
