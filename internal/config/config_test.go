package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
Telegram:
  Token: "123:abc"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "localhost", cfg.PostgreSQL.Host)
	assert.Equal(t, 5432, cfg.PostgreSQL.Port)
	assert.Equal(t, "collect-db", cfg.PostgreSQL.DBName)
	assert.Equal(t, 10, cfg.PostgreSQL.PoolMaxConns)
	assert.Equal(t, "RUB", cfg.App.Currency)
	assert.Equal(t, 5, cfg.App.PageSize)
	assert.False(t, cfg.Telegram.WebhookEnabled)
	assert.False(t, cfg.Admin.Enabled)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfigFile(t, `
Telegram:
  Token: "123:abc"
  WebhookEnabled: true
  WebhookDomain: "bot.example.org"
  ListenAddr: ":8443"
PostgreSQL:
  Host: "db.internal"
  Port: 5433
  User: "collect"
  Password: "secret"
  DBName: "collect"
Admin:
  Enabled: true
  Port: "9090"
  APIToken: "tok"
App:
  Currency: "EUR"
  PageSize: 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.PostgreSQL.Host)
	assert.Equal(t, 5433, cfg.PostgreSQL.Port)
	assert.True(t, cfg.Telegram.WebhookEnabled)
	assert.Equal(t, "bot.example.org", cfg.Telegram.WebhookDomain)
	assert.Equal(t, "9090", cfg.Admin.Port)
	assert.Equal(t, "EUR", cfg.App.Currency)
	assert.Equal(t, 8, cfg.App.PageSize)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing token",
			content: "App:\n  Currency: RUB\n",
			wantErr: "telegram bot token is required",
		},
		{
			name: "webhook without domain",
			content: `
Telegram:
  Token: "123:abc"
  WebhookEnabled: true
`,
			wantErr: "webhook domain is required",
		},
		{
			name: "admin without token",
			content: `
Telegram:
  Token: "123:abc"
Admin:
  Enabled: true
`,
			wantErr: "admin API token is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWebhookPathOrDefault(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "123:abc"}}
	assert.Equal(t, "/webhook/123:abc", cfg.WebhookPathOrDefault())

	cfg.Telegram.WebhookPath = "/hooks/tg"
	assert.Equal(t, "/hooks/tg", cfg.WebhookPathOrDefault())
}
