package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV", "test")

	cfg := LoadConfig()

	assert.Equal(t, 3000, cfg.ServerPort)
	assert.Equal(t, StoreBackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.False(t, cfg.Database.UseSSL)
	assert.Equal(t, "user-events", cfg.MQ.Channel)
	assert.Empty(t, cfg.MQ.Backend)
	assert.Empty(t, cfg.Storage.Backend)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("RIT_API_KEY", "  secret ")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("DB_SSL", "true")
	t.Setenv("MEDIA_BASE_URL", "https://api.example.com/")
	t.Setenv("MQ_BACKEND", "rabbitmq")
	t.Setenv("RABBITMQ_PREFETCH", "3")

	cfg := LoadConfig()

	assert.Equal(t, 8081, cfg.ServerPort)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, StoreBackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/tmp/x.db", cfg.SQLite.Path)
	assert.True(t, cfg.Database.UseSSL)
	assert.Equal(t, "https://api.example.com", cfg.Storage.BaseURL)
	assert.Equal(t, MQBackendRabbitMQ, cfg.MQ.Backend)
	assert.Equal(t, 3, cfg.MQ.RabbitMQ.PrefetchCount)
}

func TestGetEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))
}

func TestGetEnvBoolInvalidFallsBack(t *testing.T) {
	t.Setenv("SOME_BOOL", "maybe")
	assert.True(t, getEnvBool("SOME_BOOL", true))
}
