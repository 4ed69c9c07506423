package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CACHE_TTL_MINUTES", "")

	LoadConfig()

	assert.Equal(t, "8080", AppConfig.ServerPort)
	assert.Equal(t, time.Hour, AppConfig.CacheTTL)
	assert.Len(t, AppConfig.JWTSecret, 64)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("JWT_SECRET", "fixed")
	t.Setenv("WORKER_POOL_SIZE", "8")
	t.Setenv("CACHE_TTL_MINUTES", "not-a-number")

	LoadConfig()

	assert.Equal(t, "9000", AppConfig.ServerPort)
	assert.Equal(t, "fixed", AppConfig.JWTSecret)
	assert.Equal(t, 8, AppConfig.WorkerPoolSize)
	assert.Equal(t, time.Hour, AppConfig.CacheTTL)
}
