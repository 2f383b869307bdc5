package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "explorer-points", cfg.App.Name)
	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.App.Debug)
	assert.Equal(t, time.UTC, cfg.App.Location())
	assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)

	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.True(t, cfg.Database.AutoMigrate)

	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "explorer-points:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 10*time.Minute, cfg.Redis.ReportTTL)

	assert.Equal(t, 50, cfg.Engine.CustomSkillLimit)
	assert.Equal(t, 5, cfg.Engine.MaxSuggestions)
	assert.Equal(t, 7*24*time.Hour, cfg.Engine.RecentWindow)
	assert.Equal(t, 5*time.Minute, cfg.Engine.SweepInterval)

	assert.Equal(t, "info", cfg.Observability.Level)
	assert.Equal(t, "text", cfg.Observability.Format)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("APP_TIMEZONE", "Asia/Almaty")
	t.Setenv("DB_URL", "postgres://u:p@db:5432/points")
	t.Setenv("DB_MAX_CONNS", "20")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("ENGINE_SWEEP_INTERVAL", "1m")
	t.Setenv("ENGINE_FINGERPRINT_KEY", "k")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.App.Environment)
	assert.False(t, cfg.App.Debug)
	assert.Equal(t, "Asia/Almaty", cfg.App.Location().String())
	assert.Equal(t, "postgres://u:p@db:5432/points", cfg.Database.URL)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, time.Minute, cfg.Engine.SweepInterval)
	assert.Equal(t, "json", cfg.Observability.Format)
}

func TestLoad_ProductionDefaultsToJSON(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("ENGINE_FINGERPRINT_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "json", cfg.Observability.Format)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad timezone", map[string]string{"APP_TIMEZONE": "Mars/Olympus"}, "APP_TIMEZONE"},
		{"bad duration", map[string]string{"ENGINE_SWEEP_INTERVAL": "soon"}, "parse env"},
		{"unknown env", map[string]string{"APP_ENV": "qa"}, "unknown environment"},
		{"production without key", map[string]string{"APP_ENV": "production"}, "ENGINE_FINGERPRINT_KEY is required"},
		{"long key", map[string]string{"ENGINE_FINGERPRINT_KEY": strings.Repeat("k", 65)}, "at most 64 bytes"},
		{"pool", map[string]string{"DB_MAX_CONNS": "2", "DB_MIN_CONNS": "5"}, "DB_MIN_CONNS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Engine.CustomSkillLimit = 0
	cfg.Engine.BatchConcurrency = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENGINE_CUSTOM_SKILL_LIMIT")
	assert.Contains(t, err.Error(), "ENGINE_BATCH_CONCURRENCY")
}
