package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Test loading default config
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Verify defaults
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Adapter)
	assert.Equal(t, 5, cfg.Engine.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Engine.BackoffBase)
	assert.Equal(t, int64(10), cfg.Progression.Awards.Flashcard)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile(t *testing.T) {
	configContent := `{
		"environment": "testing",
		"server": {
			"address": ":9090"
		},
		"storage": {
			"adapter": "memory"
		},
		"progression": {
			"awards": {"flashcard": 12, "deck": 25, "comment": 5, "quiz_base": 20, "quiz_per_correct": 2, "perfect_bonus": 10},
			"streak_bonus_xp": 7,
			"level_thresholds": [0, 50, 200]
		}
	}`

	tmpFile, err := os.CreateTemp("", "config_test_*.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(configContent)
	require.NoError(t, err)
	tmpFile.Close()

	cfg, err := LoadFromFile(tmpFile.Name())
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, EnvTesting, cfg.Environment)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, int64(12), cfg.Progression.Awards.Flashcard)
	assert.Equal(t, int64(7), cfg.Progression.StreakBonusXP)
	assert.Equal(t, []int64{0, 50, 200}, cfg.Progression.LevelThresholds)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PROGRESSKIT_SERVER_ADDR", ":7070")
	t.Setenv("PROGRESSKIT_STORAGE_ADAPTER", "redis")
	t.Setenv("PROGRESSKIT_ENGINE_MAX_ATTEMPTS", "9")
	t.Setenv("PROGRESSKIT_ENGINE_BACKOFF_BASE", "25ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "redis", cfg.Storage.Adapter)
	assert.Equal(t, 9, cfg.Engine.MaxAttempts)
	assert.Equal(t, 25*time.Millisecond, cfg.Engine.BackoffBase)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Adapter = "carrier-pigeon"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Engine.MaxAttempts = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Engine.BackoffCap = cfg.Engine.BackoffBase / 2
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Progression.LevelThresholds = []int64{0, 100, 100}
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Progression.Awards.Flashcard = -1
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Logging.Level = "loud"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Security.EnableRateLimit = true
	cfg.Security.RateLimit.RequestsPerMinute = 0
	require.Error(t, cfg.Validate())
}

func TestStringRedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.SQL.DSN = "postgres://user:hunter2@db/progress"
	cfg.Storage.Redis.Password = "hunter2"

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.Contains(t, s, "[REDACTED]")
}
