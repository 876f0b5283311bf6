package app

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AUTH_TOKEN_SECRET", "s")
	cfg, err := LoadAPIConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 8*time.Hour, cfg.AuthTokenTTL)
	require.Equal(t, time.Minute, cfg.SessionPollInterval)
	require.Equal(t, 5*time.Minute, cfg.SessionExpiryThreshold)
	require.True(t, cfg.SessionAutoRefresh)
	require.False(t, cfg.IsProduction())
}

func TestLoadAPIConfigRequiresSecret(t *testing.T) {
	t.Setenv("AUTH_TOKEN_SECRET", "")
	_, err := LoadAPIConfig()
	require.Error(t, err)
}

func TestLoadConsoleConfigValidates(t *testing.T) {
	t.Setenv("CONSOLE_CSRF_SECRET", "")
	_, err := LoadConsoleConfig()
	require.Error(t, err)

	t.Setenv("CONSOLE_CSRF_SECRET", "csrf")
	t.Setenv("CREDSTORE_DRIVER", "sqlite")
	_, err = LoadConsoleConfig()
	require.Error(t, err)

	t.Setenv("CREDSTORE_DRIVER", "redis")
	t.Setenv("SESSION_POLL_INTERVAL", "15s")
	cfg, err := LoadConsoleConfig()
	require.NoError(t, err)
	require.Equal(t, 15*time.Second, cfg.SessionPollInterval)
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", AppEnv: "production"}, &buf)
	logger.Debug("hidden")
	logger.Info("shown", "k", "v")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "shown", line["msg"])
}
