package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loss-engine/config"
)

func TestLoad_CreatesDefaultFile(t *testing.T) {
	// GIVEN: no file at the path
	path := filepath.Join(t.TempDir(), "conf", "losses.toml")

	// WHEN: loading
	cfg, err := config.Load(path)

	// THEN: defaults are returned and written
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	_, err = os.Stat(path)
	require.NoError(t, err)

	// AND: the written file reads back to the same values
	again, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "losses.toml")
	content := `
[server]
port = 9090

[scheduler]
enabled = true
interval = "15m"
lookback_months = 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "losses.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval.Duration)
	assert.Equal(t, 2, cfg.Scheduler.LookbackMonths)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad toml":      "[server\nport = 1",
		"bad duration":  "[scheduler]\ninterval = \"soon\"",
		"port range":    "[server]\nport = 70000",
		"empty db path": "[database]\npath = \"\"",
		"neg lookback":  "[scheduler]\nlookback_months = -1",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "losses.toml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}
