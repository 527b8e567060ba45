package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://u:p@localhost/db")
	t.Setenv("BOT_TOKEN", "token")

	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", c.RedisAddr)
	assert.Equal(t, "./sessions", c.SessionsDir)
	assert.Equal(t, time.Second, c.PIDWait)
	assert.Equal(t, 3, c.PollMaxRetries)
	assert.Equal(t, 500*time.Millisecond, c.PollInterval)
	assert.Equal(t, 30, c.DrainBatch)
	assert.NotEmpty(t, c.WorkerBinary)
	require.NoError(t, c.ValidateBotProcess())
}

func TestLoadFromFileDoesNotOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.env")
	require.NoError(t, os.WriteFile(path, []byte("SESSIONS_DIR=/from/file\nLOG_LEVEL=debug\n"), 0o600))

	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("SESSIONS_DIR", "")
	os.Unsetenv("SESSIONS_DIR")
	t.Cleanup(func() { os.Unsetenv("SESSIONS_DIR") })

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/file", c.SessionsDir)
	assert.Equal(t, "error", c.LogLevel)
}

func TestValidateBotProcess(t *testing.T) {
	c := Config{SessionsDir: "s", PollInterval: time.Second, PollMaxRetries: 3, DrainBatch: 30}
	err := c.ValidateBotProcess()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOT_TOKEN")
	assert.Contains(t, err.Error(), "POSTGRES_DSN")

	c.BotToken = "t"
	c.PostgresDSN = "dsn"
	c.PollInterval = 0
	err = c.ValidateBotProcess()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_INTERVAL")
}

func TestValidateWorkerProcessSkipsBotToken(t *testing.T) {
	c := Config{PostgresDSN: "dsn", SessionsDir: "s", WorkerPollInterval: time.Second}
	assert.NoError(t, c.ValidateWorkerProcess())
}

func TestLoadAccessSettings(t *testing.T) {
	t.Setenv("ADMIN_IDS", "11,22")
	t.Setenv("REGISTRATION_SECRET", "s3cret")

	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 22}, c.AdminIDs)
	assert.Equal(t, "s3cret", c.RegistrationSecret)
}
