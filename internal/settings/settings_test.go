package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/apperr"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/provider"
)

func load(t *testing.T, dir string) *Settings {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s, err := Load(WithDirs(dir), WithLogger(logger))
	require.NoError(t, err)
	return s
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Name+".toml"), []byte(content), 0o600))
}

// replaceConfig swaps the file in with a rename so watchers never observe a
// half-written file.
func replaceConfig(t *testing.T, dir, content string) {
	t.Helper()
	tmp := filepath.Join(dir, "next.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, Name+".toml")))
}

func TestDefaults(t *testing.T) {
	s := load(t, t.TempDir())

	assert.Equal(t, provider.Config{Provider: provider.OpenAI}, s.ProviderConfig())
	assert.Equal(t, 20, s.HistoryLimit())
	assert.False(t, s.SendDeviceInfo())
	assert.Equal(t, 60*time.Second, s.CommandTimeout())
	assert.Equal(t, logrus.InfoLevel, s.LogLevel())
	assert.Equal(t, "history.json", filepath.Base(s.HistoryFile()))
	assert.Equal(t, "assistant.log", filepath.Base(s.LogFile()))
	assert.Empty(t, s.ConfigFile())
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
api-provider = "claude"
claude-api-key = "c-key"
claude-model = "claude-3-5-haiku"
gemini-api-key = "g-key"
history-limit = 5
send-device-info = true
command-timeout = 0
log-level = "debug"
history-file = "/tmp/h.json"
`)

	s := load(t, dir)

	assert.Equal(t, provider.Config{
		Provider: provider.Claude,
		APIKey:   "c-key",
		Model:    "claude-3-5-haiku",
	}, s.ProviderConfig())
	assert.Equal(t, "g-key", s.APIKey(provider.Gemini))
	assert.Empty(t, s.Model(provider.Gemini))
	assert.Equal(t, 5, s.HistoryLimit())
	assert.True(t, s.SendDeviceInfo())
	assert.Equal(t, 60*time.Second, s.CommandTimeout())
	assert.Equal(t, logrus.DebugLevel, s.LogLevel())
	assert.Equal(t, "/tmp/h.json", s.HistoryFile())
	assert.Equal(t, filepath.Join(dir, Name+".toml"), s.ConfigFile())
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
api-provider = "claude"
history-limit = 5
`)
	t.Setenv("ASSISTANT_API_PROVIDER", "gemini")
	t.Setenv("ASSISTANT_GEMINI_API_KEY", "from-env")
	t.Setenv("ASSISTANT_HISTORY_LIMIT", "7")
	t.Setenv("ASSISTANT_SEND_DEVICE_INFO", "true")
	t.Setenv("ASSISTANT_COMMAND_TIMEOUT", "15")

	s := load(t, dir)

	assert.Equal(t, provider.Config{Provider: provider.Gemini, APIKey: "from-env"}, s.ProviderConfig())
	assert.Equal(t, 7, s.HistoryLimit())
	assert.True(t, s.SendDeviceInfo())
	assert.Equal(t, 15*time.Second, s.CommandTimeout())
}

func TestMalformedEnvOverrideIsRejected(t *testing.T) {
	for key, value := range map[string]string{
		"ASSISTANT_HISTORY_LIMIT":    "abc",
		"ASSISTANT_SEND_DEVICE_INFO": "maybe",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)

			_, err := Load(WithDirs(t.TempDir()))

			require.ErrorIs(t, err, apperr.ErrConfig)
		})
	}
}

func TestDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("ASSISTANT_OPENAI_API_KEY=sk-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("ASSISTANT_OPENAI_API_KEY") })

	s := load(t, dir)

	assert.Equal(t, "sk-dotenv", s.APIKey(provider.OpenAI))
}

func TestInvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `api-provider = "unterminated`)

	_, err := Load(WithDirs(dir))

	require.ErrorIs(t, err, apperr.ErrConfig)
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `history-limit = 3`)
	s := load(t, dir)
	require.Equal(t, 3, s.HistoryLimit())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))

	replaceConfig(t, dir, `history-limit = 9`)

	require.Eventually(t, func() bool { return s.HistoryLimit() == 9 }, 3*time.Second, 20*time.Millisecond)
}

func TestWatchKeepsValuesOnBrokenFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `history-limit = 3`)
	logger, hook := test.NewNullLogger()
	s, err := Load(WithDirs(dir), WithLogger(logger))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))

	replaceConfig(t, dir, `history-limit = [`)

	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.WarnLevel {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, 3, s.HistoryLimit())
}

func TestWatchWithoutDirs(t *testing.T) {
	s := load(t, filepath.Join(t.TempDir(), "missing"))

	require.Error(t, s.Watch(context.Background()))
}
