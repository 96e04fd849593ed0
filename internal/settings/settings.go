// Package settings reads the assistant configuration: built-in defaults,
// then assistant.toml from the config directories, then ASSISTANT_*
// environment variables (including those set by .env files).
package settings

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/apperr"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/executor"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/provider"
	"github.com/ZanzyTHEbar/simple-ai-assistant/pkg/common"
)

const (
	Name      = "assistant"
	EnvPrefix = "ASSISTANT"
)

type Config struct {
	APIProvider    string `koanf:"api-provider" toml:"api-provider" desc:"active provider: openai, gemini or claude" default:"openai"`
	OpenAIAPIKey   string `koanf:"openai-api-key" toml:"openai-api-key" desc:"OpenAI API key" default:""`
	OpenAIModel    string `koanf:"openai-model" toml:"openai-model" desc:"OpenAI model, empty for the provider default" default:""`
	GeminiAPIKey   string `koanf:"gemini-api-key" toml:"gemini-api-key" desc:"Gemini API key" default:""`
	GeminiModel    string `koanf:"gemini-model" toml:"gemini-model" desc:"Gemini model, empty for the provider default" default:""`
	ClaudeAPIKey   string `koanf:"claude-api-key" toml:"claude-api-key" desc:"Claude API key" default:""`
	ClaudeModel    string `koanf:"claude-model" toml:"claude-model" desc:"Claude model, empty for the provider default" default:""`
	HistoryLimit   int    `koanf:"history-limit" toml:"history-limit" desc:"non-system messages kept on disk, 0 keeps all" default:"20"`
	SendDeviceInfo bool   `koanf:"send-device-info" toml:"send-device-info" desc:"append device info to the first prompt" default:"false"`
	CommandTimeout int    `koanf:"command-timeout" toml:"command-timeout" desc:"seconds before a command is terminated" default:"60"`
	HistoryFile    string `koanf:"history-file" toml:"history-file" desc:"transcript file" default:"$XDG_CACHE_HOME/simple-ai-assistant/history.json"`
	LogLevel       string `koanf:"log-level" toml:"log-level" desc:"logrus level" default:"info"`
	LogFile        string `koanf:"log-file" toml:"log-file" desc:"log file" default:"$XDG_STATE_HOME/simple-ai-assistant/assistant.log"`
	OverloadEnv    bool   `koanf:"overload-env" toml:"overload-env" desc:".env files override variables already set" default:"false"`
}

func Defaults() Config {
	return Config{
		APIProvider:    provider.OpenAI,
		HistoryLimit:   20,
		CommandTimeout: int(executor.DefaultTimeout / time.Second),
		LogLevel:       "info",
	}
}

// Redacted masks the API keys for display.
func (c Config) Redacted() Config {
	for _, key := range []*string{&c.OpenAIAPIKey, &c.GeminiAPIKey, &c.ClaudeAPIKey} {
		if *key != "" {
			*key = "********"
		}
	}
	return c
}

// Settings holds the current configuration. It is safe for concurrent use;
// every getter reads the latest loaded values.
type Settings struct {
	dirs   []string
	logger logrus.FieldLogger

	mu   sync.RWMutex
	cfg  Config
	path string
}

type Option func(*Settings)

// WithDirs replaces the config directory search list.
func WithDirs(dirs ...string) Option {
	return func(s *Settings) {
		s.dirs = dirs
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func Load(opts ...Option) (*Settings, error) {
	s := &Settings{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(s)
	}
	if s.dirs == nil {
		s.dirs = common.ConfigDirs()
	}
	s.logger = s.logger.WithField("component", "settings")

	if err := s.Reload(); err != nil {
		return nil, err
	}

	overload := s.Snapshot().OverloadEnv
	loaded, err := common.LoadEnvFiles(s.dirs, overload)
	if err != nil {
		return nil, apperr.InvalidConfig(".env", err)
	}
	if len(loaded) > 0 {
		s.logger.WithField("files", loaded).Info("loaded env files")
		if err := s.Reload(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Reload re-reads the config file and the environment.
func (s *Settings) Reload() error {
	cfg := Defaults()

	k, path, err := common.LoadConfig(Name, &cfg, s.dirs)
	if err != nil {
		return apperr.InvalidConfig(Name+".toml", err)
	}

	changed, err := applyEnvOverrides(k)
	if err != nil {
		return apperr.InvalidConfig("environment", err)
	}
	if changed {
		if err := k.Unmarshal("", &cfg); err != nil {
			return apperr.InvalidConfig("environment", err)
		}
	}

	s.mu.Lock()
	s.cfg = cfg
	s.path = path
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"file":     path,
		"provider": cfg.APIProvider,
	}).Debug("settings loaded")
	return nil
}

// applyEnvOverrides copies every ASSISTANT_<KEY> variable over the matching
// key, with dashes spelled as underscores. Values that do not convert to the
// key's type are rejected.
func applyEnvOverrides(k *koanf.Koanf) (bool, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	changed := false
	for _, key := range k.Keys() {
		_ = v.BindEnv(key)
		if !v.IsSet(key) {
			continue
		}

		raw := v.GetString(key)
		var val any = raw
		var err error
		switch k.Get(key).(type) {
		case int, int64:
			val, err = cast.ToIntE(raw)
		case bool:
			val, err = cast.ToBoolE(raw)
		}
		if err != nil {
			return false, fmt.Errorf("%s_%s: %w", EnvPrefix, envKey(key), err)
		}
		if err := k.Set(key, val); err != nil {
			return false, err
		}
		changed = true
	}
	return changed, nil
}

func envKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func (s *Settings) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ConfigFile is the file the current values came from, or empty.
func (s *Settings) ConfigFile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

func (s *Settings) Provider() string {
	return s.Snapshot().APIProvider
}

// Credentials returns the API key and model configured for a provider.
func (c Config) Credentials(name string) (apiKey, model string) {
	switch name {
	case provider.OpenAI:
		return c.OpenAIAPIKey, c.OpenAIModel
	case provider.Gemini:
		return c.GeminiAPIKey, c.GeminiModel
	case provider.Claude:
		return c.ClaudeAPIKey, c.ClaudeModel
	default:
		return "", ""
	}
}

func (s *Settings) APIKey(name string) string {
	key, _ := s.Snapshot().Credentials(name)
	return key
}

func (s *Settings) Model(name string) string {
	_, model := s.Snapshot().Credentials(name)
	return model
}

// ProviderConfig returns the active provider with its key and model.
func (s *Settings) ProviderConfig() provider.Config {
	cfg := s.Snapshot()
	key, model := cfg.Credentials(cfg.APIProvider)
	return provider.Config{
		Provider: cfg.APIProvider,
		APIKey:   key,
		Model:    model,
	}
}

func (s *Settings) HistoryLimit() int {
	return s.Snapshot().HistoryLimit
}

func (s *Settings) SendDeviceInfo() bool {
	return s.Snapshot().SendDeviceInfo
}

// CommandTimeout falls back to the executor default for non-positive values.
func (s *Settings) CommandTimeout() time.Duration {
	secs := s.Snapshot().CommandTimeout
	if secs <= 0 {
		return executor.DefaultTimeout
	}
	return time.Duration(secs) * time.Second
}

func (s *Settings) HistoryFile() string {
	if f := s.Snapshot().HistoryFile; f != "" {
		return f
	}
	return common.CacheFile("history.json")
}

func (s *Settings) LogFile() string {
	if f := s.Snapshot().LogFile; f != "" {
		return f
	}
	return common.StateFile(Name + ".log")
}

func (s *Settings) LogLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(s.Snapshot().LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Watch reloads the settings whenever assistant.toml changes in one of the
// config directories, until ctx is done. Reload errors are logged and the
// previous values kept.
func (s *Settings) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	watched := 0
	for _, dir := range s.dirs {
		if err := watcher.Add(dir); err != nil {
			s.logger.WithError(err).WithField("dir", dir).Warn("cannot watch config dir")
			continue
		}
		watched++
	}
	if watched == 0 {
		watcher.Close()
		return errors.New("no config directory to watch")
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != Name+".toml" {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.WithError(err).Warn("settings reload failed, keeping previous values")
					continue
				}
				s.logger.WithField("event", event.Op.String()).Info("settings reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.WithError(err).Warn("config watcher error")
			}
		}
	}()

	return nil
}
