package main

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/chat"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/device"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/executor"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/provider"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/settings"
	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/transcript"
	"github.com/ZanzyTHEbar/simple-ai-assistant/pkg/common"
)

// app holds the collaborators shared by the subcommands.
type app struct {
	settings *settings.Settings
	logger   *logrus.Logger
	logFile  io.Closer
	store    *transcript.Store
	device   *device.Collector
}

func newApp() (*app, error) {
	logger := common.NewLogger("info", io.Discard)

	s, err := settings.Load(settings.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	a := &app{
		settings: s,
		logger:   logger,
		store:    transcript.NewStore(s.HistoryFile(), logger),
		device:   device.NewCollector(logger),
	}

	f, err := common.OpenLogFile(s.LogFile())
	if err != nil {
		logger.SetOutput(os.Stderr)
		logger.WithError(err).Warn("cannot open log file, logging to stderr")
	} else {
		logger.SetOutput(f)
		a.logFile = f
	}
	logger.SetLevel(s.LogLevel())

	return a, nil
}

func (a *app) Close() {
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// session wires a chat session that renders to view and persists to store.
func (a *app) session(ctx context.Context, store chat.Store, view *termView) *chat.Session {
	exec := executor.New(
		executor.WithLogger(a.logger),
		executor.WithObserver(view),
	)
	return chat.New(ctx, chat.Deps{
		Store:      store,
		Adapter:    provider.NewAdapter(provider.WithLogger(a.logger)),
		Executor:   exec,
		Settings:   a.settings,
		DeviceInfo: a.device.Collect,
		View:       view,
		Logger:     a.logger,
	})
}

// memoryStore keeps one-shot questions out of the chat history.
type memoryStore struct{}

func (memoryStore) Load() transcript.Transcript     { return nil }
func (memoryStore) Save(transcript.Transcript, int) {}
func (memoryStore) Clear()                          {}
