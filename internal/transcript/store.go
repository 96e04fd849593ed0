// Package transcript holds the conversation model and its on-disk snapshot.
package transcript

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Store persists a single transcript snapshot as a JSON document.
//
// Persistence is best-effort: Save and Clear log failures and never return
// them, and Load treats anything it cannot read as an empty transcript.
type Store struct {
	path   string
	logger logrus.FieldLogger
}

func NewStore(path string, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		path:   path,
		logger: logger.WithField("component", "transcript"),
	}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load() Transcript {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.WithError(err).Debug("failed to read transcript")
		}
		return Transcript{}
	}

	var loaded Transcript
	if err := json.Unmarshal(content, &loaded); err != nil {
		s.logger.WithError(err).Debug("failed to parse transcript")
		return Transcript{}
	}
	if !loaded.Validate() {
		s.logger.Debug("discarding transcript with invalid roles")
		return Transcript{}
	}

	for i := range loaded {
		if loaded[i].ID == "" {
			loaded[i].ID = NewMessage(loaded[i].Role, "").ID
		}
	}
	if loaded == nil {
		return Transcript{}
	}
	return loaded
}

func (s *Store) Save(t Transcript, limit int) {
	truncated := Truncate(t, limit)

	b, err := json.Marshal(truncated)
	if err != nil {
		s.logger.WithError(err).Warn("failed to marshal transcript")
		return
	}
	if err := writeFileAtomic(s.path, b); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("failed to save transcript")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"messages": len(truncated),
		"limit":    limit,
	}).Debug("transcript saved")
}

func (s *Store) Clear() {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.WithError(err).Warn("failed to clear transcript")
	}
}

func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
