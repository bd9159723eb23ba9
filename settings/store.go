package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Harsha-Reddy21/AI-Onboarding/agent"
	"github.com/Harsha-Reddy21/AI-Onboarding/timeline"
)

// Store keeps the profiles in <dataDir>/settings.json.
type Store struct {
	path   string
	dataMu sync.RWMutex
	data   Settings
}

// NewStore loads existing settings from disk. A missing, corrupt or invalid
// file yields the defaults.
func NewStore(dataDir string) (*Store, error) {
	s := &Store{
		path: filepath.Join(dataDir, "settings.json"),
		data: Default(),
	}

	settings, err := s.read()
	switch {
	case errors.Is(err, os.ErrNotExist):
	case errors.Is(err, errUnusable):
		slog.Warn("ignoring settings file", "path", s.path, "error", err)
	case err != nil:
		return nil, err
	default:
		s.data = settings
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Get() Settings {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.data
}

// ConfigFor returns the reducer configuration currently set for a target.
// It has the shape of process.ConfigFunc.
func (s *Store) ConfigFor(target agent.Target) timeline.Config {
	return s.Get().ConfigFor(target)
}

func (s *Store) Update(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	s.dataMu.Lock()
	defer s.dataMu.Unlock()

	if err := s.save(settings); err != nil {
		return err
	}

	s.data = settings
	return nil
}

// Reload re-reads the file. Unlike NewStore, an unusable file keeps the
// settings already in effect and returns the error.
func (s *Store) Reload() error {
	settings, err := s.read()
	if errors.Is(err, os.ErrNotExist) {
		settings, err = Default(), nil
	}
	if err != nil {
		return err
	}

	s.dataMu.Lock()
	s.data = settings
	s.dataMu.Unlock()
	return nil
}

// Watch reloads the settings whenever the file changes on disk, until ctx is
// done. Runs only see the new profile when they start.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}
	defer watcher.Close()

	// The directory, not the file: saves replace the file by rename.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch settings: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path || event.Has(fsnotify.Chmod) {
				continue
			}
			if err := s.Reload(); err != nil {
				slog.Warn("settings reload failed, keeping current settings", "error", err)
				continue
			}
			slog.Info("settings reloaded", "op", event.Op.String())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("settings watcher error", "error", err)
		}
	}
}

var errUnusable = errors.New("unusable settings file")

func (s *Store) read() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Settings{}, err
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", errUnusable, err)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", errUnusable, err)
	}
	return settings, nil
}

func (s *Store) save(settings Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "settings-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, s.path)
}
