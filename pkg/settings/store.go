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

	"github.com/papercomputeco/veneer/pkg/dotdir"
	"github.com/papercomputeco/veneer/pkg/llm"
	"github.com/papercomputeco/veneer/pkg/logger"
)

// FileStore keeps Settings in settings.json inside the .veneer/ directory and
// caches the last loaded value.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	current Settings
}

// NewFileStore resolves the .veneer/ directory (override wins when non-empty)
// and loads the settings file. A missing file yields Defaults().
func NewFileStore(override string, log *slog.Logger) (*FileStore, error) {
	path, err := dotdir.NewManager().File(override, dotdir.SettingsFile)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &FileStore{
		path:    path,
		logger:  log,
		current: Defaults(),
	}
	if _, err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the absolute path of the settings file.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the settings file and replaces the cached value. Fields absent
// from the file keep their defaults.
func (s *FileStore) Load() (Settings, error) {
	loaded, err := s.read()
	if err != nil {
		return Settings{}, err
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()

	return loaded.Clone(), nil
}

func (s *FileStore) read() (Settings, error) {
	out := Defaults()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	return out, nil
}

// Save writes settings atomically and updates the cached value.
func (s *FileStore) Save(settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.json")
	if err != nil {
		return fmt.Errorf("creating temp settings file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing settings: %w", err)
	}

	s.mu.Lock()
	s.current = settings.Clone()
	s.mu.Unlock()

	return nil
}

// Current returns the cached settings without touching the file.
func (s *FileStore) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// ChatParams returns the cached chat parameters. It has the shape the
// conversation manager expects for its Params hook.
func (s *FileStore) ChatParams() llm.ChatParams {
	return s.Current().Chat
}

// Set reloads the file, assigns key and saves the result.
func (s *FileStore) Set(key, value string) error {
	if !IsValidKey(key) {
		return fmt.Errorf("unknown settings key: %q", key)
	}

	current, err := s.Load()
	if err != nil {
		return err
	}
	if err := current.Set(key, value); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return s.Save(current)
}

// Watch reloads the settings whenever the file changes on disk and passes the
// new value to onChange. A file that fails to parse is logged and the previous
// value is kept. Watch blocks until ctx is done.
func (s *FileStore) Watch(ctx context.Context, onChange func(Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating settings watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watching settings dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			loaded, err := s.Load()
			if err != nil {
				s.logger.Warn("ignoring unreadable settings file", "path", s.path, "error", err)
				continue
			}
			if onChange != nil {
				onChange(loaded)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("settings watcher error: %w", err)
		}
	}
}
