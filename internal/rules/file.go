package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/types"
)

// DefaultPath returns ~/.config/tabregel/rules.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "tabregel", "rules.json")
}

// FileStore keeps rules in a JSON or YAML file, chosen by extension. A
// missing file holds no rules.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) yaml() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

// Rules reads the file.
func (s *FileStore) Rules(_ context.Context) ([]types.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rules []types.Rule
	if s.yaml() {
		err = yaml.Unmarshal(data, &rules)
	} else {
		err = json.Unmarshal(data, &rules)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return rules, nil
}

// SetRules validates and writes the full list, replacing the file
// atomically.
func (s *FileStore) SetRules(_ context.Context, rules []types.Rule) error {
	if err := ValidateAll(rules); err != nil {
		return err
	}
	if rules == nil {
		rules = []types.Rule{}
	}

	var (
		data []byte
		err  error
	)
	if s.yaml() {
		data, err = yaml.Marshal(rules)
	} else {
		data, err = json.MarshalIndent(rules, "", "  ")
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	applog.Info("rules.saved", "path", s.path, "count", len(rules))
	return nil
}

// Watch calls fn with the new rule list whenever the file changes, until
// ctx is done. The parent directory is watched so atomic replaces and
// re-creation are seen.
func (s *FileStore) Watch(ctx context.Context, fn func([]types.Rule)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.Close()
		return err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		name := filepath.Clean(s.path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) {
					continue
				}
				rules, err := s.Rules(ctx)
				if err != nil {
					applog.Error("rules.reload", err, "path", s.path)
					continue
				}
				applog.Info("rules.reloaded", "path", s.path, "count", len(rules))
				fn(rules)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				applog.Error("rules.watch", err, "path", s.path)
			}
		}
	}()
	return nil
}
