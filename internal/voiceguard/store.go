package voiceguard

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/jsonc"
)

// FileStore owns the voice guard config and its JSON file. Every mutation
// is written to disk before it becomes visible to readers.
type FileStore struct {
	path string

	mu  sync.RWMutex
	cfg Config
}

// Open loads the config at path. Missing files and missing top-level keys
// are defaulted and the result is written back immediately. Comments in
// the file are tolerated.
func Open(path string) (*FileStore, error) {
	s := &FileStore{path: path}

	cfg, complete, err := readConfig(path)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg
	if !complete {
		if err := writeConfig(path, cfg); err != nil {
			return nil, err
		}
		log.Printf("voiceguard: wrote defaulted config to %s", path)
	}
	return s, nil
}

func (s *FileStore) Path() string { return s.path }

// Snapshot returns a copy of the current config.
func (s *FileStore) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone()
}

func (s *FileStore) ProtectedRoleID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ProtectedRoleID
}

// Target returns the flags of a restricted user.
func (s *FileStore) Target(userID string) (Flags, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.cfg.Targets[userID]
	return f, ok
}

// ListTargets returns page (1-based) of targets ordered by user id, along
// with the total page count (at least 1).
func (s *FileStore) ListTargets(page int) ([]Target, int) {
	s.mu.RLock()
	all := s.cfg.sortedTargets()
	s.mu.RUnlock()

	pages := (len(all) + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * PageSize
	if start >= len(all) {
		return nil, pages
	}
	end := start + PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], pages
}

func (s *FileStore) SetProtectedRole(roleID string) error {
	if !ValidateSnowflake(roleID) {
		return ErrInvalidRoleID
	}
	return s.mutate(func(c *Config) error {
		c.ProtectedRoleID = roleID
		return nil
	})
}

// AddTarget inserts or replaces userID. Nil flags default to true.
func (s *FileStore) AddTarget(userID string, f1, f2 *bool) (Flags, error) {
	if !ValidateSnowflake(userID) {
		return Flags{}, ErrInvalidUserID
	}
	flags := DefaultFlags
	if f1 != nil {
		flags.F1 = *f1
	}
	if f2 != nil {
		flags.F2 = *f2
	}
	err := s.mutate(func(c *Config) error {
		c.Targets[userID] = flags
		return nil
	})
	return flags, err
}

// SetTarget updates only the given flags of an existing target.
func (s *FileStore) SetTarget(userID string, f1, f2 *bool) (Flags, error) {
	var out Flags
	err := s.mutate(func(c *Config) error {
		flags, ok := c.Targets[userID]
		if !ok {
			return ErrTargetNotFound
		}
		if f1 != nil {
			flags.F1 = *f1
		}
		if f2 != nil {
			flags.F2 = *f2
		}
		c.Targets[userID] = flags
		out = flags
		return nil
	})
	return out, err
}

func (s *FileStore) RemoveTarget(userID string) error {
	return s.mutate(func(c *Config) error {
		if _, ok := c.Targets[userID]; !ok {
			return ErrTargetNotFound
		}
		delete(c.Targets, userID)
		return nil
	})
}

// mutate applies fn to a copy, persists it, then publishes it. A failed
// write leaves the in-memory config untouched.
func (s *FileStore) mutate(fn func(*Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := writeConfig(s.path, next); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// readConfig reports complete=false when the file or any top-level key was
// missing and defaults were filled in.
func readConfig(path string) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{ProtectedRoleID: UnsetRoleID, Targets: map[string]Flags{}}, false, nil
	}
	if err != nil {
		return Config{}, false, fmt.Errorf("read voiceguard config: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return Config{}, false, fmt.Errorf("parse voiceguard config %s: %w", path, err)
	}

	complete := true
	cfg := Config{ProtectedRoleID: UnsetRoleID, Targets: map[string]Flags{}}
	if v, ok := raw["protected_role_id"]; ok {
		if err := json.Unmarshal(v, &cfg.ProtectedRoleID); err != nil {
			return Config{}, false, fmt.Errorf("parse protected_role_id: %w", err)
		}
	} else {
		complete = false
	}
	if v, ok := raw["targets"]; ok {
		targets, err := parseTargets(v)
		if err != nil {
			return Config{}, false, err
		}
		cfg.Targets = targets
	} else {
		complete = false
	}
	return cfg, complete, nil
}

// parseTargets defaults each missing flag to true, matching AddTarget.
func parseTargets(data json.RawMessage) (map[string]Flags, error) {
	var entries map[string]struct {
		F1 *bool `json:"f1"`
		F2 *bool `json:"f2"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse targets: %w", err)
	}
	out := make(map[string]Flags, len(entries))
	for id, e := range entries {
		flags := DefaultFlags
		if e.F1 != nil {
			flags.F1 = *e.F1
		}
		if e.F2 != nil {
			flags.F2 = *e.F2
		}
		out[id] = flags
	}
	return out, nil
}

// writeConfig writes to a temp file in the same directory and renames it
// over path so a crash never leaves a truncated config.
func writeConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal voiceguard config: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create voiceguard config directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, ".voiceguard-*.json")
	if err != nil {
		return fmt.Errorf("create temp voiceguard config: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write voiceguard config: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sync voiceguard config: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp voiceguard config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename voiceguard config to %s: %w", path, err)
	}

	success = true
	return nil
}
