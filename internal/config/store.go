package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/midiflow/router/internal/types"
)

// Store reads and durably writes the two on-disk documents (spec.md
// §6.2). Writes are tmp-then-rename; parse failures back up the corrupt
// file with a ".corrupt-<UTCstamp>.bak" suffix and substitute defaults,
// grounded on the teacher's doctor/fix package's move-then-copy file
// recovery pattern, simplified here to same-filesystem rename since
// both documents live beside each other.
type Store struct {
	ConfigPath   string
	LoopbackPath string

	now func() time.Time
}

// NewStore returns a Store rooted at dir, using the conventional file
// names "config.json" and "loopbacks.json".
func NewStore(dir string) *Store {
	return &Store{
		ConfigPath:   filepath.Join(dir, "config.json"),
		LoopbackPath: filepath.Join(dir, "loopbacks.json"),
		now:          time.Now,
	}
}

// LoadAppConfig reads the AppConfig document, creating it with defaults
// if absent, and recovering from corruption by backing up and
// substituting defaults.
func (s *Store) LoadAppConfig() (*AppConfig, error) {
	data, err := os.ReadFile(s.ConfigPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg := DefaultAppConfig()
		if err := s.SaveAppConfig(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", s.ConfigPath, err)
	}

	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		if backupErr := s.backupCorrupt(s.ConfigPath); backupErr != nil {
			return nil, fmt.Errorf("%w: %v (backup also failed: %v)", types.ErrConfigCorrupt, err, backupErr)
		}
		cfg = *DefaultAppConfig()
		if err := s.SaveAppConfig(&cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	return &cfg, nil
}

// SaveAppConfig writes cfg atomically.
func (s *Store) SaveAppConfig(cfg *AppConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal app config: %w", err)
	}
	if err := atomicWriteFile(s.ConfigPath, data); err != nil {
		return fmt.Errorf("%w: %v", types.ErrPersistenceFailed, err)
	}
	return nil
}

// LoadLoopbacks implements internal/catalog.Persister. A missing file or
// unparseable file both resolve to an empty set; the latter backs up the
// corrupt file first.
func (s *Store) LoadLoopbacks() ([]types.EndpointDescriptor, error) {
	data, err := os.ReadFile(s.LoopbackPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", s.LoopbackPath, err)
	}

	var entries []loopbackEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		if backupErr := s.backupCorrupt(s.LoopbackPath); backupErr != nil {
			return nil, fmt.Errorf("%w: %v (backup also failed: %v)", types.ErrConfigCorrupt, err, backupErr)
		}
		return nil, nil
	}

	out := make([]types.EndpointDescriptor, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.toDescriptor())
	}
	return out, nil
}

// SaveLoopbacks implements internal/catalog.Persister.
func (s *Store) SaveLoopbacks(descs []types.EndpointDescriptor) error {
	entries := make([]loopbackEntry, 0, len(descs))
	for _, d := range descs {
		entries = append(entries, loopbackEntryFromDescriptor(d))
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal loopbacks: %w", err)
	}
	if err := atomicWriteFile(s.LoopbackPath, data); err != nil {
		return fmt.Errorf("%w: %v", types.ErrPersistenceFailed, err)
	}
	return nil
}

func (s *Store) backupCorrupt(path string) error {
	stamp := s.now().UTC().Format("20060102T150405Z")
	backup := fmt.Sprintf("%s.corrupt-%s.bak", path, stamp)
	return os.Rename(path, backup)
}

func atomicWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
