package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/berfenger/enasolar2mqtt/internal/core/domain"

	"github.com/goccy/go-yaml"
)

var ErrEntryNotFound = errors.New("config entry not found")

type entriesFile struct {
	Entries []domain.ConfigEntry `yaml:"entries"`
}

// Store persists config entries to a YAML file. An empty path keeps the
// entries in memory only.
type Store struct {
	mu      sync.Mutex
	path    string
	entries []domain.ConfigEntry
}

func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if path == "" {
		return s, nil
	}
	buf, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading entries file: %w", err)
	}
	var f entriesFile
	if err := yaml.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("parsing entries file: %w", err)
	}
	s.entries = f.Entries
	return s, nil
}

func (s *Store) List() []domain.ConfigEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]domain.ConfigEntry, len(s.entries))
	copy(entries, s.entries)
	return entries
}

func (s *Store) Get(entryId string) (domain.ConfigEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(entryId)
	if i < 0 {
		return domain.ConfigEntry{}, ErrEntryNotFound
	}
	return s.entries[i], nil
}

// HasUniqueId reports whether an entry for the same device already exists.
func (s *Store) HasUniqueId(uniqueId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.UniqueId == uniqueId {
			return true
		}
	}
	return false
}

func (s *Store) Add(entry domain.ConfigEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(entry.EntryId) >= 0 {
		return fmt.Errorf("config entry %s already exists", entry.EntryId)
	}
	return s.commit(append(s.snapshot(), entry))
}

// AddUnique adds entry unless one for the same device is stored already.
// It reports whether the entry was added.
func (s *Store) AddUnique(entry domain.ConfigEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.UniqueId == entry.UniqueId {
			return false, nil
		}
	}
	if s.index(entry.EntryId) >= 0 {
		return false, fmt.Errorf("config entry %s already exists", entry.EntryId)
	}
	if err := s.commit(append(s.snapshot(), entry)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) UpdateOptions(entryId string, options domain.EntryOptions) (domain.ConfigEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(entryId)
	if i < 0 {
		return domain.ConfigEntry{}, ErrEntryNotFound
	}
	entries := s.snapshot()
	entries[i].Options = options
	if err := s.commit(entries); err != nil {
		return domain.ConfigEntry{}, err
	}
	return entries[i], nil
}

func (s *Store) Remove(entryId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(entryId)
	if i < 0 {
		return ErrEntryNotFound
	}
	entries := s.snapshot()
	return s.commit(append(entries[:i], entries[i+1:]...))
}

func (s *Store) snapshot() []domain.ConfigEntry {
	entries := make([]domain.ConfigEntry, len(s.entries), len(s.entries)+1)
	copy(entries, s.entries)
	return entries
}

// commit replaces the entries only once they are on disk.
func (s *Store) commit(entries []domain.ConfigEntry) error {
	if err := s.save(entries); err != nil {
		return err
	}
	s.entries = entries
	return nil
}

func (s *Store) index(entryId string) int {
	for i, e := range s.entries {
		if e.EntryId == entryId {
			return i
		}
	}
	return -1
}

// save writes to a temp file and renames it over the entries file.
func (s *Store) save(entries []domain.ConfigEntry) error {
	if s.path == "" {
		return nil
	}
	buf, err := yaml.Marshal(entriesFile{Entries: entries})
	if err != nil {
		return fmt.Errorf("encoding entries: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".entries-*.yaml")
	if err != nil {
		return fmt.Errorf("writing entries file: %w", err)
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing entries file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing entries file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing entries file: %w", err)
	}
	return nil
}
