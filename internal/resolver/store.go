// Package resolver recovers full security identifiers (ISINs) that arrive
// truncated or missing from statement text. Three strategies apply in
// order: manual overrides, the cached reference database, and fuzzy
// matching on normalized scheme names.
package resolver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SchemeInfo is one reference-database entry keyed by full ISIN.
type SchemeInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
	AMC  string `json:"amc"`
	NAV  string `json:"nav"`
}

// referenceFile is the on-disk shape of the reference cache.
type referenceFile struct {
	Version     int                   `json:"version"`
	Schemes     map[string]SchemeInfo `json:"schemes"`
	Count       int                   `json:"count"`
	LastUpdated time.Time             `json:"lastUpdated"`
}

const (
	// CurrentVersion is the current reference cache file format version.
	CurrentVersion = 1

	referenceFileName = "reference.json"
	overridesFileName = "overrides.json"
)

// Store persists resolver state under a cache directory: the reference
// database (ISIN → scheme info) and the manual-override map (scheme-name
// pattern → ISIN). Both are JSON documents rewritten atomically.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created on
// first save, not here.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// ReferencePath returns the reference cache file path.
func (s *Store) ReferencePath() string {
	return filepath.Join(s.dir, referenceFileName)
}

// OverridesPath returns the manual-override file path.
func (s *Store) OverridesPath() string {
	return filepath.Join(s.dir, overridesFileName)
}

// LoadReference reads the reference database from disk.
// Returns os.IsNotExist error if the cache doesn't exist (caller should handle).
func (s *Store) LoadReference() (map[string]SchemeInfo, error) {
	data, err := os.ReadFile(s.ReferencePath())
	if err != nil {
		return nil, err // Preserve os.IsNotExist for caller
	}

	var file referenceFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse reference cache: %w", err)
	}
	if file.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported reference cache version %d (current version: %d)", file.Version, CurrentVersion)
	}
	if file.Schemes == nil {
		file.Schemes = make(map[string]SchemeInfo)
	}
	return file.Schemes, nil
}

// SaveReference atomically writes the reference database to disk.
func (s *Store) SaveReference(schemes map[string]SchemeInfo) error {
	file := referenceFile{
		Version:     CurrentVersion,
		Schemes:     schemes,
		Count:       len(schemes),
		LastUpdated: time.Now(),
	}
	return s.writeAtomic(s.ReferencePath(), file)
}

// LoadOverrides reads the manual-override map from disk.
// Returns os.IsNotExist error if no overrides have been saved yet.
func (s *Store) LoadOverrides() (map[string]string, error) {
	data, err := os.ReadFile(s.OverridesPath())
	if err != nil {
		return nil, err
	}

	var overrides map[string]string
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse overrides file: %w", err)
	}
	if overrides == nil {
		overrides = make(map[string]string)
	}
	return overrides, nil
}

// SaveOverrides atomically writes the manual-override map to disk.
func (s *Store) SaveOverrides(overrides map[string]string) error {
	return s.writeAtomic(s.OverridesPath(), overrides)
}

// writeAtomic writes to a temp file then renames over the target, so a
// crash mid-write never leaves a truncated document behind.
func (s *Store) writeAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
