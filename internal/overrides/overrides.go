// Package overrides persists user-added matching rules per performer.
package overrides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

// Store loads and saves the full override set
type Store interface {
	Load(ctx context.Context) (types.Overrides, error)
	Save(ctx context.Context, ov types.Overrides) error
}

// FileStore keeps overrides in a JSON file
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the file. A missing file is an empty set.
func (s *FileStore) Load(ctx context.Context) (types.Overrides, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return types.Overrides{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides file: %w", err)
	}

	ov := types.Overrides{}
	if err := json.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("failed to unmarshal overrides: %w", err)
	}
	return ov, nil
}

// Save rewrites the file atomically
func (s *FileStore) Save(ctx context.Context, ov types.Overrides) error {
	data, err := json.MarshalIndent(ov, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal overrides: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create overrides directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write overrides file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace overrides file: %w", err)
	}
	return nil
}

// MemoryStore keeps overrides in memory only
type MemoryStore struct {
	ov types.Overrides
}

// Load returns a copy of the stored set
func (m *MemoryStore) Load(ctx context.Context) (types.Overrides, error) {
	if m.ov == nil {
		return types.Overrides{}, nil
	}
	return m.ov.Clone(), nil
}

// Save replaces the stored set
func (m *MemoryStore) Save(ctx context.Context, ov types.Overrides) error {
	m.ov = ov.Clone()
	return nil
}

// LoadOrEmpty loads from store, treating any failure as an empty set
func LoadOrEmpty(ctx context.Context, store Store, log zerolog.Logger) types.Overrides {
	ov, err := store.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Overrides unreadable; starting with none")
		return types.Overrides{}
	}
	if ov == nil {
		return types.Overrides{}
	}
	for id, o := range ov {
		ov[id] = Normalize(o)
	}
	return ov
}

// Normalize trims entries, lowercases hex codes and drops blanks and duplicates
func Normalize(o types.Override) types.Override {
	return types.Override{
		Hex:           clean(o.Hex, true),
		CallsignRegex: clean(o.CallsignRegex, false),
	}
}

func clean(list []string, lower bool) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, v := range list {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Export renders the set as indented JSON for diagnostics
func Export(ov types.Overrides) (string, error) {
	if ov == nil {
		ov = types.Overrides{}
	}
	data, err := json.MarshalIndent(ov, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal overrides: %w", err)
	}
	return string(data), nil
}
