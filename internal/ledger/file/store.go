// Package file implements a ledger.Store backed by a JSON file on local disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/price-error-watch/internal/ledger"
)

// Config captures the parameters for the local file store.
type Config struct {
	// Path is the JSON file holding the whole ledger.
	Path string `mapstructure:"path" yaml:"path"`
}

// Store reads and rewrites the whole ledger as one JSON document.
type Store struct {
	path string
}

// New creates a file-backed store, creating the parent directory when needed.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	dir := filepath.Dir(cfg.Path)

	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat ledger directory: %w", err)
		}
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("ledger directory path is not a directory")
	}

	if info, err := os.Stat(cfg.Path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("ledger path %q is a directory", cfg.Path)
	}

	return &Store{path: cfg.Path}, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Load reads the ledger file. A missing file yields ledger.ErrNotFound.
func (s *Store) Load(_ context.Context) (ledger.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	snap := ledger.Snapshot{}
	if len(data) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	return snap, nil
}

// Save rewrites the whole ledger. The file is replaced atomically via rename.
func (s *Store) Save(_ context.Context, snap ledger.Snapshot, _ string) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}
