// Package file implements the JSON document state store.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/state"
)

// Config captures the parameters for the file-backed store.
type Config struct {
	// Path is the JSON document holding every watch record.
	Path string `mapstructure:"path" yaml:"path"`
}

// Store persists the state mapping as a single indented JSON document.
type Store struct {
	path   string
	logger *zap.Logger
}

// New creates a file-backed store. The file itself does not need to exist yet.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: cfg.Path, logger: logger}, nil
}

// Load reads and migrates the document. A missing file yields an empty state.
func (s *Store) Load(ctx context.Context) (monitor.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return monitor.State{}, nil
		}
		return nil, fmt.Errorf("read state %s: %w", s.path, err)
	}
	st, skipped, err := state.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", s.path, err)
	}
	for _, url := range skipped {
		s.logger.Warn("dropping state record with unrecognized shape", zap.String("url", url))
	}
	return st, nil
}

// Save replaces the document with the given mapping via write-to-temp and rename.
func (s *Store) Save(ctx context.Context, st monitor.State) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	data, err := state.EncodeDocument(st)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create state dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace state %s: %w", s.path, err)
	}
	return nil
}
