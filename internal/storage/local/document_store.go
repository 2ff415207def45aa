// Package local writes harvested documents to the local filesystem, one JSON
// file per identifier.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/datacite"
)

// Config captures the parameters for the local document store.
type Config struct {
	// BaseDir is the directory documents are written into.
	BaseDir string
}

// DocumentStore writes documents as {BaseDir}/{identifier}.json.
type DocumentStore struct {
	baseDir string
}

// New creates a DocumentStore, creating BaseDir when missing.
func New(cfg Config) (*DocumentStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &DocumentStore{baseDir: cfg.BaseDir}, nil
}

// Save writes doc, replacing any earlier file for the same identifier. The
// file is written to a temporary name first and renamed into place.
func (s *DocumentStore) Save(ctx context.Context, doc datacite.Document) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	fullPath, err := s.Path(doc.Identifier)
	if err != nil {
		return err
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	tmp, err := os.CreateTemp(s.baseDir, ".doc-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(body, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// Path returns the file path used for identifier.
func (s *DocumentStore) Path(identifier string) (string, error) {
	if strings.TrimSpace(identifier) == "" {
		return "", fmt.Errorf("identifier is required")
	}
	fullPath := filepath.Join(s.baseDir, identifier+".json")

	// Keep writes inside baseDir.
	cleanBaseDir := filepath.Clean(s.baseDir)
	cleanFullPath := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFullPath, cleanBaseDir+string(filepath.Separator)) ||
		filepath.Dir(cleanFullPath) != cleanBaseDir {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
