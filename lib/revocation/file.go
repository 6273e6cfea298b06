// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package revocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk revocation list:
//
//	revoked:
//	  - id: 3f9a...            # fingerprint or jti
//	    expires_at: 2026-03-01T12:05:00Z
type fileDocument struct {
	Revoked []struct {
		ID        string    `yaml:"id"`
		ExpiresAt time.Time `yaml:"expires_at"`
	} `yaml:"revoked"`
}

// FileSource mirrors a YAML revocation list into the LayerFile layer.
type FileSource struct {
	path   string
	set    *Set
	logger *slog.Logger
}

// NewFileSource returns a source for path. Call Load once at startup,
// then Watch to follow edits.
func NewFileSource(path string, set *Set, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileSource{path: path, set: set, logger: logger}
}

// Load reads the file and replaces the file layer. A missing file is
// an empty list.
func (f *FileSource) Load() error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.set.Replace(LayerFile, nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("revocation: reading %s: %w", f.path, err)
	}

	var document fileDocument
	if err := yaml.Unmarshal(data, &document); err != nil {
		return fmt.Errorf("revocation: parsing %s: %w", f.path, err)
	}

	entries := make([]Entry, 0, len(document.Revoked))
	for _, item := range document.Revoked {
		entries = append(entries, Entry{ID: item.ID, ExpiresAt: item.ExpiresAt})
	}
	f.set.Replace(LayerFile, entries)
	f.logger.Info("revocation file loaded", "path", f.path, "entries", len(entries))
	return nil
}

// Watch reloads the file whenever it changes until ctx is cancelled.
// It watches the parent directory so that editors and deploy tools
// that replace the file by rename are picked up. A reload that fails
// to parse keeps the previous layer.
func (f *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("revocation: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("revocation: watching %s: %w", filepath.Dir(f.path), err)
	}

	target := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if err := f.Load(); err != nil {
				f.logger.Warn("revocation file reload failed", "path", f.path, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("revocation watcher error", "error", err)
		}
	}
}
