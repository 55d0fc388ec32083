// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tail

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/bureau-foundation/spyglass/lib/atomicfile"
)

// Cursor records how far into one log file reading has progressed.
type Cursor struct {
	// Offset is the byte position of the first unconsumed byte.
	Offset int64 `json:"offset"`
	// Line is the 1-based number of the last consumed line, carried
	// for parse diagnostics after a resume.
	Line int `json:"line"`
}

// CursorStore persists per-file cursors. Cursors are authoritative
// for ingestion resume: the recovery snapshot may lag, the cursors
// may not.
type CursorStore struct {
	path string

	mu      sync.Mutex
	cursors map[string]Cursor
	dirty   bool
}

// OpenCursorStore loads the cursor file at path, or starts empty when
// it does not exist. A corrupt file is discarded with an error the
// caller can log; ingestion then re-reads from zero and relies on
// reducer idempotence.
func OpenCursorStore(path string) (*CursorStore, error) {
	store := &CursorStore{path: path, cursors: make(map[string]Cursor)}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return store, fmt.Errorf("reading cursor file: %w", err)
	}
	if err := json.Unmarshal(raw, &store.cursors); err != nil {
		store.cursors = make(map[string]Cursor)
		return store, fmt.Errorf("corrupt cursor file %s, starting from zero: %w", path, err)
	}
	return store, nil
}

// Get returns the cursor for a file, zero if unknown.
func (s *CursorStore) Get(file string) Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[file]
}

// Set records a cursor. The change is held in memory until Flush.
func (s *CursorStore) Set(file string, cursor Cursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursors[file] == cursor {
		return
	}
	s.cursors[file] = cursor
	s.dirty = true
}

// Forget drops the cursor for a removed file.
func (s *CursorStore) Forget(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cursors[file]; !ok {
		return
	}
	delete(s.cursors, file)
	s.dirty = true
}

// Flush writes the cursors to disk via atomic replace. A clean flush
// with no pending changes is a no-op.
func (s *CursorStore) Flush() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	encoded, err := json.MarshalIndent(s.cursors, "", "  ")
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("encoding cursors: %w", err)
	}
	s.dirty = false
	s.mu.Unlock()

	if err := atomicfile.Write(s.path, encoded, 0o600); err != nil {
		return fmt.Errorf("writing cursor file: %w", err)
	}
	return nil
}
