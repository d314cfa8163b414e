// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package snapshot is the file snapshot store (spec.md §4.B): a
// version-stamped read-through cache over the filesystem, shared by
// the macro analyzer and the AST transformer so both stages of a
// single file's pipeline see the exact same source text even if the
// file changes on disk between the two reads.
//
// Concurrent first-reads of the same path are deduplicated with
// golang.org/x/sync/singleflight the way the pack's remote-builder
// client dedupes concurrent identical uploads, rather than letting
// every caller hit the filesystem independently.
package snapshot

import (
	"os"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Snapshot is an immutable read of a file's contents at a point in
// time. Version increments on every touch that actually changes the
// text, so callers can tell a cache hit from a forced re-read.
type Snapshot struct {
	Path    string
	Text    string
	Version int
}

// Store is a path-keyed cache of Snapshots.
type Store struct {
	mu    sync.RWMutex
	byPath map[string]Snapshot

	group singleflight.Group
}

// New returns an empty Store.
func New() *Store {
	return &Store{byPath: make(map[string]Snapshot)}
}

// Get returns the cached snapshot for path, if any.
func (s *Store) Get(path string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byPath[path]
	return snap, ok
}

// GetOrTouch returns the cached snapshot for path, reading it from
// disk and caching it at version 1 on a miss. Concurrent misses for
// the same path share a single filesystem read.
func (s *Store) GetOrTouch(path string) (Snapshot, error) {
	if snap, ok := s.Get(path); ok {
		return snap, nil
	}

	v, err, _ := s.group.Do(path, func() (any, error) {
		if snap, ok := s.Get(path); ok {
			return snap, nil
		}
		return s.readAndStore(path, 1)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// Touch forces a re-read of path from disk regardless of cache state,
// bumping Version only if the text actually changed.
func (s *Store) Touch(path string) (Snapshot, error) {
	v, err, _ := s.group.Do("touch:"+path, func() (any, error) {
		s.mu.RLock()
		prev, had := s.byPath[path]
		s.mu.RUnlock()

		nextVersion := 1
		if had {
			nextVersion = prev.Version
		}
		return s.readAndStore(path, nextVersion)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (s *Store) readAndStore(path string, baseVersion int) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	text := string(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.byPath[path]
	version := baseVersion
	if had {
		if prev.Text == text {
			version = prev.Version
		} else {
			version = prev.Version + 1
		}
	}

	snap := Snapshot{Path: path, Text: text, Version: version}
	s.byPath[path] = snap
	return snap, nil
}

// Invalidate drops a path from the cache without reading it, forcing
// the next GetOrTouch to read from disk again as a fresh version-1
// snapshot.
func (s *Store) Invalidate(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byPath, path)
}
