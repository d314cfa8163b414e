// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package store implements the reactive configuration store (spec.md
// §4.A): a single observable value holder with deep-merge patching and
// deep-equal selector distinctness. It is a standalone holder: the
// build driver (internal/pkg/build) takes each variant's defines as a
// plain map on build.Variant and does not read them through a Store.
//
// Modeled on the subscriber/observer shape in the pack's
// kernel/threads/pattern subscriber (mutex-protected subscription map,
// synchronous fan-out) generalized to a typed, JSON-mergeable config
// tree instead of a pattern-matching query.
package store

import (
	"encoding/json"
	"sync"

	"github.com/remotex-labs/xbuild/pkg/xbuild/config"
)

// Unsubscribe detaches a previously registered observer.
type Unsubscribe func()

// Store is an observable holder for a configuration value of type T.
type Store[T any] struct {
	mu      sync.RWMutex
	initial T
	current T

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(T)
}

// New creates a store seeded with initial, which is also retained as
// the baseline Reload resets to.
func New[T any](initial T) *Store[T] {
	return &Store[T]{
		initial: initial,
		current: initial,
		subs:    make(map[int]func(T)),
	}
}

// Get returns the current snapshot.
func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// GetSelected applies selector to the current snapshot synchronously.
func GetSelected[T, R any](s *Store[T], selector func(T) R) R {
	return selector(s.Get())
}

// Subscribe registers observer, invokes it immediately with the
// current value, then again on every subsequent change. Handlers run
// synchronously on the goroutine that made the change, after the
// subscription lock is released; the order in which several observers
// are called is not defined.
func (s *Store[T]) Subscribe(observer func(T)) Unsubscribe {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = observer
	s.subMu.Unlock()

	observer(s.Get())

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Select yields selector results on the returned channel, deduplicated
// by deep structural equality (spec.md §8: "select(sel) does not emit
// twice in a row values equal under the deep-equality relation").
// The channel receives the current value immediately and is closed
// when the returned Unsubscribe is called.
func Select[T, R any](s *Store[T], selector func(T) R) (<-chan R, Unsubscribe) {
	ch := make(chan R, 1)
	var mu sync.Mutex
	var last R
	var have bool

	emit := func(v T) {
		r := selector(v)
		mu.Lock()
		if have && config.DeepEqual(any(last), any(r)) {
			mu.Unlock()
			return
		}
		last = r
		have = true
		mu.Unlock()
		select {
		case ch <- r:
		default:
			// Slow consumer: drop the stale pending value and push the
			// latest, matching "only the most recent state matters" for
			// a configuration stream (there is no event queue semantics
			// here, only current-state semantics).
			select {
			case <-ch:
			default:
			}
			ch <- r
		}
	}

	unsub := s.Subscribe(emit)
	return ch, func() {
		unsub()
		close(ch)
	}
}

// patchJSON round-trips base through JSON, deep-merges the generic
// tree with patch, and decodes the result back into T. Patch may be
// either a partial T or any JSON-compatible partial with matching
// field names.
func patchJSON[T any](base T, patch any) (T, error) {
	var zero T

	baseBytes, err := json.Marshal(base)
	if err != nil {
		return zero, err
	}
	var baseTree any
	if err := json.Unmarshal(baseBytes, &baseTree); err != nil {
		return zero, err
	}

	patchBytes, err := json.Marshal(patch)
	if err != nil {
		return zero, err
	}
	var patchTree any
	if err := json.Unmarshal(patchBytes, &patchTree); err != nil {
		return zero, err
	}

	merged := config.DeepMerge(baseTree, patchTree)

	mergedBytes, err := json.Marshal(merged)
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(mergedBytes, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// Patch deep-merges partial onto the current value (spec.md §4.A):
// objects merge recursively, arrays concatenate, primitives in
// partial overwrite, and keys partial omits leave the current value
// untouched. Subscribers fire if and only if the result changes.
func (s *Store[T]) Patch(partial any) error {
	s.mu.Lock()
	merged, err := patchJSON(s.current, partial)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	changed := !config.DeepEqual(any(s.current), any(merged))
	s.current = merged
	s.mu.Unlock()

	if changed {
		s.notify(merged)
	}
	return nil
}

// Reload deep-merges partial on top of the *original* initial
// configuration, not the current state, producing a reset-plus-overlay
// (spec.md §4.A). Two reloads are not associative when their partials
// touch the same keys (spec.md §8) -- callers that want that must
// merge their partials themselves before calling Reload once.
func (s *Store[T]) Reload(partial any) error {
	s.mu.Lock()
	merged, err := patchJSON(s.initial, partial)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = merged
	s.mu.Unlock()

	s.notify(merged)
	return nil
}

func (s *Store[T]) notify(v T) {
	s.subMu.Lock()
	observers := make([]func(T), 0, len(s.subs))
	for _, o := range s.subs {
		observers = append(observers, o)
	}
	s.subMu.Unlock()

	for _, o := range observers {
		o(v)
	}
}
