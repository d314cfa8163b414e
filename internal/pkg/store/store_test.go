// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package store

import (
	"testing"
	"time"
)

type testConfig struct {
	Feature struct {
		Flags []string `json:"flags"`
	} `json:"feature"`
	Name string `json:"name"`
}

func newTestConfig() testConfig {
	var c testConfig
	c.Name = "base"
	c.Feature.Flags = []string{"a"}
	return c
}

func TestStoreGetReturnsInitial(t *testing.T) {
	s := New(newTestConfig())
	got := s.Get()
	if got.Name != "base" {
		t.Fatalf("Get() = %+v, want Name=base", got)
	}
}

func TestStoreSubscribeFiresImmediatelyThenOnChange(t *testing.T) {
	s := New(newTestConfig())
	var seen []string

	unsub := s.Subscribe(func(c testConfig) {
		seen = append(seen, c.Name)
	})
	defer unsub()

	if len(seen) != 1 || seen[0] != "base" {
		t.Fatalf("expected immediate delivery of base, got %v", seen)
	}

	if err := s.Patch(map[string]any{"name": "patched"}); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	if len(seen) != 2 || seen[1] != "patched" {
		t.Fatalf("expected second delivery of patched, got %v", seen)
	}
}

func TestStorePatchConcatenatesArraysAndLeavesOtherKeysAlone(t *testing.T) {
	s := New(newTestConfig())

	if err := s.Patch(map[string]any{
		"feature": map[string]any{"flags": []any{"b"}},
	}); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	got := s.Get()
	if got.Name != "base" {
		t.Fatalf("expected Name to remain base, got %q", got.Name)
	}
	if len(got.Feature.Flags) != 2 || got.Feature.Flags[0] != "a" || got.Feature.Flags[1] != "b" {
		t.Fatalf("expected flags [a b], got %v", got.Feature.Flags)
	}
}

func TestStorePatchNoopDoesNotNotify(t *testing.T) {
	s := New(newTestConfig())
	fired := 0
	unsub := s.Subscribe(func(testConfig) { fired++ })
	defer unsub()

	if fired != 1 {
		t.Fatalf("expected 1 delivery after subscribe, got %d", fired)
	}

	if err := s.Patch(map[string]any{}); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected empty patch not to notify, fired=%d", fired)
	}
}

func TestStoreReloadResetsToInitialBeforeApplying(t *testing.T) {
	s := New(newTestConfig())

	if err := s.Patch(map[string]any{"name": "temporary"}); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if err := s.Reload(map[string]any{"name": "reloaded"}); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	got := s.Get()
	if got.Name != "reloaded" {
		t.Fatalf("Name = %q, want reloaded", got.Name)
	}
	if len(got.Feature.Flags) != 1 || got.Feature.Flags[0] != "a" {
		t.Fatalf("expected flags reset to [a], got %v", got.Feature.Flags)
	}
}

func TestSelectDedupesEqualConsecutiveValues(t *testing.T) {
	s := New(newTestConfig())
	ch, unsub := Select(s, func(c testConfig) string { return c.Name })
	defer unsub()

	select {
	case v := <-ch:
		if v != "base" {
			t.Fatalf("first value = %q, want base", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial value")
	}

	// A patch that does not touch Name should not produce a second
	// emission on the Name-selecting stream.
	if err := s.Patch(map[string]any{
		"feature": map[string]any{"flags": []any{"b"}},
	}); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	select {
	case v := <-ch:
		t.Fatalf("unexpected emission %q after a patch that left Name unchanged", v)
	case <-time.After(50 * time.Millisecond):
	}

	if err := s.Patch(map[string]any{"name": "changed"}); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	select {
	case v := <-ch:
		if v != "changed" {
			t.Fatalf("value = %q, want changed", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for changed value")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := New(newTestConfig())
	fired := 0
	unsub := s.Subscribe(func(testConfig) { fired++ })
	unsub()

	if err := s.Patch(map[string]any{"name": "after-unsub"}); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected no delivery after unsubscribe, fired=%d", fired)
	}
}
