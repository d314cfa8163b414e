// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package lifecycle implements the hook registry (spec.md §4.F): the
// plugin-setup closure that wires start/resolve/load/end handlers
// into the bundler's plugin host, with the per-build shared Stage
// context spec.md §9 asks to be modeled as an explicit value rather
// than ambient mutable state.
package lifecycle

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/remotex-labs/xbuild/internal/pkg/macro"
	"github.com/remotex-labs/xbuild/pkg/xbuild/diag"
)

// Stage is the per-build, mutable scratch context shared by reference
// across all hooks in one build (spec.md §3: "Lifecycle stage").
// Reinitialized at the start of every build.
type Stage struct {
	mu sync.Mutex

	// BuildID correlates every log line emitted during one build, the
	// way the teacher tags concurrent e2e runs (SPEC_FULL.md DOMAIN
	// STACK: google/uuid). It carries no protocol meaning -- it is
	// never read back by any handler, only logged.
	BuildID uuid.UUID

	StartTime time.Time

	// DefineMetadata is populated by the Analyzer in the start handler
	// and consumed by the Transformer in the load handler.
	DefineMetadata *macro.Metadata

	// ReplacementInfo is the append-only diagnostic log accumulated
	// across a build's load handlers (SPEC_FULL.md supplement: exposed
	// to callers as a build-result field for observability).
	ReplacementInfo []*diag.Diagnostic

	// Replacements is the append-only per-applied-replacement record
	// (SPEC_FULL.md "Stage diagnostic log retention"): one entry per
	// replacement actually spliced into a file, queryable after a
	// build for tooling such as a coverage report of which macros
	// fired. Distinct from ReplacementInfo, which holds diagnostics
	// (errors/warnings), not successful rewrites.
	Replacements []macro.ReplacementRecord
}

// NewStage returns a freshly reset Stage.
func NewStage() *Stage {
	return &Stage{StartTime: time.Now(), BuildID: uuid.New()}
}

// Reset reinitializes the stage for a new build, including a fresh
// BuildID so log lines from one build are never attributed to another.
func (s *Stage) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BuildID = uuid.New()
	s.StartTime = time.Now()
	s.DefineMetadata = nil
	s.ReplacementInfo = nil
	s.Replacements = nil
}

// SetMetadata records the Analyzer's output for the current build.
func (s *Stage) SetMetadata(m *macro.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DefineMetadata = m
}

// Metadata returns the current build's macro metadata, or nil before
// the start handler has run.
func (s *Stage) Metadata() *macro.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DefineMetadata
}

// LogDiagnostic appends to the build's diagnostic log.
func (s *Stage) LogDiagnostic(d *diag.Diagnostic) {
	if d == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReplacementInfo = append(s.ReplacementInfo, d)
}

// LogReplacements appends one build's worth of per-replacement records
// (macro.TransformResult.Replacements) to the stage's running log.
func (s *Stage) LogReplacements(records []macro.ReplacementRecord) {
	if len(records) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Replacements = append(s.Replacements, records...)
}

// Duration computes elapsed time since StartTime.
func (s *Stage) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.StartTime)
}
