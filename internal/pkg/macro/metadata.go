// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package macro implements the macro directive subsystem (spec.md §4.C,
// §4.D): the text-level analyzer that classifies $$ifdef/$$ifndef/$$inline
// sites across a build's dependency closure, and (in the ast and inline
// subpackages) the AST-driven rewriter and sandboxed thunk evaluator
// that consume the analyzer's output.
package macro

import "github.com/remotex-labs/xbuild/internal/util"

// Kind enumerates the three recognized macro directive forms.
type Kind int

const (
	Ifdef Kind = iota
	Ifndef
	Inline
)

func (k Kind) String() string {
	switch k {
	case Ifdef:
		return "$$ifdef"
	case Ifndef:
		return "$$ifndef"
	case Inline:
		return "$$inline"
	default:
		return "unknown"
	}
}

// EnclosingKind classifies how a macro call sits inside its statement.
type EnclosingKind int

const (
	EnclosingVarDecl EnclosingKind = iota
	EnclosingExprStmt
	EnclosingNestedCall
)

// Site is a derived (never persisted) description of one macro call
// found during the AST walk (spec.md §3: "Macro site").
type Site struct {
	Kind            Kind
	DefineName      string // absent (empty) for Inline
	Enclosing       EnclosingKind
	Exported        bool
	OuterInvocation bool
	Start           int
	End             int
}

// Metadata is the per-build, per-variant output of the Analyzer
// (spec.md §3: "Macro metadata").
type Metadata struct {
	// DisabledMacroNames holds declaration target names (e.g. "$$debug")
	// whose condition evaluated false.
	DisabledMacroNames map[string]struct{}
	// FilesWithMacros holds absolute paths of files containing at least
	// one macro form outside comments.
	FilesWithMacros map[string]struct{}
}

// NewMetadata returns an empty Metadata ready for population by the
// Analyzer.
func NewMetadata() *Metadata {
	return &Metadata{
		DisabledMacroNames: make(map[string]struct{}),
		FilesWithMacros:    make(map[string]struct{}),
	}
}

// Disabled reports whether name is in DisabledMacroNames.
func (m *Metadata) Disabled(name string) bool {
	_, ok := m.DisabledMacroNames[name]
	return ok
}

// HasMacros reports whether path is in FilesWithMacros.
func (m *Metadata) HasMacros(path string) bool {
	_, ok := m.FilesWithMacros[path]
	return ok
}

func (m *Metadata) markFile(path string) {
	m.FilesWithMacros[path] = struct{}{}
}

func (m *Metadata) disable(name string) {
	m.DisabledMacroNames[name] = struct{}{}
}

// FilesWithoutMacros returns the subset of deps that the Analyzer
// scanned but found no macro sites in, so a Driver can skip handing
// them to the Transformer's OnLoad path entirely. Uses the hashing
// set-subtract from internal/util rather than a quadratic scan, since
// deps closures on a real variant build can run into the thousands.
func (m *Metadata) FilesWithoutMacros(deps []string) []string {
	withMacros := make([]string, 0, len(m.FilesWithMacros))
	for p := range m.FilesWithMacros {
		withMacros = append(withMacros, p)
	}
	return util.HashingListSubtract(deps, withMacros)
}

// Replacement is a single byte-range substitution (spec.md §3). A set
// of Replacements is applied by sorting descending by Start and
// splicing sequentially so that earlier (larger-offset) entries remain
// valid while later ones are applied.
type Replacement struct {
	Start int
	End   int
	Text  string
}

// ReplacementRecord is the queryable, append-only record of one
// applied replacement (SPEC_FULL.md "Stage diagnostic log retention"):
// file, site kind, byte range, and outcome, so a build result can
// answer "which macros fired" without re-parsing. Site is a macro
// Kind's String() form ("$$ifdef", "$$ifndef", "$$inline") for a
// directive site, or "reference" for a disabled-macro-name collapse
// that is not itself a directive invocation (spec.md §4.D.6).
type ReplacementRecord struct {
	File    string
	Site    string
	Start   int
	End     int
	Outcome string
}

// Replacement outcomes recorded in ReplacementRecord.Outcome.
const (
	OutcomeEnabled           = "enabled"
	OutcomeDisabled          = "disabled"
	OutcomeInlined           = "inlined"
	OutcomeInlineFailed      = "inline-failed"
	OutcomeDisabledReference = "disabled-reference"
)
