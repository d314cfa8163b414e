// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package macro

import (
	"regexp"
	"strings"

	"github.com/remotex-labs/xbuild/internal/pkg/snapshot"
	"github.com/remotex-labs/xbuild/pkg/util/maps"
	"github.com/remotex-labs/xbuild/pkg/xbuild/config"
	"github.com/remotex-labs/xbuild/pkg/xbuild/diag"
)

// siteRegexp recognizes the macro-detection form from spec.md §4.C:
//
//	(optional 'export' + 'const'|'let'|'var' + identifier + '=')? '$$' ('ifdef'|'ifndef'|'inline') '(' ('"'name'"' | "'"name"'") ?
//
// Capture groups: 1 = variable name (absent when the site is not a
// variable-bound declaration), 2 = directive, 3/4 = quoted define name
// in double or single quotes.
var siteRegexp = regexp.MustCompile(
	`(?:(?:export\s+)?(?:const|let|var)\s+(\$?\$?\w+)\s*=\s*)?\$\$(ifdef|ifndef|inline)\s*\(\s*(?:"([^"]*)"|'([^']*)')?`,
)

// Warning is an analyzer-emitted diagnostic (spec.md §4.C output:
// "an OnLoadResult-shaped value whose only meaningful field is a
// warnings list").
type Warning struct {
	*diag.Diagnostic
}

// Analyzer scans a variant's dependency closure for macro sites,
// grounded on the pack's definition-file scanner (bufio/regexp over
// line-oriented source text) rather than a full parse -- the analyzer
// only needs to classify and count, not rewrite.
type Analyzer struct {
	snapshots *snapshot.Store
}

// NewAnalyzer returns an Analyzer reading file content through snaps.
func NewAnalyzer(snaps *snapshot.Store) *Analyzer {
	return &Analyzer{snapshots: snaps}
}

// Analyze scans every path in deps, populating and returning metadata
// plus any naming-convention warnings. Unreadable or empty files are
// silently skipped (spec.md §4.C: "Analyzer never throws on a
// per-file basis").
func (a *Analyzer) Analyze(deps []string, defines map[string]config.Value) (*Metadata, []Warning) {
	meta := NewMetadata()
	var warnings []Warning

	for _, path := range deps {
		snap, err := a.snapshots.GetOrTouch(path)
		if err != nil || snap.Text == "" {
			continue
		}
		warnings = append(warnings, a.analyzeFile(path, snap.Text, defines, meta)...)
	}

	return meta, warnings
}

func (a *Analyzer) analyzeFile(path, text string, defines map[string]config.Value, meta *Metadata) []Warning {
	var warnings []Warning

	for _, m := range siteRegexp.FindAllStringSubmatchIndex(text, -1) {
		matchStart := m[0]

		lineStart := strings.LastIndexByte(text[:matchStart], '\n') + 1
		lineEnd := strings.IndexByte(text[matchStart:], '\n')
		if lineEnd == -1 {
			lineEnd = len(text)
		} else {
			lineEnd += matchStart
		}
		line := text[lineStart:lineEnd]
		if isCommentLine(line) {
			continue
		}

		meta.markFile(path)

		varName := groupText(text, m, 1)
		directive := groupText(text, m, 2)
		defineName := groupText(text, m, 3)
		if defineName == "" {
			defineName = groupText(text, m, 4)
		}

		if varName == "" {
			continue
		}

		isDefined := isTruthyDefine(defines, defineName)
		disabled := (directive == "ifndef") == isDefined
		if disabled {
			meta.disable(varName)
		}

		if !strings.HasPrefix(varName, "$$") {
			lineNo := 1 + strings.Count(text[:matchStart], "\n")
			col := matchStart - lineStart
			warnings = append(warnings, Warning{diag.New(
				diag.MacroNamingWarning, diag.SeverityWarning,
				diag.Location{File: path, Line: lineNo, Column: col},
				"Macro function '%s' not start with '$$' prefix to avoid conflicts", varName,
			)})
		}
	}

	return warnings
}

// groupText returns the text captured by submatch index i (1-based
// group numbering), or "" if the group did not participate in the
// match.
func groupText(text string, m []int, i int) string {
	lo, hi := m[2*i], m[2*i+1]
	if lo < 0 || hi < 0 {
		return ""
	}
	return text[lo:hi]
}

// isCommentLine is the conservative, whitespace-then-comment-marker
// predicate spec.md §4.C and §9 call for: only a line whose *first*
// non-whitespace characters open a comment is skipped; a macro site
// following code earlier on the same line is still processed (spec.md
// §9's documented open question preserves this limitation).
func isCommentLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "/*") ||
		strings.HasPrefix(trimmed, "*")
}

// isTruthyDefine implements JavaScript-style truthiness over the
// define map: 0, "", false, null, and a missing key are all falsy.
func isTruthyDefine(defines map[string]config.Value, name string) bool {
	if !maps.HasKey(defines, name) {
		return false
	}
	return defines[name].Truthy()
}
