// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package inline implements the $$inline build-time evaluator
// (spec.md §4.E): extracting the executable thunk from a macro
// callback node, transpiling it to CommonJS with esbuild, and running
// it in a goja sandbox, returning the stringified result that gets
// spliced back into the caller's source.
package inline

import (
	"fmt"
	"regexp"
	"strings"

	macroast "github.com/remotex-labs/xbuild/internal/pkg/macro/ast"
)

// Extraction is the result of 4.E.1: executable code ready to hand to
// the evaluator, or a warning when the callback could not be resolved
// to executable code at all.
type Extraction struct {
	Code    string
	Warning string // non-empty on InlineResolutionWarning
}

// Extract implements spec.md §4.E.1.
func Extract(callback macroast.Node, source []byte) Extraction {
	switch callback.Tag {
	case macroast.KindArrowFunction, macroast.KindFunctionExpression:
		return Extraction{Code: fmt.Sprintf("module.exports = (%s)();", callback.Text(source))}
	case macroast.KindIdentifier:
		name := callback.Text(source)
		if found, ok := findTopLevelFunctionBinding(string(source), name); ok {
			return Extraction{Code: fmt.Sprintf("module.exports = (%s)();", found)}
		}
		return Extraction{Warning: fmt.Sprintf("$$inline(%s): %s not found", name, name)}
	default:
		return Extraction{Code: callback.Text(source)}
	}
}

func findTopLevelFunctionBinding(source, name string) (string, bool) {
	escaped := regexp.QuoteMeta(name)
	pattern := regexp.MustCompile(`(?:export\s+)?(?:const|let|var)\s+` + escaped + `\s*=\s*((?:\([^)]*\)|[A-Za-z0-9_$]+)\s*(?::[^=]+)?=>[\s\S]*?|function\s*\([^)]*\)\s*\{[\s\S]*?\n\}|\bfunction\b[\s\S]*)`)
	m := pattern.FindStringSubmatch(source)
	if len(m) == 2 {
		return strings.TrimRight(strings.TrimSpace(m[1]), ";"), true
	}

	fnPattern := regexp.MustCompile(`(?:export\s+)?function\s+` + escaped + `\s*\([^)]*\)\s*\{`)
	if loc := fnPattern.FindStringIndex(source); loc != nil {
		// Best-effort: return the declaration name itself as a
		// reference, letting the generated module invoke it by name
		// rather than re-slicing the function body out of source.
		return name, true
	}

	return "", false
}
